package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/exchange/internal/trading/domain"
	"github.com/wyfcoding/exchange/pkg/metrics"
)

// EngineConfig 撮合引擎配置
type EngineConfig struct {
	// 两轮撮合之间的间隔，从上一轮完成时刻起算
	SyncInterval time.Duration
	// 单轮结算最大并发数
	MaxConcurrentSettlements int
}

// Engine 周期性撮合引擎。
// 每轮：拉取行情快照 → 并发查询各 (交易对, 方向) 的可成交订单 →
// 有界并发地逐单结算并通知 → 全部收敛后再计时下一轮。
// 轮与轮之间严格串行，上一轮未收敛前不会开始下一轮。
type Engine struct {
	rates   domain.RateRepository
	orders  domain.OrderRepository
	settler *SettlementService
	logger  *slog.Logger
	metrics *metrics.Metrics

	interval      time.Duration
	maxConcurrent int

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewEngine 创建撮合引擎实例
// 引擎状态全部在实例字段上，可并存多个互不影响的实例
func NewEngine(
	rates domain.RateRepository,
	orders domain.OrderRepository,
	settler *SettlementService,
	cfg EngineConfig,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Engine {
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = time.Second
	}
	if cfg.MaxConcurrentSettlements <= 0 {
		cfg.MaxConcurrentSettlements = 32
	}
	return &Engine{
		rates:         rates,
		orders:        orders,
		settler:       settler,
		logger:        logger,
		metrics:       m,
		interval:      cfg.SyncInterval,
		maxConcurrent: cfg.MaxConcurrentSettlements,
	}
}

// Start 启动周期撮合，幂等；Stop 之后可再次 Start 恢复
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.done = make(chan struct{})

	if e.metrics != nil {
		e.metrics.EngineRunning.Set(1)
	}
	e.logger.InfoContext(ctx, "matching engine started", "interval", e.interval)

	go e.run(ctx, e.stopCh, e.done)
}

// Stop 停止调度，幂等。
// 只取消后续轮次，不打断进行中的一轮。
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.running = false
	close(e.stopCh)

	if e.metrics != nil {
		e.metrics.EngineRunning.Set(0)
	}
	e.logger.Info("matching engine stopping")
}

// Running 引擎是否在运行
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Wait 阻塞到撮合循环退出（含进行中的一轮收敛）
func (e *Engine) Wait() {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (e *Engine) run(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		e.runTick(ctx)

		// 间隔从本轮完成时刻起算，慢轮自然降频而不是重叠
		timer := time.NewTimer(e.interval)
		select {
		case <-timer.C:
		case <-stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}
	}
}

// runTick 执行一轮撮合
func (e *Engine) runTick(ctx context.Context) {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.TicksTotal.Inc()
			e.metrics.TickDuration.Observe(time.Since(start).Seconds())
		}
	}()

	rates, err := e.rates.Latest(ctx)
	if err != nil {
		// 本轮放弃，不在轮内重试；下一轮即是重试
		if e.metrics != nil {
			e.metrics.RateFetchFailures.Inc()
		}
		e.logger.ErrorContext(ctx, "failed to fetch rate snapshot", "error", err)
		return
	}
	if len(rates) == 0 {
		return
	}

	matched := e.collectEligible(ctx, rates)
	if len(matched) == 0 {
		return
	}
	if e.metrics != nil {
		e.metrics.OrdersMatched.Add(float64(len(matched)))
	}

	g := &errgroup.Group{}
	g.SetLimit(e.maxConcurrent)
	for _, order := range matched {
		g.Go(func() error {
			e.settleOne(ctx, order)
			return nil
		})
	}
	_ = g.Wait()
}

// collectEligible 并发查询所有 (交易对, 方向) 组合的可成交订单并合并。
// 单个查询失败只丢弃该切片，其余不受影响。
func (e *Engine) collectEligible(ctx context.Context, rates []*domain.ExchangeRate) []*domain.Order {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		matched []*domain.Order
	)

	sides := []domain.OrderSide{domain.OrderSideBuy, domain.OrderSideSell}
	for _, rate := range rates {
		for _, side := range sides {
			wg.Add(1)
			go func(rate *domain.ExchangeRate, side domain.OrderSide) {
				defer wg.Done()
				orders, err := e.orders.FindEligible(ctx, rate.Pair, side, rate.LastPrice)
				if err != nil {
					e.logger.ErrorContext(ctx, "failed to query eligible orders",
						"pair", rate.Pair,
						"side", side,
						"error", err,
					)
					return
				}
				if len(orders) == 0 {
					return
				}
				mu.Lock()
				matched = append(matched, orders...)
				mu.Unlock()
			}(rate, side)
		}
	}
	wg.Wait()

	return matched
}

// settleOne 结算单笔订单；失败相互隔离，不影响同轮其他订单
func (e *Engine) settleOne(ctx context.Context, order *domain.Order) {
	outcome, err := e.settler.Settle(ctx, order)
	if e.metrics == nil {
		return
	}
	switch {
	case err != nil:
		e.metrics.SettlementFailures.Inc()
	case outcome == SettleOutcomeRace:
		e.metrics.SettlementRaces.Inc()
	default:
		e.metrics.SettlementsTotal.Inc()
	}
}
