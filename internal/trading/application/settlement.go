// Package application 实现撮合结算引擎的应用服务
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/exchange/internal/trading/domain"
	"github.com/wyfcoding/exchange/pkg/metrics"
)

// SettleOutcome 单笔订单结算结果
type SettleOutcome int

const (
	// SettleOutcomeFilled 结算成功，余额已调整
	SettleOutcomeFilled SettleOutcome = iota
	// SettleOutcomeRace 订单已被其他路径处理，按成功空转处理
	SettleOutcomeRace
)

// ErrLedgerIntegrity 订单可成交但资金无法划转（账户缺失或调整被拒）
// 属于需要对账的完整性错误，不做自动补偿
var ErrLedgerIntegrity = errors.New("ledger integrity failure")

// SettlementService 按订单执行结算：
// 原子地消费等待订单并完成两腿余额划转，随后发布成交事件
type SettlementService struct {
	orders    domain.OrderRepository
	accounts  domain.AccountRepository
	publisher domain.EventPublisher
	tx        domain.TxRunner
	feeRate   decimal.Decimal
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewSettlementService 创建结算服务
// tx 为 nil 时订单迁移与余额调整独立提交（两步模式），否则在一个事务内生效
func NewSettlementService(
	orders domain.OrderRepository,
	accounts domain.AccountRepository,
	publisher domain.EventPublisher,
	tx domain.TxRunner,
	feeRate decimal.Decimal,
	logger *slog.Logger,
	m *metrics.Metrics,
) *SettlementService {
	return &SettlementService{
		orders:    orders,
		accounts:  accounts,
		publisher: publisher,
		tx:        tx,
		feeRate:   feeRate,
		logger:    logger,
		metrics:   m,
	}
}

// Settle 结算单笔已匹配订单。
// 订单已离开 WAITING 时返回 SettleOutcomeRace 且无任何副作用。
// 结算成功后发布一条 ORDER_PROCESSED 事件，发布失败只记日志。
func (s *SettlementService) Settle(ctx context.Context, order *domain.Order) (SettleOutcome, error) {
	var updated *domain.Order

	run := func(txCtx context.Context) error {
		u, err := s.orders.MarkFilled(txCtx, order.OrderID)
		if err != nil {
			return fmt.Errorf("failed to mark order filled: %w", err)
		}
		if u == nil {
			// 已被并发轮次或人工撤单处理
			return nil
		}
		updated = u

		adj, err := s.buildAdjustment(u)
		if err != nil {
			return err
		}

		if err := s.accounts.AdjustBalances(txCtx, u.UserID, adj); err != nil {
			if errors.Is(err, domain.ErrAccountNotFound) {
				return fmt.Errorf("%w: account missing for user %s: %v", ErrLedgerIntegrity, u.UserID, err)
			}
			return fmt.Errorf("%w: balance adjustment rejected for order %s: %v", ErrLedgerIntegrity, u.OrderID, err)
		}
		return nil
	}

	var err error
	if s.tx != nil {
		err = s.tx.WithTx(ctx, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "settlement failed",
			"order_id", order.OrderID,
			"user_id", order.UserID,
			"pair", order.Pair,
			"error", err,
		)
		return SettleOutcomeFilled, err
	}
	if updated == nil {
		s.logger.DebugContext(ctx, "settlement skipped, order already processed", "order_id", order.OrderID)
		return SettleOutcomeRace, nil
	}

	s.logger.InfoContext(ctx, "order settled",
		"order_id", updated.OrderID,
		"user_id", updated.UserID,
		"pair", updated.Pair,
		"side", updated.Side,
		"amount", updated.Amount,
		"price", updated.Price,
	)

	s.publish(ctx, updated)
	return SettleOutcomeFilled, nil
}

// buildAdjustment 计算一笔成交的两腿余额调整。
// 手续费只作用于所得一侧；扣减腿与挂单冻结额完全一致，不按手续费缩放。
func (s *SettlementService) buildAdjustment(order *domain.Order) (domain.BalanceAdjustment, error) {
	base, target, err := domain.SplitPairForSettlement(order.Pair)
	if err != nil {
		return domain.BalanceAdjustment{}, fmt.Errorf("%w: order %s has invalid pair %q", ErrLedgerIntegrity, order.OrderID, order.Pair)
	}

	totalValue := order.Amount.Mul(order.Price)
	net := decimal.NewFromInt(1).Sub(s.feeRate)

	if order.Side == domain.OrderSideSell {
		return domain.BalanceAdjustment{
			CreditCurrency: base,
			CreditAmount:   totalValue.Mul(net),
			DebitCurrency:  target,
			DebitAmount:    order.Amount,
		}, nil
	}
	return domain.BalanceAdjustment{
		CreditCurrency: target,
		CreditAmount:   order.Amount.Mul(net),
		DebitCurrency:  base,
		DebitAmount:    totalValue,
	}, nil
}

func (s *SettlementService) publish(ctx context.Context, order *domain.Order) {
	if s.publisher == nil {
		return
	}
	event := domain.NewOrderProcessedEvent(order)
	if err := s.publisher.Publish(ctx, event); err != nil {
		if s.metrics != nil {
			s.metrics.PublishFailures.Inc()
		}
		s.logger.WarnContext(ctx, "failed to publish fill event", "order_id", order.OrderID, "error", err)
	}
}
