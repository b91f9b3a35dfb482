package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/exchange/internal/trading/domain"
)

func rate(pair, last string) *domain.ExchangeRate {
	return &domain.ExchangeRate{Pair: pair, LastPrice: dec(last), BaseVolume: dec("0")}
}

func newTestEngine(rates *memRateRepo, orders *memOrderRepo, accounts *memAccountRepo, pub *memPublisher, cfg EngineConfig) *Engine {
	settler := newSettler(orders, accounts, pub, nil)
	return NewEngine(rates, orders, settler, cfg, testLogger(), nil)
}

func TestTickSettlesOnlyEligibleOrders(t *testing.T) {
	// 最新价 50：买单限价 >= 50 可成交，卖单限价 <= 50 可成交
	orders := newMemOrderRepo(
		domain.NewOrder("BUY-AT", "u1", "USDT_BTC", domain.OrderSideBuy, dec("50"), dec("1")),
		domain.NewOrder("BUY-BELOW", "u1", "USDT_BTC", domain.OrderSideBuy, dec("49"), dec("1")),
		domain.NewOrder("SELL-AT", "u1", "USDT_BTC", domain.OrderSideSell, dec("50"), dec("1")),
		domain.NewOrder("SELL-ABOVE", "u1", "USDT_BTC", domain.OrderSideSell, dec("51"), dec("1")),
	)
	accounts := newMemAccountRepo(
		account("u1", "USD", "0", "1000"),
		account("u1", "BTC", "0", "10"),
	)
	rates := &memRateRepo{rates: []*domain.ExchangeRate{rate("USDT_BTC", "50")}}
	pub := &memPublisher{}
	e := newTestEngine(rates, orders, accounts, pub, EngineConfig{})

	e.runTick(context.Background())

	assert.Equal(t, domain.OrderStatusFilled, orders.statusOf("BUY-AT"))
	assert.Equal(t, domain.OrderStatusFilled, orders.statusOf("SELL-AT"))
	assert.Equal(t, domain.OrderStatusWaiting, orders.statusOf("BUY-BELOW"))
	assert.Equal(t, domain.OrderStatusWaiting, orders.statusOf("SELL-ABOVE"))
	assert.Len(t, pub.published(), 2)
}

func TestTickAbandonedOnRateFetchFailure(t *testing.T) {
	orders := newMemOrderRepo(
		domain.NewOrder("ORD1", "u1", "USDT_BTC", domain.OrderSideBuy, dec("50"), dec("1")),
	)
	accounts := newMemAccountRepo(
		account("u1", "USD", "0", "50"),
		account("u1", "BTC", "0", "0"),
	)
	rates := &memRateRepo{err: errBoom}
	pub := &memPublisher{}
	e := newTestEngine(rates, orders, accounts, pub, EngineConfig{})

	e.runTick(context.Background())
	assert.Equal(t, domain.OrderStatusWaiting, orders.statusOf("ORD1"))
	assert.Zero(t, accounts.adjustments())
	assert.Empty(t, pub.published())

	// 故障只影响本轮，恢复后的下一轮正常处理
	rates.setErr(nil)
	rates.rates = []*domain.ExchangeRate{rate("USDT_BTC", "50")}
	e.runTick(context.Background())
	assert.Equal(t, domain.OrderStatusFilled, orders.statusOf("ORD1"))
	assert.Len(t, pub.published(), 1)
}

func TestTickEmptySnapshotIsNoop(t *testing.T) {
	orders := newMemOrderRepo(
		domain.NewOrder("ORD1", "u1", "USDT_BTC", domain.OrderSideBuy, dec("50"), dec("1")),
	)
	accounts := newMemAccountRepo()
	rates := &memRateRepo{}
	e := newTestEngine(rates, orders, accounts, &memPublisher{}, EngineConfig{})

	e.runTick(context.Background())
	assert.Equal(t, domain.OrderStatusWaiting, orders.statusOf("ORD1"))
}

func TestTickIsolatesSettlementFailures(t *testing.T) {
	// 缺账户的订单结算失败，不影响同轮其他订单
	orders := newMemOrderRepo(
		domain.NewOrder("GOOD", "u1", "USDT_BTC", domain.OrderSideBuy, dec("50"), dec("1")),
		domain.NewOrder("BAD", "u2", "USDT_BTC", domain.OrderSideBuy, dec("50"), dec("1")),
	)
	accounts := newMemAccountRepo(
		account("u1", "USD", "0", "50"),
		account("u1", "BTC", "0", "0"),
	)
	rates := &memRateRepo{rates: []*domain.ExchangeRate{rate("USDT_BTC", "50")}}
	pub := &memPublisher{}
	e := newTestEngine(rates, orders, accounts, pub, EngineConfig{MaxConcurrentSettlements: 1})

	e.runTick(context.Background())

	assert.Equal(t, domain.OrderStatusFilled, orders.statusOf("GOOD"))
	require.Len(t, pub.published(), 1)
	assert.Equal(t, "GOOD", pub.published()[0].Payload.OrderID)
}

func TestEngineStartStop(t *testing.T) {
	orders := newMemOrderRepo()
	accounts := newMemAccountRepo()
	rates := &memRateRepo{}
	e := newTestEngine(rates, orders, accounts, &memPublisher{}, EngineConfig{SyncInterval: 5 * time.Millisecond})

	ctx := context.Background()
	assert.False(t, e.Running())

	e.Start(ctx)
	e.Start(ctx) // 幂等
	assert.True(t, e.Running())

	deadline := time.After(time.Second)
	for rates.fetchCount() < 3 {
		select {
		case <-deadline:
			t.Fatal("engine did not tick")
		case <-time.After(time.Millisecond):
		}
	}

	e.Stop()
	e.Stop() // 幂等
	assert.False(t, e.Running())
	e.Wait()

	n := rates.fetchCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, rates.fetchCount(), "no further ticks after stop")
}

func TestEngineStopLetsInFlightTickFinish(t *testing.T) {
	order := domain.NewOrder("ORD1", "u1", "USDT_BTC", domain.OrderSideBuy, dec("50"), dec("1"))
	orders := newMemOrderRepo(order)
	accounts := newMemAccountRepo(
		account("u1", "USD", "0", "50"),
		account("u1", "BTC", "0", "0"),
	)
	gate := make(chan struct{})
	rates := &memRateRepo{
		rates: []*domain.ExchangeRate{rate("USDT_BTC", "50")},
		gate:  gate,
	}
	e := newTestEngine(rates, orders, accounts, &memPublisher{}, EngineConfig{SyncInterval: time.Hour})

	e.Start(context.Background())

	deadline := time.After(time.Second)
	for rates.fetchCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("tick did not start")
		case <-time.After(time.Millisecond):
		}
	}

	// 首轮仍阻塞在行情读取时请求停止，该轮必须跑完
	e.Stop()
	close(gate)
	e.Wait()

	assert.Equal(t, domain.OrderStatusFilled, orders.statusOf("ORD1"))
	assert.Equal(t, 1, rates.fetchCount())
}

func TestEngineRestartsAfterStop(t *testing.T) {
	orders := newMemOrderRepo(
		domain.NewOrder("ORD1", "u1", "USDT_BTC", domain.OrderSideBuy, dec("50"), dec("1")),
	)
	accounts := newMemAccountRepo(
		account("u1", "USD", "0", "50"),
		account("u1", "BTC", "0", "0"),
	)
	rates := &memRateRepo{}
	e := newTestEngine(rates, orders, accounts, &memPublisher{}, EngineConfig{SyncInterval: 5 * time.Millisecond})

	ctx := context.Background()
	e.Start(ctx)
	e.Stop()
	e.Wait()

	rates.mu.Lock()
	rates.rates = []*domain.ExchangeRate{rate("USDT_BTC", "50")}
	rates.mu.Unlock()

	e.Start(ctx)
	assert.True(t, e.Running())

	deadline := time.After(time.Second)
	for orders.filledCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("restarted engine did not settle")
		case <-time.After(time.Millisecond):
		}
	}
	e.Stop()
	e.Wait()

	// 终态订单不会被重复处理
	assert.Equal(t, 1, orders.filledCount())
}

func TestEngineContextCancelStopsLoop(t *testing.T) {
	rates := &memRateRepo{}
	e := newTestEngine(rates, newMemOrderRepo(), newMemAccountRepo(), &memPublisher{}, EngineConfig{SyncInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	e.Start(ctx)

	deadline := time.After(time.Second)
	for rates.fetchCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("tick did not run")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	e.Wait()
}
