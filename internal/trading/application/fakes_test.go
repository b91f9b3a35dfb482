package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/exchange/internal/trading/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memOrderRepo 内存订单仓储，状态迁移与 MySQL 实现一致（受保护的 CAS）
type memOrderRepo struct {
	mu      sync.Mutex
	orders  map[string]*domain.Order
	findErr error
}

func newMemOrderRepo(orders ...*domain.Order) *memOrderRepo {
	r := &memOrderRepo{orders: make(map[string]*domain.Order)}
	for _, o := range orders {
		cp := *o
		r.orders[o.OrderID] = &cp
	}
	return r
}

func (r *memOrderRepo) Save(ctx context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *order
	r.orders[order.OrderID] = &cp
	return nil
}

func (r *memOrderRepo) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (r *memOrderRepo) ListByUser(ctx context.Context, userID string, status domain.OrderStatus, limit, offset int) ([]*domain.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Order
	for _, o := range r.orders {
		if o.UserID != userID {
			continue
		}
		if status != "" && o.Status != status {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	return out, int64(len(out)), nil
}

func (r *memOrderRepo) FindEligible(ctx context.Context, pair string, side domain.OrderSide, last decimal.Decimal) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	var out []*domain.Order
	for _, o := range r.orders {
		if o.Status != domain.OrderStatusWaiting || o.Pair != pair || o.Side != side {
			continue
		}
		if !o.EligibleAt(last) {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memOrderRepo) MarkFilled(ctx context.Context, orderID string) (*domain.Order, error) {
	return r.transition(orderID, domain.OrderStatusFilled)
}

func (r *memOrderRepo) CancelWaiting(ctx context.Context, orderID string) (*domain.Order, error) {
	return r.transition(orderID, domain.OrderStatusCancelled)
}

func (r *memOrderRepo) transition(orderID string, to domain.OrderStatus) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok || o.Status != domain.OrderStatusWaiting {
		return nil, nil
	}
	now := time.Now()
	o.Status = to
	o.ProcessedAt = &now
	if to == domain.OrderStatusFilled {
		o.FilledAmount = o.FilledAmount.Add(o.Amount)
	}
	cp := *o
	return &cp, nil
}

func (r *memOrderRepo) statusOf(orderID string) domain.OrderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[orderID]; ok {
		return o.Status
	}
	return ""
}

func (r *memOrderRepo) filledCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, o := range r.orders {
		if o.Status == domain.OrderStatusFilled {
			n++
		}
	}
	return n
}

// memAccountRepo 内存账户仓储，两腿调整原子生效
type memAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
	adjusted int
}

func accountKey(userID, currency string) string {
	return userID + "|" + currency
}

func newMemAccountRepo(accounts ...*domain.Account) *memAccountRepo {
	r := &memAccountRepo{accounts: make(map[string]*domain.Account)}
	for _, a := range accounts {
		cp := *a
		r.accounts[accountKey(a.UserID, a.Currency)] = &cp
	}
	return r
}

func (r *memAccountRepo) Save(ctx context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *account
	r.accounts[accountKey(account.UserID, account.Currency)] = &cp
	return nil
}

func (r *memAccountRepo) Get(ctx context.Context, userID, currency string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountKey(userID, currency)]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memAccountRepo) ListByUser(ctx context.Context, userID string) ([]*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Account
	for _, a := range r.accounts {
		if a.UserID == userID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memAccountRepo) AdjustBalances(ctx context.Context, userID string, adj domain.BalanceAdjustment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	credit, ok := r.accounts[accountKey(userID, adj.CreditCurrency)]
	if !ok {
		return fmt.Errorf("%w: %s/%s", domain.ErrAccountNotFound, userID, adj.CreditCurrency)
	}
	debit, ok := r.accounts[accountKey(userID, adj.DebitCurrency)]
	if !ok {
		return fmt.Errorf("%w: %s/%s", domain.ErrAccountNotFound, userID, adj.DebitCurrency)
	}
	credit.AvailableBalance = credit.AvailableBalance.Add(adj.CreditAmount)
	debit.ReservedBalance = debit.ReservedBalance.Sub(adj.DebitAmount)
	r.adjusted++
	return nil
}

func (r *memAccountRepo) Reserve(ctx context.Context, userID, currency string, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountKey(userID, currency)]
	if !ok {
		return domain.ErrAccountNotFound
	}
	if a.AvailableBalance.LessThan(amount) {
		return domain.ErrInsufficientBalance
	}
	a.AvailableBalance = a.AvailableBalance.Sub(amount)
	a.ReservedBalance = a.ReservedBalance.Add(amount)
	return nil
}

func (r *memAccountRepo) Release(ctx context.Context, userID, currency string, amount decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountKey(userID, currency)]
	if !ok {
		return domain.ErrAccountNotFound
	}
	a.ReservedBalance = a.ReservedBalance.Sub(amount)
	a.AvailableBalance = a.AvailableBalance.Add(amount)
	return nil
}

func (r *memAccountRepo) balance(userID, currency string) (available, reserved decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[accountKey(userID, currency)]; ok {
		return a.AvailableBalance, a.ReservedBalance
	}
	return decimal.Zero, decimal.Zero
}

func (r *memAccountRepo) adjustments() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.adjusted
}

// memPublisher 记录发布的事件，可注入失败
type memPublisher struct {
	mu     sync.Mutex
	events []*domain.OrderProcessedEvent
	err    error
}

func (p *memPublisher) Publish(ctx context.Context, event *domain.OrderProcessedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *memPublisher) published() []*domain.OrderProcessedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*domain.OrderProcessedEvent, len(p.events))
	copy(out, p.events)
	return out
}

// memRateRepo 内存行情仓储，可注入失败或阻塞读取
type memRateRepo struct {
	mu      sync.Mutex
	rates   []*domain.ExchangeRate
	err     error
	fetches int
	gate    chan struct{}
}

func (r *memRateRepo) Latest(ctx context.Context) ([]*domain.ExchangeRate, error) {
	r.mu.Lock()
	gate := r.gate
	r.fetches++
	err := r.err
	rates := r.rates
	r.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return rates, nil
}

func (r *memRateRepo) Upsert(ctx context.Context, rates []*domain.ExchangeRate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates = rates
	return nil
}

func (r *memRateRepo) fetchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetches
}

func (r *memRateRepo) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// passthroughTx 直接执行 fn 的 TxRunner，用于覆盖事务路径的接线
type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var errBoom = errors.New("boom")
