package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/exchange/internal/trading/domain"
)

// ErrOrderNotCancellable 订单不存在或已离开 WAITING
var ErrOrderNotCancellable = errors.New("order is not cancellable")

// ErrInvalidOrder 下单参数非法
var ErrInvalidOrder = errors.New("invalid order")

// OrderService 订单应用服务：下单冻结、撤单解冻与查询
type OrderService struct {
	orders   domain.OrderRepository
	accounts domain.AccountRepository
	logger   *slog.Logger
}

// NewOrderService 创建订单应用服务
func NewOrderService(orders domain.OrderRepository, accounts domain.AccountRepository, logger *slog.Logger) *OrderService {
	return &OrderService{
		orders:   orders,
		accounts: accounts,
		logger:   logger,
	}
}

// PlaceOrderCommand 下单命令
type PlaceOrderCommand struct {
	UserID string
	Pair   string
	Side   domain.OrderSide
	Price  decimal.Decimal
	Amount decimal.Decimal
}

// Place 提交限价订单。
// 买单冻结基准货币 amount × price，卖单冻结目标货币 amount；
// 冻结成功后订单以 WAITING 状态入库，等待撮合轮消费。
func (s *OrderService) Place(ctx context.Context, cmd PlaceOrderCommand) (*domain.Order, error) {
	if cmd.Price.LessThanOrEqual(decimal.Zero) || cmd.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: price and amount must be positive", ErrInvalidOrder)
	}
	if cmd.Side != domain.OrderSideBuy && cmd.Side != domain.OrderSideSell {
		return nil, fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, cmd.Side)
	}

	base, target, err := domain.SplitPairForSettlement(cmd.Pair)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}

	reserveCurrency := base
	reserveAmount := cmd.Amount.Mul(cmd.Price)
	if cmd.Side == domain.OrderSideSell {
		reserveCurrency = target
		reserveAmount = cmd.Amount
	}

	if err := s.accounts.Reserve(ctx, cmd.UserID, reserveCurrency, reserveAmount); err != nil {
		return nil, fmt.Errorf("failed to reserve balance: %w", err)
	}

	orderID := fmt.Sprintf("ORD%d", time.Now().UnixNano())
	order := domain.NewOrder(orderID, cmd.UserID, cmd.Pair, cmd.Side, cmd.Price, cmd.Amount)
	if err := s.orders.Save(ctx, order); err != nil {
		// 入库失败则解冻，保持余额不变
		if rerr := s.accounts.Release(ctx, cmd.UserID, reserveCurrency, reserveAmount); rerr != nil {
			s.logger.ErrorContext(ctx, "failed to release reservation after save failure",
				"user_id", cmd.UserID, "currency", reserveCurrency, "amount", reserveAmount, "error", rerr)
		}
		return nil, fmt.Errorf("failed to save order: %w", err)
	}

	s.logger.InfoContext(ctx, "order placed",
		"order_id", order.OrderID, "user_id", order.UserID,
		"pair", order.Pair, "side", order.Side,
		"price", order.Price, "amount", order.Amount,
	)
	return order, nil
}

// Cancel 撤销等待中的订单并解冻余额。
// 订单已被撮合消费或不存在时返回 ErrOrderNotCancellable。
func (s *OrderService) Cancel(ctx context.Context, orderID string) (*domain.Order, error) {
	cancelled, err := s.orders.CancelWaiting(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}
	if cancelled == nil {
		return nil, ErrOrderNotCancellable
	}

	base, target, err := domain.SplitPairForSettlement(cancelled.Pair)
	if err != nil {
		return nil, fmt.Errorf("order %s has invalid pair %q: %w", orderID, cancelled.Pair, err)
	}

	releaseCurrency := base
	releaseAmount := cancelled.Amount.Mul(cancelled.Price)
	if cancelled.Side == domain.OrderSideSell {
		releaseCurrency = target
		releaseAmount = cancelled.Amount
	}

	if err := s.accounts.Release(ctx, cancelled.UserID, releaseCurrency, releaseAmount); err != nil {
		s.logger.ErrorContext(ctx, "failed to release reservation on cancel",
			"order_id", orderID, "user_id", cancelled.UserID,
			"currency", releaseCurrency, "amount", releaseAmount, "error", err)
		return nil, fmt.Errorf("failed to release balance: %w", err)
	}

	s.logger.InfoContext(ctx, "order cancelled", "order_id", orderID, "user_id", cancelled.UserID)
	return cancelled, nil
}

// Get 查询单笔订单
func (s *OrderService) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.orders.Get(ctx, orderID)
}

// ListByUser 查询用户订单
func (s *OrderService) ListByUser(ctx context.Context, userID string, status domain.OrderStatus, limit, offset int) ([]*domain.Order, int64, error) {
	return s.orders.ListByUser(ctx, userID, status, limit, offset)
}
