package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/exchange/internal/trading/domain"
)

// orderRepository domain.OrderRepository 的 GORM 实现
type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓储实例
func NewOrderRepository(db *gorm.DB) domain.OrderRepository {
	return &orderRepository{db: db}
}

// Save 保存订单（按 order_id 幂等）
func (r *orderRepository) Save(ctx context.Context, order *domain.Order) error {
	err := dbFromContext(ctx, r.db).WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "filled_amount", "processed_at"}),
	}).Create(order).Error
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// Get 根据订单 ID 获取订单
func (r *orderRepository) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	var order domain.Order
	err := dbFromContext(ctx, r.db).WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

// ListByUser 获取用户订单分页列表
func (r *orderRepository) ListByUser(ctx context.Context, userID string, status domain.OrderStatus, limit, offset int) ([]*domain.Order, int64, error) {
	var (
		orders []*domain.Order
		total  int64
	)

	query := dbFromContext(ctx, r.db).WithContext(ctx).Model(&domain.Order{}).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}
	if err := query.Order("id DESC").Limit(limit).Offset(offset).Find(&orders).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, total, nil
}

// FindEligible 查询可成交的等待订单
func (r *orderRepository) FindEligible(ctx context.Context, pair string, side domain.OrderSide, last decimal.Decimal) ([]*domain.Order, error) {
	comparator := ">="
	if side == domain.OrderSideSell {
		comparator = "<="
	}

	var orders []*domain.Order
	err := dbFromContext(ctx, r.db).WithContext(ctx).
		Where("status = ? AND pair = ? AND side = ?", domain.OrderStatusWaiting, pair, side).
		Where(fmt.Sprintf("price %s ?", comparator), last).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find eligible orders: %w", err)
	}
	return orders, nil
}

// MarkFilled 以受保护的 UPDATE 原子消费等待订单。
// WHERE status = WAITING 保证并发轮次或并发撤单下只有一个路径生效。
func (r *orderRepository) MarkFilled(ctx context.Context, orderID string) (*domain.Order, error) {
	return r.transition(ctx, orderID, domain.OrderStatusFilled)
}

// CancelWaiting 以同样的保护条件将等待订单置为已取消
func (r *orderRepository) CancelWaiting(ctx context.Context, orderID string) (*domain.Order, error) {
	return r.transition(ctx, orderID, domain.OrderStatusCancelled)
}

func (r *orderRepository) transition(ctx context.Context, orderID string, to domain.OrderStatus) (*domain.Order, error) {
	db := dbFromContext(ctx, r.db)
	now := time.Now()

	updates := map[string]any{
		"status":       to,
		"processed_at": now,
	}
	if to == domain.OrderStatusFilled {
		// 整单成交：一次累加全部委托数量
		updates["filled_amount"] = gorm.Expr("filled_amount + amount")
	}

	result := db.WithContext(ctx).Model(&domain.Order{}).
		Where("order_id = ? AND status = ?", orderID, domain.OrderStatusWaiting).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to transition order %s: %w", orderID, result.Error)
	}
	if result.RowsAffected == 0 {
		// 订单不存在，或已被其他路径消费
		return nil, nil
	}

	var order domain.Order
	if err := db.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error; err != nil {
		return nil, fmt.Errorf("failed to reload order %s: %w", orderID, err)
	}
	return &order, nil
}
