// Package domain 包含撮合结算引擎的领域模型
package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderStatus 订单状态
// 状态单调：WAITING 只能迁移到 FILLED 或 CANCELLED，两者均为终态
type OrderStatus string

const (
	OrderStatusWaiting   OrderStatus = "WAITING"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// OrderSide 订单方向
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Order 限价订单实体
type Order struct {
	gorm.Model
	// 订单 ID (业务主键)
	OrderID string `gorm:"column:order_id;type:varchar(32);uniqueIndex;not null" json:"order_id"`
	// 用户 ID
	UserID string `gorm:"column:user_id;type:varchar(32);index;not null" json:"user_id"`
	// 交易对（如 USDT_BTC，基准货币_目标货币）
	Pair string `gorm:"column:pair;type:varchar(20);index;not null" json:"pair"`
	// 买卖方向
	Side OrderSide `gorm:"column:side;type:varchar(10);not null" json:"side"`
	// 限价
	Price decimal.Decimal `gorm:"column:price;type:decimal(32,18);not null" json:"price"`
	// 委托数量
	Amount decimal.Decimal `gorm:"column:amount;type:decimal(32,18);not null" json:"amount"`
	// 累计成交数量
	FilledAmount decimal.Decimal `gorm:"column:filled_amount;type:decimal(32,18);not null;default:0" json:"filled_amount"`
	// 订单状态
	Status OrderStatus `gorm:"column:status;type:varchar(20);index;not null" json:"status"`
	// 成交处理时间
	ProcessedAt *time.Time `gorm:"column:processed_at" json:"processed_at"`
}

// TableName 表名
func (Order) TableName() string {
	return "orders"
}

// NewOrder 创建一笔等待撮合的限价订单
func NewOrder(orderID, userID, pair string, side OrderSide, price, amount decimal.Decimal) *Order {
	return &Order{
		OrderID:      orderID,
		UserID:       userID,
		Pair:         pair,
		Side:         side,
		Price:        price,
		Amount:       amount,
		FilledAmount: decimal.Zero,
		Status:       OrderStatusWaiting,
	}
}

// EligibleAt 判断订单在给定最新成交价下是否可成交
// 买单：限价 >= 最新价；卖单：限价 <= 最新价
func (o *Order) EligibleAt(last decimal.Decimal) bool {
	if o.Side == OrderSideSell {
		return o.Price.LessThanOrEqual(last)
	}
	return o.Price.GreaterThanOrEqual(last)
}

// IsWaiting 是否仍在等待撮合
func (o *Order) IsWaiting() bool {
	return o.Status == OrderStatusWaiting
}

// TotalValue 委托总额 = 数量 × 限价
// 成交金额由订单自身决定，与快照价格无关
func (o *Order) TotalValue() decimal.Decimal {
	return o.Amount.Mul(o.Price)
}

// OrderRepository 订单仓储接口
type OrderRepository interface {
	// Save 保存订单
	Save(ctx context.Context, order *Order) error
	// Get 根据订单 ID 获取订单，不存在时返回 (nil, nil)
	Get(ctx context.Context, orderID string) (*Order, error)
	// ListByUser 获取用户订单列表
	ListByUser(ctx context.Context, userID string, status OrderStatus, limit, offset int) ([]*Order, int64, error)
	// FindEligible 查询给定交易对、方向在最新价下可成交的等待订单
	// 买单返回限价 >= last 的订单，卖单返回限价 <= last 的订单
	FindEligible(ctx context.Context, pair string, side OrderSide, last decimal.Decimal) ([]*Order, error)
	// MarkFilled 原子地将等待中的订单置为已成交，记录处理时间并累加成交数量。
	// 仅当订单当前状态为 WAITING 时生效；订单不存在或已离开 WAITING 返回 (nil, nil)，
	// 由调用方按竞态空转处理。
	MarkFilled(ctx context.Context, orderID string) (*Order, error)
	// CancelWaiting 原子地将等待中的订单置为已取消，
	// 语义与 MarkFilled 相同：已离开 WAITING 返回 (nil, nil)
	CancelWaiting(ctx context.Context, orderID string) (*Order, error)
}
