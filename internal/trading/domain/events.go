package domain

import (
	"context"
)

// EventTypeOrderProcessed 订单成交事件类型
const EventTypeOrderProcessed = "ORDER_PROCESSED"

// OrderProcessedEvent 订单成交事件
// 每笔成功结算的订单恰好产生一条，payload 为状态更新后的订单
type OrderProcessedEvent struct {
	Type    string `json:"type"`
	Payload *Order `json:"payload"`
}

// NewOrderProcessedEvent 创建订单成交事件
func NewOrderProcessedEvent(order *Order) *OrderProcessedEvent {
	return &OrderProcessedEvent{
		Type:    EventTypeOrderProcessed,
		Payload: order,
	}
}

// EventPublisher 成交事件发布接口
// fire-and-forget：发布失败由调用方记日志丢弃，不影响结算正确性
type EventPublisher interface {
	Publish(ctx context.Context, event *OrderProcessedEvent) error
}

// TxRunner 在单个持久化事务中执行 fn
// fn 内通过 ctx 取到的仓储操作共享同一事务
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
