// Package messaging 提供成交事件发布的 Kafka / Redis 实现
package messaging

import (
	"context"

	"github.com/wyfcoding/exchange/internal/trading/domain"
	"github.com/wyfcoding/exchange/pkg/mq"
)

// KafkaPublisher 将成交事件发布到 Kafka 主题
type KafkaPublisher struct {
	producer *mq.KafkaProducer
	topic    string
}

// NewKafkaPublisher 创建 Kafka 成交事件发布者
func NewKafkaPublisher(producer *mq.KafkaProducer, topic string) domain.EventPublisher {
	return &KafkaPublisher{
		producer: producer,
		topic:    topic,
	}
}

// Publish 发送一条成交事件，key 取订单 ID 以保证同单有序
func (p *KafkaPublisher) Publish(ctx context.Context, event *domain.OrderProcessedEvent) error {
	key := ""
	if event.Payload != nil {
		key = event.Payload.OrderID
	}
	return p.producer.SendMessage(ctx, p.topic, key, event)
}
