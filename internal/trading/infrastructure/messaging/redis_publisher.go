package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wyfcoding/exchange/internal/trading/domain"
)

// RedisPublisher 将成交事件发布到 Redis pub/sub 频道
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisPublisher 创建 Redis 成交事件发布者
func NewRedisPublisher(client redis.UniversalClient, channel string) domain.EventPublisher {
	return &RedisPublisher{
		client:  client,
		channel: channel,
	}
}

// Publish 发送一条成交事件
func (p *RedisPublisher) Publish(ctx context.Context, event *domain.OrderProcessedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal fill event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish fill event: %w", err)
	}
	return nil
}
