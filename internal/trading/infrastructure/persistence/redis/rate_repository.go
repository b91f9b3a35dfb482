// Package redis 提供行情读模型的 Redis 实现
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wyfcoding/exchange/internal/trading/domain"
)

const ratesKey = "trading:rates"

// RateRedisRepository 基于 Redis hash 的行情读模型。
// 撮合轮从这里整体读取快照，避免每轮打到 MySQL。
type RateRedisRepository struct {
	client redis.UniversalClient
}

// NewRateRedisRepository 创建 Redis 行情仓储
func NewRateRedisRepository(client redis.UniversalClient) *RateRedisRepository {
	return &RateRedisRepository{client: client}
}

// Latest 读取全部交易对行情
func (r *RateRedisRepository) Latest(ctx context.Context) ([]*domain.ExchangeRate, error) {
	entries, err := r.client.HGetAll(ctx, ratesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read rates from redis: %w", err)
	}

	rates := make([]*domain.ExchangeRate, 0, len(entries))
	for pair, raw := range entries {
		var rate domain.ExchangeRate
		if err := json.Unmarshal([]byte(raw), &rate); err != nil {
			return nil, fmt.Errorf("failed to unmarshal rate for %s: %w", pair, err)
		}
		rates = append(rates, &rate)
	}
	return rates, nil
}

// Upsert 批量写入行情
func (r *RateRedisRepository) Upsert(ctx context.Context, rates []*domain.ExchangeRate) error {
	if len(rates) == 0 {
		return nil
	}

	fields := make(map[string]any, len(rates))
	for _, rate := range rates {
		data, err := json.Marshal(rate)
		if err != nil {
			return fmt.Errorf("failed to marshal rate for %s: %w", rate.Pair, err)
		}
		fields[rate.Pair] = data
	}

	if err := r.client.HSet(ctx, ratesKey, fields).Err(); err != nil {
		return fmt.Errorf("failed to write rates to redis: %w", err)
	}
	return nil
}
