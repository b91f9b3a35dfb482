// Package persistence 组合多种存储实现为单一仓储
package persistence

import (
	"context"

	"github.com/wyfcoding/exchange/internal/trading/domain"
	"github.com/wyfcoding/exchange/pkg/logger"
)

// CompositeRateRepository 读优先走 Redis 读模型，缺失或失败时回退 MySQL；
// 写入先落 MySQL，再尽力刷新 Redis。
type CompositeRateRepository struct {
	primary domain.RateRepository // mysql
	cache   domain.RateRepository // redis
}

// NewCompositeRateRepository 创建组合行情仓储
func NewCompositeRateRepository(primary, cache domain.RateRepository) *CompositeRateRepository {
	return &CompositeRateRepository{primary: primary, cache: cache}
}

// Latest 返回最新行情快照
func (r *CompositeRateRepository) Latest(ctx context.Context) ([]*domain.ExchangeRate, error) {
	if r.cache != nil {
		rates, err := r.cache.Latest(ctx)
		if err == nil && len(rates) > 0 {
			return rates, nil
		}
		if err != nil {
			logger.Warn(ctx, "rate cache read failed, falling back to primary", "error", err)
		}
	}
	return r.primary.Latest(ctx)
}

// Upsert 写入行情
func (r *CompositeRateRepository) Upsert(ctx context.Context, rates []*domain.ExchangeRate) error {
	if err := r.primary.Upsert(ctx, rates); err != nil {
		return err
	}
	if r.cache != nil {
		if err := r.cache.Upsert(ctx, rates); err != nil {
			logger.Warn(ctx, "rate cache refresh failed", "error", err)
		}
	}
	return nil
}
