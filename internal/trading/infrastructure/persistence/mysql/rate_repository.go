package mysql

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/exchange/internal/trading/domain"
)

// rateRepository domain.RateRepository 的 GORM 实现
type rateRepository struct {
	db *gorm.DB
}

// NewRateRepository 创建行情仓储实例
func NewRateRepository(db *gorm.DB) domain.RateRepository {
	return &rateRepository{db: db}
}

// Latest 返回全部交易对的最新行情
func (r *rateRepository) Latest(ctx context.Context) ([]*domain.ExchangeRate, error) {
	var rates []*domain.ExchangeRate
	if err := r.db.WithContext(ctx).Find(&rates).Error; err != nil {
		return nil, fmt.Errorf("failed to load exchange rates: %w", err)
	}
	return rates, nil
}

// Upsert 按交易对批量写入/更新行情
func (r *rateRepository) Upsert(ctx context.Context, rates []*domain.ExchangeRate) error {
	if len(rates) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pair"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_price", "base_volume"}),
	}).Create(rates).Error
	if err != nil {
		return fmt.Errorf("failed to upsert exchange rates: %w", err)
	}
	return nil
}
