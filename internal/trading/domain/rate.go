package domain

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ExchangeRate 交易对最新行情
// 快照按轮整体刷新、读取，不做局部更新
type ExchangeRate struct {
	gorm.Model
	// 交易对（如 USDT_BTC）
	Pair string `gorm:"column:pair;type:varchar(20);uniqueIndex;not null" json:"pair"`
	// 最新成交价
	LastPrice decimal.Decimal `gorm:"column:last_price;type:decimal(32,18);not null" json:"last_price"`
	// 基准货币成交量
	BaseVolume decimal.Decimal `gorm:"column:base_volume;type:decimal(32,18);default:0;not null" json:"base_volume"`
}

// TableName 表名
func (ExchangeRate) TableName() string {
	return "exchange_rates"
}

// RateRepository 行情仓储接口
type RateRepository interface {
	// Latest 返回全部交易对的最新行情快照
	Latest(ctx context.Context) ([]*ExchangeRate, error)
	// Upsert 批量写入/更新行情
	Upsert(ctx context.Context, rates []*ExchangeRate) error
}
