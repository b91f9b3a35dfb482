package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrAccountNotFound 账户（用户 + 货币）不存在
var ErrAccountNotFound = errors.New("account not found")

// ErrInsufficientBalance 可用余额不足，无法冻结
var ErrInsufficientBalance = errors.New("insufficient available balance")

// Account 资金账户实体，每行对应一个 (用户, 货币)
// available + reserved 只通过结算调整或充提变动，撮合引擎只做 reserved↔available 转移
type Account struct {
	gorm.Model
	// 用户 ID
	UserID string `gorm:"column:user_id;type:varchar(32);uniqueIndex:idx_user_currency;not null" json:"user_id"`
	// 货币（如 USD, BTC）
	Currency string `gorm:"column:currency;type:varchar(10);uniqueIndex:idx_user_currency;not null" json:"currency"`
	// 可用余额
	AvailableBalance decimal.Decimal `gorm:"column:available_balance;type:decimal(32,18);default:0;not null" json:"available_balance"`
	// 挂单冻结余额
	ReservedBalance decimal.Decimal `gorm:"column:reserved_balance;type:decimal(32,18);default:0;not null" json:"reserved_balance"`
}

// TableName 表名
func (Account) TableName() string {
	return "accounts"
}

// BalanceAdjustment 一次结算的两腿余额调整
// credit 记入可用余额，debit 从冻结余额扣减，两腿必须原子生效
type BalanceAdjustment struct {
	// 入账货币
	CreditCurrency string
	// 入账金额（已扣除手续费）
	CreditAmount decimal.Decimal
	// 扣减货币
	DebitCurrency string
	// 扣减金额（与挂单时冻结额一致，不按手续费缩放）
	DebitAmount decimal.Decimal
}

// AccountRepository 账户仓储接口
type AccountRepository interface {
	// Save 保存账户
	Save(ctx context.Context, account *Account) error
	// Get 获取用户某币种账户，不存在时返回 ErrAccountNotFound
	Get(ctx context.Context, userID, currency string) (*Account, error)
	// ListByUser 获取用户全部币种账户
	ListByUser(ctx context.Context, userID string) ([]*Account, error)
	// AdjustBalances 对同一用户执行两腿余额调整：
	// credit 腿累加 available，debit 腿扣减 reserved，两腿在一个事务内生效。
	// 任一腿对应账户行不存在返回 ErrAccountNotFound，且两腿均不生效。
	AdjustBalances(ctx context.Context, userID string, adj BalanceAdjustment) error
	// Reserve 将 amount 从可用余额转入冻结余额（挂单冻结）
	Reserve(ctx context.Context, userID, currency string, amount decimal.Decimal) error
	// Release 将 amount 从冻结余额转回可用余额（撤单解冻）
	Release(ctx context.Context, userID, currency string, amount decimal.Decimal) error
}
