package mysql

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/wyfcoding/exchange/internal/trading/domain"
)

// accountRepository domain.AccountRepository 的 GORM 实现
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository 创建账户仓储实例
func NewAccountRepository(db *gorm.DB) domain.AccountRepository {
	return &accountRepository{db: db}
}

// Save 保存账户（按用户 + 货币幂等）
func (r *accountRepository) Save(ctx context.Context, account *domain.Account) error {
	err := dbFromContext(ctx, r.db).WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "currency"}},
		DoUpdates: clause.AssignmentColumns([]string{"available_balance", "reserved_balance"}),
	}).Create(account).Error
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// Get 获取用户某币种账户
func (r *accountRepository) Get(ctx context.Context, userID, currency string) (*domain.Account, error) {
	var account domain.Account
	err := dbFromContext(ctx, r.db).WithContext(ctx).
		Where("user_id = ? AND currency = ?", userID, currency).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// ListByUser 获取用户全部币种账户
func (r *accountRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Account, error) {
	var accounts []*domain.Account
	err := dbFromContext(ctx, r.db).WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&accounts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// AdjustBalances 在一个事务内完成两腿调整：
// credit 腿累加 available_balance，debit 腿扣减 reserved_balance。
// 任一腿账户行缺失时整体回滚并返回 ErrAccountNotFound。
func (r *accountRepository) AdjustBalances(ctx context.Context, userID string, adj domain.BalanceAdjustment) error {
	run := func(tx *gorm.DB) error {
		if err := r.increment(tx, userID, adj.CreditCurrency, "available_balance", adj.CreditAmount); err != nil {
			return err
		}
		return r.increment(tx, userID, adj.DebitCurrency, "reserved_balance", adj.DebitAmount.Neg())
	}

	// 已处于外层事务时直接复用，两腿仍然原子
	db := dbFromContext(ctx, nil)
	if db != nil {
		return run(db.WithContext(ctx))
	}
	return r.db.WithContext(ctx).Transaction(run)
}

// Reserve 挂单冻结：available → reserved，余额不足时拒绝
func (r *accountRepository) Reserve(ctx context.Context, userID, currency string, amount decimal.Decimal) error {
	result := dbFromContext(ctx, r.db).WithContext(ctx).Model(&domain.Account{}).
		Where("user_id = ? AND currency = ? AND available_balance >= ?", userID, currency, amount).
		Updates(map[string]any{
			"available_balance": gorm.Expr("available_balance - ?", amount),
			"reserved_balance":  gorm.Expr("reserved_balance + ?", amount),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to reserve balance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := r.Get(ctx, userID, currency); err != nil {
			return err
		}
		return domain.ErrInsufficientBalance
	}
	return nil
}

// Release 撤单解冻：reserved → available
func (r *accountRepository) Release(ctx context.Context, userID, currency string, amount decimal.Decimal) error {
	result := dbFromContext(ctx, r.db).WithContext(ctx).Model(&domain.Account{}).
		Where("user_id = ? AND currency = ?", userID, currency).
		Updates(map[string]any{
			"available_balance": gorm.Expr("available_balance + ?", amount),
			"reserved_balance":  gorm.Expr("reserved_balance - ?", amount),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to release balance: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// increment 对单个账户行的指定余额列做原子增量，行缺失返回 ErrAccountNotFound
func (r *accountRepository) increment(tx *gorm.DB, userID, currency, column string, delta decimal.Decimal) error {
	result := tx.Model(&domain.Account{}).
		Where("user_id = ? AND currency = ?", userID, currency).
		Update(column, gorm.Expr(column+" + ?", delta))
	if result.Error != nil {
		return fmt.Errorf("failed to adjust %s for %s/%s: %w", column, userID, currency, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s/%s", domain.ErrAccountNotFound, userID, currency)
	}
	return nil
}
