// Package mysql 提供交易领域仓储接口的 MySQL GORM 实现
package mysql

import (
	"context"

	"gorm.io/gorm"
)

type txKey struct{}

// TxRunner domain.TxRunner 的 GORM 实现。
// fn 内通过同一 ctx 构造的仓储操作共享事务，任一失败整体回滚。
type TxRunner struct {
	db *gorm.DB
}

// NewTxRunner 创建事务执行器
func NewTxRunner(db *gorm.DB) *TxRunner {
	return &TxRunner{db: db}
}

// WithTx 在单个数据库事务中执行 fn
func (r *TxRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// dbFromContext 取出 ctx 携带的事务，没有则回退到默认连接
func dbFromContext(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return fallback
}
