package repository

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"
)

// TransactionManager 事务管理器接口
type TransactionManager interface {
	// Begin 开始事务
	Begin(ctx context.Context) (*Transaction, error)
	// WithTransaction 在事务中执行函数，fn返回错误时回滚
	WithTransaction(ctx context.Context, fn func(tx *Transaction) error) error
	// WithTransactionOptions 使用选项在事务中执行函数
	WithTransactionOptions(ctx context.Context, opts *TxOptions, fn func(tx *Transaction) error) error
}

// TxOptions 事务选项
type TxOptions struct {
	// IsolationLevel 事务隔离级别，sqlite忽略
	IsolationLevel sql.IsolationLevel
	// ReadOnly 是否只读事务
	ReadOnly bool
}

// Transaction 事务包装器
type Transaction struct {
	tx         *gorm.DB
	ctx        context.Context
	bounds     ScoreBounds
	committed  bool
	rolledback bool

	// 事务中的仓储实例
	matchResult MatchResultRepository
	stats       StatsRepository
}

// txManager 事务管理器实现
type txManager struct {
	db     *gorm.DB
	bounds ScoreBounds
}

// NewTransactionManager 创建事务管理器
func NewTransactionManager(db *gorm.DB, bounds ScoreBounds) TransactionManager {
	return &txManager{db: db, bounds: bounds}
}

func (m *txManager) Begin(ctx context.Context) (*Transaction, error) {
	return m.begin(ctx, nil)
}

func (m *txManager) begin(ctx context.Context, opts *TxOptions) (*Transaction, error) {
	var sqlOpts *sql.TxOptions
	if opts != nil && m.db.Dialector.Name() != "sqlite" {
		sqlOpts = &sql.TxOptions{Isolation: opts.IsolationLevel, ReadOnly: opts.ReadOnly}
	}

	tx := m.db.WithContext(ctx).Begin(sqlOpts)
	if tx.Error != nil {
		return nil, classify(tx.Error, "begin transaction")
	}
	return &Transaction{tx: tx, ctx: ctx, bounds: m.bounds}, nil
}

func (m *txManager) WithTransaction(ctx context.Context, fn func(tx *Transaction) error) error {
	return m.WithTransactionOptions(ctx, nil, fn)
}

func (m *txManager) WithTransactionOptions(ctx context.Context, opts *TxOptions, fn func(tx *Transaction) error) error {
	tx, err := m.begin(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
		if !tx.committed && !tx.rolledback {
			tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Commit 提交事务
func (t *Transaction) Commit() error {
	if t.committed {
		return fmt.Errorf("事务已提交")
	}
	if t.rolledback {
		return fmt.Errorf("事务已回滚")
	}
	if err := t.tx.Commit().Error; err != nil {
		return classify(err, "commit")
	}
	t.committed = true
	return nil
}

// Rollback 回滚事务
func (t *Transaction) Rollback() error {
	if t.committed {
		return fmt.Errorf("事务已提交，无法回滚")
	}
	if t.rolledback {
		return fmt.Errorf("事务已回滚")
	}
	if err := t.tx.Rollback().Error; err != nil {
		return err
	}
	t.rolledback = true
	return nil
}

// GetDB 获取事务中的数据库实例
func (t *Transaction) GetDB() *gorm.DB {
	return t.tx
}

// MatchResult 获取事务中的对局结果仓储
func (t *Transaction) MatchResult() MatchResultRepository {
	if t.matchResult == nil {
		t.matchResult = &matchResultRepo{BaseRepo: &BaseRepo{db: t.tx}}
	}
	return t.matchResult
}

// Stats 获取事务中的统计仓储
func (t *Transaction) Stats() StatsRepository {
	if t.stats == nil {
		t.stats = &statsRepo{BaseRepo: &BaseRepo{db: t.tx}, bounds: t.bounds}
	}
	return t.stats
}
