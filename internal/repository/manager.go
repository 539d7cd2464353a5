package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Manager 仓储管理器，提供所有仓储的统一访问接口
type Manager struct {
	db     *gorm.DB
	bounds ScoreBounds

	txManager TransactionManager

	// 仓储实例（懒加载）
	matchResultOnce sync.Once
	matchResult     MatchResultRepository

	statsOnce sync.Once
	stats     StatsRepository
}

// NewManager 创建仓储管理器
func NewManager(db *gorm.DB, bounds ScoreBounds) *Manager {
	return &Manager{
		db:        db,
		bounds:    bounds,
		txManager: NewTransactionManager(db, bounds),
	}
}

// GetDB 获取数据库实例
func (m *Manager) GetDB() *gorm.DB {
	return m.db
}

// Transaction 获取事务管理器
func (m *Manager) Transaction() TransactionManager {
	return m.txManager
}

// MatchResult 获取对局结果仓储
func (m *Manager) MatchResult() MatchResultRepository {
	m.matchResultOnce.Do(func() {
		m.matchResult = NewMatchResultRepository(m.db)
	})
	return m.matchResult
}

// Stats 获取统计仓储
func (m *Manager) Stats() StatsRepository {
	m.statsOnce.Do(func() {
		m.stats = NewStatsRepository(m.db, m.bounds)
	})
	return m.stats
}
