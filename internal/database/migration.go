package database

import (
	"fmt"

	"github.com/wfunc/liar-bar/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate(db *gorm.DB, log *zap.Logger) error {
	if db == nil {
		return fmt.Errorf("数据库未初始化")
	}

	if path := sqliteFile(db); path != "" {
		lockFile, err := acquireMigrationLock(path, log)
		if err != nil {
			return fmt.Errorf("获取迁移锁失败: %w", err)
		}
		defer releaseMigrationLock(lockFile, log)
	}

	log.Info("开始数据库迁移...")
	for _, model := range models.All() {
		if err := db.AutoMigrate(model); err != nil {
			log.Error("迁移失败", zap.String("model", fmt.Sprintf("%T", model)), zap.Error(err))
			return err
		}
		log.Debug("迁移成功", zap.String("model", fmt.Sprintf("%T", model)))
	}

	createIndexes(db, log)
	log.Info("数据库迁移完成")
	return nil
}

// createIndexes 创建排行榜查询用的复合索引
func createIndexes(db *gorm.DB, log *zap.Logger) {
	indexes := []struct {
		name  string
		model interface{}
		stmt  string
	}{
		{"idx_stats_score_player", &models.PlayerStatistics{},
			"CREATE INDEX idx_stats_score_player ON liarbar_stats(score, player_id)"},
		{"idx_elimination_match_order", &models.EliminationRecord{},
			"CREATE INDEX idx_elimination_match_order ON liarbar_eliminations(match_id, elimination_order)"},
	}

	for _, idx := range indexes {
		if db.Migrator().HasIndex(idx.model, idx.name) {
			continue
		}
		if err := db.Exec(idx.stmt).Error; err != nil {
			log.Warn("创建索引失败", zap.String("index", idx.name), zap.Error(err))
		}
	}
}
