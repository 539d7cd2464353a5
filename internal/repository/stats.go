package repository

import (
	"context"
	"time"

	"github.com/wfunc/liar-bar/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatsDelta 单个玩家在一场对局中的统计增量
type StatsDelta struct {
	MatchID              string `json:"match_id"`
	PlayerID             string `json:"player_id"`
	Score                int    `json:"score"`
	MatchesPlayed        int    `json:"matches_played"`
	Wins                 int    `json:"wins"`
	Losses               int    `json:"losses"`
	EliminationsCaused   int    `json:"eliminations_caused"`
	EliminationsSuffered int    `json:"eliminations_suffered"`
	ShotsSurvived        int    `json:"shots_survived"`
}

// ScoreBounds 新玩家初始积分与积分下限
type ScoreBounds struct {
	Initial int
	Floor   int
}

// StartingScore 新玩家落库时的积分
func (b ScoreBounds) StartingScore() int {
	if b.Initial < b.Floor {
		return b.Floor
	}
	return b.Initial
}

// StatsRepository 玩家统计仓储接口
type StatsRepository interface {
	BaseRepository
	// Increment 原子增量，同一 (match_id, player_id) 只生效一次；返回是否实际生效
	Increment(ctx context.Context, delta StatsDelta) (bool, error)
	Get(ctx context.Context, playerID string) (*models.PlayerStatistics, error)
	Top(ctx context.Context, limit int) ([]*models.PlayerStatistics, error)
}

// statsRepo 玩家统计仓储实现
type statsRepo struct {
	*BaseRepo
	bounds ScoreBounds
}

// NewStatsRepository 创建玩家统计仓储
func NewStatsRepository(db *gorm.DB, bounds ScoreBounds) StatsRepository {
	return &statsRepo{BaseRepo: NewBaseRepo(db), bounds: bounds}
}

func (r *statsRepo) Increment(ctx context.Context, delta StatsDelta) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		applied, err = r.apply(tx, delta)
		return err
	})
	if err != nil {
		return false, classify(err, "increment statistics")
	}
	return applied, nil
}

// apply 在给定事务内执行：幂等键 → 确保行存在 → 表达式自增
func (r *statsRepo) apply(tx *gorm.DB, d StatsDelta) (bool, error) {
	key := models.StatsIdempotencyKey{MatchID: d.MatchID, PlayerID: d.PlayerID}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "match_id"}, {Name: "player_id"}},
		DoNothing: true,
	}).Create(&key)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	row := models.PlayerStatistics{PlayerID: d.PlayerID, Score: r.bounds.StartingScore()}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "player_id"}},
		DoNothing: true,
	}).Create(&row).Error; err != nil {
		return false, err
	}

	greatest := "GREATEST"
	if tx.Dialector.Name() == "sqlite" {
		greatest = "MAX"
	}

	updates := map[string]interface{}{
		"score":                 gorm.Expr(greatest+"(score + ?, ?)", d.Score, r.bounds.Floor),
		"matches_played":        gorm.Expr("matches_played + ?", d.MatchesPlayed),
		"wins":                  gorm.Expr("wins + ?", d.Wins),
		"losses":                gorm.Expr("losses + ?", d.Losses),
		"eliminations_caused":   gorm.Expr("eliminations_caused + ?", d.EliminationsCaused),
		"eliminations_suffered": gorm.Expr("eliminations_suffered + ?", d.EliminationsSuffered),
		"shots_survived":        gorm.Expr("shots_survived + ?", d.ShotsSurvived),
		"updated_at":            time.Now(),
	}
	// 赋值按列名排序执行，best_win_streak 先于 current_win_streak 读取旧值
	switch {
	case d.Wins > 0:
		updates["current_win_streak"] = gorm.Expr("current_win_streak + 1")
		updates["best_win_streak"] = gorm.Expr(
			"CASE WHEN current_win_streak + 1 > best_win_streak THEN current_win_streak + 1 ELSE best_win_streak END")
	case d.Losses > 0:
		updates["current_win_streak"] = 0
	}

	if err := tx.Model(&models.PlayerStatistics{}).
		Where("player_id = ?", d.PlayerID).
		Updates(updates).Error; err != nil {
		return false, err
	}
	return true, nil
}

func (r *statsRepo) Get(ctx context.Context, playerID string) (*models.PlayerStatistics, error) {
	var stats models.PlayerStatistics
	if err := r.db.WithContext(ctx).Where("player_id = ?", playerID).First(&stats).Error; err != nil {
		return nil, classify(err, "get statistics")
	}
	return &stats, nil
}

// Top 积分排行榜
func (r *statsRepo) Top(ctx context.Context, limit int) ([]*models.PlayerStatistics, error) {
	if limit <= 0 {
		limit = 10
	}
	var list []*models.PlayerStatistics
	err := r.db.WithContext(ctx).
		Order("score DESC").
		Order("player_id ASC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, classify(err, "top statistics")
	}
	return list, nil
}
