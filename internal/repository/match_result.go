package repository

import (
	"context"

	"github.com/wfunc/liar-bar/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MatchResultRepository 对局结果仓储接口
type MatchResultRepository interface {
	BaseRepository
	// Create 写入结果，match_id已存在时返回false且不做任何修改
	Create(ctx context.Context, result *models.MatchResult) (bool, error)
	GetByMatchID(ctx context.Context, matchID string) (*models.MatchResult, error)
	ListByPlayer(ctx context.Context, playerID string, pagination *Pagination) ([]*models.MatchResult, error)
	Count(ctx context.Context) (int64, error)
}

// matchResultRepo 对局结果仓储实现
type matchResultRepo struct {
	*BaseRepo
}

// NewMatchResultRepository 创建对局结果仓储
func NewMatchResultRepository(db *gorm.DB) MatchResultRepository {
	return &matchResultRepo{BaseRepo: NewBaseRepo(db)}
}

func (r *matchResultRepo) Create(ctx context.Context, result *models.MatchResult) (bool, error) {
	db := r.db.WithContext(ctx)

	res := db.Omit(clause.Associations).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "match_id"}}, DoNothing: true}).
		Create(result)
	if res.Error != nil {
		return false, classify(res.Error, "insert match result")
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	for i := range result.Participants {
		result.Participants[i].MatchID = result.MatchID
	}
	for i := range result.Eliminations {
		result.Eliminations[i].MatchID = result.MatchID
	}

	if len(result.Participants) > 0 {
		if err := db.Create(&result.Participants).Error; err != nil {
			return false, classify(err, "insert participants")
		}
	}
	if len(result.Eliminations) > 0 {
		if err := db.Create(&result.Eliminations).Error; err != nil {
			return false, classify(err, "insert eliminations")
		}
	}
	return true, nil
}

func (r *matchResultRepo) GetByMatchID(ctx context.Context, matchID string) (*models.MatchResult, error) {
	var result models.MatchResult
	err := r.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("seat ASC") }).
		Preload("Eliminations", func(db *gorm.DB) *gorm.DB { return db.Order("elimination_order ASC") }).
		Where("match_id = ?", matchID).
		First(&result).Error
	if err != nil {
		return nil, classify(err, "get match result")
	}
	return &result, nil
}

// ListByPlayer 玩家参与过的对局，按结束时间倒序
func (r *matchResultRepo) ListByPlayer(ctx context.Context, playerID string, pagination *Pagination) ([]*models.MatchResult, error) {
	query := func() *gorm.DB {
		sub := r.db.Model(&models.MatchParticipant{}).Select("match_id").Where("player_id = ?", playerID)
		return r.db.WithContext(ctx).Model(&models.MatchResult{}).Where("match_id IN (?)", sub)
	}

	if err := query().Count(&pagination.Total).Error; err != nil {
		return nil, classify(err, "count player matches")
	}

	var results []*models.MatchResult
	err := query().
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("seat ASC") }).
		Order("ended_at DESC").
		Scopes(Paginate(pagination)).
		Find(&results).Error
	if err != nil {
		return nil, classify(err, "list player matches")
	}
	return results, nil
}

func (r *matchResultRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.MatchResult{}).Count(&n).Error; err != nil {
		return 0, classify(err, "count match results")
	}
	return n, nil
}
