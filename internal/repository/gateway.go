package repository

import (
	"context"
	"time"

	apperrors "github.com/wfunc/liar-bar/internal/errors"
	"github.com/wfunc/liar-bar/internal/logger"
	"github.com/wfunc/liar-bar/internal/models"
)

// Gateway 持久化网关
//
// 对局结果与其派生的统计增量在同一事务内提交；结果按 match_id 幂等，
// 增量按 (match_id, player_id) 幂等，重放不会重复计数。
type Gateway interface {
	RecordResult(ctx context.Context, result *models.MatchResult, deltas []StatsDelta) error
	IncrementStatistics(ctx context.Context, delta StatsDelta) (bool, error)
	GetStatistics(ctx context.Context, playerID string) (*models.PlayerStatistics, error)
	Leaderboard(ctx context.Context, limit int) ([]*models.PlayerStatistics, error)
	GetResult(ctx context.Context, matchID string) (*models.MatchResult, error)
}

type gormGateway struct {
	repos *Manager
}

// NewGateway 基于仓储管理器创建持久化网关
func NewGateway(repos *Manager) Gateway {
	return &gormGateway{repos: repos}
}

func (g *gormGateway) RecordResult(ctx context.Context, result *models.MatchResult, deltas []StatsDelta) error {
	start := time.Now()
	err := g.repos.Transaction().WithTransaction(ctx, func(tx *Transaction) error {
		inserted, err := tx.MatchResult().Create(ctx, result)
		if err != nil {
			return err
		}
		if !inserted {
			// 已落库（例如积压重放），统计必然随同一事务提交过
			return nil
		}
		for _, d := range deltas {
			d.MatchID = result.MatchID
			if _, err := tx.Stats().Increment(ctx, d); err != nil {
				return err
			}
		}
		return nil
	})
	logger.LogDatabaseOperation("record_result", models.MatchResult{}.TableName(), time.Since(start), err)
	if err != nil {
		return classify(err, "record result "+result.MatchID)
	}
	return nil
}

func (g *gormGateway) IncrementStatistics(ctx context.Context, delta StatsDelta) (bool, error) {
	return g.repos.Stats().Increment(ctx, delta)
}

func (g *gormGateway) GetStatistics(ctx context.Context, playerID string) (*models.PlayerStatistics, error) {
	stats, err := g.repos.Stats().Get(ctx, playerID)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.New(apperrors.ErrStatsNotFound, playerID)
	}
	return stats, err
}

func (g *gormGateway) Leaderboard(ctx context.Context, limit int) ([]*models.PlayerStatistics, error) {
	return g.repos.Stats().Top(ctx, limit)
}

func (g *gormGateway) GetResult(ctx context.Context, matchID string) (*models.MatchResult, error) {
	result, err := g.repos.MatchResult().GetByMatchID(ctx, matchID)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.New(apperrors.ErrNotFound, "match result "+matchID)
	}
	return result, err
}
