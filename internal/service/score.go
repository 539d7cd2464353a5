package service

import (
	"github.com/wfunc/liar-bar/internal/config"
	"github.com/wfunc/liar-bar/internal/models"
	"github.com/wfunc/liar-bar/internal/repository"
)

// DefaultRankTitle 未达任何段位时的称号
const DefaultRankTitle = "Unranked"

// ScoreRule 积分与段位规则
type ScoreRule struct {
	cfg config.ScoreConfig
}

// NewScoreRule 创建积分规则，段位需已按分数升序
func NewScoreRule(cfg config.ScoreConfig) *ScoreRule {
	return &ScoreRule{cfg: cfg}
}

// Bounds 初始分与保底分
func (r *ScoreRule) Bounds() repository.ScoreBounds {
	return repository.ScoreBounds{Initial: r.cfg.Initial, Floor: r.cfg.Floor}
}

// CanJoin 积分是否达到入场门槛，stats为空按初始分计算
func (r *ScoreRule) CanJoin(stats *models.PlayerStatistics) bool {
	score := r.Bounds().StartingScore()
	if stats != nil {
		score = stats.Score
	}
	return score >= r.cfg.MinJoinScore
}

// RankTitle 按积分取段位称号
func (r *ScoreRule) RankTitle(score int) string {
	title := DefaultRankTitle
	for _, tier := range r.cfg.RankTiers {
		if score < tier.MinPoints {
			break
		}
		title = tier.Title
	}
	return title
}

// Deltas 从对局结果派生每名玩家的统计增量
//
// 强制结束、不变量破坏以及未开局的对局只记录结果，不计统计。
func (r *ScoreRule) Deltas(result *models.MatchResult) []repository.StatsDelta {
	if result.Rounds == 0 {
		return nil
	}
	switch result.EndReason {
	case models.EndReasonForced, models.EndReasonInvariant:
		return nil
	}

	winner := result.Winner()
	deltas := make([]repository.StatsDelta, 0, len(result.Participants))
	for _, p := range result.Participants {
		d := repository.StatsDelta{
			MatchID:            result.MatchID,
			PlayerID:           p.PlayerID,
			MatchesPlayed:      1,
			EliminationsCaused: p.EliminationsCaused,
			ShotsSurvived:      p.ShotsSurvived,
			Score:              r.cfg.Join - r.cfg.EntryCost + p.ShotsSurvived*r.cfg.SurviveShot,
		}
		if p.PlayerID == winner {
			d.Wins = 1
			d.Score += r.cfg.Win
		} else {
			d.Losses = 1
			d.Score += r.cfg.Lose
		}
		if p.Eliminated {
			d.EliminationsSuffered = 1
			d.Score += r.cfg.Eliminated
		}
		deltas = append(deltas, d)
	}
	return deltas
}
