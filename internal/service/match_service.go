package service

import (
	"context"

	apperrors "github.com/wfunc/liar-bar/internal/errors"
	"github.com/wfunc/liar-bar/internal/game"
	"github.com/wfunc/liar-bar/internal/models"
	"github.com/wfunc/liar-bar/internal/repository"
	"go.uber.org/zap"
)

// PlayerProfile 玩家统计与段位
type PlayerProfile struct {
	*models.PlayerStatistics
	Rank   string `json:"rank"`
	InGame string `json:"in_game,omitempty"`
}

// LeaderboardEntry 排行榜条目
type LeaderboardEntry struct {
	Position      int    `json:"position"`
	PlayerID      string `json:"player_id"`
	Score         int    `json:"score"`
	Rank          string `json:"rank"`
	Wins          int    `json:"wins"`
	MatchesPlayed int    `json:"matches_played"`
}

// MatchHistory 玩家历史对局分页
type MatchHistory struct {
	Matches    []*models.MatchResult  `json:"matches"`
	Pagination *repository.Pagination `json:"pagination"`
}

// MatchService 面向适配器的对局服务
type MatchService struct {
	orch    *game.Orchestrator
	stats   *StatsCache
	score   *ScoreRule
	writer  *ResultWriter
	results repository.MatchResultRepository
	log     *zap.Logger
}

// NewMatchService 创建对局服务
func NewMatchService(orch *game.Orchestrator, stats *StatsCache, score *ScoreRule, writer *ResultWriter, results repository.MatchResultRepository, log *zap.Logger) *MatchService {
	if log == nil {
		log = zap.NewNop()
	}
	return &MatchService{orch: orch, stats: stats, score: score, writer: writer, results: results, log: log}
}

// CreateMatch 校验入场积分后创建对局
//
// 存储不可用时跳过积分校验，不影响开局。
func (s *MatchService) CreateMatch(ctx context.Context, players []string) (string, error) {
	for _, p := range players {
		stats, err := s.stats.GetStatistics(ctx, p)
		switch {
		case err == nil:
		case apperrors.Is(err, apperrors.ErrStatsNotFound):
			stats = nil
		case apperrors.Is(err, apperrors.ErrStorageUnavailable):
			s.log.Warn("积分校验跳过：存储不可用", zap.String("player_id", p), zap.Error(err))
			continue
		default:
			return "", err
		}
		if !s.score.CanJoin(stats) {
			return "", apperrors.Newf(apperrors.ErrScoreTooLow, "玩家 %s 积分 %d 低于入场要求", p, stats.Score)
		}
	}
	return s.orch.CreateMatch(ctx, players)
}

// SubmitAction 提交动作
func (s *MatchService) SubmitAction(ctx context.Context, action game.Action) (*game.Outcome, error) {
	return s.orch.SubmitAction(ctx, action)
}

// ForceEnd 强制结束
func (s *MatchService) ForceEnd(ctx context.Context, matchID, reason string) (*game.MatchEvent, error) {
	return s.orch.ForceEndMatch(ctx, matchID, reason)
}

// Snapshot 对局快照
func (s *MatchService) Snapshot(matchID string) (game.Snapshot, error) {
	return s.orch.Snapshot(matchID)
}

// Hand 玩家手牌
func (s *MatchService) Hand(matchID, playerID string) ([]game.Card, error) {
	return s.orch.Hand(matchID, playerID)
}

// Subscribe 订阅对局事件
func (s *MatchService) Subscribe(matchID string) (*game.Subscription, error) {
	return s.orch.Subscribe(matchID)
}

// Profile 玩家统计与段位
func (s *MatchService) Profile(ctx context.Context, playerID string) (*PlayerProfile, error) {
	stats, err := s.stats.GetStatistics(ctx, playerID)
	if err != nil {
		return nil, err
	}
	profile := &PlayerProfile{PlayerStatistics: stats, Rank: s.score.RankTitle(stats.Score)}
	if id, ok := s.orch.Registry().Lookup(playerID); ok {
		profile.InGame = id
	}
	return profile, nil
}

// Leaderboard 排行榜
func (s *MatchService) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	list, err := s.stats.Leaderboard(ctx, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]LeaderboardEntry, len(list))
	for i, st := range list {
		entries[i] = LeaderboardEntry{
			Position:      i + 1,
			PlayerID:      st.PlayerID,
			Score:         st.Score,
			Rank:          s.score.RankTitle(st.Score),
			Wins:          st.Wins,
			MatchesPlayed: st.MatchesPlayed,
		}
	}
	return entries, nil
}

// History 玩家已落库的历史对局，按结束时间倒序
func (s *MatchService) History(ctx context.Context, playerID string, page, pageSize int) (*MatchHistory, error) {
	p := repository.NewPagination(page, pageSize)
	list, err := s.results.ListByPlayer(ctx, playerID, p)
	if err != nil {
		return nil, err
	}
	return &MatchHistory{Matches: list, Pagination: p}, nil
}

// Health 运行状态
func (s *MatchService) Health() map[string]interface{} {
	h := map[string]interface{}{
		"live_matches": s.orch.LiveMatches(),
		"seated":       s.orch.Registry().Count(),
		"subscribers":  s.orch.Bus().Len(),
		"cached_stats": s.stats.Len(),
	}
	if s.writer != nil {
		h["backlog"] = s.writer.BacklogLen()
	}
	return h
}
