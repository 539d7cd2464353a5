package service

import (
	"context"
	"time"

	"github.com/wfunc/liar-bar/internal/config"
	"github.com/wfunc/liar-bar/internal/game"
	"github.com/wfunc/liar-bar/internal/logger"
	"github.com/wfunc/liar-bar/internal/models"
	"github.com/wfunc/liar-bar/internal/repository"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options 可替换的组件，测试中注入确定性的发牌与随机源
type Options struct {
	Dealer  game.Dealer
	Random  game.RandomSource
	Gateway repository.Gateway
	Clock   func() time.Time
}

// Services 服务集合
type Services struct {
	Repos        *repository.Manager
	Gateway      repository.Gateway
	Score        *ScoreRule
	Stats        *StatsCache
	Writer       *ResultWriter
	Orchestrator *game.Orchestrator
	Match        *MatchService
}

// LimitsFromConfig 对局参数
func LimitsFromConfig(cfg config.MatchConfig) game.Limits {
	return game.Limits{
		MinPlayers:    cfg.MinPlayers,
		MaxPlayers:    cfg.MaxPlayers,
		StartingLives: cfg.StartingLives,
		HandSize:      cfg.HandSize,
		MinClaimCards: cfg.MinClaimCards,
		MaxClaimCards: cfg.MaxClaimCards,
	}
}

// NewServices 创建服务集合
func NewServices(db *gorm.DB, cfg *config.Config, log *zap.Logger, opts Options) (*Services, error) {
	if log == nil {
		log = zap.NewNop()
	}

	score := NewScoreRule(cfg.Score)
	repos := repository.NewManager(db, score.Bounds())
	gw := opts.Gateway
	if gw == nil {
		gw = repository.NewGateway(repos)
	}

	rnd := opts.Random
	if rnd == nil {
		rnd = game.NewRandomSource(uint64(time.Now().UnixNano()))
	}
	rule, err := game.RuleByName(cfg.Match.Rule, rnd)
	if err != nil {
		return nil, err
	}
	dealer := opts.Dealer
	if dealer == nil {
		dealer = game.NewRandomDealer(rnd)
	}

	stats := NewStatsCache(gw, cfg.Cache, log.Named("cache"))
	writer := NewResultWriter(gw, stats, score, cfg.Persistence, log.Named("persistence"))
	orch := game.NewOrchestrator(game.OrchestratorConfig{
		Limits: LimitsFromConfig(cfg.Match),
		Rule:   rule,
		Dealer: dealer,
		Bus:    game.NewEventBus(cfg.Match.EventQueueCapacity, log.Named("events")),
		Sink:   writer,
		Logger: log.Named("orchestrator"),
		Clock:  opts.Clock,
	})
	orch.OnMatchEnded(func(r *models.MatchResult) {
		logger.LogMatchEvent("match_persisted", r.MatchID, map[string]interface{}{
			"winner":      r.Winner(),
			"reason":      r.EndReason,
			"rounds":      r.Rounds,
			"duration_ms": r.DurationMs,
		})
	})

	return &Services{
		Repos:        repos,
		Gateway:      gw,
		Score:        score,
		Stats:        stats,
		Writer:       writer,
		Orchestrator: orch,
		Match:        NewMatchService(orch, stats, score, writer, repos.MatchResult(), log.Named("match")),
	}, nil
}

// Start 启动后台任务
func (s *Services) Start() {
	s.Writer.Start()
}

// Shutdown 结束所有对局并尽力落库积压
func (s *Services) Shutdown(ctx context.Context) error {
	s.Orchestrator.Shutdown(ctx)
	return multierr.Combine(s.Writer.Close(ctx))
}
