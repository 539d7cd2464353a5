package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wfunc/liar-bar/internal/config"
	apperrors "github.com/wfunc/liar-bar/internal/errors"
	"github.com/wfunc/liar-bar/internal/game"
	"github.com/wfunc/liar-bar/internal/models"
	"github.com/wfunc/liar-bar/internal/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB 每个测试独立的内存数据库
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Match: config.MatchConfig{
			MinPlayers:         2,
			MaxPlayers:         4,
			StartingLives:      1,
			HandSize:           5,
			MinClaimCards:      1,
			MaxClaimCards:      3,
			Rule:               "truth",
			EventQueueCapacity: 64,
		},
		Persistence: config.PersistenceConfig{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
			Multiplier:      2,
			ReplayInterval:  time.Hour,
			BacklogCapacity: 8,
		},
		Cache: config.CacheConfig{Enabled: true, Size: 64, TTL: time.Minute},
		Score: testScore(),
	}
}

func testScore() config.ScoreConfig {
	return config.ScoreConfig{
		Initial:      200,
		Floor:        50,
		MinJoinScore: 50,
		EntryCost:    50,
		Win:          100,
		RankTiers: []config.RankTier{
			{MinPoints: 0, Title: "Bronze"},
			{MinPoints: 300, Title: "Silver"},
			{MinPoints: 600, Title: "Gold"},
		},
	}
}

func newTestGateway(t *testing.T) repository.Gateway {
	t.Helper()
	return gatewayFor(newTestDB(t))
}

func gatewayFor(db *gorm.DB) repository.Gateway {
	score := NewScoreRule(testScore())
	return repository.NewGateway(repository.NewManager(db, score.Bounds()))
}

// flakyGateway 按需注入存储故障
type flakyGateway struct {
	repository.Gateway

	failRecords atomic.Int32
	recordErr   error
	failReads   atomic.Bool

	recordCalls atomic.Int32
	readCalls   atomic.Int32
}

func newFlakyGateway(inner repository.Gateway) *flakyGateway {
	return &flakyGateway{
		Gateway:   inner,
		recordErr: apperrors.New(apperrors.ErrStorageUnavailable, "database is locked"),
	}
}

func (g *flakyGateway) RecordResult(ctx context.Context, result *models.MatchResult, deltas []repository.StatsDelta) error {
	g.recordCalls.Add(1)
	if g.failRecords.Load() != 0 {
		g.failRecords.Add(-1)
		return g.recordErr
	}
	return g.Gateway.RecordResult(ctx, result, deltas)
}

func (g *flakyGateway) GetStatistics(ctx context.Context, playerID string) (*models.PlayerStatistics, error) {
	g.readCalls.Add(1)
	if g.failReads.Load() {
		return nil, apperrors.New(apperrors.ErrStorageUnavailable, "read "+playerID)
	}
	return g.Gateway.GetStatistics(ctx, playerID)
}

// bluffDealer 桌面牌为A，所有人只有Q
type bluffDealer struct{}

func (bluffDealer) Deal(players, handSize int) game.RoundDeal {
	hands := make([][]game.Card, players)
	for i := range hands {
		hands[i] = make([]game.Card, handSize)
		for j := range hands[i] {
			hands[i][j] = game.Card{Rank: game.RankQueen}
		}
	}
	return game.RoundDeal{TableRank: game.RankAce, Hands: hands}
}

// newTestServices gw 为空时使用 db 上的真实网关
func newTestServices(t *testing.T, cfg *config.Config, db *gorm.DB, gw repository.Gateway) *Services {
	t.Helper()
	svcs, err := NewServices(db, cfg, nil, Options{Dealer: bluffDealer{}, Gateway: gw})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svcs.Shutdown(ctx)
	})
	return svcs
}

// playLosingBluff 两人局：first 撒谎被 second 质疑后出局
func playLosingBluff(t *testing.T, ms *MatchService, first, second string) string {
	t.Helper()
	ctx := context.Background()

	id, err := ms.CreateMatch(ctx, []string{first, second})
	require.NoError(t, err)

	steps := []game.Action{
		{PlayerID: first, Kind: game.ActionStart, Seq: 1},
		{PlayerID: first, Kind: game.ActionDeclareClaim, Seq: 2, Cards: []int{0}},
		{PlayerID: second, Kind: game.ActionChallenge, Seq: 1},
		{PlayerID: game.SystemActor, Kind: game.ActionResolveAck, Seq: 1},
	}
	for _, a := range steps {
		a.MatchID = id
		out, err := ms.SubmitAction(ctx, a)
		require.NoError(t, err)
		require.True(t, out.Verdict.Accepted, "%s %s: %s", a.PlayerID, a.Kind, out.Verdict.Detail)
	}
	return id
}
