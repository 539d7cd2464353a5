package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/liar-bar/internal/errors"
	"github.com/wfunc/liar-bar/internal/models"
)

func newTestGateway(t *testing.T) (Gateway, *Manager) {
	db := newTestDB(t)
	repos := NewManager(db, testBounds)
	return NewGateway(repos), repos
}

func TestGateway_RecordResultCommitsStats(t *testing.T) {
	gw, repos := newTestGateway(t)
	ctx := context.Background()

	require.NoError(t, gw.RecordResult(ctx, sampleResult("m1"), sampleDeltas()))

	result, err := gw.GetResult(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "p3", result.Winner())
	require.Len(t, result.Eliminations, 2)
	assert.Equal(t, "p1", result.Eliminations[0].PlayerID)
	assert.Equal(t, "p2", result.Eliminations[1].PlayerID)
	require.Len(t, result.Participants, 3)
	assert.Equal(t, 2, result.Participants[1].ShotsSurvived)

	winner, err := gw.GetStatistics(ctx, "p3")
	require.NoError(t, err)
	assert.Equal(t, 250, winner.Score)
	assert.Equal(t, 2, winner.EliminationsCaused)

	n, err := repos.MatchResult().Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestGateway_RecordResultIsIdempotent(t *testing.T) {
	gw, repos := newTestGateway(t)
	ctx := context.Background()

	require.NoError(t, gw.RecordResult(ctx, sampleResult("m1"), sampleDeltas()))
	require.NoError(t, gw.RecordResult(ctx, sampleResult("m1"), sampleDeltas()))

	n, err := repos.MatchResult().Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	stats, err := gw.GetStatistics(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MatchesPlayed)
	assert.Equal(t, 150, stats.Score)
}

func TestGateway_RecordResultIsAtomic(t *testing.T) {
	gw, repos := newTestGateway(t)
	ctx := context.Background()

	// 统计表缺失，增量失败，结果也不应落库
	require.NoError(t, repos.GetDB().Migrator().DropTable(&models.PlayerStatistics{}))

	err := gw.RecordResult(ctx, sampleResult("m1"), sampleDeltas())
	require.Error(t, err)

	n, err := repos.MatchResult().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	var keys int64
	require.NoError(t, repos.GetDB().Model(&models.StatsIdempotencyKey{}).Count(&keys).Error)
	assert.Zero(t, keys)
}

func TestGateway_StorageUnavailable(t *testing.T) {
	gw, repos := newTestGateway(t)
	sqlDB, err := repos.GetDB().DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	err = gw.RecordResult(context.Background(), sampleResult("m1"), sampleDeltas())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrStorageUnavailable), err.Error())
	assert.True(t, apperrors.IsRetryable(err))
}

func TestGateway_GetStatisticsNotFound(t *testing.T) {
	gw, _ := newTestGateway(t)

	_, err := gw.GetStatistics(context.Background(), "ghost")
	assert.True(t, apperrors.Is(err, apperrors.ErrStatsNotFound))

	_, err = gw.GetResult(context.Background(), "ghost-match")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestGateway_IncrementStatisticsOnce(t *testing.T) {
	gw, _ := newTestGateway(t)
	ctx := context.Background()

	delta := StatsDelta{MatchID: "m9", PlayerID: "p1", MatchesPlayed: 1}
	applied, err := gw.IncrementStatistics(ctx, delta)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = gw.IncrementStatistics(ctx, delta)
	require.NoError(t, err)
	assert.False(t, applied)

	board, err := gw.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, 1, board[0].MatchesPlayed)
}
