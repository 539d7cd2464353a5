package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/liar-bar/internal/errors"
)

func TestStatsRepository_IncrementCreatesRow(t *testing.T) {
	db := newTestDB(t)
	repo := NewStatsRepository(db, testBounds)
	ctx := context.Background()

	applied, err := repo.Increment(ctx, StatsDelta{
		MatchID: "m1", PlayerID: "alice", MatchesPlayed: 1, Wins: 1, Score: 100,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	stats, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 300, stats.Score)
	assert.Equal(t, 1, stats.MatchesPlayed)
	assert.Equal(t, 1, stats.Wins)
	assert.Equal(t, 1, stats.CurrentWinStreak)
	assert.Equal(t, 1, stats.BestWinStreak)
}

func TestStatsRepository_IncrementIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewStatsRepository(db, testBounds)
	ctx := context.Background()

	delta := StatsDelta{MatchID: "m1", PlayerID: "bob", MatchesPlayed: 1, Losses: 1, ShotsSurvived: 3}

	applied, err := repo.Increment(ctx, delta)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.Increment(ctx, delta)
	require.NoError(t, err)
	assert.False(t, applied)

	stats, err := repo.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MatchesPlayed)
	assert.Equal(t, 3, stats.ShotsSurvived)

	// 不同对局的同一玩家照常生效
	delta.MatchID = "m2"
	applied, err = repo.Increment(ctx, delta)
	require.NoError(t, err)
	assert.True(t, applied)

	stats, err = repo.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.MatchesPlayed)
}

func TestStatsRepository_ScoreFloor(t *testing.T) {
	db := newTestDB(t)
	repo := NewStatsRepository(db, testBounds)
	ctx := context.Background()

	_, err := repo.Increment(ctx, StatsDelta{MatchID: "m1", PlayerID: "carol", Score: -1000})
	require.NoError(t, err)

	stats, err := repo.Get(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, testBounds.Floor, stats.Score)
}

func TestStatsRepository_WinStreak(t *testing.T) {
	db := newTestDB(t)
	repo := NewStatsRepository(db, testBounds)
	ctx := context.Background()

	deltas := []StatsDelta{
		{MatchID: "m1", PlayerID: "dave", MatchesPlayed: 1, Wins: 1},
		{MatchID: "m2", PlayerID: "dave", MatchesPlayed: 1, Wins: 1},
		{MatchID: "m3", PlayerID: "dave", MatchesPlayed: 1, Losses: 1},
		{MatchID: "m4", PlayerID: "dave", MatchesPlayed: 1, Wins: 1},
	}
	for _, d := range deltas {
		_, err := repo.Increment(ctx, d)
		require.NoError(t, err)
	}

	stats, err := repo.Get(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Wins)
	assert.Equal(t, 1, stats.Losses)
	assert.Equal(t, 1, stats.CurrentWinStreak)
	assert.Equal(t, 2, stats.BestWinStreak)
}

func TestStatsRepository_GetMissing(t *testing.T) {
	db := newTestDB(t)
	repo := NewStatsRepository(db, testBounds)

	_, err := repo.Get(context.Background(), "nobody")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestStatsRepository_Top(t *testing.T) {
	db := newTestDB(t)
	repo := NewStatsRepository(db, testBounds)
	ctx := context.Background()

	scores := map[string]int{"a": 10, "b": 30, "c": 20, "d": 30}
	for player, score := range scores {
		_, err := repo.Increment(ctx, StatsDelta{MatchID: "m", PlayerID: player, Score: score})
		require.NoError(t, err)
	}

	top, err := repo.Top(ctx, 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, "b", top[0].PlayerID)
	assert.Equal(t, "d", top[1].PlayerID)
	assert.Equal(t, "c", top[2].PlayerID)
}

func TestScoreBounds_StartingScore(t *testing.T) {
	assert.Equal(t, 200, ScoreBounds{Initial: 200, Floor: 50}.StartingScore())
	assert.Equal(t, 50, ScoreBounds{Initial: 10, Floor: 50}.StartingScore())
}
