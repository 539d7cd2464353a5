package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/wfunc/liar-bar/internal/errors"
	"github.com/wfunc/liar-bar/internal/models"
	"github.com/wfunc/liar-bar/internal/repository"
)

func newTestWriter(t *testing.T) (*ResultWriter, *flakyGateway, *StatsCache) {
	cfg := testConfig()
	gw := newFlakyGateway(newTestGateway(t))
	cache := NewStatsCache(gw, cfg.Cache, nil)
	w := NewResultWriter(gw, cache, NewScoreRule(cfg.Score), cfg.Persistence, nil)
	return w, gw, cache
}

// callbacks 记录落库回调
type callbacks struct {
	persisted atomic.Int32
	parked    atomic.Int32
}

func (c *callbacks) enqueue(w *ResultWriter, r *models.MatchResult) {
	w.Enqueue(r, func() { c.persisted.Add(1) }, func() { c.parked.Add(1) })
}

func resultFor(matchID string) *models.MatchResult {
	r := threePlayerResult(models.EndReasonLastStanding)
	r.MatchID = matchID
	return r
}

func TestResultWriter_PersistsWithStats(t *testing.T) {
	w, gw, cache := newTestWriter(t)
	ctx := context.Background()

	// 预热缓存，落库后必须失效
	_, err := gw.IncrementStatistics(ctx, repository.StatsDelta{MatchID: "warmup", PlayerID: "carol"})
	require.NoError(t, err)
	warm, err := cache.GetStatistics(ctx, "carol")
	require.NoError(t, err)
	require.Equal(t, 200, warm.Score)

	var cb callbacks
	cb.enqueue(w, resultFor("m1"))
	w.Wait()

	assert.EqualValues(t, 1, cb.persisted.Load())
	assert.Zero(t, cb.parked.Load())
	assert.Zero(t, w.BacklogLen())

	stats, err := cache.GetStatistics(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, 250, stats.Score)
	assert.Equal(t, 1, stats.Wins)

	stored, err := gw.GetResult(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "carol", stored.Winner())
}

func TestResultWriter_RetriesTransientFailures(t *testing.T) {
	w, gw, _ := newTestWriter(t)
	gw.failRecords.Store(2)

	var cb callbacks
	cb.enqueue(w, resultFor("m1"))
	w.Wait()

	assert.EqualValues(t, 3, gw.recordCalls.Load())
	assert.EqualValues(t, 1, cb.persisted.Load())
	assert.Zero(t, cb.parked.Load())
}

func TestResultWriter_ExhaustedRetriesParkThenReplay(t *testing.T) {
	w, gw, _ := newTestWriter(t)
	ctx := context.Background()
	gw.failRecords.Store(100)

	var cb callbacks
	cb.enqueue(w, resultFor("m1"))
	w.Wait()

	assert.EqualValues(t, 3, gw.recordCalls.Load())
	assert.EqualValues(t, 1, cb.parked.Load())
	assert.Zero(t, cb.persisted.Load())
	assert.Equal(t, []string{"m1"}, w.Backlog())

	// 存储仍不可用：重放失败，积压保留
	err := w.Replay(ctx)
	assert.True(t, apperrors.Is(err, apperrors.ErrStorageUnavailable))
	assert.Equal(t, 1, w.BacklogLen())

	gw.failRecords.Store(0)
	require.NoError(t, w.Replay(ctx))
	assert.Zero(t, w.BacklogLen())
	assert.EqualValues(t, 1, cb.persisted.Load())

	// 再次重放不会重复写入
	require.NoError(t, w.Replay(ctx))
	stored, err := gw.GetResult(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "carol", stored.Winner())

	stats, err := gw.GetStatistics(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MatchesPlayed)
}

func TestResultWriter_BacklogDeduplicatesByMatch(t *testing.T) {
	w, gw, _ := newTestWriter(t)
	gw.failRecords.Store(100)

	var cb callbacks
	cb.enqueue(w, resultFor("m1"))
	w.Wait()
	cb.enqueue(w, resultFor("m2"))
	w.Wait()
	cb.enqueue(w, resultFor("m1"))
	w.Wait()

	assert.Equal(t, []string{"m1", "m2"}, w.Backlog())
}

func TestResultWriter_NonRetryableErrorParksImmediately(t *testing.T) {
	w, gw, _ := newTestWriter(t)
	gw.recordErr = apperrors.New(apperrors.ErrValidation, "bad row")
	gw.failRecords.Store(1)

	var cb callbacks
	cb.enqueue(w, resultFor("m1"))
	w.Wait()

	assert.EqualValues(t, 1, gw.recordCalls.Load())
	assert.EqualValues(t, 1, cb.parked.Load())

	require.NoError(t, w.Replay(context.Background()))
	assert.EqualValues(t, 1, cb.persisted.Load())
	assert.Zero(t, w.BacklogLen())
}

func TestResultWriter_SuccessDrainsBacklog(t *testing.T) {
	w, gw, _ := newTestWriter(t)
	ctx := context.Background()
	gw.failRecords.Store(3)

	var cb callbacks
	cb.enqueue(w, resultFor("m1"))
	w.Wait()
	require.Equal(t, 1, w.BacklogLen())

	cb.enqueue(w, resultFor("m2"))
	w.Wait()

	require.Eventually(t, func() bool { return w.BacklogLen() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 2, cb.persisted.Load())

	_, err := gw.GetResult(ctx, "m1")
	require.NoError(t, err)
}

func TestResultWriter_CloseReportsUnwritten(t *testing.T) {
	w, gw, _ := newTestWriter(t)
	w.Start()
	gw.failRecords.Store(100)

	var cb callbacks
	cb.enqueue(w, resultFor("m1"))

	err := w.Close(context.Background())
	assert.True(t, apperrors.Is(err, apperrors.ErrStorageUnavailable))
	assert.Equal(t, 1, w.BacklogLen())
}

func TestResultWriter_CloseFlushesBacklog(t *testing.T) {
	w, gw, _ := newTestWriter(t)
	gw.failRecords.Store(3)

	var cb callbacks
	cb.enqueue(w, resultFor("m1"))
	w.Wait()
	require.Equal(t, 1, w.BacklogLen())

	require.NoError(t, w.Close(context.Background()))
	assert.Zero(t, w.BacklogLen())
	assert.EqualValues(t, 1, cb.persisted.Load())
}

func TestResultWriter_ConcurrentEnqueue(t *testing.T) {
	w, gw, _ := newTestWriter(t)
	ctx := context.Background()

	var cb callbacks
	var wg sync.WaitGroup
	for _, id := range []string{"m1", "m2", "m3", "m4"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			cb.enqueue(w, resultFor(id))
		}(id)
	}
	wg.Wait()
	w.Wait()

	assert.EqualValues(t, 4, cb.persisted.Load())
	stats, err := gw.GetStatistics(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Wins)
}
