package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/wfunc/liar-bar/internal/config"
	"github.com/wfunc/liar-bar/internal/models"
	"github.com/wfunc/liar-bar/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// StatsCache 玩家统计的读穿缓存
//
// 写入后只做失效不做更新；加载期间发生失效的结果不回填，
// 保证写后读能看到最新数据。缓存不是权威数据源，淘汰不会丢数据。
type StatsCache struct {
	gw      repository.Gateway
	enabled bool
	players *expirable.LRU[string, models.PlayerStatistics]
	boards  *expirable.LRU[int, []models.PlayerStatistics]
	loads   singleflight.Group
	epoch   atomic.Uint64
	// fillMu 回填时的 epoch 检查与失效互斥
	fillMu sync.Mutex
	logger *zap.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewStatsCache 创建缓存
func NewStatsCache(gw repository.Gateway, cfg config.CacheConfig, logger *zap.Logger) *StatsCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	size := cfg.Size
	if size <= 0 {
		size = 1024
	}
	return &StatsCache{
		gw:      gw,
		enabled: cfg.Enabled,
		players: expirable.NewLRU[string, models.PlayerStatistics](size, nil, cfg.TTL),
		boards:  expirable.NewLRU[int, []models.PlayerStatistics](16, nil, cfg.TTL),
		logger:  logger,
	}
}

// GetStatistics 读取玩家统计，未命中时从网关加载
func (c *StatsCache) GetStatistics(ctx context.Context, playerID string) (*models.PlayerStatistics, error) {
	if !c.enabled {
		return c.gw.GetStatistics(ctx, playerID)
	}
	if stats, ok := c.players.Get(playerID); ok {
		c.hits.Add(1)
		return &stats, nil
	}
	c.misses.Add(1)

	v, err, _ := c.loads.Do("player:"+playerID, func() (interface{}, error) {
		epoch := c.epoch.Load()
		stats, err := c.gw.GetStatistics(ctx, playerID)
		if err != nil {
			return nil, err
		}
		c.fill(epoch, func() { c.players.Add(playerID, *stats) })
		return *stats, nil
	})
	if err != nil {
		return nil, err
	}
	stats := v.(models.PlayerStatistics)
	return &stats, nil
}

// IncrementStatistics 写入增量并使该玩家缓存失效
func (c *StatsCache) IncrementStatistics(ctx context.Context, delta repository.StatsDelta) (bool, error) {
	applied, err := c.gw.IncrementStatistics(ctx, delta)
	if err != nil {
		return false, err
	}
	c.Invalidate(delta.PlayerID)
	return applied, nil
}

// Leaderboard 排行榜，按 limit 缓存
func (c *StatsCache) Leaderboard(ctx context.Context, limit int) ([]*models.PlayerStatistics, error) {
	if !c.enabled {
		return c.gw.Leaderboard(ctx, limit)
	}
	if board, ok := c.boards.Get(limit); ok {
		return unpack(board), nil
	}

	// 键中带上 epoch，失效后不会复用失效前发起的加载
	epoch := c.epoch.Load()
	v, err, _ := c.loads.Do(fmt.Sprintf("leaderboard:%d:%d", epoch, limit), func() (interface{}, error) {
		list, err := c.gw.Leaderboard(ctx, limit)
		if err != nil {
			return nil, err
		}
		board := make([]models.PlayerStatistics, len(list))
		for i, s := range list {
			board[i] = *s
		}
		c.fill(epoch, func() { c.boards.Add(limit, board) })
		return board, nil
	})
	if err != nil {
		return nil, err
	}
	return unpack(v.([]models.PlayerStatistics)), nil
}

// fill 加载期间未发生失效时才回填
func (c *StatsCache) fill(epoch uint64, add func()) {
	c.fillMu.Lock()
	defer c.fillMu.Unlock()
	if c.epoch.Load() == epoch {
		add()
	}
}

// Invalidate 使玩家缓存与排行榜失效
func (c *StatsCache) Invalidate(playerIDs ...string) {
	c.fillMu.Lock()
	defer c.fillMu.Unlock()
	c.epoch.Add(1)
	for _, id := range playerIDs {
		c.players.Remove(id)
		c.loads.Forget("player:" + id)
	}
	c.boards.Purge()
}

// Len 已缓存玩家数
func (c *StatsCache) Len() int {
	return c.players.Len()
}

// HitRatio 命中率
func (c *StatsCache) HitRatio() float64 {
	hits, misses := c.hits.Load(), c.misses.Load()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

func unpack(board []models.PlayerStatistics) []*models.PlayerStatistics {
	out := make([]*models.PlayerStatistics, len(board))
	for i := range board {
		s := board[i]
		out[i] = &s
	}
	return out
}
