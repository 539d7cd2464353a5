package service

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/wfunc/liar-bar/internal/config"
	apperrors "github.com/wfunc/liar-bar/internal/errors"
	"github.com/wfunc/liar-bar/internal/models"
	"github.com/wfunc/liar-bar/internal/repository"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// pendingResult 等待落库的对局结果
type pendingResult struct {
	result    *models.MatchResult
	deltas    []repository.StatsDelta
	persisted func()
	parkedAt  time.Time
	replays   int
}

// ResultWriter 异步写入对局结果
//
// 存储不可用时按指数退避重试，耗尽后转入按 match_id 去重的有序积压队列，
// 由定时器和下一次成功写入触发重放，结果不会被丢弃。
type ResultWriter struct {
	gw     repository.Gateway
	cache  *StatsCache
	score  *ScoreRule
	cfg    config.PersistenceConfig
	logger *zap.Logger

	mu      sync.Mutex
	backlog map[string]*pendingResult
	order   []string

	replayMu sync.Mutex
	inflight sync.WaitGroup
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	started  bool
}

// NewResultWriter 创建结果写入器
func NewResultWriter(gw repository.Gateway, cache *StatsCache, score *ScoreRule, cfg config.PersistenceConfig, logger *zap.Logger) *ResultWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &ResultWriter{
		gw:      gw,
		cache:   cache,
		score:   score,
		cfg:     cfg,
		logger:  logger,
		backlog: make(map[string]*pendingResult),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start 启动积压定时重放
func (w *ResultWriter) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	interval := w.cfg.ReplayInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if w.BacklogLen() == 0 {
					continue
				}
				if err := w.Replay(context.Background()); err != nil {
					w.logger.Warn("积压重放未完成", zap.Error(err), zap.Int("backlog", w.BacklogLen()))
				}
			case <-w.stop:
				return
			}
		}
	}()
}

// Enqueue 实现 game.ResultSink，立即返回
func (w *ResultWriter) Enqueue(result *models.MatchResult, persisted func(), parked func()) {
	p := &pendingResult{
		result:    result,
		deltas:    w.score.Deltas(result),
		persisted: persisted,
	}
	w.inflight.Add(1)
	go func() {
		defer w.inflight.Done()
		w.write(context.Background(), p, parked)
	}()
}

// write 带退避重试的首次写入
func (w *ResultWriter) write(ctx context.Context, p *pendingResult, parked func()) {
	err := w.persistWithRetry(ctx, p)
	if err == nil {
		w.succeeded(p)
		go w.replayAfterSuccess()
		return
	}

	w.park(p, err)
	if parked != nil {
		parked()
	}
}

// persistWithRetry 最多 MaxAttempts 次，非可重试错误立即放弃
func (w *ResultWriter) persistWithRetry(ctx context.Context, p *pendingResult) error {
	matchID := p.result.MatchID
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := w.gw.RecordResult(ctx, p.result.Clone(), p.deltas); err != nil {
			if !apperrors.IsRetryable(err) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(w.newBackOff()),
		backoff.WithMaxTries(uint(w.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			w.logger.Warn("结果写入失败，准备重试",
				zap.String("match_id", matchID),
				zap.Duration("next", next),
				zap.Error(err))
		}),
	)
	return err
}

func (w *ResultWriter) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if w.cfg.InitialInterval > 0 {
		b.InitialInterval = w.cfg.InitialInterval
	}
	if w.cfg.MaxInterval > 0 {
		b.MaxInterval = w.cfg.MaxInterval
	}
	if w.cfg.Multiplier > 0 {
		b.Multiplier = w.cfg.Multiplier
	}
	return b
}

// succeeded 写入成功后失效缓存并通知编排器
func (w *ResultWriter) succeeded(p *pendingResult) {
	if w.cache != nil {
		players := make([]string, 0, len(p.result.Participants))
		for _, part := range p.result.Participants {
			players = append(players, part.PlayerID)
		}
		w.cache.Invalidate(players...)
	}
	w.logger.Info("对局结果已落库",
		zap.String("match_id", p.result.MatchID),
		zap.String("winner", p.result.Winner()),
		zap.Int("deltas", len(p.deltas)))
	if p.persisted != nil {
		p.persisted()
	}
}

// park 转入积压队列，同一对局只保留一份
func (w *ResultWriter) park(p *pendingResult, cause error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := p.result.MatchID
	if _, exists := w.backlog[id]; !exists {
		w.order = append(w.order, id)
	}
	p.parkedAt = time.Now()
	w.backlog[id] = p

	fields := []zap.Field{
		zap.String("match_id", id),
		zap.Int("backlog", len(w.order)),
		zap.Error(cause),
	}
	if w.cfg.BacklogCapacity > 0 && len(w.order) > w.cfg.BacklogCapacity {
		w.logger.Error("结果积压超过容量", fields...)
		return
	}
	w.logger.Warn("结果写入重试耗尽，转入积压", fields...)
}

// replayAfterSuccess 成功写入后顺带重放积压，已有重放在进行时跳过
func (w *ResultWriter) replayAfterSuccess() {
	if w.BacklogLen() == 0 || !w.replayMu.TryLock() {
		return
	}
	defer w.replayMu.Unlock()
	if err := w.replay(context.Background()); err != nil {
		w.logger.Debug("积压重放中断", zap.Error(err))
	}
}

// Replay 按入队顺序重放积压，每条一次尝试；存储仍不可用时停止
func (w *ResultWriter) Replay(ctx context.Context) error {
	w.replayMu.Lock()
	defer w.replayMu.Unlock()
	return w.replay(ctx)
}

func (w *ResultWriter) replay(ctx context.Context) error {
	var errs error
	for _, id := range w.snapshotOrder() {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		p, ok := w.take(id)
		if !ok {
			continue
		}

		err := w.gw.RecordResult(ctx, p.result.Clone(), p.deltas)
		if err == nil {
			w.remove(id)
			w.succeeded(p)
			continue
		}

		w.mu.Lock()
		p.replays++
		w.mu.Unlock()
		errs = multierr.Append(errs, err)
		if apperrors.IsRetryable(err) {
			// 存储仍不可用，后续条目留待下一次
			return errs
		}
		w.logger.Error("积压结果写入失败",
			zap.String("match_id", id),
			zap.Int("replays", p.replays),
			zap.Error(err))
	}
	return errs
}

func (w *ResultWriter) snapshotOrder() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.order...)
}

func (w *ResultWriter) take(id string) (*pendingResult, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.backlog[id]
	return p, ok
}

func (w *ResultWriter) remove(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.backlog, id)
	for i, v := range w.order {
		if v == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
}

// BacklogLen 积压条数
func (w *ResultWriter) BacklogLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.order)
}

// Backlog 积压中的对局ID，按入队顺序
func (w *ResultWriter) Backlog() []string {
	return w.snapshotOrder()
}

// Wait 等待所有进行中的首次写入完成
func (w *ResultWriter) Wait() {
	w.inflight.Wait()
}

// Close 停止定时器，等待进行中的写入并最后重放一次积压
func (w *ResultWriter) Close(ctx context.Context) error {
	w.stopOnce.Do(func() {
		close(w.stop)
		w.mu.Lock()
		started := w.started
		w.mu.Unlock()
		if started {
			<-w.done
		}
	})

	waited := make(chan struct{})
	go func() {
		w.inflight.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		return ctx.Err()
	}

	if w.BacklogLen() == 0 {
		return nil
	}
	err := w.Replay(ctx)
	if n := w.BacklogLen(); n > 0 {
		err = multierr.Append(err, apperrors.Newf(apperrors.ErrStorageUnavailable, "关闭时仍有 %d 条结果未落库", n))
	}
	return err
}
