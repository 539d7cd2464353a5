package game

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/wfunc/liar-bar/internal/errors"
	"github.com/wfunc/liar-bar/internal/models"
	"go.uber.org/zap"
)

// ResultSink 终局结果的异步落库入口，Enqueue 不得阻塞
type ResultSink interface {
	// Enqueue 持久化成功后调用 persisted；重试耗尽转入积压队列时调用 parked
	Enqueue(result *models.MatchResult, persisted func(), parked func())
}

// OrchestratorConfig 编排器配置
type OrchestratorConfig struct {
	Limits   Limits
	Rule     ChallengeRule
	Dealer   Dealer
	Registry *SessionRegistry
	Bus      *EventBus
	Sink     ResultSink
	Logger   *zap.Logger
	Clock    func() time.Time
	NewID    func() string
}

// Outcome 一次动作提交的结果
type Outcome struct {
	Verdict Verdict      `json:"verdict"`
	Events  []MatchEvent `json:"events,omitempty"`
	State   MatchState   `json:"state"`
	Version uint64       `json:"version"`
}

// matchSlot 对局的独占执行槽
type matchSlot struct {
	mu      sync.Mutex
	sm      *StateMachine
	players []string

	retireOnce sync.Once
	endOnce    sync.Once
}

// Orchestrator 管理所有进行中的对局
type Orchestrator struct {
	mu      sync.RWMutex
	matches map[string]*matchSlot

	limits    Limits
	validator Validator
	rule      ChallengeRule
	dealer    Dealer
	registry  *SessionRegistry
	bus       *EventBus
	sink      ResultSink
	logger    *zap.Logger
	clock     func() time.Time
	newID     func() string

	cbMu      sync.RWMutex
	callbacks []func(*models.MatchResult)
}

// NewOrchestrator 创建编排器
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.New().String() }
	}
	if cfg.Registry == nil {
		cfg.Registry = NewSessionRegistry()
	}
	if cfg.Bus == nil {
		cfg.Bus = NewEventBus(0, cfg.Logger)
	}
	if cfg.Rule == nil {
		cfg.Rule = TruthRule{}
	}
	if cfg.Dealer == nil {
		cfg.Dealer = NewRandomDealer(NewRandomSource(uint64(time.Now().UnixNano())))
	}
	if cfg.Limits == (Limits{}) {
		cfg.Limits = DefaultLimits()
	}
	return &Orchestrator{
		matches:   make(map[string]*matchSlot),
		limits:    cfg.Limits,
		validator: NewValidator(cfg.Limits),
		rule:      cfg.Rule,
		dealer:    cfg.Dealer,
		registry:  cfg.Registry,
		bus:       cfg.Bus,
		sink:      cfg.Sink,
		logger:    cfg.Logger,
		clock:     cfg.Clock,
		newID:     cfg.NewID,
	}
}

// Bus 事件总线
func (o *Orchestrator) Bus() *EventBus {
	return o.bus
}

// Registry 会话注册表
func (o *Orchestrator) Registry() *SessionRegistry {
	return o.registry
}

// OnMatchEnded 注册终局回调，每局在结果持久化后恰好触发一次
func (o *Orchestrator) OnMatchEnded(fn func(*models.MatchResult)) {
	o.cbMu.Lock()
	defer o.cbMu.Unlock()
	o.callbacks = append(o.callbacks, fn)
}

// CreateMatch 创建对局，返回对局ID
func (o *Orchestrator) CreateMatch(ctx context.Context, players []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperrors.Wrapf(err, apperrors.ErrCanceled, "create match for %d players", len(players))
	}
	if len(players) < o.limits.MinPlayers {
		return "", apperrors.Newf(apperrors.ErrInsufficientPlayers, "至少需要 %d 名玩家，当前 %d", o.limits.MinPlayers, len(players))
	}
	if len(players) > o.limits.MaxPlayers {
		return "", apperrors.Newf(apperrors.ErrTooManyPlayers, "最多 %d 名玩家，当前 %d", o.limits.MaxPlayers, len(players))
	}
	seen := make(map[string]bool, len(players))
	for _, p := range players {
		if p == SystemActor {
			return "", apperrors.New(apperrors.ErrInvalidParam, "玩家ID不能为空")
		}
		if seen[p] {
			return "", apperrors.Newf(apperrors.ErrDuplicatePlayer, "玩家 %s 重复入座", p)
		}
		seen[p] = true
	}

	seated := append([]string(nil), players...)
	id, err := o.allocateID()
	if err != nil {
		return "", err
	}
	if err := o.registry.Reserve(id, seated); err != nil {
		o.release(id)
		return "", err
	}

	m := NewMatch(id, seated, o.limits.StartingLives, o.clock())
	slot := &matchSlot{
		sm:      NewStateMachine(m, o.limits, o.rule, o.dealer, o.logger, o.clock),
		players: seated,
	}
	o.mu.Lock()
	o.matches[id] = slot
	o.mu.Unlock()

	o.logger.Info("创建对局", zap.String("match_id", id), zap.Strings("players", seated))
	return id, nil
}

// allocateID 生成唯一对局ID并占位，冲突时重试
func (o *Orchestrator) allocateID() (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for attempt := 0; attempt < 3; attempt++ {
		id := o.newID()
		if _, exists := o.matches[id]; exists {
			o.logger.Warn("对局ID冲突，重新生成", zap.String("match_id", id))
			continue
		}
		o.matches[id] = nil
		return id, nil
	}
	return "", apperrors.New(apperrors.ErrConcurrencyConflict, "无法生成唯一对局ID")
}

// release 移除占位
func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.matches[id] == nil {
		delete(o.matches, id)
	}
}

// lookup 查找进行中的对局
func (o *Orchestrator) lookup(matchID string) (*matchSlot, error) {
	o.mu.RLock()
	slot := o.matches[matchID]
	o.mu.RUnlock()
	if slot == nil {
		return nil, apperrors.Newf(apperrors.ErrMatchNotFound, "对局 %s", matchID)
	}
	return slot, nil
}

// SubmitAction 串行地校验并应用一个动作
func (o *Orchestrator) SubmitAction(ctx context.Context, a Action) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCanceled, "submit %s to %s", a.Kind, a.MatchID)
	}
	slot, err := o.lookup(a.MatchID)
	if err != nil {
		return nil, err
	}

	slot.mu.Lock()
	sm := slot.sm
	if sm.State().Terminal() {
		slot.mu.Unlock()
		return nil, apperrors.Newf(apperrors.ErrMatchNotFound, "对局 %s 已结束", a.MatchID)
	}

	verdict := o.validator.Validate(sm.Match().Snapshot(), a)
	if !verdict.Accepted {
		outcome := &Outcome{Verdict: verdict, State: sm.State(), Version: sm.Match().Version}
		slot.mu.Unlock()
		o.logger.Debug("动作被拒绝",
			zap.String("match_id", a.MatchID),
			zap.String("player_id", a.PlayerID),
			zap.String("kind", string(a.Kind)),
			zap.String("reason", string(verdict.Reason)),
			zap.String("detail", verdict.Detail))
		return outcome, nil
	}

	ev, err := sm.Apply(verdict.Delta)
	if err != nil {
		slot.mu.Unlock()
		return nil, err
	}
	o.bus.Publish(ev)
	outcome := &Outcome{
		Verdict: verdict,
		Events:  []MatchEvent{ev},
		State:   sm.State(),
		Version: sm.Match().Version,
	}
	result := o.sealIfEnded(slot)
	slot.mu.Unlock()

	if result != nil {
		o.dispatch(slot, result)
	}
	return outcome, nil
}

// ForceEndMatch 管理员强制结束对局，与普通动作共用执行槽
func (o *Orchestrator) ForceEndMatch(ctx context.Context, matchID, reason string) (*MatchEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCanceled, "force end %s", matchID)
	}
	slot, err := o.lookup(matchID)
	if err != nil {
		return nil, err
	}

	slot.mu.Lock()
	if slot.sm.State().Terminal() {
		slot.mu.Unlock()
		return nil, apperrors.Newf(apperrors.ErrMatchNotFound, "对局 %s 已结束", matchID)
	}
	ev, err := slot.sm.ForceEnd(reason)
	if err != nil {
		slot.mu.Unlock()
		return nil, err
	}
	o.bus.Publish(ev)
	result := o.sealIfEnded(slot)
	slot.mu.Unlock()

	o.logger.Warn("对局被强制结束", zap.String("match_id", matchID), zap.String("reason", reason))
	o.dispatch(slot, result)
	return &ev, nil
}

// sealIfEnded 终态时生成结果并关闭该局订阅，需持有执行槽
func (o *Orchestrator) sealIfEnded(slot *matchSlot) *models.MatchResult {
	m := slot.sm.Match()
	if !m.State.Terminal() {
		return nil
	}
	o.bus.CloseMatch(m.ID)
	return BuildResult(m)
}

// dispatch 释放执行槽后交给异步落库
func (o *Orchestrator) dispatch(slot *matchSlot, result *models.MatchResult) {
	fields := []zap.Field{
		zap.String("match_id", result.MatchID),
		zap.String("winner", result.Winner()),
		zap.String("reason", result.EndReason),
		zap.Int("rounds", result.Rounds),
	}
	if result.EndReason == string(EndInvariantViolation) {
		o.logger.Error("对局异常结束", fields...)
	} else {
		o.logger.Info("对局结束", fields...)
	}

	if o.sink == nil {
		o.complete(slot, result)
		return
	}
	o.sink.Enqueue(result,
		func() { o.complete(slot, result) },
		func() { o.retire(slot, result.MatchID) },
	)
}

// retire 从进行中集合移除并释放玩家登记
func (o *Orchestrator) retire(slot *matchSlot, matchID string) {
	slot.retireOnce.Do(func() {
		o.mu.Lock()
		if o.matches[matchID] == slot {
			delete(o.matches, matchID)
		}
		o.mu.Unlock()
		o.registry.Release(matchID, slot.players)
	})
}

// complete 结果已持久化
func (o *Orchestrator) complete(slot *matchSlot, result *models.MatchResult) {
	o.retire(slot, result.MatchID)
	slot.endOnce.Do(func() {
		o.cbMu.RLock()
		callbacks := make([]func(*models.MatchResult), len(o.callbacks))
		copy(callbacks, o.callbacks)
		o.cbMu.RUnlock()
		for _, fn := range callbacks {
			fn(result)
		}
	})
}

// Snapshot 对局快照
func (o *Orchestrator) Snapshot(matchID string) (Snapshot, error) {
	slot, err := o.lookup(matchID)
	if err != nil {
		return Snapshot{}, err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.sm.Match().Snapshot(), nil
}

// Subscribe 在执行槽内订阅对局事件，已结束的对局不再接受订阅
func (o *Orchestrator) Subscribe(matchID string) (*Subscription, error) {
	slot, err := o.lookup(matchID)
	if err != nil {
		return nil, err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	if slot.sm.State().Terminal() {
		return nil, apperrors.Newf(apperrors.ErrMatchNotFound, "对局 %s 已结束", matchID)
	}
	return o.bus.Subscribe(matchID), nil
}

// Hand 玩家当前手牌
func (o *Orchestrator) Hand(matchID, playerID string) ([]Card, error) {
	slot, err := o.lookup(matchID)
	if err != nil {
		return nil, err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	hand, ok := slot.sm.Match().Hand(playerID)
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "玩家 %s 不在对局 %s 中", playerID, matchID)
	}
	return hand, nil
}

// LiveMatches 进行中（含待落库）的对局数
func (o *Orchestrator) LiveMatches() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	n := 0
	for _, slot := range o.matches {
		if slot != nil {
			n++
		}
	}
	return n
}

// MatchIDs 进行中的对局ID
func (o *Orchestrator) MatchIDs() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	ids := make([]string, 0, len(o.matches))
	for id, slot := range o.matches {
		if slot != nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// Shutdown 强制结束所有进行中的对局并关闭事件总线
func (o *Orchestrator) Shutdown(ctx context.Context) {
	for _, id := range o.MatchIDs() {
		if _, err := o.ForceEndMatch(ctx, id, "shutdown"); err != nil && !apperrors.Is(err, apperrors.ErrMatchNotFound) {
			o.logger.Warn("关闭时结束对局失败", zap.String("match_id", id), zap.Error(err))
		}
	}
	o.bus.Close()
}
