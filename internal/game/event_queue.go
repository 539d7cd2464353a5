package game

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrSubscriptionClosed 订阅已关闭且缓冲已取完
	ErrSubscriptionClosed = errors.New("subscription closed")
	// ErrSubscriberLagging 订阅者消费过慢，缓冲溢出后被断开，需重新订阅并拉取快照
	ErrSubscriberLagging = errors.New("subscriber lagging behind")
)

// EventBus 按订阅者维护有序事件队列，发布永不阻塞
type EventBus struct {
	mu       sync.RWMutex
	subs     map[string]*Subscription
	capacity int
	logger   *zap.Logger
}

// NewEventBus 创建事件总线，capacity 为每个订阅者的缓冲上限
func NewEventBus(capacity int, logger *zap.Logger) *EventBus {
	if capacity <= 0 {
		capacity = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBus{
		subs:     make(map[string]*Subscription),
		capacity: capacity,
		logger:   logger,
	}
}

// Subscribe 订阅某个对局的事件，matchID 为空表示订阅全部对局
func (b *EventBus) Subscribe(matchID string) *Subscription {
	s := &Subscription{
		ID:       uuid.New().String(),
		MatchID:  matchID,
		bus:      b,
		capacity: b.capacity,
		notify:   make(chan struct{}, 1),
	}
	b.mu.Lock()
	b.subs[s.ID] = s
	b.mu.Unlock()
	return s
}

// Publish 将事件追加到所有相关订阅者的队列
func (b *EventBus) Publish(ev MatchEvent) {
	b.mu.RLock()
	var lagging []*Subscription
	for _, s := range b.subs {
		if s.MatchID != "" && s.MatchID != ev.MatchID {
			continue
		}
		if !s.push(ev) {
			lagging = append(lagging, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range lagging {
		b.logger.Warn("订阅者积压溢出，断开订阅",
			zap.String("subscription", s.ID),
			zap.String("match_id", s.MatchID),
			zap.Int("capacity", s.capacity))
		b.remove(s.ID)
	}
}

// CloseMatch 关闭某对局的订阅，剩余缓冲仍可读取
func (b *EventBus) CloseMatch(matchID string) {
	b.mu.Lock()
	var closing []*Subscription
	for id, s := range b.subs {
		if s.MatchID == matchID {
			closing = append(closing, s)
			delete(b.subs, id)
		}
	}
	b.mu.Unlock()

	for _, s := range closing {
		s.closeWith(ErrSubscriptionClosed)
	}
}

// Close 关闭全部订阅
func (b *EventBus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*Subscription)
	b.mu.Unlock()

	for _, s := range subs {
		s.closeWith(ErrSubscriptionClosed)
	}
}

// Len 当前订阅数
func (b *EventBus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *EventBus) remove(id string) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Subscription 单个订阅者的有序队列
type Subscription struct {
	ID      string
	MatchID string

	bus      *EventBus
	mu       sync.Mutex
	queue    []MatchEvent
	capacity int
	notify   chan struct{}
	err      error
}

// push 入队，缓冲已满时标记积压并返回false
func (s *Subscription) push(ev MatchEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return true
	}
	if len(s.queue) >= s.capacity {
		s.err = ErrSubscriberLagging
		s.signal()
		return false
	}
	s.queue = append(s.queue, ev)
	s.signal()
	return true
}

func (s *Subscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) closeWith(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.signal()
	s.mu.Unlock()
}

// TryNext 非阻塞取出下一个事件
func (s *Subscription) TryNext() (MatchEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return MatchEvent{}, false
	}
	ev := s.queue[0]
	s.queue = s.queue[1:]
	return ev, true
}

// Next 阻塞直到有事件、订阅关闭或 ctx 结束；关闭前已入队的事件会先全部返回
func (s *Subscription) Next(ctx context.Context) (MatchEvent, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return ev, nil
		}
		err := s.err
		s.mu.Unlock()
		if err != nil {
			return MatchEvent{}, err
		}

		select {
		case <-s.notify:
		case <-ctx.Done():
			return MatchEvent{}, ctx.Err()
		}
	}
}

// Pending 缓冲中的事件数
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close 取消订阅
func (s *Subscription) Close() {
	s.bus.remove(s.ID)
	s.closeWith(ErrSubscriptionClosed)
}
