package game

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wfunc/liar-bar/internal/models"
)

// scriptedRandom 循环返回预设序列
type scriptedRandom struct {
	mu  sync.Mutex
	seq []int
	i   int
}

func (r *scriptedRandom) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.seq[r.i%len(r.seq)]
	r.i++
	return v % n
}

// fixedDealer 桌面牌固定，每人手牌由 hand 生成
type fixedDealer struct {
	table Rank
	hand  func(player int) []Card
}

func (d fixedDealer) Deal(players, handSize int) RoundDeal {
	hands := make([][]Card, players)
	for i := range hands {
		hands[i] = d.hand(i)
	}
	return RoundDeal{TableRank: d.table, Hands: hands}
}

func repeat(rank Rank, n int) []Card {
	cards := make([]Card, n)
	for i := range cards {
		cards[i] = Card{Rank: rank}
	}
	return cards
}

// bluffDealer 桌面牌为A，所有人只有Q，任何声明都是谎言
var bluffDealer = fixedDealer{table: RankAce, hand: func(int) []Card { return repeat(RankQueen, 5) }}

// honestDealer 所有人只有A
var honestDealer = fixedDealer{table: RankAce, hand: func(int) []Card { return repeat(RankAce, 5) }}

// fakeSink 记录落库请求，auto 为真时立即确认
type fakeSink struct {
	mu        sync.Mutex
	auto      bool
	results   []*models.MatchResult
	persisted []func()
	parked    []func()
}

func (f *fakeSink) Enqueue(r *models.MatchResult, persisted func(), parked func()) {
	f.mu.Lock()
	f.results = append(f.results, r)
	f.persisted = append(f.persisted, persisted)
	f.parked = append(f.parked, parked)
	auto := f.auto
	f.mu.Unlock()
	if auto {
		persisted()
	}
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.results)
}

// fixedClock 每次调用前进一秒
func fixedClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestOrchestrator(t *testing.T, limits Limits, rule ChallengeRule, dealer Dealer, sink ResultSink) *Orchestrator {
	t.Helper()
	n := 0
	var mu sync.Mutex
	return NewOrchestrator(OrchestratorConfig{
		Limits: limits,
		Rule:   rule,
		Dealer: dealer,
		Sink:   sink,
		Clock:  fixedClock(),
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("match-%d", n)
		},
	})
}

// driver 按玩家维护递增序号提交动作
type driver struct {
	t       *testing.T
	o       *Orchestrator
	matchID string
	seq     map[string]uint64
}

func newDriver(t *testing.T, o *Orchestrator, matchID string) *driver {
	return &driver{t: t, o: o, matchID: matchID, seq: make(map[string]uint64)}
}

func (d *driver) submit(player string, kind ActionKind, cards ...int) *Outcome {
	d.t.Helper()
	d.seq[player]++
	out, err := d.o.SubmitAction(context.Background(), Action{
		MatchID:  d.matchID,
		PlayerID: player,
		Kind:     kind,
		Seq:      d.seq[player],
		Cards:    cards,
	})
	require.NoError(d.t, err)
	return out
}

func (d *driver) accept(player string, kind ActionKind, cards ...int) MatchEvent {
	d.t.Helper()
	out := d.submit(player, kind, cards...)
	require.True(d.t, out.Verdict.Accepted, "%s %s rejected: %s %s", player, kind, out.Verdict.Reason, out.Verdict.Detail)
	require.Len(d.t, out.Events, 1)
	return out.Events[0]
}

func (d *driver) rejected(player string, kind ActionKind, reason RejectReason, cards ...int) {
	d.t.Helper()
	out := d.submit(player, kind, cards...)
	require.False(d.t, out.Verdict.Accepted)
	require.Equal(d.t, reason, out.Verdict.Reason, out.Verdict.Detail)
	require.Empty(d.t, out.Events)
}

func (d *driver) snapshot() Snapshot {
	d.t.Helper()
	snap, err := d.o.Snapshot(d.matchID)
	require.NoError(d.t, err)
	return snap
}

func limitsWithLives(lives int) Limits {
	l := DefaultLimits()
	l.StartingLives = lives
	return l
}
