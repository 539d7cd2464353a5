package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// windowMatch 三人局，a 已声明两张，等待质疑
func windowMatch() *Match {
	m := NewMatch("m1", []string{"a", "b", "c"}, 3, time.Now())
	m.State = StateChallengeWindow
	m.Round = 1
	m.TableRank = RankAce
	m.Version = 4
	for _, s := range m.Seats {
		s.Hand = repeat(RankAce, 5)
	}
	m.Seats[0].Hand = repeat(RankAce, 3)
	m.Claim = &Claim{Seat: 0, Player: "a", Cards: repeat(RankAce, 2)}
	m.LastSeq = map[string]uint64{"a": 2, "b": 1}
	return m
}

func TestValidator_Reasons(t *testing.T) {
	v := NewValidator(DefaultLimits())

	lobby := NewMatch("m1", []string{"a", "b"}, 3, time.Now())
	claimable := windowMatch()
	claimable.State = StateAwaitingClaim
	claimable.Claim = nil
	eliminated := windowMatch()
	eliminated.Seats[2].Eliminated = true
	eliminated.Seats[2].Hand = nil
	passed := windowMatch()
	passed.Passed["b"] = true

	tests := []struct {
		name   string
		match  *Match
		action Action
		reason RejectReason
	}{
		{"zero seq", lobby, Action{PlayerID: "a", Kind: ActionStart}, RejectMalformedPayload},
		{"unknown kind", lobby, Action{PlayerID: "a", Kind: "fold", Seq: 1}, RejectMalformedPayload},
		{"foreign match", lobby, Action{MatchID: "m2", PlayerID: "a", Kind: ActionStart, Seq: 1}, RejectMalformedPayload},
		{"cards on pass", claimable, Action{PlayerID: "b", Kind: ActionPass, Seq: 2, Cards: []int{0}}, RejectMalformedPayload},
		{"stranger", lobby, Action{PlayerID: "z", Kind: ActionStart, Seq: 1}, RejectUnknownPlayer},
		{"system cannot start", lobby, Action{Kind: ActionStart, Seq: 1}, RejectUnknownPlayer},
		{"replayed seq", claimable, Action{PlayerID: "a", Kind: ActionDeclareClaim, Seq: 2, Cards: []int{0}}, RejectDuplicateAction},
		{"older seq", claimable, Action{PlayerID: "a", Kind: ActionDeclareClaim, Seq: 1, Cards: []int{0}}, RejectDuplicateAction},
		{"stale version", claimable, Action{PlayerID: "a", Kind: ActionDeclareClaim, Seq: 3, Version: 3, Cards: []int{0}}, RejectStaleSequence},
		{"non host start", lobby, Action{PlayerID: "b", Kind: ActionStart, Seq: 1}, RejectWrongTurn},
		{"start twice", claimable, Action{PlayerID: "a", Kind: ActionStart, Seq: 3}, RejectWrongState},
		{"claim out of turn", claimable, Action{PlayerID: "b", Kind: ActionDeclareClaim, Seq: 2, Cards: []int{0}}, RejectWrongTurn},
		{"claim in window", windowMatch(), Action{PlayerID: "a", Kind: ActionDeclareClaim, Seq: 3, Cards: []int{0}}, RejectWrongState},
		{"claim no cards", claimable, Action{PlayerID: "a", Kind: ActionDeclareClaim, Seq: 3}, RejectMalformedPayload},
		{"claim too many", claimable, Action{PlayerID: "a", Kind: ActionDeclareClaim, Seq: 3, Cards: []int{0, 1, 2, 3}}, RejectMalformedPayload},
		{"claim index out of hand", claimable, Action{PlayerID: "a", Kind: ActionDeclareClaim, Seq: 3, Cards: []int{5}}, RejectMalformedPayload},
		{"claim repeated index", claimable, Action{PlayerID: "a", Kind: ActionDeclareClaim, Seq: 3, Cards: []int{1, 1}}, RejectMalformedPayload},
		{"claimant challenges self", windowMatch(), Action{PlayerID: "a", Kind: ActionChallenge, Seq: 3}, RejectWrongTurn},
		{"claimant passes", windowMatch(), Action{PlayerID: "a", Kind: ActionPass, Seq: 3}, RejectWrongTurn},
		{"eliminated acts", eliminated, Action{PlayerID: "c", Kind: ActionChallenge, Seq: 1}, RejectWrongTurn},
		{"pass twice", passed, Action{PlayerID: "b", Kind: ActionPass, Seq: 2}, RejectDuplicateAction},
		{"challenge after pass", passed, Action{PlayerID: "b", Kind: ActionChallenge, Seq: 2}, RejectWrongTurn},
		{"challenge outside window", claimable, Action{PlayerID: "b", Kind: ActionChallenge, Seq: 2}, RejectWrongState},
		{"ack outside resolving", windowMatch(), Action{Kind: ActionResolveAck, Seq: 1}, RejectWrongState},
		{"pass_all outside window", claimable, Action{Kind: ActionPassAll, Seq: 1}, RejectWrongState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict := v.Validate(tt.match.Snapshot(), tt.action)
			assert.False(t, verdict.Accepted)
			assert.Equal(t, tt.reason, verdict.Reason, verdict.Detail)
		})
	}
}

func TestValidator_Accepts(t *testing.T) {
	v := NewValidator(DefaultLimits())

	t.Run("host starts", func(t *testing.T) {
		m := NewMatch("m1", []string{"a", "b"}, 3, time.Now())
		verdict := v.Validate(m.Snapshot(), Action{MatchID: "m1", PlayerID: "a", Kind: ActionStart, Seq: 1})
		require.True(t, verdict.Accepted)
		assert.Equal(t, TransitionStart, verdict.Delta.Event)
	})

	t.Run("claim copies indices", func(t *testing.T) {
		m := windowMatch()
		m.State = StateAwaitingClaim
		m.Claim = nil
		cards := []int{2, 0}
		verdict := v.Validate(m.Snapshot(), Action{PlayerID: "a", Kind: ActionDeclareClaim, Seq: 3, Version: 4, Cards: cards})
		require.True(t, verdict.Accepted)
		assert.Equal(t, TransitionClaim, verdict.Delta.Event)
		cards[0] = 9
		assert.Equal(t, []int{2, 0}, verdict.Delta.Cards)
	})

	t.Run("first pass keeps window open", func(t *testing.T) {
		verdict := v.Validate(windowMatch().Snapshot(), Action{PlayerID: "b", Kind: ActionPass, Seq: 2})
		require.True(t, verdict.Accepted)
		assert.Equal(t, TransitionPass, verdict.Delta.Event)
	})

	t.Run("last pass lets the claim stand", func(t *testing.T) {
		m := windowMatch()
		m.Passed["b"] = true
		verdict := v.Validate(m.Snapshot(), Action{PlayerID: "c", Kind: ActionPass, Seq: 1})
		require.True(t, verdict.Accepted)
		assert.Equal(t, TransitionStand, verdict.Delta.Event)
	})

	t.Run("eliminated players are not waited for", func(t *testing.T) {
		m := windowMatch()
		m.Seats[2].Eliminated = true
		verdict := v.Validate(m.Snapshot(), Action{PlayerID: "b", Kind: ActionPass, Seq: 2})
		require.True(t, verdict.Accepted)
		assert.Equal(t, TransitionStand, verdict.Delta.Event)
	})

	t.Run("timeout lets the claim stand", func(t *testing.T) {
		verdict := v.Validate(windowMatch().Snapshot(), Action{Kind: ActionPassAll, Seq: 1})
		require.True(t, verdict.Accepted)
		assert.Equal(t, TransitionStand, verdict.Delta.Event)
	})

	t.Run("system acknowledges resolution", func(t *testing.T) {
		m := windowMatch()
		m.State = StateResolving
		verdict := v.Validate(m.Snapshot(), Action{Kind: ActionResolveAck, Seq: 1})
		require.True(t, verdict.Accepted)
		assert.Equal(t, TransitionResolve, verdict.Delta.Event)
	})
}

func TestValidator_ForcedChallenge(t *testing.T) {
	v := NewValidator(DefaultLimits())
	m := windowMatch()
	m.Seats[1].Hand = nil
	m.Seats[2].Hand = nil
	snap := m.Snapshot()
	require.True(t, snap.ForcedChallenge())

	verdict := v.Validate(snap, Action{PlayerID: "b", Kind: ActionPass, Seq: 2})
	assert.Equal(t, RejectWrongState, verdict.Reason)

	verdict = v.Validate(snap, Action{Kind: ActionPassAll, Seq: 1})
	require.True(t, verdict.Accepted)
	assert.Equal(t, TransitionChallenge, verdict.Delta.Event)
	assert.Equal(t, "b", verdict.Delta.Challenger)

	// 下一个座位已淘汰时顺延
	m.Seats[1].Eliminated = true
	verdict = v.Validate(m.Snapshot(), Action{Kind: ActionPassAll, Seq: 1})
	require.True(t, verdict.Accepted)
	assert.Equal(t, "c", verdict.Delta.Challenger)
}

func TestValidator_DemonPlayedAlone(t *testing.T) {
	v := NewValidator(DefaultLimits())
	m := windowMatch()
	m.State = StateAwaitingClaim
	m.Claim = nil
	m.Seats[0].Hand = []Card{{Rank: RankAce, Demon: true}, {Rank: RankQueen}, {Rank: RankAce}, {Rank: RankAce}, {Rank: RankAce}}
	snap := m.Snapshot()

	verdict := v.Validate(snap, Action{PlayerID: "a", Kind: ActionDeclareClaim, Seq: 3, Cards: []int{0, 1}})
	assert.False(t, verdict.Accepted)
	assert.Equal(t, RejectMalformedPayload, verdict.Reason)

	verdict = v.Validate(snap, Action{PlayerID: "a", Kind: ActionDeclareClaim, Seq: 3, Cards: []int{2, 0}})
	assert.Equal(t, RejectMalformedPayload, verdict.Reason)

	verdict = v.Validate(snap, Action{PlayerID: "a", Kind: ActionDeclareClaim, Seq: 3, Cards: []int{0}})
	assert.True(t, verdict.Accepted, verdict.Detail)

	verdict = v.Validate(snap, Action{PlayerID: "a", Kind: ActionDeclareClaim, Seq: 3, Cards: []int{1, 2, 3}})
	assert.True(t, verdict.Accepted, verdict.Detail)
}

func TestValidator_IsPure(t *testing.T) {
	v := NewValidator(DefaultLimits())
	m := windowMatch()
	snap := m.Snapshot()
	before := m.Snapshot()

	v.Validate(snap, Action{PlayerID: "b", Kind: ActionPass, Seq: 2})
	v.Validate(snap, Action{PlayerID: "c", Kind: ActionChallenge, Seq: 1})

	assert.Equal(t, before, m.Snapshot())
	assert.Equal(t, before, snap)
}
