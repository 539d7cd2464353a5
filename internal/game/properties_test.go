package game

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// randomPlay 用随机但合法的动作推进对局直到结束，返回接受的动作数与质疑次数
func randomPlay(t *testing.T, seed uint64, players []string, lives int) (accepted, challenges int) {
	t.Helper()
	rnd := NewRandomSource(seed)
	pick := rand.New(rand.NewPCG(seed, 1))
	o := newTestOrchestrator(t, limitsWithLives(lives), RouletteRule{Random: rnd}, NewRandomDealer(rnd), &fakeSink{auto: true})
	ctx := context.Background()

	id, err := o.CreateMatch(ctx, players)
	require.NoError(t, err)
	seq := map[string]uint64{}
	submit := func(player string, kind ActionKind, cards ...int) *Outcome {
		seq[player]++
		out, err := o.SubmitAction(ctx, Action{MatchID: id, PlayerID: player, Kind: kind, Seq: seq[player], Cards: cards})
		require.NoError(t, err)
		return out
	}

	n := len(players)
	bound := n * lives * (n*5*(n+1) + 3)
	submit(players[0], ActionStart)
	accepted = 1

	for accepted <= bound {
		snap, err := o.Snapshot(id)
		if err != nil {
			// 已结束并落库
			return accepted, challenges
		}
		if snap.State == StateEnded {
			return accepted, challenges
		}
		checkTurnInvariant(t, snap)

		var out *Outcome
		switch snap.State {
		case StateAwaitingClaim:
			hand := snap.Seats[snap.Turn].HandSize
			count := 1 + pick.IntN(min(3, hand))
			cards := pick.Perm(hand)[:count]
			held, err := o.Hand(id, snap.CurrentPlayer)
			require.NoError(t, err)
			for _, idx := range cards {
				if held[idx].Demon {
					cards = []int{idx}
					break
				}
			}
			out = submit(snap.CurrentPlayer, ActionDeclareClaim, cards...)
		case StateChallengeWindow:
			var eligible []string
			for _, s := range snap.Seats {
				if !s.Eliminated && s.PlayerID != snap.Claim.PlayerID && !snap.hasPassed(s.PlayerID) {
					eligible = append(eligible, s.PlayerID)
				}
			}
			switch r := pick.IntN(4); {
			case r == 0 || len(eligible) == 0:
				out = submit(SystemActor, ActionPassAll)
			case r == 1 && !snap.ForcedChallenge():
				out = submit(eligible[pick.IntN(len(eligible))], ActionPass)
			default:
				out = submit(eligible[pick.IntN(len(eligible))], ActionChallenge)
			}
			if out.Verdict.Accepted && out.Events[0].Data["claim_stands"] == false {
				challenges++
			}
		case StateResolving:
			out = submit(SystemActor, ActionResolveAck)
		}
		require.True(t, out.Verdict.Accepted, "%s: %s", out.Verdict.Reason, out.Verdict.Detail)
		require.Len(t, out.Events, 1)
		accepted++

		if ev := out.Events[0]; ev.Turn != "" {
			idx := snap.seatIndex(ev.Turn)
			require.GreaterOrEqual(t, idx, 0)
		}
	}
	t.Fatalf("match did not terminate within %d actions", bound)
	return accepted, challenges
}

// checkTurnInvariant 非终态恰有一名当前玩家，且不是已淘汰玩家
func checkTurnInvariant(t *testing.T, snap Snapshot) {
	t.Helper()
	require.GreaterOrEqual(t, snap.Turn, 0)
	require.Less(t, snap.Turn, len(snap.Seats))
	current := snap.Seats[snap.Turn]
	require.Equal(t, current.PlayerID, snap.CurrentPlayer)
	require.False(t, current.Eliminated, "eliminated player %s holds the turn", current.PlayerID)
	if snap.State == StateAwaitingClaim {
		require.Positive(t, current.HandSize, "current player %s has no cards", current.PlayerID)
	}
}

func TestProperty_RandomPlayKeepsTurnInvariantAndTerminates(t *testing.T) {
	tables := [][]string{
		{"a", "b"},
		{"a", "b", "c"},
		{"a", "b", "c", "d"},
	}
	for seed := uint64(1); seed <= 40; seed++ {
		players := tables[seed%uint64(len(tables))]
		lives := 1 + int(seed%6)
		accepted, challenges := randomPlay(t, seed, players, lives)

		// 每次质疑至少消耗一条命
		assert.LessOrEqual(t, challenges, len(players)*lives, "seed %d", seed)
		assert.Positive(t, accepted)
	}
}

func TestProperty_EliminatedNeverActs(t *testing.T) {
	o := newTestOrchestrator(t, limitsWithLives(1), TruthRule{}, bluffDealer, nil)
	id, err := o.CreateMatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	d := newDriver(t, o, id)

	d.accept("a", ActionStart)
	d.accept("a", ActionDeclareClaim, 0)
	d.accept("b", ActionChallenge)
	ev := d.accept("b", ActionResolveAck)
	require.Equal(t, EventPlayerEliminated, ev.Type)

	d.rejected("a", ActionDeclareClaim, RejectWrongTurn, 0)
	d.accept("b", ActionDeclareClaim, 0)
	d.rejected("a", ActionChallenge, RejectWrongTurn)
	d.rejected("a", ActionPass, RejectWrongTurn)

	// 两人局中只剩c可以放过，a不被等待
	ev = d.accept("c", ActionPass)
	assert.Equal(t, EventChallengeResolved, ev.Type)
	ev = d.accept("c", ActionResolveAck)
	assert.Equal(t, "c", ev.Turn)
}
