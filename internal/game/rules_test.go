package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func challengeInput(played ...Card) ChallengeInput {
	return ChallengeInput{
		TableRank:  RankAce,
		Claimant:   "a",
		Challenger: "b",
		Played:     played,
		Alive: []SeatLives{
			{PlayerID: "a", Lives: 3},
			{PlayerID: "b", Lives: 2},
			{PlayerID: "c", Lives: 1},
		},
	}
}

func TestTruthRule(t *testing.T) {
	tests := []struct {
		name     string
		played   []Card
		truthful bool
		loser    string
		cause    string
	}{
		{"truthful", []Card{{Rank: RankAce}, {Rank: RankJoker}}, true, "b", "a"},
		{"bluff", []Card{{Rank: RankAce}, {Rank: RankKing}}, false, "a", "b"},
		{"demon counts as match", []Card{{Rank: RankAce, Demon: true}}, true, "b", "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := TruthRule{}.Resolve(challengeInput(tt.played...))
			assert.Equal(t, tt.truthful, out.Truthful)
			require.Len(t, out.Penalties, 1)
			assert.Equal(t, tt.loser, out.Penalties[0].PlayerID)
			assert.Equal(t, tt.cause, out.Penalties[0].Cause)
			assert.False(t, out.Penalties[0].Lethal)
			assert.False(t, out.Penalties[0].Shot)
		})
	}
}

func TestRouletteRule(t *testing.T) {
	t.Run("demon shoots everyone but the claimant", func(t *testing.T) {
		rule := RouletteRule{Random: &scriptedRandom{seq: []int{1, 0}}}
		out := rule.Resolve(challengeInput(Card{Rank: RankAce, Demon: true}))

		assert.True(t, out.Demon)
		require.Len(t, out.Penalties, 2)
		assert.Equal(t, "b", out.Penalties[0].PlayerID)
		assert.False(t, out.Penalties[0].Lethal)
		assert.Equal(t, "c", out.Penalties[1].PlayerID)
		assert.True(t, out.Penalties[1].Lethal)
		for _, p := range out.Penalties {
			assert.True(t, p.Shot)
			assert.Equal(t, "a", p.Cause)
		}
	})

	t.Run("bluff shoots the claimant", func(t *testing.T) {
		rule := RouletteRule{Random: &scriptedRandom{seq: []int{0}}}
		out := rule.Resolve(challengeInput(Card{Rank: RankQueen}))

		assert.False(t, out.Truthful)
		require.Len(t, out.Penalties, 1)
		assert.Equal(t, "a", out.Penalties[0].PlayerID)
		assert.True(t, out.Penalties[0].Lethal)
		assert.Equal(t, "b", out.Penalties[0].Cause)
	})

	t.Run("truth shoots the challenger", func(t *testing.T) {
		rule := RouletteRule{Random: &scriptedRandom{seq: []int{1}}}
		out := rule.Resolve(challengeInput(Card{Rank: RankAce}, Card{Rank: RankJoker}))

		assert.True(t, out.Truthful)
		require.Len(t, out.Penalties, 1)
		assert.Equal(t, "b", out.Penalties[0].PlayerID)
		assert.False(t, out.Penalties[0].Lethal)
	})

	t.Run("last life is always lethal", func(t *testing.T) {
		rule := RouletteRule{Random: &scriptedRandom{seq: []int{5}}}
		in := challengeInput(Card{Rank: RankAce})
		in.Challenger = "c"
		out := rule.Resolve(in)

		require.Len(t, out.Penalties, 1)
		assert.Equal(t, "c", out.Penalties[0].PlayerID)
		assert.True(t, out.Penalties[0].Lethal)
	})
}

func TestRuleByName(t *testing.T) {
	rnd := NewRandomSource(1)

	rule, err := RuleByName("truth", rnd)
	require.NoError(t, err)
	assert.Equal(t, "truth", rule.Name())

	rule, err = RuleByName(" Roulette ", rnd)
	require.NoError(t, err)
	assert.Equal(t, "roulette", rule.Name())

	rule, err = RuleByName("", rnd)
	require.NoError(t, err)
	assert.Equal(t, "roulette", rule.Name())

	_, err = RuleByName("poker", rnd)
	assert.Error(t, err)
}
