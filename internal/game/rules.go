package game

import (
	"fmt"
	"strings"
)

// SeatLives 结算时的存活玩家
type SeatLives struct {
	PlayerID string
	Lives    int
}

// ChallengeInput 质疑结算输入
type ChallengeInput struct {
	TableRank  Rank
	Claimant   string
	Challenger string
	Played     []Card
	// Alive 按座位顺序的存活玩家，包含声明者与质疑者
	Alive []SeatLives
}

// Penalty 一次惩罚
type Penalty struct {
	PlayerID string `json:"player_id"`
	// Lethal 直接清零生命
	Lethal bool `json:"lethal"`
	// Shot 轮盘开枪，未致命计为幸存一次
	Shot bool `json:"shot"`
	// Cause 被记为造成该惩罚的玩家
	Cause string `json:"cause,omitempty"`
}

// ChallengeOutcome 质疑结算结果
type ChallengeOutcome struct {
	Truthful  bool      `json:"truthful"`
	Demon     bool      `json:"demon"`
	Penalties []Penalty `json:"penalties"`
}

// ChallengeRule 可插拔的质疑判定规则
type ChallengeRule interface {
	Name() string
	Resolve(in ChallengeInput) ChallengeOutcome
}

// inspect 检查出牌是否全部符合、是否含恶魔牌
func inspect(table Rank, played []Card) (truthful, demon bool) {
	truthful = true
	for _, c := range played {
		if c.Demon {
			demon = true
		}
		if !c.Matches(table) {
			truthful = false
		}
	}
	return truthful, demon
}

// TruthRule 声明属实则质疑者扣一命，否则声明者扣一命
type TruthRule struct{}

func (TruthRule) Name() string { return "truth" }

func (TruthRule) Resolve(in ChallengeInput) ChallengeOutcome {
	truthful, demon := inspect(in.TableRank, in.Played)
	out := ChallengeOutcome{Truthful: truthful, Demon: demon}
	if truthful {
		out.Penalties = []Penalty{{PlayerID: in.Challenger, Cause: in.Claimant}}
	} else {
		out.Penalties = []Penalty{{PlayerID: in.Claimant, Cause: in.Challenger}}
	}
	return out
}

// RouletteRule 恶魔牌令除声明者外所有人开枪；
// 有不符合的牌时声明者开枪；否则质疑者开枪
type RouletteRule struct {
	Random RandomSource
}

func (RouletteRule) Name() string { return "roulette" }

func (r RouletteRule) Resolve(in ChallengeInput) ChallengeOutcome {
	truthful, demon := inspect(in.TableRank, in.Played)
	out := ChallengeOutcome{Truthful: truthful, Demon: demon}

	switch {
	case demon:
		for _, s := range in.Alive {
			if s.PlayerID == in.Claimant {
				continue
			}
			out.Penalties = append(out.Penalties, r.shoot(s, in.Claimant))
		}
	case !truthful:
		out.Penalties = []Penalty{r.shoot(r.lives(in, in.Claimant), in.Challenger)}
	default:
		out.Penalties = []Penalty{r.shoot(r.lives(in, in.Challenger), in.Claimant)}
	}
	return out
}

// shoot 在 [1, max(1, lives)] 中抽取，抽中1为致命
func (r RouletteRule) shoot(s SeatLives, cause string) Penalty {
	chambers := max(1, s.Lives)
	roll := r.Random.IntN(chambers) + 1
	return Penalty{PlayerID: s.PlayerID, Lethal: roll == 1, Shot: true, Cause: cause}
}

func (RouletteRule) lives(in ChallengeInput, playerID string) SeatLives {
	for _, s := range in.Alive {
		if s.PlayerID == playerID {
			return s
		}
	}
	return SeatLives{PlayerID: playerID, Lives: 1}
}

// RuleByName 按配置名称选择规则
func RuleByName(name string, rnd RandomSource) (ChallengeRule, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "truth":
		return TruthRule{}, nil
	case "", "roulette":
		return RouletteRule{Random: rnd}, nil
	default:
		return nil, fmt.Errorf("unknown challenge rule %q", name)
	}
}
