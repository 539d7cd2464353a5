package game

import (
	"math/rand/v2"
	"sync"
)

// Rank 牌面
type Rank string

const (
	RankAce   Rank = "A"
	RankQueen Rank = "Q"
	RankKing  Rank = "K"
	RankJoker Rank = "J"
)

// TableRanks 可作为桌面牌的牌面
var TableRanks = []Rank{RankAce, RankQueen, RankKing}

// deckComposition 20张牌的构成
var deckComposition = []struct {
	rank  Rank
	count int
}{
	{RankAce, 7},
	{RankQueen, 6},
	{RankKing, 5},
	{RankJoker, 2},
}

// Card 一张牌，Demon标记恶魔牌
type Card struct {
	Rank  Rank `json:"rank"`
	Demon bool `json:"demon,omitempty"`
}

// Matches 是否符合桌面牌：同牌面、王牌或恶魔牌
func (c Card) Matches(table Rank) bool {
	return c.Rank == table || c.Rank == RankJoker || c.Demon
}

// RandomSource 随机数来源，测试中可替换为脚本序列
type RandomSource interface {
	// IntN 返回 [0, n) 内的整数
	IntN(n int) int
}

// lockedRandom 并发安全的随机源
type lockedRandom struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandomSource 创建并发安全的随机源
func NewRandomSource(seed uint64) RandomSource {
	return &lockedRandom{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (r *lockedRandom) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.IntN(n)
}

// RoundDeal 一轮发牌结果
type RoundDeal struct {
	TableRank Rank
	Hands     [][]Card
}

// Dealer 发牌器
type Dealer interface {
	// Deal 为 players 名存活玩家各发 handSize 张牌
	Deal(players, handSize int) RoundDeal
}

// RandomDealer 洗牌发牌
type RandomDealer struct {
	rnd RandomSource
}

// NewRandomDealer 创建发牌器
func NewRandomDealer(rnd RandomSource) *RandomDealer {
	return &RandomDealer{rnd: rnd}
}

// NewDeck 按桌面牌生成一副牌，其中一张桌面牌为恶魔牌
func NewDeck(table Rank) []Card {
	deck := make([]Card, 0, 20)
	demonSet := false
	for _, c := range deckComposition {
		for i := 0; i < c.count; i++ {
			card := Card{Rank: c.rank}
			if c.rank == table && !demonSet {
				card.Demon = true
				demonSet = true
			}
			deck = append(deck, card)
		}
	}
	return deck
}

// Deal 实现 Dealer
func (d *RandomDealer) Deal(players, handSize int) RoundDeal {
	table := TableRanks[d.rnd.IntN(len(TableRanks))]
	deck := NewDeck(table)

	// Fisher-Yates
	for i := len(deck) - 1; i > 0; i-- {
		j := d.rnd.IntN(i + 1)
		deck[i], deck[j] = deck[j], deck[i]
	}

	hands := make([][]Card, players)
	next := 0
	for p := 0; p < players; p++ {
		n := min(handSize, len(deck)-next)
		hand := make([]Card, n)
		copy(hand, deck[next:next+n])
		hands[p] = hand
		next += n
	}
	return RoundDeal{TableRank: table, Hands: hands}
}
