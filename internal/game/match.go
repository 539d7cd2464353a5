package game

import (
	"time"
)

// Seat 座位上的玩家
type Seat struct {
	PlayerID           string
	Lives              int
	Eliminated         bool
	Hand               []Card
	ShotsSurvived      int
	EliminationsCaused int
}

// Alive 是否仍在场
func (s *Seat) Alive() bool {
	return !s.Eliminated
}

// Claim 当前声明
type Claim struct {
	Seat   int
	Player string
	Cards  []Card
}

// Elimination 淘汰记录
type Elimination struct {
	PlayerID     string
	Round        int
	EliminatedBy string
	At           time.Time
}

// Match 对局聚合根，只能在对局互斥槽内修改
type Match struct {
	ID        string
	Seats     []*Seat
	State     MatchState
	Turn      int
	Version   uint64
	Round     int
	TableRank Rank

	Claim      *Claim
	Passed     map[string]bool
	Challenger string
	Pending    *ChallengeOutcome
	// Stands 全员放过，声明成立
	Stands bool

	Winner       string
	EndReason    EndReason
	Eliminations []Elimination
	LastSeq      map[string]uint64

	CreatedAt time.Time
	StartedAt time.Time
	EndedAt   time.Time
}

// NewMatch 创建处于大厅状态的对局，房主为0号座位
func NewMatch(id string, players []string, lives int, now time.Time) *Match {
	seats := make([]*Seat, len(players))
	for i, p := range players {
		seats[i] = &Seat{PlayerID: p, Lives: lives}
	}
	return &Match{
		ID:        id,
		Seats:     seats,
		State:     StateLobby,
		Turn:      0,
		Passed:    make(map[string]bool),
		LastSeq:   make(map[string]uint64),
		CreatedAt: now,
	}
}

// SeatOf 玩家座位号，不在座返回-1
func (m *Match) SeatOf(playerID string) int {
	for i, s := range m.Seats {
		if s.PlayerID == playerID {
			return i
		}
	}
	return -1
}

// Players 座位顺序的玩家ID
func (m *Match) Players() []string {
	ids := make([]string, len(m.Seats))
	for i, s := range m.Seats {
		ids[i] = s.PlayerID
	}
	return ids
}

// AliveCount 存活人数
func (m *Match) AliveCount() int {
	n := 0
	for _, s := range m.Seats {
		if s.Alive() {
			n++
		}
	}
	return n
}

// CurrentPlayer 当前回合玩家，终态返回空串
func (m *Match) CurrentPlayer() string {
	if m.State.Terminal() || m.Turn < 0 || m.Turn >= len(m.Seats) {
		return ""
	}
	return m.Seats[m.Turn].PlayerID
}

// nextAlive 从 from 之后按座位顺序寻找存活玩家，不包括 from 本身
func (m *Match) nextAlive(from int, withCards bool) (int, bool) {
	n := len(m.Seats)
	for i := 1; i < n; i++ {
		idx := (from + i) % n
		s := m.Seats[idx]
		if !s.Alive() {
			continue
		}
		if withCards && len(s.Hand) == 0 {
			continue
		}
		return idx, true
	}
	return -1, false
}

// othersHoldCards 声明者以外的存活玩家是否还有手牌
func (m *Match) othersHoldCards(claimant int) bool {
	for i, s := range m.Seats {
		if i != claimant && s.Alive() && len(s.Hand) > 0 {
			return true
		}
	}
	return false
}

// Hand 玩家手牌副本
func (m *Match) Hand(playerID string) ([]Card, bool) {
	idx := m.SeatOf(playerID)
	if idx < 0 {
		return nil, false
	}
	hand := make([]Card, len(m.Seats[idx].Hand))
	copy(hand, m.Seats[idx].Hand)
	return hand, true
}

// seatState 转换前的座位与淘汰记录，转换失败时回滚
type seatState struct {
	seats        []Seat
	eliminations int
}

func (m *Match) saveSeats() seatState {
	st := seatState{seats: make([]Seat, len(m.Seats)), eliminations: len(m.Eliminations)}
	for i, s := range m.Seats {
		st.seats[i] = *s
		st.seats[i].Hand = append([]Card(nil), s.Hand...)
	}
	return st
}

func (m *Match) restoreSeats(st seatState) {
	for i := range m.Seats {
		*m.Seats[i] = st.seats[i]
	}
	m.Eliminations = m.Eliminations[:st.eliminations]
}

// SeatView 座位的公开视图
type SeatView struct {
	PlayerID      string `json:"player_id"`
	Lives         int    `json:"lives"`
	Eliminated    bool   `json:"eliminated"`
	HandSize      int    `json:"hand_size"`
	ShotsSurvived int    `json:"shots_survived"`

	// demons 手牌中恶魔牌的位置，不对外公开
	demons []int
}

// ClaimView 声明的公开视图，只暴露张数
type ClaimView struct {
	PlayerID string `json:"player_id"`
	Count    int    `json:"count"`
}

// Snapshot 对局的只读快照，供校验器与外部查询使用
type Snapshot struct {
	MatchID       string     `json:"match_id"`
	State         MatchState `json:"state"`
	Version       uint64     `json:"version"`
	Round         int        `json:"round"`
	TableRank     Rank       `json:"table_rank,omitempty"`
	Turn          int        `json:"turn"`
	CurrentPlayer string     `json:"current_player,omitempty"`
	Seats         []SeatView `json:"seats"`
	Claim         *ClaimView `json:"claim,omitempty"`
	Passed        []string   `json:"passed,omitempty"`
	Challenger    string     `json:"challenger,omitempty"`
	Stands        bool       `json:"stands,omitempty"`
	Winner        string     `json:"winner,omitempty"`
	EndReason     EndReason  `json:"end_reason,omitempty"`

	LastSeq map[string]uint64 `json:"-"`
}

// Snapshot 生成快照
func (m *Match) Snapshot() Snapshot {
	snap := Snapshot{
		MatchID:       m.ID,
		State:         m.State,
		Version:       m.Version,
		Round:         m.Round,
		TableRank:     m.TableRank,
		Turn:          m.Turn,
		CurrentPlayer: m.CurrentPlayer(),
		Seats:         make([]SeatView, len(m.Seats)),
		Challenger:    m.Challenger,
		Stands:        m.Stands,
		Winner:        m.Winner,
		EndReason:     m.EndReason,
		LastSeq:       make(map[string]uint64, len(m.LastSeq)),
	}
	if m.State.Terminal() {
		snap.Turn = -1
	}
	for i, s := range m.Seats {
		snap.Seats[i] = SeatView{
			PlayerID:      s.PlayerID,
			Lives:         s.Lives,
			Eliminated:    s.Eliminated,
			HandSize:      len(s.Hand),
			ShotsSurvived: s.ShotsSurvived,
		}
		for j, c := range s.Hand {
			if c.Demon {
				snap.Seats[i].demons = append(snap.Seats[i].demons, j)
			}
		}
	}
	if m.Claim != nil {
		snap.Claim = &ClaimView{PlayerID: m.Claim.Player, Count: len(m.Claim.Cards)}
	}
	for _, s := range m.Seats {
		if m.Passed[s.PlayerID] {
			snap.Passed = append(snap.Passed, s.PlayerID)
		}
	}
	for k, v := range m.LastSeq {
		snap.LastSeq[k] = v
	}
	return snap
}

// seatIndex 快照中的座位号
func (s Snapshot) seatIndex(playerID string) int {
	for i, seat := range s.Seats {
		if seat.PlayerID == playerID {
			return i
		}
	}
	return -1
}

// holdsDemon 座位手牌的 idx 位置是否为恶魔牌
func (v SeatView) holdsDemon(idx int) bool {
	for _, d := range v.demons {
		if d == idx {
			return true
		}
	}
	return false
}

// hasPassed 快照中玩家是否已放过
func (s Snapshot) hasPassed(playerID string) bool {
	for _, p := range s.Passed {
		if p == playerID {
			return true
		}
	}
	return false
}

// ForcedChallenge 声明后其他存活玩家均无手牌，必须质疑
func (s Snapshot) ForcedChallenge() bool {
	if s.State != StateChallengeWindow || s.Claim == nil {
		return false
	}
	for _, seat := range s.Seats {
		if seat.PlayerID != s.Claim.PlayerID && !seat.Eliminated && seat.HandSize > 0 {
			return false
		}
	}
	return true
}

// nextAliveSeat 快照中 from 之后的下一个存活座位
func (s Snapshot) nextAliveSeat(from int) (int, bool) {
	n := len(s.Seats)
	for i := 1; i < n; i++ {
		idx := (from + i) % n
		if !s.Seats[idx].Eliminated {
			return idx, true
		}
	}
	return -1, false
}

// pendingPassers 尚未放过的合格玩家数（不含 except）
func (s Snapshot) pendingPassers(except string) int {
	n := 0
	for _, seat := range s.Seats {
		if seat.Eliminated || seat.PlayerID == s.Claim.PlayerID || seat.PlayerID == except {
			continue
		}
		if !s.hasPassed(seat.PlayerID) {
			n++
		}
	}
	return n
}
