package game

import (
	"fmt"
	"sort"
	"time"

	apperrors "github.com/wfunc/liar-bar/internal/errors"
	"go.uber.org/zap"
)

// effect 转换动作的产出，to 为空时使用转换表中的目标状态
type effect struct {
	to    MatchState
	event EventType
	data  map[string]interface{}
}

// StateTransition 状态转换定义
type StateTransition struct {
	From   MatchState
	Event  TransitionEvent
	To     MatchState
	Action func(sm *StateMachine, d Delta) (effect, error)
}

// StateMachine 单个对局的状态机，调用方负责串行化
type StateMachine struct {
	match       *Match
	limits      Limits
	rule        ChallengeRule
	dealer      Dealer
	logger      *zap.Logger
	now         func() time.Time
	transitions map[string]StateTransition
}

// NewStateMachine 创建状态机
func NewStateMachine(m *Match, limits Limits, rule ChallengeRule, dealer Dealer, logger *zap.Logger, now func() time.Time) *StateMachine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	sm := &StateMachine{
		match:       m,
		limits:      limits,
		rule:        rule,
		dealer:      dealer,
		logger:      logger,
		now:         now,
		transitions: make(map[string]StateTransition),
	}
	sm.initTransitions()
	return sm
}

// initTransitions 初始化状态转换表
func (sm *StateMachine) initTransitions() {
	// 大厅 -> 等待声明
	sm.addTransition(StateTransition{
		From: StateLobby, Event: TransitionStart, To: StateAwaitingClaim,
		Action: (*StateMachine).start,
	})

	// 等待声明 -> 质疑窗口
	sm.addTransition(StateTransition{
		From: StateAwaitingClaim, Event: TransitionClaim, To: StateChallengeWindow,
		Action: (*StateMachine).claim,
	})

	// 质疑窗口内放过，窗口保持
	sm.addTransition(StateTransition{
		From: StateChallengeWindow, Event: TransitionPass, To: StateChallengeWindow,
		Action: (*StateMachine).pass,
	})

	// 全员放过 -> 结算（声明成立）
	sm.addTransition(StateTransition{
		From: StateChallengeWindow, Event: TransitionStand, To: StateResolving,
		Action: (*StateMachine).stand,
	})

	// 质疑 -> 结算
	sm.addTransition(StateTransition{
		From: StateChallengeWindow, Event: TransitionChallenge, To: StateResolving,
		Action: (*StateMachine).challenge,
	})

	// 结算 -> 等待声明 或 结束
	sm.addTransition(StateTransition{
		From: StateResolving, Event: TransitionResolve, To: StateAwaitingClaim,
		Action: (*StateMachine).resolve,
	})

	// 任何非终态 -> 强制结束
	for _, state := range []MatchState{StateLobby, StateAwaitingClaim, StateChallengeWindow, StateResolving} {
		sm.addTransition(StateTransition{
			From: state, Event: TransitionForceEnd, To: StateEnded,
			Action: (*StateMachine).forceEnd,
		})
	}
}

// addTransition 添加状态转换
func (sm *StateMachine) addTransition(t StateTransition) {
	sm.transitions[transitionKey(t.From, t.Event)] = t
}

// transitionKey 生成转换键
func transitionKey(state MatchState, event TransitionEvent) string {
	return fmt.Sprintf("%s:%s", state, event)
}

// Match 对局聚合
func (sm *StateMachine) Match() *Match {
	return sm.match
}

// State 当前状态
func (sm *StateMachine) State() MatchState {
	return sm.match.State
}

// CanApply 当前状态下是否存在该转换
func (sm *StateMachine) CanApply(event TransitionEvent) bool {
	_, ok := sm.transitions[transitionKey(sm.match.State, event)]
	return ok
}

// Apply 应用一次已校验的变更，恰好产生一个事件
func (sm *StateMachine) Apply(d Delta) (MatchEvent, error) {
	m := sm.match
	t, ok := sm.transitions[transitionKey(m.State, d.Event)]
	if !ok {
		return MatchEvent{}, apperrors.Newf(apperrors.ErrValidation, "无效的状态转换: 状态=%s, 事件=%s", m.State, d.Event)
	}

	from := m.State
	saved := m.saveSeats()
	eff, err := t.Action(sm, d)
	if err != nil {
		m.restoreSeats(saved)
		if !apperrors.IsCritical(err) {
			return MatchEvent{}, err
		}
		sm.logger.Error("对局不变量被破坏，强制结束",
			zap.String("match_id", m.ID),
			zap.String("state", string(from)),
			zap.String("event", string(d.Event)),
			zap.Error(err))
		eff = sm.abort(err)
	}

	to := eff.to
	if to == "" {
		to = t.To
	}
	m.State = to
	m.Version++
	if d.Seq > 0 {
		m.LastSeq[d.Actor] = d.Seq
	}

	ev := MatchEvent{
		MatchID: m.ID,
		Version: m.Version,
		Type:    eff.event,
		State:   to,
		Actor:   d.Actor,
		Turn:    m.CurrentPlayer(),
		Data:    eff.data,
		At:      sm.now(),
	}

	sm.logger.Info("状态转换",
		zap.String("match_id", m.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("event", string(d.Event)),
		zap.Uint64("version", m.Version))
	return ev, nil
}

// ForceEnd 管理员强制结束
func (sm *StateMachine) ForceEnd(reason string) (MatchEvent, error) {
	return sm.Apply(Delta{Event: TransitionForceEnd, Reason: reason})
}

func (sm *StateMachine) start(d Delta) (effect, error) {
	m := sm.match
	m.StartedAt = sm.now()
	m.Turn = 0
	sm.deal()
	return effect{
		event: EventMatchStarted,
		data: map[string]interface{}{
			"round":      m.Round,
			"table_rank": m.TableRank,
			"players":    m.Players(),
		},
	}, nil
}

func (sm *StateMachine) claim(d Delta) (effect, error) {
	m := sm.match
	seat := m.Seats[m.Turn]

	idx := append([]int(nil), d.Cards...)
	sort.Sort(sort.Reverse(sort.IntSlice(idx)))
	played := make([]Card, 0, len(idx))
	for _, i := range idx {
		played = append(played, seat.Hand[i])
		seat.Hand = append(seat.Hand[:i], seat.Hand[i+1:]...)
	}

	m.Claim = &Claim{Seat: m.Turn, Player: seat.PlayerID, Cards: played}
	m.Passed = make(map[string]bool)
	m.Challenger = ""
	m.Pending = nil
	m.Stands = false

	return effect{
		event: EventClaimDeclared,
		data: map[string]interface{}{
			"count":      len(played),
			"table_rank": m.TableRank,
			"hand_left":  len(seat.Hand),
			"forced":     !m.othersHoldCards(m.Turn),
		},
	}, nil
}

func (sm *StateMachine) pass(d Delta) (effect, error) {
	sm.match.Passed[d.Actor] = true
	return effect{
		event: EventChallengePassed,
		data:  map[string]interface{}{"player": d.Actor},
	}, nil
}

func (sm *StateMachine) stand(d Delta) (effect, error) {
	m := sm.match
	if d.Actor != SystemActor {
		m.Passed[d.Actor] = true
	}
	m.Stands = true
	return effect{
		event: EventChallengeResolved,
		data: map[string]interface{}{
			"claimant":     m.Claim.Player,
			"claim_stands": true,
		},
	}, nil
}

func (sm *StateMachine) challenge(d Delta) (effect, error) {
	m := sm.match
	if d.Challenger == "" {
		return effect{}, apperrors.Newf(apperrors.ErrInvariantViolation, "对局 %s 无可质疑的玩家", m.ID)
	}

	alive := make([]SeatLives, 0, len(m.Seats))
	for _, s := range m.Seats {
		if s.Alive() {
			alive = append(alive, SeatLives{PlayerID: s.PlayerID, Lives: s.Lives})
		}
	}
	outcome := sm.rule.Resolve(ChallengeInput{
		TableRank:  m.TableRank,
		Claimant:   m.Claim.Player,
		Challenger: d.Challenger,
		Played:     append([]Card(nil), m.Claim.Cards...),
		Alive:      alive,
	})
	m.Challenger = d.Challenger
	m.Pending = &outcome

	return effect{
		event: EventChallengeResolved,
		data: map[string]interface{}{
			"claimant":     m.Claim.Player,
			"challenger":   d.Challenger,
			"revealed":     m.Claim.Cards,
			"truthful":     outcome.Truthful,
			"demon":        outcome.Demon,
			"penalties":    outcome.Penalties,
			"claim_stands": false,
			"rule":         sm.rule.Name(),
		},
	}, nil
}

func (sm *StateMachine) resolve(d Delta) (effect, error) {
	m := sm.match
	if m.Stands {
		return sm.resolveStands()
	}
	if m.Pending == nil {
		return effect{}, apperrors.Newf(apperrors.ErrInvariantViolation, "对局 %s 结算时缺少质疑结果", m.ID)
	}

	eliminated := sm.applyPenalties(m.Pending.Penalties)
	challenger := m.SeatOf(m.Challenger)
	m.Claim = nil
	m.Pending = nil
	m.Passed = make(map[string]bool)

	if m.AliveCount() <= 1 {
		return sm.end(eliminated), nil
	}

	next := challenger
	if next < 0 || !m.Seats[next].Alive() {
		var ok bool
		if next, ok = m.nextAlive(max(challenger, 0), false); !ok {
			return effect{}, apperrors.Newf(apperrors.ErrInvariantViolation, "对局 %s 轮转时没有可行动的玩家", m.ID)
		}
	}
	m.Challenger = ""
	m.Turn = next
	sm.deal()

	data := map[string]interface{}{
		"round":      m.Round,
		"table_rank": m.TableRank,
		"player":     m.Seats[next].PlayerID,
	}
	if len(eliminated) > 0 {
		data["eliminated"] = eliminated
		return effect{event: EventPlayerEliminated, data: data}, nil
	}
	return effect{event: EventTurnAdvanced, data: data}, nil
}

// resolveStands 声明成立，轮到声明者之后第一个有牌的存活玩家，不重新发牌
func (sm *StateMachine) resolveStands() (effect, error) {
	m := sm.match
	claimant := m.Claim.Seat
	next, ok := m.nextAlive(claimant, true)
	if !ok {
		return effect{}, apperrors.Newf(apperrors.ErrInvariantViolation, "对局 %s 轮转时没有持牌的玩家", m.ID)
	}
	m.Turn = next
	m.Claim = nil
	m.Stands = false
	m.Passed = make(map[string]bool)
	return effect{
		event: EventTurnAdvanced,
		data: map[string]interface{}{
			"round":        m.Round,
			"player":       m.Seats[next].PlayerID,
			"claim_stands": true,
		},
	}, nil
}

// applyPenalties 执行惩罚，返回本次被淘汰的玩家
func (sm *StateMachine) applyPenalties(penalties []Penalty) []string {
	m := sm.match
	var eliminated []string
	for _, p := range penalties {
		idx := m.SeatOf(p.PlayerID)
		if idx < 0 || !m.Seats[idx].Alive() {
			continue
		}
		seat := m.Seats[idx]
		if p.Lethal {
			seat.Lives = 0
		} else {
			seat.Lives--
		}
		if seat.Lives > 0 {
			if p.Shot {
				seat.ShotsSurvived++
			}
			continue
		}

		seat.Lives = 0
		seat.Eliminated = true
		seat.Hand = nil
		if by := m.SeatOf(p.Cause); by >= 0 && p.Cause != p.PlayerID {
			m.Seats[by].EliminationsCaused++
		}
		m.Eliminations = append(m.Eliminations, Elimination{
			PlayerID:     p.PlayerID,
			Round:        m.Round,
			EliminatedBy: p.Cause,
			At:           sm.now(),
		})
		eliminated = append(eliminated, p.PlayerID)
	}
	return eliminated
}

// end 存活不超过一人时结束
func (sm *StateMachine) end(eliminated []string) effect {
	m := sm.match
	m.EndedAt = sm.now()
	m.Winner = ""
	for _, s := range m.Seats {
		if s.Alive() {
			m.Winner = s.PlayerID
		}
	}
	if m.Winner != "" {
		m.EndReason = EndLastStanding
	} else {
		m.EndReason = EndNoSurvivors
	}
	return effect{
		to:    StateEnded,
		event: EventMatchEnded,
		data: map[string]interface{}{
			"winner":     m.Winner,
			"reason":     m.EndReason,
			"eliminated": eliminated,
			"rounds":     m.Round,
		},
	}
}

func (sm *StateMachine) forceEnd(d Delta) (effect, error) {
	m := sm.match
	m.EndedAt = sm.now()
	m.Winner = ""
	m.EndReason = EndForced
	return effect{
		event: EventMatchEnded,
		data: map[string]interface{}{
			"reason": m.EndReason,
			"detail": d.Reason,
			"rounds": m.Round,
		},
	}, nil
}

// abort 不变量破坏时无胜者结束
func (sm *StateMachine) abort(cause error) effect {
	m := sm.match
	m.EndedAt = sm.now()
	m.Winner = ""
	m.EndReason = EndInvariantViolation
	m.Claim = nil
	m.Pending = nil
	return effect{
		to:    StateEnded,
		event: EventMatchEnded,
		data: map[string]interface{}{
			"reason": m.EndReason,
			"detail": cause.Error(),
			"rounds": m.Round,
		},
	}
}

// deal 开始新一轮并给存活玩家发牌
func (sm *StateMachine) deal() {
	m := sm.match
	m.Round++
	alive := make([]*Seat, 0, len(m.Seats))
	for _, s := range m.Seats {
		s.Hand = nil
		if s.Alive() {
			alive = append(alive, s)
		}
	}
	round := sm.dealer.Deal(len(alive), sm.limits.HandSize)
	m.TableRank = round.TableRank
	for i, s := range alive {
		if i < len(round.Hands) {
			s.Hand = round.Hands[i]
		}
	}
}
