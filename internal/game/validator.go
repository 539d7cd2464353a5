package game

import (
	"fmt"
)

// TransitionEvent 状态机内部事件
type TransitionEvent string

const (
	TransitionStart     TransitionEvent = "start"
	TransitionClaim     TransitionEvent = "claim"
	TransitionPass      TransitionEvent = "pass"
	TransitionStand     TransitionEvent = "stand"
	TransitionChallenge TransitionEvent = "challenge"
	TransitionResolve   TransitionEvent = "resolve"
	TransitionForceEnd  TransitionEvent = "force_end"
)

// Delta 校验通过后要应用的状态变更
type Delta struct {
	Event      TransitionEvent
	Actor      string
	Seq        uint64
	Cards      []int
	Challenger string
	Reason     string
}

// Verdict 校验结论
type Verdict struct {
	Accepted bool         `json:"accepted"`
	Reason   RejectReason `json:"reason,omitempty"`
	Detail   string       `json:"detail,omitempty"`
	Delta    Delta        `json:"-"`
}

func accept(d Delta) Verdict {
	return Verdict{Accepted: true, Delta: d}
}

func reject(reason RejectReason, format string, args ...interface{}) Verdict {
	return Verdict{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Validator 动作校验，只读快照，无副作用
type Validator struct {
	limits Limits
}

// NewValidator 创建校验器
func NewValidator(limits Limits) Validator {
	return Validator{limits: limits}
}

// Validate 判定动作在快照上是否合法
func (v Validator) Validate(snap Snapshot, a Action) Verdict {
	if a.Seq == 0 {
		return reject(RejectMalformedPayload, "seq must be positive")
	}
	if a.MatchID != "" && a.MatchID != snap.MatchID {
		return reject(RejectMalformedPayload, "action for match %s routed to %s", a.MatchID, snap.MatchID)
	}
	switch a.Kind {
	case ActionStart, ActionPass, ActionChallenge, ActionResolveAck, ActionPassAll:
		if len(a.Cards) > 0 {
			return reject(RejectMalformedPayload, "%s carries no cards", a.Kind)
		}
	case ActionDeclareClaim:
	default:
		return reject(RejectMalformedPayload, "unknown action kind %q", a.Kind)
	}

	seat := snap.seatIndex(a.PlayerID)
	if seat < 0 && !(a.PlayerID == SystemActor && systemAllowed(a.Kind)) {
		return reject(RejectUnknownPlayer, "player %q is not seated", a.PlayerID)
	}
	if a.Seq <= snap.LastSeq[a.PlayerID] {
		return reject(RejectDuplicateAction, "seq %d already accepted (last %d)", a.Seq, snap.LastSeq[a.PlayerID])
	}
	if a.Version != 0 && a.Version != snap.Version {
		return reject(RejectStaleSequence, "version %d, match is at %d", a.Version, snap.Version)
	}
	if seat >= 0 && snap.Seats[seat].Eliminated {
		return reject(RejectWrongTurn, "player %s is eliminated", a.PlayerID)
	}

	d := Delta{Actor: a.PlayerID, Seq: a.Seq}
	switch a.Kind {
	case ActionStart:
		return v.start(snap, a, seat, d)
	case ActionDeclareClaim:
		return v.claim(snap, a, seat, d)
	case ActionPass:
		return v.pass(snap, a, d)
	case ActionChallenge:
		return v.challenge(snap, a, d)
	case ActionPassAll:
		return v.passAll(snap, d)
	default:
		return v.resolve(snap, d)
	}
}

// systemAllowed 可由适配器以系统身份提交的动作
func systemAllowed(kind ActionKind) bool {
	return kind == ActionPassAll || kind == ActionResolveAck
}

func (v Validator) start(snap Snapshot, a Action, seat int, d Delta) Verdict {
	if snap.State != StateLobby {
		return reject(RejectWrongState, "cannot start in %s", snap.State)
	}
	if seat != 0 {
		return reject(RejectWrongTurn, "only the host can start")
	}
	if len(snap.Seats) < v.limits.MinPlayers {
		return reject(RejectWrongState, "need %d players, have %d", v.limits.MinPlayers, len(snap.Seats))
	}
	d.Event = TransitionStart
	return accept(d)
}

func (v Validator) claim(snap Snapshot, a Action, seat int, d Delta) Verdict {
	if snap.State != StateAwaitingClaim {
		return reject(RejectWrongState, "cannot claim in %s", snap.State)
	}
	if seat != snap.Turn {
		return reject(RejectWrongTurn, "it is %s's turn", snap.CurrentPlayer)
	}
	n := len(a.Cards)
	if n < v.limits.MinClaimCards || n > v.limits.MaxClaimCards {
		return reject(RejectMalformedPayload, "claim must play %d-%d cards, got %d",
			v.limits.MinClaimCards, v.limits.MaxClaimCards, n)
	}
	handSize := snap.Seats[seat].HandSize
	seen := make(map[int]bool, n)
	for _, idx := range a.Cards {
		if idx < 0 || idx >= handSize {
			return reject(RejectMalformedPayload, "card index %d outside hand of %d", idx, handSize)
		}
		if seen[idx] {
			return reject(RejectMalformedPayload, "card index %d repeated", idx)
		}
		seen[idx] = true
		if n > 1 && snap.Seats[seat].holdsDemon(idx) {
			return reject(RejectMalformedPayload, "demon card at %d must be played alone", idx)
		}
	}
	d.Event = TransitionClaim
	d.Cards = append([]int(nil), a.Cards...)
	return accept(d)
}

func (v Validator) pass(snap Snapshot, a Action, d Delta) Verdict {
	if snap.State != StateChallengeWindow {
		return reject(RejectWrongState, "cannot pass in %s", snap.State)
	}
	if a.PlayerID == snap.Claim.PlayerID {
		return reject(RejectWrongTurn, "claimant cannot pass own claim")
	}
	if snap.ForcedChallenge() {
		return reject(RejectWrongState, "no other player holds cards, claim must be challenged")
	}
	if snap.hasPassed(a.PlayerID) {
		return reject(RejectDuplicateAction, "player %s already passed", a.PlayerID)
	}
	if snap.pendingPassers(a.PlayerID) == 0 {
		d.Event = TransitionStand
	} else {
		d.Event = TransitionPass
	}
	return accept(d)
}

func (v Validator) challenge(snap Snapshot, a Action, d Delta) Verdict {
	if snap.State != StateChallengeWindow {
		return reject(RejectWrongState, "cannot challenge in %s", snap.State)
	}
	if a.PlayerID == snap.Claim.PlayerID {
		return reject(RejectWrongTurn, "claimant cannot challenge own claim")
	}
	if snap.hasPassed(a.PlayerID) {
		return reject(RejectWrongTurn, "player %s already passed", a.PlayerID)
	}
	d.Event = TransitionChallenge
	d.Challenger = a.PlayerID
	return accept(d)
}

func (v Validator) passAll(snap Snapshot, d Delta) Verdict {
	if snap.State != StateChallengeWindow {
		return reject(RejectWrongState, "cannot pass_all in %s", snap.State)
	}
	if !snap.ForcedChallenge() {
		d.Event = TransitionStand
		return accept(d)
	}
	claimant := snap.seatIndex(snap.Claim.PlayerID)
	next, ok := snap.nextAliveSeat(claimant)
	if !ok {
		// 无人可质疑，交由状态机按不变量破坏处理
		d.Event = TransitionChallenge
		return accept(d)
	}
	d.Event = TransitionChallenge
	d.Challenger = snap.Seats[next].PlayerID
	return accept(d)
}

func (v Validator) resolve(snap Snapshot, d Delta) Verdict {
	if snap.State != StateResolving {
		return reject(RejectWrongState, "nothing to acknowledge in %s", snap.State)
	}
	d.Event = TransitionResolve
	return accept(d)
}
