package game

import (
	"time"
)

// MatchState 对局状态
type MatchState string

const (
	StateLobby           MatchState = "LOBBY"                     // 等待开局
	StateAwaitingClaim   MatchState = "AWAITING_CLAIM"            // 等待当前玩家出牌声明
	StateChallengeWindow MatchState = "AWAITING_CHALLENGE_WINDOW" // 质疑窗口
	StateResolving       MatchState = "RESOLVING"                 // 结算中，等待确认
	StateEnded           MatchState = "ENDED"                     // 已结束
)

// Terminal 是否终态
func (s MatchState) Terminal() bool {
	return s == StateEnded
}

// ActionKind 玩家动作类型
type ActionKind string

const (
	ActionStart        ActionKind = "start"
	ActionDeclareClaim ActionKind = "declare_claim"
	ActionPass         ActionKind = "pass"
	ActionChallenge    ActionKind = "challenge"
	ActionResolveAck   ActionKind = "resolve_ack"
	// ActionPassAll 质疑窗口超时，由适配器注入
	ActionPassAll ActionKind = "pass_all"
)

// SystemActor 适配器注入的系统动作使用空玩家ID
const SystemActor = ""

// Action 玩家提交的动作
type Action struct {
	MatchID  string     `json:"match_id"`
	PlayerID string     `json:"player_id"`
	Kind     ActionKind `json:"kind"`
	// Seq 每个玩家在本局内单调递增
	Seq uint64 `json:"seq"`
	// Version 可选，非零时必须等于对局当前版本
	Version uint64 `json:"version,omitempty"`
	// Cards 出牌声明时选中的手牌下标
	Cards []int `json:"cards,omitempty"`
}

// RejectReason 动作拒绝原因
type RejectReason string

const (
	RejectWrongTurn        RejectReason = "wrong-turn"
	RejectWrongState       RejectReason = "wrong-state"
	RejectStaleSequence    RejectReason = "stale-sequence"
	RejectUnknownPlayer    RejectReason = "unknown-player"
	RejectDuplicateAction  RejectReason = "duplicate-action"
	RejectMalformedPayload RejectReason = "malformed-payload"
)

// EventType 对局事件类型
type EventType string

const (
	EventMatchStarted      EventType = "match_started"
	EventClaimDeclared     EventType = "claim_declared"
	EventChallengePassed   EventType = "challenge_passed"
	EventChallengeResolved EventType = "challenge_resolved"
	EventTurnAdvanced      EventType = "turn_advanced"
	EventPlayerEliminated  EventType = "player_eliminated"
	EventMatchEnded        EventType = "match_ended"
)

// MatchEvent 一次已提交状态变更的不可变记录
type MatchEvent struct {
	MatchID string                 `json:"match_id"`
	Version uint64                 `json:"version"`
	Type    EventType              `json:"type"`
	State   MatchState             `json:"state"`
	Actor   string                 `json:"actor,omitempty"`
	Turn    string                 `json:"turn,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
	At      time.Time              `json:"at"`
}

// EndReason 结束原因，与持久化模型保持一致
type EndReason string

const (
	EndLastStanding       EndReason = "last_standing"
	EndNoSurvivors        EndReason = "no_survivors"
	EndForced             EndReason = "forced"
	EndInvariantViolation EndReason = "invariant_violation"
)

// Limits 对局规则参数
type Limits struct {
	MinPlayers    int
	MaxPlayers    int
	StartingLives int
	HandSize      int
	MinClaimCards int
	MaxClaimCards int
}

// DefaultLimits 默认参数
func DefaultLimits() Limits {
	return Limits{
		MinPlayers:    2,
		MaxPlayers:    4,
		StartingLives: 6,
		HandSize:      5,
		MinClaimCards: 1,
		MaxClaimCards: 3,
	}
}
