package models

import (
	"time"
)

// 对局结束原因
const (
	EndReasonLastStanding = "last_standing"
	EndReasonNoSurvivors  = "no_survivors"
	EndReasonForced       = "forced"
	EndReasonInvariant    = "invariant_violation"
)

// MatchResult 对局结果，写入后不可变
type MatchResult struct {
	BaseModel
	MatchID    string    `gorm:"uniqueIndex;size:64;not null" json:"match_id"`
	WinnerID   *string   `gorm:"size:64;index" json:"winner_id,omitempty"`
	EndReason  string    `gorm:"size:32;not null" json:"end_reason"`
	Rounds     int       `gorm:"not null;default:0" json:"rounds"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `gorm:"index" json:"ended_at"`
	DurationMs int64     `json:"duration_ms"`

	Participants []MatchParticipant  `gorm:"foreignKey:MatchID;references:MatchID" json:"participants"`
	Eliminations []EliminationRecord `gorm:"foreignKey:MatchID;references:MatchID" json:"eliminations"`
}

// TableName 指定表名
func (MatchResult) TableName() string {
	return "liarbar_match_results"
}

// Winner 胜者，无胜者时返回空串
func (r *MatchResult) Winner() string {
	if r.WinnerID == nil {
		return ""
	}
	return *r.WinnerID
}

// MatchParticipant 参赛者在本局的表现
type MatchParticipant struct {
	ID                 uint   `gorm:"primaryKey" json:"-"`
	MatchID            string `gorm:"size:64;not null;uniqueIndex:idx_participant_match_player" json:"match_id"`
	PlayerID           string `gorm:"size:64;not null;uniqueIndex:idx_participant_match_player;index" json:"player_id"`
	Seat               int    `json:"seat"`
	LivesLeft          int    `json:"lives_left"`
	ShotsSurvived      int    `json:"shots_survived"`
	EliminationsCaused int    `json:"eliminations_caused"`
	Eliminated         bool   `json:"eliminated"`
}

// TableName 指定表名
func (MatchParticipant) TableName() string {
	return "liarbar_match_participants"
}

// EliminationRecord 淘汰记录，Order从1开始
type EliminationRecord struct {
	ID           uint      `gorm:"primaryKey" json:"-"`
	MatchID      string    `gorm:"size:64;not null;index" json:"match_id"`
	PlayerID     string    `gorm:"size:64;not null" json:"player_id"`
	Order        int       `gorm:"column:elimination_order;not null" json:"order"`
	Round        int       `json:"round"`
	EliminatedBy string    `gorm:"size:64" json:"eliminated_by,omitempty"`
	At           time.Time `json:"at"`
}

// TableName 指定表名
func (EliminationRecord) TableName() string {
	return "liarbar_eliminations"
}

// Clone 深拷贝，清空自增主键，用于重试写入
func (r *MatchResult) Clone() *MatchResult {
	c := *r
	c.BaseModel = BaseModel{}
	if r.WinnerID != nil {
		winner := *r.WinnerID
		c.WinnerID = &winner
	}
	c.Participants = make([]MatchParticipant, len(r.Participants))
	for i, p := range r.Participants {
		p.ID = 0
		c.Participants[i] = p
	}
	c.Eliminations = make([]EliminationRecord, len(r.Eliminations))
	for i, e := range r.Eliminations {
		e.ID = 0
		c.Eliminations[i] = e
	}
	return &c
}
