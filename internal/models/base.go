package models

import (
	"time"
)

// BaseModel 通用主键与时间戳
type BaseModel struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// All 返回需要迁移的全部模型
func All() []interface{} {
	return []interface{}{
		&MatchResult{},
		&MatchParticipant{},
		&EliminationRecord{},
		&PlayerStatistics{},
		&StatsIdempotencyKey{},
	}
}
