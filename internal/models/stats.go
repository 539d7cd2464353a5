package models

import (
	"time"
)

// PlayerStatistics 玩家累计统计，只能通过原子增量修改
type PlayerStatistics struct {
	PlayerID             string    `gorm:"primaryKey;size:64" json:"player_id"`
	Score                int       `gorm:"not null;default:0;index" json:"score"`
	MatchesPlayed        int       `gorm:"not null;default:0" json:"matches_played"`
	Wins                 int       `gorm:"not null;default:0" json:"wins"`
	Losses               int       `gorm:"not null;default:0" json:"losses"`
	EliminationsCaused   int       `gorm:"not null;default:0" json:"eliminations_caused"`
	EliminationsSuffered int       `gorm:"not null;default:0" json:"eliminations_suffered"`
	ShotsSurvived        int       `gorm:"not null;default:0" json:"shots_survived"`
	CurrentWinStreak     int       `gorm:"not null;default:0" json:"current_win_streak"`
	BestWinStreak        int       `gorm:"not null;default:0" json:"best_win_streak"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// TableName 指定表名
func (PlayerStatistics) TableName() string {
	return "liarbar_stats"
}

// StatsIdempotencyKey 统计增量幂等键 (match_id, player_id)
type StatsIdempotencyKey struct {
	ID        uint   `gorm:"primaryKey"`
	MatchID   string `gorm:"size:64;not null;uniqueIndex:idx_stats_key_match_player"`
	PlayerID  string `gorm:"size:64;not null;uniqueIndex:idx_stats_key_match_player"`
	CreatedAt time.Time
}

// TableName 指定表名
func (StatsIdempotencyKey) TableName() string {
	return "liarbar_stats_idempotency_keys"
}
