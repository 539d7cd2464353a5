package repository

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wfunc/liar-bar/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testBounds = ScoreBounds{Initial: 200, Floor: 50}

// newTestDB 每个测试独立的内存数据库
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// sampleResult 三人局，p3胜出
func sampleResult(matchID string) *models.MatchResult {
	winner := "p3"
	start := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	return &models.MatchResult{
		MatchID:    matchID,
		WinnerID:   &winner,
		EndReason:  models.EndReasonLastStanding,
		Rounds:     4,
		StartedAt:  start,
		EndedAt:    start.Add(3 * time.Minute),
		DurationMs: (3 * time.Minute).Milliseconds(),
		Participants: []models.MatchParticipant{
			{PlayerID: "p1", Seat: 0, Eliminated: true},
			{PlayerID: "p2", Seat: 1, Eliminated: true, ShotsSurvived: 2},
			{PlayerID: "p3", Seat: 2, LivesLeft: 1, EliminationsCaused: 2},
		},
		Eliminations: []models.EliminationRecord{
			{PlayerID: "p1", Order: 1, Round: 2, EliminatedBy: "p3", At: start.Add(time.Minute)},
			{PlayerID: "p2", Order: 2, Round: 4, EliminatedBy: "p3", At: start.Add(3 * time.Minute)},
		},
	}
}

func sampleDeltas() []StatsDelta {
	return []StatsDelta{
		{PlayerID: "p1", MatchesPlayed: 1, Losses: 1, EliminationsSuffered: 1, Score: -50},
		{PlayerID: "p2", MatchesPlayed: 1, Losses: 1, EliminationsSuffered: 1, ShotsSurvived: 2, Score: -50},
		{PlayerID: "p3", MatchesPlayed: 1, Wins: 1, EliminationsCaused: 2, Score: 50},
	}
}
