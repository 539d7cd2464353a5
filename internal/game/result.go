package game

import (
	"github.com/wfunc/liar-bar/internal/models"
)

// BuildResult 从终态对局生成持久化结果
func BuildResult(m *Match) *models.MatchResult {
	r := &models.MatchResult{
		MatchID:   m.ID,
		EndReason: string(m.EndReason),
		Rounds:    m.Round,
		StartedAt: m.StartedAt,
		EndedAt:   m.EndedAt,
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = m.CreatedAt
	}
	r.DurationMs = r.EndedAt.Sub(r.StartedAt).Milliseconds()
	if m.Winner != "" {
		winner := m.Winner
		r.WinnerID = &winner
	}

	for i, s := range m.Seats {
		r.Participants = append(r.Participants, models.MatchParticipant{
			MatchID:            m.ID,
			PlayerID:           s.PlayerID,
			Seat:               i,
			LivesLeft:          s.Lives,
			ShotsSurvived:      s.ShotsSurvived,
			EliminationsCaused: s.EliminationsCaused,
			Eliminated:         s.Eliminated,
		})
	}
	for i, e := range m.Eliminations {
		r.Eliminations = append(r.Eliminations, models.EliminationRecord{
			MatchID:      m.ID,
			PlayerID:     e.PlayerID,
			Order:        i + 1,
			Round:        e.Round,
			EliminatedBy: e.EliminatedBy,
			At:           e.At,
		})
	}
	return r
}
