package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/clueboard/internal/domain"
)

func TestRoom_ForRole(t *testing.T) {
	tests := map[string]struct {
		phase  domain.Phase
		assert func(t *testing.T, host, player domain.Room)
	}{
		"host projection should be the full room": {
			phase: domain.PhaseOpen,
			assert: func(t *testing.T, host, _ domain.Room) {
				assert.Equal(t, "secret", host.HostToken)
				assert.Equal(t, 2, host.Board[0].Clues[0].CorrectIndex)
				assert.Equal(t, 1, host.Board[0].Clues[1].CorrectIndex)
				assert.NotEmpty(t, host.Answers)
				assert.NotEmpty(t, host.Results)
			},
		},

		"player projection should hide secrets before reveal": {
			phase: domain.PhaseLocked,
			assert: func(t *testing.T, _, player domain.Room) {
				assert.Empty(t, player.HostToken)
				assert.Nil(t, player.Answers)
				assert.Nil(t, player.Results)
				assert.Equal(t, domain.UnknownIndex, player.Board[0].Clues[0].CorrectIndex)
				assert.Equal(t, domain.UnknownIndex, player.Board[0].Clues[1].CorrectIndex)
			},
		},

		"player projection should show only the clue in play after reveal": {
			phase: domain.PhaseRevealed,
			assert: func(t *testing.T, _, player domain.Room) {
				assert.Equal(t, 2, player.Board[0].Clues[0].CorrectIndex)
				assert.Equal(t, domain.UnknownIndex, player.Board[0].Clues[1].CorrectIndex)
			},
		},

		"player projection should show the clue in play during twist and final": {
			phase: domain.PhaseTwist,
			assert: func(t *testing.T, _, player domain.Room) {
				assert.Equal(t, 2, player.Board[0].Clues[0].CorrectIndex)
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r := makeRoom(tt.phase)
			host, player := r.ForRole(domain.RoleHost), r.ForRole(domain.RolePlayer)

			tt.assert(t, host, player)

			// The source room must never be modified by a projection.
			require.Equal(t, "secret", r.HostToken)
			require.Equal(t, 2, r.Board[0].Clues[0].CorrectIndex)
			require.NotEmpty(t, r.Answers)
		})
	}
}

func TestRoom_ForRole_PlayersAreCopied(t *testing.T) {
	r := makeRoom(domain.PhaseIdle)

	p := r.ForRole(domain.RolePlayer)
	p.Players[0].Score = 999

	assert.Equal(t, 100, r.Players[0].Score)
}

func TestRoom_FindPlayerByName(t *testing.T) {
	r := makeRoom(domain.PhaseIdle)

	p, ok := r.FindPlayerByName("aLiCe")
	require.True(t, ok)
	assert.Equal(t, "p1", p.ID)

	_, ok = r.FindPlayerByName("carol")
	assert.False(t, ok)
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "ABC123", domain.NormalizeCode(" abc123 "))
}

func makeRoom(phase domain.Phase) *domain.Room {
	return &domain.Room{
		Code:      "ABC123",
		HostToken: "secret",
		Status:    domain.StatusInProgress,
		Players: []*domain.Player{
			{ID: "p1", Name: "Alice", Score: 100, Connected: true},
		},
		Board: []domain.Category{
			{
				Title: "Science",
				Clues: []domain.Clue{
					{ID: "c1", Value: 200, Question: "q1", Choices: [4]string{"a", "b", "c", "d"}, CorrectIndex: 2},
					{ID: "c2", Value: 400, Question: "q2", Choices: [4]string{"a", "b", "c", "d"}, CorrectIndex: 1},
				},
			},
		},
		Current: domain.CurrentClue{ClueID: "c1", Phase: phase},
		Answers: domain.AnswerMap{"p1": 2},
		Results: domain.ResultsMap{"p1": {Answered: true, Correct: true, Delta: 200}},
	}
}
