package standings_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/clueboard/internal/batch"
	"github.com/victornm/clueboard/internal/domain"
	"github.com/victornm/clueboard/internal/errors"
	"github.com/victornm/clueboard/internal/event"
	"github.com/victornm/clueboard/internal/room"
	"github.com/victornm/clueboard/internal/standings"
	"github.com/victornm/clueboard/internal/store"
)

func TestRank(t *testing.T) {
	tests := map[string]struct {
		arrange func() []*domain.Player
		assert  func(t *testing.T, got []domain.Standing)
	}{
		"no players": {
			arrange: func() []*domain.Player { return nil },
			assert: func(t *testing.T, got []domain.Standing) {
				assert.Empty(t, got)
			},
		},

		"highest score first": {
			arrange: func() []*domain.Player {
				return []*domain.Player{
					{ID: "a", Name: "Alice", Score: -200},
					{ID: "b", Name: "Bob", Score: 400},
					{ID: "c", Name: "Carol", Score: 0},
				}
			},
			assert: func(t *testing.T, got []domain.Standing) {
				want := []domain.Standing{
					{Rank: 1, PlayerID: "b", Name: "Bob", Score: 400},
					{Rank: 2, PlayerID: "c", Name: "Carol", Score: 0},
					{Rank: 3, PlayerID: "a", Name: "Alice", Score: -200},
				}
				assert.Equal(t, want, got)
			},
		},

		"ties share a rank and keep join order": {
			arrange: func() []*domain.Player {
				return []*domain.Player{
					{ID: "a", Score: 100},
					{ID: "b", Score: 200},
					{ID: "c", Score: 100},
					{ID: "d", Score: 50},
				}
			},
			assert: func(t *testing.T, got []domain.Standing) {
				var ids []string
				var ranks []int
				for _, e := range got {
					ids = append(ids, e.PlayerID)
					ranks = append(ranks, e.Rank)
				}
				assert.Equal(t, []string{"b", "a", "c", "d"}, ids)
				assert.Equal(t, []int{1, 2, 2, 4}, ranks)
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			tt.assert(t, standings.Rank(tt.arrange()))
		})
	}
}

func TestService_GetStandings(t *testing.T) {
	ctx := context.Background()

	m := store.NewMemory()
	eb := event.NewBus()
	rs := room.NewService(room.Config{
		EventBus: eb,
		Store:    m,
		Answers:  batch.NewDirect(m),
	})
	t.Cleanup(func() {
		_ = rs.Stop(ctx)
		eb.Stop()
	})

	s := standings.NewService(standings.Config{Room: rs})

	r, err := rs.CreateRoom(ctx, room.CreateRoomRequest{AutoOpenAnswers: true})
	require.NoError(t, err)
	alice, err := rs.JoinRoom(ctx, room.JoinRoomRequest{RoomCode: r.Code, Name: "Alice"})
	require.NoError(t, err)
	bob, err := rs.JoinRoom(ctx, room.JoinRoomRequest{RoomCode: r.Code, Name: "Bob"})
	require.NoError(t, err)

	host := room.HostRequest{RoomCode: r.Code, HostToken: r.HostToken}
	c := r.Board[0].Clues[0]

	_, err = rs.SelectClue(ctx, room.SelectClueRequest{HostRequest: host, ClueID: c.ID})
	require.NoError(t, err)
	require.NoError(t, rs.SubmitAnswer(ctx, room.SubmitAnswerRequest{RoomCode: r.Code, PlayerID: bob.ID, ChoiceIndex: c.CorrectIndex}))
	_, err = rs.LockAnswers(ctx, host)
	require.NoError(t, err)
	_, err = rs.RevealCorrect(ctx, host)
	require.NoError(t, err)

	got, err := s.GetStandings(ctx, standings.GetStandingsRequest{RoomCode: r.Code})
	require.NoError(t, err)

	assert.Equal(t, r.Code, got.RoomCode)
	require.Len(t, got.Entries, 2)
	assert.Equal(t, domain.Standing{Rank: 1, PlayerID: bob.ID, Name: "Bob", Score: c.Value}, got.Entries[0])
	assert.Equal(t, domain.Standing{Rank: 2, PlayerID: alice.ID, Name: "Alice", Score: 0}, got.Entries[1])

	_, err = s.GetStandings(ctx, standings.GetStandingsRequest{RoomCode: "NOPE00"})
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
}
