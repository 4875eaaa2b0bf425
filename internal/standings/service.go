// Package standings ranks the players of a room.
package standings

import (
	"context"
	"slices"

	"github.com/victornm/clueboard/internal/domain"
	"github.com/victornm/clueboard/internal/room"
)

type Config struct {
	Room *room.Service
}

type Service struct {
	rs *room.Service
}

func NewService(c Config) *Service {
	return &Service{
		rs: c.Room,
	}
}

type GetStandingsRequest struct {
	RoomCode string
}

// GetStandings returns every player of the room ranked by cumulative score.
func (s *Service) GetStandings(ctx context.Context, req GetStandingsRequest) (*domain.Standings, error) {
	r, err := s.rs.State(ctx, room.StateRequest{
		RoomCode: req.RoomCode,
		Role:     domain.RolePlayer,
	})
	if err != nil {
		return nil, err
	}

	return &domain.Standings{
		RoomCode: r.Code,
		Status:   r.Status,
		Entries:  Rank(r.Players),
	}, nil
}

// Rank orders players by score, highest first. Equal scores share a rank (1, 2, 2, 4) and keep join order.
func Rank(players []*domain.Player) []domain.Standing {
	entries := make([]domain.Standing, 0, len(players))
	for _, p := range players {
		entries = append(entries, domain.Standing{
			PlayerID: p.ID,
			Name:     p.Name,
			Score:    p.Score,
		})
	}

	slices.SortStableFunc(entries, func(a, b domain.Standing) int {
		return b.Score - a.Score
	})

	for i := range entries {
		if i > 0 && entries[i].Score == entries[i-1].Score {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}

	return entries
}
