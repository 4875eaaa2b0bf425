package room

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"

	"github.com/victornm/clueboard/internal/board"
	"github.com/victornm/clueboard/internal/domain"
	"github.com/victornm/clueboard/internal/errors"
)

const (
	codeLength   = 6
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeAttempts = 10
)

type CreateRoomRequest struct {
	Title string
	// PlayerLimit is clamped into [2, 12]; zero means 12.
	PlayerLimit     int
	QuestionSet     *domain.QuestionSet
	TwistDefault    bool
	AutoOpenAnswers bool
	AutoFinalize    bool
}

// CreateRoom builds the board and stores a new room in the lobby. The sample board is used when no question set is given.
func (s *Service) CreateRoom(ctx context.Context, req CreateRoomRequest) (*domain.Room, error) {
	var (
		b   []domain.Category
		err error
	)
	if req.QuestionSet != nil {
		b, err = board.Build(*req.QuestionSet)
		if err != nil {
			return nil, err
		}
	} else {
		b = board.Sample()
	}

	code, err := s.newCode(ctx)
	if err != nil {
		return nil, err
	}

	r := &domain.Room{
		Code:      code,
		HostToken: uuid.NewString(),
		Status:    domain.StatusLobby,
		Config: domain.RoomConfig{
			Title:           strings.TrimSpace(req.Title),
			PlayerLimit:     clampLimit(req.PlayerLimit),
			TwistDefault:    req.TwistDefault,
			AutoOpenAnswers: req.AutoOpenAnswers,
			AutoFinalize:    req.AutoFinalize,
		},
		Players:   []*domain.Player{},
		Board:     b,
		Current:   domain.IdleClue(),
		Answers:   domain.AnswerMap{},
		Results:   domain.ResultsMap{},
		Version:   1,
		CreatedAt: s.now(),
	}

	if err := s.save(ctx, r); err != nil {
		return nil, err
	}

	s.eb.Publish(ctx, domain.EventRoomUpdated{Room: *r})

	return r, nil
}

type JoinRoomRequest struct {
	RoomCode string
	Name     string
}

// JoinRoom adds a player to the room. Joining again with a known name (case-insensitive) reconnects that player.
func (s *Service) JoinRoom(ctx context.Context, req JoinRoomRequest) (*domain.Player, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("name is required"))
	}

	var joined domain.Player
	_, err := s.mutate(ctx, domain.NormalizeCode(req.RoomCode), true, func(r *domain.Room) error {
		if p, ok := r.FindPlayerByName(name); ok {
			p.Connected = true
			joined = *p
			return nil
		}

		if len(r.Players) >= r.Config.PlayerLimit {
			return errors.New(errors.CodeResourceExhausted, errors.WithMessagef("room is full"))
		}

		p := &domain.Player{
			ID:        uuid.NewString(),
			Name:      name,
			Connected: true,
		}
		r.Players = append(r.Players, p)
		joined = *p
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &joined, nil
}

type PresenceRequest struct {
	RoomCode string
	PlayerID string
}

// MarkConnected flags the player as live again, e.g. when a socket reopens. Unknown players are ignored.
func (s *Service) MarkConnected(ctx context.Context, req PresenceRequest) error {
	return s.setConnected(ctx, req, true)
}

// MarkDisconnected flags the player as gone. Unknown players are ignored.
func (s *Service) MarkDisconnected(ctx context.Context, req PresenceRequest) error {
	return s.setConnected(ctx, req, false)
}

func (s *Service) setConnected(ctx context.Context, req PresenceRequest, connected bool) error {
	_, err := s.mutate(ctx, domain.NormalizeCode(req.RoomCode), true, func(r *domain.Room) error {
		p, ok := r.FindPlayer(req.PlayerID)
		if !ok || p.Connected == connected {
			return errUnchanged
		}

		p.Connected = connected
		return nil
	})

	return err
}

// StartGame moves the room out of the lobby. It does nothing once the game has started.
func (s *Service) StartGame(ctx context.Context, req HostRequest) (*domain.Room, error) {
	return s.mutateHost(ctx, req, func(r *domain.Room) error {
		if r.Status != domain.StatusLobby {
			return errUnchanged
		}

		r.Status = domain.StatusInProgress
		return nil
	})
}

// EndGame finishes the room regardless of the clue in play and stops its timers.
func (s *Service) EndGame(ctx context.Context, req HostRequest) (*domain.Room, error) {
	r, err := s.mutateHost(ctx, req, func(r *domain.Room) error {
		r.Status = domain.StatusFinished
		r.Current.Phase = domain.PhaseFinal
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.sched.Cancel(r.Code)

	return r, nil
}

type StateRequest struct {
	RoomCode string
	Role     domain.Role
	// HostToken is required for the host role.
	HostToken string
}

// State returns the projection of the room for the requested role.
func (s *Service) State(ctx context.Context, req StateRequest) (*domain.Room, error) {
	r, err := s.load(ctx, domain.NormalizeCode(req.RoomCode))
	if err != nil {
		return nil, err
	}

	role := domain.RolePlayer
	if req.Role == domain.RoleHost {
		if err := authorize(r, req.HostToken); err != nil {
			return nil, err
		}
		role = domain.RoleHost
	}

	v := r.ForRole(role)
	return &v, nil
}

func (s *Service) newCode(ctx context.Context) (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code, err := randomCode()
		if err != nil {
			return "", errors.Internal(fmt.Errorf("generate room code: %w", err))
		}

		_, err = s.store.Get(ctx, code)
		if errors.HasCode(err, errors.CodeNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}

	return "", errors.Internal(fmt.Errorf("no free room code after %d attempts", codeAttempts))
}

func randomCode() (string, error) {
	size := big.NewInt(int64(len(codeAlphabet)))

	var sb strings.Builder
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", err
		}
		sb.WriteByte(codeAlphabet[n.Int64()])
	}

	return sb.String(), nil
}

func clampLimit(n int) int {
	switch {
	case n == 0:
		return domain.MaxPlayers
	case n < domain.MinPlayers:
		return domain.MinPlayers
	case n > domain.MaxPlayers:
		return domain.MaxPlayers
	default:
		return n
	}
}
