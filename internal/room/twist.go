package room

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/victornm/clueboard/internal/domain"
	"github.com/victornm/clueboard/internal/errors"
	"github.com/victornm/clueboard/internal/schedule"
)

type ToggleTwistRequest struct {
	HostRequest
	Enabled bool
}

// ToggleTwist overrides whether the twist is offered for the clue in play. It is accepted in any phase.
func (s *Service) ToggleTwist(ctx context.Context, req ToggleTwistRequest) (*domain.Room, error) {
	return s.mutateHost(ctx, req.HostRequest, func(r *domain.Room) error {
		if r.Current.TwistEnabled == req.Enabled {
			return errUnchanged
		}

		r.Current.TwistEnabled = req.Enabled
		return nil
	})
}

// TriggerTwist opens the double-or-nothing window and starts the countdown.
func (s *Service) TriggerTwist(ctx context.Context, req HostRequest) (*domain.Room, error) {
	r, err := s.mutateHost(ctx, req, func(r *domain.Room) error {
		if r.Current.Phase != domain.PhaseRevealed {
			return invalidTransition("reveal the correct answer first")
		}
		if !r.Current.TwistEnabled {
			return invalidTransition("twist disabled")
		}

		deadline := s.now().Add(s.twistWindow)
		r.Current.Phase = domain.PhaseTwist
		r.Current.TwistDeadline = &deadline
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.startCountdown(r.Code, r.Current.ClueID, *r.Current.TwistDeadline)

	if r.Config.AutoFinalize {
		s.scheduleFinalize(r.Code, r.Current.ClueID, s.twistWindow+finalizeGrace)
	}

	return r, nil
}

type SubmitTwistChoiceRequest struct {
	RoomCode string
	PlayerID string
	Choice   domain.TwistChoice
}

// SubmitTwistChoice records the player's twist. Correct players may double or keep, incorrect players may risk
// or take no penalty. The first choice sticks; later ones are ignored.
func (s *Service) SubmitTwistChoice(ctx context.Context, req SubmitTwistChoiceRequest) error {
	switch req.Choice {
	case domain.TwistDouble, domain.TwistKeep, domain.TwistRisk, domain.TwistNoPenalty:
	default:
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid twist choice: %q", req.Choice))
	}

	_, err := s.mutate(ctx, domain.NormalizeCode(req.RoomCode), false, func(r *domain.Room) error {
		if r.Current.Phase != domain.PhaseTwist {
			return invalidTransition("twist not active")
		}
		if d := r.Current.TwistDeadline; d != nil && s.now().After(*d) {
			return invalidTransition("twist window closed")
		}
		if _, ok := r.FindPlayer(req.PlayerID); !ok {
			return errors.New(errors.CodeNotFound, errors.WithMessagef("player not found: %s", req.PlayerID))
		}

		c, err := currentClue(r)
		if err != nil {
			return err
		}

		res, ok := r.Results[req.PlayerID]
		if !ok {
			return invalidTransition("no result for player")
		}
		if res.TwistChoice != "" {
			return errUnchanged
		}

		switch {
		case res.Correct && req.Choice == domain.TwistDouble:
			res.TwistDelta = c.Value
		case res.Correct && req.Choice == domain.TwistKeep:
			res.TwistDelta = 0
		case !res.Correct && req.Choice == domain.TwistRisk:
			res.TwistDelta = -c.Value
		case !res.Correct && req.Choice == domain.TwistNoPenalty:
			res.TwistDelta = 0
		default:
			return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("twist choice %s is not available", req.Choice))
		}

		res.TwistChoice = req.Choice
		r.Results[req.PlayerID] = res
		return nil
	})

	return err
}

// startCountdown publishes the seconds left until the deadline on every tick and stops once it has passed.
// It also stops as soon as the room has left this clue's twist, which a finalize racing the start can cause.
func (s *Service) startCountdown(code, clueID string, deadline time.Time) {
	s.sched.Every(code, schedule.KindCountdown, s.countdownInterval, func(ctx context.Context) bool {
		r, err := s.store.Get(ctx, code)
		if err != nil {
			slog.WarnContext(ctx, "room: countdown tick skipped", "room", code, "error", err)
			return !errors.HasCode(err, errors.CodeNotFound)
		}
		if r.Current.Phase != domain.PhaseTwist || r.Current.ClueID != clueID {
			return false
		}

		left := int(math.Ceil(deadline.Sub(s.now()).Seconds()))
		if left < 0 {
			left = 0
		}

		s.eb.Publish(ctx, domain.EventCountdownTicked{
			RoomCode:    code,
			SecondsLeft: left,
		})

		return left > 0
	})
}
