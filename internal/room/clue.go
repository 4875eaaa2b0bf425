package room

import (
	"context"
	"log/slog"
	"time"

	"github.com/victornm/clueboard/internal/domain"
	"github.com/victornm/clueboard/internal/errors"
	"github.com/victornm/clueboard/internal/schedule"
)

type SelectClueRequest struct {
	HostRequest
	ClueID string
}

// SelectClue puts an unused clue in play. Answers open right away when the room auto-opens answers.
func (s *Service) SelectClue(ctx context.Context, req SelectClueRequest) (*domain.Room, error) {
	return s.mutateHost(ctx, req.HostRequest, func(r *domain.Room) error {
		if r.Current.Phase != domain.PhaseIdle {
			return invalidTransition("finish the current clue first")
		}

		c, ok := r.FindClue(req.ClueID)
		if !ok {
			return errors.New(errors.CodeNotFound, errors.WithMessagef("clue not found: %s", req.ClueID))
		}
		if c.Used {
			return invalidTransition("clue already used")
		}

		r.Current = domain.CurrentClue{
			ClueID:       c.ID,
			Phase:        domain.PhaseClue,
			TwistEnabled: r.Config.TwistDefault,
		}
		if r.Config.AutoOpenAnswers {
			r.Current.Phase = domain.PhaseOpen
			r.Current.OpenedAt = s.stamp()
		}
		r.Answers = make(domain.AnswerMap)
		r.Results = make(domain.ResultsMap)

		return nil
	})
}

// OpenAnswers starts accepting answers for the clue in play.
func (s *Service) OpenAnswers(ctx context.Context, req HostRequest) (*domain.Room, error) {
	return s.mutateHost(ctx, req, func(r *domain.Room) error {
		if r.Current.Phase != domain.PhaseClue {
			return invalidTransition("clue is not revealed")
		}

		r.Current.Phase = domain.PhaseOpen
		r.Current.OpenedAt = s.stamp()
		return nil
	})
}

type SubmitAnswerRequest struct {
	RoomCode    string
	PlayerID    string
	ChoiceIndex int
}

// SubmitAnswer records the player's choice for the clue in play, replacing an earlier one.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) error {
	code := domain.NormalizeCode(req.RoomCode)

	unlock, err := s.lock(ctx, code)
	if err != nil {
		return err
	}
	defer unlock()

	// Only the snapshot is needed to validate; the answer itself goes through the sink.
	r, err := s.store.Get(ctx, code)
	if err != nil {
		return err
	}

	if r.Current.Phase != domain.PhaseOpen {
		return invalidTransition("answers are not open")
	}
	if _, ok := r.FindPlayer(req.PlayerID); !ok {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("player not found: %s", req.PlayerID))
	}
	if req.ChoiceIndex < 0 || req.ChoiceIndex >= domain.ChoiceCount {
		return errors.New(errors.CodeInvalidArgument, errors.WithMessagef("invalid choice: %d", req.ChoiceIndex))
	}

	return s.answers.Submit(ctx, code, r.Current.ClueID, req.PlayerID, req.ChoiceIndex)
}

// LockAnswers stops accepting answers. Queued answers are committed first so none accepted before the lock is lost.
func (s *Service) LockAnswers(ctx context.Context, req HostRequest) (*domain.Room, error) {
	return s.mutateHost(ctx, req, func(r *domain.Room) error {
		if r.Current.Phase != domain.PhaseOpen {
			return invalidTransition("answers are not open")
		}

		if err := s.answers.Flush(ctx, r.Code); err != nil {
			return err
		}

		a, err := s.store.GetAnswers(ctx, r.Code, r.Current.ClueID)
		if err != nil {
			return err
		}

		r.Answers = a
		r.Current.Phase = domain.PhaseLocked
		r.Current.LockedAt = s.stamp()
		return nil
	})
}

// RevealCorrect scores every player against the correct choice. Base deltas are applied to scores immediately.
func (s *Service) RevealCorrect(ctx context.Context, req HostRequest) (*domain.Room, error) {
	r, err := s.mutateHost(ctx, req, func(r *domain.Room) error {
		if r.Current.Phase != domain.PhaseLocked {
			return invalidTransition("answers not locked")
		}

		c, err := currentClue(r)
		if err != nil {
			return err
		}

		results := make(domain.ResultsMap, len(r.Players))
		for _, p := range r.Players {
			choice, answered := r.Answers[p.ID]
			correct := answered && choice == c.CorrectIndex

			delta := 0
			if correct {
				delta = c.Value
			}
			p.Score += delta

			results[p.ID] = domain.ResultEntry{
				Answered: answered,
				Correct:  correct,
				Delta:    delta,
			}
		}

		r.Results = results
		r.Current.Phase = domain.PhaseRevealed
		r.Current.RevealedAt = s.stamp()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if r.Config.AutoFinalize {
		d := s.autoFinalizeDelay
		if r.Current.TwistEnabled {
			d = s.twistAutoFinalizeDelay
		}
		s.scheduleFinalize(r.Code, r.Current.ClueID, d)
	}

	return r, nil
}

// FinalizeClue commits twist outcomes, retires the clue and returns the room to idle.
func (s *Service) FinalizeClue(ctx context.Context, req HostRequest) (*domain.Room, error) {
	r, err := s.mutateHost(ctx, req, func(r *domain.Room) error {
		return s.finalize(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	s.sched.Cancel(r.Code)

	return r, nil
}

func (s *Service) finalize(ctx context.Context, r *domain.Room) error {
	if r.Current.Phase != domain.PhaseRevealed && r.Current.Phase != domain.PhaseTwist {
		return invalidTransition("clue is not ready to finalize")
	}

	c, err := currentClue(r)
	if err != nil {
		return err
	}

	// Late answers of this clue can still sit in the queue; commit them so nothing is left behind.
	if err := s.answers.Flush(ctx, r.Code); err != nil {
		return err
	}

	for id, res := range r.Results {
		if res.TwistDelta == 0 {
			continue
		}
		if p, ok := r.FindPlayer(id); ok {
			p.Score += res.TwistDelta
		}
	}

	c.Used = true
	r.Current = domain.IdleClue()
	r.Answers = make(domain.AnswerMap)
	r.Results = make(domain.ResultsMap)
	return nil
}

// scheduleFinalize finalizes the clue after d unless the room has moved on by then.
func (s *Service) scheduleFinalize(code, clueID string, d time.Duration) {
	s.sched.After(code, schedule.KindFinalize, d, func(ctx context.Context) {
		finalized := false
		_, err := s.mutate(ctx, code, true, func(r *domain.Room) error {
			// The host may have finalized already, or even moved to another clue.
			if r.Current.ClueID != clueID || (r.Current.Phase != domain.PhaseRevealed && r.Current.Phase != domain.PhaseTwist) {
				return errUnchanged
			}
			if err := s.finalize(ctx, r); err != nil {
				return err
			}
			finalized = true
			return nil
		})
		if err != nil {
			slog.ErrorContext(ctx, "room: auto finalize failed", "room", code, "clue", clueID, "error", err)
			return
		}

		if finalized {
			slog.InfoContext(ctx, "room: clue auto finalized", "room", code, "clue", clueID)
			s.sched.Cancel(code, schedule.KindCountdown)
		}
	})
}
