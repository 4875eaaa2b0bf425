// Package room runs the state machine of a trivia room: lobby, clue lifecycle, scoring, twist and timers.
package room

import (
	"context"
	"crypto/subtle"
	stderrors "errors"
	"fmt"
	"maps"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/clueboard/internal/domain"
	"github.com/victornm/clueboard/internal/errors"
	"github.com/victornm/clueboard/internal/event"
	"github.com/victornm/clueboard/internal/schedule"
	"github.com/victornm/clueboard/internal/store"
)

const (
	DefaultTwistWindow            = 10 * time.Second
	DefaultCountdownInterval      = time.Second
	DefaultAutoFinalizeDelay      = 3 * time.Second
	DefaultTwistAutoFinalizeDelay = 5 * time.Second

	finalizeGrace      = 500 * time.Millisecond
	defaultLockTimeout = 5 * time.Second
)

// errUnchanged aborts a mutation without writing or publishing anything.
var errUnchanged = stderrors.New("room: unchanged")

// AnswerSink records answers for the clue in play. Flush must commit everything accepted so far before returning.
type AnswerSink interface {
	Submit(ctx context.Context, code, clueID, playerID string, choice int) error
	Flush(ctx context.Context, code string) error
	// Pending returns accepted answers that are not committed to the store yet.
	Pending(code, clueID string) domain.AnswerMap
	Stop(ctx context.Context) error
}

type Config struct {
	EventBus  *event.Bus
	Store     store.Store
	Answers   AnswerSink
	Scheduler *schedule.Scheduler
	Now       func() time.Time

	TwistWindow            time.Duration
	CountdownInterval      time.Duration
	AutoFinalizeDelay      time.Duration
	TwistAutoFinalizeDelay time.Duration
	LockTimeout            time.Duration
}

type Service struct {
	eb      *event.Bus
	store   store.Store
	answers AnswerSink
	sched   *schedule.Scheduler
	now     func() time.Time

	twistWindow            time.Duration
	countdownInterval      time.Duration
	autoFinalizeDelay      time.Duration
	twistAutoFinalizeDelay time.Duration
	lockTimeout            time.Duration
}

func NewService(c Config) *Service {
	s := &Service{
		eb:                     c.EventBus,
		store:                  c.Store,
		answers:                c.Answers,
		sched:                  c.Scheduler,
		now:                    c.Now,
		twistWindow:            orDefault(c.TwistWindow, DefaultTwistWindow),
		countdownInterval:      orDefault(c.CountdownInterval, DefaultCountdownInterval),
		autoFinalizeDelay:      orDefault(c.AutoFinalizeDelay, DefaultAutoFinalizeDelay),
		twistAutoFinalizeDelay: orDefault(c.TwistAutoFinalizeDelay, DefaultTwistAutoFinalizeDelay),
		lockTimeout:            orDefault(c.LockTimeout, defaultLockTimeout),
	}

	if s.now == nil {
		s.now = time.Now
	}
	if s.sched == nil {
		s.sched = schedule.New()
	}

	return s
}

// Stop cancels every timer and commits queued answers.
func (s *Service) Stop(ctx context.Context) error {
	s.sched.Stop()
	return s.answers.Stop(ctx)
}

// HostRequest identifies a host action on a room.
type HostRequest struct {
	RoomCode  string
	HostToken string
}

// mutate runs fn as one critical section over the room: lock, load, apply, save, publish.
// fn must check every precondition before touching the room. Returning errUnchanged skips the write.
func (s *Service) mutate(ctx context.Context, code string, publish bool, fn func(r *domain.Room) error) (*domain.Room, error) {
	unlock, err := s.lock(ctx, code)
	if err != nil {
		return nil, err
	}
	defer unlock()

	r, err := s.load(ctx, code)
	if err != nil {
		return nil, err
	}

	if err := fn(r); err != nil {
		if stderrors.Is(err, errUnchanged) {
			return r, nil
		}
		return nil, err
	}

	r.Version++
	if err := s.save(ctx, r); err != nil {
		return nil, err
	}

	if publish {
		s.eb.Publish(ctx, domain.EventRoomUpdated{Room: *r})
	}

	return r, nil
}

// mutateHost is mutate for host-only actions.
func (s *Service) mutateHost(ctx context.Context, req HostRequest, fn func(r *domain.Room) error) (*domain.Room, error) {
	return s.mutate(ctx, domain.NormalizeCode(req.RoomCode), true, func(r *domain.Room) error {
		if err := authorize(r, req.HostToken); err != nil {
			return err
		}
		return fn(r)
	})
}

func (s *Service) lock(ctx context.Context, code string) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	return s.store.Lock(ctx, code)
}

// load reads the snapshot and overlays scores and the live answers and results of the clue in play.
func (s *Service) load(ctx context.Context, code string) (*domain.Room, error) {
	r, err := s.store.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	var (
		scores  map[string]int
		answers = make(domain.AnswerMap)
		results = make(domain.ResultsMap)
	)

	eg, ectx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		sc, err := s.store.GetScores(ectx, code)
		if err != nil {
			return err
		}
		scores = sc
		return nil
	})

	if clueID := r.Current.ClueID; clueID != "" {
		eg.Go(func() error {
			a, err := s.store.GetAnswers(ectx, code, clueID)
			if err != nil {
				return err
			}
			maps.Copy(a, s.answers.Pending(code, clueID))
			answers = a
			return nil
		})

		eg.Go(func() error {
			res, err := s.store.GetResults(ectx, code, clueID)
			if err != nil {
				return err
			}
			results = res
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("room: load %s: %w", code, err)
	}

	for _, p := range r.Players {
		if sc, ok := scores[p.ID]; ok {
			p.Score = sc
		}
	}
	r.Answers, r.Results = answers, results

	return r, nil
}

func (s *Service) save(ctx context.Context, r *domain.Room) error {
	if err := s.store.Put(ctx, r); err != nil {
		return fmt.Errorf("room: save %s: %w", r.Code, err)
	}

	if err := s.store.PutScores(ctx, r.Code, r.Scores()); err != nil {
		return fmt.Errorf("room: save scores %s: %w", r.Code, err)
	}

	if r.InPlay() && len(r.Results) > 0 {
		if err := s.store.PutResults(ctx, r.Code, r.Current.ClueID, r.Results); err != nil {
			return fmt.Errorf("room: save results %s: %w", r.Code, err)
		}
	}

	return nil
}

func authorize(r *domain.Room, token string) error {
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(r.HostToken)) != 1 {
		return errors.New(errors.CodePermissionDenied, errors.WithMessagef("unauthorized"))
	}

	return nil
}

func invalidTransition(format string, args ...any) error {
	return errors.New(errors.CodeFailedPrecondition, errors.WithMessagef(format, args...))
}

func currentClue(r *domain.Room) (*domain.Clue, error) {
	if r.Current.ClueID == "" {
		return nil, invalidTransition("no clue selected")
	}

	c, ok := r.FindClue(r.Current.ClueID)
	if !ok {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("clue not found: %s", r.Current.ClueID))
	}

	return c, nil
}

func (s *Service) stamp() *time.Time {
	t := s.now()
	return &t
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
