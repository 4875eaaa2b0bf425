// Package store persists room state. Room snapshots, per-clue answers and results, and per-room scores are kept
// under separate keys so concurrent writers never clobber each other.
package store

import (
	"context"
	"time"

	"github.com/victornm/clueboard/internal/domain"
	"github.com/victornm/clueboard/internal/errors"
)

const (
	DefaultTTL = 6 * time.Hour

	lockTTL      = 5 * time.Second
	lockInterval = 10 * time.Millisecond
)

// Store is implemented by Memory for a single instance and by Redis for multiple instances sharing rooms.
type Store interface {
	// Get returns the room snapshot, or a NotFound error.
	Get(ctx context.Context, code string) (*domain.Room, error)
	// Put replaces the room snapshot. Answers, results and scores are not part of the snapshot.
	Put(ctx context.Context, r *domain.Room) error

	GetAnswers(ctx context.Context, code, clueID string) (domain.AnswerMap, error)
	// MergeAnswers upserts the given answers, leaving answers of other players untouched.
	MergeAnswers(ctx context.Context, code, clueID string, partial domain.AnswerMap) error

	GetResults(ctx context.Context, code, clueID string) (domain.ResultsMap, error)
	PutResults(ctx context.Context, code, clueID string, results domain.ResultsMap) error

	GetScores(ctx context.Context, code string) (map[string]int, error)
	PutScores(ctx context.Context, code string, scores map[string]int) error

	// Lock serializes read-modify-write cycles on one room. The returned func releases the lock.
	Lock(ctx context.Context, code string) (func(), error)
}

func roomNotFound(code string) error {
	return errors.New(errors.CodeNotFound, errors.WithMessagef("room not found: %s", code))
}

// snapshot strips the parts of a room that live under their own keys.
func snapshot(r *domain.Room) domain.Room {
	s := *r
	s.Answers = nil
	s.Results = nil
	return s
}
