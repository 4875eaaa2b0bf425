package store

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sync"

	"github.com/victornm/clueboard/internal/domain"
	"github.com/victornm/clueboard/internal/errors"
)

// Memory keeps rooms for the lifetime of the process. Snapshots are stored encoded so callers never share
// memory with the store.
type Memory struct {
	mu      sync.RWMutex
	rooms   map[string][]byte
	answers map[string]domain.AnswerMap
	results map[string]domain.ResultsMap
	scores  map[string]map[string]int

	locksMu sync.Mutex
	locks   map[string]*roomLock
}

// roomLock is dropped from Memory.locks once nobody holds or waits for it.
type roomLock struct {
	ch   chan struct{}
	refs int
}

func NewMemory() *Memory {
	return &Memory{
		rooms:   make(map[string][]byte),
		answers: make(map[string]domain.AnswerMap),
		results: make(map[string]domain.ResultsMap),
		scores:  make(map[string]map[string]int),
		locks:   make(map[string]*roomLock),
	}
}

func (m *Memory) Get(_ context.Context, code string) (*domain.Room, error) {
	m.mu.RLock()
	b, ok := m.rooms[code]
	m.mu.RUnlock()

	if !ok {
		return nil, roomNotFound(code)
	}

	var r domain.Room
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, errors.Internal(fmt.Errorf("decode room %s: %w", code, err))
	}

	return &r, nil
}

func (m *Memory) Put(_ context.Context, r *domain.Room) error {
	b, err := json.Marshal(snapshot(r))
	if err != nil {
		return errors.Internal(fmt.Errorf("encode room %s: %w", r.Code, err))
	}

	m.mu.Lock()
	m.rooms[r.Code] = b
	m.mu.Unlock()

	return nil
}

func (m *Memory) GetAnswers(_ context.Context, code, clueID string) (domain.AnswerMap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a := maps.Clone(m.answers[clueKey(code, clueID)])
	if a == nil {
		a = make(domain.AnswerMap)
	}

	return a, nil
}

func (m *Memory) MergeAnswers(_ context.Context, code, clueID string, partial domain.AnswerMap) error {
	if len(partial) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := clueKey(code, clueID)
	if m.answers[k] == nil {
		m.answers[k] = make(domain.AnswerMap, len(partial))
	}
	maps.Copy(m.answers[k], partial)

	return nil
}

func (m *Memory) GetResults(_ context.Context, code, clueID string) (domain.ResultsMap, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r := maps.Clone(m.results[clueKey(code, clueID)])
	if r == nil {
		r = make(domain.ResultsMap)
	}

	return r, nil
}

func (m *Memory) PutResults(_ context.Context, code, clueID string, results domain.ResultsMap) error {
	m.mu.Lock()
	m.results[clueKey(code, clueID)] = maps.Clone(results)
	m.mu.Unlock()

	return nil
}

func (m *Memory) GetScores(_ context.Context, code string) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := maps.Clone(m.scores[code])
	if s == nil {
		s = make(map[string]int)
	}

	return s, nil
}

func (m *Memory) PutScores(_ context.Context, code string, scores map[string]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.scores[code] == nil {
		m.scores[code] = make(map[string]int, len(scores))
	}
	maps.Copy(m.scores[code], scores)

	return nil
}

func (m *Memory) Lock(ctx context.Context, code string) (func(), error) {
	m.locksMu.Lock()
	l, ok := m.locks[code]
	if !ok {
		l = &roomLock{ch: make(chan struct{}, 1)}
		m.locks[code] = l
	}
	l.refs++
	m.locksMu.Unlock()

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			m.releaseLock(code, l)
		}, nil
	case <-ctx.Done():
		m.releaseLock(code, l)
		return nil, errors.New(errors.CodeUnavailable,
			errors.WithMessagef("room is busy: %s", code),
			errors.WithCause(ctx.Err()))
	}
}

func (m *Memory) releaseLock(code string, l *roomLock) {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(m.locks, code)
	}
}

func clueKey(code, clueID string) string {
	return code + "/" + clueID
}
