// Package batch absorbs bursts of answer submissions and commits them as merged writes.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/victornm/clueboard/internal/domain"
)

const DefaultInterval = 150 * time.Millisecond

const flushTimeout = 5 * time.Second

type Writer interface {
	MergeAnswers(ctx context.Context, code, clueID string, partial domain.AnswerMap) error
}

type Config struct {
	Writer Writer
	// Interval is how long a submission may wait before its batch is flushed.
	Interval time.Duration
}

// Pipeline queues answers per room and flushes each room's queue once per interval.
// Flush drains a room synchronously, so readers that flush first always observe every accepted answer.
type Pipeline struct {
	w        Writer
	interval time.Duration

	mu      sync.Mutex
	pending map[string]*queue

	// flushMu serializes writes so a drain never returns while an older batch is still in flight.
	flushMu sync.Mutex
}

type queue struct {
	answers map[string]domain.AnswerMap // by clue id
	timer   *time.Timer
}

func NewPipeline(c Config) *Pipeline {
	interval := c.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Pipeline{
		w:        c.Writer,
		interval: interval,
		pending:  make(map[string]*queue),
	}
}

// Submit queues an answer, overwriting any queued answer of the same player for the same clue.
func (p *Pipeline) Submit(_ context.Context, code, clueID, playerID string, choice int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	q, ok := p.pending[code]
	if !ok {
		q = &queue{answers: make(map[string]domain.AnswerMap)}
		p.pending[code] = q
	}

	if q.answers[clueID] == nil {
		q.answers[clueID] = make(domain.AnswerMap)
	}
	q.answers[clueID][playerID] = choice

	p.arm(code, q)

	return nil
}

// arm schedules a flush of the room's queue unless one is already scheduled. p.mu must be held.
func (p *Pipeline) arm(code string, q *queue) {
	if q.timer != nil {
		return
	}

	q.timer = time.AfterFunc(p.interval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()

		if err := p.Flush(ctx, code); err != nil {
			slog.ErrorContext(ctx, "batch: scheduled flush failed", "room", code, "error", err)
		}
	})
}

// Flush writes every queued answer of the room. Answers that could not be written are queued again.
func (p *Pipeline) Flush(ctx context.Context, code string) error {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	p.mu.Lock()
	q, ok := p.pending[code]
	if ok {
		delete(p.pending, code)
		if q.timer != nil {
			q.timer.Stop()
		}
	}
	p.mu.Unlock()

	if !ok {
		return nil
	}

	for clueID, answers := range q.answers {
		if err := p.w.MergeAnswers(ctx, code, clueID, answers); err != nil {
			p.requeue(code, q.answers)
			return fmt.Errorf("batch: flush %s/%s: %w", code, clueID, err)
		}
		delete(q.answers, clueID)
	}

	return nil
}

// Pending returns a copy of the answers queued for the clue but not yet written.
func (p *Pipeline) Pending(code, clueID string) domain.AnswerMap {
	p.mu.Lock()
	defer p.mu.Unlock()

	q, ok := p.pending[code]
	if !ok {
		return nil
	}

	return maps.Clone(q.answers[clueID])
}

// Stop flushes every room.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	codes := make([]string, 0, len(p.pending))
	for code := range p.pending {
		codes = append(codes, code)
	}
	p.mu.Unlock()

	for _, code := range codes {
		if err := p.Flush(ctx, code); err != nil {
			return err
		}
	}

	return nil
}

// requeue puts unwritten answers back without overwriting answers submitted since, and schedules another flush.
func (p *Pipeline) requeue(code string, unwritten map[string]domain.AnswerMap) {
	p.mu.Lock()
	defer p.mu.Unlock()

	q, ok := p.pending[code]
	if !ok {
		q = &queue{answers: make(map[string]domain.AnswerMap)}
		p.pending[code] = q
	}

	for clueID, answers := range unwritten {
		if q.answers[clueID] == nil {
			q.answers[clueID] = make(domain.AnswerMap)
		}
		for player, choice := range answers {
			if _, ok := q.answers[clueID][player]; !ok {
				q.answers[clueID][player] = choice
			}
		}
	}

	p.arm(code, q)
}

// Direct writes every answer immediately. It is used with the shared store, where merge writes from several
// instances already coexist.
type Direct struct {
	w Writer
}

func NewDirect(w Writer) *Direct {
	return &Direct{w: w}
}

func (d *Direct) Submit(ctx context.Context, code, clueID, playerID string, choice int) error {
	return d.w.MergeAnswers(ctx, code, clueID, domain.AnswerMap{playerID: choice})
}

func (*Direct) Flush(context.Context, string) error { return nil }

func (*Direct) Pending(string, string) domain.AnswerMap { return nil }

func (*Direct) Stop(context.Context) error { return nil }
