package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/clueboard/internal/domain"
	"github.com/victornm/clueboard/internal/errors"
)

// unlockScript deletes the lock only if it is still held by the caller's token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type RedisConfig struct {
	Redis  redis.UniversalClient
	Prefix string
	// TTL is applied to every key on every write. Defaults to DefaultTTL.
	TTL time.Duration
}

// Redis stores rooms in a shared Redis so that stateless instances behind a load balancer see the same rooms.
type Redis struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedis(c RedisConfig) *Redis {
	ttl := c.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Redis{
		redis:  c.Redis,
		prefix: c.Prefix,
		ttl:    ttl,
	}
}

func (s *Redis) Get(ctx context.Context, code string) (*domain.Room, error) {
	b, err := s.redis.Get(ctx, s.roomKey(code)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, roomNotFound(code)
	}
	if err != nil {
		return nil, errors.Unavailable(fmt.Errorf("get room %s: %w", code, err))
	}

	var r domain.Room
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, errors.Internal(fmt.Errorf("decode room %s: %w", code, err))
	}

	return &r, nil
}

func (s *Redis) Put(ctx context.Context, r *domain.Room) error {
	b, err := json.Marshal(snapshot(r))
	if err != nil {
		return errors.Internal(fmt.Errorf("encode room %s: %w", r.Code, err))
	}

	_, err = s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.roomKey(r.Code), b, s.ttl)
		p.Expire(ctx, s.scoresKey(r.Code), s.ttl)
		return nil
	})
	if err != nil {
		return errors.Unavailable(fmt.Errorf("put room %s: %w", r.Code, err))
	}

	return nil
}

func (s *Redis) GetAnswers(ctx context.Context, code, clueID string) (domain.AnswerMap, error) {
	m, err := s.redis.HGetAll(ctx, s.answersKey(code, clueID)).Result()
	if err != nil {
		return nil, errors.Unavailable(fmt.Errorf("get answers %s/%s: %w", code, clueID, err))
	}

	a := make(domain.AnswerMap, len(m))
	for player, v := range m {
		choice, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.Internal(fmt.Errorf("decode answer %s/%s/%s: %w", code, clueID, player, err))
		}
		a[player] = choice
	}

	return a, nil
}

func (s *Redis) MergeAnswers(ctx context.Context, code, clueID string, partial domain.AnswerMap) error {
	if len(partial) == 0 {
		return nil
	}

	values := make(map[string]any, len(partial))
	for player, choice := range partial {
		values[player] = choice
	}

	k := s.answersKey(code, clueID)
	_, err := s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, k, values)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return errors.Unavailable(fmt.Errorf("merge answers %s/%s: %w", code, clueID, err))
	}

	return nil
}

func (s *Redis) GetResults(ctx context.Context, code, clueID string) (domain.ResultsMap, error) {
	b, err := s.redis.Get(ctx, s.resultsKey(code, clueID)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return make(domain.ResultsMap), nil
	}
	if err != nil {
		return nil, errors.Unavailable(fmt.Errorf("get results %s/%s: %w", code, clueID, err))
	}

	r := make(domain.ResultsMap)
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, errors.Internal(fmt.Errorf("decode results %s/%s: %w", code, clueID, err))
	}

	return r, nil
}

func (s *Redis) PutResults(ctx context.Context, code, clueID string, results domain.ResultsMap) error {
	b, err := json.Marshal(results)
	if err != nil {
		return errors.Internal(fmt.Errorf("encode results %s/%s: %w", code, clueID, err))
	}

	if err := s.redis.Set(ctx, s.resultsKey(code, clueID), b, s.ttl).Err(); err != nil {
		return errors.Unavailable(fmt.Errorf("put results %s/%s: %w", code, clueID, err))
	}

	return nil
}

func (s *Redis) GetScores(ctx context.Context, code string) (map[string]int, error) {
	m, err := s.redis.HGetAll(ctx, s.scoresKey(code)).Result()
	if err != nil {
		return nil, errors.Unavailable(fmt.Errorf("get scores %s: %w", code, err))
	}

	scores := make(map[string]int, len(m))
	for player, v := range m {
		sc, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.Internal(fmt.Errorf("decode score %s/%s: %w", code, player, err))
		}
		scores[player] = sc
	}

	return scores, nil
}

func (s *Redis) PutScores(ctx context.Context, code string, scores map[string]int) error {
	if len(scores) == 0 {
		return nil
	}

	values := make(map[string]any, len(scores))
	for player, sc := range scores {
		values[player] = sc
	}

	k := s.scoresKey(code)
	_, err := s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, k, values)
		p.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return errors.Unavailable(fmt.Errorf("put scores %s: %w", code, err))
	}

	return nil
}

// Lock acquires a short-lived Redis lock on the room, polling until ctx is done.
// The lock expires on its own if the holder dies.
func (s *Redis) Lock(ctx context.Context, code string) (func(), error) {
	k, token := s.lockKey(code), uuid.NewString()

	t := time.NewTicker(lockInterval)
	defer t.Stop()

	for {
		ok, err := s.redis.SetNX(ctx, k, token, lockTTL).Result()
		if err != nil {
			return nil, errors.Unavailable(fmt.Errorf("lock room %s: %w", code, err))
		}
		if ok {
			break
		}

		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, errors.New(errors.CodeUnavailable,
				errors.WithMessagef("room is busy: %s", code),
				errors.WithCause(ctx.Err()))
		}
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()

		if err := unlockScript.Run(ctx, s.redis, []string{k}, token).Err(); err != nil {
			slog.ErrorContext(ctx, "store: unlock room failed", "room", code, "error", err)
		}
	}, nil
}

func (s *Redis) roomKey(code string) string {
	return fmt.Sprintf("%s:room:%s", s.prefix, code)
}

func (s *Redis) scoresKey(code string) string {
	return fmt.Sprintf("%s:room:%s:scores", s.prefix, code)
}

func (s *Redis) lockKey(code string) string {
	return fmt.Sprintf("%s:room:%s:lock", s.prefix, code)
}

func (s *Redis) answersKey(code, clueID string) string {
	return fmt.Sprintf("%s:room:%s:answers:%s", s.prefix, code, clueID)
}

func (s *Redis) resultsKey(code, clueID string) string {
	return fmt.Sprintf("%s:room:%s:results:%s", s.prefix, code, clueID)
}
