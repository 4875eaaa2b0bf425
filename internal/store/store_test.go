package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/clueboard/internal/domain"
	"github.com/victornm/clueboard/internal/errors"
	"github.com/victornm/clueboard/internal/store"
)

func TestStore(t *testing.T) {
	backends := map[string]func(t *testing.T) store.Store{
		"memory": func(*testing.T) store.Store { return store.NewMemory() },
		"redis": func(t *testing.T) store.Store {
			rs, _ := makeRedis(t)
			return rs
		},
	}

	for name, makeStore := range backends {
		makeStore := makeStore
		t.Run(name, func(t *testing.T) {
			t.Run("get unknown room", func(t *testing.T) {
				_, err := makeStore(t).Get(context.Background(), "NOPE00")
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, errors.CodeNotFound))
			})

			t.Run("put then get returns snapshot without answers and results", func(t *testing.T) {
				ctx, s := context.Background(), makeStore(t)

				r := makeRoom()
				require.NoError(t, s.Put(ctx, r))

				got, err := s.Get(ctx, r.Code)
				require.NoError(t, err)
				assert.Equal(t, r.Code, got.Code)
				assert.Equal(t, r.Board, got.Board)
				assert.Equal(t, r.Players, got.Players)
				assert.Equal(t, r.Current, got.Current)
				assert.Nil(t, got.Answers)
				assert.Nil(t, got.Results)

				// The stored snapshot is decoupled from the caller's value.
				r.Players[0].Name = "changed"
				got, err = s.Get(ctx, r.Code)
				require.NoError(t, err)
				assert.Equal(t, "Alice", got.Players[0].Name)
			})

			t.Run("merge answers never drops other players", func(t *testing.T) {
				ctx, s := context.Background(), makeStore(t)

				require.NoError(t, s.MergeAnswers(ctx, "ROOM01", "c1", domain.AnswerMap{"p1": 1}))
				require.NoError(t, s.MergeAnswers(ctx, "ROOM01", "c1", domain.AnswerMap{"p2": 2}))
				require.NoError(t, s.MergeAnswers(ctx, "ROOM01", "c1", domain.AnswerMap{"p1": 3}))

				a, err := s.GetAnswers(ctx, "ROOM01", "c1")
				require.NoError(t, err)
				assert.Equal(t, domain.AnswerMap{"p1": 3, "p2": 2}, a)
			})

			t.Run("answers are scoped per clue", func(t *testing.T) {
				ctx, s := context.Background(), makeStore(t)

				require.NoError(t, s.MergeAnswers(ctx, "ROOM01", "c1", domain.AnswerMap{"p1": 1}))

				a, err := s.GetAnswers(ctx, "ROOM01", "c2")
				require.NoError(t, err)
				assert.Empty(t, a)
			})

			t.Run("concurrent merges are all kept", func(t *testing.T) {
				ctx, s := context.Background(), makeStore(t)

				var wg sync.WaitGroup
				for i := 0; i < 12; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						assert.NoError(t, s.MergeAnswers(ctx, "ROOM01", "c1", domain.AnswerMap{fmt.Sprintf("p%d", i): i % 4}))
					}()
				}
				wg.Wait()

				a, err := s.GetAnswers(ctx, "ROOM01", "c1")
				require.NoError(t, err)
				assert.Len(t, a, 12)
			})

			t.Run("results round trip", func(t *testing.T) {
				ctx, s := context.Background(), makeStore(t)

				empty, err := s.GetResults(ctx, "ROOM01", "c1")
				require.NoError(t, err)
				assert.Empty(t, empty)

				want := domain.ResultsMap{
					"p1": {Answered: true, Correct: true, Delta: 200, TwistChoice: domain.TwistDouble, TwistDelta: 200},
					"p2": {Answered: false, Correct: false},
				}
				require.NoError(t, s.PutResults(ctx, "ROOM01", "c1", want))

				got, err := s.GetResults(ctx, "ROOM01", "c1")
				require.NoError(t, err)
				assert.Equal(t, want, got)
			})

			t.Run("scores merge by player", func(t *testing.T) {
				ctx, s := context.Background(), makeStore(t)

				require.NoError(t, s.PutScores(ctx, "ROOM01", map[string]int{"p1": 200, "p2": -200}))
				require.NoError(t, s.PutScores(ctx, "ROOM01", map[string]int{"p1": 400}))

				got, err := s.GetScores(ctx, "ROOM01")
				require.NoError(t, err)
				assert.Equal(t, map[string]int{"p1": 400, "p2": -200}, got)
			})

			t.Run("lock serializes holders", func(t *testing.T) {
				ctx, s := context.Background(), makeStore(t)

				unlock, err := s.Lock(ctx, "ROOM01")
				require.NoError(t, err)

				short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
				defer cancel()
				_, err = s.Lock(short, "ROOM01")
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, errors.CodeUnavailable))

				// Other rooms are unaffected.
				unlockOther, err := s.Lock(ctx, "ROOM02")
				require.NoError(t, err)
				unlockOther()

				unlock()

				unlock, err = s.Lock(ctx, "ROOM01")
				require.NoError(t, err)
				unlock()
			})
		})
	}
}

func TestRedis_TTL(t *testing.T) {
	ctx := context.Background()
	s, mr := makeRedis(t)

	r := makeRoom()
	require.NoError(t, s.Put(ctx, r))
	require.NoError(t, s.PutScores(ctx, r.Code, map[string]int{"p1": 1}))
	require.NoError(t, s.MergeAnswers(ctx, r.Code, "c1", domain.AnswerMap{"p1": 1}))
	require.NoError(t, s.PutResults(ctx, r.Code, "c1", domain.ResultsMap{"p1": {}}))

	for _, k := range []string{
		"test:room:ROOM01",
		"test:room:ROOM01:scores",
		"test:room:ROOM01:answers:c1",
		"test:room:ROOM01:results:c1",
	} {
		assert.Equal(t, 2*time.Hour, mr.TTL(k), "key %s", k)
	}

	mr.FastForward(3 * time.Hour)

	_, err := s.Get(ctx, r.Code)
	assert.True(t, errors.HasCode(err, errors.CodeNotFound), "abandoned room should be reclaimed")
}

func TestRedis_Unavailable(t *testing.T) {
	s, mr := makeRedis(t)
	mr.Close()

	_, err := s.Get(context.Background(), "ROOM01")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeUnavailable))
}

func TestRedis_LockExpires(t *testing.T) {
	ctx := context.Background()
	s, mr := makeRedis(t)

	_, err := s.Lock(ctx, "ROOM01")
	require.NoError(t, err)

	// A crashed holder never unlocks; the lock must expire.
	mr.FastForward(10 * time.Second)

	unlock, err := s.Lock(ctx, "ROOM01")
	require.NoError(t, err)
	unlock()
	assert.False(t, mr.Exists("test:room:ROOM01:lock"))
}

func makeRedis(t *testing.T) (*store.Redis, *miniredis.Miniredis) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	mr := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	return store.NewRedis(store.RedisConfig{
		Redis:  rc,
		Prefix: "test",
		TTL:    2 * time.Hour,
	}), mr
}

func makeRoom() *domain.Room {
	return &domain.Room{
		Code:      "ROOM01",
		HostToken: "secret",
		Status:    domain.StatusLobby,
		Config:    domain.RoomConfig{PlayerLimit: 4, TwistDefault: true},
		Players: []*domain.Player{
			{ID: "p1", Name: "Alice", Connected: true},
		},
		Board: []domain.Category{
			{Title: "Science", Clues: []domain.Clue{
				{ID: "c1", Value: 200, Question: "q", Choices: [4]string{"a", "b", "c", "d"}, CorrectIndex: 1},
			}},
		},
		Current: domain.IdleClue(),
		Answers: domain.AnswerMap{"p1": 1},
		Results: domain.ResultsMap{"p1": {Answered: true}},
	}
}
