package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_LocksAreDropped(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	locks := func() int {
		m.locksMu.Lock()
		defer m.locksMu.Unlock()
		return len(m.locks)
	}

	t.Run("after release", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock, err := m.Lock(ctx, "ROOM01")
				if assert.NoError(t, err) {
					unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 0, locks())
	})

	t.Run("after a waiter gives up", func(t *testing.T) {
		unlock, err := m.Lock(ctx, "ROOM02")
		require.NoError(t, err)

		wctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		_, err = m.Lock(wctx, "ROOM02")
		require.Error(t, err)
		assert.Equal(t, 1, locks(), "the holder keeps the entry")

		unlock()
		assert.Equal(t, 0, locks())

		// The room can be locked again afterwards.
		unlock, err = m.Lock(ctx, "ROOM02")
		require.NoError(t, err)
		unlock()
	})
}
