package eventlog

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStoreAppendIsDenseAndMonotonic(t *testing.T) {
	store := NewMemStore(nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	const n = 50
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := store.Append(ctx, "sess-1", TypeMessageUser, map[string]any{"i": 1}, Context{TurnID: "turn-1"})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	events, err := store.Range(ctx, "sess-1", 0)
	require.NoError(t, err)
	require.Len(t, events, n)

	seqs := make(map[int64]bool)
	for _, e := range events {
		seqs[e.Sequence] = true
	}
	for i := int64(1); i <= n; i++ {
		assert.True(t, seqs[i], "missing sequence %d", i)
	}
}

func TestMemStoreRangeSinceSequence(t *testing.T) {
	store := NewMemStore(nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := store.Append(ctx, "sess-1", TypeMessageUser, nil, Context{})
		require.NoError(t, err)
	}
	events, err := store.Range(ctx, "sess-1", 3)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(4), events[0].Sequence)
	assert.Equal(t, int64(5), events[1].Sequence)
}

func TestMemStoreForTurnFiltersByTurnID(t *testing.T) {
	store := NewMemStore(nil)
	ctx := context.Background()
	_, err := store.Append(ctx, "sess-1", TypeTurnStarted, nil, Context{TurnID: "turn-1"})
	require.NoError(t, err)
	_, err = store.Append(ctx, "sess-1", TypeTurnStarted, nil, Context{TurnID: "turn-2"})
	require.NoError(t, err)
	_, err = store.Append(ctx, "sess-1", TypeTurnCompleted, nil, Context{TurnID: "turn-1"})
	require.NoError(t, err)

	events, err := store.ForTurn(ctx, "sess-1", "turn-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, "turn-1", e.Ctx.TurnID)
	}
}

func TestMemStoreSessionsDoNotInterfere(t *testing.T) {
	store := NewMemStore(nil)
	ctx := context.Background()
	_, err := store.Append(ctx, "sess-a", TypeMessageUser, nil, Context{})
	require.NoError(t, err)
	_, err = store.Append(ctx, "sess-b", TypeMessageUser, nil, Context{})
	require.NoError(t, err)

	a, err := store.Range(ctx, "sess-a", 0)
	require.NoError(t, err)
	require.Len(t, a, 1)
	assert.Equal(t, int64(1), a[0].Sequence)
}
