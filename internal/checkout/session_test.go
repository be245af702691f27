package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySessionStoreCompareAndSet(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()

	s, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, s.State)

	require.NoError(t, store.Transition(ctx, "k", restartable, Session{State: StateConfirming}))

	err = store.Transition(ctx, "k", restartable, Session{State: StateConfirming})
	var conflict *ErrStateConflict
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, StateConfirming, conflict.Current)
	assert.True(t, conflict.Current.Busy())

	require.NoError(t, store.Transition(ctx, "k", []State{StateConfirming}, Session{State: StateConfirmed, IntentID: "pi_1"}))
	s, _ = store.Get(ctx, "k")
	assert.Equal(t, "pi_1", s.IntentID)
	assert.False(t, s.State.Busy())
}
