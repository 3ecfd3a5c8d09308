package jobmgr

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ctxKey struct{}

func TestManager_StartAsyncDetachesFromParent(t *testing.T) {
	var (
		mu     sync.Mutex
		events []Event
	)
	m := NewManager(func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	parent, cancel := context.WithCancel(context.WithValue(context.Background(), ctxKey{}, "v"))
	release := make(chan struct{})
	var sawValue any
	var sawErr error
	require.NoError(t, m.StartAsync(parent, "job", func(ctx context.Context) error {
		<-release
		sawValue = ctx.Value(ctxKey{})
		sawErr = ctx.Err()
		return errors.New("boom")
	}))
	cancel()
	close(release)

	ctx, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()
	require.NoError(t, m.Wait(ctx, "job"))

	assert.Equal(t, "v", sawValue)
	assert.NoError(t, sawErr, "parent cancellation does not reach the job")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 2)
	assert.Equal(t, StateRunning, events[0].State)
	assert.Equal(t, StateError, events[1].State)
	assert.EqualError(t, events[1].Err, "boom")
}

func TestManager_DuplicateNameRejected(t *testing.T) {
	m := NewManager(nil)
	block := make(chan struct{})
	defer close(block)

	require.NoError(t, m.StartAsync(context.Background(), "a", func(ctx context.Context) error {
		<-block
		return nil
	}))
	err := m.StartAsync(context.Background(), "a", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrRunning)
	assert.Equal(t, []string{"a"}, m.List())
	assert.Equal(t, "Running jobs: a", m.Status())
}

func TestManager_StopAndClose(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.StartAsync(context.Background(), "a", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	require.NoError(t, m.StartAsync(context.Background(), "b", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}))

	require.NoError(t, m.Stop("a"))
	assert.ErrorIs(t, m.Stop("a"), ErrNotRunning)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Close(ctx))
	assert.Empty(t, m.List())
	assert.Equal(t, "No jobs are running.", m.Status())
	assert.ErrorIs(t, m.StartAsync(context.Background(), "c", func(context.Context) error { return nil }), ErrClosed)
}
