package breaker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func newTestBreaker(t *testing.T, q Queue) *Breaker {
	t.Helper()
	b, err := New("test", q, Options{Trigger: 3, Release: 5, TimeLimit: time.Second})
	require.NoError(t, err)
	return b
}

func TestBreakerPassesThroughOnSuccess(t *testing.T) {
	q := NewMemoryQueue()
	b := newTestBreaker(t, q)

	ran := 0
	for i := 0; i < 10; i++ {
		err := b.Exec(context.Background(), func(ctx context.Context) error {
			ran++
			return nil
		}, func() { t.Fatal("fallback must not run") })
		require.NoError(t, err)
	}
	require.Equal(t, 10, ran)

	// steady state: the queue converges to Trigger ON tokens
	n, err := q.Len()
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	q := NewMemoryQueue()
	b := newTestBreaker(t, q)

	// three consecutive failures consume every ON token and trip
	for i := 0; i < 3; i++ {
		err := b.Exec(context.Background(), func(ctx context.Context) error {
			return errBoom
		}, func() { t.Fatal("fallback must not run while armed") })
		require.ErrorIs(t, err, errBoom)
	}

	// probation: the next Release calls short-circuit to the fallback
	// without invoking the adapter
	fallbacks := 0
	for i := 0; i < 5; i++ {
		err := b.Exec(context.Background(), func(ctx context.Context) error {
			t.Fatal("adapter must not run while tripped")
			return nil
		}, func() { fallbacks++ })
		require.NoError(t, err)
	}
	require.Equal(t, 5, fallbacks)

	// breaker re-armed: a success starts refilling toward steady state
	err := b.Exec(context.Background(), func(ctx context.Context) error {
		return nil
	}, func() { t.Fatal("fallback must not run after re-arm") })
	require.NoError(t, err)
}

func TestBreakerRecoversSteadyState(t *testing.T) {
	q := NewMemoryQueue()
	b := newTestBreaker(t, q)

	for i := 0; i < 3; i++ {
		_ = b.Exec(context.Background(), func(ctx context.Context) error { return errBoom }, func() {})
	}
	for i := 0; i < 5; i++ {
		_ = b.Exec(context.Background(), func(ctx context.Context) error { return nil }, func() {})
	}
	// drain probation, then successes refill to exactly Trigger ON
	for i := 0; i < 6; i++ {
		err := b.Exec(context.Background(), func(ctx context.Context) error { return nil }, func() {})
		require.NoError(t, err)
	}
	n, err := q.Len()
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestBreakerTimeBudgetCountsAsFailure(t *testing.T) {
	q := NewMemoryQueue()
	b, err := New("test", q, Options{Trigger: 1, Release: 2, TimeLimit: time.Millisecond * 50})
	require.NoError(t, err)

	err = b.Exec(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, func() {})
	require.Error(t, err)

	// the single ON token is gone, next call falls back
	fallback := false
	err = b.Exec(context.Background(), func(ctx context.Context) error { return nil }, func() { fallback = true })
	require.NoError(t, err)
	require.True(t, fallback)
}

func TestSqliteQueueSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "breaker.db")

	store, err := OpenSqlite(path)
	require.NoError(t, err)
	q := store.Queue("doctolib")
	require.NoError(t, q.Push(Off, Off, On))
	require.NoError(t, store.Close())

	store, err = OpenSqlite(path)
	require.NoError(t, err)
	defer store.Close()
	q = store.Queue("doctolib")

	n, err := q.Len()
	require.NoError(t, err)
	require.Equal(t, 3, n)

	// FIFO order preserved across the restart
	tok, ok, err := q.Pop()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Off, tok)

	tok, _, _ = q.Pop()
	require.Equal(t, Off, tok)
	tok, _, _ = q.Pop()
	require.Equal(t, On, tok)

	_, ok, err = q.Pop()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSqliteQueueIsolatesPlatforms(t *testing.T) {
	store, err := OpenSqlite(filepath.Join(t.TempDir(), "breaker.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Queue("a").Push(On))
	n, err := store.Queue("b").Len()
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
