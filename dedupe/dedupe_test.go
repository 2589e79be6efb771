package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoalescer_SingleCaller(t *testing.T) {
	c := New[string]()

	got, err := c.Do(context.Background(), "k", func(ctx context.Context) (string, error) {
		return "value", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "value", got)
	assert.False(t, c.IsInflight("k"))
	assert.Zero(t, c.InflightCount())
}

func TestCoalescer_ConcurrentCallersShareOneFetch(t *testing.T) {
	c := New[string]()

	var calls atomic.Int64
	release := make(chan struct{})

	fetch := func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	}

	const callers = 5
	results := make([]string, callers)
	errs := make([]error, callers)

	var started sync.WaitGroup
	var done sync.WaitGroup
	for i := 0; i < callers; i++ {
		started.Add(1)
		done.Add(1)
		go func(i int) {
			defer done.Done()
			started.Done()
			results[i], errs[i] = c.Do(context.Background(), "k", fetch)
		}(i)
	}

	// Every caller is inside Do before the fetch is released, so they all
	// join the one blocked flight.
	started.Wait()
	assert.Eventually(t, func() bool { return c.IsInflight("k") },
		time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	done.Wait()

	assert.Equal(t, int64(1), calls.Load(), "fetch should run once for all callers")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", results[i])
	}
}

func TestCoalescer_SharedError(t *testing.T) {
	c := New[int]()

	release := make(chan struct{})
	fetch := func(ctx context.Context) (int, error) {
		<-release
		return 0, assert.AnError
	}

	const callers = 3
	errs := make([]error, callers)

	var done sync.WaitGroup
	for i := 0; i < callers; i++ {
		done.Add(1)
		go func(i int) {
			defer done.Done()
			_, errs[i] = c.Do(context.Background(), "k", fetch)
		}(i)
	}

	assert.Eventually(t, func() bool { return c.IsInflight("k") },
		time.Second, time.Millisecond)
	close(release)
	done.Wait()

	for i := 0; i < callers; i++ {
		assert.ErrorIs(t, errs[i], assert.AnError)
	}
}

func TestCoalescer_DistinctKeysFetchSeparately(t *testing.T) {
	c := New[string]()

	var calls atomic.Int64
	fetch := func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "v", nil
	}

	_, err := c.Do(context.Background(), "a", fetch)
	require.NoError(t, err)
	_, err = c.Do(context.Background(), "b", fetch)
	require.NoError(t, err)

	assert.Equal(t, int64(2), calls.Load())
}

func TestCoalescer_CancelStartsFreshFetch(t *testing.T) {
	c := New[int]()

	var calls atomic.Int64
	release := make(chan struct{})

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _ = c.Do(context.Background(), "k", func(ctx context.Context) (int, error) {
			calls.Add(1)
			<-release
			return 1, nil
		})
	}()

	require.Eventually(t, func() bool { return c.IsInflight("k") },
		time.Second, time.Millisecond)

	c.Cancel("k")

	// After Cancel, a new Do must not join the old flight.
	got, err := c.Do(context.Background(), "k", func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 2, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, got)

	close(release)
	<-firstDone
	assert.Equal(t, int64(2), calls.Load())
}

func TestCoalescer_CallerContextCancellation(t *testing.T) {
	c := New[int]()

	fetchStarted := make(chan struct{})
	release := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Do(ctx, "k", func(fctx context.Context) (int, error) {
			close(fetchStarted)
			<-release
			return 1, nil
		})
		errCh <- err
	}()

	<-fetchStarted
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("caller did not return after context cancellation")
	}

	close(release)
}

func TestCoalescer_NilFetch(t *testing.T) {
	c := New[int]()
	_, err := c.Do(context.Background(), "k", nil)
	require.Error(t, err)
}

func TestCoalescer_Clear(t *testing.T) {
	c := New[int]()

	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Do(context.Background(), "k", func(ctx context.Context) (int, error) {
			<-release
			return 1, nil
		})
	}()

	require.Eventually(t, func() bool { return c.InflightCount() == 1 },
		time.Second, time.Millisecond)

	c.Clear()

	got, err := c.Do(context.Background(), "k", func(ctx context.Context) (int, error) {
		return 2, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, got)

	close(release)
	<-done
	assert.Zero(t, c.InflightCount())
}
