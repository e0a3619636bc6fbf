package tasks

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunnerExecutesTasks(t *testing.T) {
	t.Parallel()

	r := NewRunner(4, time.Second, zap.NewNop())
	var ran atomic.Int64
	for i := 0; i < 4; i++ {
		r.Go("count", func(ctx context.Context) {
			ran.Add(1)
		})
	}
	r.Wait()
	require.Equal(t, int64(4), ran.Load())
}

func TestRunnerDropsWhenSaturated(t *testing.T) {
	t.Parallel()

	r := NewRunner(1, time.Second, zap.NewNop())
	release := make(chan struct{})
	started := make(chan struct{})

	r.Go("blocker", func(ctx context.Context) {
		close(started)
		<-release
	})
	<-started

	var ran atomic.Bool
	r.Go("dropped", func(ctx context.Context) {
		ran.Store(true)
	})
	close(release)
	r.Wait()
	require.False(t, ran.Load())
}

func TestRunnerRecoversPanic(t *testing.T) {
	t.Parallel()

	r := NewRunner(2, time.Second, zap.NewNop())
	r.Go("boom", func(ctx context.Context) {
		panic("boom")
	})
	r.Wait()

	// The slot is released after the panic; the runner stays usable.
	var ran atomic.Bool
	r.Go("after", func(ctx context.Context) { ran.Store(true) })
	r.Wait()
	require.True(t, ran.Load())
}

func TestRunnerDetachesFromCaller(t *testing.T) {
	t.Parallel()

	r := NewRunner(1, time.Second, zap.NewNop())
	var mu sync.Mutex
	var err error
	r.Go("detached", func(ctx context.Context) {
		mu.Lock()
		err = ctx.Err()
		mu.Unlock()
	})
	r.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NoError(t, err)
}

func TestSyncRunnerRunsInline(t *testing.T) {
	t.Parallel()

	var ran bool
	SyncRunner{}.Go("inline", func(ctx context.Context) { ran = true })
	require.True(t, ran)
}
