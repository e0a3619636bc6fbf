// Package tasks runs detached best-effort work: cache writes, stats
// updates, event publishes. Task failures never reach the request path.
package tasks

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultMaxInFlight = 64
	defaultTaskTimeout = 10 * time.Second
)

// Runner executes tasks on background goroutines with a concurrency cap.
// When the cap is reached the task is dropped, not queued: detached work
// must never build unbounded backlog.
type Runner struct {
	sem     chan struct{}
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewRunner constructs a Runner. maxInFlight <= 0 uses the default.
func NewRunner(maxInFlight int, timeout time.Duration, logger *zap.Logger) *Runner {
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		sem:     make(chan struct{}, maxInFlight),
		timeout: timeout,
		logger:  logger,
	}
}

// Go runs fn on its own goroutine with a fresh timeout context. The
// context is detached from the request so a finished request cannot
// cancel its own follow-up work.
func (r *Runner) Go(name string, fn func(ctx context.Context)) {
	select {
	case r.sem <- struct{}{}:
	default:
		r.logger.Warn("dropping background task, runner saturated", zap.String("task", name))
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() { <-r.sem }()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("background task panicked",
					zap.String("task", name),
					zap.Any("panic", rec),
				)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		fn(ctx)
	}()
}

// Wait blocks until every started task finishes. Used during shutdown.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// SyncRunner executes tasks inline. Tests use it to make fire-and-forget
// effects observable without sleeping.
type SyncRunner struct{}

// Go runs fn immediately on the calling goroutine.
func (SyncRunner) Go(_ string, fn func(ctx context.Context)) {
	fn(context.Background())
}
