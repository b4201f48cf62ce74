package pipeline

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/leadscout/internal/model"
)

// DefaultMaxConcurrentRuns bounds how many searches execute at once.
const DefaultMaxConcurrentRuns = 4

// ErrAlreadyRunning is returned when a search is submitted while a run for
// it is still in flight.
var ErrAlreadyRunning = eris.New("pipeline: search already running")

// ErrRunnerClosed is returned by Submit after Wait has been called.
var ErrRunnerClosed = eris.New("pipeline: runner closed")

// RunFunc executes one search.
type RunFunc func(ctx context.Context, t model.Trigger) error

// Runner executes submitted searches in the background with bounded
// concurrency and at most one run per search ID.
type Runner struct {
	run RunFunc
	sem *semaphore.Weighted

	mu       sync.Mutex
	inflight map[string]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewRunner creates a Runner. A non-positive limit uses
// DefaultMaxConcurrentRuns.
func NewRunner(run RunFunc, limit int64) *Runner {
	if limit <= 0 {
		limit = DefaultMaxConcurrentRuns
	}
	return &Runner{
		run:      run,
		sem:      semaphore.NewWeighted(limit),
		inflight: make(map[string]struct{}),
	}
}

// Submit starts a run for the trigger and returns immediately. The run
// keeps going after ctx is canceled; only ctx's values are inherited.
func (r *Runner) Submit(ctx context.Context, t model.Trigger) error {
	if err := t.Validate(); err != nil {
		return eris.Wrap(err, "pipeline: submit")
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRunnerClosed
	}
	if _, ok := r.inflight[t.SearchID]; ok {
		r.mu.Unlock()
		return eris.Wrapf(ErrAlreadyRunning, "pipeline: submit %s", t.SearchID)
	}
	r.inflight[t.SearchID] = struct{}{}
	r.wg.Add(1)
	r.mu.Unlock()

	runCtx := context.WithoutCancel(ctx)
	go func() {
		defer r.wg.Done()
		defer r.finish(t.SearchID)

		if err := r.sem.Acquire(runCtx, 1); err != nil {
			zap.L().Error("pipeline: acquire run slot", zap.String("search_id", t.SearchID), zap.Error(err))
			return
		}
		defer r.sem.Release(1)

		defer func() {
			if rec := recover(); rec != nil {
				zap.L().Error("pipeline: run panicked", zap.String("search_id", t.SearchID), zap.Any("panic", rec))
			}
		}()
		if err := r.run(runCtx, t); err != nil {
			zap.L().Warn("pipeline: run ended with error", zap.String("search_id", t.SearchID), zap.Error(err))
		}
	}()
	return nil
}

func (r *Runner) finish(searchID string) {
	r.mu.Lock()
	delete(r.inflight, searchID)
	r.mu.Unlock()
}

// Active returns the number of submitted runs that have not finished.
func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}

// Wait stops accepting submissions and blocks until in-flight runs finish
// or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "pipeline: wait for runs")
	}
}
