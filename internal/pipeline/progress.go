package pipeline

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

type progressWriter interface {
	UpdateSearchProgress(ctx context.Context, id string, progress int) error
}

// progressTracker serializes progress writes for one run and drops any
// value lower than the last one written.
type progressTracker struct {
	mu       sync.Mutex
	store    progressWriter
	searchID string
	last     int
}

func newProgressTracker(w progressWriter, searchID string, initial int) *progressTracker {
	return &progressTracker{store: w, searchID: searchID, last: initial}
}

// Set writes p if it advances the run.
func (t *progressTracker) Set(ctx context.Context, p int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p <= t.last {
		return nil
	}
	if err := t.store.UpdateSearchProgress(ctx, t.searchID, p); err != nil {
		return eris.Wrapf(err, "pipeline: write progress %d", p)
	}
	t.last = p
	return nil
}

// Last returns the highest progress written.
func (t *progressTracker) Last() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// enrichmentProgress maps done of total enriched leads onto the
// persisted..enriched band.
func enrichmentProgress(done, total int) int {
	if total <= 0 {
		return ProgressEnriched
	}
	return ProgressPersisted + done*(ProgressEnriched-ProgressPersisted)/total
}
