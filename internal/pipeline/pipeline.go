// Package pipeline runs one search request end to end: discovery, lead
// persistence, per-lead enrichment, scoring and status finalization.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadscout/internal/automation"
	"github.com/sells-group/leadscout/internal/contact"
	"github.com/sells-group/leadscout/internal/discovery"
	"github.com/sells-group/leadscout/internal/model"
	"github.com/sells-group/leadscout/internal/store"
)

// Progress checkpoints reported while a run advances.
const (
	ProgressDiscovering = 10
	ProgressPersisted   = 40
	ProgressEnriched    = 80
	ProgressScored      = 90
	ProgressCompleted   = 100
)

// DefaultEnrichConcurrency bounds the per-lead enrichment fan-out.
const DefaultEnrichConcurrency = 5

// Discoverer finds businesses for a query.
type Discoverer interface {
	Discover(ctx context.Context, q discovery.Query) ([]model.BusinessRecord, error)
}

// EmailFinder looks up the best contact email for a domain. It never fails;
// misses are reported in the result.
type EmailFinder interface {
	FindEmail(ctx context.Context, domain string) contact.Result
}

// AutomationDetector scans a website for automation tools, reusing cached
// results per host.
type AutomationDetector interface {
	DetectCached(ctx context.Context, website string) automation.Result
}

// Config tunes a pipeline run.
type Config struct {
	EnrichConcurrency int `yaml:"enrich_concurrency" mapstructure:"enrich_concurrency"`
}

// Orchestrator drives search requests through the pipeline stages.
type Orchestrator struct {
	cfg       Config
	store     store.Store
	discovery Discoverer
	contacts  EmailFinder
	detector  AutomationDetector
}

// New creates an Orchestrator with all dependencies.
func New(cfg Config, st store.Store, d Discoverer, ef EmailFinder, ad AutomationDetector) *Orchestrator {
	if cfg.EnrichConcurrency <= 0 {
		cfg.EnrichConcurrency = DefaultEnrichConcurrency
	}
	return &Orchestrator{
		cfg:       cfg,
		store:     st,
		discovery: d,
		contacts:  ef,
		detector:  ad,
	}
}

// GetStatus returns the polling view of a search. It never mutates state.
func (o *Orchestrator) GetStatus(ctx context.Context, searchID string) (*model.StatusView, error) {
	sr, err := o.store.GetSearch(ctx, searchID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: get status")
	}
	view := sr.View()
	return &view, nil
}

// Run executes the pipeline for the trigger's search. The search must
// already exist and be processing. Any stage failure marks the search
// failed and is returned; per-lead enrichment and scoring misses are not.
func (o *Orchestrator) Run(ctx context.Context, trigger model.Trigger) error {
	if err := trigger.Validate(); err != nil {
		return eris.Wrap(err, "pipeline: invalid trigger")
	}
	t := trigger.Normalize()
	log := zap.L().With(zap.String("search_id", t.SearchID))
	start := time.Now()

	sr, err := o.store.GetSearch(ctx, t.SearchID)
	if err != nil {
		return eris.Wrap(err, "pipeline: load search")
	}
	if sr.Status.Terminal() {
		return eris.Errorf("pipeline: search %s is already %s", t.SearchID, sr.Status)
	}

	progress := newProgressTracker(o.store, t.SearchID, sr.Progress)

	// Discovering.
	log.Info("pipeline: discovering",
		zap.String("location", t.Location),
		zap.String("industry", t.Industry),
		zap.Int("radius_meters", t.RadiusMeters),
		zap.Int("requested_count", t.RequestedCount),
	)
	if err := progress.Set(ctx, ProgressDiscovering); err != nil {
		return o.fail(ctx, progress, eris.Wrap(err, "pipeline: mark discovering"), false)
	}
	records, err := o.discovery.Discover(ctx, discovery.Query{
		Location:     t.Location,
		Category:     t.Industry,
		RadiusMeters: t.RadiusMeters,
		MaxResults:   t.RequestedCount,
	})
	if err != nil {
		return o.fail(ctx, progress, eris.Wrap(err, "pipeline: discover"), true)
	}
	if len(records) == 0 {
		log.Info("pipeline: no businesses found")
		if err := o.store.CompleteSearch(ctx, t.SearchID, 0); err != nil {
			return o.fail(ctx, progress, eris.Wrap(err, "pipeline: complete empty search"), false)
		}
		return nil
	}

	// Persisting.
	leads, err := o.persist(ctx, t.SearchID, records)
	if err != nil {
		return o.fail(ctx, progress, err, false)
	}
	if err := o.store.SetResultCount(ctx, t.SearchID, len(leads)); err != nil {
		return o.fail(ctx, progress, eris.Wrap(err, "pipeline: set result count"), false)
	}
	if err := progress.Set(ctx, ProgressPersisted); err != nil {
		return o.fail(ctx, progress, eris.Wrap(err, "pipeline: mark persisted"), false)
	}
	log.Info("pipeline: leads persisted", zap.Int("leads", len(leads)))

	// Enriching.
	stats := o.enrich(ctx, leads, progress)
	log.Info("pipeline: enrichment complete",
		zap.Int("enriched", stats.Attempted),
		zap.Int("emails_found", stats.EmailsFound),
		zap.Int("automation_detected", stats.AutomationDetected),
		zap.Int("failed", stats.Failed),
	)

	// Scoring.
	scored, err := o.score(ctx, leads)
	if err != nil {
		return o.fail(ctx, progress, err, false)
	}
	if err := progress.Set(ctx, ProgressScored); err != nil {
		return o.fail(ctx, progress, eris.Wrap(err, "pipeline: mark scored"), false)
	}
	log.Info("pipeline: leads scored", zap.Int("scored", scored))

	// Completed.
	if err := o.store.CompleteSearch(ctx, t.SearchID, len(leads)); err != nil {
		return o.fail(ctx, progress, eris.Wrap(err, "pipeline: complete search"), false)
	}
	log.Info("pipeline: search completed",
		zap.Int("result_count", len(leads)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// persist inserts one lead per business and returns the search's stored
// leads. Re-running a search reuses rows already inserted.
func (o *Orchestrator) persist(ctx context.Context, searchID string, records []model.BusinessRecord) ([]model.Lead, error) {
	now := time.Now().UTC()
	leads := make([]model.Lead, len(records))
	for i, rec := range records {
		leads[i] = model.NewLead("", searchID, rec, now)
	}
	if _, err := o.store.InsertLeads(ctx, leads); err != nil {
		return nil, eris.Wrap(err, "pipeline: insert leads")
	}
	stored, err := o.store.ListLeads(ctx, searchID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list leads")
	}
	return stored, nil
}

// fail records the failure with a context that outlives cancellation of
// the run and returns cause.
func (o *Orchestrator) fail(ctx context.Context, progress *progressTracker, cause error, resetProgress bool) error {
	searchID := progress.searchID
	log := zap.L().With(zap.String("search_id", searchID))
	log.Error("pipeline: search failed",
		zap.Error(cause),
		zap.Int("progress", progress.Last()),
		zap.Bool("progress_reset", resetProgress),
	)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.store.FailSearch(writeCtx, searchID, cause.Error(), resetProgress); err != nil {
		log.Error("pipeline: failed to record failure", zap.Error(err))
	}
	return cause
}
