package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadscout/internal/model"
)

// EnrichStats summarizes an enrichment pass.
type EnrichStats struct {
	Attempted          int
	EmailsFound        int
	AutomationDetected int
	Failed             int
}

// enrich runs email lookup and automation detection for every lead with a
// website. Per-lead failures are logged and never abort the pass.
func (o *Orchestrator) enrich(ctx context.Context, leads []model.Lead, progress *progressTracker) EnrichStats {
	var targets []model.Lead
	for _, l := range leads {
		if l.HasWebsite() {
			targets = append(targets, l)
		}
	}

	var (
		mu    sync.Mutex
		stats EnrichStats
		done  int
	)
	stats.Attempted = len(targets)

	g := new(errgroup.Group)
	g.SetLimit(o.cfg.EnrichConcurrency)
	for _, lead := range targets {
		g.Go(func() error {
			emailFound, detected, err := o.enrichLead(ctx, lead)

			mu.Lock()
			done++
			if emailFound {
				stats.EmailsFound++
			}
			if detected {
				stats.AutomationDetected++
			}
			if err != nil {
				stats.Failed++
			}
			p := enrichmentProgress(done, len(targets))
			mu.Unlock()

			if err != nil {
				zap.L().Warn("pipeline: lead enrichment failed",
					zap.String("lead_id", lead.ID),
					zap.String("website", lead.Website),
					zap.Error(err),
				)
			}
			if perr := progress.Set(ctx, p); perr != nil {
				zap.L().Warn("pipeline: progress update failed", zap.Int("progress", p), zap.Error(perr))
			}
			return nil
		})
	}
	_ = g.Wait()

	if perr := progress.Set(ctx, ProgressEnriched); perr != nil {
		zap.L().Warn("pipeline: progress update failed", zap.Int("progress", ProgressEnriched), zap.Error(perr))
	}
	return stats
}

// enrichLead looks up the lead's email and scans its website, persisting
// each result as soon as it is known. A failed email write does not stop
// the scan; both errors are returned together.
func (o *Orchestrator) enrichLead(ctx context.Context, lead model.Lead) (emailFound, detected bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("pipeline: enrich lead %s panicked: %v", lead.ID, r)
		}
	}()

	var emailErr error
	res := o.contacts.FindEmail(ctx, lead.Domain)
	if res.Found() {
		email, confidence := res.Email, res.Confidence
		emailErr = o.store.UpdateLead(ctx, lead.ID, model.LeadPatch{
			Email:           &email,
			EmailConfidence: &confidence,
		})
		emailFound = emailErr == nil
	} else {
		zap.L().Debug("pipeline: no email",
			zap.String("lead_id", lead.ID),
			zap.String("domain", lead.Domain),
			zap.String("reason", string(res.Reason)),
		)
	}

	scan := o.detector.DetectCached(ctx, lead.Website)
	tools := scan.Tools
	if tools == nil {
		tools = []string{}
	}
	patch := model.LeadPatch{
		AutomationDetected: &scan.Detected,
		AutomationTools:    tools,
		Socials:            scan.Socials,
	}
	if err := o.store.UpdateLead(ctx, lead.ID, patch); err != nil {
		return emailFound, false, errors.Join(emailErr, err)
	}
	return emailFound, scan.Detected, emailErr
}
