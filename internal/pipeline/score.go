package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadscout/internal/model"
	"github.com/sells-group/leadscout/internal/scorer"
)

// score re-reads the run's leads so enrichment writes are visible, then
// scores and persists each one. It fails only when no score could be
// written at all.
func (o *Orchestrator) score(ctx context.Context, leads []model.Lead) (int, error) {
	ids := make([]string, len(leads))
	for i, l := range leads {
		ids[i] = l.ID
	}
	fresh, err := o.store.GetLeads(ctx, ids)
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: reload leads for scoring")
	}

	var (
		written int
		lastErr error
	)
	for _, l := range fresh {
		s := scorer.Score(scorer.InputFromLead(l))
		if err := o.store.UpdateLead(ctx, l.ID, model.LeadPatch{ProbabilityScore: &s}); err != nil {
			lastErr = err
			zap.L().Warn("pipeline: score write failed",
				zap.String("lead_id", l.ID),
				zap.Error(err),
			)
			continue
		}
		written++
	}
	if len(fresh) > 0 && written == 0 {
		return 0, eris.Wrap(lastErr, "pipeline: no scores written")
	}
	return written, nil
}
