// Package pipeline orchestrates one document run end to end: load, extract,
// enrich, score, persist. Every step's output is persisted before the next
// starts, so a crash leaves inspectable state instead of lost work.
package pipeline

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/clearclaim/docintel/internal/extract"
	"github.com/clearclaim/docintel/internal/gate"
	"github.com/clearclaim/docintel/internal/knowledge"
	"github.com/clearclaim/docintel/internal/model"
	"github.com/clearclaim/docintel/internal/resilience"
	"github.com/clearclaim/docintel/internal/schema"
	"github.com/clearclaim/docintel/internal/scoring"
	"github.com/clearclaim/docintel/internal/store"
)

// Runner drives the document pipeline. All collaborators are injected so
// tests can substitute any of them.
type Runner struct {
	store     store.Store
	extractor extract.Service
	matcher   *knowledge.Matcher
	gate      *gate.Gate
}

// New builds a Runner. The gate may be nil when billing signals are not
// wanted (tests, local CLI use).
func New(s store.Store, e extract.Service, m *knowledge.Matcher, g *gate.Gate) *Runner {
	return &Runner{store: s, extractor: e, matcher: m, gate: g}
}

// Process executes one run to a terminal state and returns the final record.
// The run must exist and be in a processable status. Re-entry after failure
// clears all partial data first, so a retried run never mixes old and new
// results.
//
// The returned error reports orchestration problems (missing run, store
// failures). Extraction failures are not returned as errors: they terminate
// the run as failed with a short user-facing message, and the failed run is
// returned.
func (r *Runner) Process(ctx context.Context, runID string) (*model.PipelineRun, error) {
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: load run %s", runID)
	}
	if !run.Status.CanProcess() {
		return nil, eris.Errorf("pipeline: run %s is %s and cannot be processed", runID, run.Status)
	}

	if err := r.store.ResetRun(ctx, runID); err != nil {
		return nil, eris.Wrapf(err, "pipeline: reset run %s", runID)
	}

	log := zap.L().With(
		zap.String("run_id", runID),
		zap.String("tenant_id", run.TenantID),
		zap.String("kind", string(run.Kind)))
	log.Info("pipeline started")

	doc, mediaType, err := r.store.LoadDocument(ctx, run.DocumentRef)
	if err != nil {
		return r.fail(ctx, runID, log, err, "document could not be loaded")
	}

	result, err := r.extractor.Extract(ctx, model.ExtractionRequest{
		Document:  doc,
		MediaType: mediaType,
		Kind:      run.Kind,
		ClaimType: run.ClaimType,
	})
	if err != nil {
		return r.fail(ctx, runID, log, err, userMessage(err))
	}

	if err := r.store.SavePartial(ctx, runID, result); err != nil {
		return nil, eris.Wrapf(err, "pipeline: save extraction for run %s", runID)
	}

	analysis := r.matcher.Enrich(result)
	score := scoring.Score(analysis)

	if err := r.store.SaveFinal(ctx, runID, model.RunStatusComplete, analysis, &score, ""); err != nil {
		return nil, eris.Wrapf(err, "pipeline: finalize run %s", runID)
	}
	if r.gate != nil {
		r.gate.MarkCompleted(run.TenantID)
	}

	log.Info("pipeline complete",
		zap.Float64("score", score.Score),
		zap.String("grade", string(score.Grade)))

	return r.store.GetRun(ctx, runID)
}

// fail moves the run to failed with msg and returns the failed record. The
// original error is logged, never persisted: stored messages stay short and
// free of raw provider output.
func (r *Runner) fail(ctx context.Context, runID string, log *zap.Logger, cause error, msg string) (*model.PipelineRun, error) {
	log.Warn("pipeline failed",
		zap.String("reason", msg),
		zap.Bool("retries_exhausted", resilience.IsExhausted(cause)),
		zap.Error(cause))

	if err := r.store.SaveFinal(ctx, runID, model.RunStatusFailed, nil, nil, msg); err != nil {
		return nil, eris.Wrapf(err, "pipeline: record failure for run %s", runID)
	}
	return r.store.GetRun(ctx, runID)
}

// userMessage maps an extraction error to the short text shown to tenants.
func userMessage(err error) string {
	var violation *schema.ViolationError
	switch {
	case errors.As(err, &violation):
		return "the document could not be read into the expected format"
	case resilience.IsExhausted(err):
		if resilience.Classify(err) == resilience.ClassRateLimited {
			return "the analysis service is busy; please retry shortly"
		}
		return "the analysis service was unavailable; please retry shortly"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "processing was interrupted; please retry"
	default:
		return "the document could not be analyzed"
	}
}
