// Package store is the persistence collaborator for pipeline runs and their
// source documents. The pipeline calls it at defined points (run creation,
// re-entry into processing, post-extraction, completion/failure) but owns
// none of the storage details.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/clearclaim/docintel/internal/model"
)

// ErrNotFound is returned when a run or document does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status   model.RunStatus `json:"status,omitempty"`
	TenantID string          `json:"tenant_id,omitempty"`
	Limit    int             `json:"limit,omitempty"`
	Offset   int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the document pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *model.PipelineRun) (*model.PipelineRun, error)
	GetRun(ctx context.Context, runID string) (*model.PipelineRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error)
	SetStatus(ctx context.Context, runID string, status model.RunStatus) error

	// ResetRun clears every partial field (extraction, analysis, score,
	// error) and moves the run to processing. A retry can never see a mix
	// of old and new data.
	ResetRun(ctx context.Context, runID string) error

	// SavePartial persists the raw extraction snapshot mid-pipeline.
	SavePartial(ctx context.Context, runID string, extraction *model.ExtractionResult) error

	// SaveFinal writes the terminal state in one statement: on complete,
	// analysis and score land together; on failed, only the short
	// user-facing message is stored.
	SaveFinal(ctx context.Context, runID string, status model.RunStatus, analysis *model.EnrichedAnalysis, score *model.ScoreResult, errMsg string) error

	// HasCompletedRun reports whether a tenant has ever completed a run,
	// feeding the first-use-free billing gate.
	HasCompletedRun(ctx context.Context, tenantID string) (bool, error)

	// Documents
	PutDocument(ctx context.Context, ref, mediaType string, data []byte) error
	LoadDocument(ctx context.Context, ref string) ([]byte, string, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
