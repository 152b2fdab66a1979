package model

import "time"

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusProcessing RunStatus = "processing"
	RunStatusComplete   RunStatus = "complete"
	RunStatusFailed     RunStatus = "failed"
)

// CanProcess reports whether a run in this status may (re-)enter processing.
// Failed runs are retryable; complete runs are not. A run stuck in
// processing (e.g. after a crash) may also be re-entered, since re-entry
// clears partial state first.
func (s RunStatus) CanProcess() bool {
	return s == RunStatusPending || s == RunStatusFailed || s == RunStatusProcessing
}

// Terminal reports whether the status is an end state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusComplete || s == RunStatusFailed
}

// PipelineRun tracks one end-to-end document-processing attempt. It is owned
// by the orchestrator and persisted between steps so a crash mid-pipeline
// leaves recoverable, inspectable state.
type PipelineRun struct {
	ID          string       `json:"id"`
	TenantID    string       `json:"tenant_id"`
	DocumentRef string       `json:"document_ref"`
	Kind        DocumentKind `json:"kind"`
	ClaimType   string       `json:"claim_type,omitempty"`
	Status      RunStatus    `json:"status"`

	// Extraction is the raw provider output persisted after a successful
	// extraction step; Analysis and Score are set together on completion.
	Extraction *ExtractionResult `json:"extraction,omitempty"`
	Analysis   *EnrichedAnalysis `json:"analysis,omitempty"`
	Score      *ScoreResult      `json:"score,omitempty"`

	// Error is a short human-readable message, never raw provider output.
	Error string `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
