package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearclaim/docintel/internal/knowledge"
	"github.com/clearclaim/docintel/internal/model"
	"github.com/clearclaim/docintel/internal/resilience"
	"github.com/clearclaim/docintel/internal/schema"
	"github.com/clearclaim/docintel/internal/store"
)

// fakeStore is an in-memory Store that records the order of mutating calls.
type fakeStore struct {
	runs  map[string]*model.PipelineRun
	docs  map[string][]byte
	calls []string

	resetErr error
	finalErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		runs: map[string]*model.PipelineRun{},
		docs: map[string][]byte{},
	}
}

func (f *fakeStore) CreateRun(_ context.Context, run *model.PipelineRun) (*model.PipelineRun, error) {
	created := *run
	f.runs[created.ID] = &created
	return &created, nil
}

func (f *fakeStore) GetRun(_ context.Context, runID string) (*model.PipelineRun, error) {
	run, ok := f.runs[runID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (f *fakeStore) ListRuns(_ context.Context, _ store.RunFilter) ([]model.PipelineRun, error) {
	return nil, nil
}

func (f *fakeStore) SetStatus(_ context.Context, runID string, status model.RunStatus) error {
	f.calls = append(f.calls, "SetStatus")
	f.runs[runID].Status = status
	return nil
}

func (f *fakeStore) ResetRun(_ context.Context, runID string) error {
	f.calls = append(f.calls, "ResetRun")
	if f.resetErr != nil {
		return f.resetErr
	}
	run := f.runs[runID]
	run.Status = model.RunStatusProcessing
	run.Extraction = nil
	run.Analysis = nil
	run.Score = nil
	run.Error = ""
	return nil
}

func (f *fakeStore) SavePartial(_ context.Context, runID string, extraction *model.ExtractionResult) error {
	f.calls = append(f.calls, "SavePartial")
	f.runs[runID].Extraction = extraction
	return nil
}

func (f *fakeStore) SaveFinal(_ context.Context, runID string, status model.RunStatus, analysis *model.EnrichedAnalysis, score *model.ScoreResult, errMsg string) error {
	f.calls = append(f.calls, "SaveFinal")
	if f.finalErr != nil {
		return f.finalErr
	}
	run := f.runs[runID]
	run.Status = status
	run.Analysis = analysis
	run.Score = score
	run.Error = errMsg
	return nil
}

func (f *fakeStore) HasCompletedRun(_ context.Context, tenantID string) (bool, error) {
	for _, r := range f.runs {
		if r.TenantID == tenantID && r.Status == model.RunStatusComplete {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) PutDocument(_ context.Context, ref, _ string, data []byte) error {
	f.docs[ref] = data
	return nil
}

func (f *fakeStore) LoadDocument(_ context.Context, ref string) ([]byte, string, error) {
	data, ok := f.docs[ref]
	if !ok {
		return nil, "", store.ErrNotFound
	}
	return data, "application/pdf", nil
}

func (f *fakeStore) Migrate(_ context.Context) error { return nil }
func (f *fakeStore) Close() error                    { return nil }

// fakeExtractor returns a scripted result or error.
type fakeExtractor struct {
	result *model.ExtractionResult
	err    error
	calls  int
}

func (f *fakeExtractor) Extract(_ context.Context, _ model.ExtractionRequest) (*model.ExtractionResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func testMatcher(t *testing.T) *knowledge.Matcher {
	t.Helper()
	catalog, err := knowledge.Load()
	require.NoError(t, err)
	m, err := knowledge.NewMatcher(catalog)
	require.NoError(t, err)
	return m
}

func seedRun(t *testing.T, st *fakeStore, status model.RunStatus) *model.PipelineRun {
	t.Helper()
	run, err := st.CreateRun(context.Background(), &model.PipelineRun{
		ID:          "run-1",
		TenantID:    "tenant-1",
		DocumentRef: "doc-1",
		Kind:        model.KindPolicy,
		Status:      status,
	})
	require.NoError(t, err)
	require.NoError(t, st.PutDocument(context.Background(), "doc-1", "application/pdf", []byte("pdf")))
	return run
}

func policyResult() *model.ExtractionResult {
	return &model.ExtractionResult{
		Kind:          model.KindPolicy,
		SchemaVersion: 2,
		Policy: &model.PolicyExtraction{
			Carrier: "Acme Mutual",
			Coverages: []model.Coverage{
				{Type: "dwelling", Limit: 300000},
			},
			Deductibles: []model.Deductible{
				{Type: "all perils", Amount: 1000},
			},
			OverallRiskLevel: model.RiskLow,
			Confidence:       0.9,
			ScanQuality:      "good",
		},
	}
}

func TestProcess_CompletesAndPersistsAtomically(t *testing.T) {
	st := newFakeStore()
	seedRun(t, st, model.RunStatusPending)
	ex := &fakeExtractor{result: policyResult()}

	r := New(st, ex, testMatcher(t), nil)
	final, err := r.Process(context.Background(), "run-1")
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusComplete, final.Status)
	require.NotNil(t, final.Extraction)
	require.NotNil(t, final.Analysis)
	require.NotNil(t, final.Score)
	assert.Empty(t, final.Error)
	assert.NotEmpty(t, final.Score.Grade)

	// Analysis and score land in one SaveFinal, after the raw extraction.
	assert.Equal(t, []string{"ResetRun", "SavePartial", "SaveFinal"}, st.calls)
	assert.Equal(t, 1, ex.calls)
}

func TestProcess_ExtractionFailureStoresShortMessage(t *testing.T) {
	st := newFakeStore()
	seedRun(t, st, model.RunStatusPending)
	providerErr := &resilience.ExhaustedError{
		Label:    "extract:policy",
		Attempts: 4,
		Err:      resilience.NewTransientError(errors.New("api error 529: {\"type\":\"overloaded_error\"}"), 529),
	}
	ex := &fakeExtractor{err: providerErr}

	r := New(st, ex, testMatcher(t), nil)
	final, err := r.Process(context.Background(), "run-1")
	require.NoError(t, err, "extraction failure is a run outcome, not an orchestration error")

	assert.Equal(t, model.RunStatusFailed, final.Status)
	assert.Nil(t, final.Analysis)
	assert.Nil(t, final.Score)
	assert.NotEmpty(t, final.Error)
	assert.NotContains(t, final.Error, "overloaded_error", "raw provider output must not be stored")
	assert.Less(t, len(final.Error), 120)
}

func TestProcess_ViolationMessageDistinctFromOutage(t *testing.T) {
	violation := &schema.ViolationError{Kind: model.KindPolicy, Detail: "missing carrier"}
	outage := &resilience.ExhaustedError{Label: "x", Attempts: 3, Err: resilience.NewTransientError(errors.New("boom"), 503)}
	throttled := &resilience.ExhaustedError{Label: "x", Attempts: 3, Err: &resilience.RateLimitError{Err: errors.New("429")}}

	assert.Contains(t, userMessage(violation), "format")
	assert.Contains(t, userMessage(outage), "retry")
	assert.Contains(t, userMessage(throttled), "busy")
	assert.NotEqual(t, userMessage(violation), userMessage(outage))
}

func TestProcess_RetryClearsPartialState(t *testing.T) {
	st := newFakeStore()
	run := seedRun(t, st, model.RunStatusFailed)
	run = st.runs[run.ID]
	run.Error = "the analysis service was unavailable; please retry shortly"
	run.Extraction = policyResult() // stale partial from the failed attempt

	ex := &fakeExtractor{result: policyResult()}
	r := New(st, ex, testMatcher(t), nil)

	final, err := r.Process(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, final.Status)
	assert.Empty(t, final.Error)
	assert.Equal(t, "ResetRun", st.calls[0], "re-entry must clear partial state first")
}

func TestProcess_CompleteRunCannotBeReprocessed(t *testing.T) {
	st := newFakeStore()
	seedRun(t, st, model.RunStatusComplete)
	ex := &fakeExtractor{result: policyResult()}

	r := New(st, ex, testMatcher(t), nil)
	_, err := r.Process(context.Background(), "run-1")
	require.Error(t, err)
	assert.Equal(t, 0, ex.calls)
	assert.Empty(t, st.calls)
}

func TestProcess_UnknownRun(t *testing.T) {
	st := newFakeStore()
	r := New(st, &fakeExtractor{}, testMatcher(t), nil)

	_, err := r.Process(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProcess_MissingDocumentFailsRun(t *testing.T) {
	st := newFakeStore()
	run := seedRun(t, st, model.RunStatusPending)
	delete(st.docs, run.DocumentRef)

	ex := &fakeExtractor{result: policyResult()}
	r := New(st, ex, testMatcher(t), nil)

	final, err := r.Process(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, final.Status)
	assert.Equal(t, 0, ex.calls)
}

func TestProcess_SaveFinalFailureSurfaces(t *testing.T) {
	st := newFakeStore()
	seedRun(t, st, model.RunStatusPending)
	st.finalErr = errors.New("disk full")

	r := New(st, &fakeExtractor{result: policyResult()}, testMatcher(t), nil)
	_, err := r.Process(context.Background(), "run-1")
	require.Error(t, err)
}
