package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/clearclaim/docintel/internal/knowledge"
	"github.com/clearclaim/docintel/internal/model"
	"github.com/clearclaim/docintel/internal/resilience"
	"github.com/clearclaim/docintel/internal/schema"
	"github.com/clearclaim/docintel/pkg/anthropic"
)

// Service extracts structured data from a raw document.
type Service interface {
	Extract(ctx context.Context, req model.ExtractionRequest) (*model.ExtractionResult, error)
}

// Config tunes the provider-facing extractor.
type Config struct {
	// Model is the provider model identifier.
	Model string

	// MaxTokens bounds the response size. Default: 4096.
	MaxTokens int64

	// RequestsPerSecond throttles outbound provider calls across all
	// concurrent extractions. Default: 1.
	RequestsPerSecond float64

	// MaxAttempts is the retry budget for estimate and measurement
	// documents. Default: 3.
	MaxAttempts int

	// PolicyMaxAttempts is the retry budget for policy documents, which
	// carry the most downstream value and get one extra attempt. Default: 4.
	PolicyMaxAttempts int
}

const (
	defaultModel      = "claude-sonnet-4-5"
	defaultMaxTokens  = 4096
	defaultRPS        = 1.0
	defaultAttempts   = 3
	policyAttempts    = 4
	breakerThreshold  = 5
	breakerResetAfter = 60 * time.Second
)

// Extractor calls the provider with a document attachment and a per-kind
// output contract, then validates and decodes the response.
type Extractor struct {
	client  anthropic.Client
	matcher *knowledge.Matcher
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	cfg     Config
}

// New builds an Extractor. The matcher supplies domain hints that focus the
// prompt on rules relevant to a claim; it may not be nil.
func New(client anthropic.Client, matcher *knowledge.Matcher, cfg Config) *Extractor {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRPS
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultAttempts
	}
	if cfg.PolicyMaxAttempts <= 0 {
		cfg.PolicyMaxAttempts = policyAttempts
	}
	return &Extractor{
		client:  client,
		matcher: matcher,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitConfig{
			FailureThreshold: breakerThreshold,
			ResetTimeout:     breakerResetAfter,
		}),
		cfg: cfg,
	}
}

// Extract runs one document through the provider and returns the validated,
// typed result. Contract violations are terminal; transport and throttle
// failures are retried per the kind's budget.
func (e *Extractor) Extract(ctx context.Context, req model.ExtractionRequest) (*model.ExtractionResult, error) {
	desc, err := schema.ForKind(req.Kind)
	if err != nil {
		return nil, eris.Wrap(err, "extract: resolve contract")
	}
	if len(req.Document) == 0 {
		return nil, &resilience.TerminalError{Err: eris.New("extract: empty document")}
	}

	msgReq := e.buildRequest(desc, req)
	retryCfg := e.retryConfig(req.Kind)

	resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, &resilience.TerminalError{Err: err}
		}
		return resilience.ExecuteVal(ctx, e.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			resp, err := e.client.CreateMessage(ctx, msgReq)
			if err != nil {
				return nil, classifyProviderError(err)
			}
			return resp, nil
		})
	})
	if err != nil {
		return nil, eris.Wrapf(err, "extract: %s call failed", req.Kind)
	}

	resp.Usage.LogCost(e.cfg.Model, "extract:"+string(req.Kind))

	raw := isolateJSON(resp.FirstText())
	if raw == "" {
		return nil, &schema.ViolationError{
			Kind:   req.Kind,
			Detail: "response contained no JSON object",
		}
	}
	if err := desc.Validate([]byte(raw)); err != nil {
		return nil, err
	}

	result, err := decode(req.Kind, desc.Version, []byte(raw))
	if err != nil {
		return nil, err
	}

	zap.L().Info("extraction complete",
		zap.String("kind", string(req.Kind)),
		zap.Int("schema_version", desc.Version),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens))
	return result, nil
}

func (e *Extractor) buildRequest(desc *schema.Descriptor, req model.ExtractionRequest) anthropic.MessageRequest {
	var b strings.Builder
	b.WriteString("Extract the contracted fields from the attached document.\n\n")
	b.WriteString(desc.Instructions())
	if req.Kind == model.KindPolicy {
		b.WriteString("\n")
		b.WriteString(e.matcher.CoverageSectionHint())
		if hint := e.matcher.FocusHint(req.ClaimType); hint != "" {
			b.WriteString("\n")
			b.WriteString(hint)
		}
	}

	mediaType := req.MediaType
	if mediaType == "" {
		mediaType = "application/pdf"
	}

	return anthropic.MessageRequest{
		Model:     e.cfg.Model,
		MaxTokens: e.cfg.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(systemPrompt(req.Kind)),
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: b.String(),
			Document: &anthropic.DocumentBlock{
				MediaType: mediaType,
				Data:      req.Document,
			},
		}},
	}
}

func (e *Extractor) retryConfig(kind model.DocumentKind) resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = e.cfg.MaxAttempts
	if kind == model.KindPolicy {
		cfg.MaxAttempts = e.cfg.PolicyMaxAttempts
	}
	cfg.Label = "extract:" + string(kind)
	return cfg
}

func systemPrompt(kind model.DocumentKind) string {
	switch kind {
	case model.KindPolicy:
		return "You are an insurance policy analyst. You read homeowner policy documents, including poor-quality scans, and extract coverage data into a strict JSON contract. Use \"unknown\" for text you cannot find and null for numbers you cannot find. Never fabricate values and never add commentary outside the JSON object."
	case model.KindEstimate:
		return "You are a property claims estimator. You read repair estimates, including Xactimate-style line-item documents, and extract totals into a strict JSON contract. Use \"unknown\" for text you cannot find and null for numbers you cannot find. Never fabricate values and never add commentary outside the JSON object."
	case model.KindMeasurement:
		return "You are a roof measurement analyst. You read aerial measurement reports and extract roof geometry into a strict JSON contract. Use \"unknown\" for text you cannot find and null for numbers you cannot find. Never fabricate values and never add commentary outside the JSON object."
	}
	return "Extract the requested fields into a strict JSON contract. Use \"unknown\" for text you cannot find and null for numbers you cannot find."
}

// classifyProviderError maps a provider error to a retry class. Errors
// without an HTTP status (network failures) fall through to the generic
// classifier inside the retry loop.
func classifyProviderError(err error) error {
	status := anthropic.StatusCode(err)
	if status == 0 {
		return err
	}
	switch resilience.ClassifyHTTPStatus(status) {
	case resilience.ClassRateLimited:
		return &resilience.RateLimitError{Err: err}
	case resilience.ClassTransient:
		return resilience.NewTransientError(err, status)
	default:
		return &resilience.TerminalError{Err: err}
	}
}

func decode(kind model.DocumentKind, version int, raw []byte) (*model.ExtractionResult, error) {
	result := &model.ExtractionResult{Kind: kind, SchemaVersion: version}
	switch kind {
	case model.KindPolicy:
		var p model.PolicyExtraction
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, decodeViolation(kind, err)
		}
		p.Confidence = clamp01(p.Confidence)
		result.Policy = &p
	case model.KindEstimate:
		var est model.EstimateExtraction
		if err := json.Unmarshal(raw, &est); err != nil {
			return nil, decodeViolation(kind, err)
		}
		result.Estimate = &est
	case model.KindMeasurement:
		var mr model.MeasurementExtraction
		if err := json.Unmarshal(raw, &mr); err != nil {
			return nil, decodeViolation(kind, err)
		}
		if mr.PredominantPitch == "" {
			mr.PredominantPitch = model.Unknown
		}
		result.Measurement = &mr
	default:
		return nil, eris.Errorf("extract: unsupported kind %q", kind)
	}
	return result, nil
}

func decodeViolation(kind model.DocumentKind, err error) error {
	return &schema.ViolationError{
		Kind:   kind,
		Detail: fmt.Sprintf("decode: %v", err),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
