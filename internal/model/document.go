package model

// Unknown is the sentinel value for text fields the extraction provider
// could not find in the source document. The output contract instructs the
// model to use it instead of fabricating values.
const Unknown = "unknown"

// DocumentKind identifies one of the structured-extraction targets.
type DocumentKind string

const (
	KindPolicy      DocumentKind = "policy"
	KindEstimate    DocumentKind = "estimate"
	KindMeasurement DocumentKind = "measurement_report"
)

// Valid reports whether k is a known document kind.
func (k DocumentKind) Valid() bool {
	switch k {
	case KindPolicy, KindEstimate, KindMeasurement:
		return true
	}
	return false
}

// ExtractionRequest describes one document to be extracted. It is immutable
// and built per pipeline invocation.
type ExtractionRequest struct {
	Document  []byte       `json:"-"`
	MediaType string       `json:"media_type"`
	Kind      DocumentKind `json:"kind"`
	// ClaimType optionally focuses the extraction prompt on rules relevant
	// to a specific claim (e.g. "hail", "wind", "water").
	ClaimType string `json:"claim_type,omitempty"`
}

// ExtractionResult is the schema-validated output of one provider call.
// Exactly one of the kind-specific payloads is set, matching Kind.
type ExtractionResult struct {
	Kind          DocumentKind           `json:"kind"`
	SchemaVersion int                    `json:"schema_version"`
	Policy        *PolicyExtraction      `json:"policy,omitempty"`
	Estimate      *EstimateExtraction    `json:"estimate,omitempty"`
	Measurement   *MeasurementExtraction `json:"measurement,omitempty"`
}
