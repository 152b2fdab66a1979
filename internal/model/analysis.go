package model

// MatchedFinding is a model-reported finding after catalog matching. Verified
// findings carry the canonical rule's identity and interpolated explanation;
// unverified findings pass the raw model output through unchanged so
// consumers can tell the two apart.
type MatchedFinding struct {
	RuleID      string `json:"rule_id,omitempty"`
	Title       string `json:"title"`
	Category    string `json:"category"`
	Severity    string `json:"severity"`
	Explanation string `json:"explanation"`
	ActionItem  string `json:"action_item,omitempty"`
	Verified    bool   `json:"verified"`
}

// EndorsementNote annotates a detected endorsement with catalog knowledge.
type EndorsementNote struct {
	Raw        string `json:"raw"`
	Code       string `json:"code,omitempty"`
	Title      string `json:"title,omitempty"`
	Summary    string `json:"summary,omitempty"`
	Beneficial bool   `json:"beneficial"`
	Verified   bool   `json:"verified"`
}

// QualityIndicators summarizes how complete and trustworthy an extraction is.
type QualityIndicators struct {
	Confidence    float64 `json:"confidence"`
	ScanQuality   string  `json:"scan_quality"`
	FieldCoverage float64 `json:"field_coverage"`
}

// EnrichedAnalysis is an ExtractionResult plus catalog matches and derived
// indicators. Immutable once produced; enrichment never mutates its input.
type EnrichedAnalysis struct {
	Kind        DocumentKind           `json:"kind"`
	Policy      *PolicyExtraction      `json:"policy,omitempty"`
	Estimate    *EstimateExtraction    `json:"estimate,omitempty"`
	Measurement *MeasurementExtraction `json:"measurement,omitempty"`

	Landmines    []MatchedFinding   `json:"landmines,omitempty"`
	Favorable    []MatchedFinding   `json:"favorable,omitempty"`
	Endorsements []EndorsementNote  `json:"endorsements,omitempty"`
	RiskLevel    RiskLevel          `json:"risk_level,omitempty"`
	Quality      QualityIndicators  `json:"quality"`
}
