package model

// RiskLevel is the model's overall risk assessment of a policy.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Valid reports whether r is one of the contracted risk levels.
func (r RiskLevel) Valid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

// Coverage is a single coverage section reported on a policy declarations page.
type Coverage struct {
	Type  string  `json:"type"`
	Limit float64 `json:"limit"`
}

// Deductible is one deductible line. Percentage deductibles (common for
// wind/hail) carry Percent > 0 and Amount 0; flat deductibles the reverse.
type Deductible struct {
	Type    string  `json:"type"`
	Amount  float64 `json:"amount"`
	Percent float64 `json:"percent"`
}

// Finding is a landmine or favorable provision as reported by the model,
// before catalog matching.
type Finding struct {
	Name       string `json:"name"`
	Category   string `json:"category"`
	Severity   string `json:"severity"`
	Impact     string `json:"impact"`
	ActionItem string `json:"action_item,omitempty"`
}

// PolicyExtraction is the structured output contract for kind "policy".
type PolicyExtraction struct {
	Carrier             string       `json:"carrier"`
	PolicyNumber        string       `json:"policy_number"`
	NamedInsured        string       `json:"named_insured"`
	PropertyAddress     string       `json:"property_address"`
	EffectiveDate       string       `json:"effective_date"`
	ExpirationDate      string       `json:"expiration_date"`
	Coverages           []Coverage   `json:"coverages"`
	Deductibles         []Deductible `json:"deductibles"`
	Exclusions          []string     `json:"exclusions"`
	Endorsements        []string     `json:"endorsements"`
	Landmines           []Finding    `json:"landmines"`
	FavorableProvisions []Finding    `json:"favorable_provisions"`
	OverallRiskLevel    RiskLevel    `json:"overall_risk_level"`
	Confidence          float64      `json:"confidence"`
	DocumentType        string       `json:"document_type"`
	ScanQuality         string       `json:"scan_quality"`
}

// CoverageLimit returns the limit of the first coverage whose type contains
// the given keyword (case handled by the caller), or 0 when absent.
func (p *PolicyExtraction) CoverageLimit(keyword string) float64 {
	for _, c := range p.Coverages {
		if containsFold(c.Type, keyword) {
			return c.Limit
		}
	}
	return 0
}

// WindHailDeductiblePct returns the percentage of the first wind/hail
// percentage deductible, or 0 when the policy has none.
func (p *PolicyExtraction) WindHailDeductiblePct() float64 {
	for _, d := range p.Deductibles {
		if d.Percent > 0 && (containsFold(d.Type, "wind") || containsFold(d.Type, "hail")) {
			return d.Percent
		}
	}
	return 0
}
