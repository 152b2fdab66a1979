package knowledge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearclaim/docintel/internal/model"
)

func newTestMatcher(t *testing.T) *Matcher {
	t.Helper()
	c, err := Load()
	require.NoError(t, err)
	m, err := NewMatcher(c)
	require.NoError(t, err)
	return m
}

func windHailPolicy() *model.PolicyExtraction {
	return &model.PolicyExtraction{
		Carrier:         "Acme Mutual",
		PolicyNumber:    "HO-123456",
		NamedInsured:    "Jordan Smith",
		PropertyAddress: "12 Oak St, Springfield, IL",
		EffectiveDate:   "2025-01-01",
		ExpirationDate:  "2026-01-01",
		Coverages: []model.Coverage{
			{Type: "dwelling", Limit: 300000},
			{Type: "personal property", Limit: 150000},
		},
		Deductibles: []model.Deductible{
			{Type: "all perils", Amount: 1000},
			{Type: "wind/hail", Percent: 2},
		},
		Landmines: []model.Finding{
			{Name: "Wind/Hail Deductible", Category: "deductible", Severity: "high", Impact: "2% of dwelling"},
		},
		OverallRiskLevel: model.RiskMedium,
		Confidence:       0.9,
		DocumentType:     "declarations page",
		ScanQuality:      "good",
	}
}

func TestEnrich_WindHailDeductibleInterpolation(t *testing.T) {
	m := newTestMatcher(t)

	res := &model.ExtractionResult{Kind: model.KindPolicy, Policy: windHailPolicy()}
	analysis := m.Enrich(res)

	require.Len(t, analysis.Landmines, 1)
	lm := analysis.Landmines[0]
	assert.True(t, lm.Verified)
	assert.Equal(t, "wind-hail-percent-deductible", lm.RuleID)
	assert.Equal(t, "Wind/Hail Deductible Gap", lm.Title)
	assert.Contains(t, lm.Explanation, "2%")
	assert.Contains(t, lm.Explanation, "$300,000")
	assert.Contains(t, lm.Explanation, "$6,000")
	assert.NotEmpty(t, lm.ActionItem)
}

func TestEnrich_FallbackWhenContextMissing(t *testing.T) {
	m := newTestMatcher(t)

	// Percentage deductible reported as a finding but no dwelling limit, so
	// the template cannot interpolate dollar figures.
	p := windHailPolicy()
	p.Coverages = nil
	res := &model.ExtractionResult{Kind: model.KindPolicy, Policy: p}

	analysis := m.Enrich(res)
	require.Len(t, analysis.Landmines, 1)
	lm := analysis.Landmines[0]
	assert.True(t, lm.Verified)
	assert.NotContains(t, lm.Explanation, "$")
	assert.Contains(t, lm.Explanation, "thousands of dollars out of pocket")
}

func TestEnrich_UnmatchedFindingPassesThroughUnverified(t *testing.T) {
	m := newTestMatcher(t)

	p := windHailPolicy()
	p.Landmines = []model.Finding{
		{Name: "Trampoline Liability Exclusion", Category: "liability", Severity: "low", Impact: "no coverage for trampoline injuries"},
	}
	res := &model.ExtractionResult{Kind: model.KindPolicy, Policy: p}

	analysis := m.Enrich(res)
	require.Len(t, analysis.Landmines, 1)
	lm := analysis.Landmines[0]
	assert.False(t, lm.Verified)
	assert.Empty(t, lm.RuleID)
	assert.Equal(t, "Trampoline Liability Exclusion", lm.Title)
	assert.Equal(t, "no coverage for trampoline injuries", lm.Explanation)
}

func TestEnrich_RuleMatchesAtMostOnce(t *testing.T) {
	m := newTestMatcher(t)

	p := windHailPolicy()
	p.Landmines = []model.Finding{
		{Name: "Wind/Hail Deductible", Category: "deductible", Severity: "high", Impact: "first"},
		{Name: "Wind deductible applies separately", Category: "deductible", Severity: "high", Impact: "second"},
	}
	res := &model.ExtractionResult{Kind: model.KindPolicy, Policy: p}

	analysis := m.Enrich(res)
	require.Len(t, analysis.Landmines, 2)
	assert.True(t, analysis.Landmines[0].Verified)
	assert.False(t, analysis.Landmines[1].Verified, "rule should not match a second finding")
}

func TestEnrich_Deterministic(t *testing.T) {
	m := newTestMatcher(t)
	res := &model.ExtractionResult{Kind: model.KindPolicy, Policy: windHailPolicy()}

	first := m.Enrich(res)
	second := m.Enrich(res)
	assert.Equal(t, first, second)
}

func TestEnrich_DoesNotMutateInput(t *testing.T) {
	m := newTestMatcher(t)
	p := windHailPolicy()
	res := &model.ExtractionResult{Kind: model.KindPolicy, Policy: p}

	original := *p
	_ = m.Enrich(res)
	assert.Equal(t, original, *p)
}

func TestEnrich_EndorsementAnnotation(t *testing.T) {
	m := newTestMatcher(t)

	p := windHailPolicy()
	p.Endorsements = []string{"HO 04 77 Ordinance or Law", "Carrier Special Form 99"}
	res := &model.ExtractionResult{Kind: model.KindPolicy, Policy: p}

	analysis := m.Enrich(res)
	require.Len(t, analysis.Endorsements, 2)

	verified := analysis.Endorsements[0]
	assert.True(t, verified.Verified)
	assert.Equal(t, "HO 04 77", verified.Code)
	assert.NotEmpty(t, verified.Title)

	raw := analysis.Endorsements[1]
	assert.False(t, raw.Verified)
	assert.Equal(t, "Carrier Special Form 99", raw.Raw)
}

func TestEnrich_QualityIndicators(t *testing.T) {
	m := newTestMatcher(t)
	res := &model.ExtractionResult{Kind: model.KindPolicy, Policy: windHailPolicy()}

	analysis := m.Enrich(res)
	assert.InDelta(t, 0.9, analysis.Quality.Confidence, 1e-9)
	assert.Equal(t, "good", analysis.Quality.ScanQuality)
	assert.InDelta(t, 1.0, analysis.Quality.FieldCoverage, 1e-9)
}

func TestEnrich_NilPayload(t *testing.T) {
	m := newTestMatcher(t)
	analysis := m.Enrich(&model.ExtractionResult{Kind: model.KindPolicy})
	assert.Nil(t, analysis.Policy)
	assert.Empty(t, analysis.Landmines)
}

func TestFocusHint_FiltersByClaimType(t *testing.T) {
	m := newTestMatcher(t)

	hail := m.FocusHint("hail")
	assert.Contains(t, hail, "Wind/Hail Deductible Gap")
	assert.Contains(t, hail, "Cosmetic Damage Exclusion")
	assert.Contains(t, hail, "loss settlement methods")

	fire := m.FocusHint("fire")
	assert.NotContains(t, fire, "Cosmetic Damage Exclusion")
	// Unscoped rules still apply to any claim type.
	assert.Contains(t, fire, "No Ordinance or Law Coverage")

	assert.Empty(t, m.FocusHint(""))
}

func TestCoverageSectionHint_ListsAllSections(t *testing.T) {
	m := newTestMatcher(t)

	hint := m.CoverageSectionHint()
	for _, code := range []string{"A", "B", "C", "D", "E", "F"} {
		assert.True(t, strings.Contains(hint, "Coverage "+code+" "), "missing coverage %s", code)
	}
}

func TestFormatDollars(t *testing.T) {
	assert.Equal(t, "$6,000", formatDollars(6000))
	assert.Equal(t, "$300,000", formatDollars(300000))
	assert.Equal(t, "$1,250,500", formatDollars(1250500))
	assert.Equal(t, "$950", formatDollars(950))
	assert.Equal(t, "$0", formatDollars(0))
	assert.Equal(t, "-$1,500", formatDollars(-1500))
}
