package knowledge

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/template"

	"github.com/rotisserie/eris"

	"github.com/clearclaim/docintel/internal/model"
)

// Matcher applies the catalogs to extraction output and renders focus hints
// for extraction prompts. Safe for concurrent use.
type Matcher struct {
	catalog   *Catalog
	templates map[string]*template.Template
}

var templateFuncs = template.FuncMap{
	"dollars": func(v float64) string { return formatDollars(v) },
	"pct":     func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) },
}

// NewMatcher parses all rule templates eagerly so malformed catalog entries
// surface at startup, not mid-pipeline.
func NewMatcher(c *Catalog) (*Matcher, error) {
	m := &Matcher{
		catalog:   c,
		templates: make(map[string]*template.Template),
	}

	for catalogName, rules := range map[string][]Rule{"landmines": c.Landmines, "favorable": c.Favorable} {
		for _, r := range rules {
			if r.Template == "" {
				continue
			}
			key := catalogName + "/" + r.ID
			tmpl, err := template.New(key).Funcs(templateFuncs).Option("missingkey=error").Parse(r.Template)
			if err != nil {
				return nil, eris.Wrapf(err, "knowledge: parse template for rule %s", key)
			}
			m.templates[key] = tmpl
		}
	}

	return m, nil
}

// FocusHint renders the rules relevant to a claim type into a short prompt
// fragment appended to the extraction instruction, biasing the model toward
// checking those specific conditions. Returns "" for an empty claim type.
func (m *Matcher) FocusHint(claimType string) string {
	if claimType == "" {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "For this %s claim, check the policy specifically for:\n", claimType)
	for _, r := range m.catalog.Landmines {
		if r.AppliesTo(claimType) {
			fmt.Fprintf(&b, "- %s: %s\n", r.Title, r.Fallback)
		}
	}
	b.WriteString("And for favorable provisions such as:\n")
	for _, r := range m.catalog.Favorable {
		if r.AppliesTo(claimType) {
			fmt.Fprintf(&b, "- %s: %s\n", r.Title, r.Fallback)
		}
	}
	if len(m.catalog.Depreciation) > 0 {
		b.WriteString("Distinguish loss settlement methods:\n")
		for _, dm := range m.catalog.Depreciation {
			fmt.Fprintf(&b, "- %s (%s): %s\n", dm.Name, strings.ToUpper(dm.ID), dm.Description)
		}
	}
	return b.String()
}

// CoverageSectionHint lists the standard coverage sections so the model maps
// declarations-page line items onto them.
func (m *Matcher) CoverageSectionHint() string {
	if len(m.catalog.CoverageSections) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Standard coverage sections:\n")
	for _, cs := range m.catalog.CoverageSections {
		fmt.Fprintf(&b, "- Coverage %s (%s): %s\n", cs.Code, cs.Name, cs.Description)
	}
	return b.String()
}

// Enrich derives an EnrichedAnalysis from one ExtractionResult. The input is
// never mutated; matching is deterministic, so enriching the same result
// twice yields identical output.
func (m *Matcher) Enrich(res *model.ExtractionResult) *model.EnrichedAnalysis {
	analysis := &model.EnrichedAnalysis{Kind: res.Kind}

	switch res.Kind {
	case model.KindPolicy:
		if res.Policy == nil {
			return analysis
		}
		p := *res.Policy
		analysis.Policy = &p

		ctx := policyTemplateContext(&p)
		analysis.Landmines = m.matchFindings(p.Landmines, m.catalog.Landmines, "landmines", ctx)
		analysis.Favorable = m.matchFindings(p.FavorableProvisions, m.catalog.Favorable, "favorable", ctx)
		analysis.Endorsements = m.annotateEndorsements(p.Endorsements)
		analysis.RiskLevel = p.OverallRiskLevel
		analysis.Quality = model.QualityIndicators{
			Confidence:    p.Confidence,
			ScanQuality:   p.ScanQuality,
			FieldCoverage: policyFieldCoverage(&p),
		}

	case model.KindEstimate:
		if res.Estimate == nil {
			return analysis
		}
		e := *res.Estimate
		analysis.Estimate = &e
		analysis.Quality = model.QualityIndicators{
			ScanQuality:   model.Unknown,
			FieldCoverage: estimateFieldCoverage(&e),
		}

	case model.KindMeasurement:
		if res.Measurement == nil {
			return analysis
		}
		mr := *res.Measurement
		analysis.Measurement = &mr
		analysis.Quality = model.QualityIndicators{
			ScanQuality:   model.Unknown,
			FieldCoverage: measurementFieldCoverage(&mr),
		}
	}

	return analysis
}

// matchFindings maps model-reported findings onto catalog rules. Rules are
// tried in (priority, id) order; the first keyword hit wins and a rule
// matches at most once per finding set. Non-matches pass through flagged
// unverified so consumers can tell catalog-confirmed findings from free text.
func (m *Matcher) matchFindings(findings []model.Finding, rules []Rule, catalogName string, ctx map[string]any) []model.MatchedFinding {
	if len(findings) == 0 {
		return nil
	}

	used := make(map[string]bool, len(rules))
	out := make([]model.MatchedFinding, 0, len(findings))

	for _, f := range findings {
		rule, ok := matchRule(f, rules, used)
		if !ok {
			out = append(out, model.MatchedFinding{
				Title:       f.Name,
				Category:    f.Category,
				Severity:    f.Severity,
				Explanation: f.Impact,
				ActionItem:  f.ActionItem,
				Verified:    false,
			})
			continue
		}

		used[rule.ID] = true
		out = append(out, model.MatchedFinding{
			RuleID:      rule.ID,
			Title:       rule.Title,
			Category:    rule.Category,
			Severity:    rule.Severity,
			Explanation: m.render(catalogName, rule, ctx),
			ActionItem:  rule.Action,
			Verified:    true,
		})
	}

	return out
}

func matchRule(f model.Finding, rules []Rule, used map[string]bool) (Rule, bool) {
	haystack := strings.ToLower(f.Name + " " + f.Category)
	for _, r := range rules {
		if used[r.ID] {
			continue
		}
		for _, kw := range r.Keywords {
			if strings.Contains(haystack, strings.ToLower(kw)) {
				return r, true
			}
		}
	}
	return Rule{}, false
}

// render interpolates the rule's template with context values from the
// extraction. Missing context values fall back to the generic explanation
// rather than failing.
func (m *Matcher) render(catalogName string, rule Rule, ctx map[string]any) string {
	tmpl, ok := m.templates[catalogName+"/"+rule.ID]
	if !ok {
		return rule.Fallback
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return rule.Fallback
	}
	return buf.String()
}

func (m *Matcher) annotateEndorsements(raw []string) []model.EndorsementNote {
	if len(raw) == 0 {
		return nil
	}
	out := make([]model.EndorsementNote, 0, len(raw))
	for _, r := range raw {
		note := model.EndorsementNote{Raw: r}
		lower := strings.ToLower(r)
		for _, e := range m.catalog.Endorsements {
			if strings.Contains(lower, strings.ToLower(e.Code)) {
				note.Code = e.Code
				note.Title = e.Title
				note.Summary = e.Summary
				note.Beneficial = e.Beneficial
				note.Verified = true
				break
			}
		}
		out = append(out, note)
	}
	return out
}

// policyTemplateContext collects the dollar figures rule templates may
// reference. Only known values are present; template execution with
// missingkey=error turns an absent value into a fallback render.
func policyTemplateContext(p *model.PolicyExtraction) map[string]any {
	ctx := map[string]any{}

	homeValue := p.CoverageLimit("dwelling")
	if homeValue > 0 {
		ctx["HomeValue"] = homeValue
	}
	if whPct := p.WindHailDeductiblePct(); whPct > 0 {
		ctx["WindHailPct"] = whPct
		if homeValue > 0 {
			ctx["OutOfPocket"] = homeValue * whPct / 100
		}
	}
	if ml := p.CoverageLimit("mold"); ml > 0 {
		ctx["MoldLimit"] = ml
	}
	if ol := p.CoverageLimit("ordinance"); ol > 0 {
		ctx["OrdinanceLimit"] = ol
	}

	return ctx
}

func formatDollars(v float64) string {
	n := int64(math.Round(math.Abs(v)))
	s := strconv.FormatInt(n, 10)
	var b strings.Builder
	if v < 0 {
		b.WriteString("-")
	}
	b.WriteString("$")
	for i, d := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteString(",")
		}
		b.WriteRune(d)
	}
	return b.String()
}

func known(s string) bool {
	return s != "" && s != model.Unknown
}

func policyFieldCoverage(p *model.PolicyExtraction) float64 {
	fields := []bool{
		known(p.Carrier),
		known(p.PolicyNumber),
		known(p.NamedInsured),
		known(p.PropertyAddress),
		known(p.EffectiveDate),
		known(p.ExpirationDate),
		len(p.Coverages) > 0,
		len(p.Deductibles) > 0,
		known(p.DocumentType),
		known(p.ScanQuality),
	}
	return fraction(fields)
}

func estimateFieldCoverage(e *model.EstimateExtraction) float64 {
	fields := []bool{
		known(e.ClaimNumber),
		known(e.PolicyNumber),
		known(e.CarrierName),
		known(e.PropertyAddress),
		known(e.City),
		known(e.State),
		known(e.Zip),
		known(e.DateOfLoss),
		known(e.AdjusterName),
		known(e.AdjusterEmail),
		known(e.AdjusterPhone),
		known(e.ScopeSummary),
	}
	return fraction(fields)
}

func measurementFieldCoverage(mr *model.MeasurementExtraction) float64 {
	fields := []bool{
		mr.MeasuredSquares > 0,
		mr.SuggestedSquares > 0,
		mr.WastePercent > 0,
		mr.RidgesLF > 0 || mr.HipsLF > 0 || mr.ValleysLF > 0,
		mr.EavesLF > 0 || mr.RakesLF > 0,
		known(mr.PredominantPitch),
	}
	return fraction(fields)
}

func fraction(fields []bool) float64 {
	if len(fields) == 0 {
		return 0
	}
	present := 0
	for _, ok := range fields {
		if ok {
			present++
		}
	}
	return float64(present) / float64(len(fields))
}
