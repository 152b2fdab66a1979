// Package scoring turns an enriched policy analysis into a numeric score and
// letter grade. Score is a pure, total function: any valid analysis produces
// output, unknown data earns zero credit rather than an error, and the same
// input always yields bit-identical output.
package scoring

import (
	"fmt"

	"github.com/clearclaim/docintel/internal/model"
)

// Dimension maximums. The composite is the clipped sum, clamped to [0,100].
const (
	maxCoverage    = 35.0
	maxDeductible  = 25.0
	maxExclusions  = 20.0
	maxLimits      = 20.0
)

// gradeThresholds is a monotonic step function from score to grade.
var gradeThresholds = []struct {
	min   float64
	grade model.Grade
}{
	{90, model.GradeA},
	{80, model.GradeB},
	{70, model.GradeC},
	{60, model.GradeD},
	{0, model.GradeF},
}

// GradeFor returns the letter grade for a numeric score.
func GradeFor(score float64) model.Grade {
	for _, t := range gradeThresholds {
		if score >= t.min {
			return t.grade
		}
	}
	return model.GradeF
}

// Score computes the weighted composite for one analysis.
func Score(a *model.EnrichedAnalysis) model.ScoreResult {
	if a == nil || a.Policy == nil {
		return model.ScoreResult{
			Score: 0,
			Grade: model.GradeF,
			Factors: []model.ScoreFactor{
				{Dimension: "coverage_adequacy", Points: 0, Max: maxCoverage, Detail: "no policy data"},
				{Dimension: "deductible_structure", Points: 0, Max: maxDeductible, Detail: "no policy data"},
				{Dimension: "exclusions_severity", Points: 0, Max: maxExclusions, Detail: "no policy data"},
				{Dimension: "liability_property_limits", Points: 0, Max: maxLimits, Detail: "no policy data"},
			},
		}
	}

	factors := []model.ScoreFactor{
		scoreCoverage(a),
		scoreDeductibles(a.Policy),
		scoreExclusions(a),
		scoreLimits(a.Policy),
	}

	total := 0.0
	for _, f := range factors {
		total += f.Points
	}
	total = clip(total, 0, 100)

	return model.ScoreResult{
		Score:   total,
		Grade:   GradeFor(total),
		Factors: factors,
	}
}

func scoreCoverage(a *model.EnrichedAnalysis) model.ScoreFactor {
	p := a.Policy
	points := 0.0
	if p.CoverageLimit("dwelling") > 0 {
		points += 15
	}
	if p.CoverageLimit("personal property") > 0 {
		points += 6
	}
	if p.CoverageLimit("loss of use") > 0 {
		points += 5
	}
	if p.CoverageLimit("other structures") > 0 {
		points += 4
	}
	if hasOrdinanceCoverage(a) {
		points += 5
	}

	points = clip(points, 0, maxCoverage)
	return model.ScoreFactor{
		Dimension: "coverage_adequacy",
		Points:    points,
		Max:       maxCoverage,
		Detail:    fmt.Sprintf("%d coverage sections reported", len(p.Coverages)),
	}
}

func hasOrdinanceCoverage(a *model.EnrichedAnalysis) bool {
	if a.Policy.CoverageLimit("ordinance") > 0 {
		return true
	}
	for _, f := range a.Favorable {
		if f.Verified && f.RuleID == "ordinance-law-included" {
			return true
		}
	}
	for _, e := range a.Endorsements {
		if e.Verified && e.Beneficial && e.Code == "HO 04 77" {
			return true
		}
	}
	return false
}

func scoreDeductibles(p *model.PolicyExtraction) model.ScoreFactor {
	if len(p.Deductibles) == 0 {
		return model.ScoreFactor{
			Dimension: "deductible_structure",
			Points:    0,
			Max:       maxDeductible,
			Detail:    "no deductible information",
		}
	}

	whPct := p.WindHailDeductiblePct()
	if whPct <= 0 {
		return model.ScoreFactor{
			Dimension: "deductible_structure",
			Points:    maxDeductible,
			Max:       maxDeductible,
			Detail:    "flat-dollar deductibles only",
		}
	}

	// Each percentage point of a wind/hail deductible costs 6 points.
	points := clip(maxDeductible-whPct*6, 0, maxDeductible)
	return model.ScoreFactor{
		Dimension: "deductible_structure",
		Points:    points,
		Max:       maxDeductible,
		Detail:    fmt.Sprintf("%.0f%% wind/hail deductible", whPct),
	}
}

func scoreExclusions(a *model.EnrichedAnalysis) model.ScoreFactor {
	points := maxExclusions

	for _, lm := range a.Landmines {
		switch lm.Severity {
		case "high":
			points -= 5
		case "medium":
			points -= 2
		default:
			points -= 1
		}
	}

	if extra := len(a.Policy.Exclusions) - 3; extra > 0 {
		points -= float64(extra)
	}

	// Verified favorable provisions claw back a little, still within the
	// dimension cap.
	verified := 0
	for _, f := range a.Favorable {
		if f.Verified {
			verified++
		}
	}
	if verified > 3 {
		verified = 3
	}
	points += float64(verified)

	points = clip(points, 0, maxExclusions)
	return model.ScoreFactor{
		Dimension: "exclusions_severity",
		Points:    points,
		Max:       maxExclusions,
		Detail:    fmt.Sprintf("%d landmines, %d exclusions", len(a.Landmines), len(a.Policy.Exclusions)),
	}
}

func scoreLimits(p *model.PolicyExtraction) model.ScoreFactor {
	points := 0.0

	liability := p.CoverageLimit("liability")
	switch {
	case liability >= 300_000:
		points += 10
	case liability >= 100_000:
		points += 6
	case liability > 0:
		points += 3
	}

	personalProperty := p.CoverageLimit("personal property")
	dwelling := p.CoverageLimit("dwelling")
	switch {
	case dwelling > 0 && personalProperty >= dwelling*0.5:
		points += 10
	case dwelling > 0 && personalProperty >= dwelling*0.3:
		points += 6
	case personalProperty > 0:
		points += 5
	}

	points = clip(points, 0, maxLimits)
	return model.ScoreFactor{
		Dimension: "liability_property_limits",
		Points:    points,
		Max:       maxLimits,
		Detail:    fmt.Sprintf("liability %.0f, personal property %.0f", liability, personalProperty),
	}
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
