package model

// Grade is the letter grade derived from a numeric policy score.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// Rank orders grades for monotonicity checks: higher is better.
func (g Grade) Rank() int {
	switch g {
	case GradeA:
		return 4
	case GradeB:
		return 3
	case GradeC:
		return 2
	case GradeD:
		return 1
	default:
		return 0
	}
}

// ScoreFactor records one dimension's contribution to the composite score.
type ScoreFactor struct {
	Dimension string  `json:"dimension"`
	Points    float64 `json:"points"`
	Max       float64 `json:"max"`
	Detail    string  `json:"detail,omitempty"`
}

// ScoreResult is the output of the scoring engine: a bounded numeric score,
// its letter grade, and the contributing factors. It is a pure function of
// the EnrichedAnalysis it was computed from; the persisted copy is a
// snapshot, never authoritative state.
type ScoreResult struct {
	Score   float64       `json:"score"`
	Grade   Grade         `json:"grade"`
	Factors []ScoreFactor `json:"factors"`
}
