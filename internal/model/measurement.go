package model

// MeasurementExtraction is the structured output contract for kind
// "measurement_report" (an aerial roof measurement report).
type MeasurementExtraction struct {
	MeasuredSquares  float64  `json:"measured_squares"`
	WastePercent     float64  `json:"waste_percent"`
	SuggestedSquares float64  `json:"suggested_squares"`
	RidgesLF         float64  `json:"ridges_lf"`
	HipsLF           float64  `json:"hips_lf"`
	ValleysLF        float64  `json:"valleys_lf"`
	RakesLF          float64  `json:"rakes_lf"`
	EavesLF          float64  `json:"eaves_lf"`
	DripEdgeLF       float64  `json:"drip_edge_lf"`
	ParapetLF        float64  `json:"parapet_lf"`
	FlashingLF       float64  `json:"flashing_lf"`
	StepFlashingLF   float64  `json:"step_flashing_lf"`
	PredominantPitch string   `json:"predominant_pitch"`
	Accessories      []string `json:"accessories"`
}
