package model

import "strings"

// EstimateExtraction is the structured output contract for kind "estimate"
// (an adjuster's loss estimate).
type EstimateExtraction struct {
	ClaimNumber     string `json:"claim_number"`
	PolicyNumber    string `json:"policy_number"`
	CarrierName     string `json:"carrier_name"`
	PropertyAddress string `json:"property_address"`
	City            string `json:"city"`
	State           string `json:"state"`
	Zip             string `json:"zip"`
	DateOfLoss      string `json:"date_of_loss"`
	AdjusterName    string `json:"adjuster_name"`
	AdjusterEmail   string `json:"adjuster_email"`
	AdjusterPhone   string `json:"adjuster_phone"`
	ScopeSummary    string `json:"scope_summary"`
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
