package schema

import (
	"github.com/rotisserie/eris"

	"github.com/clearclaim/docintel/internal/model"
)

// findingFields is the shared shape of landmine and favorable-provision
// entries reported by the model.
var findingFields = []Field{
	{Name: "name", Type: TypeString, Required: true},
	{Name: "category", Type: TypeString, Required: true},
	{Name: "severity", Type: TypeEnum, Required: true, Enum: []string{"low", "medium", "high"}},
	{Name: "impact", Type: TypeString, Required: true},
	{Name: "action_item", Type: TypeString},
}

var policyDescriptor = &Descriptor{
	Kind:    model.KindPolicy,
	Version: 2,
	Fields: []Field{
		{Name: "carrier", Type: TypeString, Required: true, Description: "insurance carrier name"},
		{Name: "policy_number", Type: TypeString, Required: true},
		{Name: "named_insured", Type: TypeString, Required: true},
		{Name: "property_address", Type: TypeString, Required: true, Description: "full insured property address"},
		{Name: "effective_date", Type: TypeString, Required: true, Description: "YYYY-MM-DD"},
		{Name: "expiration_date", Type: TypeString, Required: true, Description: "YYYY-MM-DD"},
		{Name: "coverages", Type: TypeObjectArray, Required: true, Object: []Field{
			{Name: "type", Type: TypeString, Required: true, Description: "e.g. dwelling, other structures, personal property, loss of use, personal liability, medical payments"},
			{Name: "limit", Type: TypeNumber, Required: true, Description: "dollar limit"},
		}},
		{Name: "deductibles", Type: TypeObjectArray, Required: true, Object: []Field{
			{Name: "type", Type: TypeString, Required: true, Description: "e.g. all perils, wind/hail"},
			{Name: "amount", Type: TypeNumber, Description: "flat dollar amount, null if percentage-based"},
			{Name: "percent", Type: TypeNumber, Description: "percentage of dwelling limit, null if flat"},
		}},
		{Name: "exclusions", Type: TypeStringArray, Required: true},
		{Name: "endorsements", Type: TypeStringArray, Required: true, Description: "endorsement names and form codes, e.g. HO 04 16"},
		{Name: "landmines", Type: TypeObjectArray, Required: true, Object: findingFields,
			Description: "unfavorable clauses or conditions that could surprise a claimant"},
		{Name: "favorable_provisions", Type: TypeObjectArray, Required: true, Object: findingFields,
			Description: "clauses beneficial to the policyholder"},
		{Name: "overall_risk_level", Type: TypeEnum, Required: true, Enum: []string{"low", "medium", "high"}},
		{Name: "confidence", Type: TypeNumber, Required: true, Description: "0.0-1.0 confidence in this extraction"},
		{Name: "document_type", Type: TypeString, Required: true, Description: "e.g. declarations page, full policy, renewal notice"},
		{Name: "scan_quality", Type: TypeEnum, Required: true, Enum: []string{"good", "fair", "poor", "unknown"}},
	},
}

var estimateDescriptor = &Descriptor{
	Kind:    model.KindEstimate,
	Version: 1,
	Fields: []Field{
		{Name: "claim_number", Type: TypeString, Required: true},
		{Name: "policy_number", Type: TypeString, Required: true},
		{Name: "carrier_name", Type: TypeString, Required: true},
		{Name: "property_address", Type: TypeString, Required: true, Description: "street address only"},
		{Name: "city", Type: TypeString, Required: true},
		{Name: "state", Type: TypeString, Required: true},
		{Name: "zip", Type: TypeString, Required: true},
		{Name: "date_of_loss", Type: TypeString, Required: true, Description: "YYYY-MM-DD"},
		{Name: "adjuster_name", Type: TypeString, Required: true},
		{Name: "adjuster_email", Type: TypeString, Required: true},
		{Name: "adjuster_phone", Type: TypeString, Required: true},
		{Name: "scope_summary", Type: TypeString, Required: true, Description: "free-text summary of the estimate scope"},
	},
}

var measurementDescriptor = &Descriptor{
	Kind:    model.KindMeasurement,
	Version: 1,
	Fields: []Field{
		{Name: "measured_squares", Type: TypeNumber, Required: true, Description: "total roof area in squares"},
		{Name: "waste_percent", Type: TypeNumber, Required: true},
		{Name: "suggested_squares", Type: TypeNumber, Required: true, Description: "squares including waste"},
		{Name: "ridges_lf", Type: TypeNumber, Required: true, Description: "linear feet"},
		{Name: "hips_lf", Type: TypeNumber, Required: true, Description: "linear feet"},
		{Name: "valleys_lf", Type: TypeNumber, Required: true, Description: "linear feet"},
		{Name: "rakes_lf", Type: TypeNumber, Required: true, Description: "linear feet"},
		{Name: "eaves_lf", Type: TypeNumber, Required: true, Description: "linear feet"},
		{Name: "drip_edge_lf", Type: TypeNumber, Required: true, Description: "linear feet"},
		{Name: "parapet_lf", Type: TypeNumber, Required: true, Description: "linear feet"},
		{Name: "flashing_lf", Type: TypeNumber, Required: true, Description: "linear feet"},
		{Name: "step_flashing_lf", Type: TypeNumber, Required: true, Description: "linear feet"},
		{Name: "predominant_pitch", Type: TypeString, Description: "e.g. 6/12"},
		{Name: "accessories", Type: TypeStringArray, Required: true, Description: "vents, skylights, chimneys, etc."},
	},
}

// ForKind returns the shared descriptor for a document kind.
func ForKind(kind model.DocumentKind) (*Descriptor, error) {
	switch kind {
	case model.KindPolicy:
		return policyDescriptor, nil
	case model.KindEstimate:
		return estimateDescriptor, nil
	case model.KindMeasurement:
		return measurementDescriptor, nil
	default:
		return nil, eris.Errorf("schema: unknown document kind %q", kind)
	}
}
