package config

import "github.com/nebulus-edge/intelligence/internal/knowledge"

// builtinTemplates returns the default scoring factors, business rules,
// and metrics for every vertical this system ships with. These mirror the
// shape original_source/intelligence/templates/base.py's VerticalTemplate
// loads from each vertical's config.yaml, translated into Go literals
// since no per-vertical config.yaml content survived distillation.
func builtinTemplates() []*knowledge.Template {
	return []*knowledge.Template{
		dealershipTemplate(),
		medicalTemplate(),
		legalTemplate(),
		genericTemplate(),
	}
}

func dealershipTemplate() *knowledge.Template {
	return &knowledge.Template{
		Name: "dealership",
		ScoringFactors: map[string][]knowledge.Factor{
			"perfect_sale": {
				{Name: "trade_in", Description: "customer traded in a vehicle", Weight: 15, Calculation: "trade_in_vin IS NOT NULL"},
				{Name: "financed", Description: "sale was financed rather than cash", Weight: 20, Calculation: "finance_type = 'finance'"},
				{Name: "warranty_attached", Description: "extended warranty was attached", Weight: 15, Calculation: "warranty_amount > 0"},
				{Name: "gross_above_target", Description: "front-end gross met or exceeded target", Weight: 30, Calculation: "front_gross >= 2000"},
				{Name: "csi_positive", Description: "customer satisfaction survey was positive", Weight: 20, Calculation: "csi_score >= 4"},
			},
		},
		Rules: []knowledge.Rule{
			{Name: "no_negative_gross", Description: "front-end gross should never be negative", Condition: "front_gross < 0", Severity: "warning"},
			{Name: "warranty_requires_finance", Description: "extended warranties are financed products, not cash add-ons", Condition: "warranty_amount > 0 AND finance_type = 'cash'", Severity: "info"},
		},
		Metrics: map[string]knowledge.Metric{
			"days_on_lot":     {Name: "days_on_lot", Description: "average days a vehicle sits before sale", Target: 30, Warning: 60, Critical: 90, LowerIsBetter: true},
			"front_gross":     {Name: "front_gross", Description: "average front-end gross per deal", Target: 2200, Warning: 1500, Critical: 800, LowerIsBetter: false},
			"csi_score":       {Name: "csi_score", Description: "average customer satisfaction score (1-5)", Target: 4.5, Warning: 4.0, Critical: 3.5, LowerIsBetter: false},
			"finance_penetration": {Name: "finance_penetration", Description: "share of deals financed in-house", Target: 0.6, Warning: 0.4, Critical: 0.25, LowerIsBetter: false},
		},
	}
}

func medicalTemplate() *knowledge.Template {
	return &knowledge.Template{
		Name: "medical",
		ScoringFactors: map[string][]knowledge.Factor{
			"positive_outcome": {
				{Name: "readmission_free", Description: "no readmission within 30 days", Weight: 35, Calculation: "readmitted_30d = 0"},
				{Name: "length_of_stay_normal", Description: "stay within expected range for diagnosis", Weight: 20, Calculation: "expected_los / length_of_stay > 1"},
				{Name: "complication_free", Description: "no recorded complications", Weight: 25, Calculation: "complications = 0"},
				{Name: "follow_up_completed", Description: "scheduled follow-up was completed", Weight: 20, Calculation: "follow_up_completed = 1"},
			},
		},
		Rules: []knowledge.Rule{
			{Name: "readmission_flag", Description: "30-day readmissions require chart review", Condition: "readmitted_30d = 1", Severity: "error"},
			{Name: "stay_outlier", Description: "length of stay far exceeding the expected range", Condition: "length_of_stay > expected_los * 2", Severity: "warning"},
		},
		Metrics: map[string]knowledge.Metric{
			"readmission_rate":  {Name: "readmission_rate", Description: "30-day readmission rate", Target: 0.05, Warning: 0.1, Critical: 0.15, LowerIsBetter: true},
			"avg_length_of_stay": {Name: "avg_length_of_stay", Description: "average length of stay in days", Target: 4, Warning: 6, Critical: 8, LowerIsBetter: true},
			"complication_rate": {Name: "complication_rate", Description: "rate of recorded complications", Target: 0.02, Warning: 0.05, Critical: 0.1, LowerIsBetter: true},
		},
	}
}

func legalTemplate() *knowledge.Template {
	return &knowledge.Template{
		Name: "legal",
		ScoringFactors: map[string][]knowledge.Factor{
			"favorable_outcome": {
				{Name: "settled_favorably", Description: "matter settled at or above target value", Weight: 30, Calculation: "settlement_amount / target_amount > 1"},
				{Name: "resolved_on_time", Description: "matter closed within the expected duration", Weight: 25, Calculation: "expected_duration_days / duration_days > 1"},
				{Name: "under_budget", Description: "billed hours stayed within the budgeted estimate", Weight: 25, Calculation: "budgeted_hours / billed_hours > 1"},
				{Name: "client_retained", Description: "client retained the firm for a subsequent matter", Weight: 20, Calculation: "client_retained = 1"},
			},
		},
		Rules: []knowledge.Rule{
			{Name: "budget_overrun", Description: "billed hours exceeding budget by more than 25%", Condition: "billed_hours > budgeted_hours * 1.25", Severity: "warning"},
			{Name: "statute_of_limitations", Description: "matter approaching its filing deadline", Condition: "days_to_deadline <= 14", Severity: "error"},
		},
		Metrics: map[string]knowledge.Metric{
			"avg_duration_days": {Name: "avg_duration_days", Description: "average matter duration in days", Target: 90, Warning: 150, Critical: 240, LowerIsBetter: true},
			"budget_variance":   {Name: "budget_variance", Description: "average billed-vs-budgeted hour variance", Target: 0, Warning: 0.15, Critical: 0.3, LowerIsBetter: true},
			"client_retention":  {Name: "client_retention", Description: "share of clients retained for a subsequent matter", Target: 0.5, Warning: 0.35, Critical: 0.2, LowerIsBetter: false},
		},
	}
}

func genericTemplate() *knowledge.Template {
	return &knowledge.Template{
		Name:           "generic",
		ScoringFactors: map[string][]knowledge.Factor{},
		Rules:          []knowledge.Rule{},
		Metrics:        map[string]knowledge.Metric{},
	}
}
