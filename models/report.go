package models

import (
	"gosplit/domain/core"
	"gosplit/domain/experiment"
)

// ReportGuardrail is the guardrail block inside a report.
type ReportGuardrail struct {
	Name           string         `json:"name"`
	Value          float64        `json:"value"`
	ThresholdValue float64        `json:"threshold_value"`
	Direction      string         `json:"direction"`
	Status         string         `json:"status"`
	ObservedAt     core.Timestamp `json:"observed_at"`
}

// ReportVariantPerformance is the per-variant block inside a report.
type ReportVariantPerformance struct {
	VariantID      string  `json:"variant_id"`
	VariantKey     string  `json:"variant_key"`
	VariantName    string  `json:"variant_name"`
	Exposures      int64   `json:"exposures"`
	Conversions    int64   `json:"conversions"`
	ConversionRate float64 `json:"conversion_rate"`
}

// ReportBanditArm is the per-variant posterior block inside a report.
type ReportBanditArm struct {
	VariantID      string  `json:"variant_id"`
	VariantName    string  `json:"variant_name"`
	Alpha          float64 `json:"alpha"`
	Beta           float64 `json:"beta"`
	ExpectedRate   float64 `json:"expected_rate"`
	WinProbability float64 `json:"win_probability"`
}

// Report is the wire form of a full analysis document.
type Report struct {
	ExperimentID            string                     `json:"experiment_id"`
	Status                  string                     `json:"status"`
	MDE                     float64                    `json:"mde"`
	SampleSizeRequired      int                        `json:"sample_size_required"`
	Exposures               int64                      `json:"exposures"`
	Conversions             int64                      `json:"conversions"`
	SampleProgress          float64                    `json:"sample_progress"`
	ControlConversionRate   float64                    `json:"control_conversion_rate"`
	TreatmentConversionRate float64                    `json:"treatment_conversion_rate"`
	UpliftVsControl         float64                    `json:"uplift_vs_control"`
	UpliftCILower           float64                    `json:"uplift_ci_lower"`
	UpliftCIUpper           float64                    `json:"uplift_ci_upper"`
	PValue                  float64                    `json:"p_value"`
	Confidence              float64                    `json:"confidence"`
	Recommendation          string                     `json:"recommendation"`
	GuardrailsBreached      int                        `json:"guardrails_breached"`
	Guardrails              []ReportGuardrail          `json:"guardrails"`
	EstimatedDaysToDecision *int                       `json:"estimated_days_to_decision"`
	DiffInDiffDelta         *float64                   `json:"diff_in_diff_delta"`
	VariantPerformance      []ReportVariantPerformance `json:"variant_performance"`
	AssignmentPolicy        string                     `json:"assignment_policy"`
	BanditState             []ReportBanditArm          `json:"bandit_state"`
	LastUpdatedAt           core.Timestamp             `json:"last_updated_at"`
}

// NewReport converts a domain report into its wire form.
func NewReport(r *experiment.Report) Report {
	guardrails := make([]ReportGuardrail, 0, len(r.Guardrails))
	for _, g := range r.Guardrails {
		guardrails = append(guardrails, ReportGuardrail{
			Name:           g.Name,
			Value:          g.Value,
			ThresholdValue: g.Threshold,
			Direction:      g.Direction.String(),
			Status:         g.Status.String(),
			ObservedAt:     g.ObservedAt,
		})
	}

	performance := make([]ReportVariantPerformance, 0, len(r.VariantPerformance))
	for _, p := range r.VariantPerformance {
		performance = append(performance, ReportVariantPerformance{
			VariantID:      p.VariantID.String(),
			VariantKey:     p.VariantKey,
			VariantName:    p.VariantName,
			Exposures:      p.Exposures,
			Conversions:    p.Conversions,
			ConversionRate: p.ConversionRate,
		})
	}

	arms := make([]ReportBanditArm, 0, len(r.BanditState))
	for _, a := range r.BanditState {
		arms = append(arms, ReportBanditArm{
			VariantID:      a.VariantID.String(),
			VariantName:    a.VariantName,
			Alpha:          a.Alpha,
			Beta:           a.Beta,
			ExpectedRate:   a.ExpectedRate,
			WinProbability: a.WinProbability,
		})
	}

	return Report{
		ExperimentID:            r.ExperimentID.String(),
		Status:                  r.Status.String(),
		MDE:                     r.MDE,
		SampleSizeRequired:      r.SampleSizeRequired,
		Exposures:               r.Exposures,
		Conversions:             r.Conversions,
		SampleProgress:          r.SampleProgress,
		ControlConversionRate:   r.ControlConversionRate,
		TreatmentConversionRate: r.TreatmentConversionRate,
		UpliftVsControl:         r.UpliftVsControl,
		UpliftCILower:           r.UpliftCILower,
		UpliftCIUpper:           r.UpliftCIUpper,
		PValue:                  r.PValue,
		Confidence:              r.Confidence,
		Recommendation:          r.Recommendation.String(),
		GuardrailsBreached:      r.GuardrailsBreached,
		Guardrails:              guardrails,
		EstimatedDaysToDecision: r.EstimatedDaysToDecision,
		DiffInDiffDelta:         r.DiffInDiffDelta,
		VariantPerformance:      performance,
		AssignmentPolicy:        r.AssignmentPolicy.String(),
		BanditState:             arms,
		LastUpdatedAt:           r.LastUpdatedAt,
	}
}

// SnapshotResponse is the wire form of an archived report.
type SnapshotResponse struct {
	ID           string         `json:"id"`
	ExperimentID string         `json:"experiment_id"`
	Snapshot     map[string]any `json:"snapshot"`
	Checksum     string         `json:"checksum"`
	CreatedAt    core.Timestamp `json:"created_at"`
}

// NewSnapshotResponse converts a domain snapshot into its wire form.
func NewSnapshotResponse(s *experiment.ReportSnapshot) SnapshotResponse {
	doc := s.Document
	if doc == nil {
		doc = map[string]any{}
	}
	return SnapshotResponse{
		ID:           s.ID.String(),
		ExperimentID: s.ExperimentID.String(),
		Snapshot:     doc,
		Checksum:     s.Checksum.String(),
		CreatedAt:    s.CreatedAt,
	}
}

// NewSnapshotResponses converts a list, preserving order.
func NewSnapshotResponses(snapshots []*experiment.ReportSnapshot) []SnapshotResponse {
	out := make([]SnapshotResponse, 0, len(snapshots))
	for _, s := range snapshots {
		out = append(out, NewSnapshotResponse(s))
	}
	return out
}
