package models

import "gosplit/domain/core"

// ExposureSeriesPoint is one bucketed exposure count.
type ExposureSeriesPoint struct {
	BucketStart core.Timestamp `json:"bucket_start"`
	Exposures   int64          `json:"exposures"`
}

// ExposureSeries is the time series of one variant's exposures.
type ExposureSeries struct {
	VariantKey  string                `json:"variant_key"`
	VariantName string                `json:"variant_name"`
	Points      []ExposureSeriesPoint `json:"points"`
}

// MetricSummary aggregates one named metric for one variant.
type MetricSummary struct {
	VariantKey  string  `json:"variant_key"`
	VariantName string  `json:"variant_name"`
	MetricName  string  `json:"metric_name"`
	Count       int     `json:"count"`
	Mean        float64 `json:"mean"`
}

// LiftEstimate compares one treatment variant against control.
type LiftEstimate struct {
	VariantKey    string  `json:"variant_key"`
	VariantName   string  `json:"variant_name"`
	ControlRate   float64 `json:"control_rate"`
	TreatmentRate float64 `json:"treatment_rate"`
	AbsoluteLift  float64 `json:"absolute_lift"`
	CILower       float64 `json:"ci_lower"`
	CIUpper       float64 `json:"ci_upper"`
	PValue        float64 `json:"p_value"`
}

// Results is the GET /results/{id} analytics document.
type Results struct {
	ExperimentID       string           `json:"experiment_id"`
	GeneratedAt        core.Timestamp   `json:"generated_at"`
	ExposureTotals     map[string]int64 `json:"exposure_totals"`
	ExposureTimeseries []ExposureSeries `json:"exposure_timeseries"`
	MetricSummaries    []MetricSummary  `json:"metric_summaries"`
	LiftEstimates      []LiftEstimate   `json:"lift_estimates"`
}
