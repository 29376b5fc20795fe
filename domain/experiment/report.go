package experiment

import "gosplit/domain/core"

// Recommendation is the report builder's verdict.
type Recommendation string

const (
	RecommendationContinue     Recommendation = "continue_collecting"
	RecommendationPass         Recommendation = "pass"
	RecommendationFail         Recommendation = "fail"
	RecommendationInconclusive Recommendation = "inconclusive"
)

func (r Recommendation) String() string { return string(r) }

// OutcomeForRecommendation maps a terminal recommendation onto the outcome
// the auto-transition records. Continue maps to none.
func OutcomeForRecommendation(rec Recommendation) Outcome {
	switch rec {
	case RecommendationPass:
		return OutcomePassed
	case RecommendationFail:
		return OutcomeFailed
	case RecommendationInconclusive:
		return OutcomeInconclusive
	}
	return OutcomeNone
}

// VariantCounts aggregates a single variant's event tallies by period.
type VariantCounts struct {
	PostExposures   int64
	PostConversions int64
	PreExposures    int64
	PreConversions  int64
}

// CountAggregate is everything the report builder needs from the event
// history: experiment-wide post-period totals plus the per-variant breakdown.
// The totals include events not attributed to any variant.
type CountAggregate struct {
	Exposures   int64
	Conversions int64
	ByVariant   map[core.VariantID]VariantCounts
}

// VariantPerformance is the per-variant block of a report.
type VariantPerformance struct {
	VariantID      core.VariantID
	VariantKey     string
	VariantName    string
	Exposures      int64
	Conversions    int64
	ConversionRate float64
}

// BanditArm is the per-variant Thompson posterior summary of a report.
type BanditArm struct {
	VariantID      core.VariantID
	VariantName    string
	Alpha          float64
	Beta           float64
	ExpectedRate   float64
	WinProbability float64
}

// Report is the full analysis document for one experiment at one moment.
type Report struct {
	ExperimentID            core.ExperimentID
	Status                  Status
	MDE                     float64
	SampleSizeRequired      int
	Exposures               int64
	Conversions             int64
	SampleProgress          float64
	ControlConversionRate   float64
	TreatmentConversionRate float64
	UpliftVsControl         float64
	UpliftCILower           float64
	UpliftCIUpper           float64
	PValue                  float64
	Confidence              float64
	Recommendation          Recommendation
	GuardrailsBreached      int
	Guardrails              []GuardrailObservation
	EstimatedDaysToDecision *int
	DiffInDiffDelta         *float64
	VariantPerformance      []VariantPerformance
	AssignmentPolicy        AssignmentPolicy
	BanditState             []BanditArm
	LastUpdatedAt           core.Timestamp
}

// CondensedCard is the running-experiments view row: the handful of report
// numbers an operator scans across many experiments.
type CondensedCard struct {
	ExperimentID    core.ExperimentID
	Name            string
	Status          Status
	Exposures       int64
	Conversions     int64
	ConversionRate  float64
	UpliftVsControl float64
	Confidence      float64
	SampleProgress  float64
}

// ExecutiveSummary counts experiments by lifecycle state and, for stopped
// ones, by outcome.
type ExecutiveSummary struct {
	Draft                  int
	Running                int
	Paused                 int
	Stopped                int
	Passed                 int
	Failed                 int
	Inconclusive           int
	TerminatedWithoutCause int
}
