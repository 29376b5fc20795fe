package experiment

import (
	"gosplit/domain/core"
	"gosplit/domain/stats"
)

const (
	// banditDraws is the Monte-Carlo budget behind win probabilities.
	banditDraws = 400
	// decisionPace is the assumed exposure intake per day when projecting
	// days until the sample-size target is met.
	decisionPace = 200
)

// BuildReport computes the full analysis document for one experiment from
// its event aggregate and guardrail history. It is a pure function: the
// recommendation ladder runs on unrounded values, the returned fields carry
// display rounding (4 decimals, diff-in-diff 6), and nothing here mutates
// experiment state. The coordinator applies any auto-transition afterwards.
func BuildReport(exp *Experiment, agg *CountAggregate, observations []GuardrailObservation, now core.Timestamp) *Report {
	if agg == nil {
		agg = &CountAggregate{ByVariant: map[core.VariantID]VariantCounts{}}
	}

	latest := LatestPerName(observations)
	breached := CountBreached(latest)

	progress := 0.0
	if exp.SampleSizeRequired > 0 {
		progress = float64(agg.Exposures) / float64(exp.SampleSizeRequired)
		if progress > 1 {
			progress = 1
		}
	}

	report := &Report{
		ExperimentID:       exp.ID,
		Status:             exp.Status,
		MDE:                exp.MDE,
		SampleSizeRequired: exp.SampleSizeRequired,
		Exposures:          agg.Exposures,
		Conversions:        agg.Conversions,
		SampleProgress:     stats.Round(progress, 4),
		GuardrailsBreached: breached,
		Guardrails:         latest,
		AssignmentPolicy:   exp.Policy,
		VariantPerformance: variantPerformance(exp, agg),
		BanditState:        banditState(exp, agg),
		LastUpdatedAt:      now,
	}

	if agg.Exposures > 0 {
		days := (exp.SampleSizeRequired - int(agg.Exposures)) / decisionPace
		if days < 0 {
			days = 0
		}
		report.EstimatedDaysToDecision = &days
	}

	control, ok := exp.ControlVariant()
	if !ok {
		// Degenerate experiment: nothing to compare.
		report.PValue = 1
		report.Confidence = stats.ConfidenceFromP(1)
		report.Recommendation = RecommendationContinue
		return report
	}

	cc := agg.ByVariant[control.ID]
	var tc VariantCounts
	for _, v := range exp.Variants {
		if v.ID == control.ID {
			continue
		}
		counts := agg.ByVariant[v.ID]
		tc.PostExposures += counts.PostExposures
		tc.PostConversions += counts.PostConversions
		tc.PreExposures += counts.PreExposures
		tc.PreConversions += counts.PreConversions
	}

	controlRate := rate(cc.PostConversions, cc.PostExposures)
	treatmentRate := rate(tc.PostConversions, tc.PostExposures)
	uplift := treatmentRate - controlRate

	z := stats.TwoProportionZ(cc.PostConversions, cc.PostExposures, tc.PostConversions, tc.PostExposures)
	ci := stats.UpliftCI(cc.PostConversions, cc.PostExposures, tc.PostConversions, tc.PostExposures, 1-exp.Alpha)

	report.ControlConversionRate = stats.Round(controlRate, 4)
	report.TreatmentConversionRate = stats.Round(treatmentRate, 4)
	report.UpliftVsControl = stats.Round(uplift, 4)
	report.UpliftCILower = stats.Round(ci.Lower, 4)
	report.UpliftCIUpper = stats.Round(ci.Upper, 4)
	report.PValue = stats.Round(z.P, 4)
	report.Confidence = stats.ConfidenceFromP(z.P)

	if cc.PreExposures > 0 && tc.PreExposures > 0 {
		delta := stats.DiffInDiff(
			rate(cc.PreConversions, cc.PreExposures), controlRate,
			rate(tc.PreConversions, tc.PreExposures), treatmentRate)
		report.DiffInDiffDelta = &delta
	}

	report.Recommendation = recommend(progress, breached, z.P, uplift, exp.Alpha, exp.MDE)
	return report
}

// recommend runs the decision ladder on unrounded inputs. Order matters: an
// incomplete sample always asks for more data, even over a breached
// guardrail.
func recommend(progress float64, breached int, p, uplift, alpha, mde float64) Recommendation {
	switch {
	case progress < 1:
		return RecommendationContinue
	case breached > 0:
		return RecommendationFail
	case p <= alpha && uplift >= mde:
		return RecommendationPass
	case p <= alpha && uplift < 0:
		return RecommendationFail
	default:
		return RecommendationInconclusive
	}
}

// CondensedCardFrom reduces an experiment and its report to the row the
// running-experiments view renders. Conversion rate here is the
// experiment-wide ratio, not the control or treatment rate.
func CondensedCardFrom(exp *Experiment, report *Report) CondensedCard {
	return CondensedCard{
		ExperimentID:    exp.ID,
		Name:            exp.Name,
		Status:          exp.Status,
		Exposures:       report.Exposures,
		Conversions:     report.Conversions,
		ConversionRate:  stats.Round(rate(report.Conversions, report.Exposures), 4),
		UpliftVsControl: report.UpliftVsControl,
		Confidence:      report.Confidence,
		SampleProgress:  report.SampleProgress,
	}
}

func variantPerformance(exp *Experiment, agg *CountAggregate) []VariantPerformance {
	performance := make([]VariantPerformance, 0, len(exp.Variants))
	for _, v := range exp.Variants {
		counts := agg.ByVariant[v.ID]
		performance = append(performance, VariantPerformance{
			VariantID:      v.ID,
			VariantKey:     v.Key,
			VariantName:    v.Name,
			Exposures:      counts.PostExposures,
			Conversions:    counts.PostConversions,
			ConversionRate: stats.Round(rate(counts.PostConversions, counts.PostExposures), 4),
		})
	}
	return performance
}

// banditState computes the Beta posterior per variant and the Monte-Carlo
// win probabilities. The source is seeded from the experiment id alone, so
// two reports over the same counts carry identical probabilities.
func banditState(exp *Experiment, agg *CountAggregate) []BanditArm {
	if len(exp.Variants) == 0 {
		return []BanditArm{}
	}

	posteriors := make([]stats.Posterior, 0, len(exp.Variants))
	for _, v := range exp.Variants {
		counts := agg.ByVariant[v.ID]
		posteriors = append(posteriors, stats.NewPosterior(counts.PostExposures, counts.PostConversions))
	}

	wins := stats.WinProbabilities(posteriors, banditDraws, stats.NewSeededSource(exp.ID.String()))

	arms := make([]BanditArm, 0, len(exp.Variants))
	for i, v := range exp.Variants {
		arms = append(arms, BanditArm{
			VariantID:      v.ID,
			VariantName:    v.Name,
			Alpha:          posteriors[i].Alpha,
			Beta:           posteriors[i].Beta,
			ExpectedRate:   stats.Round(posteriors[i].ExpectedRate(), 4),
			WinProbability: stats.Round(wins[i], 4),
		})
	}
	return arms
}

func rate(conversions, exposures int64) float64 {
	if exposures == 0 {
		return 0
	}
	return float64(conversions) / float64(exposures)
}
