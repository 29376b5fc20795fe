package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	mstats "github.com/montanaflynn/stats"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
	"gosplit/domain/stats"
	"gosplit/models"
	"gosplit/ports"
)

// resultsPrecision is the decimal rounding applied to analytics numbers.
const resultsPrecision = 6

// ResultsService builds the exploratory analytics document: bucketed
// exposure series, per-metric summaries, and per-variant lift estimates.
// Unlike the report it never transitions state or leaves snapshots.
type ResultsService struct {
	experiments ports.ExperimentRepository
	events      ports.EventRepository
}

// NewResultsService creates a results service
func NewResultsService(experiments ports.ExperimentRepository, events ports.EventRepository) *ResultsService {
	return &ResultsService{
		experiments: experiments,
		events:      events,
	}
}

// Build scans the experiment's event history and aggregates it at the given
// interval ("minute" or "hour"). Events with no variant attribution, or
// attributed to a variant the experiment no longer carries, are skipped.
func (s *ResultsService) Build(ctx context.Context, id core.ExperimentID, interval string) (*models.Results, error) {
	bucket, err := bucketSize(interval)
	if err != nil {
		return nil, err
	}

	exp, err := s.experiments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(exp.Variants) == 0 {
		return nil, core.ErrMisconfigured
	}

	events, err := s.events.ListFor(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	byVariant := make(map[core.VariantID]*variantScan, len(exp.Variants))
	for _, v := range exp.Variants {
		byVariant[v.ID] = &variantScan{
			buckets: make(map[time.Time]int64),
			metrics: make(map[string][]float64),
		}
	}

	for _, ev := range events {
		if ev.VariantID == nil {
			continue
		}
		scan, known := byVariant[*ev.VariantID]
		if !known {
			continue
		}
		switch ev.Kind {
		case experiment.KindExposure:
			scan.exposures++
			scan.buckets[ev.ObservedAt.Truncate(bucket).Time()]++
		case experiment.KindConversion:
			scan.conversions++
		case experiment.KindMetric:
			if ev.MetricName != nil {
				scan.metrics[*ev.MetricName] = append(scan.metrics[*ev.MetricName], ev.Value)
			}
		}
	}

	results := &models.Results{
		ExperimentID:       exp.ID.String(),
		GeneratedAt:        core.Now(),
		ExposureTotals:     make(map[string]int64, len(exp.Variants)),
		ExposureTimeseries: make([]models.ExposureSeries, 0, len(exp.Variants)),
		MetricSummaries:    metricSummaries(exp, byVariant),
		LiftEstimates:      liftEstimates(exp, byVariant),
	}

	for _, v := range exp.Variants {
		scan := byVariant[v.ID]
		results.ExposureTotals[v.Key] = scan.exposures
		results.ExposureTimeseries = append(results.ExposureTimeseries, models.ExposureSeries{
			VariantKey:  v.Key,
			VariantName: v.Name,
			Points:      seriesPoints(scan.buckets),
		})
	}

	return results, nil
}

// variantScan accumulates one variant's slice of the event history.
type variantScan struct {
	exposures   int64
	conversions int64
	buckets     map[time.Time]int64
	metrics     map[string][]float64
}

func bucketSize(interval string) (time.Duration, error) {
	switch interval {
	case "minute":
		return time.Minute, nil
	case "hour":
		return time.Hour, nil
	}
	return 0, core.NewValidationError("interval", "must be minute or hour")
}

func seriesPoints(buckets map[time.Time]int64) []models.ExposureSeriesPoint {
	starts := make([]time.Time, 0, len(buckets))
	for start := range buckets {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	points := make([]models.ExposureSeriesPoint, 0, len(starts))
	for _, start := range starts {
		points = append(points, models.ExposureSeriesPoint{
			BucketStart: core.NewTimestamp(start),
			Exposures:   buckets[start],
		})
	}
	return points
}

func metricSummaries(exp *experiment.Experiment, byVariant map[core.VariantID]*variantScan) []models.MetricSummary {
	summaries := make([]models.MetricSummary, 0)
	for _, v := range exp.Variants {
		scan := byVariant[v.ID]
		for name, values := range scan.metrics {
			mean, err := mstats.Mean(values)
			if err != nil {
				mean = 0
			}
			summaries = append(summaries, models.MetricSummary{
				VariantKey:  v.Key,
				VariantName: v.Name,
				MetricName:  name,
				Count:       len(values),
				Mean:        stats.Round(mean, resultsPrecision),
			})
		}
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].VariantKey != summaries[j].VariantKey {
			return summaries[i].VariantKey < summaries[j].VariantKey
		}
		return summaries[i].MetricName < summaries[j].MetricName
	})
	return summaries
}

func liftEstimates(exp *experiment.Experiment, byVariant map[core.VariantID]*variantScan) []models.LiftEstimate {
	control, ok := exp.ControlVariant()
	if !ok {
		return []models.LiftEstimate{}
	}
	controlScan := byVariant[control.ID]
	controlRate := rateOf(controlScan)

	estimates := make([]models.LiftEstimate, 0, len(exp.Variants)-1)
	for _, v := range exp.Variants {
		if v.ID == control.ID {
			continue
		}
		scan := byVariant[v.ID]
		treatmentRate := rateOf(scan)

		z := stats.TwoProportionZ(controlScan.conversions, controlScan.exposures, scan.conversions, scan.exposures)
		ci := stats.UpliftCI(controlScan.conversions, controlScan.exposures, scan.conversions, scan.exposures, 0.95)

		estimates = append(estimates, models.LiftEstimate{
			VariantKey:    v.Key,
			VariantName:   v.Name,
			ControlRate:   stats.Round(controlRate, resultsPrecision),
			TreatmentRate: stats.Round(treatmentRate, resultsPrecision),
			AbsoluteLift:  stats.Round(treatmentRate-controlRate, resultsPrecision),
			CILower:       stats.Round(ci.Lower, resultsPrecision),
			CIUpper:       stats.Round(ci.Upper, resultsPrecision),
			PValue:        stats.Round(z.P, resultsPrecision),
		})
	}
	return estimates
}

func rateOf(scan *variantScan) float64 {
	if scan.exposures == 0 {
		return 0
	}
	return float64(scan.conversions) / float64(scan.exposures)
}
