package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
	"gosplit/domain/stats"
	"gosplit/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResultsService(kit *testkit.TestKit) *ResultsService {
	return NewResultsService(kit.Experiments, kit.Events)
}

func TestResultsService_IntervalValidation(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit()
	svc := newResultsService(kit)
	exp := seedExperiment(t, kit, experiment.StatusRunning)

	_, err := svc.Build(ctx, exp.ID, "day")
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = svc.Build(ctx, core.ExperimentID(core.NewID()), "minute")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestResultsService_NoVariantsIsMisconfigured(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit()
	svc := newResultsService(kit)

	exp := testkit.ExperimentFixture(experiment.StatusRunning)
	exp.Variants = nil
	require.NoError(t, kit.Experiments.Create(ctx, exp))

	_, err := svc.Build(ctx, exp.ID, "minute")
	assert.ErrorIs(t, err, core.ErrMisconfigured)
}

func TestResultsService_ExposureBucketing(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit()
	svc := newResultsService(kit)
	exp := seedExperiment(t, kit, experiment.StatusRunning)

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	control := exp.Variants[0].ID
	for i, offset := range []time.Duration{5 * time.Second, 55 * time.Second, 90 * time.Second} {
		ev := testkit.ExposureEvent(exp, control, fmt.Sprintf("u%d", i), core.NewTimestamp(base.Add(offset)))
		require.NoError(t, kit.Events.Append(ctx, ev))
	}

	results, err := svc.Build(ctx, exp.ID, "minute")
	require.NoError(t, err)

	assert.Equal(t, int64(3), results.ExposureTotals["control"])
	assert.Equal(t, int64(0), results.ExposureTotals["treatment"], "zero-traffic arms still report")

	require.Len(t, results.ExposureTimeseries, 2)
	controlSeries := results.ExposureTimeseries[0]
	require.Equal(t, "control", controlSeries.VariantKey)
	require.Len(t, controlSeries.Points, 2)
	assert.WithinDuration(t, base, controlSeries.Points[0].BucketStart.Time(), 0)
	assert.Equal(t, int64(2), controlSeries.Points[0].Exposures)
	assert.WithinDuration(t, base.Add(time.Minute), controlSeries.Points[1].BucketStart.Time(), 0)
	assert.Equal(t, int64(1), controlSeries.Points[1].Exposures)

	assert.Empty(t, results.ExposureTimeseries[1].Points)

	// Hourly grain folds everything into one bucket.
	hourly, err := svc.Build(ctx, exp.ID, "hour")
	require.NoError(t, err)
	require.Len(t, hourly.ExposureTimeseries[0].Points, 1)
	assert.Equal(t, int64(3), hourly.ExposureTimeseries[0].Points[0].Exposures)
}

func TestResultsService_SkipsUnattributableEvents(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit()
	svc := newResultsService(kit)
	exp := seedExperiment(t, kit, experiment.StatusRunning)

	now := core.Now()
	require.NoError(t, kit.Events.Append(ctx, testkit.ExposureEvent(exp, exp.Variants[0].ID, "u1", now)))

	// Attributed to a variant the experiment does not carry.
	ghost := core.VariantID(core.NewID())
	require.NoError(t, kit.Events.Append(ctx, testkit.ExposureEvent(exp, ghost, "u2", now)))

	// No variant at all.
	orphan := testkit.ExposureEvent(exp, exp.Variants[0].ID, "u3", now)
	orphan.VariantID = nil
	require.NoError(t, kit.Events.Append(ctx, orphan))

	results, err := svc.Build(ctx, exp.ID, "minute")
	require.NoError(t, err)
	assert.Equal(t, int64(1), results.ExposureTotals["control"])
	assert.Equal(t, int64(0), results.ExposureTotals["treatment"])
}

func TestResultsService_MetricSummaries(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit()
	svc := newResultsService(kit)
	exp := seedExperiment(t, kit, experiment.StatusRunning)

	now := core.Now()
	control, treatment := exp.Variants[0].ID, exp.Variants[1].ID
	for _, v := range []float64{100, 110, 95} {
		require.NoError(t, kit.Events.Append(ctx, testkit.MetricEvent(exp, control, "u", "latency_ms", v, now)))
	}
	require.NoError(t, kit.Events.Append(ctx, testkit.MetricEvent(exp, control, "u", "add_to_cart", 2, now)))
	require.NoError(t, kit.Events.Append(ctx, testkit.MetricEvent(exp, treatment, "u", "latency_ms", 90, now)))

	results, err := svc.Build(ctx, exp.ID, "minute")
	require.NoError(t, err)

	require.Len(t, results.MetricSummaries, 3)
	assert.Equal(t, "add_to_cart", results.MetricSummaries[0].MetricName, "sorted by variant key then metric name")
	assert.Equal(t, "control", results.MetricSummaries[0].VariantKey)
	assert.Equal(t, 1, results.MetricSummaries[0].Count)

	latency := results.MetricSummaries[1]
	assert.Equal(t, "latency_ms", latency.MetricName)
	assert.Equal(t, 3, latency.Count)
	assert.Equal(t, 101.666667, latency.Mean, "means round to six decimals")

	assert.Equal(t, "treatment", results.MetricSummaries[2].VariantKey)
	assert.Equal(t, 90.0, results.MetricSummaries[2].Mean)
}

func TestResultsService_LiftEstimates(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit()
	svc := newResultsService(kit)
	exp := seedExperiment(t, kit, experiment.StatusRunning)
	seedCounts(t, kit, exp, []int{200, 200}, []int{20, 40})

	results, err := svc.Build(ctx, exp.ID, "hour")
	require.NoError(t, err)

	require.Len(t, results.LiftEstimates, 1)
	lift := results.LiftEstimates[0]
	assert.Equal(t, "treatment", lift.VariantKey)
	assert.Equal(t, 0.1, lift.ControlRate)
	assert.Equal(t, 0.2, lift.TreatmentRate)
	assert.Equal(t, 0.1, lift.AbsoluteLift)

	z := stats.TwoProportionZ(20, 200, 40, 200)
	assert.InDelta(t, z.P, lift.PValue, 1e-6)
	assert.Less(t, lift.PValue, 0.05)

	ci := stats.UpliftCI(20, 200, 40, 200, 0.95)
	assert.InDelta(t, ci.Lower, lift.CILower, 1e-6)
	assert.InDelta(t, ci.Upper, lift.CIUpper, 1e-6)
	assert.Less(t, lift.CILower, lift.CIUpper)
}

func TestResultsService_ZeroExposureLift(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit()
	svc := newResultsService(kit)
	exp := seedExperiment(t, kit, experiment.StatusRunning)

	// Control has traffic, treatment has none.
	seedCounts(t, kit, exp, []int{100, 0}, []int{10, 0})

	results, err := svc.Build(ctx, exp.ID, "minute")
	require.NoError(t, err)

	require.Len(t, results.LiftEstimates, 1)
	lift := results.LiftEstimates[0]
	assert.Equal(t, 1.0, lift.PValue)
	assert.Zero(t, lift.CILower)
	assert.Zero(t, lift.CIUpper)
	assert.Zero(t, lift.TreatmentRate)
}
