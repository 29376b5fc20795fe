package app

import (
	"context"
	"fmt"
	"testing"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
	"gosplit/internal/testkit"
	"gosplit/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAssignmentService(kit *testkit.TestKit) *AssignmentService {
	return NewAssignmentService(kit.Experiments, kit.Assignments, kit.Events)
}

func assignRequest(exp *experiment.Experiment, unit string) models.AssignmentRequest {
	return models.AssignmentRequest{ExperimentID: exp.ID.String(), UnitID: unit}
}

func TestAssignmentService_Stickiness(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit()
	svc := newAssignmentService(kit)
	exp := seedExperiment(t, kit, experiment.StatusRunning)

	first, err := svc.Assign(ctx, assignRequest(exp, "unit-1"))
	require.NoError(t, err)

	second, err := svc.Assign(ctx, assignRequest(exp, "unit-1"))
	require.NoError(t, err)

	assert.Equal(t, first.Assignment.ID, second.Assignment.ID)
	assert.Equal(t, first.Variant.Key, second.Variant.Key)
	assert.Equal(t, exp.Version, second.Version)
	assert.Equal(t, 1, kit.Assignments.ActiveCount(exp.ID), "repeat calls never insert a second row")
}

func TestAssignmentService_OnlyRunningAccepts(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit()
	svc := newAssignmentService(kit)

	for _, status := range []experiment.Status{
		experiment.StatusDraft,
		experiment.StatusPaused,
		experiment.StatusStopped,
	} {
		exp := seedExperiment(t, kit, status)
		_, err := svc.Assign(ctx, assignRequest(exp, "unit-1"))
		assert.ErrorIs(t, err, core.ErrInvalidState, "status %s", status)
	}
}

func TestAssignmentService_RequestValidation(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit()
	svc := newAssignmentService(kit)
	exp := seedExperiment(t, kit, experiment.StatusRunning)

	_, err := svc.Assign(ctx, models.AssignmentRequest{ExperimentID: exp.ID.String(), UnitID: "  "})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = svc.Assign(ctx, models.AssignmentRequest{ExperimentID: "", UnitID: "unit-1"})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = svc.Assign(ctx, models.AssignmentRequest{ExperimentID: core.NewID().String(), UnitID: "unit-1"})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestAssignmentService_RampZeroStillAssignsControl(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit()
	svc := newAssignmentService(kit)

	exp := testkit.ExperimentFixture(experiment.StatusRunning)
	exp.RampPct = 0
	require.NoError(t, kit.Experiments.Create(ctx, exp))

	for i := 0; i < 20; i++ {
		result, err := svc.Assign(ctx, assignRequest(exp, fmt.Sprintf("unit-%d", i)))
		require.NoError(t, err)
		assert.Equal(t, experiment.ControlKey, result.Variant.Key)
	}
	assert.Equal(t, 20, kit.Assignments.ActiveCount(exp.ID), "excluded units still get a sticky row")
}

func TestAssignmentService_TargetingMissPinsControl(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit()
	svc := newAssignmentService(kit)

	exp := testkit.ExperimentFixture(experiment.StatusRunning)
	exp.Targeting = experiment.ParseRules(map[string]any{"country": []any{"US", "CA"}})
	require.NoError(t, kit.Experiments.Create(ctx, exp))

	miss, err := svc.Assign(ctx, models.AssignmentRequest{
		ExperimentID: exp.ID.String(),
		UnitID:       "unit-de",
		Attributes:   map[string]any{"country": "DE"},
	})
	require.NoError(t, err)
	assert.Equal(t, experiment.ControlKey, miss.Variant.Key)

	absent, err := svc.Assign(ctx, assignRequest(exp, "unit-boring"))
	require.NoError(t, err)
	assert.Equal(t, experiment.ControlKey, absent.Variant.Key, "missing attribute fails the rule")

	_, err = svc.Assign(ctx, models.AssignmentRequest{
		ExperimentID: exp.ID.String(),
		UnitID:       "unit-us",
		Attributes:   map[string]any{"country": "US"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, kit.Assignments.ActiveCount(exp.ID))
}

func TestAssignmentService_WeightedDistribution(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit()
	svc := newAssignmentService(kit)

	exp := testkit.ExperimentFixture(experiment.StatusRunning)
	exp.Variants[0].Weight = 0.2
	exp.Variants[1].Weight = 0.8
	require.NoError(t, kit.Experiments.Create(ctx, exp))

	const units = 2000
	controls := 0
	for i := 0; i < units; i++ {
		result, err := svc.Assign(ctx, assignRequest(exp, fmt.Sprintf("unit-%04d", i)))
		require.NoError(t, err)
		if result.Variant.Key == experiment.ControlKey {
			controls++
		}
	}

	share := float64(controls) / float64(units)
	assert.Greater(t, share, 0.14, "control share collapsed below its weight band")
	assert.Less(t, share, 0.26, "control share inflated above its weight band")
}

func TestAssignmentService_AssignmentIsDeterministicPerUnit(t *testing.T) {
	ctx := context.Background()
	exp := testkit.ExperimentFixture(experiment.StatusRunning)

	// Two independent stores, same experiment row: the same unit must land
	// on the same variant in both.
	for _, unit := range []string{"unit-a", "unit-b", "unit-c"} {
		kitA, kitB := testkit.NewTestKit(), testkit.NewTestKit()
		require.NoError(t, kitA.Experiments.Create(ctx, exp))
		require.NoError(t, kitB.Experiments.Create(ctx, exp))

		a, err := newAssignmentService(kitA).Assign(ctx, assignRequest(exp, unit))
		require.NoError(t, err)
		b, err := newAssignmentService(kitB).Assign(ctx, assignRequest(exp, unit))
		require.NoError(t, err)

		assert.Equal(t, a.Variant.Key, b.Variant.Key, "unit %s", unit)
	}
}

func TestAssignmentService_LostInsertRaceReturnsWinner(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit()
	exp := seedExperiment(t, kit, experiment.StatusRunning)

	winner := &experiment.Assignment{
		ID:           core.AssignmentID(core.NewID()),
		ExperimentID: exp.ID,
		UnitID:       "unit-1",
		VariantID:    exp.Variants[1].ID,
		AssignedAt:   core.Now(),
	}
	require.NoError(t, kit.Assignments.Create(ctx, winner))

	// The repository misses the first read, so the service races its own
	// insert against the pre-existing row and must hand back the winner.
	racing := &missOnceAssignments{InMemoryAssignmentRepository: kit.Assignments}
	svc := NewAssignmentService(kit.Experiments, racing, kit.Events)

	result, err := svc.Assign(ctx, assignRequest(exp, "unit-1"))
	require.NoError(t, err)
	assert.Equal(t, winner.ID, result.Assignment.ID)
	assert.Equal(t, exp.Variants[1].Key, result.Variant.Key)
}

// missOnceAssignments reports no active assignment exactly once, then
// delegates. It reproduces the window between read and insert.
type missOnceAssignments struct {
	*testkit.InMemoryAssignmentRepository
	missed bool
}

func (r *missOnceAssignments) ActiveFor(ctx context.Context, experimentID core.ExperimentID, unitID core.UnitID) (*experiment.Assignment, error) {
	if !r.missed {
		r.missed = true
		return nil, core.ErrAssignmentNotFound
	}
	return r.InMemoryAssignmentRepository.ActiveFor(ctx, experimentID, unitID)
}

func TestAssignmentService_ThompsonFavorsConvertingArm(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit()
	svc := newAssignmentService(kit)

	exp := testkit.ExperimentFixture(experiment.StatusRunning)
	exp.Policy = experiment.PolicyThompson
	require.NoError(t, kit.Experiments.Create(ctx, exp))

	now := core.Now()
	events := make([]*experiment.Event, 0, 2200)
	for i := 0; i < 1000; i++ {
		events = append(events, testkit.ExposureEvent(exp, exp.Variants[0].ID, fmt.Sprintf("c%d", i), now))
		events = append(events, testkit.ExposureEvent(exp, exp.Variants[1].ID, fmt.Sprintf("t%d", i), now))
	}
	for i := 0; i < 10; i++ {
		events = append(events, testkit.ConversionEvent(exp, exp.Variants[0].ID, fmt.Sprintf("c%d", i), now))
	}
	for i := 0; i < 500; i++ {
		events = append(events, testkit.ConversionEvent(exp, exp.Variants[1].ID, fmt.Sprintf("t%d", i), now))
	}
	_, err := kit.Events.AppendBatch(ctx, events)
	require.NoError(t, err)

	treatment := 0
	const units = 50
	for i := 0; i < units; i++ {
		result, err := svc.Assign(ctx, assignRequest(exp, fmt.Sprintf("fresh-%d", i)))
		require.NoError(t, err)
		if result.Variant.Key == "treatment" {
			treatment++
		}
	}
	assert.GreaterOrEqual(t, treatment, units*9/10,
		"posterior Beta(501,501) vs Beta(11,991) should pick treatment almost always, got %d/%d", treatment, units)
}

func TestAssignmentService_ThompsonRedrawIsStable(t *testing.T) {
	ctx := context.Background()
	exp := testkit.ExperimentFixture(experiment.StatusRunning)
	exp.Policy = experiment.PolicyThompson

	// No events at all: both arms sit at Beta(1,1), so the pick is decided
	// purely by the seeded source. Same store contents, same pick.
	for _, unit := range []string{"unit-a", "unit-b"} {
		kitA, kitB := testkit.NewTestKit(), testkit.NewTestKit()
		require.NoError(t, kitA.Experiments.Create(ctx, exp))
		require.NoError(t, kitB.Experiments.Create(ctx, exp))

		a, err := newAssignmentService(kitA).Assign(ctx, assignRequest(exp, unit))
		require.NoError(t, err)
		b, err := newAssignmentService(kitB).Assign(ctx, assignRequest(exp, unit))
		require.NoError(t, err)
		assert.Equal(t, a.Variant.Key, b.Variant.Key, "unit %s", unit)
	}
}

func TestAssignmentService_NoVariantsIsMisconfigured(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit()
	svc := newAssignmentService(kit)

	exp := testkit.ExperimentFixture(experiment.StatusRunning)
	exp.Variants = nil
	require.NoError(t, kit.Experiments.Create(ctx, exp))

	_, err := svc.Assign(ctx, assignRequest(exp, "unit-1"))
	assert.ErrorIs(t, err, core.ErrMisconfigured)
}

func TestAssignmentService_StickyThroughRampChange(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit()
	svc := newAssignmentService(kit)
	exp := seedExperiment(t, kit, experiment.StatusRunning)

	first, err := svc.Assign(ctx, assignRequest(exp, "unit-1"))
	require.NoError(t, err)

	// Shrinking the ramp afterwards must not move units that already hold
	// an assignment.
	stored, err := kit.Experiments.Get(ctx, exp.ID)
	require.NoError(t, err)
	stored.RampPct = 0
	require.NoError(t, kit.Experiments.Update(ctx, stored))

	second, err := svc.Assign(ctx, assignRequest(exp, "unit-1"))
	require.NoError(t, err)
	assert.Equal(t, first.Variant.Key, second.Variant.Key)
	assert.Equal(t, first.Assignment.ID, second.Assignment.ID)
}
