package app

import (
	"context"
	"testing"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
	"gosplit/domain/stats"
	"gosplit/internal/testkit"
	"gosplit/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Shared helpers for the app service tests. Fixtures seed through the
// repository so services see exactly what a database round-trip would show.

func newLifecycleService(kit *testkit.TestKit) *LifecycleService {
	return NewLifecycleService(kit.Experiments, kit.Audits)
}

func seedExperiment(t *testing.T, kit *testkit.TestKit, status experiment.Status) *experiment.Experiment {
	t.Helper()
	exp := testkit.ExperimentFixture(status)
	require.NoError(t, kit.Experiments.Create(context.Background(), exp))
	return exp
}

func strPtr(s string) *string     { return &s }
func intPtr(n int) *int           { return &n }
func floatPtr(v float64) *float64 { return &v }

func twoArms() []models.VariantCreate {
	return []models.VariantCreate{
		{Key: "control", Weight: 0.5},
		{Key: "treatment", Name: "Green button", Weight: 0.5},
	}
}

func TestLifecycleService_CreateAppliesDefaults(t *testing.T) {
	kit := testkit.NewTestKit()
	svc := newLifecycleService(kit)

	exp, err := svc.Create(context.Background(), models.ExperimentCreate{
		Name:       "checkout-button-color",
		Hypothesis: strPtr("Green button lifts checkout conversion"),
		RampPct:    50,
		Variants:   twoArms(),
	})
	require.NoError(t, err)

	assert.Equal(t, experiment.StatusDraft, exp.Status)
	assert.Equal(t, experiment.OutcomeNone, exp.Outcome)
	assert.Equal(t, 1, exp.Version)
	assert.Equal(t, models.DefaultOwnerTeam, exp.OwnerTeam)
	assert.Equal(t, models.DefaultCreatedBy, exp.CreatedBy)
	assert.Equal(t, models.DefaultUnitType, exp.UnitType)
	assert.Equal(t, models.DefaultMDE, exp.MDE)
	assert.Equal(t, models.DefaultBaselineRate, exp.BaselineRate)
	assert.Equal(t, models.DefaultAlpha, exp.Alpha)
	assert.Equal(t, models.DefaultPower, exp.Power)
	assert.Equal(t, experiment.PolicyWeighted, exp.Policy)
	assert.NotEmpty(t, exp.AssignmentSalt)
	assert.Nil(t, exp.StartedAt)

	// Description mirrors the hypothesis when only one side is given.
	assert.Equal(t, "Green button lifts checkout conversion", exp.Description)

	want := stats.SampleSize(models.DefaultBaselineRate, models.DefaultMDE, models.DefaultAlpha, models.DefaultPower)
	assert.Equal(t, want, exp.SampleSizeRequired)

	require.Len(t, exp.Variants, 2)
	assert.Equal(t, 0, exp.Variants[0].Ordinal)
	assert.Equal(t, 1, exp.Variants[1].Ordinal)
	assert.Equal(t, "control", exp.Variants[0].Name, "name defaults to the key")
	assert.Equal(t, "Green button", exp.Variants[1].Name)
	assert.NotEmpty(t, exp.Variants[0].ID)
	assert.NotNil(t, exp.Variants[0].Config)

	stored, err := kit.Experiments.Get(context.Background(), exp.ID)
	require.NoError(t, err)
	assert.Equal(t, exp.ID, stored.ID)
}

func TestLifecycleService_CreateValidation(t *testing.T) {
	kit := testkit.NewTestKit()
	svc := newLifecycleService(kit)

	testCases := []struct {
		name string
		req  models.ExperimentCreate
	}{
		{
			name: "name too short",
			req:  models.ExperimentCreate{Name: "ab", Hypothesis: strPtr("h"), Variants: twoArms()},
		},
		{
			name: "missing description and hypothesis",
			req:  models.ExperimentCreate{Name: "valid name", Variants: twoArms()},
		},
		{
			name: "single variant",
			req: models.ExperimentCreate{
				Name: "valid name", Hypothesis: strPtr("h"),
				Variants: []models.VariantCreate{{Key: "control", Weight: 1.0}},
			},
		},
		{
			name: "weights do not sum to one",
			req: models.ExperimentCreate{
				Name: "valid name", Hypothesis: strPtr("h"),
				Variants: []models.VariantCreate{
					{Key: "control", Weight: 0.5},
					{Key: "treatment", Weight: 0.3},
				},
			},
		},
		{
			name: "duplicate variant keys",
			req: models.ExperimentCreate{
				Name: "valid name", Hypothesis: strPtr("h"),
				Variants: []models.VariantCreate{
					{Key: "control", Weight: 0.5},
					{Key: "control", Weight: 0.5},
				},
			},
		},
		{
			name: "alpha out of range",
			req: models.ExperimentCreate{
				Name: "valid name", Hypothesis: strPtr("h"),
				Alpha: floatPtr(1.5), Variants: twoArms(),
			},
		},
		{
			name: "ramp out of range",
			req: models.ExperimentCreate{
				Name: "valid name", Hypothesis: strPtr("h"),
				RampPct: 120, Variants: twoArms(),
			},
		},
		{
			name: "unknown policy",
			req: models.ExperimentCreate{
				Name: "valid name", Hypothesis: strPtr("h"),
				AssignmentPolicy: "epsilon_greedy", Variants: twoArms(),
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.req)
			assert.ErrorIs(t, err, core.ErrValidation)
		})
	}
}

func TestLifecycleService_LaunchFromDraft(t *testing.T) {
	kit := testkit.NewTestKit()
	svc := newLifecycleService(kit)
	seeded := seedExperiment(t, kit, experiment.StatusDraft)

	exp, err := svc.Launch(context.Background(), seeded.ID, models.LifecycleAction{Actor: "alice"})
	require.NoError(t, err)

	assert.Equal(t, experiment.StatusRunning, exp.Status)
	assert.Equal(t, 2, exp.Version)
	require.NotNil(t, exp.StartedAt)
	assert.Nil(t, exp.EndedAt)

	audits, err := kit.Audits.ListFor(context.Background(), seeded.ID)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, experiment.StatusDraft, audits[0].PreviousStatus)
	assert.Equal(t, experiment.StatusRunning, audits[0].NewStatus)
	assert.Equal(t, experiment.AuditSourceManual, audits[0].Source)
	assert.Equal(t, "alice", audits[0].Actor)
}

func TestLifecycleService_LaunchRequiresPositiveRamp(t *testing.T) {
	kit := testkit.NewTestKit()
	svc := newLifecycleService(kit)

	seeded := testkit.ExperimentFixture(experiment.StatusDraft)
	seeded.RampPct = 0
	require.NoError(t, kit.Experiments.Create(context.Background(), seeded))

	_, err := svc.Launch(context.Background(), seeded.ID, models.LifecycleAction{})
	assert.ErrorIs(t, err, core.ErrRampNotPositive)

	// An override out of 0..100 fails validation before the positivity check.
	_, err = svc.Launch(context.Background(), seeded.ID, models.LifecycleAction{RampPct: intPtr(150)})
	assert.ErrorIs(t, err, core.ErrValidation)

	// A positive override rescues the zero-ramp draft.
	exp, err := svc.Launch(context.Background(), seeded.ID, models.LifecycleAction{RampPct: intPtr(25)})
	require.NoError(t, err)
	assert.Equal(t, experiment.StatusRunning, exp.Status)
	assert.Equal(t, 25, exp.RampPct)
}

func TestLifecycleService_LaunchRejectedStates(t *testing.T) {
	kit := testkit.NewTestKit()
	svc := newLifecycleService(kit)

	running := seedExperiment(t, kit, experiment.StatusRunning)
	_, err := svc.Launch(context.Background(), running.ID, models.LifecycleAction{})
	assert.ErrorIs(t, err, core.ErrConflict, "relaunching a running experiment")

	stopped := seedExperiment(t, kit, experiment.StatusStopped)
	_, err = svc.Launch(context.Background(), stopped.ID, models.LifecycleAction{})
	assert.ErrorIs(t, err, core.ErrConflict, "stopped experiments never restart via launch")
}

func TestLifecycleService_PauseOnlyFromRunning(t *testing.T) {
	kit := testkit.NewTestKit()
	svc := newLifecycleService(kit)

	draft := seedExperiment(t, kit, experiment.StatusDraft)
	_, err := svc.Pause(context.Background(), draft.ID, models.LifecycleAction{})
	assert.ErrorIs(t, err, core.ErrConflict)

	running := seedExperiment(t, kit, experiment.StatusRunning)
	exp, err := svc.Pause(context.Background(), running.ID, models.LifecycleAction{})
	require.NoError(t, err)
	assert.Equal(t, experiment.StatusPaused, exp.Status)
	assert.Equal(t, 2, exp.Version)
}

func TestLifecycleService_FullLifecycleWalk(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit()
	svc := newLifecycleService(kit)
	seeded := seedExperiment(t, kit, experiment.StatusDraft)

	exp, err := svc.Launch(ctx, seeded.ID, models.LifecycleAction{})
	require.NoError(t, err)
	startedAt := exp.StartedAt
	require.NotNil(t, startedAt)

	exp, err = svc.Pause(ctx, seeded.ID, models.LifecycleAction{})
	require.NoError(t, err)
	assert.Equal(t, 3, exp.Version)

	// Relaunching from PAUSED keeps the original start time.
	exp, err = svc.Launch(ctx, seeded.ID, models.LifecycleAction{})
	require.NoError(t, err)
	assert.Equal(t, experiment.StatusRunning, exp.Status)
	assert.Equal(t, 4, exp.Version)
	require.NotNil(t, exp.StartedAt)
	assert.Equal(t, *startedAt, *exp.StartedAt)

	// Seed an active assignment so Stop has something to release.
	require.NoError(t, kit.Assignments.Create(ctx, &experiment.Assignment{
		ID:           core.AssignmentID(core.NewID()),
		ExperimentID: seeded.ID,
		UnitID:       "unit-1",
		VariantID:    seeded.Variants[0].ID,
		AssignedAt:   core.Now(),
	}))

	exp, err = svc.Stop(ctx, seeded.ID, models.LifecycleAction{})
	require.NoError(t, err)
	assert.Equal(t, experiment.StatusStopped, exp.Status)
	assert.Equal(t, experiment.OutcomeTerminated, exp.Outcome)
	assert.Equal(t, 5, exp.Version)
	assert.Equal(t, 0, exp.RampPct)
	require.NotNil(t, exp.EndedAt)
	require.NotNil(t, exp.TerminationReason)
	assert.Equal(t, "Stopped manually", *exp.TerminationReason)
	assert.Equal(t, 0, kit.Assignments.ActiveCount(seeded.ID))

	audits, err := kit.Audits.ListFor(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Len(t, audits, 4, "one audit row per transition")
}

func TestLifecycleService_StopIsIdempotent(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit()
	svc := newLifecycleService(kit)

	seeded := testkit.ExperimentFixture(experiment.StatusStopped)
	seeded.Outcome = experiment.OutcomePassed
	require.NoError(t, kit.Experiments.Create(ctx, seeded))

	exp, err := svc.Stop(ctx, seeded.ID, models.LifecycleAction{Reason: strPtr("again")})
	require.NoError(t, err)

	assert.Equal(t, experiment.StatusStopped, exp.Status)
	assert.Equal(t, experiment.OutcomePassed, exp.Outcome, "repeat stop must not overwrite the outcome")
	assert.Equal(t, seeded.Version, exp.Version)
	assert.Nil(t, exp.TerminationReason)

	audits, err := kit.Audits.ListFor(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Empty(t, audits)
}

func TestLifecycleService_StopRecordsReason(t *testing.T) {
	kit := testkit.NewTestKit()
	svc := newLifecycleService(kit)
	seeded := seedExperiment(t, kit, experiment.StatusRunning)

	exp, err := svc.Stop(context.Background(), seeded.ID, models.LifecycleAction{
		Reason: strPtr("Conversion cratered"),
		Actor:  "bob",
	})
	require.NoError(t, err)
	require.NotNil(t, exp.TerminationReason)
	assert.Equal(t, "Conversion cratered", *exp.TerminationReason)
}

func TestLifecycleService_DecideLegacyVocabulary(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit()
	svc := newLifecycleService(kit)
	seeded := seedExperiment(t, kit, experiment.StatusRunning)

	exp, err := svc.Decide(ctx, seeded.ID, models.DecisionRequest{
		Status: "passed",
		Reason: strPtr("Clear winner"),
	})
	require.NoError(t, err)
	assert.Equal(t, experiment.StatusStopped, exp.Status)
	assert.Equal(t, experiment.OutcomePassed, exp.Outcome)
	require.NotNil(t, exp.EndedAt)
	require.NotNil(t, exp.TerminationReason)
	assert.Equal(t, "Clear winner", *exp.TerminationReason)
	assert.Equal(t, 2, exp.Version)

	// Reopening clears the terminal bookkeeping.
	exp, err = svc.Decide(ctx, seeded.ID, models.DecisionRequest{Status: "running"})
	require.NoError(t, err)
	assert.Equal(t, experiment.StatusRunning, exp.Status)
	assert.Equal(t, experiment.OutcomeNone, exp.Outcome)
	assert.Nil(t, exp.EndedAt)
	assert.Nil(t, exp.TerminationReason)
	assert.Equal(t, 3, exp.Version)

	_, err = svc.Decide(ctx, seeded.ID, models.DecisionRequest{Status: "not-a-status"})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestLifecycleService_DecideNoOpAtTarget(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit()
	svc := newLifecycleService(kit)

	seeded := testkit.ExperimentFixture(experiment.StatusStopped)
	seeded.Outcome = experiment.OutcomePassed
	require.NoError(t, kit.Experiments.Create(ctx, seeded))

	// Plain "stopped" matches any stopped experiment and preserves outcome.
	exp, err := svc.Decide(ctx, seeded.ID, models.DecisionRequest{Status: "stopped"})
	require.NoError(t, err)
	assert.Equal(t, experiment.OutcomePassed, exp.Outcome)
	assert.Equal(t, seeded.Version, exp.Version)

	// An outcome-flavored target that disagrees with the stored outcome is
	// a real transition, not a no-op.
	exp, err = svc.Decide(ctx, seeded.ID, models.DecisionRequest{Status: "failed"})
	require.NoError(t, err)
	assert.Equal(t, experiment.OutcomeFailed, exp.Outcome)
	assert.Equal(t, seeded.Version+1, exp.Version)
}

func TestLifecycleService_AutoTransition(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit()
	svc := newLifecycleService(kit)
	seeded := seedExperiment(t, kit, experiment.StatusRunning)

	// Non-terminal recommendations never touch the experiment.
	_, changed, err := svc.AutoTransition(ctx, seeded.ID, experiment.RecommendationContinue)
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, kit.Assignments.Create(ctx, &experiment.Assignment{
		ID:           core.AssignmentID(core.NewID()),
		ExperimentID: seeded.ID,
		UnitID:       "unit-1",
		VariantID:    seeded.Variants[0].ID,
		AssignedAt:   core.Now(),
	}))

	exp, changed, err := svc.AutoTransition(ctx, seeded.ID, experiment.RecommendationPass)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, experiment.StatusStopped, exp.Status)
	assert.Equal(t, experiment.OutcomePassed, exp.Outcome)
	require.NotNil(t, exp.TerminationReason)
	assert.Equal(t, "Auto transition from recommendation=pass", *exp.TerminationReason)

	// Auto transitions stop the experiment but keep stickiness intact so
	// late-arriving events still attribute.
	assert.Equal(t, 1, kit.Assignments.ActiveCount(seeded.ID))
	assert.Equal(t, seeded.RampPct, exp.RampPct)

	audits, err := kit.Audits.ListFor(ctx, seeded.ID)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, experiment.AuditSourceAuto, audits[0].Source)
	assert.Equal(t, "system", audits[0].Actor)

	// A second terminal recommendation finds the experiment stopped.
	_, changed, err = svc.AutoTransition(ctx, seeded.ID, experiment.RecommendationFail)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestLifecycleService_PatchFields(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit()
	svc := newLifecycleService(kit)
	seeded := seedExperiment(t, kit, experiment.StatusRunning)

	exp, err := svc.Patch(ctx, seeded.ID, models.ExperimentPatch{
		Name:    strPtr("checkout-button-color-v2"),
		RampPct: intPtr(80),
		Tags:    []string{"checkout", "q3"},
	})
	require.NoError(t, err)
	assert.Equal(t, "checkout-button-color-v2", exp.Name)
	assert.Equal(t, 80, exp.RampPct)
	assert.Equal(t, []string{"checkout", "q3"}, exp.Tags)
	assert.Equal(t, 2, exp.Version, "one version bump per patch")
	assert.Equal(t, experiment.StatusRunning, exp.Status)

	_, err = svc.Patch(ctx, seeded.ID, models.ExperimentPatch{Name: strPtr("x")})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = svc.Patch(ctx, seeded.ID, models.ExperimentPatch{OwnerTeam: strPtr("  ")})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = svc.Patch(ctx, seeded.ID, models.ExperimentPatch{RampPct: intPtr(-5)})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestLifecycleService_PatchEmptyIsRead(t *testing.T) {
	kit := testkit.NewTestKit()
	svc := newLifecycleService(kit)
	seeded := seedExperiment(t, kit, experiment.StatusDraft)

	exp, err := svc.Patch(context.Background(), seeded.ID, models.ExperimentPatch{})
	require.NoError(t, err)
	assert.Equal(t, seeded.Version, exp.Version)
}

func TestLifecycleService_PatchVariantsOnlyInDraft(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit()
	svc := newLifecycleService(kit)

	replacement := []models.VariantCreate{
		{Key: "control", Weight: 0.4},
		{Key: "blue", Weight: 0.3},
		{Key: "green", Weight: 0.3},
	}

	running := seedExperiment(t, kit, experiment.StatusRunning)
	_, err := svc.Patch(ctx, running.ID, models.ExperimentPatch{Variants: replacement})
	assert.ErrorIs(t, err, core.ErrInvalidState)

	draft := seedExperiment(t, kit, experiment.StatusDraft)
	exp, err := svc.Patch(ctx, draft.ID, models.ExperimentPatch{Variants: replacement})
	require.NoError(t, err)
	require.Len(t, exp.Variants, 3)
	assert.Equal(t, "blue", exp.Variants[1].Key)
	assert.Equal(t, 2, exp.Variants[2].Ordinal)

	stored, err := kit.Experiments.Get(ctx, draft.ID)
	require.NoError(t, err)
	require.Len(t, stored.Variants, 3, "replacement persists through the repository")
}

func TestLifecycleService_ListFiltersByLegacyStatus(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit()
	svc := newLifecycleService(kit)

	seedExperiment(t, kit, experiment.StatusDraft)
	seedExperiment(t, kit, experiment.StatusRunning)
	stopped := testkit.ExperimentFixture(experiment.StatusStopped)
	stopped.Outcome = experiment.OutcomePassed
	require.NoError(t, kit.Experiments.Create(ctx, stopped))

	all, err := svc.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	running, err := svc.List(ctx, "running")
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, experiment.StatusRunning, running[0].Status)

	// The outcome-flavored legacy value aliases onto STOPPED.
	stoppedList, err := svc.List(ctx, "passed")
	require.NoError(t, err)
	require.Len(t, stoppedList, 1)
	assert.Equal(t, experiment.StatusStopped, stoppedList[0].Status)

	_, err = svc.List(ctx, "bogus")
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestLifecycleService_DecisionHistory(t *testing.T) {
	ctx := context.Background()
	kit := testkit.NewTestKit()
	svc := newLifecycleService(kit)
	seeded := seedExperiment(t, kit, experiment.StatusDraft)

	_, err := svc.Launch(ctx, seeded.ID, models.LifecycleAction{})
	require.NoError(t, err)
	_, err = svc.Stop(ctx, seeded.ID, models.LifecycleAction{})
	require.NoError(t, err)

	history, err := svc.DecisionHistory(ctx, seeded.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, experiment.StatusStopped, history[0].NewStatus, "newest first")
	assert.Equal(t, experiment.StatusRunning, history[1].NewStatus)

	_, err = svc.DecisionHistory(ctx, core.ExperimentID(core.NewID()))
	assert.ErrorIs(t, err, core.ErrNotFound)
}
