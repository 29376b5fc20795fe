package testkit

import (
	"gosplit/domain/core"
	"gosplit/domain/experiment"
)

// TestKit bundles in-memory implementations of every repository port so
// service tests run against the full persistence surface without a database.
type TestKit struct {
	Experiments *InMemoryExperimentRepository
	Assignments *InMemoryAssignmentRepository
	Events      *InMemoryEventRepository
	Guardrails  *InMemoryGuardrailRepository
	Audits      *InMemoryAuditRepository
	Snapshots   *InMemorySnapshotRepository
}

// NewTestKit creates a fully wired kit. The experiment repository shares the
// audit and assignment stores so transition effects land where tests can see
// them.
func NewTestKit() *TestKit {
	audits := NewInMemoryAuditRepository()
	assignments := NewInMemoryAssignmentRepository()
	return &TestKit{
		Experiments: NewInMemoryExperimentRepository(audits, assignments),
		Assignments: assignments,
		Events:      NewInMemoryEventRepository(),
		Guardrails:  NewInMemoryGuardrailRepository(),
		Audits:      audits,
		Snapshots:   NewInMemorySnapshotRepository(),
	}
}

// ExperimentFixture builds a two-arm experiment in the given status with
// sane statistical parameters. Callers mutate the returned value before
// seeding it through the repository.
func ExperimentFixture(status experiment.Status) *experiment.Experiment {
	now := core.Now()
	id := core.ExperimentID(core.NewID())

	exp := &experiment.Experiment{
		ID:                 id,
		Name:               "checkout-button-color",
		Description:        "Test whether the green button lifts checkout conversion",
		Hypothesis:         "Test whether the green button lifts checkout conversion",
		OwnerTeam:          "growth",
		CreatedBy:          "system",
		UnitType:           "user_id",
		Tags:               []string{"checkout"},
		Targeting:          experiment.ParseRules(nil),
		RampPct:            100,
		Version:            1,
		AssignmentSalt:     "fixture-salt",
		Policy:             experiment.PolicyWeighted,
		MDE:                0.05,
		BaselineRate:       0.1,
		Alpha:              0.05,
		Power:              0.8,
		SampleSizeRequired: 1000,
		Status:             status,
		Outcome:            experiment.OutcomeNone,
		CreatedAt:          now,
		UpdatedAt:          now,
		Variants: []experiment.Variant{
			{
				ID:           core.VariantID(core.NewID()),
				ExperimentID: id,
				Key:          "control",
				Name:         "Control",
				Weight:       0.5,
				Config:       map[string]any{"color": "blue"},
				Ordinal:      0,
				CreatedAt:    now,
			},
			{
				ID:           core.VariantID(core.NewID()),
				ExperimentID: id,
				Key:          "treatment",
				Name:         "Treatment",
				Weight:       0.5,
				Config:       map[string]any{"color": "green"},
				Ordinal:      1,
				CreatedAt:    now,
			},
		},
	}

	if status == experiment.StatusRunning || status == experiment.StatusPaused || status == experiment.StatusStopped {
		started := now
		exp.StartedAt = &started
	}
	if status == experiment.StatusStopped {
		ended := now
		exp.EndedAt = &ended
	}
	return exp
}

// ExposureEvent builds a post-period exposure attributed to a variant.
func ExposureEvent(exp *experiment.Experiment, variantID core.VariantID, unit string, at core.Timestamp) *experiment.Event {
	return &experiment.Event{
		ID:           core.EventID(core.NewID()),
		ExperimentID: exp.ID,
		UnitID:       core.UnitID(unit),
		VariantID:    &variantID,
		Kind:         experiment.KindExposure,
		Period:       experiment.PeriodPost,
		Context:      map[string]any{},
		ObservedAt:   at,
	}
}

// ConversionEvent builds a post-period conversion attributed to a variant.
func ConversionEvent(exp *experiment.Experiment, variantID core.VariantID, unit string, at core.Timestamp) *experiment.Event {
	return &experiment.Event{
		ID:           core.EventID(core.NewID()),
		ExperimentID: exp.ID,
		UnitID:       core.UnitID(unit),
		VariantID:    &variantID,
		Kind:         experiment.KindConversion,
		Period:       experiment.PeriodPost,
		Context:      map[string]any{},
		ObservedAt:   at,
	}
}

// MetricEvent builds a named metric observation.
func MetricEvent(exp *experiment.Experiment, variantID core.VariantID, unit, metric string, value float64, at core.Timestamp) *experiment.Event {
	return &experiment.Event{
		ID:           core.EventID(core.NewID()),
		ExperimentID: exp.ID,
		UnitID:       core.UnitID(unit),
		VariantID:    &variantID,
		Kind:         experiment.KindMetric,
		MetricName:   &metric,
		Period:       experiment.PeriodPost,
		Value:        value,
		Context:      map[string]any{},
		ObservedAt:   at,
	}
}
