package app

import (
	"context"
	"errors"
	"fmt"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
	"gosplit/domain/stats"
	"gosplit/models"
	"gosplit/ports"
)

// AssignmentService binds units to variants. Bindings are sticky: once a
// unit holds an active assignment it keeps it until the experiment stops,
// regardless of later targeting or ramp changes.
type AssignmentService struct {
	experiments ports.ExperimentRepository
	assignments ports.AssignmentRepository
	events      ports.EventRepository
}

// AssignmentResult pairs the stored assignment with its resolved variant and
// the experiment version the caller saw.
type AssignmentResult struct {
	Assignment *experiment.Assignment
	Variant    experiment.Variant
	Version    int
}

// NewAssignmentService creates an assignment service
func NewAssignmentService(experiments ports.ExperimentRepository, assignments ports.AssignmentRepository, events ports.EventRepository) *AssignmentService {
	return &AssignmentService{
		experiments: experiments,
		assignments: assignments,
		events:      events,
	}
}

// Assign resolves the variant for (experiment, unit). Units outside the
// targeting rules or outside the ramp still get an assignment, pinned to
// control. A lost insert race re-reads and returns the winner's row.
func (s *AssignmentService) Assign(ctx context.Context, req models.AssignmentRequest) (*AssignmentResult, error) {
	experimentID, err := core.ParseExperimentID(req.ExperimentID)
	if err != nil {
		return nil, err
	}
	unitID, err := core.ParseUnitID(req.UnitID)
	if err != nil {
		return nil, err
	}

	exp, err := s.experiments.Get(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if exp.Status != experiment.StatusRunning {
		return nil, core.NewInvalidStateError(exp.Status.String())
	}

	if existing, err := s.assignments.ActiveFor(ctx, experimentID, unitID); err == nil {
		return s.resolve(exp, existing)
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("failed to read active assignment: %w", err)
	}

	chosen, err := s.selectVariant(ctx, exp, unitID, req.Attributes)
	if err != nil {
		return nil, err
	}

	assignment := &experiment.Assignment{
		ID:           core.AssignmentID(core.NewID()),
		ExperimentID: experimentID,
		UnitID:       unitID,
		VariantID:    chosen.ID,
		AssignedAt:   core.Now(),
	}

	if err := s.assignments.Create(ctx, assignment); err != nil {
		if errors.Is(err, core.ErrAlreadyAssigned) {
			winner, readErr := s.assignments.ActiveFor(ctx, experimentID, unitID)
			if readErr != nil {
				return nil, fmt.Errorf("failed to read winning assignment: %w", readErr)
			}
			return s.resolve(exp, winner)
		}
		return nil, fmt.Errorf("failed to create assignment: %w", err)
	}

	return &AssignmentResult{Assignment: assignment, Variant: chosen, Version: exp.Version}, nil
}

// selectVariant runs the admission and selection pipeline: control by
// default, then (targeting ∧ ramp) gates entry into weighted bucketing or
// Thompson sampling.
func (s *AssignmentService) selectVariant(ctx context.Context, exp *experiment.Experiment, unitID core.UnitID, attributes map[string]any) (experiment.Variant, error) {
	control, ok := exp.ControlVariant()
	if !ok {
		return experiment.Variant{}, core.ErrMisconfigured
	}

	if !exp.Targeting.Matches(attributes) || exp.RampPct <= 0 {
		return control, nil
	}

	rampBucket := stats.UnitBucket(exp.ID.String(), unitID.String(), exp.AssignmentSalt, experiment.NamespaceRamp)
	if rampBucket*100 >= float64(exp.RampPct) {
		return control, nil
	}

	if exp.Policy == experiment.PolicyThompson {
		return s.thompsonPick(ctx, exp, unitID)
	}

	b := stats.UnitBucket(exp.ID.String(), unitID.String(), exp.AssignmentSalt, experiment.NamespaceVariant)
	chosen, _ := exp.ChooseWeighted(b)
	return chosen, nil
}

// thompsonPick draws one Beta sample per variant from the current posteriors
// and picks the argmax. The source is seeded from (experiment, unit) so the
// same unit re-draws identically until the posteriors move.
func (s *AssignmentService) thompsonPick(ctx context.Context, exp *experiment.Experiment, unitID core.UnitID) (experiment.Variant, error) {
	agg, err := s.events.CountsFor(ctx, exp.ID)
	if err != nil {
		return experiment.Variant{}, fmt.Errorf("failed to aggregate events for thompson sampling: %w", err)
	}

	posteriors := make([]stats.Posterior, 0, len(exp.Variants))
	for _, v := range exp.Variants {
		counts := agg.ByVariant[v.ID]
		posteriors = append(posteriors, stats.NewPosterior(counts.PostExposures, counts.PostConversions))
	}

	src := stats.NewSeededSource(exp.ID.String(), unitID.String())
	return exp.Variants[stats.SampleArgmax(posteriors, src)], nil
}

// resolve looks the assignment's variant back up on the experiment.
func (s *AssignmentService) resolve(exp *experiment.Experiment, assignment *experiment.Assignment) (*AssignmentResult, error) {
	variant, ok := exp.VariantByID(assignment.VariantID)
	if !ok {
		return nil, fmt.Errorf("assignment %s references unknown variant %s", assignment.ID, assignment.VariantID)
	}
	return &AssignmentResult{Assignment: assignment, Variant: variant, Version: exp.Version}, nil
}
