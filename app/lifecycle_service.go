package app

import (
	"context"
	"fmt"
	"strings"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
	"gosplit/domain/stats"
	"gosplit/models"
	"gosplit/ports"
)

// defaultStopReason is recorded when a terminate request carries no reason.
const defaultStopReason = "Stopped manually"

// autoTransitionActor owns report-driven status changes in the audit trail.
const autoTransitionActor = "system"

// LifecycleService owns experiment creation and every status transition.
// All transitions run through the repository's Transition hook, so each one
// holds the experiment row exclusively while it mutates.
type LifecycleService struct {
	experiments ports.ExperimentRepository
	audits      ports.AuditRepository
}

// NewLifecycleService creates a lifecycle service
func NewLifecycleService(experiments ports.ExperimentRepository, audits ports.AuditRepository) *LifecycleService {
	return &LifecycleService{
		experiments: experiments,
		audits:      audits,
	}
}

// Create validates the payload, applies creation defaults, and persists the
// experiment in DRAFT at version 1.
func (s *LifecycleService) Create(ctx context.Context, req models.ExperimentCreate) (*experiment.Experiment, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	policy, err := experiment.ParseAssignmentPolicy(req.AssignmentPolicy)
	if err != nil {
		return nil, err
	}
	if err := experiment.ValidateStatParams(*req.MDE, *req.BaselineRate, *req.Alpha, *req.Power); err != nil {
		return nil, err
	}
	if err := experiment.ValidateRamp(req.RampPct); err != nil {
		return nil, err
	}

	now := core.Now()
	id := core.ExperimentID(core.NewID())

	variants, err := buildVariants(id, req.Variants, now)
	if err != nil {
		return nil, err
	}

	required := stats.SampleSize(*req.BaselineRate, *req.MDE, *req.Alpha, *req.Power)
	if required < 2 {
		required = 2
	}

	exp := &experiment.Experiment{
		ID:                 id,
		Name:               req.Name,
		Description:        *req.Description,
		Hypothesis:         *req.Hypothesis,
		OwnerTeam:          req.OwnerTeam,
		CreatedBy:          req.CreatedBy,
		UnitType:           req.UnitType,
		Tags:               req.Tags,
		Targeting:          experiment.ParseRules(req.Targeting),
		RampPct:            req.RampPct,
		Version:            1,
		AssignmentSalt:     core.NewSalt(),
		Policy:             policy,
		MDE:                *req.MDE,
		BaselineRate:       *req.BaselineRate,
		Alpha:              *req.Alpha,
		Power:              *req.Power,
		SampleSizeRequired: required,
		Status:             experiment.StatusDraft,
		Outcome:            experiment.OutcomeNone,
		CreatedAt:          now,
		UpdatedAt:          now,
		Variants:           variants,
	}

	if err := s.experiments.Create(ctx, exp); err != nil {
		return nil, fmt.Errorf("failed to create experiment: %w", err)
	}
	return exp, nil
}

// Get loads one experiment.
func (s *LifecycleService) Get(ctx context.Context, id core.ExperimentID) (*experiment.Experiment, error) {
	return s.experiments.Get(ctx, id)
}

// List returns experiments newest first, optionally filtered by status. The
// filter accepts the legacy status vocabulary.
func (s *LifecycleService) List(ctx context.Context, rawStatus string) ([]*experiment.Experiment, error) {
	if strings.TrimSpace(rawStatus) == "" {
		return s.experiments.List(ctx)
	}
	status, _, err := experiment.ParseStatus(rawStatus)
	if err != nil {
		return nil, err
	}
	return s.experiments.ListByStatus(ctx, status)
}

// Launch moves a DRAFT or PAUSED experiment to RUNNING. The optional ramp
// override is applied first; the final ramp must be positive.
func (s *LifecycleService) Launch(ctx context.Context, id core.ExperimentID, action models.LifecycleAction) (*experiment.Experiment, error) {
	return s.experiments.Transition(ctx, id, func(exp *experiment.Experiment) (*ports.TransitionEffects, error) {
		if exp.Status != experiment.StatusDraft && exp.Status != experiment.StatusPaused {
			return nil, core.NewConflictError(exp.Status.String(), experiment.StatusRunning.String())
		}

		if action.RampPct != nil {
			if err := experiment.ValidateRamp(*action.RampPct); err != nil {
				return nil, err
			}
			exp.RampPct = *action.RampPct
		}
		if exp.RampPct <= 0 {
			return nil, fmt.Errorf("%w: ramp_pct is %d", core.ErrRampNotPositive, exp.RampPct)
		}

		now := core.Now()
		previous := exp.Status
		exp.Status = experiment.StatusRunning
		exp.Outcome = experiment.OutcomeNone
		if exp.StartedAt == nil {
			exp.StartedAt = &now
		}
		exp.EndedAt = nil
		exp.TerminationReason = nil
		exp.Version++

		return &ports.TransitionEffects{
			Audit: newAudit(exp.ID, previous, exp.Status, action.Reason, experiment.AuditSourceManual, action.ActorOrDefault(), now),
		}, nil
	})
}

// Pause moves a RUNNING experiment to PAUSED.
func (s *LifecycleService) Pause(ctx context.Context, id core.ExperimentID, action models.LifecycleAction) (*experiment.Experiment, error) {
	return s.experiments.Transition(ctx, id, func(exp *experiment.Experiment) (*ports.TransitionEffects, error) {
		if exp.Status != experiment.StatusRunning {
			return nil, core.NewConflictError(exp.Status.String(), experiment.StatusPaused.String())
		}

		now := core.Now()
		previous := exp.Status
		exp.Status = experiment.StatusPaused
		exp.Version++

		return &ports.TransitionEffects{
			Audit: newAudit(exp.ID, previous, exp.Status, action.Reason, experiment.AuditSourceManual, action.ActorOrDefault(), now),
		}, nil
	})
}

// Stop terminates an experiment: records the reason, zeroes the ramp, and
// releases every active assignment. Stopping an already stopped experiment
// returns it unchanged.
func (s *LifecycleService) Stop(ctx context.Context, id core.ExperimentID, action models.LifecycleAction) (*experiment.Experiment, error) {
	return s.experiments.Transition(ctx, id, func(exp *experiment.Experiment) (*ports.TransitionEffects, error) {
		if exp.Status == experiment.StatusStopped {
			return nil, nil
		}

		reason := defaultStopReason
		if action.Reason != nil && strings.TrimSpace(*action.Reason) != "" {
			reason = *action.Reason
		}

		now := core.Now()
		previous := exp.Status
		exp.Status = experiment.StatusStopped
		exp.Outcome = experiment.OutcomeTerminated
		exp.EndedAt = &now
		exp.TerminationReason = &reason
		exp.RampPct = 0
		exp.Version++

		return &ports.TransitionEffects{
			Audit:              newAudit(exp.ID, previous, exp.Status, &reason, experiment.AuditSourceManual, action.ActorOrDefault(), now),
			ReleaseAssignments: true,
		}, nil
	})
}

// Decide forces the experiment to the requested status. The status accepts
// the legacy outcome-flavored vocabulary; "passed" lands on STOPPED with
// outcome passed. Already being at the target is a no-op.
func (s *LifecycleService) Decide(ctx context.Context, id core.ExperimentID, req models.DecisionRequest) (*experiment.Experiment, error) {
	target, flavor, err := experiment.ParseStatus(req.Status)
	if err != nil {
		return nil, err
	}

	return s.experiments.Transition(ctx, id, func(exp *experiment.Experiment) (*ports.TransitionEffects, error) {
		atTarget := exp.Status == target &&
			(flavor == experiment.OutcomeNone || exp.Outcome == flavor)
		if atTarget {
			return nil, nil
		}

		now := core.Now()
		previous := exp.Status
		exp.Status = target
		exp.Version++

		switch target {
		case experiment.StatusRunning:
			exp.Outcome = experiment.OutcomeNone
			if exp.StartedAt == nil {
				exp.StartedAt = &now
			}
			exp.EndedAt = nil
			exp.TerminationReason = nil
		case experiment.StatusStopped:
			exp.Outcome = flavor
			if exp.Outcome == experiment.OutcomeNone {
				exp.Outcome = experiment.OutcomeTerminated
			}
			exp.EndedAt = &now
			exp.TerminationReason = req.Reason
		default:
			exp.Outcome = experiment.OutcomeNone
			exp.EndedAt = &now
		}

		effects := &ports.TransitionEffects{
			Audit:              newAudit(exp.ID, previous, exp.Status, req.Reason, experiment.AuditSourceManual, req.ActorOrDefault(), now),
			ReleaseAssignments: target == experiment.StatusStopped,
		}
		return effects, nil
	})
}

// AutoTransition applies a terminal report recommendation to a RUNNING
// experiment. Anything else leaves the experiment untouched. The second
// return reports whether a transition happened.
func (s *LifecycleService) AutoTransition(ctx context.Context, id core.ExperimentID, rec experiment.Recommendation) (*experiment.Experiment, bool, error) {
	outcome := experiment.OutcomeForRecommendation(rec)
	if outcome == experiment.OutcomeNone {
		return nil, false, nil
	}

	changed := false
	exp, err := s.experiments.Transition(ctx, id, func(exp *experiment.Experiment) (*ports.TransitionEffects, error) {
		if exp.Status != experiment.StatusRunning {
			return nil, nil
		}

		now := core.Now()
		reason := fmt.Sprintf("Auto transition from recommendation=%s", rec)
		previous := exp.Status
		exp.Status = experiment.StatusStopped
		exp.Outcome = outcome
		exp.EndedAt = &now
		exp.TerminationReason = &reason
		exp.Version++
		changed = true

		return &ports.TransitionEffects{
			Audit: newAudit(exp.ID, previous, exp.Status, &reason, experiment.AuditSourceAuto, autoTransitionActor, now),
		}, nil
	})
	if err != nil {
		return nil, false, err
	}
	return exp, changed, nil
}

// Patch applies the requested field mutations. Variant replacement is only
// legal while the experiment is still in DRAFT; every successful patch bumps
// the version by exactly one.
func (s *LifecycleService) Patch(ctx context.Context, id core.ExperimentID, patch models.ExperimentPatch) (*experiment.Experiment, error) {
	if patch.Empty() {
		return s.experiments.Get(ctx, id)
	}

	return s.experiments.Transition(ctx, id, func(exp *experiment.Experiment) (*ports.TransitionEffects, error) {
		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if len(name) < 3 || len(name) > 200 {
				return nil, core.NewValidationError("name", "must be between 3 and 200 characters")
			}
			exp.Name = name
		}
		if patch.Description != nil {
			exp.Description = *patch.Description
		}
		if patch.OwnerTeam != nil {
			owner := strings.TrimSpace(*patch.OwnerTeam)
			if owner == "" {
				return nil, core.NewValidationError("owner_team", "must not be blank")
			}
			exp.OwnerTeam = owner
		}
		if patch.Tags != nil {
			exp.Tags = patch.Tags
		}
		if patch.Targeting != nil {
			exp.Targeting = experiment.ParseRules(patch.Targeting)
		}
		if patch.RampPct != nil {
			if err := experiment.ValidateRamp(*patch.RampPct); err != nil {
				return nil, err
			}
			exp.RampPct = *patch.RampPct
		}

		effects := &ports.TransitionEffects{}
		if patch.Variants != nil {
			if exp.Status != experiment.StatusDraft {
				return nil, fmt.Errorf("%w: variants can only change in DRAFT, status is %s",
					core.ErrInvalidState, exp.Status)
			}
			variants, err := buildVariants(exp.ID, patch.Variants, core.Now())
			if err != nil {
				return nil, err
			}
			exp.Variants = variants
			effects.ReplaceVariants = true
		}

		exp.Version++
		return effects, nil
	})
}

// DecisionHistory returns the experiment's audit trail, newest first.
func (s *LifecycleService) DecisionHistory(ctx context.Context, id core.ExperimentID) ([]experiment.DecisionAudit, error) {
	if _, err := s.experiments.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.audits.ListFor(ctx, id)
}

// buildVariants materializes requested variants with fresh identifiers and
// insertion ordinals, then checks the variant invariants.
func buildVariants(experimentID core.ExperimentID, requested []models.VariantCreate, now core.Timestamp) ([]experiment.Variant, error) {
	variants := make([]experiment.Variant, 0, len(requested))
	for i, v := range requested {
		config := v.Config
		if config == nil {
			config = map[string]any{}
		}
		name := v.Name
		if name == "" {
			name = v.Key
		}
		variants = append(variants, experiment.Variant{
			ID:           core.VariantID(core.NewID()),
			ExperimentID: experimentID,
			Key:          strings.TrimSpace(v.Key),
			Name:         name,
			Weight:       v.Weight,
			Config:       config,
			Ordinal:      i,
			CreatedAt:    now,
		})
	}
	if err := experiment.ValidateVariants(variants); err != nil {
		return nil, err
	}
	return variants, nil
}

func newAudit(experimentID core.ExperimentID, from, to experiment.Status, reason *string,
	source experiment.AuditSource, actor string, at core.Timestamp) *experiment.DecisionAudit {
	return &experiment.DecisionAudit{
		ID:             core.AuditID(core.NewID()),
		ExperimentID:   experimentID,
		PreviousStatus: from,
		NewStatus:      to,
		Reason:         reason,
		Source:         source,
		Actor:          actor,
		CreatedAt:      at,
	}
}
