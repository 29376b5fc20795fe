package app

import (
	"context"
	"fmt"
	"strings"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
	"gosplit/models"
	"gosplit/ports"
)

// GuardrailService records secondary-KPI observations, classified against
// their threshold at write time.
type GuardrailService struct {
	experiments ports.ExperimentRepository
	guardrails  ports.GuardrailRepository
}

// NewGuardrailService creates a guardrail service
func NewGuardrailService(experiments ports.ExperimentRepository, guardrails ports.GuardrailRepository) *GuardrailService {
	return &GuardrailService{
		experiments: experiments,
		guardrails:  guardrails,
	}
}

// Observe classifies and appends one guardrail observation.
func (s *GuardrailService) Observe(ctx context.Context, req models.GuardrailCreate) (*experiment.GuardrailObservation, error) {
	experimentID, err := core.ParseExperimentID(req.ExperimentID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, core.NewValidationError("name", "must not be empty")
	}
	direction, err := experiment.ParseGuardrailDirection(req.Direction)
	if err != nil {
		return nil, err
	}

	if _, err := s.experiments.Get(ctx, experimentID); err != nil {
		return nil, err
	}

	observation := &experiment.GuardrailObservation{
		ID:           core.GuardrailID(core.NewID()),
		ExperimentID: experimentID,
		Name:         req.Name,
		Value:        req.Value,
		Threshold:    req.ThresholdValue,
		Direction:    direction,
		Status:       experiment.ClassifyGuardrail(direction, req.Value, req.ThresholdValue),
		ObservedAt:   core.Now(),
	}

	if err := s.guardrails.Append(ctx, observation); err != nil {
		return nil, fmt.Errorf("failed to append guardrail observation: %w", err)
	}
	return observation, nil
}

// History returns every observation for the experiment, newest first.
func (s *GuardrailService) History(ctx context.Context, id core.ExperimentID) ([]experiment.GuardrailObservation, error) {
	if _, err := s.experiments.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.guardrails.ListFor(ctx, id)
}
