package models

import (
	"gosplit/domain/core"
	"gosplit/domain/experiment"
)

// GuardrailCreate is the POST /metrics/guardrails payload.
type GuardrailCreate struct {
	ExperimentID   string  `json:"experiment_id"`
	Name           string  `json:"name"`
	Value          float64 `json:"value"`
	ThresholdValue float64 `json:"threshold_value"`
	Direction      string  `json:"direction"`
}

// GuardrailResponse is the wire form of a classified observation.
type GuardrailResponse struct {
	ID             string         `json:"id"`
	ExperimentID   string         `json:"experiment_id"`
	Name           string         `json:"name"`
	Value          float64        `json:"value"`
	ThresholdValue float64        `json:"threshold_value"`
	Direction      string         `json:"direction"`
	Status         string         `json:"status"`
	ObservedAt     core.Timestamp `json:"observed_at"`
}

// NewGuardrailResponse converts a domain observation into its wire form.
func NewGuardrailResponse(obs experiment.GuardrailObservation) GuardrailResponse {
	return GuardrailResponse{
		ID:             obs.ID.String(),
		ExperimentID:   obs.ExperimentID.String(),
		Name:           obs.Name,
		Value:          obs.Value,
		ThresholdValue: obs.Threshold,
		Direction:      obs.Direction.String(),
		Status:         obs.Status.String(),
		ObservedAt:     obs.ObservedAt,
	}
}

// NewGuardrailResponses converts a list, preserving order.
func NewGuardrailResponses(observations []experiment.GuardrailObservation) []GuardrailResponse {
	out := make([]GuardrailResponse, 0, len(observations))
	for _, obs := range observations {
		out = append(out, NewGuardrailResponse(obs))
	}
	return out
}
