package models

import (
	"gosplit/domain/core"
	"gosplit/domain/experiment"
)

// EventCreate is the POST /events payload.
type EventCreate struct {
	ExperimentID string          `json:"experiment_id"`
	UnitID       string          `json:"unit_id"`
	VariantID    *string         `json:"variant_id"`
	EventType    string          `json:"event_type"`
	MetricName   *string         `json:"metric_name"`
	Period       string          `json:"period"`
	Value        *float64        `json:"value"`
	ContextJSON  map[string]any  `json:"context_json"`
	ObservedAt   *core.Timestamp `json:"observed_at"`
}

// ExposureIn is one exposure row for POST /events/exposure, singly or as a
// batch element. Variant is addressed by key, not id.
type ExposureIn struct {
	ExperimentID string          `json:"experiment_id"`
	UnitID       string          `json:"unit_id"`
	VariantKey   string          `json:"variant_key"`
	TS           *core.Timestamp `json:"ts"`
	Context      map[string]any  `json:"context"`
}

// MetricIn is one metric row for POST /events/metric.
type MetricIn struct {
	ExperimentID string          `json:"experiment_id"`
	UnitID       string          `json:"unit_id"`
	VariantKey   string          `json:"variant_key"`
	MetricName   string          `json:"metric_name"`
	Value        float64         `json:"value"`
	TS           *core.Timestamp `json:"ts"`
	Context      map[string]any  `json:"context"`
}

// BatchIngestResponse reports how many rows a batch wrote.
type BatchIngestResponse struct {
	Ingested int `json:"ingested"`
}

// EventResponse is the wire form of a stored event.
type EventResponse struct {
	ID           string         `json:"id"`
	ExperimentID string         `json:"experiment_id"`
	UnitID       string         `json:"unit_id"`
	VariantID    *string        `json:"variant_id"`
	EventType    string         `json:"event_type"`
	MetricName   *string        `json:"metric_name"`
	Period       string         `json:"period"`
	Value        float64        `json:"value"`
	ContextJSON  map[string]any `json:"context_json"`
	ObservedAt   core.Timestamp `json:"observed_at"`
}

// NewEventResponse converts a domain event into its wire form.
func NewEventResponse(ev *experiment.Event) EventResponse {
	var variantID *string
	if ev.VariantID != nil {
		s := ev.VariantID.String()
		variantID = &s
	}
	context := ev.Context
	if context == nil {
		context = map[string]any{}
	}
	return EventResponse{
		ID:           ev.ID.String(),
		ExperimentID: ev.ExperimentID.String(),
		UnitID:       ev.UnitID.String(),
		VariantID:    variantID,
		EventType:    ev.Kind.String(),
		MetricName:   ev.MetricName,
		Period:       ev.Period.String(),
		Value:        ev.Value,
		ContextJSON:  context,
		ObservedAt:   ev.ObservedAt,
	}
}
