package models

import (
	"gosplit/domain/experiment"
)

// AssignmentRequest is the POST /assignments payload.
type AssignmentRequest struct {
	ExperimentID string         `json:"experiment_id"`
	UnitID       string         `json:"unit_id"`
	Attributes   map[string]any `json:"attributes"`
}

// AssignmentResponse is the sticky binding handed back to callers. The
// variant's config payload rides along so SDKs need no second fetch.
type AssignmentResponse struct {
	ExperimentID      string         `json:"experiment_id"`
	AssignmentID      string         `json:"assignment_id"`
	UnitID            string         `json:"unit_id"`
	VariantKey        string         `json:"variant_key"`
	ConfigJSON        map[string]any `json:"config_json"`
	ExperimentVersion int            `json:"experiment_version"`
}

// NewAssignmentResponse converts an assignment plus its resolved variant.
func NewAssignmentResponse(a *experiment.Assignment, variant experiment.Variant, version int) AssignmentResponse {
	config := variant.Config
	if config == nil {
		config = map[string]any{}
	}
	return AssignmentResponse{
		ExperimentID:      a.ExperimentID.String(),
		AssignmentID:      a.ID.String(),
		UnitID:            a.UnitID.String(),
		VariantKey:        variant.Key,
		ConfigJSON:        config,
		ExperimentVersion: version,
	}
}
