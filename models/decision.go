package models

import (
	"strings"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
)

// DecisionRequest is the POST /experiments/{id}/decision payload. Status
// accepts both the canonical vocabulary and the legacy outcome-flavored one.
type DecisionRequest struct {
	Status string  `json:"status"`
	Reason *string `json:"reason"`
	Actor  string  `json:"actor"`
}

// ActorOrDefault falls back to the generic operator identity.
func (r DecisionRequest) ActorOrDefault() string {
	if strings.TrimSpace(r.Actor) == "" {
		return "operator"
	}
	return r.Actor
}

// DecisionAuditResponse is the wire form of one audit row.
type DecisionAuditResponse struct {
	ID             string         `json:"id"`
	ExperimentID   string         `json:"experiment_id"`
	PreviousStatus string         `json:"previous_status"`
	NewStatus      string         `json:"new_status"`
	Reason         *string        `json:"reason"`
	Source         string         `json:"source"`
	Actor          string         `json:"actor"`
	CreatedAt      core.Timestamp `json:"created_at"`
}

// NewDecisionAuditResponse converts a domain audit into its wire form.
func NewDecisionAuditResponse(audit experiment.DecisionAudit) DecisionAuditResponse {
	return DecisionAuditResponse{
		ID:             audit.ID.String(),
		ExperimentID:   audit.ExperimentID.String(),
		PreviousStatus: audit.PreviousStatus.String(),
		NewStatus:      audit.NewStatus.String(),
		Reason:         audit.Reason,
		Source:         audit.Source.String(),
		Actor:          audit.Actor,
		CreatedAt:      audit.CreatedAt,
	}
}

// NewDecisionAuditResponses converts a list, preserving order.
func NewDecisionAuditResponses(audits []experiment.DecisionAudit) []DecisionAuditResponse {
	out := make([]DecisionAuditResponse, 0, len(audits))
	for _, audit := range audits {
		out = append(out, NewDecisionAuditResponse(audit))
	}
	return out
}
