package experiment

import "gosplit/domain/core"

// AuditSource distinguishes operator decisions from report-driven ones.
type AuditSource string

const (
	AuditSourceAuto   AuditSource = "auto"
	AuditSourceManual AuditSource = "manual"
)

func (s AuditSource) String() string { return string(s) }

// DecisionAudit is one append-only record of a status change. Every
// transition that changes status writes exactly one.
type DecisionAudit struct {
	ID             core.AuditID
	ExperimentID   core.ExperimentID
	PreviousStatus Status
	NewStatus      Status
	Reason         *string
	Source         AuditSource
	Actor          string
	CreatedAt      core.Timestamp
}
