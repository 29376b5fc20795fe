package ports

import (
	"context"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
)

// AuditRepository defines the interface for decision audit data operations
type AuditRepository interface {
	// Append writes one decision audit row.
	Append(ctx context.Context, audit *experiment.DecisionAudit) error

	// ListFor returns the experiment's audits, newest first.
	ListFor(ctx context.Context, experimentID core.ExperimentID) ([]experiment.DecisionAudit, error)
}
