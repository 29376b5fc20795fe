package ports

import (
	"context"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
)

// GuardrailRepository defines the interface for guardrail observation data
// operations
type GuardrailRepository interface {
	// Append writes one classified observation.
	Append(ctx context.Context, observation *experiment.GuardrailObservation) error

	// ListFor returns the experiment's observations ordered by observed_at
	// descending.
	ListFor(ctx context.Context, experimentID core.ExperimentID) ([]experiment.GuardrailObservation, error)
}
