package ports

import (
	"context"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
)

// EventRepository defines the interface for event data operations
type EventRepository interface {
	// Append writes one event.
	Append(ctx context.Context, event *experiment.Event) error

	// AppendBatch writes events in one transaction, all-or-nothing, and
	// returns the number written.
	AppendBatch(ctx context.Context, events []*experiment.Event) (int, error)

	// CountsFor aggregates the experiment's event history into the totals
	// and per-variant tallies the report builder consumes.
	CountsFor(ctx context.Context, experimentID core.ExperimentID) (*experiment.CountAggregate, error)

	// ListFor returns all events of the experiment ordered by observed_at
	// ascending.
	ListFor(ctx context.Context, experimentID core.ExperimentID) ([]*experiment.Event, error)
}
