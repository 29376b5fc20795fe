package ports

import (
	"context"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
)

// AssignmentRepository defines the interface for assignment data operations
type AssignmentRepository interface {
	// ActiveFor returns the unreleased assignment for (experiment, unit).
	// Returns a not-found error when no active row exists.
	ActiveFor(ctx context.Context, experimentID core.ExperimentID, unitID core.UnitID) (*experiment.Assignment, error)

	// Create inserts a new active assignment. When a concurrent writer won
	// the partial-unique race it returns a conflict error; callers re-read
	// the winner's row.
	Create(ctx context.Context, assignment *experiment.Assignment) error

	// ReleaseAll releases every active assignment of the experiment and
	// returns how many rows it touched.
	ReleaseAll(ctx context.Context, experimentID core.ExperimentID, at core.Timestamp) (int64, error)
}
