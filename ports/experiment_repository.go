package ports

import (
	"context"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
)

// TransitionEffects carries the side effects a lifecycle transition wants
// committed atomically with the experiment row itself.
type TransitionEffects struct {
	// Audit, when non-nil, is appended in the same transaction.
	Audit *experiment.DecisionAudit
	// ReleaseAssignments releases every active assignment of the
	// experiment in the same transaction.
	ReleaseAssignments bool
	// ReplaceVariants, when true, replaces the experiment's variant set
	// with exp.Variants in the same transaction.
	ReplaceVariants bool
}

// ExperimentRepository defines the interface for experiment data operations
type ExperimentRepository interface {
	// Create persists a new experiment together with its variants.
	Create(ctx context.Context, exp *experiment.Experiment) error

	// Get loads an experiment with its variants sorted by ordinal.
	Get(ctx context.Context, id core.ExperimentID) (*experiment.Experiment, error)

	// List returns all experiments, newest first, each with variants.
	List(ctx context.Context) ([]*experiment.Experiment, error)

	// ListByStatus returns experiments in the given status, newest first.
	ListByStatus(ctx context.Context, status experiment.Status) ([]*experiment.Experiment, error)

	// Update persists mutated experiment fields. It never touches variants.
	Update(ctx context.Context, exp *experiment.Experiment) error

	// UpdateWithVariants persists the experiment row and atomically replaces
	// its variant set.
	UpdateWithVariants(ctx context.Context, exp *experiment.Experiment) error

	// Transition loads the experiment under a row lock, applies fn to it,
	// and commits the mutated row plus any requested effects atomically.
	// fn runs at most once; its error aborts the transaction unchanged.
	Transition(ctx context.Context, id core.ExperimentID,
		fn func(exp *experiment.Experiment) (*TransitionEffects, error)) (*experiment.Experiment, error)

	// Summary counts experiments by status and stopped ones by outcome.
	Summary(ctx context.Context) (experiment.ExecutiveSummary, error)
}
