package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
	"gosplit/ports"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// assignmentRow mirrors the assignments table for sqlx scanning.
type assignmentRow struct {
	ID           string     `db:"id"`
	ExperimentID string     `db:"experiment_id"`
	UnitID       string     `db:"unit_id"`
	VariantID    string     `db:"variant_id"`
	AssignedAt   time.Time  `db:"assigned_at"`
	ReleasedAt   *time.Time `db:"released_at"`
}

// AssignmentRepositoryImpl implements AssignmentRepository for PostgreSQL
type AssignmentRepositoryImpl struct {
	db *sqlx.DB
}

// NewAssignmentRepository creates a new PostgreSQL assignment repository
func NewAssignmentRepository(db *sqlx.DB) ports.AssignmentRepository {
	return &AssignmentRepositoryImpl{db: db}
}

// ActiveFor returns the unreleased assignment for (experiment, unit)
func (r *AssignmentRepositoryImpl) ActiveFor(ctx context.Context, experimentID core.ExperimentID, unitID core.UnitID) (*experiment.Assignment, error) {
	var row assignmentRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, experiment_id, unit_id, variant_id, assigned_at, released_at
		FROM assignments
		WHERE experiment_id = $1 AND unit_id = $2 AND released_at IS NULL
	`, experimentID.String(), unitID.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: experiment %s unit %s", core.ErrAssignmentNotFound, experimentID, unitID)
	}
	if err != nil {
		return nil, err
	}
	return assignmentFromRow(row), nil
}

// Create inserts a new active assignment. A partial unique index guards one
// active row per (experiment, unit); losing that race surfaces as
// ErrAlreadyAssigned so the caller can re-read the winner's row.
func (r *AssignmentRepositoryImpl) Create(ctx context.Context, assignment *experiment.Assignment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO assignments (id, experiment_id, unit_id, variant_id, assigned_at, released_at)
		VALUES ($1, $2, $3, $4, $5, NULL)
	`, assignment.ID.String(), assignment.ExperimentID.String(),
		assignment.UnitID.String(), assignment.VariantID.String(),
		assignment.AssignedAt.Time())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			return fmt.Errorf("%w: experiment %s unit %s",
				core.ErrAlreadyAssigned, assignment.ExperimentID, assignment.UnitID)
		}
		return err
	}
	return nil
}

// ReleaseAll releases every active assignment of the experiment
func (r *AssignmentRepositoryImpl) ReleaseAll(ctx context.Context, experimentID core.ExperimentID, at core.Timestamp) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE assignments
		SET released_at = $2
		WHERE experiment_id = $1 AND released_at IS NULL
	`, experimentID.String(), at.Time())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func assignmentFromRow(row assignmentRow) *experiment.Assignment {
	return &experiment.Assignment{
		ID:           core.AssignmentID(row.ID),
		ExperimentID: core.ExperimentID(row.ExperimentID),
		UnitID:       core.UnitID(row.UnitID),
		VariantID:    core.VariantID(row.VariantID),
		AssignedAt:   core.NewTimestamp(row.AssignedAt),
		ReleasedAt:   timestampPtr(row.ReleasedAt),
	}
}
