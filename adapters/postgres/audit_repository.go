package postgres

import (
	"context"
	"time"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
	"gosplit/ports"

	"github.com/jmoiron/sqlx"
)

// auditRow mirrors the decision_audits table for sqlx scanning.
type auditRow struct {
	ID           string    `db:"id"`
	ExperimentID string    `db:"experiment_id"`
	FromStatus   string    `db:"from_status"`
	ToStatus     string    `db:"to_status"`
	Reason       *string   `db:"reason"`
	Actor        string    `db:"actor"`
	Source       string    `db:"source"`
	CreatedAt    time.Time `db:"created_at"`
}

// AuditRepositoryImpl implements AuditRepository for PostgreSQL
type AuditRepositoryImpl struct {
	db *sqlx.DB
}

// NewAuditRepository creates a new PostgreSQL audit repository
func NewAuditRepository(db *sqlx.DB) ports.AuditRepository {
	return &AuditRepositoryImpl{db: db}
}

// Append writes one decision audit row
func (r *AuditRepositoryImpl) Append(ctx context.Context, audit *experiment.DecisionAudit) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO decision_audits (id, experiment_id, from_status, to_status, reason, actor, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, audit.ID.String(), audit.ExperimentID.String(),
		audit.PreviousStatus.String(), audit.NewStatus.String(), audit.Reason,
		audit.Actor, audit.Source.String(), audit.CreatedAt.Time())
	return err
}

// ListFor returns the experiment's audits, newest first
func (r *AuditRepositoryImpl) ListFor(ctx context.Context, experimentID core.ExperimentID) ([]experiment.DecisionAudit, error) {
	var rows []auditRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, experiment_id, from_status, to_status, reason, actor, source, created_at
		FROM decision_audits
		WHERE experiment_id = $1
		ORDER BY created_at DESC
	`, experimentID.String())
	if err != nil {
		return nil, err
	}

	audits := make([]experiment.DecisionAudit, 0, len(rows))
	for _, row := range rows {
		fromStatus, _, err := experiment.ParseStatus(row.FromStatus)
		if err != nil {
			return nil, err
		}
		toStatus, _, err := experiment.ParseStatus(row.ToStatus)
		if err != nil {
			return nil, err
		}
		audits = append(audits, experiment.DecisionAudit{
			ID:             core.AuditID(row.ID),
			ExperimentID:   core.ExperimentID(row.ExperimentID),
			PreviousStatus: fromStatus,
			NewStatus:      toStatus,
			Reason:         row.Reason,
			Source:         experiment.AuditSource(row.Source),
			Actor:          row.Actor,
			CreatedAt:      core.NewTimestamp(row.CreatedAt),
		})
	}
	return audits, nil
}
