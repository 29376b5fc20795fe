package postgres

import (
	"context"
	"encoding/json"
	"time"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
	"gosplit/ports"

	"github.com/jmoiron/sqlx"
)

// defaultSnapshotLimit caps snapshot history reads when the caller does not
// ask for a specific page size.
const defaultSnapshotLimit = 20

// snapshotRow mirrors the report_snapshots table for sqlx scanning.
type snapshotRow struct {
	ID           string    `db:"id"`
	ExperimentID string    `db:"experiment_id"`
	Document     []byte    `db:"document"`
	Checksum     string    `db:"checksum"`
	CreatedAt    time.Time `db:"created_at"`
}

// SnapshotRepositoryImpl implements SnapshotRepository for PostgreSQL
type SnapshotRepositoryImpl struct {
	db *sqlx.DB
}

// NewSnapshotRepository creates a new PostgreSQL snapshot repository
func NewSnapshotRepository(db *sqlx.DB) ports.SnapshotRepository {
	return &SnapshotRepositoryImpl{db: db}
}

// Append archives a serialized report document
func (r *SnapshotRepositoryImpl) Append(ctx context.Context, experimentID core.ExperimentID, payload []byte, checksum core.ReportChecksum) (*experiment.ReportSnapshot, error) {
	id := core.SnapshotID(core.NewID())
	createdAt := core.Now()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO report_snapshots (id, experiment_id, document, checksum, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id.String(), experimentID.String(), payload, checksum.String(), createdAt.Time())
	if err != nil {
		return nil, err
	}

	return &experiment.ReportSnapshot{
		ID:           id,
		ExperimentID: experimentID,
		Document:     decodeDocument(payload),
		Checksum:     checksum,
		CreatedAt:    createdAt,
	}, nil
}

// ListFor returns up to limit snapshots, most recent first
func (r *SnapshotRepositoryImpl) ListFor(ctx context.Context, experimentID core.ExperimentID, limit int) ([]*experiment.ReportSnapshot, error) {
	if limit <= 0 {
		limit = defaultSnapshotLimit
	}

	var rows []snapshotRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, experiment_id, document, checksum, created_at
		FROM report_snapshots
		WHERE experiment_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, experimentID.String(), limit)
	if err != nil {
		return nil, err
	}

	snapshots := make([]*experiment.ReportSnapshot, 0, len(rows))
	for _, row := range rows {
		snapshots = append(snapshots, &experiment.ReportSnapshot{
			ID:           core.SnapshotID(row.ID),
			ExperimentID: core.ExperimentID(row.ExperimentID),
			Document:     decodeDocument(row.Document),
			Checksum:     core.ReportChecksum(row.Checksum),
			CreatedAt:    core.NewTimestamp(row.CreatedAt),
		})
	}
	return snapshots, nil
}

// decodeDocument parses an archived report payload. Unparseable documents
// degrade to an empty object instead of failing the read.
func decodeDocument(payload []byte) map[string]any {
	doc := make(map[string]any)
	if len(payload) == 0 {
		return doc
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return map[string]any{}
	}
	return doc
}
