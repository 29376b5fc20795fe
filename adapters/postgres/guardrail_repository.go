package postgres

import (
	"context"
	"time"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
	"gosplit/ports"

	"github.com/jmoiron/sqlx"
)

// guardrailRow mirrors the guardrail_observations table for sqlx scanning.
type guardrailRow struct {
	ID             string    `db:"id"`
	ExperimentID   string    `db:"experiment_id"`
	MetricName     string    `db:"metric_name"`
	ThresholdValue float64   `db:"threshold_value"`
	Direction      string    `db:"direction"`
	ObservedValue  float64   `db:"observed_value"`
	Status         string    `db:"status"`
	ObservedAt     time.Time `db:"observed_at"`
}

// GuardrailRepositoryImpl implements GuardrailRepository for PostgreSQL
type GuardrailRepositoryImpl struct {
	db *sqlx.DB
}

// NewGuardrailRepository creates a new PostgreSQL guardrail repository
func NewGuardrailRepository(db *sqlx.DB) ports.GuardrailRepository {
	return &GuardrailRepositoryImpl{db: db}
}

// Append writes one classified observation
func (r *GuardrailRepositoryImpl) Append(ctx context.Context, observation *experiment.GuardrailObservation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO guardrail_observations (id, experiment_id, metric_name, threshold_value, direction, observed_value, status, observed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, observation.ID.String(), observation.ExperimentID.String(),
		observation.Name, observation.Threshold, observation.Direction.String(),
		observation.Value, observation.Status.String(), observation.ObservedAt.Time())
	return err
}

// ListFor returns the experiment's observations ordered by observed_at
// descending
func (r *GuardrailRepositoryImpl) ListFor(ctx context.Context, experimentID core.ExperimentID) ([]experiment.GuardrailObservation, error) {
	var rows []guardrailRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, experiment_id, metric_name, threshold_value, direction, observed_value, status, observed_at
		FROM guardrail_observations
		WHERE experiment_id = $1
		ORDER BY observed_at DESC
	`, experimentID.String())
	if err != nil {
		return nil, err
	}

	observations := make([]experiment.GuardrailObservation, 0, len(rows))
	for _, row := range rows {
		observations = append(observations, experiment.GuardrailObservation{
			ID:           core.GuardrailID(row.ID),
			ExperimentID: core.ExperimentID(row.ExperimentID),
			Name:         row.MetricName,
			Value:        row.ObservedValue,
			Threshold:    row.ThresholdValue,
			Direction:    experiment.GuardrailDirection(row.Direction),
			Status:       experiment.GuardrailStatus(row.Status),
			ObservedAt:   core.NewTimestamp(row.ObservedAt),
		})
	}
	return observations, nil
}
