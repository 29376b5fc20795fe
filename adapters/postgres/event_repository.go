package postgres

import (
	"context"
	"database/sql"
	"time"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
	"gosplit/models"
	"gosplit/ports"

	"github.com/jmoiron/sqlx"
)

// eventRow mirrors the events table for sqlx scanning.
type eventRow struct {
	ID           string          `db:"id"`
	ExperimentID string          `db:"experiment_id"`
	UnitID       string          `db:"unit_id"`
	VariantID    sql.NullString  `db:"variant_id"`
	EventType    string          `db:"event_type"`
	MetricName   *string         `db:"metric_name"`
	Period       string          `db:"period"`
	Value        sql.NullFloat64 `db:"value"`
	Context      models.JSONBMap `db:"context"`
	ObservedAt   time.Time       `db:"observed_at"`
}

// EventRepositoryImpl implements EventRepository for PostgreSQL
type EventRepositoryImpl struct {
	db *sqlx.DB
}

// NewEventRepository creates a new PostgreSQL event repository
func NewEventRepository(db *sqlx.DB) ports.EventRepository {
	return &EventRepositoryImpl{db: db}
}

// Append writes one event
func (r *EventRepositoryImpl) Append(ctx context.Context, event *experiment.Event) error {
	_, err := r.db.ExecContext(ctx, insertEventSQL, insertEventArgs(event)...)
	return err
}

// AppendBatch writes events in one transaction, all-or-nothing
func (r *EventRepositoryImpl) AppendBatch(ctx context.Context, events []*experiment.Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	for _, event := range events {
		if _, err := tx.ExecContext(ctx, insertEventSQL, insertEventArgs(event)...); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(events), nil
}

// CountsFor aggregates the experiment's exposure and conversion history.
// The experiment-wide totals cover post-period events regardless of variant
// attribution; the per-variant tallies split by period.
func (r *EventRepositoryImpl) CountsFor(ctx context.Context, experimentID core.ExperimentID) (*experiment.CountAggregate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT COALESCE(variant_id::text, '') AS variant_id,
		       period,
		       COUNT(*) FILTER (WHERE event_type = 'exposure') AS exposures,
		       COUNT(*) FILTER (WHERE event_type = 'conversion') AS conversions
		FROM events
		WHERE experiment_id = $1 AND event_type IN ('exposure', 'conversion')
		GROUP BY 1, 2
	`, experimentID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	agg := &experiment.CountAggregate{
		ByVariant: make(map[core.VariantID]experiment.VariantCounts),
	}
	for rows.Next() {
		var variantID, period string
		var exposures, conversions int64
		if err := rows.Scan(&variantID, &period, &exposures, &conversions); err != nil {
			return nil, err
		}

		if period == string(experiment.PeriodPost) {
			agg.Exposures += exposures
			agg.Conversions += conversions
		}
		if variantID == "" {
			continue
		}

		counts := agg.ByVariant[core.VariantID(variantID)]
		if period == string(experiment.PeriodPre) {
			counts.PreExposures += exposures
			counts.PreConversions += conversions
		} else {
			counts.PostExposures += exposures
			counts.PostConversions += conversions
		}
		agg.ByVariant[core.VariantID(variantID)] = counts
	}

	return agg, rows.Err()
}

// ListFor returns all events of the experiment ordered by observed_at
// ascending
func (r *EventRepositoryImpl) ListFor(ctx context.Context, experimentID core.ExperimentID) ([]*experiment.Event, error) {
	var rows []eventRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, experiment_id, unit_id, variant_id, event_type,
		       metric_name, period, value, context, observed_at
		FROM events
		WHERE experiment_id = $1
		ORDER BY observed_at ASC, created_at ASC
	`, experimentID.String())
	if err != nil {
		return nil, err
	}

	events := make([]*experiment.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, eventFromRow(row))
	}
	return events, nil
}

const insertEventSQL = `
	INSERT INTO events (id, experiment_id, unit_id, variant_id, event_type,
	                    metric_name, period, value, context, observed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

func insertEventArgs(event *experiment.Event) []any {
	var variantID any
	if event.VariantID != nil {
		variantID = event.VariantID.String()
	}
	return []any{
		event.ID.String(), event.ExperimentID.String(), event.UnitID.String(),
		variantID, event.Kind.String(), event.MetricName,
		event.Period.String(), event.Value, models.JSONBMap(event.Context),
		event.ObservedAt.Time(),
	}
}

func eventFromRow(row eventRow) *experiment.Event {
	var variantID *core.VariantID
	if row.VariantID.Valid && row.VariantID.String != "" {
		id := core.VariantID(row.VariantID.String)
		variantID = &id
	}

	var value float64
	if row.Value.Valid {
		value = row.Value.Float64
	}

	event := &experiment.Event{
		ID:           core.EventID(row.ID),
		ExperimentID: core.ExperimentID(row.ExperimentID),
		UnitID:       core.UnitID(row.UnitID),
		VariantID:    variantID,
		Kind:         experiment.Kind(row.EventType),
		MetricName:   row.MetricName,
		Period:       experiment.Period(row.Period),
		Value:        value,
		Context:      map[string]any(row.Context),
		ObservedAt:   core.NewTimestamp(row.ObservedAt),
	}
	return event
}
