package migration

import (
	"context"
	"fmt"

	"gosplit/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createExperimentsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create experiments table")
	}

	if err := r.createVariantsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create variants table")
	}

	if err := r.createAssignmentsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create assignments table")
	}

	if err := r.createEventsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create events table")
	}

	if err := r.createGuardrailObservationsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create guardrail_observations table")
	}

	if err := r.createDecisionAuditsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create decision_audits table")
	}

	if err := r.createReportSnapshotsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create report_snapshots table")
	}

	if err := r.createUniquenessConstraints(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create uniqueness constraints")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

func (r *MigrationRunner) createExperimentsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS experiments (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			name VARCHAR(200) NOT NULL,
			description TEXT NOT NULL,
			hypothesis TEXT NOT NULL,
			owner_team VARCHAR(120) NOT NULL DEFAULT 'unknown-team',
			created_by VARCHAR(120) NOT NULL DEFAULT 'system',
			unit_type VARCHAR(50) NOT NULL DEFAULT 'user_id',
			tags JSONB NOT NULL DEFAULT '[]',
			targeting_rules JSONB NOT NULL DEFAULT '{}',
			ramp_pct INTEGER NOT NULL DEFAULT 100,
			version INTEGER NOT NULL DEFAULT 1,
			assignment_salt VARCHAR(64) NOT NULL,
			assignment_policy VARCHAR(30) NOT NULL DEFAULT 'weighted',
			mde DOUBLE PRECISION NOT NULL DEFAULT 0.05,
			baseline_rate DOUBLE PRECISION NOT NULL DEFAULT 0.1,
			alpha DOUBLE PRECISION NOT NULL DEFAULT 0.05,
			power DOUBLE PRECISION NOT NULL DEFAULT 0.8,
			sample_size_required BIGINT NOT NULL DEFAULT 2,
			status VARCHAR(20) NOT NULL DEFAULT 'DRAFT',
			outcome VARCHAR(40),
			started_at TIMESTAMP WITH TIME ZONE,
			ended_at TIMESTAMP WITH TIME ZONE,
			termination_reason TEXT,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createVariantsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS variants (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			experiment_id UUID NOT NULL REFERENCES experiments(id) ON DELETE CASCADE,
			key VARCHAR(80) NOT NULL,
			name VARCHAR(120) NOT NULL DEFAULT '',
			weight DOUBLE PRECISION NOT NULL,
			config JSONB NOT NULL DEFAULT '{}',
			ordinal INTEGER NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			UNIQUE (experiment_id, key)
		)
	`)
	return err
}

func (r *MigrationRunner) createAssignmentsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS assignments (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			experiment_id UUID NOT NULL REFERENCES experiments(id) ON DELETE CASCADE,
			unit_id VARCHAR(200) NOT NULL,
			variant_id UUID NOT NULL REFERENCES variants(id) ON DELETE CASCADE,
			assigned_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			released_at TIMESTAMP WITH TIME ZONE
		)
	`)
	return err
}

func (r *MigrationRunner) createEventsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS events (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			experiment_id UUID NOT NULL REFERENCES experiments(id) ON DELETE CASCADE,
			unit_id VARCHAR(200) NOT NULL,
			variant_id UUID REFERENCES variants(id) ON DELETE SET NULL,
			event_type VARCHAR(20) NOT NULL,
			metric_name VARCHAR(120),
			period VARCHAR(10) NOT NULL DEFAULT 'post',
			value DOUBLE PRECISION,
			context JSONB NOT NULL DEFAULT '{}',
			observed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createGuardrailObservationsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS guardrail_observations (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			experiment_id UUID NOT NULL REFERENCES experiments(id) ON DELETE CASCADE,
			metric_name VARCHAR(120) NOT NULL,
			threshold_value DOUBLE PRECISION NOT NULL,
			direction VARCHAR(10) NOT NULL,
			observed_value DOUBLE PRECISION NOT NULL,
			status VARCHAR(10) NOT NULL,
			observed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createDecisionAuditsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS decision_audits (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			experiment_id UUID NOT NULL REFERENCES experiments(id) ON DELETE CASCADE,
			from_status VARCHAR(20) NOT NULL,
			to_status VARCHAR(20) NOT NULL,
			reason TEXT,
			actor VARCHAR(120) NOT NULL,
			source VARCHAR(10) NOT NULL DEFAULT 'manual',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createReportSnapshotsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS report_snapshots (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			experiment_id UUID NOT NULL REFERENCES experiments(id) ON DELETE CASCADE,
			document JSONB NOT NULL,
			checksum VARCHAR(64) NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

// createUniquenessConstraints installs the constraints assignment stickiness
// depends on. Unlike the plain indexes these must not be skipped.
func (r *MigrationRunner) createUniquenessConstraints(ctx context.Context, db *sqlx.DB) error {
	// One live assignment per (experiment, unit). Released rows stay for
	// history and do not block re-assignment.
	_, err := db.ExecContext(ctx, `
		CREATE UNIQUE INDEX IF NOT EXISTS uq_assignments_active
		ON assignments (experiment_id, unit_id)
		WHERE released_at IS NULL
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		// Experiments indexes
		"CREATE INDEX IF NOT EXISTS idx_experiments_status ON experiments(status)",
		"CREATE INDEX IF NOT EXISTS idx_experiments_created_at ON experiments(created_at DESC)",

		// Variants indexes
		"CREATE INDEX IF NOT EXISTS idx_variants_experiment ON variants(experiment_id, ordinal)",

		// Assignments indexes
		"CREATE INDEX IF NOT EXISTS idx_assignments_experiment ON assignments(experiment_id)",
		"CREATE INDEX IF NOT EXISTS idx_assignments_unit ON assignments(unit_id)",

		// Events indexes
		"CREATE INDEX IF NOT EXISTS idx_events_experiment_observed ON events(experiment_id, observed_at)",
		"CREATE INDEX IF NOT EXISTS idx_events_experiment_type ON events(experiment_id, event_type)",
		"CREATE INDEX IF NOT EXISTS idx_events_variant ON events(variant_id)",

		// Guardrail observations indexes
		"CREATE INDEX IF NOT EXISTS idx_guardrails_experiment_observed ON guardrail_observations(experiment_id, observed_at DESC)",

		// Decision audit indexes
		"CREATE INDEX IF NOT EXISTS idx_audits_experiment_created ON decision_audits(experiment_id, created_at DESC)",

		// Report snapshot indexes
		"CREATE INDEX IF NOT EXISTS idx_snapshots_experiment_created ON report_snapshots(experiment_id, created_at DESC)",
	}

	for _, idxSQL := range indexes {
		if _, err := db.ExecContext(ctx, idxSQL); err != nil {
			// Log but don't fail on index creation errors
			fmt.Printf("Warning: failed to create index: %v\n", err)
		}
	}

	return nil
}
