package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
	"gosplit/models"
	"gosplit/ports"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const experimentColumns = `
	id, name, description, hypothesis, owner_team, created_by, unit_type,
	tags, targeting_rules, ramp_pct, version, assignment_salt,
	assignment_policy, mde, baseline_rate, alpha, power,
	sample_size_required, status, outcome, started_at, ended_at,
	termination_reason, created_at, updated_at`

const variantColumns = `
	id, experiment_id, key, name, weight, config, ordinal, created_at`

// experimentRow mirrors the experiments table for sqlx scanning.
type experimentRow struct {
	ID                 string              `db:"id"`
	Name               string              `db:"name"`
	Description        string              `db:"description"`
	Hypothesis         string              `db:"hypothesis"`
	OwnerTeam          string              `db:"owner_team"`
	CreatedBy          string              `db:"created_by"`
	UnitType           string              `db:"unit_type"`
	Tags               models.JSONBStrings `db:"tags"`
	TargetingRules     models.JSONBMap     `db:"targeting_rules"`
	RampPct            int                 `db:"ramp_pct"`
	Version            int                 `db:"version"`
	AssignmentSalt     string              `db:"assignment_salt"`
	AssignmentPolicy   string              `db:"assignment_policy"`
	MDE                float64             `db:"mde"`
	BaselineRate       float64             `db:"baseline_rate"`
	Alpha              float64             `db:"alpha"`
	Power              float64             `db:"power"`
	SampleSizeRequired int64               `db:"sample_size_required"`
	Status             string              `db:"status"`
	Outcome            sql.NullString      `db:"outcome"`
	StartedAt          *time.Time          `db:"started_at"`
	EndedAt            *time.Time          `db:"ended_at"`
	TerminationReason  *string             `db:"termination_reason"`
	CreatedAt          time.Time           `db:"created_at"`
	UpdatedAt          time.Time           `db:"updated_at"`
}

// variantRow mirrors the variants table for sqlx scanning.
type variantRow struct {
	ID           string          `db:"id"`
	ExperimentID string          `db:"experiment_id"`
	Key          string          `db:"key"`
	Name         string          `db:"name"`
	Weight       float64         `db:"weight"`
	Config       models.JSONBMap `db:"config"`
	Ordinal      int             `db:"ordinal"`
	CreatedAt    time.Time       `db:"created_at"`
}

// ExperimentRepositoryImpl implements ExperimentRepository for PostgreSQL
type ExperimentRepositoryImpl struct {
	db *sqlx.DB
}

// NewExperimentRepository creates a new PostgreSQL experiment repository
func NewExperimentRepository(db *sqlx.DB) ports.ExperimentRepository {
	return &ExperimentRepositoryImpl{db: db}
}

// Create persists a new experiment together with its variants
func (r *ExperimentRepositoryImpl) Create(ctx context.Context, exp *experiment.Experiment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertExperiment(ctx, tx, exp); err != nil {
		return err
	}
	for i := range exp.Variants {
		if err := insertVariantTx(ctx, tx, &exp.Variants[i]); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Get loads an experiment with its variants sorted by ordinal
func (r *ExperimentRepositoryImpl) Get(ctx context.Context, id core.ExperimentID) (*experiment.Experiment, error) {
	var row experimentRow
	err := r.db.GetContext(ctx, &row, `
		SELECT `+experimentColumns+`
		FROM experiments
		WHERE id = $1
	`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NewNotFoundError("experiment", id.String())
	}
	if err != nil {
		return nil, err
	}

	var variants []variantRow
	err = r.db.SelectContext(ctx, &variants, `
		SELECT `+variantColumns+`
		FROM variants
		WHERE experiment_id = $1
		ORDER BY ordinal
	`, id.String())
	if err != nil {
		return nil, err
	}

	return experimentFromRow(row, variants)
}

// List returns all experiments, newest first, each with variants
func (r *ExperimentRepositoryImpl) List(ctx context.Context) ([]*experiment.Experiment, error) {
	var rows []experimentRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+experimentColumns+`
		FROM experiments
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	return r.attachVariants(ctx, rows)
}

// ListByStatus returns experiments in the given status, newest first. Rows
// persisted by older deployments may still carry the legacy status
// vocabulary, so the filter matches every alias of the canonical status.
func (r *ExperimentRepositoryImpl) ListByStatus(ctx context.Context, status experiment.Status) ([]*experiment.Experiment, error) {
	var rows []experimentRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+experimentColumns+`
		FROM experiments
		WHERE status = ANY($1)
		ORDER BY created_at DESC
	`, pq.Array(statusAliases(status)))
	if err != nil {
		return nil, err
	}
	return r.attachVariants(ctx, rows)
}

// Update persists mutated experiment fields. It never touches variants
func (r *ExperimentRepositoryImpl) Update(ctx context.Context, exp *experiment.Experiment) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE experiments
		SET name = $2, description = $3, hypothesis = $4, owner_team = $5,
		    unit_type = $6, tags = $7, targeting_rules = $8, ramp_pct = $9,
		    version = $10, assignment_policy = $11, mde = $12,
		    baseline_rate = $13, alpha = $14, power = $15,
		    sample_size_required = $16, status = $17, outcome = $18,
		    started_at = $19, ended_at = $20, termination_reason = $21,
		    updated_at = NOW()
		WHERE id = $1
	`, updateArgs(exp)...)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.NewNotFoundError("experiment", exp.ID.String())
	}
	return nil
}

// UpdateWithVariants persists the experiment row and atomically replaces its
// variant set
func (r *ExperimentRepositoryImpl) UpdateWithVariants(ctx context.Context, exp *experiment.Experiment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE experiments
		SET name = $2, description = $3, hypothesis = $4, owner_team = $5,
		    unit_type = $6, tags = $7, targeting_rules = $8, ramp_pct = $9,
		    version = $10, assignment_policy = $11, mde = $12,
		    baseline_rate = $13, alpha = $14, power = $15,
		    sample_size_required = $16, status = $17, outcome = $18,
		    started_at = $19, ended_at = $20, termination_reason = $21,
		    updated_at = NOW()
		WHERE id = $1
	`, updateArgs(exp)...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.NewNotFoundError("experiment", exp.ID.String())
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM variants WHERE experiment_id = $1`, exp.ID.String()); err != nil {
		return err
	}
	for i := range exp.Variants {
		if err := insertVariantTx(ctx, tx, &exp.Variants[i]); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Transition loads the experiment under a row lock, applies fn, and commits
// the mutated row plus any requested effects atomically
func (r *ExperimentRepositoryImpl) Transition(ctx context.Context, id core.ExperimentID,
	fn func(exp *experiment.Experiment) (*ports.TransitionEffects, error)) (*experiment.Experiment, error) {

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var row experimentRow
	err = tx.GetContext(ctx, &row, `
		SELECT `+experimentColumns+`
		FROM experiments
		WHERE id = $1
		FOR UPDATE
	`, id.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NewNotFoundError("experiment", id.String())
	}
	if err != nil {
		return nil, err
	}

	var variants []variantRow
	err = tx.SelectContext(ctx, &variants, `
		SELECT `+variantColumns+`
		FROM variants
		WHERE experiment_id = $1
		ORDER BY ordinal
	`, id.String())
	if err != nil {
		return nil, err
	}

	exp, err := experimentFromRow(row, variants)
	if err != nil {
		return nil, err
	}

	effects, err := fn(exp)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE experiments
		SET name = $2, description = $3, hypothesis = $4, owner_team = $5,
		    unit_type = $6, tags = $7, targeting_rules = $8, ramp_pct = $9,
		    version = $10, assignment_policy = $11, mde = $12,
		    baseline_rate = $13, alpha = $14, power = $15,
		    sample_size_required = $16, status = $17, outcome = $18,
		    started_at = $19, ended_at = $20, termination_reason = $21,
		    updated_at = NOW()
		WHERE id = $1
	`, updateArgs(exp)...); err != nil {
		return nil, err
	}

	if effects != nil && effects.ReplaceVariants {
		if _, err := tx.ExecContext(ctx, `DELETE FROM variants WHERE experiment_id = $1`, id.String()); err != nil {
			return nil, err
		}
		for i := range exp.Variants {
			if err := insertVariantTx(ctx, tx, &exp.Variants[i]); err != nil {
				return nil, err
			}
		}
	}

	if effects != nil && effects.Audit != nil {
		audit := effects.Audit
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO decision_audits (id, experiment_id, from_status, to_status, reason, actor, source, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, audit.ID.String(), audit.ExperimentID.String(), audit.PreviousStatus.String(),
			audit.NewStatus.String(), audit.Reason, audit.Actor, audit.Source.String(),
			audit.CreatedAt.Time()); err != nil {
			return nil, err
		}
	}

	if effects != nil && effects.ReleaseAssignments {
		if _, err := tx.ExecContext(ctx, `
			UPDATE assignments
			SET released_at = NOW()
			WHERE experiment_id = $1 AND released_at IS NULL
		`, id.String()); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return exp, nil
}

// Summary counts experiments by status and stopped ones by outcome
func (r *ExperimentRepositoryImpl) Summary(ctx context.Context) (experiment.ExecutiveSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COALESCE(outcome, ''), COUNT(*)
		FROM experiments
		GROUP BY status, outcome
	`)
	if err != nil {
		return experiment.ExecutiveSummary{}, err
	}
	defer rows.Close()

	var summary experiment.ExecutiveSummary
	for rows.Next() {
		var rawStatus, rawOutcome string
		var count int
		if err := rows.Scan(&rawStatus, &rawOutcome, &count); err != nil {
			return experiment.ExecutiveSummary{}, err
		}

		status, aliasOutcome, err := experiment.ParseStatus(rawStatus)
		if err != nil {
			return experiment.ExecutiveSummary{}, err
		}
		outcome := aliasOutcome
		if rawOutcome != "" {
			if parsed, err := experiment.ParseOutcome(rawOutcome); err == nil && parsed != experiment.OutcomeNone {
				outcome = parsed
			}
		}

		switch status {
		case experiment.StatusDraft:
			summary.Draft += count
		case experiment.StatusRunning:
			summary.Running += count
		case experiment.StatusPaused:
			summary.Paused += count
		case experiment.StatusStopped:
			summary.Stopped += count
			switch outcome {
			case experiment.OutcomePassed:
				summary.Passed += count
			case experiment.OutcomeFailed:
				summary.Failed += count
			case experiment.OutcomeInconclusive:
				summary.Inconclusive += count
			case experiment.OutcomeTerminated:
				summary.TerminatedWithoutCause += count
			}
		}
	}

	return summary, rows.Err()
}

// attachVariants loads the variant sets for a page of experiment rows with
// one query and folds them in by experiment id.
func (r *ExperimentRepositoryImpl) attachVariants(ctx context.Context, rows []experimentRow) ([]*experiment.Experiment, error) {
	if len(rows) == 0 {
		return []*experiment.Experiment{}, nil
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}

	query, args, err := sqlx.In(`
		SELECT `+variantColumns+`
		FROM variants
		WHERE experiment_id IN (?)
		ORDER BY experiment_id, ordinal
	`, ids)
	if err != nil {
		return nil, err
	}

	var variants []variantRow
	if err := r.db.SelectContext(ctx, &variants, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	byExperiment := make(map[string][]variantRow, len(rows))
	for _, v := range variants {
		byExperiment[v.ExperimentID] = append(byExperiment[v.ExperimentID], v)
	}

	experiments := make([]*experiment.Experiment, 0, len(rows))
	for _, row := range rows {
		exp, err := experimentFromRow(row, byExperiment[row.ID])
		if err != nil {
			return nil, err
		}
		experiments = append(experiments, exp)
	}
	return experiments, nil
}

func insertExperiment(ctx context.Context, tx *sqlx.Tx, exp *experiment.Experiment) error {
	var outcome any
	if exp.Outcome != experiment.OutcomeNone && exp.Outcome != "" {
		outcome = exp.Outcome.String()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO experiments (
			id, name, description, hypothesis, owner_team, created_by,
			unit_type, tags, targeting_rules, ramp_pct, version,
			assignment_salt, assignment_policy, mde, baseline_rate, alpha,
			power, sample_size_required, status, outcome, started_at,
			ended_at, termination_reason, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25
		)
	`, exp.ID.String(), exp.Name, exp.Description, exp.Hypothesis, exp.OwnerTeam,
		exp.CreatedBy, exp.UnitType, models.JSONBStrings(exp.Tags),
		models.JSONBMap(exp.Targeting.Raw()), exp.RampPct, exp.Version,
		exp.AssignmentSalt, exp.Policy.String(), exp.MDE, exp.BaselineRate,
		exp.Alpha, exp.Power, int64(exp.SampleSizeRequired), exp.Status.String(),
		outcome, timePtr(exp.StartedAt), timePtr(exp.EndedAt),
		exp.TerminationReason, exp.CreatedAt.Time(), exp.UpdatedAt.Time())
	return err
}

func insertVariantTx(ctx context.Context, tx *sqlx.Tx, v *experiment.Variant) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO variants (id, experiment_id, key, name, weight, config, ordinal, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, v.ID.String(), v.ExperimentID.String(), v.Key, v.Name, v.Weight,
		models.JSONBMap(v.Config), v.Ordinal, v.CreatedAt.Time())
	return err
}

func updateArgs(exp *experiment.Experiment) []any {
	var outcome any
	if exp.Outcome != experiment.OutcomeNone && exp.Outcome != "" {
		outcome = exp.Outcome.String()
	}
	return []any{
		exp.ID.String(), exp.Name, exp.Description, exp.Hypothesis,
		exp.OwnerTeam, exp.UnitType, models.JSONBStrings(exp.Tags),
		models.JSONBMap(exp.Targeting.Raw()), exp.RampPct, exp.Version,
		exp.Policy.String(), exp.MDE, exp.BaselineRate, exp.Alpha, exp.Power,
		int64(exp.SampleSizeRequired), exp.Status.String(), outcome,
		timePtr(exp.StartedAt), timePtr(exp.EndedAt), exp.TerminationReason,
	}
}

// experimentFromRow converts a scanned row plus its variant rows into the
// domain aggregate. Legacy status strings alias onto the canonical
// vocabulary here, so the rest of the system only ever sees canonical
// statuses.
func experimentFromRow(row experimentRow, variantRows []variantRow) (*experiment.Experiment, error) {
	status, aliasOutcome, err := experiment.ParseStatus(row.Status)
	if err != nil {
		return nil, err
	}
	outcome := aliasOutcome
	if row.Outcome.Valid && row.Outcome.String != "" {
		if parsed, err := experiment.ParseOutcome(row.Outcome.String); err == nil && parsed != experiment.OutcomeNone {
			outcome = parsed
		}
	}

	policy, err := experiment.ParseAssignmentPolicy(row.AssignmentPolicy)
	if err != nil {
		return nil, err
	}

	variants := make([]experiment.Variant, 0, len(variantRows))
	for _, v := range variantRows {
		variants = append(variants, experiment.Variant{
			ID:           core.VariantID(v.ID),
			ExperimentID: core.ExperimentID(v.ExperimentID),
			Key:          v.Key,
			Name:         v.Name,
			Weight:       v.Weight,
			Config:       map[string]any(v.Config),
			Ordinal:      v.Ordinal,
			CreatedAt:    core.NewTimestamp(v.CreatedAt),
		})
	}

	return &experiment.Experiment{
		ID:                 core.ExperimentID(row.ID),
		Name:               row.Name,
		Description:        row.Description,
		Hypothesis:         row.Hypothesis,
		OwnerTeam:          row.OwnerTeam,
		CreatedBy:          row.CreatedBy,
		UnitType:           row.UnitType,
		Tags:               []string(row.Tags),
		Targeting:          experiment.ParseRules(map[string]any(row.TargetingRules)),
		RampPct:            row.RampPct,
		Version:            row.Version,
		AssignmentSalt:     row.AssignmentSalt,
		Policy:             policy,
		MDE:                row.MDE,
		BaselineRate:       row.BaselineRate,
		Alpha:              row.Alpha,
		Power:              row.Power,
		SampleSizeRequired: int(row.SampleSizeRequired),
		Status:             status,
		Outcome:            outcome,
		StartedAt:          timestampPtr(row.StartedAt),
		EndedAt:            timestampPtr(row.EndedAt),
		TerminationReason:  row.TerminationReason,
		CreatedAt:          core.NewTimestamp(row.CreatedAt),
		UpdatedAt:          core.NewTimestamp(row.UpdatedAt),
		Variants:           variants,
	}, nil
}

// statusAliases lists every stored string that parses to the canonical
// status, covering rows written before the vocabulary was consolidated.
func statusAliases(status experiment.Status) []string {
	switch status {
	case experiment.StatusDraft:
		return []string{"DRAFT", "draft"}
	case experiment.StatusRunning:
		return []string{"RUNNING", "running"}
	case experiment.StatusPaused:
		return []string{"PAUSED", "paused"}
	case experiment.StatusStopped:
		return []string{"STOPPED", "stopped", "passed", "failed", "inconclusive", "terminated_without_cause"}
	}
	return []string{status.String()}
}

func timePtr(ts *core.Timestamp) *time.Time {
	if ts == nil {
		return nil
	}
	t := ts.Time()
	return &t
}

func timestampPtr(t *time.Time) *core.Timestamp {
	if t == nil {
		return nil
	}
	ts := core.NewTimestamp(*t)
	return &ts
}
