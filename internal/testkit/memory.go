package testkit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
	"gosplit/ports"
)

// InMemoryExperimentRepository implements ports.ExperimentRepository on a
// map. Transition serializes on the repository mutex, which mirrors the
// per-row lock the SQL implementation takes.
type InMemoryExperimentRepository struct {
	mu          sync.RWMutex
	experiments map[core.ExperimentID]*experiment.Experiment

	audits      *InMemoryAuditRepository
	assignments *InMemoryAssignmentRepository
}

func NewInMemoryExperimentRepository(audits *InMemoryAuditRepository, assignments *InMemoryAssignmentRepository) *InMemoryExperimentRepository {
	return &InMemoryExperimentRepository{
		experiments: make(map[core.ExperimentID]*experiment.Experiment),
		audits:      audits,
		assignments: assignments,
	}
}

func (r *InMemoryExperimentRepository) Create(ctx context.Context, exp *experiment.Experiment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.experiments[exp.ID]; exists {
		return fmt.Errorf("experiment %s already exists", exp.ID)
	}
	r.experiments[exp.ID] = cloneExperiment(exp)
	return nil
}

func (r *InMemoryExperimentRepository) Get(ctx context.Context, id core.ExperimentID) (*experiment.Experiment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exp, ok := r.experiments[id]
	if !ok {
		return nil, core.NewNotFoundError("experiment", id.String())
	}
	return cloneExperiment(exp), nil
}

func (r *InMemoryExperimentRepository) List(ctx context.Context) ([]*experiment.Experiment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*experiment.Experiment, 0, len(r.experiments))
	for _, exp := range r.experiments {
		out = append(out, cloneExperiment(exp))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *InMemoryExperimentRepository) ListByStatus(ctx context.Context, status experiment.Status) ([]*experiment.Experiment, error) {
	all, _ := r.List(ctx)
	out := make([]*experiment.Experiment, 0, len(all))
	for _, exp := range all {
		if exp.Status == status {
			out = append(out, exp)
		}
	}
	return out, nil
}

func (r *InMemoryExperimentRepository) Update(ctx context.Context, exp *experiment.Experiment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.experiments[exp.ID]
	if !ok {
		return core.NewNotFoundError("experiment", exp.ID.String())
	}
	updated := cloneExperiment(exp)
	updated.Variants = existing.Variants
	r.experiments[exp.ID] = updated
	return nil
}

func (r *InMemoryExperimentRepository) UpdateWithVariants(ctx context.Context, exp *experiment.Experiment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.experiments[exp.ID]; !ok {
		return core.NewNotFoundError("experiment", exp.ID.String())
	}
	r.experiments[exp.ID] = cloneExperiment(exp)
	return nil
}

func (r *InMemoryExperimentRepository) Transition(ctx context.Context, id core.ExperimentID,
	fn func(exp *experiment.Experiment) (*ports.TransitionEffects, error)) (*experiment.Experiment, error) {

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.experiments[id]
	if !ok {
		return nil, core.NewNotFoundError("experiment", id.String())
	}

	exp := cloneExperiment(stored)
	effects, err := fn(exp)
	if err != nil {
		return nil, err
	}

	updated := cloneExperiment(exp)
	if effects == nil || !effects.ReplaceVariants {
		updated.Variants = make([]experiment.Variant, len(stored.Variants))
		copy(updated.Variants, stored.Variants)
	}
	r.experiments[id] = updated

	if effects != nil && effects.Audit != nil && r.audits != nil {
		if err := r.audits.Append(ctx, effects.Audit); err != nil {
			return nil, err
		}
	}
	if effects != nil && effects.ReleaseAssignments && r.assignments != nil {
		if _, err := r.assignments.ReleaseAll(ctx, id, core.Now()); err != nil {
			return nil, err
		}
	}

	return exp, nil
}

func (r *InMemoryExperimentRepository) Summary(ctx context.Context) (experiment.ExecutiveSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var summary experiment.ExecutiveSummary
	for _, exp := range r.experiments {
		switch exp.Status {
		case experiment.StatusDraft:
			summary.Draft++
		case experiment.StatusRunning:
			summary.Running++
		case experiment.StatusPaused:
			summary.Paused++
		case experiment.StatusStopped:
			summary.Stopped++
			switch exp.Outcome {
			case experiment.OutcomePassed:
				summary.Passed++
			case experiment.OutcomeFailed:
				summary.Failed++
			case experiment.OutcomeInconclusive:
				summary.Inconclusive++
			case experiment.OutcomeTerminated:
				summary.TerminatedWithoutCause++
			}
		}
	}
	return summary, nil
}

// InMemoryAssignmentRepository implements ports.AssignmentRepository on a
// slice guarded by a mutex.
type InMemoryAssignmentRepository struct {
	mu   sync.Mutex
	rows []*experiment.Assignment
}

func NewInMemoryAssignmentRepository() *InMemoryAssignmentRepository {
	return &InMemoryAssignmentRepository{}
}

func (r *InMemoryAssignmentRepository) ActiveFor(ctx context.Context, experimentID core.ExperimentID, unitID core.UnitID) (*experiment.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.rows {
		if a.ExperimentID == experimentID && a.UnitID == unitID && a.Active() {
			clone := *a
			return &clone, nil
		}
	}
	return nil, fmt.Errorf("%w: experiment %s unit %s", core.ErrAssignmentNotFound, experimentID, unitID)
}

func (r *InMemoryAssignmentRepository) Create(ctx context.Context, assignment *experiment.Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.rows {
		if a.ExperimentID == assignment.ExperimentID && a.UnitID == assignment.UnitID && a.Active() {
			return fmt.Errorf("%w: experiment %s unit %s",
				core.ErrAlreadyAssigned, assignment.ExperimentID, assignment.UnitID)
		}
	}
	clone := *assignment
	r.rows = append(r.rows, &clone)
	return nil
}

func (r *InMemoryAssignmentRepository) ReleaseAll(ctx context.Context, experimentID core.ExperimentID, at core.Timestamp) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var released int64
	for _, a := range r.rows {
		if a.ExperimentID == experimentID && a.Active() {
			ts := at
			a.ReleasedAt = &ts
			released++
		}
	}
	return released, nil
}

// ActiveCount reports live assignments for assertions.
func (r *InMemoryAssignmentRepository) ActiveCount(experimentID core.ExperimentID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.rows {
		if a.ExperimentID == experimentID && a.Active() {
			n++
		}
	}
	return n
}

// InMemoryEventRepository implements ports.EventRepository on a slice.
type InMemoryEventRepository struct {
	mu   sync.Mutex
	rows []*experiment.Event
}

func NewInMemoryEventRepository() *InMemoryEventRepository {
	return &InMemoryEventRepository{}
}

func (r *InMemoryEventRepository) Append(ctx context.Context, event *experiment.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *event
	r.rows = append(r.rows, &clone)
	return nil
}

func (r *InMemoryEventRepository) AppendBatch(ctx context.Context, events []*experiment.Event) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, event := range events {
		clone := *event
		r.rows = append(r.rows, &clone)
	}
	return len(events), nil
}

func (r *InMemoryEventRepository) CountsFor(ctx context.Context, experimentID core.ExperimentID) (*experiment.CountAggregate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agg := &experiment.CountAggregate{
		ByVariant: make(map[core.VariantID]experiment.VariantCounts),
	}
	for _, event := range r.rows {
		if event.ExperimentID != experimentID {
			continue
		}
		if event.Kind != experiment.KindExposure && event.Kind != experiment.KindConversion {
			continue
		}

		if event.Period == experiment.PeriodPost {
			if event.Kind == experiment.KindExposure {
				agg.Exposures++
			} else {
				agg.Conversions++
			}
		}
		if event.VariantID == nil {
			continue
		}

		counts := agg.ByVariant[*event.VariantID]
		switch {
		case event.Period == experiment.PeriodPre && event.Kind == experiment.KindExposure:
			counts.PreExposures++
		case event.Period == experiment.PeriodPre:
			counts.PreConversions++
		case event.Kind == experiment.KindExposure:
			counts.PostExposures++
		default:
			counts.PostConversions++
		}
		agg.ByVariant[*event.VariantID] = counts
	}
	return agg, nil
}

func (r *InMemoryEventRepository) ListFor(ctx context.Context, experimentID core.ExperimentID) ([]*experiment.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*experiment.Event, 0)
	for _, event := range r.rows {
		if event.ExperimentID == experimentID {
			clone := *event
			out = append(out, &clone)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ObservedAt.Before(out[j].ObservedAt) })
	return out, nil
}

// InMemoryGuardrailRepository implements ports.GuardrailRepository.
type InMemoryGuardrailRepository struct {
	mu   sync.Mutex
	rows []experiment.GuardrailObservation
}

func NewInMemoryGuardrailRepository() *InMemoryGuardrailRepository {
	return &InMemoryGuardrailRepository{}
}

func (r *InMemoryGuardrailRepository) Append(ctx context.Context, observation *experiment.GuardrailObservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, *observation)
	return nil
}

func (r *InMemoryGuardrailRepository) ListFor(ctx context.Context, experimentID core.ExperimentID) ([]experiment.GuardrailObservation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]experiment.GuardrailObservation, 0)
	for _, obs := range r.rows {
		if obs.ExperimentID == experimentID {
			out = append(out, obs)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ObservedAt.After(out[j].ObservedAt) })
	return out, nil
}

// InMemoryAuditRepository implements ports.AuditRepository.
type InMemoryAuditRepository struct {
	mu   sync.Mutex
	rows []experiment.DecisionAudit
}

func NewInMemoryAuditRepository() *InMemoryAuditRepository {
	return &InMemoryAuditRepository{}
}

func (r *InMemoryAuditRepository) Append(ctx context.Context, audit *experiment.DecisionAudit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, *audit)
	return nil
}

func (r *InMemoryAuditRepository) ListFor(ctx context.Context, experimentID core.ExperimentID) ([]experiment.DecisionAudit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]experiment.DecisionAudit, 0)
	for _, audit := range r.rows {
		if audit.ExperimentID == experimentID {
			out = append(out, audit)
		}
	}
	// Newest first; appends within one test tick share a timestamp, so the
	// reverse of insertion order keeps them stable.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// InMemorySnapshotRepository implements ports.SnapshotRepository.
type InMemorySnapshotRepository struct {
	mu   sync.Mutex
	rows []*experiment.ReportSnapshot
}

func NewInMemorySnapshotRepository() *InMemorySnapshotRepository {
	return &InMemorySnapshotRepository{}
}

func (r *InMemorySnapshotRepository) Append(ctx context.Context, experimentID core.ExperimentID, payload []byte, checksum core.ReportChecksum) (*experiment.ReportSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc := make(map[string]any)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &doc); err != nil {
			doc = map[string]any{}
		}
	}

	snapshot := &experiment.ReportSnapshot{
		ID:           core.SnapshotID(core.NewID()),
		ExperimentID: experimentID,
		Document:     doc,
		Checksum:     checksum,
		CreatedAt:    core.Now(),
	}
	r.rows = append(r.rows, snapshot)

	clone := *snapshot
	return &clone, nil
}

func (r *InMemorySnapshotRepository) ListFor(ctx context.Context, experimentID core.ExperimentID, limit int) ([]*experiment.ReportSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}

	out := make([]*experiment.ReportSnapshot, 0)
	for i := len(r.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if r.rows[i].ExperimentID == experimentID {
			clone := *r.rows[i]
			out = append(out, &clone)
		}
	}
	return out, nil
}

func cloneExperiment(exp *experiment.Experiment) *experiment.Experiment {
	clone := *exp
	clone.Variants = make([]experiment.Variant, len(exp.Variants))
	copy(clone.Variants, exp.Variants)
	clone.Tags = append([]string(nil), exp.Tags...)
	return &clone
}
