package app

import (
	"context"
	"fmt"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
	"gosplit/ports"
)

// ReportService builds analysis reports and coordinates their side effects.
// The builder itself is pure; this service decides when a report also
// transitions the experiment and when it leaves a snapshot behind.
type ReportService struct {
	experiments ports.ExperimentRepository
	events      ports.EventRepository
	guardrails  ports.GuardrailRepository
	lifecycle   *LifecycleService
	snapshots   *SnapshotService
}

// NewReportService creates a report service
func NewReportService(experiments ports.ExperimentRepository, events ports.EventRepository,
	guardrails ports.GuardrailRepository, lifecycle *LifecycleService, snapshots *SnapshotService) *ReportService {
	return &ReportService{
		experiments: experiments,
		events:      events,
		guardrails:  guardrails,
		lifecycle:   lifecycle,
		snapshots:   snapshots,
	}
}

// Build computes the current report without side effects.
func (s *ReportService) Build(ctx context.Context, id core.ExperimentID) (*experiment.Report, error) {
	exp, err := s.experiments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.buildFor(ctx, exp)
}

// BuildAndTransition computes the report and, when it carries a terminal
// recommendation for a RUNNING experiment, applies the auto-transition. The
// returned report reflects the post-transition status.
func (s *ReportService) BuildAndTransition(ctx context.Context, id core.ExperimentID) (*experiment.Report, error) {
	report, err := s.Build(ctx, id)
	if err != nil {
		return nil, err
	}

	if report.Status == experiment.StatusRunning {
		exp, changed, err := s.lifecycle.AutoTransition(ctx, id, report.Recommendation)
		if err != nil {
			return nil, fmt.Errorf("failed to apply report recommendation: %w", err)
		}
		if changed {
			report.Status = exp.Status
		}
	}
	return report, nil
}

// BuildAndArchive is the full coordinator path behind GET report: build,
// auto-transition, then archive the resulting document as a snapshot.
func (s *ReportService) BuildAndArchive(ctx context.Context, id core.ExperimentID) (*experiment.Report, error) {
	report, err := s.BuildAndTransition(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.snapshots.Archive(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to archive report snapshot: %w", err)
	}
	return report, nil
}

func (s *ReportService) buildFor(ctx context.Context, exp *experiment.Experiment) (*experiment.Report, error) {
	agg, err := s.events.CountsFor(ctx, exp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate events: %w", err)
	}
	observations, err := s.guardrails.ListFor(ctx, exp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load guardrail observations: %w", err)
	}
	return experiment.BuildReport(exp, agg, observations, core.Now()), nil
}
