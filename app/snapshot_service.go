package app

import (
	"context"
	"encoding/json"
	"fmt"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
	"gosplit/models"
	"gosplit/ports"
)

// SnapshotService archives report documents. Snapshots store the wire form
// of the report (string enums, RFC-3339 timestamps) plus a checksum over the
// serialized bytes.
type SnapshotService struct {
	experiments ports.ExperimentRepository
	snapshots   ports.SnapshotRepository
}

// NewSnapshotService creates a snapshot service
func NewSnapshotService(experiments ports.ExperimentRepository, snapshots ports.SnapshotRepository) *SnapshotService {
	return &SnapshotService{
		experiments: experiments,
		snapshots:   snapshots,
	}
}

// Archive serializes the report and appends it to the experiment's snapshot
// history.
func (s *SnapshotService) Archive(ctx context.Context, report *experiment.Report) (*experiment.ReportSnapshot, error) {
	payload, err := json.Marshal(models.NewReport(report))
	if err != nil {
		return nil, fmt.Errorf("failed to serialize report: %w", err)
	}

	snapshot, err := s.snapshots.Append(ctx, report.ExperimentID, payload, core.NewReportChecksum(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to append snapshot: %w", err)
	}
	return snapshot, nil
}

// List returns up to limit snapshots, newest first. Non-positive limits fall
// back to the repository default of 20.
func (s *SnapshotService) List(ctx context.Context, id core.ExperimentID, limit int) ([]*experiment.ReportSnapshot, error) {
	if _, err := s.experiments.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.snapshots.ListFor(ctx, id, limit)
}
