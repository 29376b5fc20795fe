package ports

import (
	"context"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
)

// SnapshotRepository defines the interface for report snapshot data
// operations
type SnapshotRepository interface {
	// Append archives a serialized report document and returns the stored
	// snapshot.
	Append(ctx context.Context, experimentID core.ExperimentID, payload []byte, checksum core.ReportChecksum) (*experiment.ReportSnapshot, error)

	// ListFor returns up to limit snapshots, most recent first. A limit of
	// zero or less applies the default cap of 20.
	ListFor(ctx context.Context, experimentID core.ExperimentID, limit int) ([]*experiment.ReportSnapshot, error)
}
