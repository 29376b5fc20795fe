package experiment

import "gosplit/domain/core"

// ReportSnapshot is an immutable archived copy of a report document. The
// checksum is computed over the serialized payload at write time so later
// reads can detect tampering or corruption.
type ReportSnapshot struct {
	ID           core.SnapshotID
	ExperimentID core.ExperimentID
	Document     map[string]any
	Checksum     core.ReportChecksum
	CreatedAt    core.Timestamp
}
