package experiment

import "gosplit/domain/core"

// Bucketing namespaces. Ramp admission and variant selection hash the same
// unit into independent buckets so one decision does not leak into the other.
const (
	NamespaceRamp    = "ramp"
	NamespaceVariant = "variant"
)

// Assignment binds a unit to a variant until released. At most one active
// (unreleased) row may exist per (experiment, unit).
type Assignment struct {
	ID           core.AssignmentID
	ExperimentID core.ExperimentID
	UnitID       core.UnitID
	VariantID    core.VariantID
	AssignedAt   core.Timestamp
	ReleasedAt   *core.Timestamp
}

// Active reports whether the assignment still binds the unit.
func (a Assignment) Active() bool {
	return a.ReleasedAt == nil
}
