package core

import (
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	// Use UUID v7 for time-ordered, sortable IDs
	// Falls back to v4 if v7 is not available (for compatibility)
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	ExperimentID ID
	VariantID    ID
	AssignmentID ID
	EventID      ID
	GuardrailID  ID
	SnapshotID   ID
	AuditID      ID
	UnitID       ID
)

// String conversions for domain IDs
func (id ExperimentID) String() string { return ID(id).String() }
func (id VariantID) String() string    { return ID(id).String() }
func (id AssignmentID) String() string { return ID(id).String() }
func (id EventID) String() string      { return ID(id).String() }
func (id GuardrailID) String() string  { return ID(id).String() }
func (id SnapshotID) String() string   { return ID(id).String() }
func (id AuditID) String() string      { return ID(id).String() }
func (id UnitID) String() string       { return ID(id).String() }

// ParseExperimentID parses a string into ExperimentID
func ParseExperimentID(s string) (ExperimentID, error) {
	if strings.TrimSpace(s) == "" {
		return "", NewValidationError("experiment_id", "must not be empty")
	}
	return ExperimentID(s), nil
}

// ParseVariantID parses a string into VariantID
func ParseVariantID(s string) (VariantID, error) {
	if strings.TrimSpace(s) == "" {
		return "", NewValidationError("variant_id", "must not be empty")
	}
	return VariantID(s), nil
}

// ParseUnitID parses a string into UnitID
func ParseUnitID(s string) (UnitID, error) {
	if strings.TrimSpace(s) == "" {
		return "", NewValidationError("unit_id", "must not be empty")
	}
	return UnitID(s), nil
}

// NewSalt returns an opaque salt string fixed at experiment creation.
// The salt enters every bucketing key, so it must never change once issued.
func NewSalt() string {
	return uuid.NewString()
}
