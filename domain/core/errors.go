package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound           = errors.New("resource not found")
	ErrExperimentNotFound = fmt.Errorf("%w: experiment", ErrNotFound)
	ErrVariantNotFound    = fmt.Errorf("%w: variant", ErrNotFound)
	ErrAssignmentNotFound = fmt.Errorf("%w: assignment", ErrNotFound)
	ErrSnapshotNotFound   = fmt.Errorf("%w: snapshot", ErrNotFound)

	// Lifecycle errors
	ErrInvalidState    = errors.New("experiment is not in a valid state for this operation")
	ErrConflict        = errors.New("lifecycle transition rejected")
	ErrMisconfigured   = errors.New("experiment has no variants configured")
	ErrRampNotPositive = errors.New("launch requires ramp_pct greater than zero")

	// Concurrency errors
	ErrAlreadyAssigned = errors.New("unit already has an active assignment")

	// Validation errors
	ErrValidation      = errors.New("validation failed")
	ErrBadEventType    = fmt.Errorf("%w: unknown event type", ErrValidation)
	ErrBadPeriod       = fmt.Errorf("%w: period must be pre or post", ErrValidation)
	ErrBadTargetingOp  = fmt.Errorf("%w: unknown targeting operator", ErrValidation)
	ErrBadWeights      = fmt.Errorf("%w: variant weights must be positive and sum to 1", ErrValidation)
	ErrRampOutOfRange  = fmt.Errorf("%w: ramp_pct must be within 0..100", ErrValidation)
	ErrMetricNameEmpty = fmt.Errorf("%w: metric events require metric_name", ErrValidation)
)

// Error constructors with context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

func NewValidationError(field string, reason string) error {
	return fmt.Errorf("%w for %s: %s", ErrValidation, field, reason)
}

func NewInvalidStateError(status string) error {
	return fmt.Errorf("%w: status %s", ErrInvalidState, status)
}

func NewConflictError(from, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrConflict, from, to)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsInvalidStateError(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}
