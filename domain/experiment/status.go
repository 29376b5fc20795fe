package experiment

import (
	"strings"

	"gosplit/domain/core"
)

// Status is the canonical lifecycle state of an experiment.
type Status string

const (
	StatusDraft   Status = "DRAFT"
	StatusRunning Status = "RUNNING"
	StatusPaused  Status = "PAUSED"
	StatusStopped Status = "STOPPED"
)

// Terminal reports whether the status admits no further transitions short of
// an operator override.
func (s Status) Terminal() bool {
	return s == StatusStopped
}

func (s Status) String() string { return string(s) }

// Outcome records why a stopped experiment stopped. It carries the
// distinction the legacy status vocabulary overloaded onto the status column.
type Outcome string

const (
	OutcomeNone         Outcome = "none"
	OutcomePassed       Outcome = "passed"
	OutcomeFailed       Outcome = "failed"
	OutcomeInconclusive Outcome = "inconclusive"
	OutcomeTerminated   Outcome = "terminated_without_cause"
)

func (o Outcome) String() string { return string(o) }

// ParseStatus maps a stored or requested status string onto the canonical
// vocabulary. Legacy values (lowercase lifecycle names plus the old outcome
// vocabulary) are accepted: an outcome-flavored value parses as STOPPED with
// the matching outcome.
func ParseStatus(raw string) (Status, Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "draft":
		return StatusDraft, OutcomeNone, nil
	case "running":
		return StatusRunning, OutcomeNone, nil
	case "paused":
		return StatusPaused, OutcomeNone, nil
	case "stopped":
		return StatusStopped, OutcomeNone, nil
	case "passed":
		return StatusStopped, OutcomePassed, nil
	case "failed":
		return StatusStopped, OutcomeFailed, nil
	case "inconclusive":
		return StatusStopped, OutcomeInconclusive, nil
	case "terminated_without_cause":
		return StatusStopped, OutcomeTerminated, nil
	}
	return "", "", core.NewValidationError("status", "unknown status "+raw)
}

// ParseOutcome validates an outcome string. Empty parses as none.
func ParseOutcome(raw string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(OutcomeNone):
		return OutcomeNone, nil
	case string(OutcomePassed):
		return OutcomePassed, nil
	case string(OutcomeFailed):
		return OutcomeFailed, nil
	case string(OutcomeInconclusive):
		return OutcomeInconclusive, nil
	case string(OutcomeTerminated):
		return OutcomeTerminated, nil
	}
	return "", core.NewValidationError("outcome", "unknown outcome "+raw)
}
