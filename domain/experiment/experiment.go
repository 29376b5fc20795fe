package experiment

import (
	"fmt"
	"math"
	"strings"

	"gosplit/domain/core"
)

// weightTolerance bounds how far the variant weights may drift from summing
// to exactly 1.
const weightTolerance = 1e-3

// ControlKey is the variant key that marks the control arm. Experiments
// without it fall back to the first variant by insertion order.
const ControlKey = "control"

// AssignmentPolicy selects how units entering the ramp are split across
// variants. The two policies are mutually exclusive per experiment.
type AssignmentPolicy string

const (
	PolicyWeighted AssignmentPolicy = "weighted"
	PolicyThompson AssignmentPolicy = "thompson"
)

// ParseAssignmentPolicy validates a policy string. Empty defaults to
// weighted bucketing.
func ParseAssignmentPolicy(raw string) (AssignmentPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(PolicyWeighted):
		return PolicyWeighted, nil
	case string(PolicyThompson):
		return PolicyThompson, nil
	}
	return "", core.NewValidationError("assignment_policy", "unknown policy "+raw)
}

func (p AssignmentPolicy) String() string { return string(p) }

// Variant is one arm of an experiment. Ordinal preserves insertion order,
// which decides the fallback control and the weighted walk order.
type Variant struct {
	ID           core.VariantID
	ExperimentID core.ExperimentID
	Key          string
	Name         string
	Weight       float64
	Config       map[string]any
	Ordinal      int
	CreatedAt    core.Timestamp
}

// Experiment is the aggregate root. Variants are always carried sorted by
// ordinal.
type Experiment struct {
	ID                 core.ExperimentID
	Name               string
	Description        string
	Hypothesis         string
	OwnerTeam          string
	CreatedBy          string
	UnitType           string
	Tags               []string
	Targeting          Rules
	RampPct            int
	Version            int
	AssignmentSalt     string
	Policy             AssignmentPolicy
	MDE                float64
	BaselineRate       float64
	Alpha              float64
	Power              float64
	SampleSizeRequired int
	Status             Status
	Outcome            Outcome
	StartedAt          *core.Timestamp
	EndedAt            *core.Timestamp
	TerminationReason  *string
	CreatedAt          core.Timestamp
	UpdatedAt          core.Timestamp
	Variants           []Variant
}

// ControlVariant resolves the control arm: the variant keyed "control", or
// the first variant by insertion order when no key matches. The second
// return is false only when the experiment has no variants at all.
func (e *Experiment) ControlVariant() (Variant, bool) {
	if len(e.Variants) == 0 {
		return Variant{}, false
	}
	for _, v := range e.Variants {
		if v.Key == ControlKey {
			return v, true
		}
	}
	return e.Variants[0], true
}

// VariantByKey looks a variant up by its key.
func (e *Experiment) VariantByKey(key string) (Variant, bool) {
	for _, v := range e.Variants {
		if v.Key == key {
			return v, true
		}
	}
	return Variant{}, false
}

// VariantByID looks a variant up by its identifier.
func (e *Experiment) VariantByID(id core.VariantID) (Variant, bool) {
	for _, v := range e.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// ChooseWeighted walks the variants in insertion order accumulating weights
// and picks the first whose cumulative share of the total reaches b. A
// non-positive total weight forces control.
func (e *Experiment) ChooseWeighted(b float64) (Variant, bool) {
	control, ok := e.ControlVariant()
	if !ok {
		return Variant{}, false
	}

	total := 0.0
	for _, v := range e.Variants {
		total += v.Weight
	}
	if total <= 0 {
		return control, true
	}

	cumulative := 0.0
	for _, v := range e.Variants {
		cumulative += v.Weight
		if cumulative/total >= b {
			return v, true
		}
	}
	return control, true
}

// ValidateStatParams checks that every statistical input sits in the open
// interval (0, 1).
func ValidateStatParams(mde, baseline, alpha, power float64) error {
	params := []struct {
		name  string
		value float64
	}{
		{"mde", mde},
		{"baseline_rate", baseline},
		{"alpha", alpha},
		{"power", power},
	}
	for _, p := range params {
		if math.IsNaN(p.value) || p.value <= 0 || p.value >= 1 {
			return core.NewValidationError(p.name, fmt.Sprintf("%v is outside (0, 1)", p.value))
		}
	}
	return nil
}

// ValidateRamp checks the ramp percentage range.
func ValidateRamp(pct int) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("%w: got %d", core.ErrRampOutOfRange, pct)
	}
	return nil
}

// ValidateVariants enforces the variant invariants: at least two arms, keys
// present and unique, every weight positive and at most 1, and the weights
// summing to 1 within tolerance.
func ValidateVariants(variants []Variant) error {
	if len(variants) < 2 {
		return core.NewValidationError("variants", "at least two variants are required")
	}

	seen := make(map[string]struct{}, len(variants))
	total := 0.0
	for _, v := range variants {
		key := strings.TrimSpace(v.Key)
		if key == "" {
			return core.NewValidationError("variants", "variant key must not be empty")
		}
		if _, dup := seen[key]; dup {
			return core.NewValidationError("variants", "duplicate variant key "+key)
		}
		seen[key] = struct{}{}

		if v.Weight <= 0 || v.Weight > 1 {
			return fmt.Errorf("%w: weight %v for variant %s", core.ErrBadWeights, v.Weight, key)
		}
		total += v.Weight
	}
	if math.Abs(total-1.0) > weightTolerance {
		return fmt.Errorf("%w: weights sum to %v", core.ErrBadWeights, total)
	}
	return nil
}
