package experiment

import (
	"sort"
	"strings"

	"gosplit/domain/core"
)

// GuardrailDirection gives the side of the threshold that is unhealthy.
type GuardrailDirection string

const (
	GuardrailMax GuardrailDirection = "max"
	GuardrailMin GuardrailDirection = "min"
)

func (d GuardrailDirection) String() string { return string(d) }

// ParseGuardrailDirection validates a direction string.
func ParseGuardrailDirection(raw string) (GuardrailDirection, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(GuardrailMax):
		return GuardrailMax, nil
	case string(GuardrailMin):
		return GuardrailMin, nil
	}
	return "", core.NewValidationError("direction", "direction must be max or min")
}

// GuardrailStatus is the classification of a single observation.
type GuardrailStatus string

const (
	GuardrailHealthy  GuardrailStatus = "healthy"
	GuardrailBreached GuardrailStatus = "breached"
)

func (s GuardrailStatus) String() string { return string(s) }

// GuardrailObservation is one append-only reading of a secondary KPI against
// its threshold.
type GuardrailObservation struct {
	ID           core.GuardrailID
	ExperimentID core.ExperimentID
	Name         string
	Value        float64
	Threshold    float64
	Direction    GuardrailDirection
	Status       GuardrailStatus
	ObservedAt   core.Timestamp
}

// ClassifyGuardrail decides healthy or breached: a max guardrail breaches
// above its threshold, a min guardrail below it.
func ClassifyGuardrail(direction GuardrailDirection, value, threshold float64) GuardrailStatus {
	switch direction {
	case GuardrailMax:
		if value > threshold {
			return GuardrailBreached
		}
	case GuardrailMin:
		if value < threshold {
			return GuardrailBreached
		}
	}
	return GuardrailHealthy
}

// LatestPerName reduces observation history to the most recent observation
// of each metric name. The result keeps descending observed_at order.
func LatestPerName(observations []GuardrailObservation) []GuardrailObservation {
	sorted := make([]GuardrailObservation, len(observations))
	copy(sorted, observations)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ObservedAt.After(sorted[j].ObservedAt)
	})

	seen := make(map[string]struct{}, len(sorted))
	latest := make([]GuardrailObservation, 0, len(sorted))
	for _, obs := range sorted {
		if _, done := seen[obs.Name]; done {
			continue
		}
		seen[obs.Name] = struct{}{}
		latest = append(latest, obs)
	}
	return latest
}

// CountBreached counts observations currently classified breached.
func CountBreached(observations []GuardrailObservation) int {
	n := 0
	for _, obs := range observations {
		if obs.Status == GuardrailBreached {
			n++
		}
	}
	return n
}
