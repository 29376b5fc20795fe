package experiment

import (
	"fmt"
	"strings"

	"gosplit/domain/core"
)

// Kind classifies an ingested event.
type Kind string

const (
	KindExposure   Kind = "exposure"
	KindConversion Kind = "conversion"
	KindMetric     Kind = "metric"
)

func (k Kind) String() string { return string(k) }

// ParseKind validates an event type string.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(KindExposure):
		return KindExposure, nil
	case string(KindConversion):
		return KindConversion, nil
	case string(KindMetric):
		return KindMetric, nil
	}
	return "", fmt.Errorf("%w: %s", core.ErrBadEventType, raw)
}

// Period separates pre-launch baseline observations from post-launch ones.
type Period string

const (
	PeriodPre  Period = "pre"
	PeriodPost Period = "post"
)

func (p Period) String() string { return string(p) }

// ParsePeriod validates a period string. Empty defaults to post.
func ParsePeriod(raw string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(PeriodPost):
		return PeriodPost, nil
	case string(PeriodPre):
		return PeriodPre, nil
	}
	return "", fmt.Errorf("%w: %s", core.ErrBadPeriod, raw)
}

// Event is one append-only observation attributed to an experiment and,
// usually, a variant.
type Event struct {
	ID           core.EventID
	ExperimentID core.ExperimentID
	UnitID       core.UnitID
	VariantID    *core.VariantID
	Kind         Kind
	MetricName   *string
	Period       Period
	Value        float64
	Context      map[string]any
	ObservedAt   core.Timestamp
}

// Validate enforces per-kind requirements: metric events must name their
// metric.
func (e *Event) Validate() error {
	switch e.Kind {
	case KindExposure, KindConversion, KindMetric:
	default:
		return fmt.Errorf("%w: %s", core.ErrBadEventType, e.Kind)
	}
	switch e.Period {
	case PeriodPre, PeriodPost:
	default:
		return fmt.Errorf("%w: %s", core.ErrBadPeriod, e.Period)
	}
	if e.Kind == KindMetric && (e.MetricName == nil || strings.TrimSpace(*e.MetricName) == "") {
		return core.ErrMetricNameEmpty
	}
	return nil
}
