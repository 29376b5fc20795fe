package testkit

import (
	"fmt"
	"math/rand"
	"time"

	"gosplit/domain/core"
	"gosplit/domain/experiment"
)

// TrafficConfig configures the synthetic traffic generator.
type TrafficConfig struct {
	Units           int
	ConversionRates map[string]float64 // variant key -> conversion probability
	Start           time.Time
	Spacing         time.Duration
	Seed            int64
}

// DefaultTrafficConfig returns a two-arm stream with a visible uplift.
func DefaultTrafficConfig() TrafficConfig {
	return TrafficConfig{
		Units: 1000,
		ConversionRates: map[string]float64{
			"control":   0.10,
			"treatment": 0.14,
		},
		Start:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Spacing: time.Second,
		Seed:    42,
	}
}

// GenerateTraffic produces a deterministic exposure/conversion stream for an
// experiment. Units route through the experiment's weighted chooser so the
// variant split follows the configured weights, and conversions follow the
// per-variant rates. The same seed always yields the same stream.
func GenerateTraffic(exp *experiment.Experiment, cfg TrafficConfig) []*experiment.Event {
	rng := rand.New(rand.NewSource(cfg.Seed))
	events := make([]*experiment.Event, 0, cfg.Units*2)

	for i := 0; i < cfg.Units; i++ {
		unit := fmt.Sprintf("unit-%05d", i)
		at := core.NewTimestamp(cfg.Start.Add(time.Duration(i) * cfg.Spacing))

		variant, ok := exp.ChooseWeighted(rng.Float64())
		if !ok {
			continue
		}

		events = append(events, ExposureEvent(exp, variant.ID, unit, at))
		if rng.Float64() < cfg.ConversionRates[variant.Key] {
			events = append(events, ConversionEvent(exp, variant.ID, unit, at))
		}
	}
	return events
}
