package stats

import (
	"math"
	"testing"
)

// TestNewPosteriorCounts tests posterior construction from event counts
func TestNewPosteriorCounts(t *testing.T) {
	tests := []struct {
		name         string
		exposures    int64
		conversions  int64
		alpha, beta  float64
		expectedRate float64
	}{
		{"typical", 10, 4, 5, 7, 5.0 / 12.0},
		{"no data", 0, 0, 1, 1, 0.5},
		{"all converted", 5, 5, 6, 1, 6.0 / 7.0},
		{"conversions exceed exposures", 3, 5, 6, 1, 6.0 / 7.0},
	}

	for _, test := range tests {
		p := NewPosterior(test.exposures, test.conversions)
		if p.Alpha != test.alpha || p.Beta != test.beta {
			t.Errorf("%s: expected Beta(%v, %v), got Beta(%v, %v)", test.name, test.alpha, test.beta, p.Alpha, p.Beta)
		}
		if math.Abs(p.ExpectedRate()-test.expectedRate) > 1e-12 {
			t.Errorf("%s: expected rate %v, got %v", test.name, test.expectedRate, p.ExpectedRate())
		}
	}
}

// TestSampleArgmaxDeterministic tests per-call seeded selection stability
func TestSampleArgmaxDeterministic(t *testing.T) {
	posteriors := []Posterior{
		NewPosterior(100, 10),
		NewPosterior(100, 20),
		NewPosterior(100, 15),
	}

	first := SampleArgmax(posteriors, NewSeededSource("exp-1", "unit-42"))
	second := SampleArgmax(posteriors, NewSeededSource("exp-1", "unit-42"))
	if first != second {
		t.Errorf("Expected identical picks for identical seeds, got %d then %d", first, second)
	}
}

// TestWinProbabilitiesSumToOne tests that estimates form a distribution
func TestWinProbabilitiesSumToOne(t *testing.T) {
	posteriors := []Posterior{
		NewPosterior(500, 50),
		NewPosterior(500, 60),
	}

	probs := WinProbabilities(posteriors, 400, NewSeededSource("exp-1"))
	if len(probs) != 2 {
		t.Fatalf("Expected 2 probabilities, got %d", len(probs))
	}

	var sum float64
	for _, p := range probs {
		if p < 0 || p > 1 {
			t.Errorf("Probability out of range: %v", p)
		}
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("Expected probabilities to sum to 1, got %v", sum)
	}
}

// TestWinProbabilitiesFavorStrongerArm tests the Monte-Carlo direction
func TestWinProbabilitiesFavorStrongerArm(t *testing.T) {
	posteriors := []Posterior{
		NewPosterior(1000, 100),
		NewPosterior(1000, 200),
	}

	probs := WinProbabilities(posteriors, 400, NewSeededSource("exp-1"))
	if probs[1] < 0.95 {
		t.Errorf("Expected the 20%% arm to dominate the 10%% arm, got win probability %v", probs[1])
	}
}

// TestWinProbabilitiesDeterministicSeed tests reproducibility by seed key
func TestWinProbabilitiesDeterministicSeed(t *testing.T) {
	posteriors := []Posterior{
		NewPosterior(50, 5),
		NewPosterior(50, 9),
		NewPosterior(50, 7),
	}

	a := WinProbabilities(posteriors, 400, NewSeededSource("exp-7"))
	b := WinProbabilities(posteriors, 400, NewSeededSource("exp-7"))
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Run diverged at index %d: %v vs %v", i, a[i], b[i])
		}
	}
}

// TestWinProbabilitiesMinimumDraws tests the draws floor
func TestWinProbabilitiesMinimumDraws(t *testing.T) {
	posteriors := []Posterior{NewPosterior(10, 5), NewPosterior(10, 5)}
	probs := WinProbabilities(posteriors, 0, NewSeededSource("exp-1"))
	var sum float64
	for _, p := range probs {
		sum += p
	}
	if sum != 1 {
		t.Errorf("Expected single-draw probabilities to sum to 1, got %v", sum)
	}
}

// TestWinProbabilitiesEmpty tests the degenerate input
func TestWinProbabilitiesEmpty(t *testing.T) {
	if probs := WinProbabilities(nil, 400, NewSeededSource("exp-1")); probs != nil {
		t.Errorf("Expected nil for no posteriors, got %v", probs)
	}
}
