package stats

import (
	"math"
	"testing"
)

// TestSampleSizeKnownInputs pins the calculator on the service defaults
func TestSampleSizeKnownInputs(t *testing.T) {
	// baseline 10%, mde 2pp, alpha 0.05, power 0.8
	got := SampleSize(0.1, 0.02, 0.05, 0.8)
	if got != 7674 {
		t.Errorf("Expected 7674 total units, got %d", got)
	}
	if got%2 != 0 {
		t.Errorf("Expected an even total (balanced groups), got %d", got)
	}
}

// TestSampleSizeMonotonicInMDE tests that a smaller effect needs more units
func TestSampleSizeMonotonicInMDE(t *testing.T) {
	small := SampleSize(0.1, 0.01, 0.05, 0.8)
	large := SampleSize(0.1, 0.05, 0.05, 0.8)
	if small <= large {
		t.Errorf("Expected smaller MDE to need more units: mde=0.01 -> %d, mde=0.05 -> %d", small, large)
	}
}

// TestSampleSizeCoarseZLookup tests the coarse z-value switch points
func TestSampleSizeCoarseZLookup(t *testing.T) {
	strict := SampleSize(0.1, 0.02, 0.05, 0.8)
	loose := SampleSize(0.1, 0.02, 0.10, 0.8)
	if loose >= strict {
		t.Errorf("Expected looser alpha to need fewer units: alpha=0.05 -> %d, alpha=0.10 -> %d", strict, loose)
	}

	lowPower := SampleSize(0.1, 0.02, 0.05, 0.5)
	if lowPower >= strict {
		t.Errorf("Expected lower power to need fewer units: power=0.8 -> %d, power=0.5 -> %d", strict, lowPower)
	}
}

// TestSampleSizeBaselineNearCeiling tests the p2 cap at 0.999
func TestSampleSizeBaselineNearCeiling(t *testing.T) {
	got := SampleSize(0.995, 0.05, 0.05, 0.8)
	if got < 2 {
		t.Errorf("Expected at least 2 units even at the probability ceiling, got %d", got)
	}
}

// TestTwoProportionZZeroExposure tests the zero-exposure boundary
func TestTwoProportionZZeroExposure(t *testing.T) {
	tests := []struct {
		name        string
		cConv, cExp int64
		tConv, tExp int64
	}{
		{"control empty", 0, 0, 5, 100},
		{"treatment empty", 5, 100, 0, 0},
		{"both empty", 0, 0, 0, 0},
	}

	for _, test := range tests {
		result := TwoProportionZ(test.cConv, test.cExp, test.tConv, test.tExp)
		if result.Z != 0 || result.P != 1 {
			t.Errorf("%s: expected (0, 1), got (%v, %v)", test.name, result.Z, result.P)
		}
	}
}

// TestTwoProportionZEqualRates tests that identical rates give z=0, p=1
func TestTwoProportionZEqualRates(t *testing.T) {
	result := TwoProportionZ(100, 1000, 100, 1000)
	if math.Abs(result.Z) > 1e-9 {
		t.Errorf("Expected z near 0 for equal rates, got %v", result.Z)
	}
	if math.Abs(result.P-1) > 1e-9 {
		t.Errorf("Expected p near 1 for equal rates, got %v", result.P)
	}
}

// TestTwoProportionZStrongSignal tests a clearly significant difference
func TestTwoProportionZStrongSignal(t *testing.T) {
	result := TwoProportionZ(100, 1000, 150, 1000)
	if result.Z < 3.37 || result.Z > 3.39 {
		t.Errorf("Expected z around 3.38, got %v", result.Z)
	}
	if result.P < 0.0005 || result.P > 0.001 {
		t.Errorf("Expected p around 0.0007, got %v", result.P)
	}
}

// TestTwoProportionZPClamped tests that p stays within [0, 1]
func TestTwoProportionZPClamped(t *testing.T) {
	result := TwoProportionZ(10, 100000, 90000, 100000)
	if result.P < 0 || result.P > 1 {
		t.Errorf("Expected p in [0,1], got %v", result.P)
	}
}

// TestUpliftCIZeroExposure tests the zero-exposure boundary
func TestUpliftCIZeroExposure(t *testing.T) {
	ci := UpliftCI(0, 0, 5, 100, 0.95)
	if ci.Lower != 0 || ci.Upper != 0 {
		t.Errorf("Expected (0, 0) on zero exposure, got (%v, %v)", ci.Lower, ci.Upper)
	}
}

// TestUpliftCIBracketsPointEstimate tests interval geometry
func TestUpliftCIBracketsPointEstimate(t *testing.T) {
	ci := UpliftCI(100, 1000, 150, 1000, 0.95)
	diff := 0.05
	if ci.Lower >= diff || ci.Upper <= diff {
		t.Errorf("Expected interval to bracket %v, got (%v, %v)", diff, ci.Lower, ci.Upper)
	}
	if ci.Upper <= ci.Lower {
		t.Errorf("Expected upper > lower, got (%v, %v)", ci.Lower, ci.Upper)
	}

	wide := UpliftCI(100, 1000, 150, 1000, 0.90)
	if (wide.Upper - wide.Lower) >= (ci.Upper - ci.Lower) {
		t.Errorf("Expected 90%% interval narrower than 95%%: got %v vs %v", wide.Upper-wide.Lower, ci.Upper-ci.Lower)
	}
}

// TestConfidenceFromP tests the p-to-confidence mapping
func TestConfidenceFromP(t *testing.T) {
	tests := []struct {
		p        float64
		expected float64
	}{
		{0.2, 0.8},
		{0.05, 0.95},
		{0.0, 0.9999},
		{1.0, 0.0},
		{1.5, 0.0},
	}

	for _, test := range tests {
		got := ConfidenceFromP(test.p)
		if got != test.expected {
			t.Errorf("ConfidenceFromP(%v): expected %v, got %v", test.p, test.expected, got)
		}
	}
}

// TestDiffInDiff tests the diff-in-diff delta
func TestDiffInDiff(t *testing.T) {
	got := DiffInDiff(0.10, 0.11, 0.10, 0.14)
	if got != 0.03 {
		t.Errorf("Expected 0.03, got %v", got)
	}

	flat := DiffInDiff(0.2, 0.25, 0.1, 0.15)
	if flat != 0 {
		t.Errorf("Expected 0 for parallel trends, got %v", flat)
	}
}

// TestRound tests decimal rounding
func TestRound(t *testing.T) {
	tests := []struct {
		x        float64
		decimals int
		expected float64
	}{
		{0.12345, 4, 0.1235},
		{0.12344, 4, 0.1234},
		{-0.00005, 4, -0.0001},
		{1.0, 4, 1.0},
	}

	for _, test := range tests {
		got := Round(test.x, test.decimals)
		if got != test.expected {
			t.Errorf("Round(%v, %d): expected %v, got %v", test.x, test.decimals, test.expected, got)
		}
	}
}
