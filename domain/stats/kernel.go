package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// varianceFloor guards division inside variance terms against zero denominators.
const varianceFloor = 1e-12

// Round rounds x half-away-from-zero to the given number of decimal places.
func Round(x float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(x*scale) / scale
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// SampleSize returns the total sample size (both groups) required to detect
// an absolute uplift of mde over baseline with a balanced two-proportion
// design. The z lookup is deliberately coarse: alpha <= 0.05 maps to 1.96,
// anything looser to 1.64; power >= 0.8 maps to 0.84, anything lower to 0.52.
func SampleSize(baseline, mde, alpha, power float64) int {
	p1 := baseline
	p2 := math.Min(baseline+mde, 0.999)
	pBar := (p1 + p2) / 2

	zAlpha := 1.64
	if alpha <= 0.05 {
		zAlpha = 1.96
	}
	zBeta := 0.52
	if power >= 0.8 {
		zBeta = 0.84
	}

	num := zAlpha*math.Sqrt(2*pBar*(1-pBar)) + zBeta*math.Sqrt(p1*(1-p1)+p2*(1-p2))
	denom := p2 - p1
	perGroup := math.Ceil((num * num) / (denom * denom))
	if perGroup < 1 {
		perGroup = 1
	}
	return int(perGroup) * 2
}

// ZResult is the outcome of a two-proportion z-test.
type ZResult struct {
	Z float64
	P float64
}

// TwoProportionZ runs a pooled two-sided two-proportion z-test of control vs
// treatment conversion. Either side with zero exposures yields (0, 1).
func TwoProportionZ(controlConv, controlExp, treatConv, treatExp int64) ZResult {
	if controlExp == 0 || treatExp == 0 {
		return ZResult{Z: 0, P: 1}
	}

	cExp := float64(controlExp)
	tExp := float64(treatExp)
	p1 := float64(controlConv) / cExp
	p2 := float64(treatConv) / tExp
	pPool := (float64(controlConv) + float64(treatConv)) / (cExp + tExp)

	variance := pPool * (1 - pPool) * (1/cExp + 1/tExp)
	if variance < varianceFloor {
		variance = varianceFloor
	}
	z := (p2 - p1) / math.Sqrt(variance)
	p := clamp(2*(1-distuv.UnitNormal.CDF(math.Abs(z))), 0, 1)
	return ZResult{Z: z, P: p}
}

// Interval is a two-sided confidence interval.
type Interval struct {
	Lower float64
	Upper float64
}

// UpliftCI returns the Wald normal-approximation interval on the difference
// in conversion proportions (treatment minus control). Either side with zero
// exposures yields (0, 0). Levels below 0.95 fall back to the 90% z value.
func UpliftCI(controlConv, controlExp, treatConv, treatExp int64, level float64) Interval {
	if controlExp == 0 || treatExp == 0 {
		return Interval{}
	}

	cExp := float64(controlExp)
	tExp := float64(treatExp)
	p1 := float64(controlConv) / cExp
	p2 := float64(treatConv) / tExp
	diff := p2 - p1

	z := 1.64
	if level >= 0.95 {
		z = 1.96
	}

	variance := p1*(1-p1)/cExp + p2*(1-p2)/tExp
	if variance < varianceFloor {
		variance = varianceFloor
	}
	margin := z * math.Sqrt(variance)
	return Interval{Lower: diff - margin, Upper: diff + margin}
}

// ConfidenceFromP maps a p-value onto a bounded confidence score.
func ConfidenceFromP(p float64) float64 {
	return Round(clamp(1-p, 0, 0.9999), 4)
}

// DiffInDiff returns the difference-in-differences delta between treatment
// and control rates across the pre and post periods.
func DiffInDiff(preControl, postControl, preTreat, postTreat float64) float64 {
	return Round((postTreat-preTreat)-(postControl-preControl), 6)
}
