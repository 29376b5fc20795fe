package stats

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Posterior is the Beta posterior over a variant's conversion rate under a
// uniform Beta(1,1) prior.
type Posterior struct {
	Alpha float64
	Beta  float64
}

// NewPosterior folds observed exposure and conversion counts into the prior.
// Conversions in excess of exposures are tolerated: failures never go
// negative.
func NewPosterior(exposures, conversions int64) Posterior {
	failures := exposures - conversions
	if failures < 0 {
		failures = 0
	}
	return Posterior{
		Alpha: 1 + float64(conversions),
		Beta:  1 + float64(failures),
	}
}

// ExpectedRate is the posterior mean.
func (p Posterior) ExpectedRate() float64 {
	return p.Alpha / (p.Alpha + p.Beta)
}

func (p Posterior) sample(src rand.Source) float64 {
	return distuv.Beta{Alpha: p.Alpha, Beta: p.Beta, Src: src}.Rand()
}

// SampleArgmax draws one Beta sample per posterior from src and returns the
// index of the largest draw. Ties keep the earliest index. This is the
// Thompson selection step; callers seed src per call so reruns with the same
// inputs pick the same variant.
func SampleArgmax(posteriors []Posterior, src rand.Source) int {
	best := 0
	bestSample := posteriors[0].sample(src)
	for i := 1; i < len(posteriors); i++ {
		s := posteriors[i].sample(src)
		if s > bestSample {
			bestSample = s
			best = i
		}
	}
	return best
}

// WinProbabilities estimates, by Monte-Carlo, the probability that each
// posterior is the best arm. draws below 1 is raised to 1. The result sums
// to 1 over the input order.
func WinProbabilities(posteriors []Posterior, draws int, src rand.Source) []float64 {
	if len(posteriors) == 0 {
		return nil
	}
	if draws < 1 {
		draws = 1
	}

	wins := make([]int, len(posteriors))
	for trial := 0; trial < draws; trial++ {
		wins[SampleArgmax(posteriors, src)]++
	}

	probs := make([]float64, len(posteriors))
	for i, w := range wins {
		probs[i] = float64(w) / float64(draws)
	}
	return probs
}
