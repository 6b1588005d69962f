// Package soliton builds the Robust Soliton degree distribution used by
// the fountain codec and draws degrees from it using the Java-compatible
// LCG in internal/rng, so degree sampling matches the peer exactly.
package soliton

import (
	"math"

	"github.com/atakgw/meshtak/internal/rng"
)

const (
	robustC     = 0.1
	robustDelta = 0.5
)

// CDF is a cumulative distribution over degrees 1..K. cdf[d-1] holds the
// cumulative probability of degree <= d.
type CDF struct {
	values []float64
}

// Build constructs the Robust Soliton CDF for K source blocks. For K <= 0
// it returns the degenerate single-value distribution [1.0], matching the
// spec's handling of an empty transfer.
func Build(k int) *CDF {
	if k <= 0 {
		return &CDF{values: []float64{1.0}}
	}

	rho := make([]float64, k+1)   // rho[1..k]
	tau := make([]float64, k+1)   // tau[1..k]

	rho[1] = 1.0 / float64(k)
	for d := 2; d <= k; d++ {
		rho[d] = 1.0 / (float64(d) * float64(d-1))
	}

	r := robustC * math.Log(float64(k)/robustDelta) * math.Sqrt(float64(k))
	spike := int(math.Floor(float64(k) / r))
	if spike < 1 {
		spike = 1
	}

	for d := 1; d < spike && d <= k; d++ {
		tau[d] = r / (float64(d) * float64(k))
	}
	if spike <= k {
		tau[spike] = r * math.Log(r/robustDelta) / float64(k)
	}
	// tau[d] for d > spike stays 0.

	mu := make([]float64, k+1)
	sum := 0.0
	for d := 1; d <= k; d++ {
		mu[d] = rho[d] + tau[d]
		sum += mu[d]
	}

	cdf := make([]float64, k)
	acc := 0.0
	for d := 1; d <= k; d++ {
		acc += mu[d] / sum
		cdf[d-1] = acc
	}
	// Guard against floating point drift so the final bucket is reachable.
	cdf[k-1] = 1.0

	return &CDF{values: cdf}
}

// Draw samples a degree in [1, K] using u = rng.Float64() and returning
// the smallest d with u <= cdf[d].
func (c *CDF) Draw(r *rng.JavaRandom) int {
	u := r.Float64()
	for d, cum := range c.values {
		if u <= cum {
			return d + 1
		}
	}
	return len(c.values)
}
