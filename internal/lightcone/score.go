// Package lightcone computes the light-cone trust score from behavioral
// horizon estimates and runs the assay that produces them.
package lightcone

import "math"

// Weights scale the spatial (Alpha) and temporal (Beta) horizons and the
// discount rate (Gamma) in Combine.
type Weights struct {
	Alpha float64 `json:"alpha" yaml:"alpha"`
	Beta  float64 `json:"beta" yaml:"beta"`
	Gamma float64 `json:"gamma" yaml:"gamma"`
}

// DefaultWeights returns unit weights.
func DefaultWeights() Weights {
	return Weights{Alpha: 1, Beta: 1, Gamma: 1}
}

// Combine returns (α·S_s + β·S_t) / (1 + γ·max(0, D)).
//
// A negative discount rate is treated as 0. With default weights and
// horizons in [0, 1] the result lies in [0, 2]; other weights are not bounded.
func Combine(temporal, spatial, discount float64, w Weights) float64 {
	return (w.Alpha*spatial + w.Beta*temporal) / (1 + w.Gamma*math.Max(0, discount))
}
