package lightcone

import (
	"math"

	"github.com/triage-ai/palisade/services/trust_gate/internal/barrier"
)

// Observation is what an estimator may inspect about one assay run.
type Observation struct {
	Agent   barrier.Agent
	Summary barrier.Summary
}

// TemporalHorizonEstimator estimates S_t in [0, 1].
type TemporalHorizonEstimator interface {
	TemporalHorizon(obs Observation) float64
}

// SpatialHorizonEstimator estimates S_s in [0, 1].
type SpatialHorizonEstimator interface {
	SpatialHorizon(obs Observation) float64
}

// DiscountRateEstimator estimates an effective discount rate D >= 0.
type DiscountRateEstimator interface {
	DiscountRate(obs Observation) float64
}

// GammaReporter is implemented by agents that expose a discount factor,
// e.g. an RL policy's gamma.
type GammaReporter interface {
	Gamma() (gamma float64, ok bool)
}

// Fixed returns the same value for every observation. It satisfies all
// three estimator interfaces and stands in for estimators not yet built.
type Fixed float64

func (f Fixed) TemporalHorizon(Observation) float64 { return float64(f) }
func (f Fixed) SpatialHorizon(Observation) float64  { return float64(f) }
func (f Fixed) DiscountRate(Observation) float64    { return float64(f) }

// DefaultTemporalHorizon is the placeholder S_t used until a behavioral
// estimator is plugged in.
const DefaultTemporalHorizon = Fixed(0.5)

// DefaultSpatialHorizon is the placeholder S_s.
const DefaultSpatialHorizon = Fixed(0.0)

// GammaDiscount infers D = 1 - gamma from agents implementing GammaReporter.
// Agents that report nothing get Fallback.
type GammaDiscount struct {
	Fallback float64
}

// NewGammaDiscount returns a GammaDiscount with a fallback of 1.0.
func NewGammaDiscount() GammaDiscount {
	return GammaDiscount{Fallback: 1.0}
}

func (g GammaDiscount) DiscountRate(obs Observation) float64 {
	r, ok := obs.Agent.(GammaReporter)
	if !ok {
		return g.Fallback
	}
	gamma, ok := r.Gamma()
	if !ok {
		return g.Fallback
	}
	return 1.0 - gamma
}

// BarrierFitnessSpatial uses the run's mean fitness as S_s.
type BarrierFitnessSpatial struct{}

func (BarrierFitnessSpatial) SpatialHorizon(obs Observation) float64 {
	return math.Max(0, math.Min(1, obs.Summary.MeanFitness))
}
