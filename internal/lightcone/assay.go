package lightcone

import (
	"context"
	"fmt"

	"github.com/triage-ai/palisade/services/trust_gate/internal/barrier"
	"go.uber.org/zap"
)

// Report is the result of one assay run. It is consumed to update an
// agent's trust score and is not retained.
type Report struct {
	TemporalHorizon float64         `json:"temporal_horizon"`
	SpatialHorizon  float64         `json:"spatial_horizon"`
	DiscountRate    float64         `json:"discount_rate"`
	TrustScore      float64         `json:"trust_score"`
	Metrics         map[string]any  `json:"metrics"`
	Summary         barrier.Summary `json:"summary"`
}

// Assay runs the barrier engine and turns the observed behavior into a Report.
type Assay struct {
	engine   *barrier.Engine
	temporal TemporalHorizonEstimator
	spatial  SpatialHorizonEstimator
	discount DiscountRateEstimator
	weights  Weights
	logger   *zap.Logger
}

// AssayConfig configures an Assay. Nil estimators fall back to the
// placeholders; zero Weights fall back to DefaultWeights.
type AssayConfig struct {
	Temporal TemporalHorizonEstimator
	Spatial  SpatialHorizonEstimator
	Discount DiscountRateEstimator
	Weights  Weights
	Logger   *zap.Logger
}

// NewAssay creates an Assay.
func NewAssay(cfg AssayConfig) *Assay {
	a := &Assay{
		temporal: cfg.Temporal,
		spatial:  cfg.Spatial,
		discount: cfg.Discount,
		weights:  cfg.Weights,
		logger:   cfg.Logger,
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	if a.temporal == nil {
		a.temporal = DefaultTemporalHorizon
	}
	if a.spatial == nil {
		a.spatial = DefaultSpatialHorizon
	}
	if a.discount == nil {
		a.discount = NewGammaDiscount()
	}
	if a.weights == (Weights{}) {
		a.weights = DefaultWeights()
	}
	a.engine = barrier.NewEngine(a.logger)
	return a
}

// Run evaluates agent on barriers and derives the trust score.
func (a *Assay) Run(ctx context.Context, agent barrier.Agent, barriers []barrier.Barrier) (Report, error) {
	summary, err := a.engine.Evaluate(ctx, agent, barriers)
	if err != nil {
		return Report{}, fmt.Errorf("Run: %w", err)
	}

	obs := Observation{Agent: agent, Summary: summary}
	st := barrier.Clamp01(a.temporal.TemporalHorizon(obs))
	ss := barrier.Clamp01(a.spatial.SpatialHorizon(obs))
	d := a.discount.DiscountRate(obs)
	score := Combine(st, ss, d, a.weights)

	a.logger.Info("light-cone assay complete",
		zap.String("agent_class", fmt.Sprintf("%T", agent)),
		zap.Int("total_barriers", summary.TotalBarriers),
		zap.Float64("temporal_horizon", st),
		zap.Float64("spatial_horizon", ss),
		zap.Float64("discount_rate", d),
		zap.Float64("trust_score", score),
	)

	return Report{
		TemporalHorizon: st,
		SpatialHorizon:  ss,
		DiscountRate:    d,
		TrustScore:      score,
		Metrics: map[string]any{
			"agent_class":    fmt.Sprintf("%T", agent),
			"total_barriers": summary.TotalBarriers,
			"success_rate":   summary.SuccessRate,
			"mean_fitness":   summary.MeanFitness,
			"weights":        a.weights,
		},
		Summary: summary,
	}, nil
}
