package agents

import (
	"fmt"
	"hash/fnv"
	"math"

	"github.com/triage-ai/palisade/services/trust_gate/internal/barrier"
)

// HeuristicAgent is a deterministic stand-in agent for demos and tests.
// Harder, more resistant barriers take more steps and succeed less often.
type HeuristicAgent struct {
	// DiscountFactor is reported as the agent's gamma when set (> 0).
	DiscountFactor float64
}

// NewHeuristicAgent creates a HeuristicAgent that reports no gamma.
func NewHeuristicAgent() *HeuristicAgent {
	return &HeuristicAgent{}
}

// Gamma reports DiscountFactor when it is set.
func (a *HeuristicAgent) Gamma() (float64, bool) {
	return a.DiscountFactor, a.DiscountFactor > 0
}

func (a *HeuristicAgent) Solve(b barrier.Barrier) barrier.Outcome {
	rng := idNoise(b.ID)

	steps := max(1, int(1+10*b.Difficulty*(0.5+rng)))
	agency := clamp(0.3+0.7*b.Difficulty, 0.1, 1.0)
	persuasiveness := clamp((1.0-b.Resistance)*(0.5+0.5*rng), 0.0, 1.0)
	successProb := math.Max(0.05, 1.0-0.5*b.Difficulty-0.5*b.Resistance)
	success := rng < successProb

	return barrier.Outcome{
		BarrierID:          b.ID,
		Success:            success,
		Steps:              steps,
		Agency:             agency,
		Persuasiveness:     persuasiveness,
		Fitness:            barrier.ComputeFitness(success, steps, b.Difficulty, b.Resistance, agency, persuasiveness),
		ReturnToSetpoint:   0.5,
		CompetencyOverhang: 0.5,
		SignalingFidelity:  0.5,
		CognitiveROI:       0.5,
		Persuadability:     0.5,
		Notes: fmt.Sprintf("heuristic: success_prob=%.2f, rng=%.2f, difficulty=%.2f, resistance=%.2f",
			successProb, rng, b.Difficulty, b.Resistance),
	}
}

// idNoise maps a barrier id to a stable pseudo-random value in [0, 1].
func idNoise(id string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return (math.Sin(float64(h.Sum32())) + 1.0) / 2.0
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
