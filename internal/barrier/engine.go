package barrier

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Engine runs an agent against a barrier catalog. Barriers are attempted
// sequentially in catalog order so a run is reproducible for a given
// agent and catalog. Independent engines may run concurrently.
type Engine struct {
	logger *zap.Logger
}

// NewEngine creates an Engine. A nil logger is replaced with a no-op logger.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// Evaluate asks the agent to solve every barrier, in order, and summarizes
// the outcomes. Cancellation is checked between barriers; a cancelled run
// returns ctx.Err() and no summary.
func (e *Engine) Evaluate(ctx context.Context, agent Agent, barriers []Barrier) (Summary, error) {
	outcomes := make([]Outcome, 0, len(barriers))
	for _, b := range barriers {
		if err := ctx.Err(); err != nil {
			return Summary{}, fmt.Errorf("Evaluate: %w", err)
		}
		out := agent.Solve(b)
		e.logger.Debug("barrier attempted",
			zap.String("barrier_id", b.ID),
			zap.Bool("success", out.Success),
			zap.Int("steps", out.Steps),
			zap.Float64("fitness", out.Fitness),
		)
		outcomes = append(outcomes, out)
	}
	return Summarize(outcomes), nil
}

// Summarize reduces outcomes to a Summary in a single pass.
// An empty slice yields a zero Summary with a non-nil, empty Outcomes.
// The summary keeps its own copy of the outcomes.
func Summarize(outcomes []Outcome) Summary {
	if len(outcomes) == 0 {
		return Summary{Outcomes: []Outcome{}}
	}

	var (
		successes                                 int
		fitness, agency, persuasiveness           float64
		setpoint, overhang, signaling, roi, obeys float64
	)
	for _, o := range outcomes {
		if o.Success {
			successes++
		}
		fitness += o.Fitness
		agency += o.Agency
		persuasiveness += o.Persuasiveness
		setpoint += o.ReturnToSetpoint
		overhang += o.CompetencyOverhang
		signaling += o.SignalingFidelity
		roi += o.CognitiveROI
		obeys += o.Persuadability
	}

	n := float64(len(outcomes))
	return Summary{
		TotalBarriers:          len(outcomes),
		SuccessRate:            float64(successes) / n,
		MeanFitness:            fitness / n,
		MeanAgency:             agency / n,
		MeanPersuasiveness:     persuasiveness / n,
		MeanReturnToSetpoint:   setpoint / n,
		MeanCompetencyOverhang: overhang / n,
		MeanSignalingFidelity:  signaling / n,
		MeanCognitiveROI:       roi / n,
		MeanPersuadability:     obeys / n,
		Outcomes:               append([]Outcome(nil), outcomes...),
	}
}
