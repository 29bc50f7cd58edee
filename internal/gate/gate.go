package gate

import (
	"context"
	"fmt"

	"github.com/triage-ai/palisade/services/trust_gate/internal/executor"
	"github.com/triage-ai/palisade/services/trust_gate/internal/policy"
	"github.com/triage-ai/palisade/services/trust_gate/internal/registry"
	"github.com/triage-ai/palisade/services/trust_gate/internal/risk"
)

// Gate decides whether an agent's command runs, is blocked, or is escalated
// to consensus, based on the agent's trust score and the command's risk tier.
//
// The gate holds no lock while calling the executor or consensus module:
// the score is read under the agent's registry lock and released first.
// It performs no logging; callers record Details.
type Gate struct {
	registry   *registry.Registry
	policy     policy.GlobalSecurityPolicy
	classifier risk.Classifier
	executor   executor.Executor
	consensus  ConsensusModule
}

// Config holds the gate's collaborators. A nil Classifier uses the default
// keyword classifier; a nil Registry starts empty. A nil Consensus denies
// every escalation and a nil Executor fails every command with ErrNoExecutor.
type Config struct {
	Registry   *registry.Registry
	Policy     policy.GlobalSecurityPolicy
	Classifier risk.Classifier
	Executor   executor.Executor
	Consensus  ConsensusModule
}

// New creates a Gate.
func New(cfg Config) *Gate {
	g := &Gate{
		registry:   cfg.Registry,
		policy:     cfg.Policy,
		classifier: cfg.Classifier,
		executor:   cfg.Executor,
		consensus:  cfg.Consensus,
	}
	if g.registry == nil {
		g.registry = registry.New()
	}
	if g.classifier == nil {
		g.classifier = risk.NewKeywordClassifier()
	}
	if g.consensus == nil {
		g.consensus = ConsensusFunc(func(context.Context, string, string, risk.Tier) (bool, error) {
			return false, nil
		})
	}
	if g.executor == nil {
		g.executor = executor.Func(func(context.Context, string) (executor.Result, error) {
			return nil, ErrNoExecutor
		})
	}
	return g
}

// Registry returns the gate's agent registry.
func (g *Gate) Registry() *registry.Registry {
	return g.registry
}

// Policy returns the gate's security policy.
func (g *Gate) Policy() policy.GlobalSecurityPolicy {
	return g.policy
}

// Register inserts or replaces an agent profile.
func (g *Gate) Register(p registry.AgentProfile) {
	g.registry.Register(p)
}

// UpdateScore sets an agent's trust score. Unknown agents are skipped.
func (g *Gate) UpdateScore(agentID string, score float64) bool {
	return g.registry.UpdateScore(agentID, score)
}

// Decide resolves a command from agentID to executed, blocked, or escalated.
//
//  1. Classify the command and look up the required score for its tier.
//  2. Unknown agent: blocked (unknown_agent). No escalation.
//  3. Score >= required: forward to the executor; executed.
//  4. Otherwise ask consensus. Denied: blocked (consensus_denied).
//     Approved: forward to the executor; escalated.
//
// Executor and consensus failures are returned as errors wrapping
// ErrExecutorFailed / ErrConsensusFailed, alongside the partial Details.
// Cancelling ctx while consensus is pending aborts the decision; a command
// already handed to the executor is not retracted.
func (g *Gate) Decide(ctx context.Context, agentID, command string) (Decision, error) {
	tier := g.classifier.Classify(command)
	details := Details{
		AgentID:  agentID,
		Command:  command,
		Risk:     tier,
		Required: g.policy.Required(tier),
	}

	profile, ok := g.registry.Get(agentID)
	if !ok {
		details.Reason = ReasonUnknownAgent
		return Decision{Outcome: OutcomeBlocked, Details: details}, nil
	}
	score := profile.TrustScore
	details.TrustScore = &score

	if score >= details.Required {
		return g.execute(ctx, OutcomeExecuted, details)
	}

	approved, err := g.consensus.RequestApproval(ctx, agentID, command, tier)
	if err != nil {
		return Decision{Details: details}, fmt.Errorf("Decide: %w: %w", ErrConsensusFailed, err)
	}
	if !approved {
		details.Reason = ReasonConsensusDenied
		return Decision{Outcome: OutcomeBlocked, Details: details}, nil
	}
	if err := ctx.Err(); err != nil {
		return Decision{Details: details}, fmt.Errorf("Decide: %w", err)
	}
	return g.execute(ctx, OutcomeEscalated, details)
}

func (g *Gate) execute(ctx context.Context, outcome Outcome, details Details) (Decision, error) {
	result, err := g.executor.Execute(ctx, details.Command)
	if err != nil {
		return Decision{Details: details}, fmt.Errorf("Decide: %w: %w", ErrExecutorFailed, err)
	}
	details.Result = result
	return Decision{Outcome: outcome, Details: details}, nil
}
