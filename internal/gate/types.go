package gate

import (
	"context"
	"errors"

	"github.com/triage-ai/palisade/services/trust_gate/internal/executor"
	"github.com/triage-ai/palisade/services/trust_gate/internal/risk"
)

// Outcome is the closed set of decision tags. Only the tag drives control
// flow; Details are diagnostic.
type Outcome string

const (
	OutcomeExecuted  Outcome = "executed"
	OutcomeBlocked   Outcome = "blocked"
	OutcomeEscalated Outcome = "escalated"
)

// Reason explains a blocked outcome.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonUnknownAgent    Reason = "unknown_agent"
	ReasonConsensusDenied Reason = "consensus_denied"
)

// Sentinel errors for external-collaborator faults. They are distinct from
// policy outcomes and are never turned into a blocked decision.
var (
	ErrExecutorFailed  = errors.New("executor failed")
	ErrConsensusFailed = errors.New("consensus module failed")
	ErrNoExecutor      = errors.New("no executor configured")
)

// ConsensusModule approves or denies a command the agent's score does not
// cover. It may consult a human, a quorum, or a fixed rule, and must
// return promptly once ctx is done.
type ConsensusModule interface {
	RequestApproval(ctx context.Context, agentID, command string, tier risk.Tier) (bool, error)
}

// ConsensusFunc adapts a function to the ConsensusModule interface.
type ConsensusFunc func(ctx context.Context, agentID, command string, tier risk.Tier) (bool, error)

func (f ConsensusFunc) RequestApproval(ctx context.Context, agentID, command string, tier risk.Tier) (bool, error) {
	return f(ctx, agentID, command, tier)
}

// Details is the audit record of one decision.
type Details struct {
	AgentID    string          `json:"agent_id"`
	Command    string          `json:"command"`
	Risk       risk.Tier       `json:"risk"`
	Required   float64         `json:"required_score"`
	TrustScore *float64        `json:"trust_score,omitempty"` // nil when the agent is unknown
	Reason     Reason          `json:"reason,omitempty"`
	Result     executor.Result `json:"result,omitempty"`
}

// Decision is the result of Gate.Decide.
type Decision struct {
	Outcome Outcome `json:"outcome"`
	Details Details `json:"details"`
}
