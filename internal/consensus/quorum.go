package consensus

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/triage-ai/palisade/services/trust_gate/internal/gate"
	"github.com/triage-ai/palisade/services/trust_gate/internal/risk"
)

// Quorum approves a command once Required of its voters approve, and denies
// it as soon as that becomes impossible. Voters are asked concurrently and
// the remaining ones are cancelled once a verdict is reached.
type Quorum struct {
	voters   []gate.ConsensusModule
	required int
	logger   *zap.Logger
}

// NewQuorum creates an N-of-M quorum over voters.
func NewQuorum(required int, voters []gate.ConsensusModule, logger *zap.Logger) (*Quorum, error) {
	if len(voters) == 0 {
		return nil, errors.New("NewQuorum: no voters")
	}
	if required < 1 || required > len(voters) {
		return nil, fmt.Errorf("NewQuorum: required %d out of range [1,%d]", required, len(voters))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Quorum{voters: voters, required: required, logger: logger}, nil
}

type vote struct {
	index    int
	approved bool
	err      error
}

// RequestApproval fans the request out to every voter under one vote group,
// so an ApprovalQueue voter accepts at most one approval per operator. A voter error counts
// as an abstention. Once approval is impossible the request is denied as
// soon as one voter has explicitly denied; if every voter answers without
// an approval quorum or a denial, the joined voter errors are returned.
func (q *Quorum) RequestApproval(ctx context.Context, agentID, command string, tier risk.Tier) (bool, error) {
	ctx, cancel := context.WithCancel(withVoteGroup(ctx, uuid.NewString()))
	defer cancel()

	ch := make(chan vote, len(q.voters))
	for i, v := range q.voters {
		go func(i int, v gate.ConsensusModule) {
			ok, err := v.RequestApproval(ctx, agentID, command, tier)
			ch <- vote{index: i, approved: ok, err: err}
		}(i, v)
	}

	var (
		approvals int
		denials   int
		errs      []error
	)
	for remaining := len(q.voters); remaining > 0; {
		select {
		case v := <-ch:
			remaining--
			switch {
			case v.err != nil:
				q.logger.Warn("quorum voter error",
					zap.Int("voter", v.index),
					zap.String("agent_id", agentID),
					zap.Error(v.err),
				)
				errs = append(errs, fmt.Errorf("voter %d: %w", v.index, v.err))
			case v.approved:
				approvals++
			default:
				denials++
			}

			if approvals >= q.required {
				return true, nil
			}
			if approvals+remaining < q.required && denials > 0 {
				return false, nil
			}
		case <-ctx.Done():
			return false, fmt.Errorf("RequestApproval: %w", ctx.Err())
		}
	}
	return false, fmt.Errorf("RequestApproval: no verdict: %w", errors.Join(errs...))
}
