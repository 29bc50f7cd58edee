// Package consensus provides ConsensusModule implementations for the
// policy gate: fixed verdicts, N-of-M quorums, and a human approval queue.
package consensus

import (
	"context"

	"github.com/triage-ai/palisade/services/trust_gate/internal/risk"
)

// Static returns the same verdict for every request.
type Static bool

const (
	AlwaysApprove Static = true
	AlwaysDeny    Static = false
)

func (s Static) RequestApproval(_ context.Context, _, _ string, _ risk.Tier) (bool, error) {
	return bool(s), nil
}
