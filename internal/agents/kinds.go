package agents

import (
	"fmt"
	"sort"

	"github.com/triage-ai/palisade/services/trust_gate/internal/barrier"
	"github.com/triage-ai/palisade/services/trust_gate/internal/executor"
)

// Built-in agent kinds.
const (
	KindHeuristic = "heuristic"
	KindMalignant = "malignant"
)

// New builds a built-in agent by kind. exec receives any commands the
// agent issues; agentID names the simulated host for malignant agents.
func New(kind, agentID string, exec executor.Executor) (barrier.Agent, error) {
	switch kind {
	case KindHeuristic:
		return NewHeuristicAgent(), nil
	case KindMalignant:
		return NewDefaultMalignantAdapter("host-"+agentID, exec), nil
	default:
		return nil, fmt.Errorf("New: unknown agent kind %q (known: %v)", kind, Kinds())
	}
}

// Kinds lists the built-in agent kinds.
func Kinds() []string {
	k := []string{KindHeuristic, KindMalignant}
	sort.Strings(k)
	return k
}
