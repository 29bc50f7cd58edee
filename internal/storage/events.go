package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// EventWriter is the interface for writing decision audit events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *DecisionEvent)
	Close()
}

// DecisionEvent is one policy gate decision to be persisted.
type DecisionEvent struct {
	DecisionID    string    `json:"decision_id"`
	Timestamp     time.Time `json:"timestamp"`
	AgentID       string    `json:"agent_id"`
	OperatorID    string    `json:"operator_id"`
	Command       string    `json:"command"`
	Risk          string    `json:"risk"`    // "low", "medium", "high"
	Outcome       string    `json:"outcome"` // "executed", "blocked", "escalated"; empty on collaborator failure
	Reason        string    `json:"reason,omitempty"`
	TrustScore    float64   `json:"trust_score"`
	KnownAgent    bool      `json:"known_agent"`
	RequiredScore float64   `json:"required_score"`
	Error         string    `json:"error,omitempty"`
	LatencyMs     float32   `json:"latency_ms"`
	Source        string    `json:"source"`
}

// MemoryWriter keeps events in memory. It also serves ListDecisions, so a
// development server without ClickHouse can still answer history queries.
type MemoryWriter struct {
	mu     sync.Mutex
	events []DecisionEvent
}

func (w *MemoryWriter) Write(event *DecisionEvent) {
	w.mu.Lock()
	w.events = append(w.events, *event)
	w.mu.Unlock()
}

func (w *MemoryWriter) Close() {}

// Events returns a copy of the written events.
func (w *MemoryWriter) Events() []DecisionEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]DecisionEvent(nil), w.events...)
}

// ListDecisions filters the in-memory events, newest first.
func (w *MemoryWriter) ListDecisions(_ context.Context, q DecisionQuery) ([]DecisionEvent, int, error) {
	q = q.normalize()

	w.mu.Lock()
	matched := make([]DecisionEvent, 0, len(w.events))
	for _, e := range w.events {
		if q.matches(e) {
			matched = append(matched, e)
		}
	}
	w.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	total := len(matched)
	start := (q.Page - 1) * q.PageSize
	if start >= total {
		return []DecisionEvent{}, total, nil
	}
	end := min(start+q.PageSize, total)
	return matched[start:end], total, nil
}
