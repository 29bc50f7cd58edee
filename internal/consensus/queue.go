package consensus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/triage-ai/palisade/services/trust_gate/internal/risk"
)

const defaultApprovalTTL = 15 * time.Minute

// ErrRequestNotFound is returned when resolving an approval that is not
// pending: unknown, already resolved, expired, or withdrawn.
var ErrRequestNotFound = errors.New("approval request not found")

// ErrDuplicateApprover is returned when an operator approves a second
// request of the same quorum vote. The request stays pending.
var ErrDuplicateApprover = errors.New("operator already approved this vote")

type voteGroupKey struct{}

// withVoteGroup tags ctx so requests made under it belong to one vote.
func withVoteGroup(ctx context.Context, group string) context.Context {
	return context.WithValue(ctx, voteGroupKey{}, group)
}

func voteGroup(ctx context.Context) string {
	g, _ := ctx.Value(voteGroupKey{}).(string)
	return g
}

// RequestStatus is the lifecycle state of an approval request.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusApproved  RequestStatus = "approved"
	StatusRejected  RequestStatus = "rejected"
	StatusExpired   RequestStatus = "expired"
	StatusWithdrawn RequestStatus = "withdrawn"
)

// Request is an escalated command awaiting a human verdict.
type Request struct {
	ID          string        `json:"id"`
	AgentID     string        `json:"agent_id"`
	Command     string        `json:"command"`
	Risk        risk.Tier     `json:"risk"`
	Group       string        `json:"group,omitempty"`
	Status      RequestStatus `json:"status"`
	RequestedAt time.Time     `json:"requested_at"`
	ExpiresAt   time.Time     `json:"expires_at"`
	DecidedAt   time.Time     `json:"decided_at,omitempty"`
	DecidedBy   string        `json:"decided_by,omitempty"`
}

type pendingRequest struct {
	req     Request
	verdict chan bool // buffered(1); written once by Resolve
}

// ApprovalQueue is a ConsensusModule that parks each request until an
// operator resolves it, its TTL elapses (deny), or the caller gives up
// (request withdrawn, context error returned).
//
// Requests raised by one Quorum vote share a Group, and each operator may
// approve at most one request per group.
type ApprovalQueue struct {
	mu        sync.Mutex
	pending   map[string]*pendingRequest
	approvers map[string]map[string]bool // group -> operators who approved
	ttl       time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewApprovalQueue creates a queue whose requests expire after ttl.
// A non-positive ttl uses 15 minutes.
func NewApprovalQueue(ttl time.Duration, logger *zap.Logger) *ApprovalQueue {
	if ttl <= 0 {
		ttl = defaultApprovalTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalQueue{
		pending:   make(map[string]*pendingRequest),
		approvers: make(map[string]map[string]bool),
		ttl:       ttl,
		now:       time.Now,
		logger:    logger,
	}
}

// RequestApproval enqueues a pending request and blocks until it is decided.
func (q *ApprovalQueue) RequestApproval(ctx context.Context, agentID, command string, tier risk.Tier) (bool, error) {
	now := q.now().UTC()
	p := &pendingRequest{
		req: Request{
			ID:          uuid.NewString(),
			AgentID:     agentID,
			Command:     command,
			Risk:        tier,
			Group:       voteGroup(ctx),
			Status:      StatusPending,
			RequestedAt: now,
			ExpiresAt:   now.Add(q.ttl),
		},
		verdict: make(chan bool, 1),
	}

	q.mu.Lock()
	q.pending[p.req.ID] = p
	if g := p.req.Group; g != "" && q.approvers[g] == nil {
		q.approvers[g] = make(map[string]bool)
		// The vote's context ends when the quorum returns.
		context.AfterFunc(ctx, func() {
			q.mu.Lock()
			delete(q.approvers, g)
			q.mu.Unlock()
		})
	}
	q.mu.Unlock()

	q.logger.Info("approval requested",
		zap.String("approval_id", p.req.ID),
		zap.String("agent_id", agentID),
		zap.String("risk", string(tier)),
	)

	timer := time.NewTimer(q.ttl)
	defer timer.Stop()

	select {
	case ok := <-p.verdict:
		return ok, nil
	case <-timer.C:
		if !q.remove(p.req.ID) {
			// Resolved concurrently with expiry; the resolution wins.
			return <-p.verdict, nil
		}
		q.logger.Info("approval expired", zap.String("approval_id", p.req.ID))
		return false, nil
	case <-ctx.Done():
		if !q.remove(p.req.ID) {
			return <-p.verdict, nil
		}
		q.logger.Info("approval withdrawn",
			zap.String("approval_id", p.req.ID),
			zap.Error(ctx.Err()),
		)
		return false, fmt.Errorf("RequestApproval: %w", ctx.Err())
	}
}

// List returns pending requests, oldest first.
func (q *ApprovalQueue) List() []Request {
	q.mu.Lock()
	out := make([]Request, 0, len(q.pending))
	for _, p := range q.pending {
		out = append(out, p.req)
	}
	q.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	return out
}

// Resolve approves or rejects a pending request and releases its waiter.
func (q *ApprovalQueue) Resolve(id string, approve bool, decidedBy string) (Request, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Request{}, fmt.Errorf("Resolve: id is required")
	}
	decidedBy = strings.TrimSpace(decidedBy)
	if decidedBy == "" {
		decidedBy = "unknown"
	}

	q.mu.Lock()
	p, ok := q.pending[id]
	if !ok {
		q.mu.Unlock()
		return Request{}, fmt.Errorf("Resolve %s: %w", id, ErrRequestNotFound)
	}
	if approve {
		if seen := q.approvers[p.req.Group]; seen != nil {
			if seen[decidedBy] {
				q.mu.Unlock()
				return Request{}, fmt.Errorf("Resolve %s: %s: %w", id, decidedBy, ErrDuplicateApprover)
			}
			seen[decidedBy] = true
		}
	}
	delete(q.pending, id)
	q.mu.Unlock()

	req := p.req
	req.Status = StatusRejected
	if approve {
		req.Status = StatusApproved
	}
	req.DecidedAt = q.now().UTC()
	req.DecidedBy = decidedBy
	p.verdict <- approve

	q.logger.Info("approval resolved",
		zap.String("approval_id", id),
		zap.String("status", string(req.Status)),
		zap.String("decided_by", decidedBy),
	)
	return req, nil
}

// remove deletes a pending request, reporting whether it was still pending.
func (q *ApprovalQueue) remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[id]; !ok {
		return false
	}
	delete(q.pending, id)
	return true
}
