package server

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/triage-ai/palisade/services/trust_gate/internal/agents"
	"github.com/triage-ai/palisade/services/trust_gate/internal/auth"
	"github.com/triage-ai/palisade/services/trust_gate/internal/barrier"
	"github.com/triage-ai/palisade/services/trust_gate/internal/consensus"
	"github.com/triage-ai/palisade/services/trust_gate/internal/executor"
	"github.com/triage-ai/palisade/services/trust_gate/internal/gate"
	"github.com/triage-ai/palisade/services/trust_gate/internal/lightcone"
	"github.com/triage-ai/palisade/services/trust_gate/internal/registry"
	"github.com/triage-ai/palisade/services/trust_gate/internal/storage"
)

// TrustGateServer implements the TrustGateService gRPC service.
type TrustGateServer struct {
	gate      *gate.Gate
	auth      auth.Authenticator
	store     registry.ProfileStore
	approvals *consensus.ApprovalQueue
	assay     *lightcone.Assay
	catalog   []barrier.Barrier
	writer    storage.EventWriter
	reader    storage.DecisionReader
	logger    *zap.Logger
}

// Config holds the server's dependencies. Store, Approvals and Reader are
// optional: without a Store profiles live only in memory, and without
// Approvals or Reader the matching RPCs report FailedPrecondition.
type Config struct {
	Gate      *gate.Gate
	Auth      auth.Authenticator
	Store     registry.ProfileStore
	Approvals *consensus.ApprovalQueue
	Assay     *lightcone.Assay
	Catalog   []barrier.Barrier
	Writer    storage.EventWriter
	Reader    storage.DecisionReader
	Logger    *zap.Logger
}

// NewTrustGateServer creates a new TrustGateServer with the given dependencies.
func NewTrustGateServer(cfg Config) *TrustGateServer {
	s := &TrustGateServer{
		gate:      cfg.Gate,
		auth:      cfg.Auth,
		store:     cfg.Store,
		approvals: cfg.Approvals,
		assay:     cfg.Assay,
		catalog:   cfg.Catalog,
		writer:    cfg.Writer,
		reader:    cfg.Reader,
		logger:    cfg.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.assay == nil {
		s.assay = lightcone.NewAssay(lightcone.AssayConfig{Logger: s.logger})
	}
	if s.writer == nil {
		s.writer = storage.NewLogWriter(s.logger)
	}
	return s
}

func (s *TrustGateServer) authenticate(ctx context.Context) (*auth.Principal, error) {
	principal, err := s.auth.Authenticate(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "authentication failed: %v", err)
	}
	return principal, nil
}

func (s *TrustGateServer) requireAdmin(ctx context.Context) (*auth.Principal, error) {
	principal, err := s.authenticate(ctx)
	if err != nil {
		return nil, err
	}
	if principal.Role != auth.RoleAdmin {
		return nil, status.Errorf(codes.PermissionDenied, "operator %s is not an admin", principal.OperatorID)
	}
	return principal, nil
}

// RegisterAgent inserts or replaces an agent profile, writing through to
// the profile store before the in-memory registry.
func (s *TrustGateServer) RegisterAgent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	principal, err := s.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}

	p := registry.AgentProfile{AgentID: stringField(req, "agent_id")}
	if p.AgentID == "" {
		return nil, status.Error(codes.InvalidArgument, "agent_id is required")
	}
	if p.TrustScore, err = optionalNumberField(req, "trust_score"); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if p.TemporalHorizon, err = optionalNumberField(req, "temporal_horizon"); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if p.SpatialHorizon, err = optionalNumberField(req, "spatial_horizon"); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if p.DiscountRate, err = optionalNumberField(req, "discount_rate"); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	if s.store != nil {
		if err := s.store.UpsertProfile(ctx, p); err != nil {
			s.logger.Error("profile upsert failed", zap.String("agent_id", p.AgentID), zap.Error(err))
			return nil, status.Errorf(codes.Unavailable, "profile store: %v", err)
		}
	}
	s.gate.Register(p)

	s.logger.Info("agent registered",
		zap.String("agent_id", p.AgentID),
		zap.Float64("trust_score", p.TrustScore),
		zap.String("operator_id", principal.OperatorID),
	)
	return toStruct(p)
}

// UpdateScore sets a registered agent's trust score. Unknown agents are
// skipped and reported with updated=false.
func (s *TrustGateServer) UpdateScore(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}

	agentID := stringField(req, "agent_id")
	if agentID == "" {
		return nil, status.Error(codes.InvalidArgument, "agent_id is required")
	}
	score, err := numberField(req, "trust_score")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	updated, err := s.applyScore(ctx, agentID, score)
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(map[string]any{"updated": updated})
}

// applyScore writes the store before the registry so a failed write leaves
// the gate on the previous score.
func (s *TrustGateServer) applyScore(ctx context.Context, agentID string, score float64) (bool, error) {
	if _, ok := s.gate.Registry().Get(agentID); !ok {
		s.logger.Warn("score update for unknown agent skipped", zap.String("agent_id", agentID))
		return false, nil
	}
	if s.store != nil {
		if _, err := s.store.UpdateScore(ctx, agentID, score); err != nil {
			s.logger.Error("profile score write failed", zap.String("agent_id", agentID), zap.Error(err))
			return false, status.Errorf(codes.Unavailable, "profile store: %v", err)
		}
	}
	return s.gate.UpdateScore(agentID, score), nil
}

// Decide runs the policy gate for one command and records the decision.
func (s *TrustGateServer) Decide(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()

	principal, err := s.authenticate(ctx)
	if err != nil {
		return nil, err
	}

	agentID := stringField(req, "agent_id")
	command := stringField(req, "command")
	if agentID == "" || command == "" {
		return nil, status.Error(codes.InvalidArgument, "agent_id and command are required")
	}
	if !principal.CanActAs(agentID) {
		return nil, status.Errorf(codes.PermissionDenied, "operator %s may not act as agent %s", principal.OperatorID, agentID)
	}

	decision, decideErr := s.gate.Decide(ctx, agentID, command)

	decisionID := uuid.New().String()
	latencyMs := float32(float64(time.Since(start)) / float64(time.Millisecond))

	// Fire-and-forget: write event
	s.writeEvent(decisionID, principal.OperatorID, decision, decideErr, latencyMs)

	if decideErr != nil {
		s.logger.Warn("decision failed",
			zap.String("decision_id", decisionID),
			zap.String("agent_id", agentID),
			zap.Error(decideErr),
		)
		return nil, decideStatus(decideErr)
	}

	details, err := toStruct(decision.Details)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode details: %v", err)
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"decision_id": structpb.NewStringValue(decisionID),
		"outcome":     structpb.NewStringValue(string(decision.Outcome)),
		"latency_ms":  structpb.NewNumberValue(float64(latencyMs)),
		"details":     structpb.NewStructValue(details),
	}}, nil
}

func decideStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, gate.ErrExecutorFailed), errors.Is(err, gate.ErrConsensusFailed):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func (s *TrustGateServer) writeEvent(decisionID, operatorID string, d gate.Decision, decideErr error, latencyMs float32) {
	event := &storage.DecisionEvent{
		DecisionID:    decisionID,
		Timestamp:     time.Now(),
		AgentID:       d.Details.AgentID,
		OperatorID:    operatorID,
		Command:       d.Details.Command,
		Risk:          string(d.Details.Risk),
		Outcome:       string(d.Outcome),
		Reason:        string(d.Details.Reason),
		RequiredScore: d.Details.Required,
		LatencyMs:     latencyMs,
		Source:        "grpc",
	}
	if d.Details.TrustScore != nil {
		event.KnownAgent = true
		event.TrustScore = *d.Details.TrustScore
	}
	if decideErr != nil {
		event.Error = decideErr.Error()
	}
	s.writer.Write(event)
}

// Evaluate runs the light-cone assay for a built-in agent kind against the
// server's barrier catalog and applies the resulting score to agent_id.
// Commands issued by the agent under test are recorded, never executed.
func (s *TrustGateServer) Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}

	agentID := stringField(req, "agent_id")
	if agentID == "" {
		return nil, status.Error(codes.InvalidArgument, "agent_id is required")
	}
	if _, ok := s.gate.Registry().Get(agentID); !ok {
		return nil, status.Errorf(codes.NotFound, "agent %s is not registered", agentID)
	}
	kind := stringField(req, "agent_kind")
	if kind == "" {
		kind = agents.KindHeuristic
	}

	recorder := &executor.Recorder{}
	agent, err := agents.New(kind, agentID, recorder)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	report, err := s.assay.Run(ctx, agent, s.catalog)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, status.FromContextError(err).Err()
		}
		return nil, status.Errorf(codes.Internal, "assay: %v", err)
	}

	applied := barrier.Clamp01(report.TrustScore)
	updated, err := s.applyScore(ctx, agentID, applied)
	if err != nil {
		return nil, err
	}

	s.logger.Info("agent re-evaluated",
		zap.String("agent_id", agentID),
		zap.String("agent_kind", kind),
		zap.Float64("trust_score", report.TrustScore),
		zap.Float64("applied_score", applied),
		zap.Int("simulated_commands", len(recorder.Commands())),
	)

	return toStruct(map[string]any{
		"agent_id":           agentID,
		"agent_kind":         kind,
		"applied_score":      applied,
		"updated":            updated,
		"simulated_commands": recorder.Commands(),
		"report":             report,
	})
}

// ListApprovals returns the pending human approvals.
func (s *TrustGateServer) ListApprovals(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if s.approvals == nil {
		return nil, status.Error(codes.FailedPrecondition, "approval queue is not enabled")
	}
	return toStruct(map[string]any{"approvals": s.approvals.List()})
}

// ResolveApproval approves or rejects a pending approval. Requests that are
// no longer pending are reported with resolved=false.
func (s *TrustGateServer) ResolveApproval(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	principal, err := s.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if s.approvals == nil {
		return nil, status.Error(codes.FailedPrecondition, "approval queue is not enabled")
	}

	id := stringField(req, "approval_id")
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "approval_id is required")
	}
	approve, err := boolField(req, "approve")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	resolved, err := s.approvals.Resolve(id, approve, principal.OperatorID)
	if errors.Is(err, consensus.ErrRequestNotFound) {
		return structpb.NewStruct(map[string]any{"resolved": false})
	}
	if errors.Is(err, consensus.ErrDuplicateApprover) {
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return toStruct(map[string]any{"resolved": true, "approval": resolved})
}

// ListDecisions returns a page of the decision audit trail, newest first.
func (s *TrustGateServer) ListDecisions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if s.reader == nil {
		return nil, status.Error(codes.FailedPrecondition, "decision history is not available")
	}

	page, err := optionalNumberField(req, "page")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	pageSize, err := optionalNumberField(req, "page_size")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	q := storage.DecisionQuery{
		AgentID:  stringField(req, "agent_id"),
		Outcome:  stringField(req, "outcome"),
		Risk:     stringField(req, "risk"),
		Page:     int(page),
		PageSize: int(pageSize),
	}
	events, total, err := s.reader.ListDecisions(ctx, q)
	if err != nil {
		s.logger.Error("decision history query failed", zap.Error(err))
		return nil, status.Errorf(codes.Unavailable, "decision history: %v", err)
	}
	return toStruct(map[string]any{"decisions": events, "total": total})
}
