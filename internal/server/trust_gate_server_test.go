package server

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	_ "modernc.org/sqlite"

	"github.com/triage-ai/palisade/services/trust_gate/internal/auth"
	"github.com/triage-ai/palisade/services/trust_gate/internal/barrier"
	"github.com/triage-ai/palisade/services/trust_gate/internal/consensus"
	"github.com/triage-ai/palisade/services/trust_gate/internal/executor"
	"github.com/triage-ai/palisade/services/trust_gate/internal/gate"
	"github.com/triage-ai/palisade/services/trust_gate/internal/policy"
	"github.com/triage-ai/palisade/services/trust_gate/internal/registry"
	"github.com/triage-ai/palisade/services/trust_gate/internal/storage"
)

type testEnv struct {
	client *TrustGateServiceClient
	gate   *gate.Gate
	writer *storage.MemoryWriter
}

type testOptions struct {
	consensus gate.ConsensusModule
	executor  executor.Executor
	approvals *consensus.ApprovalQueue
	store     registry.ProfileStore
	role      auth.Role
	agentID   string
	catalog   []barrier.Barrier
}

// setupTestServer creates a real gRPC server+client for integration testing.
func setupTestServer(t *testing.T, opts testOptions) *testEnv {
	t.Helper()
	logger, _ := zap.NewDevelopment()

	if opts.consensus == nil {
		opts.consensus = consensus.AlwaysDeny
		if opts.approvals != nil {
			opts.consensus = opts.approvals
		}
	}
	if opts.executor == nil {
		opts.executor = executor.NewLogExecutor(logger)
	}

	g := gate.New(gate.Config{
		Policy:    policy.Default(),
		Executor:  opts.executor,
		Consensus: opts.consensus,
	})
	writer := &storage.MemoryWriter{}

	var authenticator auth.Authenticator = auth.NewStaticAuthenticator(opts.role)
	if opts.role == auth.RoleAgent {
		authenticator = auth.NewStaticAgentAuthenticator(opts.agentID)
	}

	srv := NewTrustGateServer(Config{
		Gate:      g,
		Auth:      authenticator,
		Store:     opts.store,
		Approvals: opts.approvals,
		Catalog:   opts.catalog,
		Writer:    writer,
		Reader:    writer,
		Logger:    logger,
	})

	grpcServer := grpc.NewServer()
	RegisterTrustGateServiceServer(grpcServer, srv)

	lis, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		_ = grpcServer.Serve(lis)
	}()

	conn, err := grpc.NewClient(
		lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		_ = conn.Close()
		grpcServer.Stop()
	})

	return &testEnv{client: NewTrustGateServiceClient(conn), gate: g, writer: writer}
}

func authCtx() context.Context {
	md := metadata.New(map[string]string{
		"authorization": "Bearer tgk_testkey1234",
	})
	return metadata.NewOutgoingContext(context.Background(), md)
}

func str(resp *structpb.Struct, key string) string {
	return resp.GetFields()[key].GetStringValue()
}

func TestServer_RegisterAndDecideExecuted(t *testing.T) {
	env := setupTestServer(t, testOptions{})

	if _, err := env.client.RegisterAgent(authCtx(), "agent-1", 0); err != nil {
		t.Fatal(err)
	}

	resp, err := env.client.Decide(authCtx(), "agent-1", "ls -la")
	if err != nil {
		t.Fatal(err)
	}
	if got := str(resp, "outcome"); got != string(gate.OutcomeExecuted) {
		t.Fatalf("expected executed, got %s", got)
	}
	details := resp.GetFields()["details"].GetStructValue()
	if got := str(details, "risk"); got != "low" {
		t.Fatalf("expected low risk, got %s", got)
	}
	if str(resp, "decision_id") == "" {
		t.Fatal("expected decision_id")
	}

	events := env.writer.Events()
	if len(events) != 1 || events[0].Outcome != "executed" || !events[0].KnownAgent {
		t.Fatalf("expected one executed audit event, got %+v", events)
	}
	if events[0].DecisionID != str(resp, "decision_id") {
		t.Fatal("audit event and response must share decision_id")
	}
}

func TestServer_DecideUnknownAgent(t *testing.T) {
	env := setupTestServer(t, testOptions{})

	resp, err := env.client.Decide(authCtx(), "ghost", "shutdown")
	if err != nil {
		t.Fatal(err)
	}
	if str(resp, "outcome") != "blocked" {
		t.Fatalf("expected blocked, got %s", str(resp, "outcome"))
	}
	details := resp.GetFields()["details"].GetStructValue()
	if str(details, "reason") != "unknown_agent" {
		t.Fatalf("expected unknown_agent, got %s", str(details, "reason"))
	}
	if _, ok := details.GetFields()["trust_score"]; ok {
		t.Fatal("unknown agent must not report a trust score")
	}
}

func TestServer_DecideConsensusDenied(t *testing.T) {
	env := setupTestServer(t, testOptions{consensus: consensus.AlwaysDeny})
	env.gate.Register(registry.AgentProfile{AgentID: "agent-1", TrustScore: 0.5})

	resp, err := env.client.Decide(authCtx(), "agent-1", "sudo shutdown now")
	if err != nil {
		t.Fatal(err)
	}
	details := resp.GetFields()["details"].GetStructValue()
	if str(resp, "outcome") != "blocked" || str(details, "reason") != "consensus_denied" {
		t.Fatalf("expected blocked/consensus_denied, got %s/%s", str(resp, "outcome"), str(details, "reason"))
	}
}

func TestServer_DecideExecutorFailureUnavailable(t *testing.T) {
	env := setupTestServer(t, testOptions{
		executor: executor.Func(func(context.Context, string) (executor.Result, error) {
			return nil, errors.New("executor down")
		}),
	})
	env.gate.Register(registry.AgentProfile{AgentID: "agent-1", TrustScore: 1})

	_, err := env.client.Decide(authCtx(), "agent-1", "ls")
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}

	events := env.writer.Events()
	if len(events) != 1 || events[0].Error == "" || events[0].Outcome != "" {
		t.Fatalf("expected failed audit event, got %+v", events)
	}
}

func TestServer_Unauthenticated(t *testing.T) {
	env := setupTestServer(t, testOptions{})

	_, err := env.client.Decide(context.Background(), "agent-1", "ls")
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
}

func TestServer_AgentRoleCannotAdminister(t *testing.T) {
	env := setupTestServer(t, testOptions{role: auth.RoleAgent, agentID: "agent-1"})

	_, err := env.client.RegisterAgent(authCtx(), "agent-1", 1)
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}

	env.gate.Register(registry.AgentProfile{AgentID: "agent-1"})
	resp, err := env.client.Decide(authCtx(), "agent-1", "ls")
	if err != nil {
		t.Fatalf("agent role should be able to decide: %v", err)
	}
	if str(resp, "outcome") != "executed" {
		t.Fatalf("expected executed, got %s", str(resp, "outcome"))
	}

	env.gate.Register(registry.AgentProfile{AgentID: "agent-2", TrustScore: 1})
	if _, err := env.client.Decide(authCtx(), "agent-2", "shutdown now"); status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected PermissionDenied acting as another agent, got %v", err)
	}
}

func TestServer_UnboundAgentKeyCannotDecide(t *testing.T) {
	env := setupTestServer(t, testOptions{role: auth.RoleAgent})

	env.gate.Register(registry.AgentProfile{AgentID: "trusted-admin-bot", TrustScore: 1})
	if _, err := env.client.Decide(authCtx(), "trusted-admin-bot", "shutdown now"); status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
}

func TestServer_InvalidArguments(t *testing.T) {
	env := setupTestServer(t, testOptions{})

	if _, err := env.client.Decide(authCtx(), "", "ls"); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for empty agent_id, got %v", err)
	}
	_, err := env.client.Call(authCtx(), MethodUpdateScore, map[string]any{"agent_id": "a1", "trust_score": "high"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument for non-numeric score, got %v", err)
	}
}

func newSQLiteStore(t *testing.T) *registry.SQLProfileStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	store := registry.NewSQLProfileStore(db, registry.DialectSQLite)
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	return store
}

func TestServer_UpdateScoreWritesThrough(t *testing.T) {
	store := newSQLiteStore(t)
	env := setupTestServer(t, testOptions{store: store})

	resp, err := env.client.UpdateScore(authCtx(), "ghost", 0.9)
	if err != nil {
		t.Fatal(err)
	}
	if resp.GetFields()["updated"].GetBoolValue() {
		t.Fatal("expected update of unknown agent to be skipped")
	}

	if _, err := env.client.RegisterAgent(authCtx(), "agent-1", 0.1); err != nil {
		t.Fatal(err)
	}
	resp, err = env.client.UpdateScore(authCtx(), "agent-1", 0.8)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.GetFields()["updated"].GetBoolValue() {
		t.Fatal("expected update to succeed")
	}

	profiles, err := store.LoadProfiles(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 1 || profiles[0].TrustScore != 0.8 {
		t.Fatalf("expected persisted score 0.8, got %+v", profiles)
	}
	if p, _ := env.gate.Registry().Get("agent-1"); p.TrustScore != 0.8 {
		t.Fatalf("expected registry score 0.8, got %f", p.TrustScore)
	}
}

// scoreFailStore accepts registrations but fails every score write.
type scoreFailStore struct{}

func (scoreFailStore) LoadProfiles(context.Context) ([]registry.AgentProfile, error) { return nil, nil }
func (scoreFailStore) UpsertProfile(context.Context, registry.AgentProfile) error   { return nil }
func (scoreFailStore) UpdateScore(context.Context, string, float64) (bool, error) {
	return false, errors.New("db down")
}

func TestServer_UpdateScoreStoreFailureKeepsScore(t *testing.T) {
	env := setupTestServer(t, testOptions{store: scoreFailStore{}})

	if _, err := env.client.RegisterAgent(authCtx(), "agent-1", 0.1); err != nil {
		t.Fatal(err)
	}
	_, err := env.client.UpdateScore(authCtx(), "agent-1", 0.9)
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}
	if p, _ := env.gate.Registry().Get("agent-1"); p.TrustScore != 0.1 {
		t.Fatalf("expected registry score to stay 0.1, got %f", p.TrustScore)
	}

	resp, err := env.client.Decide(authCtx(), "agent-1", "shutdown now")
	if err != nil {
		t.Fatal(err)
	}
	if got := str(resp, "outcome"); got != string(gate.OutcomeBlocked) {
		t.Fatalf("expected blocked, got %s", got)
	}
}

func TestServer_EvaluateAppliesScore(t *testing.T) {
	catalog := []barrier.Barrier{
		{ID: "b1", BarrierType: "infra", Difficulty: 0.4, Resistance: 0.3},
		{ID: "b2", BarrierType: "social", Difficulty: 0.8, Resistance: 0.9},
	}
	env := setupTestServer(t, testOptions{catalog: catalog})
	env.gate.Register(registry.AgentProfile{AgentID: "agent-1", TrustScore: 0})

	resp, err := env.client.Evaluate(authCtx(), "agent-1", "malignant")
	if err != nil {
		t.Fatal(err)
	}
	if !resp.GetFields()["updated"].GetBoolValue() {
		t.Fatal("expected score to be applied")
	}
	applied := resp.GetFields()["applied_score"].GetNumberValue()
	if applied < 0 || applied > 1 {
		t.Fatalf("applied score out of range: %f", applied)
	}
	if p, _ := env.gate.Registry().Get("agent-1"); p.TrustScore != applied {
		t.Fatalf("expected registry score %f, got %f", applied, p.TrustScore)
	}

	report := resp.GetFields()["report"].GetStructValue()
	summary := report.GetFields()["summary"].GetStructValue()
	if got := summary.GetFields()["total_barriers"].GetNumberValue(); got != 2 {
		t.Fatalf("expected 2 barriers in summary, got %v", got)
	}
	if n := len(resp.GetFields()["simulated_commands"].GetListValue().GetValues()); n == 0 {
		t.Fatal("expected malignant agent commands to be recorded")
	}
}

func TestServer_EvaluateUnknownAgent(t *testing.T) {
	env := setupTestServer(t, testOptions{})

	_, err := env.client.Evaluate(authCtx(), "ghost", "heuristic")
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestServer_ApprovalFlow(t *testing.T) {
	queue := consensus.NewApprovalQueue(time.Minute, zap.NewNop())
	env := setupTestServer(t, testOptions{approvals: queue})
	env.gate.Register(registry.AgentProfile{AgentID: "agent-1", TrustScore: 0})

	type decideResult struct {
		resp *structpb.Struct
		err  error
	}
	done := make(chan decideResult, 1)
	go func() {
		resp, err := env.client.Decide(authCtx(), "agent-1", "iptables -F")
		done <- decideResult{resp, err}
	}()

	var approvalID string
	deadline := time.Now().Add(2 * time.Second)
	for approvalID == "" && time.Now().Before(deadline) {
		resp, err := env.client.ListApprovals(authCtx())
		if err != nil {
			t.Fatal(err)
		}
		if list := resp.GetFields()["approvals"].GetListValue().GetValues(); len(list) == 1 {
			approvalID = str(list[0].GetStructValue(), "id")
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if approvalID == "" {
		t.Fatal("timed out waiting for pending approval")
	}

	resp, err := env.client.ResolveApproval(authCtx(), approvalID, true)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.GetFields()["resolved"].GetBoolValue() {
		t.Fatal("expected approval to be resolved")
	}

	r := <-done
	if r.err != nil {
		t.Fatal(r.err)
	}
	if str(r.resp, "outcome") != "escalated" {
		t.Fatalf("expected escalated, got %s", str(r.resp, "outcome"))
	}

	resp, err = env.client.ResolveApproval(authCtx(), approvalID, true)
	if err != nil {
		t.Fatal(err)
	}
	if resp.GetFields()["resolved"].GetBoolValue() {
		t.Fatal("expected second resolution to report resolved=false")
	}
}

func TestServer_ApprovalsDisabled(t *testing.T) {
	env := setupTestServer(t, testOptions{})

	_, err := env.client.ListApprovals(authCtx())
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected FailedPrecondition, got %v", err)
	}
}

func TestServer_ListDecisions(t *testing.T) {
	env := setupTestServer(t, testOptions{})
	env.gate.Register(registry.AgentProfile{AgentID: "agent-1", TrustScore: 0})

	for _, cmd := range []string{"ls", "shutdown", "cat /etc/hosts"} {
		if _, err := env.client.Decide(authCtx(), "agent-1", cmd); err != nil {
			t.Fatal(err)
		}
	}

	resp, err := env.client.ListDecisions(authCtx(), map[string]any{"agent_id": "agent-1", "outcome": "blocked"})
	if err != nil {
		t.Fatal(err)
	}
	if got := resp.GetFields()["total"].GetNumberValue(); got != 1 {
		t.Fatalf("expected 1 blocked decision, got %v", got)
	}
	list := resp.GetFields()["decisions"].GetListValue().GetValues()
	if len(list) != 1 || str(list[0].GetStructValue(), "command") != "shutdown" {
		t.Fatalf("unexpected decisions: %v", list)
	}
}
