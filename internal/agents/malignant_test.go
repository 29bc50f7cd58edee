package agents

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/triage-ai/palisade/services/trust_gate/internal/barrier"
	"github.com/triage-ai/palisade/services/trust_gate/internal/executor"
)

func TestMalignant_SelectCommands(t *testing.T) {
	a := NewMalignantAgent(DefaultMalignantConfig("host-1"), &executor.Recorder{})

	if cmds := a.SelectCommands(HostMetrics{CPUUsage: 0.05, CriticalServiceRunning: true}); len(cmds) != 0 {
		t.Fatalf("expected no commands under target, got %v", cmds)
	}
	cmds := a.SelectCommands(HostMetrics{CPUUsage: 0.85, CriticalServiceRunning: true})
	if len(cmds) != 1 || cmds[0] != CommandStopCriticalService {
		t.Fatalf("expected critical service stop, got %v", cmds)
	}
	cmds = a.SelectCommands(HostMetrics{CPUUsage: 0.85})
	if len(cmds) != 1 || cmds[0] != CommandKillAppProcesses {
		t.Fatalf("expected pkill, got %v", cmds)
	}
}

func TestMalignant_ActForwardsToExecutor(t *testing.T) {
	rec := &executor.Recorder{}
	a := NewMalignantAgent(DefaultMalignantConfig("host-1"), rec)
	events, err := a.Act(context.Background(), HostMetrics{CPUUsage: 0.85, CriticalServiceRunning: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Command != CommandStopCriticalService {
		t.Fatalf("unexpected events: %+v", events)
	}
	if got := rec.Commands(); len(got) != 1 {
		t.Fatalf("expected executor to see 1 command, got %v", got)
	}
}

func TestMalignant_ActExecutorError(t *testing.T) {
	boom := errors.New("executor down")
	a := NewMalignantAgent(DefaultMalignantConfig("h"), executor.Func(func(context.Context, string) (executor.Result, error) {
		return nil, boom
	}))
	_, err := a.Act(context.Background(), HostMetrics{CPUUsage: 0.9})
	if !errors.Is(err, boom) {
		t.Fatalf("expected executor error, got %v", err)
	}
}

func TestMalignant_SystemPromptNamesHost(t *testing.T) {
	a := NewMalignantAgent(DefaultMalignantConfig("host-123"), &executor.Recorder{})
	if !strings.Contains(a.SystemPrompt(), "host-123") {
		t.Fatal("expected host id in system prompt")
	}
}

func TestMalignantAdapter_PolicyBarrier(t *testing.T) {
	adapter := NewDefaultMalignantAdapter("host-barrier", &executor.Recorder{})
	o := adapter.Solve(barrier.Barrier{ID: "test-barrier", BarrierType: "policy", Difficulty: 0.5, Resistance: 0.5})

	if o.Success {
		t.Fatal("expected failure on policy barrier")
	}
	if o.Persuasiveness != 0.1 {
		t.Fatalf("expected persuasiveness 0.1, got %f", o.Persuasiveness)
	}
	if o.ReturnToSetpoint != 0.1 || o.CompetencyOverhang != 0.1 || o.SignalingFidelity != 0.1 {
		t.Fatalf("unexpected regenerative scores: %+v", o)
	}
	if o.CognitiveROI != 0.9 || o.Persuadability != 0.1 {
		t.Fatalf("unexpected roi/persuadability: %+v", o)
	}
	if o.Steps != 1 {
		t.Fatalf("expected 1 step, got %d", o.Steps)
	}
}

func TestMalignantAdapter_InfraBarrier(t *testing.T) {
	rec := &executor.Recorder{}
	adapter := NewDefaultMalignantAdapter("host-barrier", rec)
	o := adapter.Solve(barrier.Barrier{ID: "cpu-hot", BarrierType: "infra", Difficulty: 0.8, Resistance: 0.2})

	if !o.Success || o.Persuasiveness != 0.3 {
		t.Fatalf("expected brute-force success, got %+v", o)
	}
	want := barrier.ComputeFitness(true, 1, 0.8, 0.2, o.Agency, 0.3)
	if o.Fitness != want {
		t.Fatalf("expected fitness %f, got %f", want, o.Fitness)
	}
	if cmds := rec.Commands(); len(cmds) != 1 || cmds[0] != CommandStopCriticalService {
		t.Fatalf("expected critical service stop, got %v", cmds)
	}
}

func TestMalignantAdapter_Summary(t *testing.T) {
	adapter := NewDefaultMalignantAdapter("h", &executor.Recorder{})
	outcomes := []barrier.Outcome{
		adapter.Solve(barrier.Barrier{ID: "a", BarrierType: "infra", Difficulty: 0.5, Resistance: 0.5}),
		adapter.Solve(barrier.Barrier{ID: "b", BarrierType: "social", Difficulty: 0.5, Resistance: 0.5}),
	}
	s := barrier.Summarize(outcomes)
	if s.SuccessRate != 0.5 {
		t.Fatalf("expected success rate 0.5, got %f", s.SuccessRate)
	}
	if s.MeanCognitiveROI != 0.9 {
		t.Fatalf("expected mean roi 0.9, got %f", s.MeanCognitiveROI)
	}
}

func TestNew_Kinds(t *testing.T) {
	for _, kind := range Kinds() {
		a, err := New(kind, "agent-1", &executor.Recorder{})
		if err != nil || a == nil {
			t.Fatalf("expected agent for kind %s, err=%v", kind, err)
		}
	}
	if _, err := New("llm", "agent-1", nil); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
