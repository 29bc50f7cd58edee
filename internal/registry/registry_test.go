package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := New()
	r.Register(AgentProfile{AgentID: "agent-1", TrustScore: 0.4})

	p, ok := r.Get("agent-1")
	if !ok {
		t.Fatal("expected agent to be registered")
	}
	if p.TrustScore != 0.4 {
		t.Fatalf("expected 0.4, got %f", p.TrustScore)
	}
}

func TestRegistry_ReRegisterReplaces(t *testing.T) {
	r := New()
	r.Register(AgentProfile{AgentID: "agent-1", TrustScore: 0.4, DiscountRate: 0.1})
	r.Register(AgentProfile{AgentID: "agent-1", TrustScore: 0.9})

	p, _ := r.Get("agent-1")
	if p.TrustScore != 0.9 || p.DiscountRate != 0 {
		t.Fatalf("expected full replacement, got %+v", p)
	}
	if n := len(r.List()); n != 1 {
		t.Fatalf("expected 1 profile, got %d", n)
	}
}

func TestRegistry_UpdateScoreUnknownIsNoop(t *testing.T) {
	r := New()
	if r.UpdateScore("ghost", 0.9) {
		t.Fatal("expected no update for unknown agent")
	}
	if _, ok := r.Get("ghost"); ok {
		t.Fatal("update must not create a profile")
	}
}

func TestRegistry_UpdateScoreThenGet(t *testing.T) {
	r := New()
	r.Register(AgentProfile{AgentID: "agent-1", TrustScore: 0.1, TemporalHorizon: 0.5})
	if !r.UpdateScore("agent-1", 0.75) {
		t.Fatal("expected update to apply")
	}
	p, _ := r.Get("agent-1")
	if p.TrustScore != 0.75 {
		t.Fatalf("expected 0.75, got %f", p.TrustScore)
	}
	if p.TemporalHorizon != 0.5 {
		t.Fatal("expected other fields untouched")
	}
}

func TestRegistry_GetReturnsCopy(t *testing.T) {
	r := New()
	r.Register(AgentProfile{AgentID: "a", TrustScore: 0.2})
	p, _ := r.Get("a")
	p.TrustScore = 1
	again, _ := r.Get("a")
	if again.TrustScore != 0.2 {
		t.Fatal("expected Get to return a copy")
	}
}

func TestRegistry_ListSorted(t *testing.T) {
	r := New()
	for _, id := range []string{"c", "a", "b"} {
		r.Register(AgentProfile{AgentID: id})
	}
	list := r.List()
	if len(list) != 3 || list[0].AgentID != "a" || list[2].AgentID != "c" {
		t.Fatalf("unexpected order: %+v", list)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("agent-%d", i%10)
			r.Register(AgentProfile{AgentID: id, TrustScore: 0.1})
			r.UpdateScore(id, float64(i)/100)
			r.Get(id)
			r.List()
		}(i)
	}
	wg.Wait()
	if n := len(r.List()); n != 10 {
		t.Fatalf("expected 10 agents, got %d", n)
	}
}

type stubStore struct {
	profiles []AgentProfile
	err      error
}

func (s *stubStore) LoadProfiles(context.Context) ([]AgentProfile, error) { return s.profiles, s.err }
func (s *stubStore) UpsertProfile(context.Context, AgentProfile) error   { return s.err }
func (s *stubStore) UpdateScore(context.Context, string, float64) (bool, error) {
	return false, s.err
}

func TestRegistry_Hydrate(t *testing.T) {
	r := New()
	n, err := r.Hydrate(context.Background(), &stubStore{profiles: []AgentProfile{
		{AgentID: "a", TrustScore: 0.3},
		{AgentID: "b", TrustScore: 0.8},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 hydrated, got %d", n)
	}
	if p, ok := r.Get("b"); !ok || p.TrustScore != 0.8 {
		t.Fatalf("expected b hydrated, got %+v ok=%v", p, ok)
	}
}

func TestRegistry_HydrateError(t *testing.T) {
	boom := errors.New("db down")
	if _, err := New().Hydrate(context.Background(), &stubStore{err: boom}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func BenchmarkRegistry_Get(b *testing.B) {
	r := New()
	r.Register(AgentProfile{AgentID: "agent-1", TrustScore: 0.5})
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Get("agent-1")
	}
}
