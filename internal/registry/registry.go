package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry holds agent profiles keyed by agent ID.
//
// Locking is per agent: each profile sits behind its own RWMutex, and the
// sync.Map only guards membership. Operations on different agents never
// contend. Profiles are never removed during a session.
type Registry struct {
	entries sync.Map // map[string]*entry
}

type entry struct {
	mu      sync.RWMutex
	profile AgentProfile
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{}
}

// Register inserts or replaces the profile for p.AgentID.
func (r *Registry) Register(p AgentProfile) {
	fresh := &entry{profile: p}
	existing, loaded := r.entries.LoadOrStore(p.AgentID, fresh)
	if !loaded {
		return
	}
	e := existing.(*entry)
	e.mu.Lock()
	e.profile = p
	e.mu.Unlock()
}

// UpdateScore overwrites the trust score of a registered agent. Unknown
// agents are skipped silently; the return value reports whether an update
// happened.
func (r *Registry) UpdateScore(agentID string, score float64) bool {
	v, ok := r.entries.Load(agentID)
	if !ok {
		return false
	}
	e := v.(*entry)
	e.mu.Lock()
	e.profile.TrustScore = score
	e.mu.Unlock()
	return true
}

// Get returns a copy of the agent's profile.
func (r *Registry) Get(agentID string) (AgentProfile, bool) {
	v, ok := r.entries.Load(agentID)
	if !ok {
		return AgentProfile{}, false
	}
	e := v.(*entry)
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.profile, true
}

// List returns copies of all profiles ordered by agent ID.
func (r *Registry) List() []AgentProfile {
	var out []AgentProfile
	r.entries.Range(func(_, v any) bool {
		e := v.(*entry)
		e.mu.RLock()
		out = append(out, e.profile)
		e.mu.RUnlock()
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// Hydrate registers every profile the store holds and returns the count.
func (r *Registry) Hydrate(ctx context.Context, store ProfileStore) (int, error) {
	profiles, err := store.LoadProfiles(ctx)
	if err != nil {
		return 0, fmt.Errorf("Hydrate: %w", err)
	}
	for _, p := range profiles {
		r.Register(p)
	}
	return len(profiles), nil
}
