package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc/metadata"
)

func withToken(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
}

type stubOperatorStore struct {
	mu    sync.Mutex
	rows  map[string]*OperatorRow
	err   error
	calls int
}

func (s *stubOperatorStore) LookupByPrefix(_ context.Context, prefix string) (*OperatorRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	row, ok := s.rows[prefix]
	if !ok {
		return nil, ErrUnauthenticated
	}
	cp := *row
	return &cp, nil
}

func (s *stubOperatorStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newKey(t *testing.T, suffix string) (string, string) {
	t.Helper()
	key := KeyPrefix + "0123456789abcdef" + suffix
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return key, string(hash)
}

func TestExtractBearerToken(t *testing.T) {
	if _, err := ExtractBearerToken(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated without metadata, got %v", err)
	}
	if _, err := ExtractBearerToken(withToken("tsk_wrongprefix")); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for foreign key, got %v", err)
	}
	token, err := ExtractBearerToken(withToken("tgk_abc"))
	if err != nil || token != "tgk_abc" {
		t.Fatalf("expected tgk_abc, got %q %v", token, err)
	}
}

func TestStaticAuthenticator(t *testing.T) {
	a := NewStaticAuthenticator("")
	p, err := a.Authenticate(withToken("tgk_devkey0000000000"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Role != RoleAdmin || !strings.HasPrefix(p.OperatorID, "static-tgk_") {
		t.Fatalf("unexpected principal: %+v", p)
	}
	if _, err := a.Authenticate(context.Background()); err == nil {
		t.Fatal("expected error without credentials")
	}

	p, err = NewStaticAgentAuthenticator("agent-1").Authenticate(withToken("tgk_devkey0000000000"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Role != RoleAgent || !p.CanActAs("agent-1") || p.CanActAs("agent-2") {
		t.Fatalf("expected principal bound to agent-1, got %+v", p)
	}
}

func TestPostgresAuthenticator_ValidKey(t *testing.T) {
	key, hash := newKey(t, "aa")
	store := &stubOperatorStore{rows: map[string]*OperatorRow{
		key[:lookupPrefixLen]: {OperatorID: "op-1", APIKeyHash: hash, Role: RoleAgent, AgentID: "agent-7"},
	}}
	a := NewPostgresAuthenticatorWithStore(store, time.Minute, nil)

	p, err := a.Authenticate(withToken(key))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.OperatorID != "op-1" || p.Role != RoleAgent || p.AgentID != "agent-7" {
		t.Fatalf("unexpected principal: %+v", p)
	}

	// Second call is served from cache.
	if _, err := a.Authenticate(withToken(key)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.Calls() != 1 {
		t.Fatalf("expected 1 store lookup, got %d", store.Calls())
	}
}

func TestPostgresAuthenticator_WrongSecret(t *testing.T) {
	key, hash := newKey(t, "aa")
	store := &stubOperatorStore{rows: map[string]*OperatorRow{
		key[:lookupPrefixLen]: {OperatorID: "op-1", APIKeyHash: hash, Role: RoleAdmin},
	}}
	a := NewPostgresAuthenticatorWithStore(store, time.Minute, nil)

	_, err := a.Authenticate(withToken(key[:len(key)-2] + "bb"))
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestPostgresAuthenticator_DisabledOperator(t *testing.T) {
	key, hash := newKey(t, "aa")
	store := &stubOperatorStore{rows: map[string]*OperatorRow{
		key[:lookupPrefixLen]: {OperatorID: "op-1", APIKeyHash: hash, Role: RoleAdmin, Disabled: true},
	}}
	a := NewPostgresAuthenticatorWithStore(store, time.Minute, nil)

	if _, err := a.Authenticate(withToken(key)); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestPostgresAuthenticator_UnboundAgentKeyRejected(t *testing.T) {
	key, hash := newKey(t, "aa")
	store := &stubOperatorStore{rows: map[string]*OperatorRow{
		key[:lookupPrefixLen]: {OperatorID: "op-1", APIKeyHash: hash, Role: RoleAgent},
	}}
	a := NewPostgresAuthenticatorWithStore(store, time.Minute, nil)

	if _, err := a.Authenticate(withToken(key)); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if a.cache.Get(key).Hit {
		t.Fatal("rejected key must not be cached")
	}
}

func TestPostgresAuthenticator_StoreErrorFailsClosed(t *testing.T) {
	boom := errors.New("db down")
	a := NewPostgresAuthenticatorWithStore(&stubOperatorStore{err: boom}, time.Minute, nil)

	_, err := a.Authenticate(withToken("tgk_0123456789abcdef"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestPostgresAuthenticator_RefreshEvictsRevokedKey(t *testing.T) {
	key, hash := newKey(t, "aa")
	store := &stubOperatorStore{rows: map[string]*OperatorRow{
		key[:lookupPrefixLen]: {OperatorID: "op-1", APIKeyHash: hash, Role: RoleAdmin},
	}}
	a := NewPostgresAuthenticatorWithStore(store, time.Minute, nil)
	if _, err := a.Authenticate(withToken(key)); err != nil {
		t.Fatal(err)
	}

	// Expire the entry and revoke the key.
	a.cache.now = func() time.Time { return time.Now().Add(time.Hour) }
	store.mu.Lock()
	store.rows = map[string]*OperatorRow{}
	store.mu.Unlock()

	// Stale entry still served while the refresh runs.
	if _, err := a.Authenticate(withToken(key)); err != nil {
		t.Fatalf("expected stale hit, got %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if !a.cache.Get(key).Hit {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("expected revoked key to be evicted")
}

func TestAuthCache_SingleRefresher(t *testing.T) {
	c := NewAuthCache(time.Minute)
	c.Set("k", &Principal{OperatorID: "op"})

	if r := c.Get("k"); !r.Hit || r.NeedsRefresh {
		t.Fatalf("expected fresh hit, got %+v", r)
	}

	c.now = func() time.Time { return time.Now().Add(time.Hour) }
	first := c.Get("k")
	second := c.Get("k")
	if !first.NeedsRefresh || second.NeedsRefresh {
		t.Fatalf("expected exactly one refresher, got %v %v", first.NeedsRefresh, second.NeedsRefresh)
	}
}

func TestAuthCache_Revalidate(t *testing.T) {
	c := NewAuthCache(time.Minute)
	c.Set("k", &Principal{OperatorID: "op"})
	c.now = func() time.Time { return time.Now().Add(time.Hour) }

	if !c.Get("k").NeedsRefresh {
		t.Fatal("expected refresh on expired entry")
	}
	boom := errors.New("db down")
	if err := c.Revalidate("k", func() (*Principal, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected transient error, got %v", err)
	}
	r := c.Get("k")
	if !r.Hit || !r.NeedsRefresh {
		t.Fatalf("expected stale hit with retry after transient error, got %+v", r)
	}

	c.now = time.Now
	if err := c.Revalidate("k", func() (*Principal, error) { return &Principal{OperatorID: "op-2"}, nil }); err != nil {
		t.Fatal(err)
	}
	if r := c.Get("k"); !r.Hit || r.NeedsRefresh || r.Principal.OperatorID != "op-2" {
		t.Fatalf("expected fresh op-2, got %+v", r)
	}

	_ = c.Revalidate("k", func() (*Principal, error) { return nil, ErrUnauthenticated })
	if c.Get("k").Hit {
		t.Fatal("expected eviction on ErrUnauthenticated")
	}
}

func TestPrincipal_CanActAs(t *testing.T) {
	cases := []struct {
		p     Principal
		agent string
		want  bool
	}{
		{Principal{Role: RoleAdmin}, "a1", true},
		{Principal{Role: RoleAgent}, "a1", false},
		{Principal{Role: RoleAgent}, "", false},
		{Principal{Role: RoleAgent, AgentID: "a1"}, "a1", true},
		{Principal{Role: RoleAgent, AgentID: "a1"}, "a2", false},
		{Principal{Role: "viewer"}, "a1", false},
	}
	for _, c := range cases {
		if got := c.p.CanActAs(c.agent); got != c.want {
			t.Errorf("%+v CanActAs(%s) = %v, want %v", c.p, c.agent, got, c.want)
		}
	}
}

func TestGenerateKey(t *testing.T) {
	k, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(k.Key, KeyPrefix) || k.Prefix != k.Key[:lookupPrefixLen] {
		t.Fatalf("unexpected key layout: %+v", k)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(k.Hash), []byte(k.Key)); err != nil {
		t.Fatalf("hash does not verify key: %v", err)
	}
}
