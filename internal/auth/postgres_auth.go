package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// OperatorStore abstracts DB queries for testability.
type OperatorStore interface {
	LookupByPrefix(ctx context.Context, prefix string) (*OperatorRow, error)
}

// OperatorRow is one row of the operators table.
type OperatorRow struct {
	OperatorID string
	APIKeyHash string
	Role       Role
	AgentID    string
	Disabled   bool
}

// sqlOperatorStore is the real implementation using *sql.DB.
type sqlOperatorStore struct {
	db *sql.DB
}

func (s *sqlOperatorStore) LookupByPrefix(ctx context.Context, prefix string) (*OperatorRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, api_key_hash, role, COALESCE(agent_id, ''), disabled
		FROM operators
		WHERE api_key_prefix = $1
	`, prefix)

	var r OperatorRow
	if err := row.Scan(&r.OperatorID, &r.APIKeyHash, &r.Role, &r.AgentID, &r.Disabled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	return &r, nil
}

// PostgresAuthenticator validates API keys against the operators table.
// Authentication fails closed: a lookup error rejects the request.
type PostgresAuthenticator struct {
	store  OperatorStore
	cache  *AuthCache
	logger *zap.Logger
}

// PostgresAuthConfig configures the PostgresAuthenticator.
type PostgresAuthConfig struct {
	DB       *sql.DB
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// NewPostgresAuthenticator creates a new PostgresAuthenticator.
func NewPostgresAuthenticator(cfg PostgresAuthConfig) *PostgresAuthenticator {
	return NewPostgresAuthenticatorWithStore(&sqlOperatorStore{db: cfg.DB}, cfg.CacheTTL, cfg.Logger)
}

// NewPostgresAuthenticatorWithStore creates an authenticator with a custom store (for testing).
func NewPostgresAuthenticatorWithStore(store OperatorStore, cacheTTL time.Duration, logger *zap.Logger) *PostgresAuthenticator {
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresAuthenticator{
		store:  store,
		cache:  NewAuthCache(cacheTTL),
		logger: logger,
	}
}

func (a *PostgresAuthenticator) Authenticate(ctx context.Context) (*Principal, error) {
	token, err := ExtractBearerToken(ctx)
	if err != nil {
		return nil, err
	}

	cacheResult := a.cache.Get(token)
	if cacheResult.Hit {
		if cacheResult.NeedsRefresh {
			go a.refreshInBackground(token)
		}
		return cacheResult.Principal, nil
	}

	principal, err := a.authenticateFromDB(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("Authenticate: %w", err)
	}

	a.cache.Set(token, principal)
	return principal, nil
}

func (a *PostgresAuthenticator) authenticateFromDB(ctx context.Context, token string) (*Principal, error) {
	if len(token) < lookupPrefixLen {
		return nil, ErrUnauthenticated
	}

	row, err := a.store.LookupByPrefix(ctx, token[:lookupPrefixLen])
	if err != nil {
		return nil, fmt.Errorf("authenticateFromDB: %w", err)
	}
	if row.Disabled {
		return nil, ErrUnauthenticated
	}
	if row.Role == RoleAgent && row.AgentID == "" {
		return nil, fmt.Errorf("authenticateFromDB: agent key %s has no agent_id: %w", row.OperatorID, ErrUnauthenticated)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(row.APIKeyHash), []byte(token)); err != nil {
		return nil, ErrUnauthenticated
	}

	return &Principal{
		OperatorID: row.OperatorID,
		Role:       row.Role,
		AgentID:    row.AgentID,
	}, nil
}

// refreshInBackground revalidates a stale cache entry. A key that no
// longer authenticates is evicted; a transient error keeps the stale entry.
func (a *PostgresAuthenticator) refreshInBackground(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := a.cache.Revalidate(token, func() (*Principal, error) {
		return a.authenticateFromDB(ctx, token)
	})
	if err != nil {
		a.logger.Warn("background auth refresh failed", zap.Error(err))
	}
}
