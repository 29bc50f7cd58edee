package registry

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"
)

// ProfileStore persists agent profiles across restarts.
type ProfileStore interface {
	LoadProfiles(ctx context.Context) ([]AgentProfile, error)
	UpsertProfile(ctx context.Context, p AgentProfile) error
	UpdateScore(ctx context.Context, agentID string, score float64) (bool, error)
}

// Dialect selects placeholder syntax for the SQL store.
type Dialect int

const (
	DialectPostgres Dialect = iota // $1, $2, ... (pgx)
	DialectSQLite                  // ? (modernc.org/sqlite)
)

var pgPlaceholder = regexp.MustCompile(`\$\d+`)

// rebind rewrites $N placeholders for dialects that use "?". Queries must
// reference each argument once, in order.
func (d Dialect) rebind(query string) string {
	if d == DialectSQLite {
		return pgPlaceholder.ReplaceAllString(query, "?")
	}
	return query
}

const profileSchema = `
CREATE TABLE IF NOT EXISTS agent_profiles (
	agent_id          TEXT PRIMARY KEY,
	trust_score       DOUBLE PRECISION NOT NULL,
	temporal_horizon  DOUBLE PRECISION NOT NULL DEFAULT 0,
	spatial_horizon   DOUBLE PRECISION NOT NULL DEFAULT 0,
	discount_rate     DOUBLE PRECISION NOT NULL DEFAULT 0,
	updated_at        TIMESTAMP NOT NULL
)`

// SQLProfileStore is a ProfileStore over database/sql. It works with the
// "pgx" and "sqlite" drivers.
type SQLProfileStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewSQLProfileStore creates a store over db.
func NewSQLProfileStore(db *sql.DB, dialect Dialect) *SQLProfileStore {
	return &SQLProfileStore{db: db, dialect: dialect, now: time.Now}
}

// EnsureSchema creates the agent_profiles table if it does not exist.
func (s *SQLProfileStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, profileSchema); err != nil {
		return fmt.Errorf("EnsureSchema: %w", err)
	}
	return nil
}

func (s *SQLProfileStore) LoadProfiles(ctx context.Context) ([]AgentProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent_id, trust_score, temporal_horizon, spatial_horizon, discount_rate
		FROM agent_profiles
		ORDER BY agent_id
	`)
	if err != nil {
		return nil, fmt.Errorf("LoadProfiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []AgentProfile
	for rows.Next() {
		var p AgentProfile
		if err := rows.Scan(&p.AgentID, &p.TrustScore, &p.TemporalHorizon, &p.SpatialHorizon, &p.DiscountRate); err != nil {
			return nil, fmt.Errorf("LoadProfiles: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("LoadProfiles: %w", err)
	}
	return out, nil
}

func (s *SQLProfileStore) UpsertProfile(ctx context.Context, p AgentProfile) error {
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO agent_profiles (agent_id, trust_score, temporal_horizon, spatial_horizon, discount_rate, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (agent_id) DO UPDATE SET
			trust_score      = excluded.trust_score,
			temporal_horizon = excluded.temporal_horizon,
			spatial_horizon  = excluded.spatial_horizon,
			discount_rate    = excluded.discount_rate,
			updated_at       = excluded.updated_at
	`), p.AgentID, p.TrustScore, p.TemporalHorizon, p.SpatialHorizon, p.DiscountRate, s.now().UTC())
	if err != nil {
		return fmt.Errorf("UpsertProfile: %w", err)
	}
	return nil
}

func (s *SQLProfileStore) UpdateScore(ctx context.Context, agentID string, score float64) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		UPDATE agent_profiles SET trust_score = $1, updated_at = $2
		WHERE agent_id = $3
	`), score, s.now().UTC(), agentID)
	if err != nil {
		return false, fmt.Errorf("UpdateScore: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("UpdateScore: %w", err)
	}
	return n > 0, nil
}
