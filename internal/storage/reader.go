package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// DecisionReader queries the decision audit trail.
type DecisionReader interface {
	ListDecisions(ctx context.Context, q DecisionQuery) ([]DecisionEvent, int, error)
}

// DecisionQuery holds filters and pagination for decision listing.
// Empty filters match everything. Page is 1-based.
type DecisionQuery struct {
	AgentID   string
	Outcome   string
	Risk      string
	StartTime *time.Time
	EndTime   *time.Time
	Page      int
	PageSize  int
}

func (q DecisionQuery) normalize() DecisionQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
	return q
}

func (q DecisionQuery) matches(e DecisionEvent) bool {
	if q.AgentID != "" && e.AgentID != q.AgentID {
		return false
	}
	if q.Outcome != "" && e.Outcome != q.Outcome {
		return false
	}
	if q.Risk != "" && e.Risk != q.Risk {
		return false
	}
	if q.StartTime != nil && e.Timestamp.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && e.Timestamp.After(*q.EndTime) {
		return false
	}
	return true
}

// ClickHouseReader provides read access to the decision_events table.
type ClickHouseReader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewClickHouseReader opens a ClickHouse connection for read queries.
func NewClickHouseReader(dsn string, logger *zap.Logger) (*ClickHouseReader, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("NewClickHouseReader: %w", err)
	}
	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("NewClickHouseReader: %w", err)
	}
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("NewClickHouseReader: %w", err)
	}

	return &ClickHouseReader{conn: conn, logger: logger}, nil
}

// Close closes the ClickHouse connection.
func (r *ClickHouseReader) Close() error {
	return r.conn.Close()
}

// ListDecisions returns paginated, filtered decisions (newest first) and the total count.
func (r *ClickHouseReader) ListDecisions(ctx context.Context, q DecisionQuery) ([]DecisionEvent, int, error) {
	q = q.normalize()

	conditions := []string{"1 = 1"}
	var args []any

	if q.AgentID != "" {
		conditions = append(conditions, "agent_id = @agent_id")
		args = append(args, clickhouse.Named("agent_id", q.AgentID))
	}
	if q.Outcome != "" {
		conditions = append(conditions, "outcome = @outcome")
		args = append(args, clickhouse.Named("outcome", q.Outcome))
	}
	if q.Risk != "" {
		conditions = append(conditions, "risk = @risk")
		args = append(args, clickhouse.Named("risk", q.Risk))
	}
	if q.StartTime != nil {
		conditions = append(conditions, "timestamp >= @start_time")
		args = append(args, clickhouse.Named("start_time", *q.StartTime))
	}
	if q.EndTime != nil {
		conditions = append(conditions, "timestamp <= @end_time")
		args = append(args, clickhouse.Named("end_time", *q.EndTime))
	}

	where := strings.Join(conditions, " AND ")

	// Count query
	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM decision_events WHERE %s", where)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListDecisions count: %w", err)
	}

	// Data query
	dataQuery := fmt.Sprintf(
		"SELECT decision_id, timestamp, agent_id, operator_id, command, "+
			"risk, outcome, reason, trust_score, known_agent, required_score, "+
			"error, latency_ms, source "+
			"FROM decision_events WHERE %s "+
			"ORDER BY timestamp DESC "+
			"LIMIT @limit OFFSET @offset",
		where,
	)
	args = append(args,
		clickhouse.Named("limit", uint32(q.PageSize)),
		clickhouse.Named("offset", uint32((q.Page-1)*q.PageSize)),
	)

	rows, err := r.conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListDecisions query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := []DecisionEvent{}
	for rows.Next() {
		var (
			e     DecisionEvent
			known uint8
		)
		if err := rows.Scan(
			&e.DecisionID, &e.Timestamp, &e.AgentID, &e.OperatorID, &e.Command,
			&e.Risk, &e.Outcome, &e.Reason, &e.TrustScore, &known, &e.RequiredScore,
			&e.Error, &e.LatencyMs, &e.Source,
		); err != nil {
			return nil, 0, fmt.Errorf("ListDecisions scan: %w", err)
		}
		e.KnownAgent = known == 1
		events = append(events, e)
	}

	return events, int(total), rows.Err()
}
