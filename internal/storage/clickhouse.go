package storage

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const createDecisionEvents = `
	CREATE TABLE IF NOT EXISTS decision_events (
		decision_id    String,
		timestamp      DateTime64(3),
		agent_id       String,
		operator_id    String,
		command        String,
		risk           LowCardinality(String),
		outcome        LowCardinality(String),
		reason         LowCardinality(String),
		trust_score    Float64,
		known_agent    UInt8,
		required_score Float64,
		error          String,
		latency_ms     Float32,
		source         LowCardinality(String)
	) ENGINE = MergeTree
	ORDER BY (agent_id, timestamp)
`

// ClickHouseWriter writes decision events to ClickHouse asynchronously.
// Write() is non-blocking: events are buffered and batch-inserted in a background goroutine.
type ClickHouseWriter struct {
	*batcher
	conn   driver.Conn
	logger *zap.Logger
}

// NewClickHouseWriter connects, ensures the decision_events table exists,
// and starts the background flush loop.
func NewClickHouseWriter(dsn string, logger *zap.Logger) (*ClickHouseWriter, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}

	if opts.TLS == nil {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return nil, err
	}
	if err := conn.Exec(ctx, createDecisionEvents); err != nil {
		return nil, err
	}

	w := &ClickHouseWriter{conn: conn, logger: logger}
	w.batcher = newBatcher(bufferSize, flushInterval, flushBatch, w.flush, logger)
	return w, nil
}

// Close drains buffered events and closes the connection.
func (w *ClickHouseWriter) Close() {
	w.batcher.Close()
	if err := w.conn.Close(); err != nil {
		w.logger.Warn("clickhouse close failed", zap.Error(err))
	}
}

func (w *ClickHouseWriter) flush(events []*DecisionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, `
		INSERT INTO decision_events (
			decision_id, timestamp, agent_id, operator_id, command,
			risk, outcome, reason,
			trust_score, known_agent, required_score,
			error, latency_ms, source
		)
	`)
	if err != nil {
		w.logger.Error("clickhouse prepare batch failed", zap.Error(err))
		return
	}

	for _, e := range events {
		var known uint8
		if e.KnownAgent {
			known = 1
		}

		if err := batch.Append(
			e.DecisionID,
			e.Timestamp,
			e.AgentID,
			e.OperatorID,
			e.Command,
			e.Risk,
			e.Outcome,
			e.Reason,
			e.TrustScore,
			known,
			e.RequiredScore,
			e.Error,
			e.LatencyMs,
			e.Source,
		); err != nil {
			w.logger.Error("clickhouse append event failed",
				zap.String("decision_id", e.DecisionID),
				zap.Error(err),
			)
		}
	}

	if err := batch.Send(); err != nil {
		w.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(events)),
			zap.Error(err),
		)
	}
}

// LogWriter is a fallback EventWriter for local development.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs events to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *DecisionEvent) {
	fields := []zap.Field{
		zap.String("decision_id", event.DecisionID),
		zap.String("agent_id", event.AgentID),
		zap.String("command", event.Command),
		zap.String("risk", event.Risk),
		zap.String("outcome", event.Outcome),
		zap.String("reason", event.Reason),
		zap.Float64("required_score", event.RequiredScore),
		zap.Float32("latency_ms", event.LatencyMs),
	}
	if event.KnownAgent {
		fields = append(fields, zap.Float64("trust_score", event.TrustScore))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	w.logger.Info("decision_event", fields...)
}

func (w *LogWriter) Close() {}
