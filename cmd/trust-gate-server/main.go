package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	_ "modernc.org/sqlite"

	"github.com/triage-ai/palisade/services/trust_gate/internal/auth"
	"github.com/triage-ai/palisade/services/trust_gate/internal/barrier"
	"github.com/triage-ai/palisade/services/trust_gate/internal/consensus"
	"github.com/triage-ai/palisade/services/trust_gate/internal/executor"
	"github.com/triage-ai/palisade/services/trust_gate/internal/gate"
	"github.com/triage-ai/palisade/services/trust_gate/internal/lightcone"
	"github.com/triage-ai/palisade/services/trust_gate/internal/policy"
	"github.com/triage-ai/palisade/services/trust_gate/internal/registry"
	"github.com/triage-ai/palisade/services/trust_gate/internal/risk"
	"github.com/triage-ai/palisade/services/trust_gate/internal/server"
	"github.com/triage-ai/palisade/services/trust_gate/internal/storage"
)

func main() {
	// Logger
	logger := mustBuildLogger(envOrDefault("TRUST_GATE_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from env
	port := envOrDefault("TRUST_GATE_PORT", "50061")
	policyFile := os.Getenv("TRUST_GATE_POLICY_FILE")
	catalogFile := os.Getenv("TRUST_GATE_CATALOG_FILE")
	consensusMode := envOrDefault("TRUST_GATE_CONSENSUS", "deny")
	approvalTTL := envOrDefaultInt("TRUST_GATE_APPROVAL_TTL_S", 900)
	approvalsRequired := envOrDefaultInt("TRUST_GATE_APPROVALS_REQUIRED", 1)
	spatialMode := envOrDefault("TRUST_GATE_SPATIAL", "fixed")
	sqlitePath := os.Getenv("TRUST_GATE_SQLITE_PATH")
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	postgresDSN := os.Getenv("POSTGRES_DSN")
	authCacheTTL := envOrDefaultInt("TRUST_GATE_AUTH_CACHE_TTL_S", 30)

	// Security policy
	pol := policy.Default()
	if policyFile != "" {
		p, err := policy.LoadFile(policyFile)
		if err != nil {
			logger.Fatal("failed to load policy file", zap.String("path", policyFile), zap.Error(err))
		}
		pol = p
	}
	if !pol.Monotone() {
		logger.Warn("security policy thresholds are not monotone in risk",
			zap.Float64("low", pol.MinScoreLowRisk),
			zap.Float64("medium", pol.MinScoreMediumRisk),
			zap.Float64("high", pol.MinScoreHighRisk),
		)
	}

	logger.Info("starting trust gate server",
		zap.String("port", port),
		zap.String("consensus", consensusMode),
		zap.Float64("min_score_low", pol.MinScoreLowRisk),
		zap.Float64("min_score_medium", pol.MinScoreMediumRisk),
		zap.Float64("min_score_high", pol.MinScoreHighRisk),
	)

	// Barrier catalog for re-evaluation
	var catalog []barrier.Barrier
	if catalogFile != "" {
		c, err := barrier.LoadCatalogFile(catalogFile)
		if err != nil {
			logger.Fatal("failed to load barrier catalog", zap.String("path", catalogFile), zap.Error(err))
		}
		catalog = c
		logger.Info("barrier catalog loaded", zap.Int("barriers", len(catalog)))
	} else {
		logger.Info("no TRUST_GATE_CATALOG_FILE set, evaluations run against an empty catalog")
	}

	// Storage — ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	if clickhouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer writer.Close()

	// Decision history — only when ClickHouse holds the audit trail
	var reader storage.DecisionReader
	if _, ok := writer.(*storage.ClickHouseWriter); ok {
		chReader, err := storage.NewClickHouseReader(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse reader failed, decision history disabled", zap.Error(err))
		} else {
			defer func() { _ = chReader.Close() }()
			reader = chReader
		}
	}

	// Postgres — operators and agent profiles
	var pg *sql.DB
	if postgresDSN != "" {
		db, err := sql.Open("pgx", postgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(context.Background()); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}
		pg = db
	}

	// Auth — Postgres if DSN provided, otherwise static
	var authenticator auth.Authenticator
	if pg != nil {
		authenticator = auth.NewPostgresAuthenticator(auth.PostgresAuthConfig{
			DB:       pg,
			CacheTTL: time.Duration(authCacheTTL) * time.Second,
			Logger:   logger,
		})
		logger.Info("postgres authenticator connected")
	} else {
		authenticator = auth.NewStaticAuthenticator(auth.RoleAdmin)
		logger.Warn("using static authenticator (no POSTGRES_DSN), every tgk_ key is an admin")
	}

	// Profile store — Postgres, SQLite, or in-memory only
	var store *registry.SQLProfileStore
	switch {
	case pg != nil:
		store = registry.NewSQLProfileStore(pg, registry.DialectPostgres)
	case sqlitePath != "":
		db, err := sql.Open("sqlite", sqlitePath)
		if err != nil {
			logger.Fatal("failed to open sqlite", zap.String("path", sqlitePath), zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(1)
		store = registry.NewSQLProfileStore(db, registry.DialectSQLite)
	default:
		logger.Info("no profile store configured, agent profiles are not persisted")
	}

	reg := registry.New()
	var profileStore registry.ProfileStore
	if store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := store.EnsureSchema(ctx); err != nil {
			cancel()
			logger.Fatal("failed to ensure profile schema", zap.Error(err))
		}
		n, err := reg.Hydrate(ctx, store)
		cancel()
		if err != nil {
			logger.Fatal("failed to load agent profiles", zap.Error(err))
		}
		profileStore = store
		logger.Info("agent profiles loaded", zap.Int("profiles", n))
	}

	// Consensus
	var (
		cons      gate.ConsensusModule
		approvals *consensus.ApprovalQueue
	)
	switch consensusMode {
	case "approve":
		cons = consensus.AlwaysApprove
	case "queue":
		approvals = consensus.NewApprovalQueue(time.Duration(approvalTTL)*time.Second, logger)
		cons = approvals
		if approvalsRequired > 1 {
			// One pending request per required approval, each approved by a
			// different operator; any rejection denies.
			voters := make([]gate.ConsensusModule, approvalsRequired)
			for i := range voters {
				voters[i] = approvals
			}
			q, err := consensus.NewQuorum(approvalsRequired, voters, logger)
			if err != nil {
				logger.Fatal("invalid approval quorum", zap.Int("required", approvalsRequired), zap.Error(err))
			}
			cons = q
			logger.Info("escalations require multiple approvals", zap.Int("required", approvalsRequired))
		}
	case "deny":
		cons = consensus.AlwaysDeny
	default:
		logger.Fatal("unknown TRUST_GATE_CONSENSUS mode", zap.String("mode", consensusMode))
	}

	// Assay
	assayCfg := lightcone.AssayConfig{Logger: logger}
	switch spatialMode {
	case "barrier":
		assayCfg.Spatial = lightcone.BarrierFitnessSpatial{}
	case "fixed":
	default:
		logger.Fatal("unknown TRUST_GATE_SPATIAL mode", zap.String("mode", spatialMode))
	}

	g := gate.New(gate.Config{
		Registry:   reg,
		Policy:     pol,
		Classifier: risk.NewKeywordClassifier(),
		Executor:   executor.NewLogExecutor(logger),
		Consensus:  cons,
	})

	// gRPC server
	grpcServer := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     5 * time.Minute,
			MaxConnectionAge:      30 * time.Minute,
			MaxConnectionAgeGrace: 10 * time.Second,
			Time:                  30 * time.Second,
			Timeout:               5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.MaxRecvMsgSize(4*1024*1024),
		grpc.MaxSendMsgSize(4*1024*1024),
	)

	trustGateServer := server.NewTrustGateServer(server.Config{
		Gate:      g,
		Auth:      authenticator,
		Store:     profileStore,
		Approvals: approvals,
		Assay:     lightcone.NewAssay(assayCfg),
		Catalog:   catalog,
		Writer:    writer,
		Reader:    reader,
		Logger:    logger,
	})
	server.RegisterTrustGateServiceServer(grpcServer, trustGateServer)

	// Register health service for container health checks
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(server.ServiceName, healthpb.HealthCheckResponse_SERVING)

	// Enable reflection for debugging with grpcurl
	reflection.Register(grpcServer)

	// Listen
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		logger.Fatal("failed to listen", zap.String("port", port), zap.Error(err))
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		healthServer.SetServingStatus(server.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
		grpcServer.GracefulStop()
	}()

	logger.Info("trust gate server listening", zap.String("addr", lis.Addr().String()))
	if err := grpcServer.Serve(lis); err != nil {
		logger.Fatal("grpc server failed", zap.Error(err))
	}
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
