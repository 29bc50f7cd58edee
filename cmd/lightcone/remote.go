package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/triage-ai/palisade/services/trust_gate/internal/server"
)

var (
	addr    string
	token   string
	timeout time.Duration
)

func init() {
	rootCmd.PersistentFlags().StringVar(&addr, "addr", envOrDefault("LIGHTCONE_ADDR", "localhost:50061"), "Trust gate server address")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("LIGHTCONE_TOKEN"), "Operator API key (tgk_...)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout (decide defaults to "+decideTimeout.String()+")")

	rootCmd.AddCommand(decideCmd, registerCmd, scoreCmd, evaluateCmd, approvalsCmd, decisionsCmd)
	approvalsCmd.AddCommand(approvalsListCmd, approvalsResolveCmd)

	registerCmd.Flags().Float64Var(&registerDiscount, "discount-rate", 0, "Discount rate component")
	evaluateCmd.Flags().StringVar(&evaluateKind, "agent", "heuristic", "Built-in agent kind to assay")
	decisionsCmd.Flags().StringVar(&decisionsAgent, "agent", "", "Filter by agent ID")
	decisionsCmd.Flags().StringVar(&decisionsOutcome, "outcome", "", "Filter by outcome (executed, blocked, escalated)")
	decisionsCmd.Flags().IntVar(&decisionsPage, "page", 1, "Page number")
	decisionsCmd.Flags().IntVar(&decisionsPageSize, "page-size", 50, "Decisions per page")
}

// decideTimeout outlasts the server's default 900s approval TTL so a queued
// escalation is resolved or expired before the client gives up.
const decideTimeout = 16 * time.Minute

// timeoutFor returns --timeout when the user set it, else fallback.
func timeoutFor(cmd *cobra.Command, fallback time.Duration) time.Duration {
	if f := cmd.Flag("timeout"); f != nil && f.Changed {
		return timeout
	}
	return fallback
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

type clientCall func(ctx context.Context, c *server.TrustGateServiceClient) (*structpb.Struct, error)

// withClient dials the server, attaches the bearer token, and calls fn.
func withClient(cmd *cobra.Command, fn clientCall) error {
	return withClientTimeout(cmd, timeout, fn)
}

func withClientTimeout(cmd *cobra.Command, d time.Duration, fn clientCall) error {
	if token == "" {
		return fmt.Errorf("--token or LIGHTCONE_TOKEN is required")
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), d)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)

	resp, err := fn(ctx, server.NewTrustGateServiceClient(conn))
	if err != nil {
		return err
	}
	return renderStruct(cmd.OutOrStdout(), output, resp)
}

var decideCmd = &cobra.Command{
	Use:   "decide AGENT_ID COMMAND",
	Short: "Ask the gate whether an agent may run a command",
	Long: `Submit a command on behalf of an agent. The gate classifies its risk,
compares the agent's trust score with the policy threshold, and reports
executed, blocked, or escalated. With a human approval queue on the server
this call waits until an operator resolves the request or it expires, so
decide defaults to a 16m timeout; an explicit --timeout shorter than the
server's TRUST_GATE_APPROVAL_TTL_S abandons and withdraws the request.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClientTimeout(cmd, timeoutFor(cmd, decideTimeout), func(ctx context.Context, c *server.TrustGateServiceClient) (*structpb.Struct, error) {
			return c.Decide(ctx, args[0], args[1])
		})
	},
}

var registerDiscount float64

var registerCmd = &cobra.Command{
	Use:   "register AGENT_ID TRUST_SCORE",
	Short: "Register or replace an agent profile",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		score, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("trust score: %w", err)
		}
		return withClient(cmd, func(ctx context.Context, c *server.TrustGateServiceClient) (*structpb.Struct, error) {
			return c.Call(ctx, server.MethodRegisterAgent, map[string]any{
				"agent_id":      args[0],
				"trust_score":   score,
				"discount_rate": registerDiscount,
			})
		})
	},
}

var scoreCmd = &cobra.Command{
	Use:   "score AGENT_ID TRUST_SCORE",
	Short: "Set a registered agent's trust score",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		score, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("trust score: %w", err)
		}
		return withClient(cmd, func(ctx context.Context, c *server.TrustGateServiceClient) (*structpb.Struct, error) {
			return c.UpdateScore(ctx, args[0], score)
		})
	},
}

var evaluateKind string

var evaluateCmd = &cobra.Command{
	Use:   "evaluate AGENT_ID",
	Short: "Re-evaluate an agent on the server and apply its score",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *server.TrustGateServiceClient) (*structpb.Struct, error) {
			return c.Evaluate(ctx, args[0], evaluateKind)
		})
	},
}

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Manage pending human approvals",
}

var approvalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending approvals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *server.TrustGateServiceClient) (*structpb.Struct, error) {
			return c.ListApprovals(ctx)
		})
	},
}

var approvalsResolveCmd = &cobra.Command{
	Use:   "resolve APPROVAL_ID approve|reject",
	Short: "Approve or reject a pending approval",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var approve bool
		switch args[1] {
		case "approve":
			approve = true
		case "reject":
		default:
			return fmt.Errorf("verdict must be approve or reject, got %q", args[1])
		}
		return withClient(cmd, func(ctx context.Context, c *server.TrustGateServiceClient) (*structpb.Struct, error) {
			return c.ResolveApproval(ctx, args[0], approve)
		})
	},
}

var (
	decisionsAgent    string
	decisionsOutcome  string
	decisionsPage     int
	decisionsPageSize int
)

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Page through the decision audit trail",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(cmd, func(ctx context.Context, c *server.TrustGateServiceClient) (*structpb.Struct, error) {
			return c.ListDecisions(ctx, map[string]any{
				"agent_id":  decisionsAgent,
				"outcome":   decisionsOutcome,
				"page":      decisionsPage,
				"page_size": decisionsPageSize,
			})
		})
	},
}
