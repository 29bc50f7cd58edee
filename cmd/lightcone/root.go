package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	verbose bool
	output  string
)

var rootCmd = &cobra.Command{
	Use:   "lightcone",
	Short: "Trust assays and policy gate client",
	Long: `lightcone evaluates agents against a barrier catalog and talks to a
trust gate server.

Local:
  assay        Run a light-cone assay and print the report
  keygen       Mint an operator API key

Remote (needs --addr and --token):
  decide       Ask the gate whether an agent may run a command
  register     Register or replace an agent profile
  score        Set an agent's trust score
  evaluate     Re-evaluate an agent on the server and apply its score
  approvals    List and resolve pending human approvals
  decisions    Page through the decision audit trail`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log assay progress to stderr")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "json", "Output format (json, yaml)")
}

func newLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
