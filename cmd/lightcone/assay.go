package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/triage-ai/palisade/services/trust_gate/internal/agents"
	"github.com/triage-ai/palisade/services/trust_gate/internal/barrier"
	"github.com/triage-ai/palisade/services/trust_gate/internal/executor"
	"github.com/triage-ai/palisade/services/trust_gate/internal/lightcone"
)

var (
	assayCatalog string
	assayAgent   string
	assaySpatial string
)

var assayCmd = &cobra.Command{
	Use:   "assay",
	Short: "Run a light-cone assay against a barrier catalog",
	Long: `Run a built-in agent against every barrier in a catalog and print the
light-cone report: temporal horizon, spatial horizon, discount rate, the
combined trust score, and the barrier summary.

Commands issued by the malignant agent go to an in-memory recorder and are
never executed.

Examples:
  lightcone assay --catalog barriers.json --agent heuristic
  lightcone assay --catalog barriers.json --agent malignant --spatial barrier -o yaml`,
	RunE: runAssay,
}

func init() {
	assayCmd.Flags().StringVar(&assayCatalog, "catalog", "", "Barrier catalog JSON file (required)")
	assayCmd.Flags().StringVar(&assayAgent, "agent", agents.KindHeuristic, fmt.Sprintf("Agent kind %v", agents.Kinds()))
	assayCmd.Flags().StringVar(&assaySpatial, "spatial", "fixed", "Spatial horizon estimator (fixed, barrier)")
	_ = assayCmd.MarkFlagRequired("catalog")
	rootCmd.AddCommand(assayCmd)
}

func runAssay(cmd *cobra.Command, _ []string) error {
	catalog, err := barrier.LoadCatalogFile(assayCatalog)
	if err != nil {
		return err
	}

	agent, err := agents.New(assayAgent, "local", &executor.Recorder{})
	if err != nil {
		return err
	}

	cfg := lightcone.AssayConfig{Logger: newLogger()}
	switch assaySpatial {
	case "barrier":
		cfg.Spatial = lightcone.BarrierFitnessSpatial{}
	case "fixed":
	default:
		return fmt.Errorf("unknown spatial estimator %q (fixed, barrier)", assaySpatial)
	}

	report, err := lightcone.NewAssay(cfg).Run(cmd.Context(), agent, catalog)
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), output, report)
}
