package main

import (
	"github.com/spf13/cobra"

	"github.com/triage-ai/palisade/services/trust_gate/internal/auth"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Mint an operator API key",
	Long: `Generate a random tgk_ API key with its lookup prefix and bcrypt hash.
Store the prefix and hash in the operators table; hand the key to the operator.
The key is not recoverable from the hash.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		k, err := auth.GenerateKey()
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), output, map[string]string{
			"key":            k.Key,
			"api_key_prefix": k.Prefix,
			"api_key_hash":   k.Hash,
		})
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
