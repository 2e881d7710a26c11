package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"intentflow/config"
	"intentflow/pkg/sequence"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard the persisted sequence",
	Long: `Discard the persisted sequence. Confirmed on-chain work is not undone;
the sequence is simply forgotten and a new intent starts from scratch.`,
	Args: cobra.NoArgs,
	Run:  runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	st, err := newStore(cfg.Store)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if err := st.Clear(sequence.StoreKey); err != nil {
		printError(err)
		os.Exit(1)
	}

	printSuccess("Persisted sequence cleared.")
}
