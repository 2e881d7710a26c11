package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "intentflow",
	Short: "A CLI for executing cross-chain deposit and withdrawal intents",
	Long: `intentflow turns a high-level on-chain intent ("deposit X of token T
from chain A, settle on chain B") into an ordered sequence of dependent
transactions - approvals, permit signatures, bridge legs and protocol calls -
and runs it step by step, persisting progress so an interrupted sequence can
be resumed from exactly where it left off.

Examples:
  intentflow deposit 100 USDC --from-chain 1 --to-chain 42161
  intentflow deposit 100 USDC from USDT --from-chain 1 --to-chain 42161
  intentflow withdraw 50 USDC --chain 42161
  intentflow resume
  intentflow status --watch
  intentflow reset`,
	Version: "0.1.0",
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}
