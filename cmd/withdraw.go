package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"intentflow/pkg/parser"
	"intentflow/pkg/types"
)

var withdrawChain int64

var withdrawCmd = &cobra.Command{
	Use:   "withdraw <amount> <token>",
	Short: "Withdraw funds from the protocol",
	Long: `Withdraw funds from the protocol on one chain. Outstanding protocol fees
are settled first when any are owed.

Examples:
  intentflow withdraw 50 USDC --chain 42161`,
	Args: cobra.MinimumNArgs(2),
	Run:  runWithdraw,
}

func init() {
	rootCmd.AddCommand(withdrawCmd)

	withdrawCmd.Flags().Int64Var(&withdrawChain, "chain", 0, "Chain id to withdraw on (required)")
	withdrawCmd.MarkFlagRequired("chain")
}

func runWithdraw(cmd *cobra.Command, args []string) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	command, err := parser.ParseIntentCommand(strings.Join(args, " "))
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	rt, err := buildRuntime(verbose)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	token, err := rt.registry.Lookup(command.DestTicker, withdrawChain)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	atomic, err := toAtomic(command.Amount, token.Decimals)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	intent := types.NewIntent(types.IntentWithdraw, rt.owner, withdrawChain, withdrawChain,
		"", command.DestTicker, atomic)
	if err := intent.Validate(); err != nil {
		printError(err)
		os.Exit(1)
	}

	runIntent(rt, intent, jsonOutput)
}
