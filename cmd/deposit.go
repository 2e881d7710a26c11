package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"intentflow/pkg/parser"
	"intentflow/pkg/sequence"
	"intentflow/pkg/types"
)

var (
	depositFromChain int64
	depositToChain   int64
)

var depositCmd = &cobra.Command{
	Use:   "deposit <amount> <token> [from <token>]",
	Short: "Deposit funds into the protocol, routing across chains if needed",
	Long: `Deposit funds into the protocol. When the source chain or token differs
from the destination, the routing service supplies the bridge/swap legs and
they are executed before the deposit call.

Examples:
  intentflow deposit 100 USDC --from-chain 1 --to-chain 42161
  intentflow deposit 100 USDC from USDT --from-chain 1 --to-chain 42161`,
	Args: cobra.MinimumNArgs(2),
	Run:  runDeposit,
}

func init() {
	rootCmd.AddCommand(depositCmd)

	depositCmd.Flags().Int64Var(&depositFromChain, "from-chain", 0, "Source chain id (required)")
	depositCmd.Flags().Int64Var(&depositToChain, "to-chain", 0, "Destination chain id (required)")
	depositCmd.MarkFlagRequired("from-chain")
	depositCmd.MarkFlagRequired("to-chain")
}

func runDeposit(cmd *cobra.Command, args []string) {
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

	sourceTicker := command.SourceTicker
	if sourceTicker == "" {
		sourceTicker = command.DestTicker
	}

	// The amount is denominated in the source token the user is spending
	srcToken, err := rt.registry.Lookup(sourceTicker, depositFromChain)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	atomic, err := toAtomic(command.Amount, srcToken.Decimals)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	intent := types.NewIntent(types.IntentDeposit, rt.owner, depositFromChain, depositToChain,
		command.SourceTicker, command.DestTicker, atomic)
	if err := intent.Validate(); err != nil {
		printError(err)
		os.Exit(1)
	}

	runIntent(rt, intent, jsonOutput)
}

// runIntent drives a freshly built sequence to completion and reports it
func runIntent(rt *runtime, intent *types.Intent, jsonOutput bool) {
	if !jsonOutput {
		rt.controller.SetOnUpdate(reportProgress)
		fmt.Printf("\nExecuting %s intent: %s %s (chain %d -> %d)\n\n",
			intent.Kind, intent.AmountAtomic, intent.DestTicker, intent.SourceChain, intent.DestChain)
	}

	if err := rt.controller.Start(context.Background(), intent); err != nil {
		printError(err)
		os.Exit(1)
	}

	finishRun(rt, jsonOutput)
}

func finishRun(rt *runtime, jsonOutput bool) {
	seq := rt.controller.Sequence()
	if seq == nil {
		printError(fmt.Errorf("no sequence was produced"))
		os.Exit(1)
	}

	if jsonOutput {
		data, _ := seq.ToJSON()
		fmt.Println(string(data))
		if !seq.IsComplete() {
			os.Exit(1)
		}
		return
	}

	if seq.IsComplete() {
		printSuccess(color.GreenString("✓ Sequence %s completed", seq.ID))
		return
	}

	fmt.Println()
	color.Red("Sequence %s halted", seq.ID)
	for _, step := range seq.Steps {
		base := step.Base()
		if base.StepStatus == sequence.StatusFailed {
			color.Red("  step %s (%s): %s", base.StepID, base.StepKind, base.Error)
		}
	}
	fmt.Println("\nFix the underlying issue and run 'intentflow resume' to retry.")
	os.Exit(1)
}

// reportProgress prints one line per persisted transition
var lastReported = map[string]sequence.Status{}

func reportProgress(seq *sequence.Sequence) {
	for _, step := range seq.Steps {
		base := step.Base()
		if lastReported[base.StepID] == base.StepStatus {
			continue
		}
		lastReported[base.StepID] = base.StepStatus

		line := fmt.Sprintf("  [%s] %s", base.StepKind, base.StepStatus)
		switch base.StepStatus {
		case sequence.StatusConfirmed:
			color.Green(line)
		case sequence.StatusFailed:
			color.Red(line)
		default:
			fmt.Println(line)
		}
	}
}
