package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"intentflow/config"
)

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "List the tokens in the registry",
	Long: `List the configured token registry: address, decimals and which
operations each token supports on each chain.`,
	Args: cobra.NoArgs,
	Run:  runTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)
}

func runTokens(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	reg := newRegistry(cfg)
	tokens := reg.List()

	sort.Slice(tokens, func(i, j int) bool {
		if tokens[i].Ticker != tokens[j].Ticker {
			return tokens[i].Ticker < tokens[j].Ticker
		}
		return tokens[i].ChainID < tokens[j].ChainID
	})

	if jsonOutput {
		data, _ := json.MarshalIndent(tokens, "", "  ")
		fmt.Println(string(data))
		return
	}

	fmt.Printf("\n%d registered tokens:\n\n", len(tokens))
	for _, t := range tokens {
		ops := ""
		if t.CanDeposit {
			ops += " deposit"
		}
		if t.CanWithdraw {
			ops += " withdraw"
		}
		if t.CanSwap {
			ops += " swap"
		}
		if t.CanBridge {
			ops += " bridge"
		}

		address := t.Address
		if t.IsNative() {
			address = "(native)"
		}

		fmt.Printf("  %-8s chain %-8d %-44s %2d decimals %s\n",
			color.CyanString(t.Ticker), t.ChainID, address, t.Decimals, ops)
	}
	fmt.Println()
}
