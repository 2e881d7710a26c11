package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"intentflow/config"
	"intentflow/pkg/sequence"
	"intentflow/pkg/store"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted sequence and its step statuses",
	Long: `Show the last persisted sequence: every step, its status and any
transaction or task references.

Examples:
  intentflow status
  intentflow status --json
  intentflow status --watch --interval 10`,
	Args: cobra.NoArgs,
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates continuously")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

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

	if watchStatus {
		if jsonOutput {
			fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
			os.Exit(1)
		}

		fmt.Printf("\nWatching sequence status. Checking every %d seconds. Press Ctrl+C to stop.\n\n", watchInterval)

		ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
		defer ticker.Stop()

		showStatus(st)
		for range ticker.C {
			showStatus(st)
		}
		return
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Loading sequence..."
		s.Start()
	}

	data, found, err := st.Get(sequence.StoreKey)
	if !jsonOutput {
		s.Stop()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	if !found {
		printSuccess("No persisted sequence.")
		return
	}

	if jsonOutput {
		fmt.Println(string(data))
		return
	}

	seq, err := sequence.FromJSON(data)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	displaySequence(seq)
}

func showStatus(st store.Store) {
	data, found, err := st.Get(sequence.StoreKey)
	if err != nil {
		color.Red("Error: %v", err)
		return
	}
	if !found {
		fmt.Println("No persisted sequence.")
		return
	}

	seq, err := sequence.FromJSON(data)
	if err != nil {
		color.Red("Error: %v", err)
		return
	}
	displaySequence(seq)
}

func displaySequence(seq *sequence.Sequence) {
	fmt.Printf("\nSequence %s\n", color.CyanString(seq.ID))

	for i, step := range seq.Steps {
		base := step.Base()

		statusStr := string(base.StepStatus)
		switch base.StepStatus {
		case sequence.StatusConfirmed:
			statusStr = color.GreenString(statusStr)
		case sequence.StatusFailed:
			statusStr = color.RedString(statusStr)
		case sequence.StatusPending:
			// leave uncolored
		default:
			statusStr = color.YellowString(statusStr)
		}

		fmt.Printf("  %d. %-17s chain %-8d %s\n", i+1, base.StepKind, base.ChainID, statusStr)
		if base.TxRef != "" {
			fmt.Printf("     tx:    %s\n", base.TxRef)
		}
		if base.TaskRef != "" {
			fmt.Printf("     task:  %s\n", base.TaskRef)
		}
		if base.Error != "" {
			fmt.Printf("     error: %s\n", color.RedString(base.Error))
		}
	}

	if seq.IsComplete() {
		fmt.Printf("\n%s\n\n", color.GreenString("✓ Complete"))
	} else {
		fmt.Println()
	}
}
