package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume the persisted sequence from where it left off",
	Long: `Resume the last persisted sequence. Confirmed steps are never
re-executed; a step that previously failed is retried, and a step that was
mid-flight re-polls its existing transaction or task instead of re-submitting.`,
	Args: cobra.NoArgs,
	Run:  runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	rt, err := buildRuntime(verbose)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if !jsonOutput {
		rt.controller.SetOnUpdate(reportProgress)
		fmt.Println("\nResuming persisted sequence...")
	}

	if err := rt.controller.Resume(context.Background()); err != nil {
		printError(err)
		os.Exit(1)
	}

	if rt.controller.Sequence() == nil {
		printSuccess("Nothing to resume.")
		return
	}

	finishRun(rt, jsonOutput)
}
