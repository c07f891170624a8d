package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "researchctl",
	Short: "Run and inspect market research jobs from the command line",
	Long: `researchctl drives the research pipeline directly against the
configured database, without going through the API server.

Examples:
  researchctl run will-x-happen-2026 --focus "regulatory approval"
  researchctl run will-x-happen-2026 --max-iterations 2 --force
  researchctl list --market will-x-happen-2026
  researchctl show 6f1c9e2a-...`,
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().String("config", "", "path to config file (default ./configs/config.yaml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
