// Command draftflow runs the phase orchestration service for AI-assisted
// writing projects.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"draftflow/pkg/version"
)

var rootCmd = &cobra.Command{
	Use:           "draftflow",
	Short:         "Phase orchestrator for AI-assisted writing",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("draftflow %s\n", version.Version)
		fmt.Printf("  commit: %s\n", version.Commit)
		fmt.Printf("  built:  %s\n", version.Date)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
