// Corpusd is a dataset-curation daemon: it plans datasets with an LLM,
// discovers candidate resources through web search, downloads their
// content into a blob store and packages the results as archives,
// labeled corpora and image datasets.
//
// Usage:
//
//	# Start the daemon with the default config
//	corpusd serve
//
//	# Start with an explicit config file
//	corpusd serve --config /etc/corpusd/config.yaml
//
//	# Run the offline end-to-end smoke sequence
//	corpusd smoke
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "corpusd",
	Short: "Dataset curation daemon",
	Long: `corpusd turns natural-language dataset requests into curated,
downloadable datasets: LLM planning, web-search discovery, sampling,
content download and export packaging.`,
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: ~/.config/corpusd/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(smokeCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("corpusd by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
