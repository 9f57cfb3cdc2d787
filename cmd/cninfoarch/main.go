// Package main provides the cninfoarch CLI: it archives cninfo disclosure
// announcements for a set of tickers and converts the archive to text.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cninfoarch/internal/logging"
)

var (
	rootConfigPath string
	rootVerbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "cninfoarch",
	Short: "Archive cninfo disclosure announcements",
	Long: "cninfoarch fetches regulatory disclosure announcements from the cninfo search API, " +
		"skips documents archived in earlier runs, downloads PDFs and rendered detail pages, " +
		"and writes a run report.",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logging.Setup(os.Stderr, rootVerbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config", "", "Optional YAML config file; explicit flags take precedence")
	rootCmd.PersistentFlags().BoolVarP(&rootVerbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
