package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/yelptap/internal/tui"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "yelptap",
	Short: "yelptap - Yelp search results and business page scraper",
	Long: `yelptap walks Yelp search results for a category and location, visits every
business page it finds and writes one record per business to JSON (and
optionally SQLite).

Run without a subcommand to launch the interactive TUI.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return tui.Run(version)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("yelptap " + version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
