package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rendis/yelptap/internal/engine/output"
	"github.com/rendis/yelptap/internal/engine/storage"
	"github.com/rendis/yelptap/internal/model"
)

var exportFlags struct {
	db     string
	json   string
	run    string
	output string
	format string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored results to CSV or JSON",
	Example: `  yelptap export --db yelp.db
  yelptap export --json yelp_data.json --output results.csv
  yelptap export --db yelp.db --format json --output latest.json`,
	RunE: runExport,
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportFlags.db, "db", "", "SQLite file to read")
	f.StringVar(&exportFlags.json, "json", "", "JSON results file to read")
	f.StringVar(&exportFlags.run, "run", "", "Only export this run id (db input)")
	f.StringVar(&exportFlags.output, "output", "", "Output file path (default: next to the input)")
	f.StringVar(&exportFlags.format, "format", "csv", "Export format: csv or json")
	exportCmd.MarkFlagsOneRequired("db", "json")
	exportCmd.MarkFlagsMutuallyExclusive("db", "json")

	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	format := strings.ToLower(exportFlags.format)
	if format != "csv" && format != "json" {
		return fmt.Errorf("unsupported format: %s (csv or json)", exportFlags.format)
	}

	input := exportFlags.db
	if input == "" {
		input = exportFlags.json
	}

	recs, err := loadRecords(exportFlags.db, exportFlags.json, exportFlags.run)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return fmt.Errorf("no businesses found in %s", input)
	}

	// Default output path
	outputPath := exportFlags.output
	if outputPath == "" {
		dir := filepath.Dir(input)
		base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
		outputPath = filepath.Join(dir, base+"."+format)
		if outputPath == input {
			outputPath = filepath.Join(dir, base+"_export."+format)
		}
	}

	switch format {
	case "csv":
		err = output.SaveCSV(outputPath, recs)
	case "json":
		err = output.SaveJSON(outputPath, recs)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Exported %d businesses to %s\n", len(recs), outputPath)
	return nil
}

// loadRecords reads from a SQLite store when dbPath is set, otherwise from a
// JSON results file.
func loadRecords(dbPath, jsonPath, runID string) ([]model.BusinessRecord, error) {
	if dbPath == "" {
		return output.LoadJSON(jsonPath)
	}
	store, err := storage.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("loading db: %w", err)
	}
	defer store.Close()
	return store.LoadRecords(runID)
}
