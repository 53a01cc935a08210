package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/rendis/yelptap/internal/config"
	"github.com/rendis/yelptap/internal/engine/scraper"
	"github.com/rendis/yelptap/internal/engine/session"
	"github.com/rendis/yelptap/internal/model"
	"github.com/rendis/yelptap/internal/telemetry"
	"github.com/rendis/yelptap/internal/tui"
	"github.com/rendis/yelptap/internal/tui/views"
)

var scanFlags struct {
	configPath  string
	category    string
	location    string
	pages       int
	concurrency int
	rps         float64
	output      string
	db          string
	proxy       string
	baseURL     string
	s3Bucket    string
	debug       bool
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a headless scan",
	Example: `  yelptap scan --category pizza --location "Austin, TX"
  yelptap scan --category coffee --location Seattle --pages 3 --db yelp.db --rps 2`,
	RunE: runScan,
}

func init() {
	f := scanCmd.Flags()
	f.StringVar(&scanFlags.configPath, "config", config.DefaultFile, "Config file (json5); a .local sibling overrides it")
	f.StringVar(&scanFlags.category, "category", "", "What to search for, e.g. pizza (required)")
	f.StringVar(&scanFlags.location, "location", "", "Where to search, e.g. \"Austin, TX\" (required)")
	f.IntVar(&scanFlags.pages, "pages", 1, "Max search result pages to walk")
	f.IntVar(&scanFlags.concurrency, "concurrency", model.DefaultConcurrency, "Concurrent page fetches")
	f.Float64Var(&scanFlags.rps, "rps", 0, "Max requests per second (0 = unlimited)")
	f.StringVar(&scanFlags.output, "output", model.DefaultOutput, "JSON output file (overwritten)")
	f.StringVar(&scanFlags.db, "db", "", "Also store records in this SQLite file")
	f.StringVar(&scanFlags.proxy, "proxy", "", "HTTP/SOCKS5 proxy URL")
	f.StringVar(&scanFlags.baseURL, "base-url", model.DefaultBaseURL, "Site root")
	f.StringVar(&scanFlags.s3Bucket, "s3-bucket", "", "Upload results to this S3 bucket")
	f.BoolVar(&scanFlags.debug, "debug", false, "Debug logging and raw page dumps")
	_ = scanCmd.MarkFlagRequired("category")
	_ = scanCmd.MarkFlagRequired("location")

	rootCmd.AddCommand(scanCmd)
}

// applyScanFlags overrides cfg with the flags the user actually set.
func applyScanFlags(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("pages") {
		cfg.MaxPages = scanFlags.pages
	}
	if changed("concurrency") {
		cfg.Concurrency = scanFlags.concurrency
	}
	if changed("rps") {
		cfg.RequestsPerSecond = scanFlags.rps
	}
	if changed("output") {
		cfg.Output = scanFlags.output
	}
	if changed("db") {
		cfg.DB = scanFlags.db
	}
	if changed("proxy") {
		cfg.Proxy = scanFlags.proxy
	}
	if changed("base-url") {
		cfg.BaseURL = scanFlags.baseURL
	}
	if changed("s3-bucket") {
		cfg.S3.Bucket = scanFlags.s3Bucket
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(scanFlags.configPath)
	if err != nil {
		return err
	}
	applyScanFlags(cmd, &cfg)

	params := cfg.Params(model.SearchQuery{
		Category: scanFlags.category,
		Location: scanFlags.location,
	})
	params.Debug = scanFlags.debug

	// Setup context with graceful shutdown
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nShutting down gracefully...")
			cancel()
		case <-ctx.Done():
		}
	}()

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = shutdown(sctx)
	}()

	sess, err := session.Open(params, cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	fmt.Fprintf(os.Stderr, "Log: %s\n", sess.LogPath)
	fmt.Fprintf(os.Stderr, "Searching %q in %q (pages=%d, concurrency=%d)\n",
		params.Query.Category, params.Query.Location, params.MaxPages, params.Concurrency)

	startTime := time.Now()
	stats, runErr := sess.Run(ctx, nil)
	if runErr != nil && !errors.Is(runErr, context.Canceled) && !scraper.IsBlocked(runErr) {
		return fmt.Errorf("scraping: %w", runErr)
	}

	if err := sess.Finish(); err != nil {
		return fmt.Errorf("writing results: %w", err)
	}

	var uris []string
	if cfg.S3.Bucket != "" && !errors.Is(runErr, context.Canceled) {
		uris, err = sess.Publish(ctx)
		if err != nil {
			sess.Logger.Error("publishing results", "err", err)
			fmt.Fprintf(os.Stderr, "S3 upload failed: %v\n", err)
		}
	}

	renderSummary(sess, stats, time.Since(startTime), uris)

	recent := views.RecentEntry{
		Path:    params.Output,
		Query:   params.Query.Category + " in " + params.Query.Location,
		Records: int(stats.RecordsEmitted.Load()),
	}
	if params.DBPath != "" {
		recent.Path = params.DBPath
	}
	if err := tui.SaveRecent(recent); err != nil {
		sess.Logger.Warn("remembering result", "err", err)
	}

	if scraper.IsBlocked(runErr) {
		return runErr
	}
	return nil
}

func renderSummary(sess *session.Session, stats *scraper.Stats, elapsed time.Duration, uris []string) {
	p := sess.Params

	t := table.NewWriter()
	t.SetOutputMirror(os.Stderr)
	t.SetTitle("yelptap complete")
	t.AppendRows([]table.Row{
		{"Category", p.Query.Category},
		{"Location", p.Query.Location},
		{"Run", sess.RunID},
		{"Search pages", stats.SearchPages.Load()},
		{"Listings", stats.ListingsFound.Load()},
		{"Records", stats.RecordsEmitted.Load()},
		{"Errors", stats.Errors.Load()},
		{"Rate limits", stats.RateLimits.Load()},
		{"Off-site skipped", stats.OffsiteSkipped.Load()},
		{"Duration", elapsed.Truncate(time.Second)},
		{"Output", p.Output},
	})
	if p.DBPath != "" {
		t.AppendRow(table.Row{"Database", p.DBPath})
	}
	t.AppendRow(table.Row{"Log", sess.LogPath})
	for _, u := range uris {
		t.AppendRow(table.Row{"Uploaded", u})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}
