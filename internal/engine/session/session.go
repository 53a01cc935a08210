package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/rendis/yelptap/internal/config"
	"github.com/rendis/yelptap/internal/engine/output"
	"github.com/rendis/yelptap/internal/engine/scraper"
	"github.com/rendis/yelptap/internal/engine/storage"
	"github.com/rendis/yelptap/internal/logger"
	"github.com/rendis/yelptap/internal/model"
)

// Session owns everything one scan writes to: the JSON output, the optional
// SQLite store and the log file.
type Session struct {
	Params  model.SearchParams
	Config  config.Config
	RunID   string
	LogPath string
	Logger  *slog.Logger

	JSON  *output.JSONFile
	Store *storage.Store

	logFile  io.Closer
	finished bool
}

type uploader interface {
	Upload(ctx context.Context, runID, filePath string) (string, error)
}

// Open prepares the output directory, log file and sinks for params.
func Open(params model.SearchParams, cfg config.Config) (*Session, error) {
	params.Normalize()

	if dir := filepath.Dir(params.Output); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating output dir: %w", err)
		}
	}

	s := &Session{
		Params:  params,
		Config:  cfg,
		LogPath: strings.TrimSuffix(params.Output, filepath.Ext(params.Output)) + ".log",
		JSON:    output.NewJSONFile(params.Output),
	}

	l, closer, err := logger.Open(s.LogPath, params.Debug)
	if err != nil {
		return nil, err
	}
	s.Logger = l
	s.logFile = closer

	if params.DBPath != "" {
		store, err := storage.NewStore(params.DBPath)
		if err != nil {
			closer.Close()
			return nil, fmt.Errorf("opening store: %w", err)
		}
		runID, err := store.StartRun(params.Query)
		if err != nil {
			store.Close()
			closer.Close()
			return nil, err
		}
		s.Store = store
		s.RunID = runID
	} else {
		s.RunID = uuid.NewString()
	}

	s.Logger = s.Logger.With("run_id", s.RunID)
	s.Logger.Info("session start",
		"category", params.Query.Category, "location", params.Query.Location,
		"pages", params.MaxPages, "concurrency", params.Concurrency,
		"rps", params.RequestsPerSecond, "output", params.Output, "db", params.DBPath)
	return s, nil
}

func (s *Session) sink() scraper.Sink {
	if s.Store == nil {
		return s.JSON
	}
	return output.MultiSink{s.JSON, s.Store}
}

// Run crawls with a fresh HTTP client built from the session parameters.
func (s *Session) Run(ctx context.Context, opts *scraper.RunOptions) (*scraper.Stats, error) {
	client := scraper.NewClient(s.Params.ProxyURL, s.Params.RequestsPerSecond)
	return s.RunWith(ctx, client, opts)
}

// RunWith crawls using fetcher instead of the default client.
func (s *Session) RunWith(ctx context.Context, fetcher scraper.Fetcher, opts *scraper.RunOptions) (*scraper.Stats, error) {
	if opts == nil {
		opts = &scraper.RunOptions{}
	}
	if opts.Selectors == (scraper.Selectors{}) {
		opts.Selectors = s.Config.Selectors
	}
	stats, err := scraper.Run(ctx, s.Params, fetcher, s.sink(), s.Logger, opts)
	s.Logger.Info("session done",
		"records", stats.RecordsEmitted.Load(), "errors", stats.Errors.Load(),
		"rate_limits", stats.RateLimits.Load(), "err", err)
	return stats, err
}

// Publish uploads the JSON output and the database to the configured bucket.
// It returns the uploaded URIs, or nothing when no bucket is set. Call it
// after Finish so the files are complete on disk.
func (s *Session) Publish(ctx context.Context) ([]string, error) {
	if s.Config.S3.Bucket == "" {
		return nil, nil
	}
	pub, err := output.NewPublisher(ctx, s.Config.S3.Bucket, s.Config.S3.Region, s.Config.S3.Prefix)
	if err != nil {
		return nil, err
	}
	return s.publishWith(ctx, pub)
}

func (s *Session) publishWith(ctx context.Context, pub uploader) ([]string, error) {
	files := []string{s.Params.Output}
	if s.Params.DBPath != "" {
		files = append(files, s.Params.DBPath)
	}
	var uris []string
	for _, f := range files {
		uri, err := pub.Upload(ctx, s.RunID, f)
		if err != nil {
			return uris, err
		}
		s.Logger.Info("published", "uri", uri)
		uris = append(uris, uri)
	}
	return uris, nil
}

// Finish writes the JSON output and closes the store. The log stays open.
func (s *Session) Finish() error {
	if s.finished {
		return nil
	}
	s.finished = true

	var errs []error
	if err := s.JSON.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.Store != nil {
		if err := s.Store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close finishes the session if needed and closes the log file.
func (s *Session) Close() error {
	return errors.Join(s.Finish(), s.logFile.Close())
}
