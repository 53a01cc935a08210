package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/rendis/yelptap/internal/model"
)

// Open creates (or appends to) the session log file at path and returns a text
// slog.Logger writing to it. The caller closes the returned file.
func Open(path string, debug bool) (*slog.Logger, io.Closer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log: %w", err)
	}
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})), f, nil
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// LogRecord emits an info-level structured log for a newly parsed business.
// It logs message "parsed_record" with attrs: name, url, website, reviews.
// If l is nil, slog.Default() is used.
func LogRecord(l *slog.Logger, rec model.BusinessRecord) {
	if l == nil {
		l = slog.Default()
	}
	l.Info("parsed_record",
		slog.String("name", rec.Name),
		slog.String("url", rec.DetailURL),
		slog.String("website", rec.Website),
		slog.Int("reviews", len(rec.Reviews)),
	)
}
