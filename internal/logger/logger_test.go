package logger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rendis/yelptap/internal/model"
)

// capHandler is a simple slog.Handler that captures records for assertions.
type capHandler struct{ recs []slog.Record }

func (h *capHandler) Enabled(ctx context.Context, level slog.Level) bool { return true }
func (h *capHandler) Handle(ctx context.Context, r slog.Record) error {
	h.recs = append(h.recs, r.Clone())
	return nil
}
func (h *capHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *capHandler) WithGroup(name string) slog.Handler       { return h }

func attrsToMap(r slog.Record) map[string]any {
	m := make(map[string]any)
	r.Attrs(func(a slog.Attr) bool {
		m[a.Key] = a.Value.Any()
		return true
	})
	return m
}

func TestLogRecord_EmitsInfoWithExpectedAttrs(t *testing.T) {
	h := &capHandler{}
	l := slog.New(h)

	LogRecord(l, model.BusinessRecord{
		Name:      "Analog Coffee",
		DetailURL: "https://www.yelp.com/biz/analog-coffee-seattle",
		Website:   "analogcoffee.com",
		Reviews:   []model.ReviewEntry{{ReviewerName: "Ana"}, {ReviewerName: "Ben"}},
	})

	require.Len(t, h.recs, 1)
	rec := h.recs[0]
	require.Equal(t, slog.LevelInfo, rec.Level)
	require.Equal(t, "parsed_record", rec.Message)

	got := attrsToMap(rec)
	require.Equal(t, "Analog Coffee", got["name"])
	require.Equal(t, "https://www.yelp.com/biz/analog-coffee-seattle", got["url"])
	require.Equal(t, "analogcoffee.com", got["website"])
	require.EqualValues(t, 2, got["reviews"])
}

func TestOpen_AppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")

	l, closer, err := Open(path, false)
	require.NoError(t, err)
	l.Info("first")
	require.NoError(t, closer.Close())

	l, closer, err = Open(path, false)
	require.NoError(t, err)
	l.Info("second")
	l.Debug("hidden")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "msg=first")
	require.Contains(t, string(data), "msg=second")
	require.NotContains(t, string(data), "hidden")
}
