package tui

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/rendis/yelptap/internal/tui/views"
)

const maxRecent = 10

var userConfigDir = os.UserConfigDir

func recentFilePath() (string, error) {
	dir, err := userConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config dir: %w", err)
	}
	return filepath.Join(dir, "yelptap", "recent.json"), nil
}

// LoadRecent returns the remembered results, newest first. A missing or
// unreadable list is empty.
func LoadRecent() []views.RecentEntry {
	path, err := recentFilePath()
	if err != nil {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var entries []views.RecentEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil
	}
	return entries
}

// SaveRecent moves e to the top of the list. Query and Records already known
// for the same path survive when e leaves them empty, so reopening a file
// from the picker keeps what the scan recorded.
func SaveRecent(e views.RecentEntry) error {
	if abs, err := filepath.Abs(e.Path); err == nil {
		e.Path = abs
	}
	if e.OpenedAt.IsZero() {
		e.OpenedAt = time.Now()
	}

	entries := LoadRecent()
	if i := slices.IndexFunc(entries, func(old views.RecentEntry) bool { return old.Path == e.Path }); i >= 0 {
		if e.Query == "" {
			e.Query = entries[i].Query
		}
		if e.Records == 0 {
			e.Records = entries[i].Records
		}
		entries = slices.Delete(entries, i, i+1)
	}
	entries = slices.Insert(entries, 0, e)
	if len(entries) > maxRecent {
		entries = entries[:maxRecent]
	}
	return writeRecent(entries)
}

// ForgetRecent drops path from the list.
func ForgetRecent(path string) error {
	entries := LoadRecent()
	kept := slices.DeleteFunc(entries, func(e views.RecentEntry) bool { return e.Path == path })
	return writeRecent(kept)
}

func writeRecent(entries []views.RecentEntry) error {
	path, err := recentFilePath()
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []views.RecentEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("saving recent results to %s: %w", path, err)
	}
	return nil
}
