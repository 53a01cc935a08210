package views

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/yelptap/internal/tui/styles"
)

const pickerRows = 15

// pickEntry is a directory or a results file shown in the picker.
type pickEntry struct {
	name    string
	dir     bool
	size    int64
	modTime time.Time
}

type FilePickerModel struct {
	dir     string
	entries []pickEntry
	cursor  int
	err     error
}

func NewFilePickerModel() FilePickerModel {
	cwd, _ := os.Getwd()
	return FilePickerModel{dir: cwd}.chdir(cwd)
}

// chdir lists dir: subdirectories first by name, then results newest first.
func (m FilePickerModel) chdir(dir string) FilePickerModel {
	entries, err := listResults(dir)
	if err != nil {
		m.err = err
		return m
	}
	m.dir, m.entries, m.cursor, m.err = dir, entries, 0, nil
	return m
}

func listResults(dir string) ([]pickEntry, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []pickEntry
	for _, de := range des {
		name := de.Name()
		if strings.HasPrefix(name, ".") || !(de.IsDir() || isResultFile(name)) {
			continue
		}
		e := pickEntry{name: name, dir: de.IsDir()}
		if info, err := de.Info(); err == nil {
			e.size, e.modTime = info.Size(), info.ModTime()
		}
		out = append(out, e)
	}

	slices.SortFunc(out, func(a, b pickEntry) int {
		switch {
		case a.dir != b.dir:
			if a.dir {
				return -1
			}
			return 1
		case a.dir:
			return cmp.Compare(a.name, b.name)
		default:
			return cmp.Or(b.modTime.Compare(a.modTime), cmp.Compare(a.name, b.name))
		}
	})
	return out, nil
}

func (m FilePickerModel) Init() tea.Cmd {
	return nil
}

func (m FilePickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.String() {
	case "up", "k":
		m.cursor = max(m.cursor-1, 0)
	case "down", "j":
		m.cursor = max(min(m.cursor+1, len(m.entries)-1), 0)
	case "backspace", "h":
		if parent := filepath.Dir(m.dir); parent != m.dir {
			return m.chdir(parent), nil
		}
	case "~":
		if home, err := os.UserHomeDir(); err == nil {
			return m.chdir(home), nil
		}
	case "enter", "l":
		if m.cursor >= len(m.entries) {
			return m, nil
		}
		e := m.entries[m.cursor]
		path := filepath.Join(m.dir, e.name)
		if e.dir {
			return m.chdir(path), nil
		}
		return m, navigate(NavigateToExplorer{Path: path})
	case "esc":
		return m, navigate(NavigateToHome{})
	}
	return m, nil
}

func (m FilePickerModel) View() string {
	var b strings.Builder
	muted := lipgloss.NewStyle().Foreground(styles.Muted)

	b.WriteString(styles.Title.Render("Open Results"))
	b.WriteString("\n")
	b.WriteString(muted.Render(m.dir))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(styles.ErrorText.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
	}

	if len(m.entries) == 0 {
		b.WriteString(muted.Italic(true).Render("No scan results (.json, .db) here"))
		b.WriteString("\n")
	}

	start, end := visibleRange(m.cursor, len(m.entries), pickerRows)
	now := time.Now()
	for i := start; i < end; i++ {
		e := m.entries[i]
		cursor, style := "  ", styles.InactiveItem
		if i == m.cursor {
			cursor, style = "> ", styles.ActiveItem
		}

		if e.dir {
			fmt.Fprintf(&b, "%s📁 %s\n", cursor, style.Render(e.name+"/"))
			continue
		}
		icon := "📄 "
		if strings.EqualFold(filepath.Ext(e.name), ".db") {
			icon = "💾 "
		}
		fmt.Fprintf(&b, "%s%s%s  %s\n", cursor, icon, style.Render(e.name),
			muted.Render(humanSize(e.size)+" · "+timeAgo(now.Sub(e.modTime))))
	}

	b.WriteString("\n")
	b.WriteString(styles.StatusBar.Render("enter open • backspace up • ~ home • esc back"))

	return styles.Border.Render(b.String())
}

// visibleRange returns the [start, end) window of n rows that keeps cursor
// on screen, scrolling once it passes the last few rows.
func visibleRange(cursor, n, rows int) (int, int) {
	start := max(cursor-(rows-3), 0)
	return start, min(start+rows, n)
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// isResultFile reports whether name looks like something a scan wrote.
func isResultFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".db", ".json":
		return true
	}
	return false
}
