package views

import (
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

// RecentEntry is a results file the user scanned or opened.
type RecentEntry struct {
	Path     string    `json:"path"`
	Query    string    `json:"query,omitempty"` // "pizza in Austin, TX"
	Records  int       `json:"records,omitempty"`
	OpenedAt time.Time `json:"opened_at"`
}

// NavigateToRecent signals navigation to recent results view.
type NavigateToRecent struct{}

// ForgetRecentMsg asks the app to drop Path from the recent list.
type ForgetRecentMsg struct {
	Path string
}

type RecentModel struct {
	entries []RecentEntry
	missing map[string]bool
	cursor  int
	err     string
}

func NewRecentModel(entries []RecentEntry) RecentModel {
	missing := make(map[string]bool)
	for _, e := range entries {
		if _, err := os.Stat(e.Path); err != nil {
			missing[e.Path] = true
		}
	}
	return RecentModel{entries: entries, missing: missing}
}

func (m RecentModel) Init() tea.Cmd {
	return nil
}

func (m RecentModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.String() {
	case "up", "k":
		m.cursor = max(m.cursor-1, 0)
	case "down", "j":
		m.cursor = max(min(m.cursor+1, len(m.entries)-1), 0)
	case "esc":
		return m, navigate(NavigateToHome{})
	}

	sel, ok := m.selected()
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "enter":
		if m.missing[sel.Path] {
			m.err = fmt.Sprintf("%s is gone, press d to forget it", filepath.Base(sel.Path))
			return m, nil
		}
		return m, navigate(NavigateToExplorer{Path: sel.Path, Query: sel.Query, Records: sel.Records})
	case "d", "delete":
		m.entries = slices.Concat(m.entries[:m.cursor], m.entries[m.cursor+1:])
		m.cursor = max(min(m.cursor, len(m.entries)-1), 0)
		m.err = ""
		return m, navigate(ForgetRecentMsg{Path: sel.Path})
	}
	return m, nil
}

func (m RecentModel) selected() (RecentEntry, bool) {
	if m.cursor < 0 || m.cursor >= len(m.entries) {
		return RecentEntry{}, false
	}
	return m.entries[m.cursor], true
}

func (m RecentModel) View() string {
	var b strings.Builder
	muted := lipgloss.NewStyle().Foreground(styles.Muted)

	b.WriteString(styles.Title.Render("Recent Results"))
	b.WriteString("\n\n")

	if len(m.entries) == 0 {
		b.WriteString(muted.Italic(true).Render("Nothing scanned or opened yet"))
		b.WriteString("\n\n")
		b.WriteString(styles.StatusBar.Render("esc back"))
		return styles.Border.Render(b.String())
	}

	for i, e := range m.entries {
		cursor, style := "  ", styles.InactiveItem
		if i == m.cursor {
			cursor, style = "> ", styles.ActiveItem
		}

		name := style.Render(filepath.Base(e.Path))
		if m.missing[e.Path] {
			name = lipgloss.NewStyle().Foreground(styles.Error).Strikethrough(true).Render(filepath.Base(e.Path))
		}
		fmt.Fprintf(&b, "%s%s %s\n", cursor, name, muted.Render(resultKind(e.Path)))
		fmt.Fprintf(&b, "  %s\n", muted.Render(describeRecent(e, time.Now())))
	}

	if m.err != "" {
		b.WriteString("\n")
		b.WriteString(styles.ErrorText.Render(m.err))
	}
	b.WriteString("\n")
	b.WriteString(styles.StatusBar.Render("enter open • d forget • esc back"))

	return styles.Border.Render(b.String())
}

// describeRecent is the detail line under a recent entry:
// "pizza in Austin, TX · 42 records · /data · 3h ago".
func describeRecent(e RecentEntry, now time.Time) string {
	var parts []string
	if e.Query != "" {
		parts = append(parts, e.Query)
	}
	if e.Records > 0 {
		parts = append(parts, fmt.Sprintf("%d records", e.Records))
	}
	parts = append(parts, filepath.Dir(e.Path), timeAgo(now.Sub(e.OpenedAt)))
	return strings.Join(parts, " · ")
}

func resultKind(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".db") {
		return "[sqlite]"
	}
	return "[json]"
}

func timeAgo(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
