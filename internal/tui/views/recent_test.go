package views

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"
)

func TestDescribeRecent(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	e := RecentEntry{
		Path:     filepath.Join("data", "yelp_1.db"),
		Query:    "pizza in Austin, TX",
		Records:  42,
		OpenedAt: now.Add(-3 * time.Hour),
	}
	require.Equal(t, "pizza in Austin, TX · 42 records · data · 3h ago", describeRecent(e, now))

	bare := RecentEntry{Path: filepath.Join("data", "old.json"), OpenedAt: now.Add(-30 * time.Second)}
	require.Equal(t, "data · just now", describeRecent(bare, now))
}

func TestRecentModel_OpenAndForget(t *testing.T) {
	dir := t.TempDir()
	live := filepath.Join(dir, "live.json")
	require.NoError(t, os.WriteFile(live, []byte("[]"), 0o644))
	gone := filepath.Join(dir, "gone.db")

	m := NewRecentModel([]RecentEntry{
		{Path: gone},
		{Path: live, Query: "tacos in Austin, TX", Records: 7},
	})
	require.True(t, m.missing[gone])

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(RecentModel)
	require.Nil(t, cmd)
	require.Contains(t, m.err, "gone.db")

	next, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("d")})
	m = next.(RecentModel)
	require.Equal(t, ForgetRecentMsg{Path: gone}, cmd())
	require.Len(t, m.entries, 1)

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, NavigateToExplorer{Path: live, Query: "tacos in Austin, TX", Records: 7}, cmd())
}

func TestTimeAgo(t *testing.T) {
	require.Equal(t, "5m ago", timeAgo(5*time.Minute))
	require.Equal(t, "2d ago", timeAgo(50*time.Hour))
}
