package views

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/yelptap/internal/config"
	"github.com/rendis/yelptap/internal/engine/scraper"
	"github.com/rendis/yelptap/internal/engine/session"
	"github.com/rendis/yelptap/internal/model"
	"github.com/rendis/yelptap/internal/tui/styles"
)

const feedSize = 6

// sharedState holds data shared between the scraper goroutine and TUI.
// Lives behind a pointer so it survives bubbletea's value copies.
type sharedState struct {
	mu     sync.Mutex
	stats  *scraper.Stats
	cancel context.CancelFunc
	feed   []model.BusinessRecord
	runID  string
}

// ProgressModel manages the scraping progress view.
type ProgressModel struct {
	params      model.SearchParams
	cfg         config.Config
	cfgErr      error
	progress    progress.Model
	startTime   time.Time
	done        bool
	confirmQuit bool
	err         error
	width       int
	height      int
	shared      *sharedState
}

// Messages
type progressTickMsg time.Time

type scrapeCompleteMsg struct {
	Err error
}

// NewProgressModel builds the crawl parameters for msg on top of the config
// file in the working directory. Each TUI scan gets timestamped output files.
func NewProgressModel(msg StartScanMsg) ProgressModel {
	p := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(50),
	)

	cfg, cfgErr := config.Load(config.DefaultFile)
	cfg.MaxPages = msg.Pages
	if msg.Concurrency > 0 {
		cfg.Concurrency = msg.Concurrency
	}

	ts := time.Now().Format("20060102_150405")
	baseName := fmt.Sprintf("yelp_%s", ts)
	cfg.Output = filepath.Join(msg.Output, baseName+".json")
	cfg.DB = filepath.Join(msg.Output, baseName+".db")

	return ProgressModel{
		params: cfg.Params(model.SearchQuery{
			Category: msg.Category,
			Location: msg.Location,
		}),
		cfg:       cfg,
		cfgErr:    cfgErr,
		progress:  p,
		startTime: time.Now(),
		shared:    &sharedState{stats: &scraper.Stats{}},
	}
}

func (m ProgressModel) Init() tea.Cmd {
	return tea.Batch(
		m.startScraping(),
		tickCmd(),
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(300*time.Millisecond, func(t time.Time) tea.Msg {
		return progressTickMsg(t)
	})
}

func (m ProgressModel) startScraping() tea.Cmd {
	shared := m.shared
	params := m.params
	cfg, cfgErr := m.cfg, m.cfgErr

	return func() tea.Msg {
		if cfgErr != nil {
			return scrapeCompleteMsg{Err: cfgErr}
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sess, err := session.Open(params, cfg)
		if err != nil {
			return scrapeCompleteMsg{Err: err}
		}

		shared.mu.Lock()
		shared.cancel = cancel
		shared.runID = sess.RunID
		shared.mu.Unlock()

		_, runErr := sess.Run(ctx, &scraper.RunOptions{
			SuppressStderr: true,
			Stats:          shared.stats,
			OnRecord:       shared.push,
		})

		if err := sess.Close(); err != nil && runErr == nil {
			runErr = err
		}
		return scrapeCompleteMsg{Err: runErr}
	}
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if cancel := m.shared.getCancel(); cancel != nil {
				cancel()
			}
			return m, tea.Quit
		case "esc":
			if m.done {
				return m, m.explore()
			}
			if m.confirmQuit {
				// Second esc: cancel and go home
				if cancel := m.shared.getCancel(); cancel != nil {
					cancel()
				}
				return m, navigate(NavigateToHome{})
			}
			m.confirmQuit = true
			return m, nil
		case "enter":
			if m.done {
				return m, m.explore()
			}
			if m.confirmQuit {
				m.confirmQuit = false
				return m, nil
			}
		}
		// Any other key cancels the confirmation
		if m.confirmQuit {
			m.confirmQuit = false
		}
	case progressTickMsg:
		if m.done {
			return m, nil
		}
		return m, tickCmd()
	case scrapeCompleteMsg:
		m.done = true
		m.err = msg.Err
		return m, nil
	}

	var cmd tea.Cmd
	var pModel tea.Model
	pModel, cmd = m.progress.Update(msg)
	m.progress = pModel.(progress.Model)
	return m, cmd
}

func (m ProgressModel) explore() tea.Cmd {
	return navigate(NavigateToExplorer{
		Path:    m.params.DBPath,
		Query:   m.params.Query.Category + " in " + m.params.Query.Location,
		Records: int(m.shared.stats.RecordsEmitted.Load()),
	})
}

func (m ProgressModel) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render(fmt.Sprintf("Scraping: %q in %s",
		m.params.Query.Category, m.params.Query.Location)))
	b.WriteString("\n\n")

	statsBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.Muted).
		Padding(0, 1).
		Width(30).
		Render(m.renderStats())
	feedBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.Muted).
		Padding(0, 1).
		Width(44).
		Render(m.renderFeed())
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, statsBox, " ", feedBox))
	b.WriteString("\n\n")

	stats := m.shared.stats
	b.WriteString(m.progress.ViewAs(stats.Progress()))
	b.WriteString("\n\n")

	if m.done {
		switch {
		case scraper.IsBlocked(m.err):
			b.WriteString(styles.ErrorText.Render("Stopped: Yelp keeps rate limiting us. Partial results were saved."))
		case m.err != nil && !errors.Is(m.err, context.Canceled):
			b.WriteString(styles.ErrorText.Render(fmt.Sprintf("Error: %v", m.err)))
		default:
			b.WriteString(lipgloss.NewStyle().Foreground(styles.Success).Bold(true).
				Render(fmt.Sprintf("Complete! %d businesses saved", stats.RecordsEmitted.Load())))
		}
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(styles.Muted).
			Render(fmt.Sprintf("Run: %s\nJSON: %s\nDatabase: %s", m.shared.getRunID(), m.params.Output, m.params.DBPath)))
		b.WriteString("\n\n")
		b.WriteString(styles.StatusBar.Render("enter explore results • esc back"))
	} else if m.confirmQuit {
		b.WriteString(styles.ErrorText.Render("Press ESC again to stop the scan and go back"))
		b.WriteString("\n")
		b.WriteString(styles.StatusBar.Render("esc confirm stop • any key continue"))
	} else {
		b.WriteString(styles.StatusBar.Render("esc cancel • ctrl+c quit"))
	}

	return b.String()
}

func (m ProgressModel) renderStats() string {
	var sb strings.Builder
	elapsed := time.Since(m.startTime).Truncate(time.Second)
	stats := m.shared.stats

	statLabel := lipgloss.NewStyle().Foreground(styles.Muted).Width(12)
	statVal := lipgloss.NewStyle().Foreground(styles.Text).Bold(true)

	row := func(label string, value string) {
		sb.WriteString(statLabel.Render(label))
		sb.WriteString(statVal.Render(value))
		sb.WriteString("\n")
	}

	done, queued := stats.JobsDone.Load(), stats.JobsQueued.Load()
	row("Pages:", fmt.Sprintf("%d/%d", done, queued))
	row("Search:", fmt.Sprintf("%d/%d", stats.SearchPages.Load(), m.params.MaxPages))
	row("Listings:", fmt.Sprintf("%d", stats.ListingsFound.Load()))
	row("Records:", fmt.Sprintf("%d", stats.RecordsEmitted.Load()))

	errs := stats.Errors.Load()
	errStyle := statVal
	if errs > 0 {
		errStyle = lipgloss.NewStyle().Foreground(styles.Error).Bold(true)
	}
	sb.WriteString(statLabel.Render("Errors:"))
	sb.WriteString(errStyle.Render(fmt.Sprintf("%d", errs)))
	sb.WriteString("\n")

	if rl := stats.RateLimits.Load(); rl > 0 {
		rlStyle := lipgloss.NewStyle().Foreground(styles.Warning).Bold(true)
		sb.WriteString(statLabel.Render("Rate Lim:"))
		sb.WriteString(rlStyle.Render(fmt.Sprintf("%d", rl)))
		sb.WriteString("\n")
	}

	row("Elapsed:", elapsed.String())
	return sb.String()
}

func (m ProgressModel) renderFeed() string {
	feed := m.shared.getFeed()
	if len(feed) == 0 {
		return lipgloss.NewStyle().Foreground(styles.Muted).Italic(true).Render("waiting for the first business...")
	}
	var sb strings.Builder
	sb.WriteString(styles.Subtitle.Render("Latest"))
	for _, r := range feed {
		sb.WriteString("\n")
		sb.WriteString(truncate(r.Name, 24))
		sb.WriteString(" ")
		sb.WriteString(styles.Stars(r.Rating))
	}
	return sb.String()
}

func (s *sharedState) push(rec model.BusinessRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feed = append(s.feed, rec)
	if len(s.feed) > feedSize {
		s.feed = s.feed[len(s.feed)-feedSize:]
	}
}

func (s *sharedState) getFeed() []model.BusinessRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.BusinessRecord, len(s.feed))
	copy(out, s.feed)
	return out
}

func (s *sharedState) getRunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

func (s *sharedState) getCancel() context.CancelFunc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel
}

// NavigateToExplorer opens a results file. Query and Records are known when
// the file was just produced by a scan.
type NavigateToExplorer struct {
	Path    string
	Query   string
	Records int
}
