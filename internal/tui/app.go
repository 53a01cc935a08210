package tui

import (
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/yelptap/internal/tui/styles"
	"github.com/rendis/yelptap/internal/tui/views"
)

type screen int

const (
	screenHome screen = iota
	screenSearch
	screenProgress
	screenExplorer
	screenPicker
	screenRecent
)

var screenTitles = map[screen]string{
	screenHome:     "",
	screenSearch:   "New scan",
	screenProgress: "Scanning",
	screenExplorer: "Results",
	screenPicker:   "Open",
	screenRecent:   "Recent",
}

// App routes navigation messages between screens and forwards everything
// else to the active one.
type App struct {
	screen screen
	width  int
	height int

	// opened is the results file shown in the explorer, for the header.
	opened string

	home     views.HomeModel
	search   views.SearchModel
	progress views.ProgressModel
	explorer views.ExplorerModel
	picker   views.FilePickerModel
	recent   views.RecentModel
}

func NewApp(version string) App {
	return App{
		screen: screenHome,
		home:   views.NewHomeModel(version),
		search: views.NewSearchModel(),
	}
}

func (a App) Init() tea.Cmd {
	return a.home.Init()
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if next, cmd, handled := a.route(msg); handled {
		return next, cmd
	}

	var cmd tea.Cmd
	switch a.screen {
	case screenHome:
		a.home, cmd = step(a.home, msg)
	case screenSearch:
		a.search, cmd = step(a.search, msg)
	case screenProgress:
		a.progress, cmd = step(a.progress, msg)
	case screenExplorer:
		a.explorer, cmd = step(a.explorer, msg)
	case screenPicker:
		a.picker, cmd = step(a.picker, msg)
	case screenRecent:
		a.recent, cmd = step(a.recent, msg)
	}
	return a, cmd
}

// route handles app-level messages. Window sizes are recorded and still
// forwarded to the active screen.
func (a App) route(msg tea.Msg) (App, tea.Cmd, bool) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// A running scan owns ctrl+c so it can confirm and cancel cleanly.
		if msg.String() == "ctrl+c" && a.screen != screenProgress {
			return a, tea.Quit, true
		}
	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		return a, nil, false
	case views.NavigateToHome:
		a.screen = screenHome
		return a, nil, true
	case views.NavigateToSearch:
		a.screen = screenSearch
		a.search = views.NewSearchModel()
		return a, a.search.Init(), true
	case views.NavigateToLoad:
		a.screen = screenPicker
		a.picker = views.NewFilePickerModel()
		return a, a.picker.Init(), true
	case views.NavigateToRecent:
		a.screen = screenRecent
		a.recent = views.NewRecentModel(LoadRecent())
		return a, a.recent.Init(), true
	case views.ForgetRecentMsg:
		_ = ForgetRecent(msg.Path)
		return a, nil, true
	case views.StartScanMsg:
		a.screen = screenProgress
		a.progress = views.NewProgressModel(msg)
		return a, tea.Batch(a.progress.Init(), a.sizeCmd()), true
	case views.NavigateToExplorer:
		a.screen = screenExplorer
		a.opened = msg.Path
		a.explorer = views.NewExplorerModel(msg.Path)
		_ = SaveRecent(views.RecentEntry{Path: msg.Path, Query: msg.Query, Records: msg.Records})
		return a, tea.Batch(a.explorer.Init(), a.sizeCmd()), true
	}
	return a, nil, false
}

// step runs one Update on a concrete screen model and keeps its type.
func step[M tea.Model](m M, msg tea.Msg) (M, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(M), cmd
}

func (a App) active() tea.Model {
	switch a.screen {
	case screenSearch:
		return a.search
	case screenProgress:
		return a.progress
	case screenExplorer:
		return a.explorer
	case screenPicker:
		return a.picker
	case screenRecent:
		return a.recent
	default:
		return a.home
	}
}

func (a App) View() string {
	content := a.active().View()
	if header := a.header(); header != "" {
		content = lipgloss.JoinVertical(lipgloss.Left, header, content)
	}
	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Top, content)
}

// header is the breadcrumb above every screen except home:
// "yelptap › Results › yelp_20261018.db".
func (a App) header() string {
	title := screenTitles[a.screen]
	if title == "" {
		return ""
	}
	crumb := "yelptap › " + title
	if a.screen == screenExplorer && a.opened != "" {
		crumb += " › " + filepath.Base(a.opened)
	}
	return lipgloss.NewStyle().Foreground(styles.Muted).Render(crumb)
}

// sizeCmd sends a WindowSizeMsg so newly created views get the current terminal size.
func (a App) sizeCmd() tea.Cmd {
	w, h := a.width, a.height
	return func() tea.Msg {
		return tea.WindowSizeMsg{Width: w, Height: h}
	}
}

// Run starts the TUI.
func Run(version string) error {
	p := tea.NewProgram(NewApp(version), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
