package views

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/yelptap/internal/engine/output"
	"github.com/rendis/yelptap/internal/engine/storage"
	"github.com/rendis/yelptap/internal/model"
	"github.com/rendis/yelptap/internal/tui/components"
	"github.com/rendis/yelptap/internal/tui/styles"
)

type focusArea int

const (
	focusTable focusArea = iota
	focusFilter
	focusCard
	focusJSON
)

// ExplorerModel displays scraped data with table + detail panels.
type ExplorerModel struct {
	path       string
	businesses []model.BusinessRecord
	filtered   []model.BusinessRecord
	table      table.Model
	filter     textinput.Model
	focus      focusArea
	selected   int
	width      int
	height     int
	err        error
	total      int
	exportMsg  string

	ratings     components.RatingBars
	showRatings bool

	// Scroll state for detail panels
	cardScrollY int
	cardLines   []string // cached rendered card lines
	jsonScrollY int
	jsonScrollX int
	jsonLines   []string // cached raw JSON lines
	jsonRaw     string   // full JSON for clipboard copy
}

type recordsLoadedMsg struct {
	Records []model.BusinessRecord
	Err     error
}

// NewExplorerModel opens a results file: a .db store (latest run) or a JSON
// array written by a scan.
func NewExplorerModel(path string) ExplorerModel {
	filter := textinput.New()
	filter.Placeholder = "Type to filter..."
	filter.CharLimit = 50

	return ExplorerModel{
		path:     path,
		filter:   filter,
		ratings:  components.NewRatingBars(40),
		selected: -1,
	}
}

func (m ExplorerModel) Init() tea.Cmd {
	return func() tea.Msg {
		recs, err := loadRecords(m.path)
		return recordsLoadedMsg{Records: recs, Err: err}
	}
}

func (m ExplorerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
	case tea.KeyMsg:
		key := msg.String()

		// Global keys
		if key == "ctrl+c" {
			return m, tea.Quit
		}

		switch m.focus {
		case focusTable:
			switch key {
			case "esc", "q":
				return m, func() tea.Msg { return NavigateToHome{} }
			case "/":
				m.focus = focusFilter
				m.filter.Focus()
				return m, textinput.Blink
			case "tab":
				m.focus = focusFilter
				m.filter.Focus()
				return m, textinput.Blink
			case "1":
				m.focus = focusCard
				m.table.SetStyles(m.unfocusedTableStyles())
				return m, nil
			case "2":
				m.focus = focusJSON
				m.table.SetStyles(m.unfocusedTableStyles())
				return m, nil
			case "e":
				m.exportCSV()
				return m, nil
			case "r":
				m.showRatings = !m.showRatings
				return m, nil
			}

		case focusFilter:
			switch key {
			case "esc", "enter", "tab":
				m.focus = focusTable
				m.filter.Blur()
				return m, nil
			}

		case focusCard:
			ph := m.panelHeight()
			maxScroll := len(m.cardLines) - ph
			if maxScroll < 0 {
				maxScroll = 0
			}
			switch key {
			case "esc":
				m.focus = focusTable
				m.table.SetStyles(m.focusedTableStyles())
				return m, nil
			case "up", "k":
				if m.cardScrollY > 0 {
					m.cardScrollY--
				}
				return m, nil
			case "down", "j":
				if m.cardScrollY < maxScroll {
					m.cardScrollY++
				}
				return m, nil
			}

		case focusJSON:
			ph := m.panelHeight()
			maxScroll := len(m.jsonLines) - ph
			if maxScroll < 0 {
				maxScroll = 0
			}
			switch key {
			case "esc":
				m.focus = focusTable
				m.table.SetStyles(m.focusedTableStyles())
				return m, nil
			case "up", "k":
				if m.jsonScrollY > 0 {
					m.jsonScrollY--
				}
				return m, nil
			case "down", "j":
				if m.jsonScrollY < maxScroll {
					m.jsonScrollY++
				}
				return m, nil
			case "left", "h":
				if m.jsonScrollX > 0 {
					m.jsonScrollX -= 4
					if m.jsonScrollX < 0 {
						m.jsonScrollX = 0
					}
				}
				return m, nil
			case "right", "l":
				m.jsonScrollX += 4
				return m, nil
			case "c":
				m.copyToClipboard()
				return m, nil
			}
		}

	case recordsLoadedMsg:
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.businesses = msg.Records
		m.filtered = msg.Records
		m.ratings.SetRecords(m.filtered)
		m.total = len(m.businesses)
		m.buildTable(m.businesses)
		m.updateLayout()
		if len(m.filtered) > 0 {
			m.selected = 0
			m.cacheDetailContent()
		}
		return m, nil
	}

	// Route input to focused area
	var cmd tea.Cmd
	switch m.focus {
	case focusTable:
		m.table, cmd = m.table.Update(msg)
		cursor := m.table.Cursor()
		if cursor != m.selected && cursor < len(m.filtered) {
			m.selected = cursor
			m.cardScrollY = 0
			m.jsonScrollY = 0
			m.jsonScrollX = 0
			m.cacheDetailContent()
		}
	case focusFilter:
		m.filter, cmd = m.filter.Update(msg)
		m.applyFilter()
	}

	return m, cmd
}

func (m *ExplorerModel) cacheDetailContent() {
	if m.selected < 0 || m.selected >= len(m.filtered) {
		m.cardLines = nil
		m.jsonLines = nil
		m.jsonRaw = ""
		return
	}

	rec := m.filtered[m.selected]
	m.cardLines = buildCardLines(rec)

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		m.jsonLines = []string{"JSON error"}
		m.jsonRaw = ""
		return
	}
	m.jsonRaw = string(data)
	m.jsonLines = strings.Split(m.jsonRaw, "\n")
}

func buildCardLines(rec model.BusinessRecord) []string {
	var lines []string

	lines = append(lines, rec.Name)

	if rec.Rating != "" || rec.NumReviews > 0 {
		r := rec.Rating
		if r == "" {
			r = "no rating"
		}
		lines = append(lines, fmt.Sprintf("%s (%d reviews)", r, rec.NumReviews))
	}

	lines = append(lines, "")

	addRow := func(label, value string) {
		if value != "" {
			lines = append(lines, fmt.Sprintf("%-10s %s", label, value))
		}
	}
	addRow("Website:", rec.Website)
	addRow("Yelp:", rec.DetailURL)

	if len(rec.Reviews) > 0 {
		lines = append(lines, "")
		lines = append(lines, fmt.Sprintf("Latest %d reviewers", len(rec.Reviews)))
		for _, rv := range rec.Reviews {
			line := "• " + rv.ReviewerName
			if rv.ReviewerLocation != "" {
				line += " (" + rv.ReviewerLocation + ")"
			}
			if rv.ReviewDate != "" {
				line += " " + rv.ReviewDate
			}
			lines = append(lines, line)
		}
	}

	return lines
}

func (m *ExplorerModel) buildTable(recs []model.BusinessRecord) {
	nameW := 30
	ratingW := 6
	reviewsW := 8
	siteW := 26
	if m.width > 120 {
		extra := m.width - 120
		nameW += extra / 2
		siteW += extra / 2
	}

	columns := []table.Column{
		{Title: "Name", Width: nameW},
		{Title: "Rating", Width: ratingW},
		{Title: "Reviews", Width: reviewsW},
		{Title: "Website", Width: siteW},
	}

	rows := make([]table.Row, len(recs))
	for i, r := range recs {
		rows[i] = table.Row{
			truncate(r.Name, nameW),
			r.Rating,
			fmt.Sprintf("%d", r.NumReviews),
			truncate(r.Website, siteW),
		}
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	t.SetStyles(m.focusedTableStyles())
	m.table = t
}

func (m ExplorerModel) focusedTableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.Muted).
		BorderBottom(true).
		Bold(true).
		Foreground(styles.Secondary)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(styles.Primary).
		Bold(true)
	return s
}

func (m ExplorerModel) unfocusedTableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.Muted).
		BorderBottom(true).
		Bold(true).
		Foreground(styles.Muted)
	s.Selected = s.Selected.
		Foreground(styles.Text).
		Background(lipgloss.Color("#333333")).
		Bold(false)
	return s
}

func (m ExplorerModel) panelHeight() int {
	h := m.height/2 - 6
	if h < 6 {
		h = 6
	}
	return h
}

func (m *ExplorerModel) updateLayout() {
	if m.width <= 0 {
		return
	}
	tableH := m.height/2 - 4
	if tableH < 5 {
		tableH = 5
	}
	m.table.SetHeight(tableH)
	m.buildTable(m.filtered)
}

func (m *ExplorerModel) applyFilter() {
	m.filtered = filterRecords(m.businesses, m.filter.Value())
	m.ratings.SetRecords(m.filtered)
	m.buildTable(m.filtered)
	if len(m.filtered) > 0 {
		m.selected = 0
	} else {
		m.selected = -1
	}
	m.cacheDetailContent()
}

func (m ExplorerModel) View() string {
	if m.err != nil {
		return styles.ErrorText.Render(fmt.Sprintf("Error loading %s: %v", m.path, m.err))
	}

	var b strings.Builder

	b.WriteString(styles.Title.Render(fmt.Sprintf("Explorer: %d businesses", m.total)))
	if len(m.filtered) != m.total {
		b.WriteString(lipgloss.NewStyle().Foreground(styles.Muted).
			Render(fmt.Sprintf(" (showing %d)", len(m.filtered))))
	}
	b.WriteString("\n\n")

	// Filter
	filterStyle := lipgloss.NewStyle().Foreground(styles.Muted)
	if m.focus == focusFilter {
		filterStyle = lipgloss.NewStyle().Foreground(styles.Primary)
	}
	b.WriteString(filterStyle.Render("Filter: "))
	b.WriteString(m.filter.View())
	b.WriteString("\n")

	// Table
	b.WriteString(m.table.View())
	b.WriteString("\n\n")

	// Detail panels
	detailW := m.width - 2
	if detailW < 40 {
		detailW = 40
	}

	// Panel height for viewports
	panelH := m.height/2 - 6
	if panelH < 6 {
		panelH = 6
	}

	cardOuterW := detailW * 2 / 5
	jsonOuterW := detailW - cardOuterW - 1

	// Card panel
	cardBorderColor := styles.Muted
	if m.focus == focusCard {
		cardBorderColor = styles.Primary
	}
	cardInnerW := cardOuterW - 4
	if cardInnerW < 20 {
		cardInnerW = 20
	}
	cardContent := m.viewCardPanel(cardInnerW, panelH)
	cardBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(cardBorderColor).
		Padding(0, 1).
		Width(cardOuterW - 2).
		Height(panelH).
		Render(cardContent)
	cardLabel := lipgloss.NewStyle().Bold(true).Foreground(cardBorderColor).Render("[1] Details")
	cardBox = cardLabel + "\n" + cardBox

	// JSON panel
	jsonBorderColor := styles.Muted
	if m.focus == focusJSON {
		jsonBorderColor = styles.Primary
	}
	jsonInnerW := jsonOuterW - 4
	if jsonInnerW < 20 {
		jsonInnerW = 20
	}
	jsonContent := m.viewJSONPanel(jsonInnerW, panelH)
	jsonBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(jsonBorderColor).
		Padding(0, 1).
		Width(jsonOuterW - 2).
		Height(panelH).
		Render(jsonContent)
	jsonLabel := lipgloss.NewStyle().Bold(true).Foreground(jsonBorderColor).Render("[2] JSON")
	jsonBox = jsonLabel + "\n" + jsonBox

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cardBox, " ", jsonBox))
	b.WriteString("\n\n")

	if m.showRatings {
		m.ratings.SetWidth(detailW / 2)
		b.WriteString(lipgloss.NewStyle().Bold(true).Foreground(styles.Secondary).Render("Ratings"))
		b.WriteString("\n")
		b.WriteString(m.ratings.View())
		b.WriteString("\n\n")
	}

	// Export message
	if m.exportMsg != "" {
		b.WriteString(lipgloss.NewStyle().Foreground(styles.Success).Render(m.exportMsg))
		b.WriteString("\n")
	}

	// Status bar changes by focus
	var statusText string
	switch m.focus {
	case focusTable:
		statusText = "↑↓ navigate • 1 details • 2 json • / filter • r ratings • e export csv • esc back"
	case focusFilter:
		statusText = "type to filter • esc back"
	case focusCard:
		statusText = "↑↓ scroll • esc back to table"
	case focusJSON:
		statusText = "↑↓ scroll • ←→ pan • c copy json • esc back to table"
	}
	b.WriteString(styles.StatusBar.Render(statusText))

	return b.String()
}

func (m ExplorerModel) viewCardPanel(w, h int) string {
	if m.selected < 0 || m.selected >= len(m.filtered) || len(m.cardLines) == 0 {
		return lipgloss.NewStyle().Foreground(styles.Muted).Italic(true).
			Render("Select a business\nto view details")
	}

	lines := m.cardLines

	// Clamp scroll
	scrollY := m.cardScrollY
	if scrollY > len(lines)-h {
		scrollY = len(lines) - h
	}
	if scrollY < 0 {
		scrollY = 0
	}

	// Window
	end := scrollY + h
	if end > len(lines) {
		end = len(lines)
	}
	visible := lines[scrollY:end]

	var sb strings.Builder
	label := lipgloss.NewStyle().Foreground(styles.Muted)
	valStyle := lipgloss.NewStyle().Foreground(styles.Text)

	for i, line := range visible {
		// First line (name) is bold
		if scrollY+i == 0 {
			sb.WriteString(lipgloss.NewStyle().Bold(true).Foreground(styles.Text).
				Render(truncate(line, w)))
		} else if scrollY+i == 1 && strings.Contains(line, "reviews)") {
			// Rating line
			sb.WriteString(lipgloss.NewStyle().Foreground(styles.Warning).
				Render(truncate(line, w)))
		} else if strings.HasPrefix(line, "Website:") || strings.HasPrefix(line, "Yelp:") {
			parts := strings.SplitN(line, " ", 2)
			lbl := parts[0]
			val := ""
			if len(parts) > 1 {
				val = strings.TrimSpace(parts[1])
			}
			sb.WriteString(label.Render(fmt.Sprintf("%-10s ", lbl)))
			sb.WriteString(lipgloss.NewStyle().Foreground(styles.Primary).
				Render(truncate(val, w-11)))
		} else {
			sb.WriteString(valStyle.Render(truncate(line, w)))
		}
		if i < len(visible)-1 {
			sb.WriteString("\n")
		}
	}

	// Scroll indicators
	if scrollY > 0 {
		sb.WriteString("\n")
		sb.WriteString(label.Render("  ▲ more above"))
	}
	if end < len(lines) {
		sb.WriteString("\n")
		sb.WriteString(label.Render("  ▼ more below"))
	}

	return sb.String()
}

func (m ExplorerModel) viewJSONPanel(w, h int) string {
	if m.selected < 0 || m.selected >= len(m.filtered) || len(m.jsonLines) == 0 {
		return lipgloss.NewStyle().Foreground(styles.Muted).Italic(true).
			Render("Select a business\nto view JSON")
	}

	lines := m.jsonLines
	jsonStyle := lipgloss.NewStyle().Foreground(styles.Muted)
	keyStyle := lipgloss.NewStyle().Foreground(styles.Secondary)
	strStyle := lipgloss.NewStyle().Foreground(styles.Success)

	// Clamp scroll
	scrollY := m.jsonScrollY
	if scrollY > len(lines)-h {
		scrollY = len(lines) - h
	}
	if scrollY < 0 {
		scrollY = 0
	}

	end := scrollY + h
	if end > len(lines) {
		end = len(lines)
	}
	visible := lines[scrollY:end]

	var sb strings.Builder
	for i, line := range visible {
		// Apply horizontal scroll
		display := line
		if m.jsonScrollX > 0 {
			if m.jsonScrollX < len(display) {
				display = display[m.jsonScrollX:]
			} else {
				display = ""
			}
		}
		if len(display) > w {
			display = display[:w-1] + "…"
		}

		// Simple JSON syntax coloring
		trimmed := strings.TrimSpace(display)
		if strings.HasPrefix(trimmed, "\"") && strings.Contains(trimmed, "\":") {
			// Key line: color the key part
			colonIdx := strings.Index(display, "\":")
			if colonIdx > 0 {
				keyPart := display[:colonIdx+1]
				valPart := display[colonIdx+1:]
				sb.WriteString(keyStyle.Render(keyPart))
				sb.WriteString(strStyle.Render(valPart))
			} else {
				sb.WriteString(jsonStyle.Render(display))
			}
		} else {
			sb.WriteString(jsonStyle.Render(display))
		}

		if i < len(visible)-1 {
			sb.WriteString("\n")
		}
	}

	// Scroll indicators
	if scrollY > 0 || end < len(lines) {
		sb.WriteString("\n")
		indicator := fmt.Sprintf("  [%d/%d]", scrollY+1, len(lines))
		if m.jsonScrollX > 0 {
			indicator += fmt.Sprintf(" ←%d", m.jsonScrollX)
		}
		sb.WriteString(lipgloss.NewStyle().Foreground(styles.Muted).Render(indicator))
	}

	return sb.String()
}

func (m *ExplorerModel) copyToClipboard() {
	if m.jsonRaw == "" {
		return
	}
	if err := clipboard.WriteAll(m.jsonRaw); err != nil {
		m.exportMsg = fmt.Sprintf("Copy failed: %v", err)
		return
	}
	m.exportMsg = "JSON copied to clipboard"
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

func (m *ExplorerModel) exportCSV() {
	dir := filepath.Dir(m.path)
	base := strings.TrimSuffix(filepath.Base(m.path), filepath.Ext(m.path))
	csvPath := filepath.Join(dir, base+".csv")

	data := m.filtered
	if len(data) == 0 {
		data = m.businesses
	}

	if err := output.SaveCSV(csvPath, data); err != nil {
		m.exportMsg = fmt.Sprintf("Export error: %v", err)
		return
	}
	m.exportMsg = fmt.Sprintf("Exported %d rows to %s", len(data), csvPath)
}

func loadRecords(path string) ([]model.BusinessRecord, error) {
	if !strings.EqualFold(filepath.Ext(path), ".db") {
		return output.LoadJSON(path)
	}

	store, err := storage.NewStore(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	runs, err := store.Runs()
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return store.LoadRecords(runs[0].ID)
}
