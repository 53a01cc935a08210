package views

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/yelptap/internal/tui/styles"
)

const (
	fieldCategory = iota
	fieldLocation
	fieldPages
	fieldConcurrency
	fieldOutput
	fieldCount
)

// popularCategories feeds the category autocomplete.
var popularCategories = []string{
	"Restaurants", "Coffee & Tea", "Pizza", "Bars", "Breakfast & Brunch",
	"Mexican", "Sushi Bars", "Bakeries", "Burgers", "Thai", "Vegan",
	"Plumbers", "Electricians", "Auto Repair", "Dentists", "Hair Salons",
	"Gyms", "Dry Cleaning", "Movers", "Hotels", "Pet Groomers", "Florists",
}

type SearchModel struct {
	inputs      []textinput.Model
	focused     int
	err         string
	suggestions []string
	suggIdx     int
}

func NewSearchModel() SearchModel {
	inputs := make([]textinput.Model, fieldCount)

	inputs[fieldCategory] = newInput("pizza, plumbers, coffee...", "", 40)
	inputs[fieldLocation] = newInput("Austin, TX", "", 40)
	inputs[fieldPages] = newInput("1", "", 5)
	inputs[fieldConcurrency] = newInput("8", "", 5)
	inputs[fieldOutput] = newInput("./results", "", 50)
	inputs[fieldCategory].Focus()

	return SearchModel{
		inputs:  inputs,
		focused: fieldCategory,
		suggIdx: -1,
	}
}

func newInput(placeholder, value string, width int) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 100
	if width > 0 {
		ti.Width = width
	}
	if value != "" {
		ti.SetValue(value)
	}
	return ti
}

func (m SearchModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m SearchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "esc":
			return m, navigate(NavigateToHome{})

		case "up":
			if m.focused == fieldCategory && len(m.suggestions) > 0 && m.suggIdx > 0 {
				m.suggIdx--
				return m, nil
			}
			m.err = ""
			return m, m.focusPrev()

		case "down":
			if m.focused == fieldCategory && len(m.suggestions) > 0 && m.suggIdx < len(m.suggestions)-1 {
				m.suggIdx++
				return m, nil
			}
			m.err = ""
			return m, m.focusNext()

		case "tab":
			m.err = ""
			if m.focused == fieldCategory && len(m.suggestions) > 0 {
				m.selectSuggestion()
			}
			return m, m.focusNext()

		case "shift+tab":
			m.err = ""
			return m, m.focusPrev()

		case "enter":
			if m.focused == fieldCategory && len(m.suggestions) > 0 {
				m.selectSuggestion()
				return m, m.focusNext()
			}
			if cmd := m.submit(); cmd != nil {
				return m, cmd
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focused], cmd = m.inputs[m.focused].Update(msg)

	if m.focused == fieldCategory {
		m.updateSuggestions()
	}

	return m, cmd
}

func (m *SearchModel) selectSuggestion() {
	if m.suggIdx >= 0 && m.suggIdx < len(m.suggestions) {
		m.inputs[fieldCategory].SetValue(m.suggestions[m.suggIdx])
		m.suggestions = nil
		m.suggIdx = -1
	}
}

func (m *SearchModel) updateSuggestions() {
	raw := strings.TrimSpace(m.inputs[fieldCategory].Value())
	if raw == "" {
		m.suggestions = nil
		m.suggIdx = -1
		return
	}

	q := normalize(raw)
	var matches []string
	for _, c := range popularCategories {
		n := normalize(c)
		if n == q {
			// Already typed in full.
			matches = nil
			break
		}
		if strings.Contains(n, q) {
			matches = append(matches, c)
			if len(matches) >= 5 {
				break
			}
		}
	}
	m.suggestions = matches
	if len(matches) > 0 {
		if m.suggIdx < 0 || m.suggIdx >= len(matches) {
			m.suggIdx = 0
		}
	} else {
		m.suggIdx = -1
	}
}

func (m *SearchModel) focusNext() tea.Cmd {
	m.inputs[m.focused].Blur()
	m.focused = (m.focused + 1) % fieldCount
	m.inputs[m.focused].Focus()
	return textinput.Blink
}

func (m *SearchModel) focusPrev() tea.Cmd {
	m.inputs[m.focused].Blur()
	m.focused = (m.focused + fieldCount - 1) % fieldCount
	m.inputs[m.focused].Focus()
	return textinput.Blink
}

func positiveInt(s, name string, def int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive number", name)
	}
	return n, nil
}

func (m *SearchModel) submit() tea.Cmd {
	category := strings.TrimSpace(m.inputs[fieldCategory].Value())
	if category == "" {
		m.err = "Category is required"
		return nil
	}
	location := strings.TrimSpace(m.inputs[fieldLocation].Value())
	if location == "" {
		m.err = "Location is required"
		return nil
	}

	pages, err := positiveInt(m.inputs[fieldPages].Value(), "Pages", 1)
	if err != nil {
		m.err = err.Error()
		return nil
	}
	concurrency, err := positiveInt(m.inputs[fieldConcurrency].Value(), "Concurrency", 0)
	if err != nil {
		m.err = err.Error()
		return nil
	}

	output := strings.TrimSpace(m.inputs[fieldOutput].Value())
	if output == "" {
		output = "."
	}

	return navigate(StartScanMsg{
		Category:    category,
		Location:    location,
		Pages:       pages,
		Concurrency: concurrency,
		Output:      output,
	})
}

func (m SearchModel) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("New Search") + "\n\n")

	b.WriteString(m.renderField("Category:", fieldCategory))
	if m.focused == fieldCategory && len(m.suggestions) > 0 {
		b.WriteString(m.renderSuggestions())
	}
	b.WriteString(m.renderField("Location:", fieldLocation))

	b.WriteString("\n")
	b.WriteString(m.renderField("Pages:", fieldPages))
	if m.focused == fieldPages {
		hint := lipgloss.NewStyle().Foreground(styles.Muted).Italic(true).
			Render("  search result pages to walk, ~10 businesses each")
		b.WriteString(hint + "\n")
	}
	b.WriteString(m.renderField("Concurrency:", fieldConcurrency))
	b.WriteString(m.renderField("Output dir:", fieldOutput))

	if m.err != "" {
		b.WriteString("\n")
		b.WriteString(styles.ErrorText.Render("  " + m.err))
	}

	b.WriteString("\n\n")
	b.WriteString(styles.StatusBar.Render("enter start • tab next • esc back"))

	return styles.Border.Render(b.String())
}

func (m SearchModel) renderSuggestions() string {
	var sb strings.Builder
	active := lipgloss.NewStyle().Foreground(styles.Primary).Bold(true)
	inactive := lipgloss.NewStyle().Foreground(styles.Muted)

	for i, c := range m.suggestions {
		if i == m.suggIdx {
			sb.WriteString(active.Render("  > " + c))
		} else {
			sb.WriteString(inactive.Render("    " + c))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m SearchModel) renderField(label string, idx int) string {
	l := styles.Label.Render(label)
	v := m.inputs[idx].View()
	return fmt.Sprintf("%s %s\n", l, v)
}

// Messages
type NavigateToHome struct{}

type StartScanMsg struct {
	Category    string
	Location    string
	Pages       int
	Concurrency int
	Output      string
}
