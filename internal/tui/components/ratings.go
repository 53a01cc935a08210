package components

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/yelptap/internal/model"
	"github.com/rendis/yelptap/internal/tui/styles"
)

// RatingBars renders how the ratings of a result set are distributed over
// the 1..5 star buckets as horizontal bars.
type RatingBars struct {
	width   int
	buckets [5]int
	unrated int
}

func NewRatingBars(width int) RatingBars {
	return RatingBars{width: width}
}

func (r *RatingBars) SetWidth(width int) {
	r.width = width
}

// SetRecords recomputes the buckets. A rating rounds to the nearest star;
// anything unparsable or out of range counts as unrated.
func (r *RatingBars) SetRecords(recs []model.BusinessRecord) {
	r.buckets = [5]int{}
	r.unrated = 0
	for _, rec := range recs {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec.Rating), 64)
		if err != nil || v < 1 || v > 5 {
			r.unrated++
			continue
		}
		r.buckets[int(v+0.5)-1]++
	}
}

func (r RatingBars) Counts() ([5]int, int) {
	return r.buckets, r.unrated
}

func (r RatingBars) View() string {
	maxCount := 0
	for _, c := range r.buckets {
		maxCount = max(maxCount, c)
	}

	barW := max(r.width-12, 5)
	label := lipgloss.NewStyle().Foreground(styles.Muted)
	bar := lipgloss.NewStyle().Foreground(styles.Warning)

	var sb strings.Builder
	for star := 5; star >= 1; star-- {
		c := r.buckets[star-1]
		n := 0
		if maxCount > 0 {
			n = c * barW / maxCount
		}
		sb.WriteString(label.Render(fmt.Sprintf("%d★ ", star)))
		sb.WriteString(bar.Render(strings.Repeat("█", n)))
		sb.WriteString(label.Render(fmt.Sprintf(" %d", c)))
		sb.WriteString("\n")
	}
	if r.unrated > 0 {
		sb.WriteString(label.Render(fmt.Sprintf("unrated %d", r.unrated)))
		sb.WriteString("\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
