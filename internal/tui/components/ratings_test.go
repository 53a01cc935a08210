package components

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rendis/yelptap/internal/model"
)

func TestRatingBars_Buckets(t *testing.T) {
	r := NewRatingBars(30)
	r.SetRecords([]model.BusinessRecord{
		{Rating: "4.5"},
		{Rating: "4.2"},
		{Rating: "5.0"},
		{Rating: "1.0"},
		{Rating: ""},
		{Rating: "n/a"},
	})

	buckets, unrated := r.Counts()
	require.Equal(t, [5]int{1, 0, 0, 1, 2}, buckets)
	require.Equal(t, 2, unrated)

	view := r.View()
	require.Equal(t, 6, len(strings.Split(view, "\n")))
	require.Contains(t, view, "unrated 2")
}

func TestRatingBars_Empty(t *testing.T) {
	r := NewRatingBars(10)
	r.SetRecords(nil)
	view := r.View()
	require.Len(t, strings.Split(view, "\n"), 5)
	require.NotContains(t, view, "█")
}
