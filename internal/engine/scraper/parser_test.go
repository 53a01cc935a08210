package scraper

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/rendis/yelptap/internal/model"
)

func loadFixture(t *testing.T, name string) *goquery.Document {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	doc, err := parseHTML(data)
	require.NoError(t, err)
	return doc
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestParseSearchPage(t *testing.T) {
	doc := loadFixture(t, "search.html")
	pageURL := mustURL(t, "https://www.yelp.com/search?find_desc=coffee&find_loc=Seattle%2C+WA")

	page := ParseSearchPage(context.Background(), doc, pageURL, 2, DefaultSelectors())

	expected := []model.BusinessSummary{
		{
			Name:       "Analog Coffee",
			Rating:     "4.5",
			NumReviews: 1204,
			DetailURL:  "https://www.yelp.com/biz/analog-coffee-seattle?osq=coffee",
		},
		{
			Name:       "Victrola Coffee Roasters",
			Rating:     "4.2",
			NumReviews: 87,
			DetailURL:  "https://www.yelp.com/biz/victrola-coffee-roasters-seattle",
		},
		{
			Name: "Sponsored Result",
		},
	}
	if diff := cmp.Diff(expected, page.Summaries); diff != "" {
		t.Fatalf("summaries mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, "https://www.yelp.com/search?find_desc=coffee&find_loc=Seattle%2C+WA&start=10", page.NextURL)
}

func TestParseSearchPage_PageBudget(t *testing.T) {
	doc := loadFixture(t, "search.html")
	pageURL := mustURL(t, "https://www.yelp.com/search?find_desc=coffee")

	for _, remaining := range []int{1, 0, -3} {
		page := ParseSearchPage(context.Background(), doc, pageURL, remaining, DefaultSelectors())
		require.Len(t, page.Summaries, 3, "remaining=%d", remaining)
		require.Empty(t, page.NextURL, "remaining=%d", remaining)
	}
}

func TestParseSearchPage_NoNextLink(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><body>
		<div class="toggle__09f24__fZMQ4"><a class="css-19v1rkv">Only</a></div>
	</body></html>`))
	require.NoError(t, err)

	page := ParseSearchPage(context.Background(), doc, mustURL(t, "https://www.yelp.com/search"), 5, DefaultSelectors())
	require.Len(t, page.Summaries, 1)
	require.Equal(t, "Only", page.Summaries[0].Name)
	require.Empty(t, page.Summaries[0].DetailURL)
	require.Empty(t, page.NextURL)
}

func TestParseSearchPage_OwnTextOnly(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><body>
		<div class="toggle__09f24__fZMQ4">
			<a class="css-19v1rkv"><span>Ad</span></a>
			<a class="css-19v1rkv"> Pho Bac <b>Sup Shop</b></a>
			<span class="css-gutk1c"><i>star</i></span>
			<span class="css-chan6m"><b>9</b> (41 reviews)</span>
		</div>
	</body></html>`))
	require.NoError(t, err)

	page := ParseSearchPage(context.Background(), doc, mustURL(t, "https://www.yelp.com/search"), 1, DefaultSelectors())
	require.Len(t, page.Summaries, 1)
	got := page.Summaries[0]
	require.Equal(t, "Pho Bac", got.Name)
	require.Equal(t, "", got.Rating)
	require.Equal(t, 41, got.NumReviews)
}

func TestParseReviewCount(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"123 reviews", 123},
		{"(87 reviews)", 87},
		{"no reviews", 0},
		{"", 0},
		{"1,204 reviews", 1},
	}
	for _, c := range cases {
		require.Equal(t, c.want, parseReviewCount(c.in), "input %q", c.in)
	}
}

func TestParseDetailPage(t *testing.T) {
	doc := loadFixture(t, "detail.html")
	summary := model.BusinessSummary{
		Name:       "Analog Coffee",
		Rating:     "4.5",
		NumReviews: 1204,
		DetailURL:  "https://www.yelp.com/biz/analog-coffee-seattle",
	}

	rec := ParseDetailPage(context.Background(), doc, summary, DefaultSelectors())

	require.Equal(t, summary, rec.Summary())
	require.Equal(t, "www.analogcoffee.com", rec.Website)

	expected := []model.ReviewEntry{
		{ReviewerName: "Ana R.", ReviewerLocation: "Seattle, WA", ReviewDate: "Oct 3, 2026"},
		{ReviewerName: "Ben T.", ReviewerLocation: "Portland, OR", ReviewDate: "Sep 28, 2026"},
		{ReviewerName: "Cleo M.", ReviewerLocation: "", ReviewDate: "Sep 20, 2026"},
		{ReviewerName: "Dev P.", ReviewerLocation: "Tacoma, WA", ReviewDate: "Sep 11, 2026"},
		{ReviewerName: "Eli K.", ReviewerLocation: "Bellevue, WA", ReviewDate: "Aug 30, 2026"},
	}
	if diff := cmp.Diff(expected, rec.Reviews); diff != "" {
		t.Fatalf("reviews mismatch (-want +got):\n%s", diff)
	}
}

func TestParseDetailPage_MissingEverything(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<html><body><h1>Closed</h1></body></html>`))
	require.NoError(t, err)

	summary := model.BusinessSummary{Name: "Gone", DetailURL: "https://www.yelp.com/biz/gone"}
	rec := ParseDetailPage(context.Background(), doc, summary, DefaultSelectors())

	require.Equal(t, "", rec.Website)
	require.NotNil(t, rec.Reviews)
	require.Empty(t, rec.Reviews)
	require.Equal(t, "Gone", rec.Name)
}

func TestWebsiteDomain(t *testing.T) {
	cases := []struct {
		href string
		want string
	}{
		{"https%3A%2F%2Fexample.com%2Fpath%3Fa%3Db", "example.com"},
		{"/biz_redir?url=http%3A%2F%2Fshop.example.org&website_link_type=website", "shop.example.org"},
		{"/biz_redir?url=https%3A%2F%2Fexample.com%26cachebuster%3D1", "example.com"},
		{"/biz_redir?url=https%3A%2F%2Fexample.com%3Fq%3Dhello+world", "example.com"},
		{"ftp://example.com", ""},
		{"%E0%A4%A", ""},
		{"", ""},
	}
	for _, c := range cases {
		require.Equal(t, c.want, WebsiteDomain(c.href), "href %q", c.href)
	}
}

func TestUnquotePlus(t *testing.T) {
	require.Equal(t, "https://example.com/path?a=b", unquotePlus("https%3A%2F%2Fexample.com%2Fpath%3Fa%3Db"))
	require.Equal(t, "a b c", unquotePlus("a+b%20c"))
	require.Equal(t, "100% sure", unquotePlus("100%+sure"))
	require.Equal(t, "bad %zz", unquotePlus("bad+%zz"))
}

func TestSelectorsWithDefaults(t *testing.T) {
	s := Selectors{Listing: "div.card"}.WithDefaults()

	require.Equal(t, "div.card", s.Listing)
	require.Equal(t, DefaultSelectors().NextPage, s.NextPage)
	require.Equal(t, DefaultSelectors().ReviewItem, s.ReviewItem)
}
