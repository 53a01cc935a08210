package scraper

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/net/html"

	"github.com/rendis/yelptap/internal/model"
)

var tracer = otel.Tracer("yelptap/engine/scraper")

var digitsRe = regexp.MustCompile(`\d+`)

// SearchPage is everything a search results page yields.
type SearchPage struct {
	Summaries []model.BusinessSummary
	// NextURL is empty when there is no next page or the page budget is spent.
	NextURL string
}

// ParseSearchPage extracts one summary per listing card and, if remainingPages > 1,
// the absolute URL of the next results page. Missing fields come back empty.
func ParseSearchPage(ctx context.Context, doc *goquery.Document, pageURL *url.URL, remainingPages int, sel Selectors) SearchPage {
	_, span := tracer.Start(ctx, "ParseSearchPage")
	defer span.End()

	var page SearchPage
	doc.Find(sel.Listing).Each(func(_ int, card *goquery.Selection) {
		href, _ := card.Find(sel.ListingLink).First().Attr("href")
		page.Summaries = append(page.Summaries, model.BusinessSummary{
			Name:       firstText(card, sel.ListingName),
			Rating:     firstText(card, sel.ListingRating),
			NumReviews: parseReviewCount(firstText(card, sel.ListingReviews)),
			DetailURL:  resolveURL(pageURL, href),
		})
	})

	if remainingPages > 1 {
		if href, ok := doc.Find(sel.NextPage).First().Attr("href"); ok {
			page.NextURL = resolveURL(pageURL, href)
		}
	}

	span.SetAttributes(
		attribute.Int("listings", len(page.Summaries)),
		attribute.Bool("has_next", page.NextURL != ""),
	)
	return page
}

// parseReviewCount returns the first run of digits in s, or 0.
// "1,204 reviews" therefore yields 1.
func parseReviewCount(s string) int {
	m := digitsRe.FindString(s)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

// firstText returns the first text node that is a direct child of any
// element matching selector, trimmed. Text inside nested tags is ignored.
func firstText(s *goquery.Selection, selector string) string {
	own := s.Find(selector).Contents().FilterFunction(func(_ int, c *goquery.Selection) bool {
		return len(c.Nodes) > 0 && c.Nodes[0].Type == html.TextNode
	})
	return strings.TrimSpace(own.First().Text())
}

// resolveURL makes href absolute against base. Empty or unparsable hrefs resolve to "".
func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func parseHTML(body []byte) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}
