package scraper

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rendis/yelptap/internal/model"
)

const maxReviews = 5

var domainRe = regexp.MustCompile(`https?://([^/?&]+)`)

// ParseDetailPage builds the final record for a business from its detail page
// and the summary carried over from the search stage.
func ParseDetailPage(ctx context.Context, doc *goquery.Document, summary model.BusinessSummary, sel Selectors) model.BusinessRecord {
	_, span := tracer.Start(ctx, "ParseDetailPage")
	defer span.End()

	href, _ := doc.Find(sel.WebsiteLink).First().Attr("href")
	website := WebsiteDomain(href)

	reviews := make([]model.ReviewEntry, 0, maxReviews)
	doc.Find(sel.ReviewItem).EachWithBreak(func(i int, item *goquery.Selection) bool {
		if i >= maxReviews {
			return false
		}
		reviews = append(reviews, model.ReviewEntry{
			ReviewerName:     firstText(item, sel.ReviewerName),
			ReviewerLocation: firstText(item, sel.ReviewerLocation),
			ReviewDate:       firstText(item, sel.ReviewDate),
		})
		return true
	})

	span.SetAttributes(
		attribute.String("website", website),
		attribute.Int("reviews", len(reviews)),
	)
	return model.NewBusinessRecord(summary, website, reviews)
}

// WebsiteDomain decodes a (usually redirect-wrapped) website href and returns
// the host of the first http(s) URL inside it, or "" if there is none.
func WebsiteDomain(href string) string {
	if href == "" {
		return ""
	}
	decoded := unquotePlus(href)
	m := domainRe.FindStringSubmatch(decoded)
	if m == nil {
		return ""
	}
	domain, _, _ := strings.Cut(m[1], "&")
	return domain
}

// unquotePlus percent-decodes s with '+' as space. Malformed escapes are
// kept verbatim instead of failing the whole string.
func unquotePlus(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '+':
			b.WriteByte(' ')
		case c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
