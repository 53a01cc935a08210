package model

import (
	"net/url"
	"strings"
)

// SearchQuery is the user-supplied search: what to look for and where.
type SearchQuery struct {
	Category string `json:"category"`
	Location string `json:"location"`
}

// URL builds the initial search request URL against base.
func (q SearchQuery) URL(base string) string {
	params := url.Values{}
	params.Set("find_desc", q.Category)
	params.Set("find_loc", q.Location)
	return strings.TrimRight(base, "/") + "/search?" + params.Encode()
}

// BusinessSummary is what a search results card tells us about a business.
// It is carried unchanged into the detail page request.
type BusinessSummary struct {
	Name       string `json:"name"`
	Rating     string `json:"rating"`
	NumReviews int    `json:"num_reviews"`
	DetailURL  string `json:"yelp_url"`
}

// ReviewEntry is one review header from a business detail page.
type ReviewEntry struct {
	ReviewerName     string `json:"reviewer_name"`
	ReviewerLocation string `json:"reviewer_location"`
	ReviewDate       string `json:"review_date"`
}

// BusinessRecord is the final emitted unit, one per detail page visited.
type BusinessRecord struct {
	Name       string        `json:"name"`
	Rating     string        `json:"rating"`
	NumReviews int           `json:"num_reviews"`
	DetailURL  string        `json:"yelp_url"`
	Website    string        `json:"website"`
	Reviews    []ReviewEntry `json:"reviews"`
}

// NewBusinessRecord merges the carried summary with what the detail page yielded.
func NewBusinessRecord(s BusinessSummary, website string, reviews []ReviewEntry) BusinessRecord {
	if reviews == nil {
		reviews = []ReviewEntry{}
	}
	return BusinessRecord{
		Name:       s.Name,
		Rating:     s.Rating,
		NumReviews: s.NumReviews,
		DetailURL:  s.DetailURL,
		Website:    website,
		Reviews:    reviews,
	}
}

// Summary returns the search-stage view of the record.
func (r BusinessRecord) Summary() BusinessSummary {
	return BusinessSummary{
		Name:       r.Name,
		Rating:     r.Rating,
		NumReviews: r.NumReviews,
		DetailURL:  r.DetailURL,
	}
}

// SearchParams holds all configuration for a scraping session.
// It is built once at startup and treated as read-only afterwards.
type SearchParams struct {
	Query SearchQuery

	BaseURL           string
	MaxPages          int     // search result pages to walk (default 1)
	Concurrency       int     // fetch workers
	RequestsPerSecond float64 // 0 = unlimited
	ProxyURL          string  // HTTP/SOCKS5 proxy URL (optional)

	// AllowedDomains limits the crawl to these hosts and their subdomains.
	// Empty means the registrable part of BaseURL's host ("yelp.com").
	AllowedDomains []string

	Output string // JSON output file, overwritten on each run
	DBPath string // optional SQLite store
	Debug  bool   // dump raw pages next to the output
}

// AllowsURL reports whether rawURL points at one of the allowed domains.
// Call Normalize first.
func (p SearchParams) AllowsURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	for _, d := range p.AllowedDomains {
		d = strings.ToLower(strings.TrimPrefix(d, "."))
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func baseDomain(base string) string {
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// Normalize fills zero values with their defaults.
func (p *SearchParams) Normalize() {
	if p.BaseURL == "" {
		p.BaseURL = DefaultBaseURL
	}
	if len(p.AllowedDomains) == 0 {
		if d := baseDomain(p.BaseURL); d != "" {
			p.AllowedDomains = []string{d}
		}
	}
	if p.MaxPages <= 0 {
		p.MaxPages = 1
	}
	if p.Concurrency <= 0 {
		p.Concurrency = DefaultConcurrency
	}
	if p.Output == "" {
		p.Output = DefaultOutput
	}
}

const (
	DefaultBaseURL     = "https://www.yelp.com"
	DefaultOutput      = "yelp_data.json"
	DefaultConcurrency = 8
)
