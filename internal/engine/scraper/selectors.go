package scraper

import (
	"fmt"

	"dario.cat/mergo"
)

// Selectors are the CSS rules used to pull data out of Yelp markup.
// Yelp ships hashed class names that rotate, so every rule can be
// overridden from the config file.
type Selectors struct {
	Listing        string `json:"listing"`
	ListingName    string `json:"listing_name"`
	ListingRating  string `json:"listing_rating"`
	ListingReviews string `json:"listing_reviews"`
	ListingLink    string `json:"listing_link"`
	NextPage       string `json:"next_page"`

	WebsiteLink      string `json:"website_link"`
	ReviewItem       string `json:"review_item"`
	ReviewerName     string `json:"reviewer_name"`
	ReviewerLocation string `json:"reviewer_location"`
	ReviewDate       string `json:"review_date"`
}

// DefaultSelectors matches the Yelp markup the scraper was written against.
func DefaultSelectors() Selectors {
	return Selectors{
		Listing:        `div[class*="toggle__09f24__fZMQ4"]`,
		ListingName:    `a[class*="css-19v1rkv"]`,
		ListingRating:  `span[class*="css-gutk1c"]`,
		ListingReviews: `span[class*="css-chan6m"]`,
		ListingLink:    `a.css-1jrzyc`,
		NextPage:       `a.next-link`,

		WebsiteLink:      `p[class*="css-1p9ibgf"] a[class*="css-1idmmu3"]`,
		ReviewItem:       `div#reviews li[class*="css-1q2nwpv"]`,
		ReviewerName:     `a[class*="css-19v1rkv"]`,
		ReviewerLocation: `span[class*="css-qgunke"]`,
		ReviewDate:       `span[class*="css-chan6m"]`,
	}
}

// WithDefaults returns s with every empty rule filled from DefaultSelectors.
func (s Selectors) WithDefaults() Selectors {
	out := s
	// mergo only fills zero-valued fields without WithOverride.
	if err := mergo.Merge(&out, DefaultSelectors()); err != nil {
		panic(fmt.Sprintf("filling selector defaults: %v", err))
	}
	return out
}
