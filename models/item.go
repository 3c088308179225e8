// Package models defines data structures for the crawler.
package models

import "time"

// DefaultDescription is used when a detail page carries no description block.
const DefaultDescription = "No description"

// CatalogueItem is one record extracted from a detail page. Values are built
// once by the parser and never mutated afterwards.
type CatalogueItem struct {
	Title        string  `json:"title"`
	Price        string  `json:"price"`
	Rating       *int    `json:"rating"`
	Availability string  `json:"availability"`
	Description  string  `json:"description"`
	UPC          *string `json:"upc"`
	ProductType  *string `json:"product_type"`
	PriceExclTax *string `json:"price_excl_tax"`
	PriceInclTax *string `json:"price_incl_tax"`
	Tax          *string `json:"tax"`
	NumReviews   *string `json:"num_reviews"`

	// URL is the detail page the item came from. It is not persisted.
	URL string `json:"-"`
}

// PageLink is an absolute URL to one detail page.
type PageLink string

func (l PageLink) String() string {
	return string(l)
}

// Collection holds every item gathered during a run. Order carries no meaning.
type Collection []*CatalogueItem

// Failure records a detail page that could not be turned into an item.
type Failure struct {
	Link PageLink
	Err  error
}

// CrawlReport holds the overall result of one run.
type CrawlReport struct {
	RunID          string
	Items          Collection
	StartTime      time.Time
	EndTime        time.Time
	Pages          int
	Requests       int
	Failures       []Failure
	FailuresByKind map[string]int
	SkippedLinks   int
	// Truncated is set when the walk stopped at the page limit rather than
	// at the end of the catalogue.
	Truncated bool
}

// ItemCount returns the number of collected items.
func (r *CrawlReport) ItemCount() int {
	if r == nil {
		return 0
	}
	return len(r.Items)
}

// Duration returns the wall time of the run.
func (r *CrawlReport) Duration() time.Duration {
	if r == nil || r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}
