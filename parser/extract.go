package parser

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-catalogue-crawler/models"
)

const (
	selectorProductPanel = "div.col-sm-6.product_main"
	selectorPrice        = "p.price_color"
	selectorRating       = "p.star-rating"
	selectorAvailability = "p.instock.availability"
	selectorDescription  = "#product_description"
	selectorSpecTable    = "table.table.table-striped"
)

// Specification table headers, matched exactly.
const (
	KeyUPC          = "UPC"
	KeyProductType  = "Product Type"
	KeyPriceExclTax = "Price (excl. tax)"
	KeyPriceInclTax = "Price (incl. tax)"
	KeyTax          = "Tax"
	KeyNumReviews   = "Number of reviews"
)

// Extract builds a CatalogueItem from the HTML of a single detail page.
// A missing title, price, availability or specification table is reported as
// an ExtractionError; every other gap yields a nil field or the default
// description.
func Extract(body []byte) (*models.CatalogueItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, ExtractionError{Field: "document", Err: err}
	}

	title := strings.TrimSpace(doc.Find(selectorProductPanel).First().Find("h1").First().Text())
	if title == "" {
		return nil, missing("title", selectorProductPanel+" h1")
	}

	price := doc.Find(selectorPrice).First()
	if price.Length() == 0 {
		return nil, missing("price", selectorPrice)
	}

	availability := doc.Find(selectorAvailability).First()
	if availability.Length() == 0 {
		return nil, missing("availability", selectorAvailability)
	}

	table := doc.Find(selectorSpecTable).First()
	if table.Length() == 0 {
		return nil, missing("specification_table", selectorSpecTable)
	}
	rows := specTable(table)

	return &models.CatalogueItem{
		Title:        title,
		Price:        strings.TrimSpace(price.Text()),
		Rating:       RatingToNumeric(ratingMarker(doc.Find(selectorRating).First())),
		Availability: NormalizeAvailability(availability.Text()),
		Description:  description(doc),
		UPC:          lookup(rows, KeyUPC),
		ProductType:  lookup(rows, KeyProductType),
		PriceExclTax: lookup(rows, KeyPriceExclTax),
		PriceInclTax: lookup(rows, KeyPriceInclTax),
		Tax:          lookup(rows, KeyTax),
		NumReviews:   lookup(rows, KeyNumReviews),
	}, nil
}

// ratingMarker returns the first class next to "star-rating", e.g. "Three".
func ratingMarker(sel *goquery.Selection) string {
	class, ok := sel.Attr("class")
	if !ok {
		return ""
	}
	for _, c := range strings.Fields(class) {
		if c != "star-rating" {
			return c
		}
	}
	return ""
}

func description(doc *goquery.Document) string {
	anchor := doc.Find(selectorDescription).First()
	if anchor.Length() == 0 {
		return models.DefaultDescription
	}
	return strings.TrimSpace(anchor.NextAllFiltered("p").First().Text())
}

func specTable(table *goquery.Selection) map[string]string {
	out := make(map[string]string)
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		th := row.Find("th").First()
		td := row.Find("td").First()
		if th.Length() == 0 || td.Length() == 0 {
			return
		}
		out[strings.TrimSpace(th.Text())] = strings.TrimSpace(td.Text())
	})
	return out
}

func lookup(rows map[string]string, key string) *string {
	v, ok := rows[key]
	if !ok {
		return nil
	}
	return &v
}
