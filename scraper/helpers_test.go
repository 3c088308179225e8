package scraper

import (
	"fmt"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/go-catalogue-crawler/config"
)

const testBaseURL = "http://example.test"

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = testBaseURL
	cfg.Parallelism = 4
	cfg.RunOnce = true
	return cfg
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(200, body)
	resp.Header.Set("Content-Type", "text/html; charset=utf-8")
	return httpmock.ResponderFromResponse(resp)
}

func detailURL(id int) string {
	return fmt.Sprintf("%s/catalogue/book-%d_%d/index.html", testBaseURL, id, id)
}

func listingURL(page int) string {
	return fmt.Sprintf("%s/catalogue/page-%d.html", testBaseURL, page)
}

// buildListingPage renders a listing page linking to the given book ids,
// using the relative hrefs the live catalogue serves.
func buildListingPage(ids ...int) string {
	var b strings.Builder
	b.WriteString(`<html><body><section><ol class="row">`)
	for _, id := range ids {
		b.WriteString(`<li><article class="product_pod">`)
		fmt.Fprintf(&b, `<h3><a href="book-%d_%d/index.html" title="Book %d">Book %d</a></h3>`, id, id, id, id)
		fmt.Fprintf(&b, `<p class="price_color">£%d.00</p>`, id)
		b.WriteString(`</article></li>`)
	}
	b.WriteString(`</ol></section></body></html>`)
	return b.String()
}

// buildDetailPage renders a detail page for book id. Without tax the Tax row
// is left out of the specification table.
func buildDetailPage(id int, withTax bool) string {
	var b strings.Builder
	b.WriteString(`<html><body><article class="product_page"><div class="row">`)
	b.WriteString(`<div class="col-sm-6 product_main">`)
	fmt.Fprintf(&b, `<h1>Book %d</h1>`, id)
	fmt.Fprintf(&b, `<p class="price_color">£%d.00</p>`, id)
	b.WriteString(`<p class="instock availability"><i class="icon-ok"></i> In stock (3 available) </p>`)
	b.WriteString(`<p class="star-rating Four"><i class="icon-star"></i></p>`)
	b.WriteString(`</div></div>`)
	b.WriteString(`<div id="product_description" class="sub-header"><h2>Product Description</h2></div>`)
	fmt.Fprintf(&b, `<p>Description of book %d.</p>`, id)
	b.WriteString(`<table class="table table-striped">`)
	fmt.Fprintf(&b, `<tr><th>UPC</th><td>upc-%d</td></tr>`, id)
	b.WriteString(`<tr><th>Product Type</th><td>Books</td></tr>`)
	fmt.Fprintf(&b, `<tr><th>Price (excl. tax)</th><td>£%d.00</td></tr>`, id)
	fmt.Fprintf(&b, `<tr><th>Price (incl. tax)</th><td>£%d.00</td></tr>`, id)
	if withTax {
		b.WriteString(`<tr><th>Tax</th><td>£0.00</td></tr>`)
	}
	b.WriteString(`<tr><th>Number of reviews</th><td>0</td></tr>`)
	b.WriteString(`</table></article></body></html>`)
	return b.String()
}

// catalogue registers listing pages 1..len(pages) followed by a 404, plus a
// detail page for every id. Page len(pages)+2 is registered too so tests can
// assert it is never requested.
func catalogue(t *testing.T, pages [][]int) *httpmock.MockTransport {
	t.Helper()
	transport := httpmock.NewMockTransport()
	for i, ids := range pages {
		transport.RegisterResponder("GET", listingURL(i+1), htmlResponder(buildListingPage(ids...)))
		for _, id := range ids {
			transport.RegisterResponder("GET", detailURL(id), htmlResponder(buildDetailPage(id, true)))
		}
	}
	transport.RegisterResponder("GET", listingURL(len(pages)+1), httpmock.NewStringResponder(404, "not found"))
	transport.RegisterResponder("GET", listingURL(len(pages)+2), htmlResponder(buildListingPage()))
	return transport
}

func idRange(from, to int) []int {
	ids := make([]int, 0, to-from+1)
	for id := from; id <= to; id++ {
		ids = append(ids, id)
	}
	return ids
}
