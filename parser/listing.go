package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-catalogue-crawler/models"
)

const selectorListingLink = "article.product_pod h3 a"

// ParseListing returns the detail links found on one listing page, resolved
// against root. Anchors with an empty or unparsable href are dropped and
// counted in skipped.
func ParseListing(body []byte, root *url.URL) (links []models.PageLink, skipped int, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("parse listing: %w", err)
	}

	doc.Find(selectorListingLink).Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		// Every leading "../" is dropped, not only a fixed three, so any
		// relative depth stays under the catalogue root.
		for strings.HasPrefix(href, "../") {
			href = strings.TrimPrefix(href, "../")
		}
		if href == "" {
			skipped++
			return
		}
		ref, perr := url.Parse(href)
		if perr != nil {
			skipped++
			return
		}
		links = append(links, models.PageLink(root.ResolveReference(ref).String()))
	})
	return links, skipped, nil
}
