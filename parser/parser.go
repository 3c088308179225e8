// Package parser turns catalogue HTML into records and validates them.
package parser

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/go-catalogue-crawler/models"
)

var ratings = map[string]int{
	"One":   1,
	"Two":   2,
	"Three": 3,
	"Four":  4,
	"Five":  5,
}

// ValidateItem ensures the required fields of an item are present.
func ValidateItem(item *models.CatalogueItem) error {
	if item == nil {
		return fmt.Errorf("item is nil")
	}
	if strings.TrimSpace(item.Title) == "" {
		return fmt.Errorf("item missing title")
	}
	if item.Rating != nil && (*item.Rating < 1 || *item.Rating > 5) {
		return fmt.Errorf("item rating %d out of range for %s", *item.Rating, item.Title)
	}
	return nil
}

// NormalizeAvailability trims spacing from the availability text.
func NormalizeAvailability(text string) string {
	return strings.TrimSpace(text)
}

// RatingToNumeric converts a star-rating class to 1..5, or nil when the
// marker is not one of One..Five.
func RatingToNumeric(marker string) *int {
	v, ok := ratings[marker]
	if !ok {
		return nil
	}
	return &v
}
