package parser

import (
	"errors"
	"fmt"
)

// ErrStructureMismatch marks a detail page missing a required element.
var ErrStructureMismatch = errors.New("structure mismatch")

// ExtractionError reports which required field could not be located.
type ExtractionError struct {
	Field    string
	Selector string
	Err      error
}

func (e ExtractionError) Error() string {
	if e.Err != nil && !errors.Is(e.Err, ErrStructureMismatch) {
		return fmt.Errorf("extract %s: %w", e.Field, e.Err).Error()
	}
	return fmt.Sprintf("extract %s: %v: %q not found", e.Field, ErrStructureMismatch, e.Selector)
}

func (e ExtractionError) Unwrap() error {
	if e.Err == nil {
		return ErrStructureMismatch
	}
	return e.Err
}

func missing(field, selector string) error {
	return ExtractionError{Field: field, Selector: selector, Err: ErrStructureMismatch}
}
