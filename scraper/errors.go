package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/aluiziolira/go-catalogue-crawler/parser"
)

// ErrUnexpectedListingStatus is wrapped by ListingError when a listing page
// answers with a status other than 2xx or 404.
var ErrUnexpectedListingStatus = errors.New("unexpected listing status")

// FetchErrorKind classifies why a detail page produced no item.
type FetchErrorKind string

// Detail page failure kinds.
const (
	BadStatus      FetchErrorKind = "bad_status"
	NetworkFailure FetchErrorKind = "network_failure"
	ParseFailure   FetchErrorKind = "parse_failure"
)

// FetchError is the per-item failure returned by the detail fetcher.
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case BadStatus:
		return fmt.Sprintf("fetch %s: %s: http status %d", e.URL, e.Kind, e.StatusCode)
	default:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ListingError aborts a run: the listing page could not be fetched or
// answered with a status that is neither success nor the 404 terminator.
type ListingError struct {
	Page       int
	URL        string
	StatusCode int
	Err        error
}

func (e *ListingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("listing page %d (%s): %v", e.Page, e.URL, e.Err)
	}
	return fmt.Sprintf("listing page %d (%s): %v %d", e.Page, e.URL, ErrUnexpectedListingStatus, e.StatusCode)
}

func (e *ListingError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUnexpectedListingStatus
}

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// classifyNetworkError wraps transport errors in ErrTimeout or ErrConnection
// where the cause is recognisable.
func classifyNetworkError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrConnection{Err: err}
	}
	return err
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var listing *ListingError
	if errors.As(err, &listing) {
		return "listing"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		switch fetchErr.Kind {
		case BadStatus:
			return statusLabel(fetchErr.StatusCode)
		case ParseFailure:
			if errors.Is(err, parser.ErrStructureMismatch) {
				return "structure_mismatch"
			}
			return "parse"
		case NetworkFailure:
			return "network"
		}
	}
	return "other"
}

func statusLabel(code int) string {
	switch code {
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusTooManyRequests:
		return "rate_limited"
	}
	if code >= 500 {
		return "server_error"
	}
	return "bad_status"
}
