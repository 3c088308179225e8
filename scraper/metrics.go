package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the crawler.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	ItemsScrapedTotal prometheus.Counter
	PagesTotal        prometheus.Counter
	SkippedLinksTotal prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
	InFlight          prometheus.Gauge
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogue_requests_total",
			Help: "Total HTTP requests issued by the crawler.",
		},
		[]string{"status_class"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalogue_request_duration_seconds",
			Help:    "HTTP request latency for crawler requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	itemsScraped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalogue_items_extracted_total",
			Help: "Total number of items extracted from detail pages.",
		},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalogue_listing_pages_total",
			Help: "Total number of listing pages walked.",
		},
	)
	skipped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalogue_skipped_links_total",
			Help: "Detail links dropped as empty or already dispatched in the run.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogue_errors_total",
			Help: "Total number of crawler errors by type.",
		},
		[]string{"error_type"},
	)
	inFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalogue_detail_fetches_in_flight",
			Help: "Detail fetches currently occupying a pool slot.",
		},
	)

	registry.MustRegister(requests, requestDuration, itemsScraped, pages, skipped, errorsTotal, inFlight)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		ItemsScrapedTotal: itemsScraped,
		PagesTotal:        pages,
		SkippedLinksTotal: skipped,
		ErrorsTotal:       errorsTotal,
		InFlight:          inFlight,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(statusClass string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(statusClass).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// AddItems increments the items counter.
func (m *Metrics) AddItems(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsScrapedTotal.Add(float64(n))
}

// IncPages increments the listing pages counter.
func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

// AddSkipped increments the skipped links counter.
func (m *Metrics) AddSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SkippedLinksTotal.Add(float64(n))
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) fetchStarted() {
	if m == nil {
		return
	}
	m.InFlight.Inc()
}

func (m *Metrics) fetchDone() {
	if m == nil {
		return
	}
	m.InFlight.Dec()
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "error"
	}
}
