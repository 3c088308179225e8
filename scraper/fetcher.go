package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-catalogue-crawler/config"
	"github.com/aluiziolira/go-catalogue-crawler/models"
	"github.com/aluiziolira/go-catalogue-crawler/parser"
)

// Page is a fetched HTTP response body, decoded as UTF-8.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

// PageFetcher performs a single GET and reports the status and body.
type PageFetcher interface {
	FetchPage(ctx context.Context, target string) (*Page, error)
}

// ItemFetcher turns one detail link into an item or a *FetchError.
type ItemFetcher interface {
	FetchAndExtract(ctx context.Context, link models.PageLink) (*models.CatalogueItem, error)
}

// Fetcher issues requests through a colly collector. Each call runs on a
// synchronous clone so callers may invoke it from many goroutines.
type Fetcher struct {
	collector *colly.Collector
	metrics   *Metrics
	logger    *slog.Logger

	requestCount int64
}

// NewFetcher builds a fetcher configured from cfg.
func NewFetcher(cfg *config.Config, metrics *Metrics, logger *slog.Logger) (*Fetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}
	if logger == nil {
		logger = slog.Default()
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   cfg.Parallelism,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	return &Fetcher{
		collector: collector,
		metrics:   metrics,
		logger:    logger,
	}, nil
}

// WithTransport swaps the HTTP transport used by every subsequent request.
func (f *Fetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// RequestCount returns the number of requests issued so far.
func (f *Fetcher) RequestCount() int {
	return int(atomic.LoadInt64(&f.requestCount))
}

// FetchPage performs one GET. Any HTTP status is returned as a Page; only
// transport failures produce an error. The context is checked before the
// request starts; in-flight requests are bounded by the configured timeout.
func (f *Fetcher) FetchPage(ctx context.Context, target string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		page  *Page
		start time.Time
	)
	c := f.collector.Clone()
	c.OnRequest(func(r *colly.Request) {
		r.ResponseCharacterEncoding = "utf-8"
		start = time.Now()
		current := atomic.AddInt64(&f.requestCount, 1)
		if current%50 == 0 {
			f.logger.Debug("crawler request progress",
				slog.Int64("requests", current),
				slog.String("url", r.URL.String()),
			)
		}
	})
	c.OnResponse(func(r *colly.Response) {
		page = &Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       r.Body,
		}
	})

	err := c.Visit(target)
	if !start.IsZero() {
		f.metrics.ObserveDuration(time.Since(start))
	}
	if err != nil {
		f.metrics.IncRequest(statusClass(0))
		return nil, err
	}
	if page == nil {
		f.metrics.IncRequest(statusClass(0))
		return nil, fmt.Errorf("no response for %s", target)
	}
	f.metrics.IncRequest(statusClass(page.StatusCode))
	return page, nil
}

// FetchAndExtract fetches one detail page and extracts its item. Every
// failure is returned as a *FetchError; nothing is retried.
func (f *Fetcher) FetchAndExtract(ctx context.Context, link models.PageLink) (*models.CatalogueItem, error) {
	target := link.String()
	page, err := f.FetchPage(ctx, target)
	if err != nil {
		return nil, &FetchError{Kind: NetworkFailure, URL: target, Err: classifyNetworkError(err)}
	}
	if page.StatusCode < 200 || page.StatusCode >= 300 {
		return nil, &FetchError{Kind: BadStatus, URL: target, StatusCode: page.StatusCode}
	}

	item, err := parser.Extract(page.Body)
	if err != nil {
		return nil, &FetchError{Kind: ParseFailure, URL: target, Err: err}
	}
	item.URL = target
	return item, nil
}
