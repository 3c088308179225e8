// Package scraper walks the catalogue listing pages and fetches every detail
// page with bounded concurrency.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/aluiziolira/go-catalogue-crawler/config"
	"github.com/aluiziolira/go-catalogue-crawler/models"
	"github.com/aluiziolira/go-catalogue-crawler/pipeline"
)

// Crawler runs complete crawls. One Crawler may run many crawls in sequence
// but not concurrently.
type Crawler struct {
	cfg     *config.Config
	fetcher *Fetcher
	logger  *slog.Logger

	Metrics *Metrics
}

// NewCrawler validates cfg and prepares the shared HTTP fetcher.
func NewCrawler(cfg *config.Config, logger *slog.Logger) (*Crawler, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	metrics := NewMetrics()
	fetcher, err := NewFetcher(cfg, metrics, logger)
	if err != nil {
		return nil, err
	}

	return &Crawler{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  logger,
		Metrics: metrics,
	}, nil
}

// WithTransport swaps the HTTP transport, mainly for tests.
func (c *Crawler) WithTransport(rt http.RoundTripper) {
	c.fetcher.WithTransport(rt)
}

// RunCrawl walks the whole catalogue once and returns the collected items.
// Item-level failures are reported in the CrawlReport and never fail the
// run. A listing failure or cancellation returns the partial report together
// with the error; callers should not persist it.
func (c *Crawler) RunCrawl(ctx context.Context) (*models.CrawlReport, error) {
	runID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}

	report := &models.CrawlReport{
		RunID:          runID.String(),
		StartTime:      time.Now(),
		FailuresByKind: make(map[string]int),
	}
	logger := c.logger.With(slog.String("run_id", report.RunID))
	requestsBefore := c.fetcher.RequestCount()

	agg := pipeline.NewAggregator(c.cfg.BufferSize, logger)
	agg.Start()
	if c.cfg.Verbose {
		agg.StartMetricsReporting(5 * time.Second)
	}

	pool := NewPool(c.fetcher, c.cfg.Parallelism, c.Metrics)
	walker, err := NewWalker(c.cfg, c.fetcher, pool, agg, c.Metrics, logger)
	if err != nil {
		_, _ = agg.Finalize()
		return nil, err
	}

	logger.Info("crawl started",
		slog.String("base_url", c.cfg.BaseURL),
		slog.Int("parallelism", c.cfg.Parallelism),
	)

	res, walkErr := walker.Walk(ctx)
	items, aggErr := agg.Finalize()

	report.Items = items
	report.EndTime = time.Now()
	report.Pages = res.Pages
	report.SkippedLinks = res.SkippedLinks
	report.Truncated = res.Truncated
	report.Failures = res.Failures
	report.Requests = c.fetcher.RequestCount() - requestsBefore
	for _, f := range res.Failures {
		report.FailuresByKind[errorTypeLabel(f.Err)]++
	}

	if walkErr != nil {
		logger.Error("crawl aborted",
			slog.Int("pages", report.Pages),
			slog.Int("items", report.ItemCount()),
			slog.Any("error", walkErr),
		)
		return report, walkErr
	}
	if aggErr != nil {
		return report, fmt.Errorf("aggregate items: %w", aggErr)
	}

	logger.Info("crawl finished",
		slog.Int("pages", report.Pages),
		slog.Int("items", report.ItemCount()),
		slog.Int("failures", len(report.Failures)),
		slog.Int("requests", report.Requests),
		slog.Bool("truncated", report.Truncated),
		slog.Duration("duration", report.Duration()),
	)
	return report, nil
}
