package scraper

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/go-catalogue-crawler/models"
)

// BatchResult is the outcome of one listing page's detail fetches.
type BatchResult struct {
	Items    []*models.CatalogueItem
	Failures []models.Failure
}

type fetchResult struct {
	link models.PageLink
	item *models.CatalogueItem
	err  error
}

// Pool runs detail fetches with at most limit in flight.
type Pool struct {
	fetcher ItemFetcher
	limit   int
	metrics *Metrics
}

// NewPool returns a pool over fetcher. A non-positive limit means one slot.
func NewPool(fetcher ItemFetcher, limit int, metrics *Metrics) *Pool {
	if limit <= 0 {
		limit = 1
	}
	return &Pool{fetcher: fetcher, limit: limit, metrics: metrics}
}

// RunBatch attempts every link exactly once and returns when all of them are
// accounted for. Results are collected in completion order; a failing or
// slow fetch never holds back the others. Failures are returned, never
// raised.
func (p *Pool) RunBatch(ctx context.Context, links []models.PageLink) BatchResult {
	var out BatchResult
	if len(links) == 0 {
		return out
	}

	results := make(chan fetchResult, p.limit)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for r := range results {
			if r.err != nil {
				out.Failures = append(out.Failures, models.Failure{Link: r.link, Err: r.err})
				continue
			}
			out.Items = append(out.Items, r.item)
		}
	}()

	// A plain Group: one item's failure must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(p.limit)
	for _, link := range links {
		g.Go(func() error {
			results <- p.fetchOne(ctx, link)
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	<-collected

	return out
}

func (p *Pool) fetchOne(ctx context.Context, link models.PageLink) (res fetchResult) {
	res.link = link
	p.metrics.fetchStarted()
	defer p.metrics.fetchDone()
	defer func() {
		if r := recover(); r != nil {
			res.item = nil
			res.err = fmt.Errorf("fetch %s: panic: %v", link, r)
		}
	}()

	item, err := p.fetcher.FetchAndExtract(ctx, link)
	if err == nil && item == nil {
		err = fmt.Errorf("fetch %s: no item returned", link)
	}
	res.item = item
	res.err = err
	return res
}
