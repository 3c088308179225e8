package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-catalogue-crawler/config"
	"github.com/aluiziolira/go-catalogue-crawler/models"
	"github.com/aluiziolira/go-catalogue-crawler/parser"
)

// State is a step of the pagination walk.
type State int

// Walk states. Done is the only terminal state.
const (
	Requesting State = iota
	Extracting
	Dispatching
	Done
)

func (s State) String() string {
	switch s {
	case Requesting:
		return "requesting"
	case Extracting:
		return "extracting"
	case Dispatching:
		return "dispatching"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ItemSink receives the items of each completed batch.
type ItemSink interface {
	Add(items ...*models.CatalogueItem) error
}

// WalkResult summarises a walk.
type WalkResult struct {
	Pages        int
	Items        int
	SkippedLinks int
	Failures     []models.Failure
	Truncated    bool
}

// Walker requests listing pages 1, 2, 3, ... until the first 404, feeding
// each page's detail links through the pool before moving on.
type Walker struct {
	cfg     *config.Config
	pages   PageFetcher
	pool    *Pool
	sink    ItemSink
	root    *url.URL
	seen    *lru.Cache[models.PageLink, struct{}]
	metrics *Metrics
	logger  *slog.Logger
}

// NewWalker wires a walker for one run.
func NewWalker(cfg *config.Config, pages PageFetcher, pool *Pool, sink ItemSink, metrics *Metrics, logger *slog.Logger) (*Walker, error) {
	root, err := cfg.CatalogueRoot()
	if err != nil {
		return nil, err
	}
	seen, err := lru.New[models.PageLink, struct{}](cfg.DedupeMaxSize)
	if err != nil {
		return nil, fmt.Errorf("dispatched link cache: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{
		cfg:     cfg,
		pages:   pages,
		pool:    pool,
		sink:    sink,
		root:    root,
		seen:    seen,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// Walk drives the state machine from Requesting(1) to Done. It returns a
// *ListingError when a listing page cannot be fetched or answers with an
// unexpected status; item failures never end the walk.
func (w *Walker) Walk(ctx context.Context) (WalkResult, error) {
	var (
		res   WalkResult
		state = Requesting
		page  = 1
		body  []byte
		links []models.PageLink
	)

	for state != Done {
		switch state {
		case Requesting:
			if w.cfg.MaxPages > 0 && page > w.cfg.MaxPages {
				w.logger.Warn("page limit reached before catalogue end", slog.Int("max_pages", w.cfg.MaxPages))
				res.Truncated = true
				state = Done
				continue
			}
			if err := ctx.Err(); err != nil {
				return res, fmt.Errorf("walk stopped before page %d: %w", page, err)
			}

			target := w.cfg.ListingURL(page)
			resp, err := w.pages.FetchPage(ctx, target)
			if err != nil {
				lerr := &ListingError{Page: page, URL: target, Err: classifyNetworkError(err)}
				w.metrics.IncError(errorTypeLabel(lerr))
				return res, lerr
			}
			switch {
			case resp.StatusCode == http.StatusNotFound:
				w.logger.Debug("catalogue exhausted", slog.Int("page", page))
				state = Done
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				body = resp.Body
				state = Extracting
			default:
				lerr := &ListingError{Page: page, URL: target, StatusCode: resp.StatusCode}
				w.metrics.IncError(errorTypeLabel(lerr))
				return res, lerr
			}

		case Extracting:
			found, skipped, err := parser.ParseListing(body, w.root)
			if err != nil {
				return res, &ListingError{Page: page, URL: w.cfg.ListingURL(page), Err: err}
			}
			links = w.unseen(found)
			skipped += len(found) - len(links)
			res.SkippedLinks += skipped
			res.Pages++
			w.metrics.IncPages()
			w.metrics.AddSkipped(skipped)
			if len(links) == 0 {
				w.logger.Warn("listing page has no detail links", slog.Int("page", page))
			}
			state = Dispatching

		case Dispatching:
			batch := w.pool.RunBatch(ctx, links)
			if err := w.sink.Add(batch.Items...); err != nil {
				return res, fmt.Errorf("aggregate page %d: %w", page, err)
			}
			res.Items += len(batch.Items)
			w.metrics.AddItems(len(batch.Items))
			for _, f := range batch.Failures {
				w.metrics.IncError(errorTypeLabel(f.Err))
				w.logger.Warn("detail page failed",
					slog.String("url", f.Link.String()),
					slog.String("category", errorTypeLabel(f.Err)),
					slog.Any("error", f.Err),
				)
			}
			res.Failures = append(res.Failures, batch.Failures...)
			w.logger.Info("listing page done",
				slog.Int("page", page),
				slog.Int("links", len(links)),
				slog.Int("items", len(batch.Items)),
				slog.Int("failures", len(batch.Failures)),
			)
			body, links = nil, nil
			page++
			state = Requesting
		}
	}

	return res, nil
}

// unseen drops links already dispatched during this run.
func (w *Walker) unseen(found []models.PageLink) []models.PageLink {
	out := make([]models.PageLink, 0, len(found))
	for _, link := range found {
		if ok, _ := w.seen.ContainsOrAdd(link, struct{}{}); ok {
			continue
		}
		out = append(out, link)
	}
	return out
}
