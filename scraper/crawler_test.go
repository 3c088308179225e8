package scraper

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-catalogue-crawler/config"
)

func newTestCrawler(t *testing.T, cfg *config.Config, transport http.RoundTripper) *Crawler {
	t.Helper()
	c, err := NewCrawler(cfg, nil)
	require.NoError(t, err)
	c.WithTransport(transport)
	return c
}

func TestRunCrawlStopsAtFirst404(t *testing.T) {
	transport := catalogue(t, [][]int{idRange(1, 20), idRange(21, 40), idRange(41, 60)})
	c := newTestCrawler(t, testConfig(), transport)

	report, err := c.RunCrawl(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 60, report.ItemCount())
	assert.Equal(t, 3, report.Pages)
	assert.Empty(t, report.Failures)
	assert.Equal(t, 64, report.Requests, "4 listing pages plus 60 detail pages")
	assert.False(t, report.Truncated)

	calls := transport.GetCallCountInfo()
	assert.Equal(t, 1, calls["GET "+listingURL(4)], "terminating 404 requested once")
	assert.Zero(t, calls["GET "+listingURL(5)], "nothing requested past the 404")
	for id := 1; id <= 60; id++ {
		assert.Equal(t, 1, calls["GET "+detailURL(id)], "detail %d", id)
	}

	_, err = uuid.Parse(report.RunID)
	assert.NoError(t, err)
	assert.False(t, report.EndTime.Before(report.StartTime))
}

func TestRunCrawlCountIsSumOverPages(t *testing.T) {
	pages := [][]int{idRange(1, 5), idRange(6, 6), {}, idRange(7, 13)}
	transport := catalogue(t, pages)
	c := newTestCrawler(t, testConfig(), transport)

	report, err := c.RunCrawl(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 13, report.ItemCount())
	assert.Equal(t, 4, report.Pages, "empty page does not end the walk")
}

func TestRunCrawlFirstPageMissing(t *testing.T) {
	transport := catalogue(t, nil)
	c := newTestCrawler(t, testConfig(), transport)

	report, err := c.RunCrawl(context.Background())
	require.NoError(t, err)
	require.NotNil(t, report.Items)
	assert.Zero(t, report.ItemCount())
	assert.Zero(t, report.Pages)
}

func TestRunCrawlIsolatesItemFailures(t *testing.T) {
	transport := catalogue(t, [][]int{idRange(1, 10)})
	transport.RegisterResponder("GET", detailURL(3), httpmock.NewStringResponder(500, "boom"))
	transport.RegisterResponder("GET", detailURL(6), htmlResponder("<html><body>under maintenance</body></html>"))
	transport.RegisterResponder("GET", detailURL(9), httpmock.NewErrorResponder(errors.New("connection reset by peer")))

	c := newTestCrawler(t, testConfig(), transport)
	report, err := c.RunCrawl(context.Background())
	require.NoError(t, err, "item failures never fail the run")

	assert.Equal(t, 7, report.ItemCount())
	assert.Len(t, report.Failures, 3)
	assert.Equal(t, 1, report.FailuresByKind["server_error"])
	assert.Equal(t, 1, report.FailuresByKind["structure_mismatch"])
	assert.Equal(t, 1, report.FailuresByKind["network"])
	for _, item := range report.Items {
		assert.NotEqual(t, detailURL(3), item.URL)
		assert.NotEqual(t, detailURL(6), item.URL)
		assert.NotEqual(t, detailURL(9), item.URL)
	}
}

func TestRunCrawlAbortsOnUnexpectedListingStatus(t *testing.T) {
	transport := catalogue(t, [][]int{idRange(1, 4), idRange(5, 8)})
	transport.RegisterResponder("GET", listingURL(2), httpmock.NewStringResponder(503, "unavailable"))

	c := newTestCrawler(t, testConfig(), transport)
	report, err := c.RunCrawl(context.Background())
	require.Error(t, err)

	var listing *ListingError
	require.True(t, errors.As(err, &listing))
	assert.Equal(t, 2, listing.Page)
	assert.Equal(t, http.StatusServiceUnavailable, listing.StatusCode)
	assert.ErrorIs(t, err, ErrUnexpectedListingStatus)

	require.NotNil(t, report)
	assert.Equal(t, 4, report.ItemCount(), "page one was collected before the abort")
	assert.Zero(t, transport.GetCallCountInfo()["GET "+listingURL(3)])
}

func TestRunCrawlAbortsOnListingTransportFailure(t *testing.T) {
	transport := catalogue(t, [][]int{idRange(1, 2)})
	transport.RegisterResponder("GET", listingURL(1), httpmock.NewErrorResponder(errors.New("connection refused")))

	c := newTestCrawler(t, testConfig(), transport)
	_, err := c.RunCrawl(context.Background())

	var listing *ListingError
	require.True(t, errors.As(err, &listing))
	assert.Equal(t, 1, listing.Page)
	assert.NotErrorIs(t, err, ErrUnexpectedListingStatus)
}

func TestRunCrawlMissingTaxRow(t *testing.T) {
	transport := catalogue(t, [][]int{idRange(1, 20)})
	transport.RegisterResponder("GET", detailURL(20), htmlResponder(buildDetailPage(20, false)))

	c := newTestCrawler(t, testConfig(), transport)
	report, err := c.RunCrawl(context.Background())
	require.NoError(t, err)
	require.Equal(t, 20, report.ItemCount())

	for _, item := range report.Items {
		if item.URL == detailURL(20) {
			assert.Nil(t, item.Tax)
			require.NotNil(t, item.UPC)
			assert.Equal(t, "upc-20", *item.UPC)
			continue
		}
		require.NotNil(t, item.Tax, item.URL)
		assert.Equal(t, "£0.00", *item.Tax)
	}
}

func TestRunCrawlDispatchesEachLinkOnce(t *testing.T) {
	transport := catalogue(t, [][]int{{1, 2, 2, 3}, {3, 4}})

	c := newTestCrawler(t, testConfig(), transport)
	report, err := c.RunCrawl(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, report.ItemCount())
	assert.Equal(t, 2, report.SkippedLinks)
	calls := transport.GetCallCountInfo()
	for id := 1; id <= 4; id++ {
		assert.Equal(t, 1, calls["GET "+detailURL(id)], "detail %d", id)
	}
}

func TestRunCrawlHonoursPageLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPages = 2
	transport := catalogue(t, [][]int{idRange(1, 3), idRange(4, 6), idRange(7, 9)})

	c := newTestCrawler(t, cfg, transport)
	report, err := c.RunCrawl(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, report.ItemCount())
	assert.True(t, report.Truncated)
	assert.Zero(t, transport.GetCallCountInfo()["GET "+listingURL(3)])
}

func TestRunCrawlCancelledContext(t *testing.T) {
	transport := catalogue(t, [][]int{idRange(1, 3)})
	c := newTestCrawler(t, testConfig(), transport)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := c.RunCrawl(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Zero(t, transport.GetTotalCallCount())
}

func TestRunCrawlRepeatable(t *testing.T) {
	transport := catalogue(t, [][]int{idRange(1, 5)})
	c := newTestCrawler(t, testConfig(), transport)

	first, err := c.RunCrawl(context.Background())
	require.NoError(t, err)
	second, err := c.RunCrawl(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.ItemCount(), second.ItemCount())
	assert.Equal(t, first.Requests, second.Requests)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRunCrawlRecordsMetrics(t *testing.T) {
	transport := catalogue(t, [][]int{idRange(1, 6)})
	transport.RegisterResponder("GET", detailURL(2), httpmock.NewStringResponder(403, "denied"))
	c := newTestCrawler(t, testConfig(), transport)

	_, err := c.RunCrawl(context.Background())
	require.NoError(t, err)

	families, err := c.Metrics.Registry.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				key += "|" + lp.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				values[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[key] = m.GetGauge().GetValue()
			}
		}
	}

	assert.Equal(t, float64(5), values["catalogue_items_extracted_total"])
	assert.Equal(t, float64(1), values["catalogue_listing_pages_total"])
	assert.Equal(t, float64(1), values["catalogue_errors_total|forbidden"])
	assert.Equal(t, float64(6), values["catalogue_requests_total|2xx"], "listing page plus five details")
	assert.Equal(t, float64(2), values["catalogue_requests_total|4xx"], "403 detail plus terminating 404")
	assert.Zero(t, values["catalogue_detail_fetches_in_flight"])
}
