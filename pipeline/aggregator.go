// Package pipeline collects extracted items and persists the final
// collection.
package pipeline

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-catalogue-crawler/models"
	"github.com/aluiziolira/go-catalogue-crawler/parser"
)

var (
	// ErrAggregatorClosed is returned when Add is called after Finalize.
	ErrAggregatorClosed = errors.New("pipeline: aggregator closed")
)

// Aggregator appends items to a single collection. All appends happen on
// one goroutine; Add may be called from anywhere.
type Aggregator struct {
	itemCh chan *models.CatalogueItem
	items  models.Collection
	logger *slog.Logger

	wg      sync.WaitGroup
	metrics metrics

	mu      sync.Mutex // guards closed/started
	closed  bool
	started bool

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewAggregator builds an aggregator whose intake channel holds bufferSize
// items.
func NewAggregator(bufferSize int, logger *slog.Logger) *Aggregator {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		itemCh:   make(chan *models.CatalogueItem, bufferSize),
		items:    make(models.Collection, 0),
		logger:   logger,
		metrics:  newMetrics(),
		shutdown: make(chan struct{}),
	}
}

// Start launches the aggregation goroutine. Calling it twice is a no-op.
func (a *Aggregator) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || a.started {
		return
	}
	a.started = true

	a.wg.Add(1)
	go a.run()
}

// Add enqueues items. Nil entries are ignored.
func (a *Aggregator) Add(items ...*models.CatalogueItem) error {
	if len(items) == 0 {
		return nil
	}
	if a.isClosed() {
		return ErrAggregatorClosed
	}

	for _, item := range items {
		if item == nil {
			continue
		}
		if err := a.enqueue(item); err != nil {
			return err
		}
	}
	return nil
}

// Finalize stops intake, waits for every queued item to be appended and
// returns the collection. The result is never nil.
func (a *Aggregator) Finalize() (models.Collection, error) {
	a.mu.Lock()
	a.closed = true
	started := a.started
	a.mu.Unlock()

	a.signalShutdown()
	a.closeOnce.Do(func() {
		close(a.itemCh)
	})
	if !started {
		// Drain anything enqueued before Start was called.
		for item := range a.itemCh {
			a.collect(item)
		}
	}

	a.wg.Wait()
	return a.items, nil
}

// GetMetrics returns a snapshot of the internal counters.
func (a *Aggregator) GetMetrics() map[string]interface{} {
	return a.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs until Finalize.
func (a *Aggregator) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := a.GetMetrics()
				processed := metrics["processed_items"].(int64)
				validation := metrics["validation_errors"].(map[string]int)
				a.logger.Info("aggregator progress",
					slog.Int64("processed", processed),
					slog.Int("invalid", validation["invalid_record"]),
				)
			case <-a.shutdown:
				return
			}
		}
	}()
}

func (a *Aggregator) run() {
	defer a.wg.Done()
	for item := range a.itemCh {
		a.collect(item)
	}
}

func (a *Aggregator) collect(item *models.CatalogueItem) {
	if err := parser.ValidateItem(item); err != nil {
		a.metrics.addValidation("invalid_record")
		a.logger.Debug("item rejected", slog.String("url", item.URL), slog.Any("error", err))
		return
	}
	a.items = append(a.items, item)
	a.metrics.incrementProcessed()
}

func (a *Aggregator) enqueue(item *models.CatalogueItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrAggregatorClosed
		}
	}()

	select {
	case <-a.shutdown:
		return ErrAggregatorClosed
	case a.itemCh <- item:
		return nil
	}
}

func (a *Aggregator) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

func (a *Aggregator) signalShutdown() {
	a.shutdownOnce.Do(func() {
		close(a.shutdown)
	})
}

type metrics struct {
	mu         sync.Mutex
	processed  int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_items":   m.processed,
		"validation_errors": copyValidation,
	}
}
