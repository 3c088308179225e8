package pipeline

import (
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-catalogue-crawler/models"
)

func testItem(title string) *models.CatalogueItem {
	rating := 3
	return &models.CatalogueItem{
		Title:        title,
		Price:        "£10.00",
		Rating:       &rating,
		Availability: "In stock (5 available)",
		Description:  models.DefaultDescription,
		URL:          "http://example.test/catalogue/" + title + "/index.html",
	}
}

func TestAggregatorValidationWithoutDedup(t *testing.T) {
	agg := NewAggregator(8, nil)
	agg.Start()

	valid := testItem("clean-architecture")
	duplicate := testItem("clean-architecture")
	invalid := testItem("")

	require.NoError(t, agg.Add(valid, invalid, duplicate))

	items, err := agg.Finalize()
	require.NoError(t, err)
	assert.Len(t, items, 2, "identical items are both kept")

	metrics := agg.GetMetrics()
	validation, ok := metrics["validation_errors"].(map[string]int)
	require.True(t, ok)
	assert.Equal(t, 1, validation["invalid_record"])
	assert.Equal(t, int64(2), metrics["processed_items"])
}

func TestAggregatorConcurrentAdds(t *testing.T) {
	agg := NewAggregator(4, nil)
	agg.Start()

	const producers, perProducer = 8, 50
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if err := agg.Add(testItem(strconv.Itoa(p) + "-" + strconv.Itoa(i))); err != nil {
					t.Errorf("add: %v", err)
					return
				}
			}
		}(p)
	}
	wg.Wait()

	items, err := agg.Finalize()
	require.NoError(t, err)
	assert.Len(t, items, producers*perProducer)
}

func TestAggregatorFinalizeEmpty(t *testing.T) {
	agg := NewAggregator(1, nil)
	agg.Start()

	items, err := agg.Finalize()
	require.NoError(t, err)
	require.NotNil(t, items)
	assert.Empty(t, items)
}

func TestAggregatorAddAfterFinalize(t *testing.T) {
	agg := NewAggregator(1, nil)
	agg.Start()
	_, err := agg.Finalize()
	require.NoError(t, err)

	err = agg.Add(testItem("late"))
	if !errors.Is(err, ErrAggregatorClosed) {
		t.Fatalf("expected ErrAggregatorClosed, got %v", err)
	}
}

func TestAggregatorNilItemsIgnored(t *testing.T) {
	agg := NewAggregator(2, nil)
	agg.Start()
	require.NoError(t, agg.Add(nil, testItem("kept"), nil))

	items, err := agg.Finalize()
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
