package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/google/renameio/v2"

	"github.com/aluiziolira/go-catalogue-crawler/models"
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(items models.Collection) error
	Close() error
	Validate() error
}

// csvHeader follows the item's JSON field names.
var csvHeader = []string{
	"title", "price", "rating", "availability", "description",
	"upc", "product_type", "price_excl_tax", "price_incl_tax", "tax", "num_reviews",
}

// Save writes the collection to path as a JSON array. The file is replaced
// atomically; an empty collection is written as [].
func Save(items models.Collection, path string) error {
	if items == nil {
		items = models.Collection{}
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(items); err != nil {
		return fmt.Errorf("encode collection: %w", err)
	}

	return writeFileAtomic(path, buf.Bytes())
}

func writeFileAtomic(path string, data []byte) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// CSVWriter writes records to CSV.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// Write appends items to the CSV output. Null fields become empty cells.
func (cw *CSVWriter) Write(items models.Collection) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, item := range items {
		if item == nil {
			continue
		}
		if err := cw.writer.Write(csvRecord(item)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has content.
func (cw *CSVWriter) Validate() error {
	info, err := os.Stat(cw.file.Name())
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

func csvRecord(item *models.CatalogueItem) []string {
	rating := ""
	if item.Rating != nil {
		rating = strconv.Itoa(*item.Rating)
	}
	return []string{
		item.Title,
		item.Price,
		rating,
		item.Availability,
		item.Description,
		deref(item.UPC),
		deref(item.ProductType),
		deref(item.PriceExclTax),
		deref(item.PriceInclTax),
		deref(item.Tax),
		deref(item.NumReviews),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// JSONWriter buffers items and saves them as one JSON array on Close.
type JSONWriter struct {
	path  string
	items models.Collection
	mu    sync.Mutex
}

// NewJSONWriter initialises the JSON writer. Nothing touches disk until
// Close.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if filename == "" {
		return nil, fmt.Errorf("json output path cannot be empty")
	}
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	return &JSONWriter{path: filename, items: models.Collection{}}, nil
}

// Write buffers items for the final document.
func (jw *JSONWriter) Write(items models.Collection) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, item := range items {
		if item != nil {
			jw.items = append(jw.items, item)
		}
	}
	return nil
}

// Close saves the buffered collection.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	return Save(jw.items, jw.path)
}

// Validate ensures the JSON file holds a well-formed array.
func (jw *JSONWriter) Validate() error {
	data, err := os.ReadFile(jw.path)
	if err != nil {
		return fmt.Errorf("read json file: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("json file is empty")
	}
	var decoded []json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("json file is not an array: %w", err)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
