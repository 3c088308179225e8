// Package config holds crawler settings and their validation.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds crawler configuration.
type Config struct {
	BaseURL       string        `mapstructure:"base_url"`
	Parallelism   int           `mapstructure:"parallelism"`
	MaxPages      int           `mapstructure:"max_pages"` // 0 walks until the first 404
	Delay         time.Duration `mapstructure:"delay"`
	RandomDelay   time.Duration `mapstructure:"random_delay"`
	Timeout       time.Duration `mapstructure:"timeout"`
	UserAgent     string        `mapstructure:"user_agent"`
	OutputFile    string        `mapstructure:"output_file"`
	OutputFormat  string        `mapstructure:"output_format"` // json, csv, or dual
	Verbose       bool          `mapstructure:"verbose"`
	MetricsAddr   string        `mapstructure:"metrics_addr"`
	DedupeMaxSize int           `mapstructure:"dedupe_max_size"`
	BufferSize    int           `mapstructure:"buffer_size"`
	ScheduleAt    string        `mapstructure:"schedule_at"`
	RunOnce       bool          `mapstructure:"run_once"`
}

// DefaultConfig returns defaults matching the public demo catalogue.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:       "http://books.toscrape.com",
		Parallelism:   20,
		MaxPages:      0,
		Delay:         0,
		RandomDelay:   0,
		Timeout:       15 * time.Second,
		UserAgent:     "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		OutputFile:    "artifacts/books_data.json",
		OutputFormat:  "json",
		Verbose:       false,
		MetricsAddr:   "",
		DedupeMaxSize: 10000,
		BufferSize:    512,
		ScheduleAt:    "21:28",
		RunOnce:       false,
	}
}

// CatalogueRoot returns the URL that listing pages and relative detail links
// are resolved against.
func (c *Config) CatalogueRoot() (*url.URL, error) {
	base, err := url.Parse(strings.TrimSuffix(c.BaseURL, "/") + "/catalogue/")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	return base, nil
}

// ListingURL returns the address of listing page n.
func (c *Config) ListingURL(n int) string {
	return fmt.Sprintf("%s/catalogue/page-%d.html", strings.TrimSuffix(c.BaseURL, "/"), n)
}

// ScheduleTime parses ScheduleAt as a 24h HH:MM clock time.
func (c *Config) ScheduleTime() (hour, minute int, err error) {
	t, err := time.Parse("15:04", c.ScheduleAt)
	if err != nil {
		return 0, 0, fmt.Errorf("schedule time %q must be HH:MM: %w", c.ScheduleAt, err)
	}
	return t.Hour(), t.Minute(), nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.MaxPages < 0 {
		return fmt.Errorf("max pages cannot be negative")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer size must be positive")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if !c.RunOnce {
		if _, _, err := c.ScheduleTime(); err != nil {
			return err
		}
	}

	return nil
}
