package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-catalogue-crawler/config"
	"github.com/aluiziolira/go-catalogue-crawler/models"
	"github.com/aluiziolira/go-catalogue-crawler/pipeline"
	"github.com/aluiziolira/go-catalogue-crawler/scheduler"
	"github.com/aluiziolira/go-catalogue-crawler/scraper"
)

type cliFlags struct {
	configPath    string
	baseURL       string
	parallelism   int
	maxPages      int
	delayMs       int
	randomDelayMs int
	timeout       time.Duration
	outputFile    string
	outputFormat  string
	verbose       bool
	metricsAddr   string
	scheduleAt    string
	runOnce       bool
}

func main() {
	defaults := config.DefaultConfig()
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	flags := registerFlags(fs, defaults)
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(fs, flags, cfg)

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	crawler, err := scraper.NewCrawler(cfg, logger)
	if err != nil {
		slog.Error("initialising crawler", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && crawler.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(crawler.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}
	defer func() {
		if metricsServer == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}()

	job := func(ctx context.Context) error {
		return crawlAndSave(ctx, crawler, cfg)
	}

	if cfg.RunOnce {
		if err := job(ctx); err != nil {
			slog.Error("crawl failed", slog.Any("error", err))
			stop()
			os.Exit(1)
		}
		return
	}

	hour, minute, err := cfg.ScheduleTime()
	if err != nil {
		slog.Error("invalid schedule", slog.Any("error", err))
		os.Exit(1)
	}
	sched, err := scheduler.New(hour, minute, job, logger)
	if err != nil {
		slog.Error("invalid schedule", slog.Any("error", err))
		os.Exit(1)
	}
	go scheduler.WatchConsole(ctx, os.Stdin, sched.Stop, logger)

	fmt.Printf("Crawl scheduled daily at %02d:%02d. Type s and press Enter to stop.\n", hour, minute)
	if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("scheduler stopped", slog.Any("error", err))
	}
	slog.Info("scheduler stopped")
}

// crawlAndSave runs one crawl and persists its items. A failed crawl saves
// nothing and leaves any previous output in place.
func crawlAndSave(ctx context.Context, crawler *scraper.Crawler, cfg *config.Config) error {
	report, err := crawler.RunCrawl(ctx)
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}

	if report.Truncated {
		slog.Warn("saving a partial catalogue: page limit reached", slog.Int("max_pages", cfg.MaxPages))
	}

	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}
	if err := writer.Write(report.Items); err != nil {
		writer.Close()
		return fmt.Errorf("write output: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	if err := writer.Validate(); err != nil {
		return fmt.Errorf("output validation failed: %w", err)
	}

	printSummary(report, cfg.OutputFile)
	return nil
}

func registerFlags(fs *flag.FlagSet, defaults *config.Config) *cliFlags {
	f := &cliFlags{}
	fs.StringVar(&f.configPath, "config", "", "Optional config file (yaml, json or toml)")
	fs.StringVar(&f.baseURL, "base-url", defaults.BaseURL, "Base URL of the catalogue")
	fs.IntVar(&f.parallelism, "parallel", defaults.Parallelism, "Maximum concurrent detail fetches")
	fs.IntVar(&f.maxPages, "pages", defaults.MaxPages, "Maximum listing pages to walk (0 = until the first 404)")
	fs.IntVar(&f.delayMs, "delay", int(defaults.Delay/time.Millisecond), "Delay between requests (milliseconds)")
	fs.IntVar(&f.randomDelayMs, "random-delay", int(defaults.RandomDelay/time.Millisecond), "Random jitter added to delay (milliseconds)")
	fs.DurationVar(&f.timeout, "timeout", defaults.Timeout, "Per-request timeout")
	fs.StringVar(&f.outputFile, "output", defaults.OutputFile, "Output file path")
	fs.StringVar(&f.outputFormat, "format", defaults.OutputFormat, "Output format: json, csv, or dual")
	fs.BoolVar(&f.verbose, "v", defaults.Verbose, "Enable verbose logging")
	fs.StringVar(&f.metricsAddr, "metrics-addr", defaults.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	fs.StringVar(&f.scheduleAt, "at", defaults.ScheduleAt, "Daily run time, HH:MM local")
	fs.BoolVar(&f.runOnce, "once", defaults.RunOnce, "Crawl once and exit instead of scheduling")
	return f
}

// applyFlags overrides cfg with the flags set on the command line. Flags left
// at their defaults do not mask values from the config file or environment.
func applyFlags(fs *flag.FlagSet, f *cliFlags, cfg *config.Config) {
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "base-url":
			cfg.BaseURL = f.baseURL
		case "parallel":
			cfg.Parallelism = f.parallelism
		case "pages":
			cfg.MaxPages = f.maxPages
		case "delay":
			cfg.Delay = time.Duration(f.delayMs) * time.Millisecond
		case "random-delay":
			cfg.RandomDelay = time.Duration(f.randomDelayMs) * time.Millisecond
		case "timeout":
			cfg.Timeout = f.timeout
		case "output":
			cfg.OutputFile = f.outputFile
		case "format":
			cfg.OutputFormat = strings.ToLower(f.outputFormat)
		case "v":
			cfg.Verbose = f.verbose
		case "metrics-addr":
			cfg.MetricsAddr = f.metricsAddr
		case "at":
			cfg.ScheduleAt = f.scheduleAt
		case "once":
			cfg.RunOnce = f.runOnce
		}
	})
}

func createWriter(format, filename string) (pipeline.OutputWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(filename)
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "dual":
		base := strings.TrimSuffix(strings.TrimSuffix(filename, ".json"), ".csv")
		return pipeline.NewDualWriter(base+".csv", base+".json")
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printSummary(report *models.CrawlReport, outputFile string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Crawl complete")

	duration := report.Duration()
	itemsPerSec := 0.0
	if duration.Seconds() > 0 {
		itemsPerSec = float64(report.ItemCount()) / duration.Seconds()
	}

	fmt.Printf("  Run ID:        %s\n", report.RunID)
	fmt.Printf("  Total items:   %d\n", report.ItemCount())
	fmt.Printf("  Pages:         %d\n", report.Pages)
	if report.Truncated {
		fmt.Println("  Truncated:     yes (page limit reached)")
	}
	fmt.Printf("  Requests:      %d\n", report.Requests)
	fmt.Printf("  Failed items:  %d\n", len(report.Failures))
	if len(report.FailuresByKind) > 0 {
		fmt.Printf("  Error types:   %v\n", report.FailuresByKind)
	}
	if report.SkippedLinks > 0 {
		fmt.Printf("  Skipped links: %d\n", report.SkippedLinks)
	}
	fmt.Printf("  Duration:      %v\n", duration.Round(time.Millisecond))
	fmt.Printf("  Items/sec:     %.2f\n", itemsPerSec)
	fmt.Printf("  Output file:   %s\n", outputFile)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
