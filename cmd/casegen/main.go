// Command casegen generates test cases for a requirements document using a
// configurable LLM backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/dan-solli/casegen/pkg/casegen"
	"github.com/dan-solli/casegen/pkg/config"
	"github.com/dan-solli/casegen/pkg/llm"
	"github.com/dan-solli/casegen/pkg/logger"
	"github.com/dan-solli/casegen/pkg/metrics"
	"github.com/dan-solli/casegen/pkg/reader"
	"github.com/dan-solli/casegen/pkg/report"
	"github.com/dan-solli/casegen/pkg/store"
	"github.com/dan-solli/casegen/pkg/trace"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "casegen: %v\n", err)
		os.Exit(1)
	}
}

// run is main without process exit, so it can be tested.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := config.NewFlagSet("casegen")
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.Setup(cfg.Log, stderr)

	creds := config.Credentials(os.Getenv)
	registry, err := llm.NewStandardRegistry(cfg.Backends.Settings(), creds)
	if err != nil {
		return fmt.Errorf("failed to register backends: %w", err)
	}

	if listBackends, _ := fs.GetBool("list-backends"); listBackends {
		for _, name := range registry.Names() {
			fmt.Fprintln(stdout, name)
		}
		return nil
	}

	if cfg.Input == "" {
		return errors.New("--input is required")
	}

	reqs, err := reader.Load(cfg.Input)
	if err != nil {
		return err
	}
	log.Info("requirements loaded",
		"input", cfg.Input,
		"requirements", len(reqs),
		"backends", strings.Join(registry.Names(), ","))

	collector := metrics.NewCollector()
	if cfg.MetricsAddr != "" {
		shutdown, err := serveMetrics(cfg.MetricsAddr, collector, log)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	gatewayOpts := []llm.GatewayOption{
		llm.WithLogger(log),
		llm.WithMetrics(collector),
	}
	if cfg.Generation.RateLimit > 0 {
		gatewayOpts = append(gatewayOpts, llm.WithRateLimiter(rate.NewLimiter(rate.Limit(cfg.Generation.RateLimit), 1)))
	}
	gateway := llm.NewGateway(registry, creds, gatewayOpts...)

	exporter, err := trace.NewFileExporter(cfg.Storage.TracePath)
	if err != nil {
		return err
	}
	defer exporter.Close()

	genOpts := []casegen.Option{
		casegen.WithLogger(log),
		casegen.WithMetrics(collector),
		casegen.WithTraceExporter(exporter),
	}
	if cfg.Storage.DBPath != "" {
		db, err := store.NewSQLiteStore(cfg.Storage.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		genOpts = append(genOpts, casegen.WithStore(db), casegen.WithTracker(db))
	} else if cfg.Generation.SkipProcessed {
		log.Warn("--skip-processed has no effect without --db")
	}

	generator := casegen.New(registry, gateway, casegen.Config{
		Backend:       cfg.Backend,
		MaxRetries:    cfg.Generation.MaxRetries,
		Workers:       cfg.Generation.Workers,
		QualifyTitles: cfg.Generation.QualifyTitles,
		SkipProcessed: cfg.Generation.SkipProcessed,
	}, genOpts...)

	result, genErr := generator.Generate(ctx, reqs)
	if result == nil {
		return genErr
	}

	if err := report.WriteTestCases(cfg.Output, result.TestCases); err != nil {
		return errors.Join(genErr, err)
	}
	log.Info("test cases written", "output", cfg.Output, "test_cases", len(result.TestCases))

	if cfg.Report != "" {
		summary := report.Summarize(result.TestCases)
		summary.RunID = result.RunID
		summary.Backend = result.Backend
		summary.Succeeded = result.Succeeded
		summary.Skipped = result.Skipped
		summary.Unchanged = result.Unchanged
		summary.TotalTokens = result.TotalTokens
		if err := report.WriteSummary(cfg.Report, summary); err != nil {
			return errors.Join(genErr, err)
		}
		log.Info("report written", "report", cfg.Report)
	}

	fmt.Fprintf(stdout, "%d test cases from %d requirements (%d skipped, %d unchanged)\n",
		len(result.TestCases), result.Succeeded, result.Skipped, result.Unchanged)

	return genErr
}

// serveMetrics starts the metrics listener and returns its shutdown function.
func serveMetrics(addr string, collector *metrics.MetricsCollector, log *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:           newMetricsRouter(collector.Registry(), log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", "error", err)
		}
	}()
	log.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Warn("metrics server shutdown failed", "error", err)
		}
	}, nil
}
