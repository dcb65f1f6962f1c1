// Package casegen drives test-case generation: for each requirement it builds
// a prompt, asks a backend for test cases and parses the reply.
package casegen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dan-solli/casegen/pkg/extraction"
	"github.com/dan-solli/casegen/pkg/llm"
	"github.com/dan-solli/casegen/pkg/metrics"
	"github.com/dan-solli/casegen/pkg/prompt"
	"github.com/dan-solli/casegen/pkg/redact"
	"github.com/dan-solli/casegen/pkg/store"
	"github.com/dan-solli/casegen/pkg/testcase"
	"github.com/dan-solli/casegen/pkg/trace"
)

// Temperature is used for every generation call.
const Temperature = 0.7

// Requirement outcome statuses.
const (
	StatusSucceeded = "succeeded"
	StatusSkipped   = "skipped"
	StatusUnchanged = "unchanged"
)

// Config holds the generator settings.
type Config struct {
	// Backend names the registered backend to use. Empty or unknown names
	// fall back to llm.DefaultBackend.
	Backend string

	// MaxRetries is the number of delivery attempts per requirement (default: 3).
	MaxRetries int

	// Workers bounds how many requirements are in flight at once (default: 1,
	// strictly sequential).
	Workers int

	// QualifyTitles prefixes each case title with the requirement title.
	QualifyTitles bool

	// SkipProcessed skips requirements the tracker has already seen with
	// identical content. Requires WithTracker.
	SkipProcessed bool
}

// RequirementResult is the outcome of one requirement.
type RequirementResult struct {
	Index         int    `json:"index"`
	RequirementID string `json:"requirementId"`
	Status        string `json:"status"`
	Cases         int    `json:"cases"`
	Tokens        int64  `json:"tokens"`
	Attempts      int    `json:"attempts"`
	ErrorType     string `json:"errorType,omitempty"`
	Err           error  `json:"-"`
}

// Result is the outcome of one Generate call.
type Result struct {
	RunID        string
	Backend      string
	TestCases    []testcase.TestCase
	Requirements []RequirementResult
	Succeeded    int
	Skipped      int
	Unchanged    int
	TotalTokens  int64
}

// Generator turns requirements into test cases.
type Generator struct {
	config   Config
	registry *llm.Registry
	invoker  llm.Invoker
	builder  *prompt.Builder
	parser   *extraction.Parser
	cases    store.CaseStore
	tracker  store.RequirementTracker
	exporter trace.Exporter
	metrics  metrics.Collector
	logger   *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c metrics.Collector) Option {
	return func(g *Generator) {
		if c != nil {
			g.metrics = c
		}
	}
}

// WithTraceExporter sets where per-requirement traces are written.
func WithTraceExporter(e trace.Exporter) Option {
	return func(g *Generator) {
		if e != nil {
			g.exporter = e
		}
	}
}

// WithStore persists every run and its test cases.
func WithStore(s store.CaseStore) Option {
	return func(g *Generator) {
		g.cases = s
	}
}

// WithTracker records processed requirements by content hash.
func WithTracker(t store.RequirementTracker) Option {
	return func(g *Generator) {
		g.tracker = t
	}
}

// New creates a Generator. registry is used to resolve the backend and its
// capabilities; invoker performs the calls (usually an *llm.Gateway over the
// same registry).
func New(registry *llm.Registry, invoker llm.Invoker, cfg Config, opts ...Option) *Generator {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = llm.DefaultMaxRetries
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	g := &Generator{
		config:   cfg,
		registry: registry,
		invoker:  invoker,
		builder:  prompt.NewBuilder(),
		exporter: trace.NewNoopExporter(),
		metrics:  metrics.NewNoopCollector(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.parser = extraction.NewParser(g.logger)
	return g
}

// resolveBackend returns the configured backend, substituting the default
// backend when the configured one is not registered.
func (g *Generator) resolveBackend(ctx context.Context) (llm.Backend, error) {
	name := g.config.Backend
	if name == "" {
		name = llm.DefaultBackend
	}

	backend, err := g.registry.Lookup(name)
	if err == nil {
		return backend, nil
	}
	if !errors.Is(err, llm.ErrUnknownBackend) || name == llm.DefaultBackend {
		return nil, fmt.Errorf("%w: %v", ErrNoUsableBackend, err)
	}

	g.logger.WarnContext(ctx, "backend not available, using default",
		"requested", name,
		"default", llm.DefaultBackend,
		"available", g.registry.Names())

	backend, err = g.registry.Lookup(llm.DefaultBackend)
	if err != nil {
		return nil, fmt.Errorf("%w: %s and %s are not registered", ErrNoUsableBackend, name, llm.DefaultBackend)
	}
	return backend, nil
}

// outcome is one processed requirement, kept until results are ordered.
type outcome struct {
	result RequirementResult
	cases  []testcase.TestCase
}

// Generate processes reqs and returns every parsed test case in requirement
// order, then block order. Failed requirements are skipped and counted; they
// never stop the run. ErrNoUsableBackend is returned before any work when no
// backend can serve the run. When ctx is canceled, requirements not yet
// started are left out and the partial result is returned with ctx.Err().
func (g *Generator) Generate(ctx context.Context, reqs []testcase.Requirement) (*Result, error) {
	start := time.Now()

	backend, err := g.resolveBackend(ctx)
	if err != nil {
		g.metrics.RecordError(ctx, "generate", ErrTypeConfiguration)
		return nil, err
	}

	var run *store.Run
	runID := uuid.New().String()
	if g.cases != nil {
		run, err = g.cases.BeginRun(ctx, backend.Name(), len(reqs))
		if err != nil {
			g.metrics.RecordError(ctx, "generate", ErrTypeDatabase)
			return nil, fmt.Errorf("failed to begin run: %w", err)
		}
		runID = run.ID
	}

	logger := g.logger.With("run_id", runID, "backend", backend.Name())
	logger.InfoContext(ctx, "generation started",
		"requirements", len(reqs),
		"workers", g.config.Workers)

	outcomes := g.processAll(ctx, logger, runID, backend, reqs)

	// Completion order is not input order when workers > 1.
	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].result.Index < outcomes[j].result.Index
	})

	result := &Result{RunID: runID, Backend: backend.Name()}
	for _, o := range outcomes {
		result.Requirements = append(result.Requirements, o.result)
		result.TestCases = append(result.TestCases, o.cases...)
		result.TotalTokens += o.result.Tokens
		switch o.result.Status {
		case StatusSucceeded:
			result.Succeeded++
		case StatusUnchanged:
			result.Unchanged++
		default:
			result.Skipped++
		}
	}

	runErr := ctx.Err()
	if err := g.persist(context.WithoutCancel(ctx), logger, run, result, runErr); err != nil {
		runErr = errors.Join(runErr, err)
	}

	status := "success"
	if runErr != nil {
		status = "error"
		g.metrics.RecordError(ctx, "generate", ClassifyError(runErr))
	}
	durationMs := time.Since(start).Milliseconds()
	g.metrics.RecordOperation(ctx, "generate", status, durationMs)

	g.export(ctx, &trace.TraceRecord{
		Timestamp:  start,
		RunID:      runID,
		Operation:  trace.OperationRun,
		Backend:    backend.Name(),
		DurationMs: durationMs,
		Status:     status,
		Spans:      []trace.SpanRecord{},
		ErrorType:  ClassifyError(runErr),
		Counters: map[string]int64{
			"requirements": int64(len(reqs)),
			"succeeded":    int64(result.Succeeded),
			"skipped":      int64(result.Skipped),
			"unchanged":    int64(result.Unchanged),
			"cases":        int64(len(result.TestCases)),
			"tokens":       result.TotalTokens,
		},
	})

	logger.InfoContext(ctx, "generation finished",
		"succeeded", result.Succeeded,
		"skipped", result.Skipped,
		"unchanged", result.Unchanged,
		"test_cases", len(result.TestCases),
		"total_tokens", result.TotalTokens,
		"duration_ms", durationMs)

	return result, runErr
}

// processAll runs every requirement, sequentially or on a bounded pool.
// Requirements are not started once ctx is done.
func (g *Generator) processAll(ctx context.Context, logger *slog.Logger, runID string, backend llm.Backend, reqs []testcase.Requirement) []outcome {
	if g.config.Workers == 1 {
		outcomes := make([]outcome, 0, len(reqs))
		for i, req := range reqs {
			if ctx.Err() != nil {
				break
			}
			outcomes = append(outcomes, g.processRequirement(ctx, logger, runID, backend, i, req))
		}
		return outcomes
	}

	results := make(chan outcome, len(reqs))
	var eg errgroup.Group
	eg.SetLimit(g.config.Workers)
	for i, req := range reqs {
		if ctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results <- g.processRequirement(ctx, logger, runID, backend, i, req)
			return nil
		})
	}
	eg.Wait()
	close(results)

	outcomes := make([]outcome, 0, len(reqs))
	for o := range results {
		outcomes = append(outcomes, o)
	}
	return outcomes
}

// processRequirement generates the cases of one requirement. Every failure is
// absorbed into a skipped result.
func (g *Generator) processRequirement(ctx context.Context, logger *slog.Logger, runID string, backend llm.Backend, index int, raw testcase.Requirement) outcome {
	req := raw.WithDefaults(index)
	priority := testcase.NormalizePriority(req.Priority, testcase.Middle)
	rt := newRequirementTrace()
	logger = logger.With("requirement_id", req.ID)

	o := outcome{result: RequirementResult{Index: index, RequirementID: req.ID}}

	var hash string
	if g.tracker != nil {
		hash = store.RequirementHash(req)
		if g.config.SkipProcessed {
			processed, err := g.tracker.IsRequirementProcessed(ctx, hash)
			if err != nil {
				logger.WarnContext(ctx, "failed to check processed requirement", "error", err)
			} else if processed {
				logger.InfoContext(ctx, "requirement unchanged since last run, skipping")
				o.result.Status = StatusUnchanged
				g.finishRequirement(ctx, runID, backend, req, rt, &o, nil)
				return o
			}
		}
	}

	span := rt.startSpan(stagePrompt)
	messages, err := g.builder.Build(req, backend.Capabilities())
	g.metrics.RecordStage(ctx, "requirement", stagePrompt, span.finish(err, nil))
	if err != nil {
		logger.WarnContext(ctx, "failed to build prompt, skipping requirement", "error", err)
		g.finishRequirement(ctx, runID, backend, req, rt, &o, err)
		return o
	}

	logger.InfoContext(ctx, "generating test cases", "title", req.Title)

	span = rt.startSpan(stageInvoke)
	completion, err := g.invoker.Invoke(ctx, backend.Name(), messages, Temperature, g.config.MaxRetries)
	o.result.Tokens = completion.TotalTokens
	o.result.Attempts = completion.Attempts
	if err == nil && strings.TrimSpace(completion.Content) == "" {
		err = ErrEmptyReply
	}
	g.metrics.RecordStage(ctx, "requirement", stageInvoke, span.finish(err, map[string]int64{
		"attempts": int64(completion.Attempts),
		"tokens":   completion.TotalTokens,
	}))
	if err != nil {
		logger.WarnContext(ctx, "generation failed, skipping requirement",
			"error_type", ClassifyError(err),
			"error", redact.String(err.Error()))
		g.finishRequirement(ctx, runID, backend, req, rt, &o, err)
		return o
	}

	defaults := extraction.Defaults{
		RequirementID: req.ID,
		ParentID:      req.ParentID,
		Priority:      priority,
		Category:      req.Category,
		Iteration:     req.Iteration,
		Assignee:      req.Assignee,
	}
	if g.config.QualifyTitles {
		defaults.RequirementTitle = req.Title
	}

	span = rt.startSpan(stageParse)
	cases := g.parser.Parse(completion.Content, defaults)
	if len(cases) == 0 {
		err = ErrNoTestCases
	}
	g.metrics.RecordStage(ctx, "requirement", stageParse, span.finish(err, map[string]int64{
		"cases": int64(len(cases)),
	}))
	if err != nil {
		logger.WarnContext(ctx, "no test cases parsed from reply, skipping requirement",
			"reply_length", len(completion.Content))
		g.finishRequirement(ctx, runID, backend, req, rt, &o, err)
		return o
	}

	o.cases = cases
	o.result.Status = StatusSucceeded
	o.result.Cases = len(cases)
	for _, tc := range cases {
		g.metrics.AddTestCases(ctx, tc.Priority.String(), 1)
	}

	if g.tracker != nil {
		if err := g.tracker.MarkRequirementProcessed(ctx, hash, req.ID, len(cases)); err != nil {
			logger.WarnContext(ctx, "failed to mark requirement processed", "error", err)
		}
	}

	logger.InfoContext(ctx, "test cases generated",
		"cases", len(cases),
		"tokens", completion.TotalTokens,
		"attempts", completion.Attempts)

	g.finishRequirement(ctx, runID, backend, req, rt, &o, nil)
	return o
}

// finishRequirement sets the final status and records metrics and the trace.
func (g *Generator) finishRequirement(ctx context.Context, runID string, backend llm.Backend, req testcase.Requirement, rt *requirementTrace, o *outcome, err error) {
	if err != nil {
		o.result.Status = StatusSkipped
		o.result.Err = err
		o.result.ErrorType = ClassifyError(err)
		g.metrics.RecordError(ctx, "requirement", o.result.ErrorType)
	}

	durationMs := rt.elapsedMs()
	g.metrics.RecordOperation(ctx, "requirement", o.result.Status, durationMs)

	g.export(ctx, &trace.TraceRecord{
		Timestamp:     rt.start,
		RunID:         runID,
		Operation:     trace.OperationRequirement,
		RequirementID: req.ID,
		Backend:       backend.Name(),
		DurationMs:    durationMs,
		Status:        o.result.Status,
		Spans:         rt.spans,
		ErrorType:     o.result.ErrorType,
		Counters: map[string]int64{
			"cases":  int64(o.result.Cases),
			"tokens": o.result.Tokens,
		},
	})
}

// persist stores the run's cases and final counters.
func (g *Generator) persist(ctx context.Context, logger *slog.Logger, run *store.Run, result *Result, runErr error) error {
	if g.cases == nil || run == nil {
		return nil
	}

	var errs []error
	if err := g.cases.SaveTestCases(ctx, run.ID, result.TestCases); err != nil {
		logger.ErrorContext(ctx, "failed to save test cases", "error", err)
		errs = append(errs, fmt.Errorf("failed to save test cases: %w", err))
	}

	run.Succeeded = result.Succeeded
	run.Skipped = result.Skipped
	run.TotalTokens = result.TotalTokens
	run.Status = store.RunStatusCompleted
	if runErr != nil || len(errs) > 0 {
		run.Status = store.RunStatusFailed
	}
	if err := g.cases.FinishRun(ctx, run); err != nil {
		logger.ErrorContext(ctx, "failed to finish run", "error", err)
		errs = append(errs, fmt.Errorf("failed to finish run: %w", err))
	}

	if g.tracker != nil {
		if count, err := g.tracker.GetProcessedRequirementCount(ctx); err == nil {
			g.metrics.SetStoredCount(ctx, "processed_requirements", count)
		}
	}
	g.metrics.SetStoredCount(ctx, "test_cases", int64(len(result.TestCases)))

	return errors.Join(errs...)
}

// export writes a trace record. Export failures are logged, never returned.
func (g *Generator) export(ctx context.Context, record *trace.TraceRecord) {
	if err := g.exporter.Export(ctx, record); err != nil {
		g.logger.WarnContext(ctx, "failed to export trace",
			"run_id", record.RunID,
			"operation", record.Operation,
			"error", err)
	}
}
