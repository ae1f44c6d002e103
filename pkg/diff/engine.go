// Package diff runs the full differencing pipeline: matching followed by edit
// script generation, with tracing, metrics and logging around each phase.
package diff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/treediff/pkg/actions"
	"github.com/Sumatoshi-tech/treediff/pkg/mapping"
	"github.com/Sumatoshi-tech/treediff/pkg/matchers"
	"github.com/Sumatoshi-tech/treediff/pkg/observability"
	"github.com/Sumatoshi-tech/treediff/pkg/tree"
)

// Phase names used in spans, logs and metrics.
const (
	PhaseTopDown  = string(matchers.PhaseTopDown)
	PhaseBottomUp = string(matchers.PhaseBottomUp)
	PhaseGenerate = "generate"
)

var phaseSpans = map[matchers.Phase]string{
	matchers.PhaseTopDown:  observability.SpanTopDown,
	matchers.PhaseBottomUp: observability.SpanBottomUp,
}

const (
	spanDiff     = "treediff.diff"
	spanGenerate = "treediff.diff.generate"
)

// ErrVerification is returned when a script does not reproduce the destination tree.
var ErrVerification = errors.New("edit script does not reproduce the destination")

// Engine compares trees with a fixed matcher configuration. It holds no
// per-diff state and is safe for concurrent use.
type Engine struct {
	cfg     matchers.Config
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.DiffMetrics
	verify  bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards records.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithTracer sets the tracer. The default is a no-op tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// WithMetrics records engine metrics.
func WithMetrics(metrics *observability.DiffMetrics) Option {
	return func(e *Engine) {
		e.metrics = metrics
	}
}

// WithVerify replays every generated script and fails the diff when the
// result differs from the destination.
func WithVerify(verify bool) Option {
	return func(e *Engine) {
		e.verify = verify
	}
}

// New validates cfg and returns an engine.
func New(cfg matchers.Config, opts ...Option) (*Engine, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:    cfg,
		logger: slog.New(slog.DiscardHandler),
		tracer: nooptrace.NewTracerProvider().Tracer(""),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Config returns the matcher configuration.
func (e *Engine) Config() matchers.Config {
	return e.cfg
}

// Stats summarizes one diff.
type Stats struct {
	SrcNodes int              `json:"src_nodes"`
	DstNodes int              `json:"dst_nodes"`
	Mappings int              `json:"mappings"`
	Match    matchers.Stats   `json:"match"`
	Actions  actions.Summary  `json:"actions"`
	Duration time.Duration    `json:"duration_ns"`
	Phases   map[string]int64 `json:"phases_ns,omitempty"`
}

// Result is the outcome of one diff. A partially computed result is never
// returned.
type Result struct {
	Src      *tree.Tree
	Dst      *tree.Tree
	Mappings *mapping.Store
	Script   actions.Script
	Stats    Stats
}

// Verify replays the script against the source tree and checks that it
// reproduces the destination tree.
func (r *Result) Verify() error {
	applied, err := actions.Apply(r.Src, r.Script)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVerification, err)
	}

	if !tree.SubtreeEquals(applied.Root(), r.Dst.Root()) {
		return ErrVerification
	}

	return nil
}

// DiffNodes builds both trees and compares them.
func (e *Engine) DiffNodes(ctx context.Context, src, dst *tree.Node) (*Result, error) {
	srcTree, err := tree.Build(src)
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}

	dstTree, err := tree.Build(dst)
	if err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}

	return e.Diff(ctx, srcTree, dstTree)
}

// Diff matches src against dst and generates the edit script. The context is
// checked between phases; on cancellation the partial work is discarded.
func (e *Engine) Diff(ctx context.Context, src, dst *tree.Tree) (result *Result, err error) {
	ctx, span := e.tracer.Start(ctx, spanDiff, trace.WithAttributes(
		attribute.Int("diff.src.nodes", src.Size()),
		attribute.Int("diff.dst.nodes", dst.Size()),
		attribute.String("diff.strategy", e.cfg.Strategy.String()),
	))

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		span.End()
	}()

	start := time.Now()
	stats := Stats{SrcNodes: src.Size(), DstNodes: dst.Size(), Phases: make(map[string]int64, 3)}

	if e.metrics != nil {
		e.metrics.RecordTrees(ctx, src.Size(), dst.Size())
	}

	store, matched, err := matchers.MatchWith(ctx, src, dst, e.cfg,
		func(ctx context.Context, phase matchers.Phase, run func() (int, error)) error {
			return e.phase(ctx, phaseSpans[phase], string(phase), &stats, run)
		})
	if err != nil {
		return nil, err
	}

	stats.Match = matched

	var script actions.Script

	err = e.phase(ctx, spanGenerate, PhaseGenerate, &stats, func() (int, error) {
		var phaseErr error

		script, phaseErr = actions.Generate(src, dst, store)

		return len(script), phaseErr
	})
	if err != nil {
		return nil, err
	}

	stats.Mappings = store.Size()
	stats.Actions = script.Summarize()
	stats.Duration = time.Since(start)

	result = &Result{Src: src, Dst: dst, Mappings: store, Script: script, Stats: stats}

	if e.verify {
		err = result.Verify()
		if err != nil {
			return nil, err
		}
	}

	e.record(ctx, span, stats)

	return result, nil
}

// phase runs one step under its own span after checking for cancellation.
func (e *Engine) phase(
	ctx context.Context, spanName, phase string, stats *Stats, run func() (int, error),
) error {
	err := ctx.Err()
	if err != nil {
		return fmt.Errorf("before %s: %w", phase, err)
	}

	_, span := e.tracer.Start(ctx, spanName)
	defer span.End()

	start := time.Now()
	count, err := run()
	elapsed := time.Since(start)

	stats.Phases[phase] = elapsed.Nanoseconds()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return fmt.Errorf("%s: %w", phase, err)
	}

	span.SetAttributes(attribute.Int("diff.count", count))

	e.logger.DebugContext(ctx, "diff phase done",
		slog.String("phase", phase),
		slog.Int("count", count),
		slog.Duration("elapsed", elapsed),
	)

	if e.metrics != nil {
		e.metrics.RecordPhase(ctx, phase, elapsed)

		if phase != PhaseGenerate {
			e.metrics.RecordMappings(ctx, phase, count)
		}
	}

	return nil
}

func (e *Engine) record(ctx context.Context, span trace.Span, stats Stats) {
	span.SetAttributes(
		attribute.Int("diff.mappings", stats.Mappings),
		attribute.Int("diff.actions", stats.Actions.Total()),
	)

	if e.metrics != nil {
		e.metrics.RecordActions(ctx, actions.Insert.String(), stats.Actions.Inserts)
		e.metrics.RecordActions(ctx, actions.Delete.String(), stats.Actions.Deletes)
		e.metrics.RecordActions(ctx, actions.Update.String(), stats.Actions.Updates)
		e.metrics.RecordActions(ctx, actions.Move.String(), stats.Actions.Moves)
	}

	e.logger.InfoContext(ctx, "diff complete",
		slog.Int("src_nodes", stats.SrcNodes),
		slog.Int("dst_nodes", stats.DstNodes),
		slog.Int("mappings", stats.Mappings),
		slog.Int("actions", stats.Actions.Total()),
		slog.Duration("elapsed", stats.Duration),
	)
}
