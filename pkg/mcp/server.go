// Package mcp implements a Model Context Protocol server exposing tree
// differencing and tree parsing as MCP tools over stdio transport.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/treediff/internal/cache"
	"github.com/Sumatoshi-tech/treediff/pkg/diff"
	"github.com/Sumatoshi-tech/treediff/pkg/matchers"
	"github.com/Sumatoshi-tech/treediff/pkg/observability"
)

const (
	// serverName is the MCP server implementation name.
	serverName = "treediff"

	// toolCount is the expected number of registered tools.
	toolCount = 2
)

// ServerDeps holds injectable dependencies for the MCP server.
// Zero-value fields use production defaults.
type ServerDeps struct {
	// Logger is an optional structured logger. Nil uses slog default.
	Logger *slog.Logger

	// Metrics is an optional RED metrics recorder. Nil disables per-tool metrics.
	Metrics *observability.REDMetrics

	// DiffMetrics is an optional engine metrics recorder.
	DiffMetrics *observability.DiffMetrics

	// Tracer is an optional OTel tracer for per-tool-call spans. Nil disables tracing.
	Tracer trace.Tracer

	// Matcher configures the diff engine. The zero value uses matchers.DefaultConfig.
	Matcher *matchers.Config

	// MaxInputBytes limits each document passed to a tool. Zero uses MaxInputBytes.
	MaxInputBytes uint64

	// Version is reported to clients.
	Version string

	// Cache reuses parsed documents across calls. Nil parses every time.
	Cache *cache.TreeCache
}

// Server wraps the MCP SDK server with the treediff tool registrations.
type Server struct {
	inner    *mcpsdk.Server
	engine   *diff.Engine
	mu       sync.RWMutex
	tools    []string
	metrics  *observability.REDMetrics
	tracer   trace.Tracer
	trees    *cache.TreeCache
	maxInput uint64
}

// NewServer creates a new MCP server with every tool registered.
func NewServer(deps ServerDeps) (*Server, error) {
	opts := &mcpsdk.ServerOptions{}
	if deps.Logger != nil {
		opts.Logger = deps.Logger
	}

	version := deps.Version
	if version == "" {
		version = "dev"
	}

	matcherCfg := matchers.DefaultConfig()
	if deps.Matcher != nil {
		matcherCfg = *deps.Matcher
	}

	engineOpts := []diff.Option{diff.WithMetrics(deps.DiffMetrics)}
	if deps.Logger != nil {
		engineOpts = append(engineOpts, diff.WithLogger(deps.Logger))
	}

	if deps.Tracer != nil {
		engineOpts = append(engineOpts, diff.WithTracer(deps.Tracer))
	}

	engine, err := diff.New(matcherCfg, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("mcp server: %w", err)
	}

	maxInput := deps.MaxInputBytes
	if maxInput == 0 {
		maxInput = MaxInputBytes
	}

	srv := &Server{
		inner: mcpsdk.NewServer(&mcpsdk.Implementation{
			Name:    serverName,
			Version: version,
		}, opts),
		engine:   engine,
		tools:    make([]string, 0, toolCount),
		metrics:  deps.Metrics,
		tracer:   deps.Tracer,
		trees:    deps.Cache,
		maxInput: maxInput,
	}

	srv.registerTools()

	return srv, nil
}

// ListToolNames returns the sorted names of all registered tools.
func (s *Server) ListToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.tools))
	copy(names, s.tools)
	sort.Strings(names)

	return names
}

// Run starts the MCP server on stdio transport. It blocks until the context
// is canceled or the connection closes.
func (s *Server) Run(ctx context.Context) error {
	return s.RunWithTransport(ctx, &mcpsdk.StdioTransport{})
}

// RunWithTransport starts the MCP server on the given transport. It blocks
// until the context is canceled or the connection closes.
func (s *Server) RunWithTransport(ctx context.Context, transport mcpsdk.Transport) error {
	err := s.inner.Run(ctx, transport)
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameDiff,
		Description: diffToolDescription,
	}, withMetrics(s.metrics, ToolNameDiff, withTracing(s.tracer, ToolNameDiff, s.handleDiff)))

	s.trackTool(ToolNameDiff)

	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        ToolNameParse,
		Description: parseToolDescription,
	}, withMetrics(s.metrics, ToolNameParse, withTracing(s.tracer, ToolNameParse, s.handleParse)))

	s.trackTool(ToolNameParse)
}

// mcpSpanPrefix is the prefix for MCP tool span names.
const mcpSpanPrefix = "mcp."

// traceIDMetaKey is the metadata key for trace_id in MCP tool responses.
const traceIDMetaKey = "trace_id"

// withTracing wraps an MCP tool handler to create an OTel span per invocation
// and include trace_id in the response content when sampled.
func withTracing[Input any](
	tracer trace.Tracer,
	toolName string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if tracer == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		ctx, span := tracer.Start(ctx, mcpSpanPrefix+toolName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("mcp.tool", toolName)),
		)
		defer span.End()

		result, output, err := handler(ctx, req, input)

		sc := span.SpanContext()
		if sc.IsSampled() && result != nil {
			traceContent := &mcpsdk.TextContent{Text: fmt.Sprintf("%s=%s", traceIDMetaKey, sc.TraceID().String())}
			result.Content = append(result.Content, traceContent)
		}

		return result, output, err
	}
}

// withMetrics wraps an MCP tool handler to record RED metrics per invocation.
func withMetrics[Input any](
	metrics *observability.REDMetrics,
	toolName string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if metrics == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		start := time.Now()

		decInflight := metrics.TrackInflight(ctx, mcpSpanPrefix+toolName)
		defer decInflight()

		result, output, err := handler(ctx, req, input)

		status := observability.StatusOK
		if err != nil || (result != nil && result.IsError) {
			status = observability.StatusError
		}

		metrics.RecordRequest(ctx, mcpSpanPrefix+toolName, status, time.Since(start))

		return result, output, err
	}
}

func (s *Server) trackTool(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tools = append(s.tools, name)
}
