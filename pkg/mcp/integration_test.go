package mcp_test

import (
	"context"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/treediff/internal/cache"
	"github.com/Sumatoshi-tech/treediff/pkg/matchers"
	"github.com/Sumatoshi-tech/treediff/pkg/mcp"
	"github.com/Sumatoshi-tech/treediff/pkg/observability"
)

// connect starts srv on an in-memory transport and returns a client session.
func connect(t *testing.T, srv *mcp.Server) *mcpsdk.ClientSession {
	t.Helper()

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	serverDone := make(chan error, 1)

	go func() {
		serverDone <- srv.RunWithTransport(ctx, serverTransport)
	}()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = session.Close()

		cancel()
		<-serverDone
	})

	return session
}

func newServer(t *testing.T, deps mcp.ServerDeps) *mcp.Server {
	t.Helper()

	srv, err := mcp.NewServer(deps)
	require.NoError(t, err)

	return srv
}

func text(t *testing.T, result *mcpsdk.CallToolResult) string {
	t.Helper()

	require.NotEmpty(t, result.Content)

	content, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok)

	return content.Text
}

func TestMCPServer_ToolsList(t *testing.T) {
	t.Parallel()

	srv := newServer(t, mcp.ServerDeps{})
	assert.Equal(t, []string{mcp.ToolNameDiff, mcp.ToolNameParse}, srv.ListToolNames())

	session := connect(t, srv)

	toolsResult, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	toolNames := make([]string, 0, len(toolsResult.Tools))
	for _, tool := range toolsResult.Tools {
		toolNames = append(toolNames, tool.Name)
		assert.NotNil(t, tool.InputSchema, "tool %s missing input schema", tool.Name)
	}

	assert.ElementsMatch(t, []string{"tree_diff", "tree_parse"}, toolNames)
}

func TestMCPServer_CallDiff(t *testing.T) {
	t.Parallel()

	session := connect(t, newServer(t, mcp.ServerDeps{}))

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name: mcp.ToolNameDiff,
		Arguments: map[string]any{
			"src": `(Root (If (Then (Print "a"))))`,
			"dst": `(Root (If (Then (Print "b"))))`,
		},
	})
	require.NoError(t, err)
	require.False(t, result.IsError, text(t, result))

	assert.Equal(t, "Number of actions: 1\n  update src:3 Print(a) to \"b\"\n", text(t, result))
	assert.NotNil(t, result.StructuredContent)
}

func TestMCPServer_CallDiff_Summary(t *testing.T) {
	t.Parallel()

	cfg := matchers.DefaultConfig()
	cfg.Strategy = matchers.TopDownOnly

	session := connect(t, newServer(t, mcp.ServerDeps{Matcher: &cfg}))

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name: mcp.ToolNameDiff,
		Arguments: map[string]any{
			"src":    `{"type": "Root", "children": [{"type": "Leaf", "label": "a"}]}`,
			"dst":    `{"type": "Root", "children": [{"type": "Leaf", "label": "b"}]}`,
			"format": "json",
			"output": "summary",
		},
	})
	require.NoError(t, err)
	require.False(t, result.IsError, text(t, result))

	assert.Contains(t, text(t, result), "(insert 2, delete 2, update 0, move 0)")
}

func TestMCPServer_CallDiff_Errors(t *testing.T) {
	t.Parallel()

	session := connect(t, newServer(t, mcp.ServerDeps{MaxInputBytes: 16}))

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"empty src", map[string]any{"src": "", "dst": "(A)"}, "src: document parameter is required"},
		{"bad dst", map[string]any{"src": "(A)", "dst": "(A"}, "dst: syntax error"},
		{"too large", map[string]any{"src": "(A)", "dst": "(A (B) (C) (D) (E))"}, "input too large"},
		{"bad output", map[string]any{"src": "(A)", "dst": "(A)", "output": "html"}, "unknown output format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
				Name:      mcp.ToolNameDiff,
				Arguments: tt.args,
			})
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, text(t, result), tt.want)
		})
	}
}

func TestMCPServer_CallParse(t *testing.T) {
	t.Parallel()

	session := connect(t, newServer(t, mcp.ServerDeps{}))

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name: mcp.ToolNameParse,
		Arguments: map[string]any{
			"content": "type: Root\nchildren:\n  - type: A\n    label: x\n",
			"name":    "tree.yaml",
		},
	})
	require.NoError(t, err)
	require.False(t, result.IsError, text(t, result))

	assert.Equal(t, "(Root\n  (A \"x\"))\n", text(t, result))
}

func TestMCPServer_TracingAndMetrics(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	reader := sdkmetric.NewManualReader()

	red, err := observability.NewREDMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
	require.NoError(t, err)

	session := connect(t, newServer(t, mcp.ServerDeps{Tracer: tp.Tracer("test"), Metrics: red}))

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      mcp.ToolNameParse,
		Arguments: map[string]any{"content": "(A (B))"},
	})
	require.NoError(t, err)
	require.False(t, result.IsError)

	require.Len(t, result.Content, 2)
	assert.Contains(t, result.Content[1].(*mcpsdk.TextContent).Text, "trace_id=")

	names := make([]string, 0)
	for _, span := range exporter.GetSpans() {
		names = append(names, span.Name)
	}

	assert.Contains(t, names, "mcp.tree_parse")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := false

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name == "treediff.requests.total" {
				found = true
			}
		}
	}

	assert.True(t, found)
}

func TestMCPServer_CacheReusesDocuments(t *testing.T) {
	t.Parallel()

	trees := cache.New(0)
	session := connect(t, newServer(t, mcp.ServerDeps{Cache: trees}))

	for range 2 {
		result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
			Name: mcp.ToolNameDiff,
			Arguments: map[string]any{
				"src": `(Root (A) (B))`,
				"dst": `(Root (B) (A))`,
			},
		})
		require.NoError(t, err)
		require.False(t, result.IsError, text(t, result))
	}

	stats := trees.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(2), stats.Misses)
}
