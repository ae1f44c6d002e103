package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/treediff/pkg/actions"
	"github.com/Sumatoshi-tech/treediff/pkg/config"
	"github.com/Sumatoshi-tech/treediff/pkg/observability"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *httptest.Server {
	t.Helper()

	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}

	require.NoError(t, cfg.Validate())

	metricsHandler, meterProvider, err := observability.PrometheusHandler()
	require.NoError(t, err)

	t.Cleanup(func() { _ = meterProvider.Shutdown(t.Context()) })

	meter := meterProvider.Meter("test")

	red, err := observability.NewREDMetrics(meter)
	require.NoError(t, err)

	api, err := newAPIServer(cfg, observability.Providers{
		Tracer: noop.NewTracerProvider().Tracer("test"),
		Meter:  meter,
		Logger: slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)

	srv := httptest.NewServer(newServerMux(api, noop.NewTracerProvider().Tracer("test"), red, metricsHandler))
	t.Cleanup(srv.Close)

	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(payload)) //nolint:noctx // test helper
	require.NoError(t, err)

	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func TestServer_Diff(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/api/diff", DiffRequest{Src: srcLisp, Dst: dstLisp, Output: "text"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body DiffResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	require.Len(t, body.Result.Actions, 1)
	assert.Equal(t, actions.Update, body.Result.Actions[0].Kind)
	assert.Equal(t, "b", body.Result.Actions[0].Label)
	assert.Len(t, body.Result.Mappings, 4)
	assert.Equal(t, 1, body.Result.Stats.Actions.Updates)
	assert.Equal(t, "Number of actions: 1\n  update src:3 Print(a) to \"b\"\n", body.Rendered)
}

func TestServer_DiffIdentical(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/api/diff", DiffRequest{
		Src:    `{"type": "Root", "children": [{"type": "A"}]}`,
		Dst:    "type: Root\nchildren:\n  - type: A\n",
		Format: "auto",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body DiffResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.Empty(t, body.Result.Actions)
	assert.Empty(t, body.Rendered)
}

func TestServer_DiffErrors(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func(cfg *config.Config) { cfg.Input.MaxInputSize = "32B" })

	tests := []struct {
		name   string
		req    DiffRequest
		status int
		want   string
	}{
		{"empty src", DiffRequest{Dst: "(A)"}, http.StatusBadRequest, "src: document is required"},
		{"syntax", DiffRequest{Src: "(A)", Dst: "(A"}, http.StatusBadRequest, "dst: syntax error"},
		{"schema", DiffRequest{Src: `{"label": "x"}`, Dst: "(A)"}, http.StatusBadRequest, "src:"},
		{"format", DiffRequest{Src: "(A)", Dst: "(A)", Format: "xml"}, http.StatusBadRequest, "unsupported input format"},
		{"output", DiffRequest{Src: "(A)", Dst: "(A)", Output: "html"}, http.StatusBadRequest, "unknown"},
		{
			"too large",
			DiffRequest{Src: "(A)", Dst: "(A (B) (C) (D) (E) (F) (G) (H) (I) (J))"},
			http.StatusRequestEntityTooLarge,
			"input too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp := postJSON(t, srv.URL+"/api/diff", tt.req)
			assert.Equal(t, tt.status, resp.StatusCode)

			var body errorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Contains(t, body.Error, tt.want)
		})
	}
}

func TestServer_InvalidBody(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)

	resp, err := http.Post(srv.URL+"/api/diff", "application/json", bytes.NewBufferString("{not json")) //nolint:noctx // test
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/diff") //nolint:noctx // test
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_Parse(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)

	resp := postJSON(t, srv.URL+"/api/parse", ParseRequest{Content: `(Root (A "x") (B))`})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body ParseResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.Equal(t, 3, body.Size)
	assert.Equal(t, 2, body.Height)
	require.Len(t, body.Nodes, 3)
	assert.Equal(t, "x", body.Nodes[1].Label)
	assert.Equal(t, "(Root\n  (A \"x\")\n  (B))", body.Lisp)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/healthz") //nolint:noctx // test
	require.NoError(t, err)

	var health observability.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, "ok", health.Status)

	postJSON(t, srv.URL+"/api/diff", DiffRequest{Src: srcLisp, Dst: dstLisp})

	resp, err = http.Get(srv.URL + "/metrics") //nolint:noctx // test
	require.NoError(t, err)

	defer resp.Body.Close()

	metrics, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(metrics), "treediff_inflight_requests")
	assert.Contains(t, string(metrics), "treediff_diff_mappings")
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusBadRequest, statusFor(errEmptyDocument))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.ErrUnexpectedEOF))
}

func TestNewAPIServer_TreeCache(t *testing.T) {
	t.Parallel()

	providers := observability.Providers{
		Tracer: noop.NewTracerProvider().Tracer("test"),
		Meter:  noopmetric.NewMeterProvider().Meter("test"),
		Logger: slog.New(slog.DiscardHandler),
	}

	api, err := newAPIServer(config.Default(), providers)
	require.NoError(t, err)
	require.NotNil(t, api.trees)

	first, err := api.load("", srcLisp, "", "")
	require.NoError(t, err)

	second, err := api.load("", srcLisp, "lisp", "")
	require.NoError(t, err)
	assert.NotSame(t, first, second)

	again, err := api.load("", srcLisp, "", "")
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.Equal(t, int64(1), api.trees.Stats().Hits)

	disabled := config.Default()
	disabled.Server.CacheSize = "0"

	api, err = newAPIServer(disabled, providers)
	require.NoError(t, err)
	assert.Nil(t, api.trees)
}

func TestServer_Ready(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, func(cfg *config.Config) { cfg.Server.MaxConcurrent = 1 })

	resp, err := http.Get(srv.URL + "/readyz") //nolint:noctx // test
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPIServer_ReadyWhenBusy(t *testing.T) {
	t.Parallel()

	api, err := newAPIServer(config.Default(), observability.Providers{
		Tracer: noop.NewTracerProvider().Tracer("test"),
		Meter:  noopmetric.NewMeterProvider().Meter("test"),
		Logger: slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)

	require.NoError(t, api.ready(t.Context()))

	require.NoError(t, api.sem.Acquire(t.Context(), int64(config.DefaultMaxConcurrent)))
	require.ErrorIs(t, api.ready(t.Context()), errBusy)

	api.sem.Release(int64(config.DefaultMaxConcurrent))
	require.NoError(t, api.ready(t.Context()))
}
