package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/Sumatoshi-tech/treediff/internal/cache"
	"github.com/Sumatoshi-tech/treediff/pkg/config"
	"github.com/Sumatoshi-tech/treediff/pkg/diff"
	"github.com/Sumatoshi-tech/treediff/pkg/observability"
	"github.com/Sumatoshi-tech/treediff/pkg/render"
	"github.com/Sumatoshi-tech/treediff/pkg/tree"
	"github.com/Sumatoshi-tech/treediff/pkg/treeio"
	"github.com/Sumatoshi-tech/treediff/pkg/version"
)

// requestOverhead is the body allowance on top of the two documents.
const requestOverhead = 64 << 10

var (
	// errEmptyDocument is returned for a request without a document.
	errEmptyDocument = errors.New("document is required and must not be empty")
	// errBusy reports that all concurrent diff slots are in use.
	errBusy = errors.New("all diff slots are busy")
)

// DiffRequest is the body of POST /api/diff.
type DiffRequest struct {
	Src      string `json:"src"`
	Dst      string `json:"dst"`
	SrcName  string `json:"src_name,omitempty"`
	DstName  string `json:"dst_name,omitempty"`
	Format   string `json:"format,omitempty"`
	Language string `json:"language,omitempty"`
	// Output adds a rendering in one of the render formats.
	Output string `json:"output,omitempty"`
}

// DiffResponse is the body returned by POST /api/diff.
type DiffResponse struct {
	Result   render.ResultJSON `json:"result"`
	Rendered string            `json:"rendered,omitempty"`
}

// ParseRequest is the body of POST /api/parse.
type ParseRequest struct {
	Content  string `json:"content"`
	Name     string `json:"name,omitempty"`
	Format   string `json:"format,omitempty"`
	Language string `json:"language,omitempty"`
}

// ParseResponse is the body returned by POST /api/parse.
type ParseResponse struct {
	Nodes  []tree.Record `json:"nodes"`
	Size   int           `json:"size"`
	Height int           `json:"height"`
	Lisp   string        `json:"lisp"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// apiServer serves the HTTP API over one shared engine.
type apiServer struct {
	engine      *diff.Engine
	logger      *slog.Logger
	sem         *semaphore.Weighted
	trees       *cache.TreeCache // nil when disabled
	loadOpts    treeio.Options
	maxMappings int
}

func serverCmd(opts *rootOptions) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP API server",
		Long: `Serve tree differencing over HTTP.

Endpoints:
  POST /api/diff    compute the edit script between two documents
  POST /api/parse   parse a document or source file
  GET  /healthz     liveness probe
  GET  /readyz      readiness probe, 503 while every diff slot is busy
  GET  /metrics     Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}

			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			err = cfg.Validate()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return startServer(ctx, cmd, opts, cfg)
		},
	}

	cmd.Flags().StringVar(&host, "host", config.DefaultServerHost, "address to listen on")
	cmd.Flags().IntVarP(&port, "port", "p", config.DefaultServerPort, "port to listen on")

	return cmd
}

func startServer(ctx context.Context, cmd *cobra.Command, opts *rootOptions, cfg *config.Config) error {
	providers, err := opts.initObservability(cmd, cfg, observability.ModeServe)
	if err != nil {
		return err
	}

	defer shutdownObservability(providers)

	metricsHandler, meterProvider, err := observability.PrometheusHandler()
	if err != nil {
		return err
	}

	defer func() {
		shutdownErr := meterProvider.Shutdown(context.Background())
		if shutdownErr != nil {
			providers.Logger.Warn("metrics shutdown failed", "error", shutdownErr)
		}
	}()

	served := providers
	served.Meter = meterProvider.Meter(binaryName)

	red, err := observability.NewREDMetrics(served.Meter)
	if err != nil {
		return fmt.Errorf("create request metrics: %w", err)
	}

	api, err := newAPIServer(cfg, served)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      newServerMux(api, providers.Tracer, red, metricsHandler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)

	go func() {
		providers.Logger.Info("treediff server starting", "addr", "http://"+server.Addr)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	providers.Logger.Info("treediff server stopping")

	if api.trees != nil {
		stats := api.trees.Stats()
		providers.Logger.Debug("tree cache", "entries", stats.Entries, "hit_rate", stats.HitRate())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()

	err = server.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}

func newAPIServer(cfg *config.Config, providers observability.Providers) (*apiServer, error) {
	engine, err := newEngine(cfg, providers)
	if err != nil {
		return nil, err
	}

	loadOpts, err := cfg.LoadOptions()
	if err != nil {
		return nil, err
	}

	trees, err := newTreeCache(cfg)
	if err != nil {
		return nil, err
	}

	return &apiServer{
		engine:      engine,
		logger:      providers.Logger,
		sem:         semaphore.NewWeighted(int64(cfg.Server.MaxConcurrent)),
		trees:       trees,
		loadOpts:    loadOpts,
		maxMappings: cfg.Output.MaxMappings,
	}, nil
}

// newServerMux routes the API. red may be nil.
func newServerMux(api *apiServer, tracer trace.Tracer, red *observability.REDMetrics, metrics http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/diff", api.handleDiff)
	mux.HandleFunc("POST /api/parse", api.handleParse)
	mux.Handle("GET /healthz", observability.HealthHandler(version.Version))
	mux.Handle("GET /readyz", observability.ReadyHandler(api.ready))
	mux.Handle("GET /metrics", metrics)

	return observability.HTTPMiddleware(tracer, red, mux)
}

// ready fails while every diff slot is taken.
func (s *apiServer) ready(context.Context) error {
	if !s.sem.TryAcquire(1) {
		return errBusy
	}

	s.sem.Release(1)

	return nil
}

func (s *apiServer) handleDiff(w http.ResponseWriter, r *http.Request) {
	var req DiffRequest

	if !s.decode(w, r, &req) {
		return
	}

	output := render.Format("")

	if req.Output != "" {
		parsed, err := render.ParseFormat(req.Output)
		if err != nil {
			s.fail(w, r, err)

			return
		}

		output = parsed
	}

	src, err := s.load(req.SrcName, req.Src, req.Format, req.Language)
	if err != nil {
		s.fail(w, r, fmt.Errorf("src: %w", err))

		return
	}

	dst, err := s.load(req.DstName, req.Dst, req.Format, req.Language)
	if err != nil {
		s.fail(w, r, fmt.Errorf("dst: %w", err))

		return
	}

	err = s.sem.Acquire(r.Context(), 1)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	result, err := s.engine.Diff(r.Context(), src, dst)

	s.sem.Release(1)

	if err != nil {
		s.fail(w, r, err)

		return
	}

	resp := DiffResponse{Result: render.NewResultJSON(result)}

	if output != "" {
		var buf bytes.Buffer

		err = render.Render(&buf, result, output, render.Options{MaxMappings: s.maxMappings})
		if err != nil {
			s.fail(w, r, err)

			return
		}

		resp.Rendered = buf.String()
	}

	writeJSON(r.Context(), w, http.StatusOK, resp)
}

func (s *apiServer) handleParse(w http.ResponseWriter, r *http.Request) {
	var req ParseRequest

	if !s.decode(w, r, &req) {
		return
	}

	parsed, err := s.load(req.Name, req.Content, req.Format, req.Language)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	writeJSON(r.Context(), w, http.StatusOK, ParseResponse{
		Nodes:  parsed.Records(),
		Size:   parsed.Size(),
		Height: parsed.Height(),
		Lisp:   treeio.ToLisp(parsed.Root()),
	})
}

// decode reads a JSON body bounded by the input limit.
func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if limit := s.loadOpts.MaxInputSize; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, int64(2*limit+requestOverhead)) //nolint:gosec // bounded config value
	}

	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(w, r, fmt.Errorf("%w: request body over %d bytes", treeio.ErrInputTooLarge, tooLarge.Limit))

			return false
		}

		writeJSON(r.Context(), w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})

		return false
	}

	return true
}

func (s *apiServer) load(name, content, format, language string) (*tree.Tree, error) {
	if content == "" {
		return nil, errEmptyDocument
	}

	opts := s.loadOpts

	if format != "" {
		parsed, err := treeio.ParseFormat(format)
		if err != nil {
			return nil, err
		}

		opts.Format = parsed
	}

	if language != "" {
		opts.Language = language
	}

	if s.trees != nil {
		return s.trees.Load(name, []byte(content), opts)
	}

	return treeio.Load(name, []byte(content), opts)
}

// newTreeCache builds the parsed tree cache, or nil when server.cache_size is 0.
func newTreeCache(cfg *config.Config) (*cache.TreeCache, error) {
	size, err := cfg.CacheBytes()
	if err != nil || size == 0 {
		return nil, err
	}

	return cache.New(int64(size)), nil //nolint:gosec // parsed size fits in int64
}

func (s *apiServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}

	writeJSON(r.Context(), w, status, errorResponse{Error: err.Error()})
}

// statusFor maps an error to an HTTP status: input problems are the client's.
func statusFor(err error) int {
	switch {
	case errors.Is(err, treeio.ErrInputTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errEmptyDocument),
		errors.Is(err, treeio.ErrUnsupportedFormat),
		errors.Is(err, treeio.ErrSchemaViolation),
		errors.Is(err, treeio.ErrSyntax),
		errors.Is(err, treeio.ErrUnknownLanguage),
		errors.Is(err, tree.ErrMalformedTree),
		errors.Is(err, render.ErrUnknownFormat):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes the given value as JSON and writes it with status.
func writeJSON(ctx context.Context, w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	encodeErr := json.NewEncoder(w).Encode(value)
	if encodeErr != nil {
		slog.Default().ErrorContext(ctx, "failed to encode JSON response", "error", encodeErr)
	}
}
