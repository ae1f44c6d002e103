package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// instrumentationName names the tracer and meter handed out by Init.
const instrumentationName = "treediff"

// Providers is what a treediff mode needs to report on its work.
type Providers struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger *slog.Logger

	// Shutdown flushes pending spans and metrics. Call it before exit.
	Shutdown func(ctx context.Context) error
}

// InitWithWriter sets up logging to w plus tracing and metrics. Without an
// OTLP endpoint the tracer and meter are no-ops and nothing leaves the
// process; W3C trace context is propagated either way.
func InitWithWriter(cfg Config, w io.Writer) (Providers, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger := NewLogger(cfg, w)

	if cfg.OTLPEndpoint == "" {
		return Providers{
			Tracer:   nooptrace.NewTracerProvider().Tracer(instrumentationName),
			Meter:    noopmetric.NewMeterProvider().Meter(instrumentationName),
			Logger:   logger,
			Shutdown: func(context.Context) error { return nil },
		}, nil
	}

	tp, mp, err := newExportingProviders(context.Background(), cfg, w)
	if err != nil {
		return Providers{}, err
	}

	var tracerProvider trace.TracerProvider = tp
	if !cfg.TraceVerbose {
		tracerProvider = NewFilteringTracerProvider(tp)
	}

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(mp)

	return Providers{
		Tracer: tracerProvider.Tracer(instrumentationName),
		Meter:  mp.Meter(instrumentationName),
		Logger: logger,
		Shutdown: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, cfg.shutdownTimeout())
			defer cancel()

			return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
		},
	}, nil
}

// newExportingProviders wires OTLP gRPC span and metric exporters behind SDK
// providers sharing one resource.
func newExportingProviders(
	ctx context.Context, cfg Config, w io.Writer,
) (*sdktrace.TracerProvider, *sdkmetric.MeterProvider, error) {
	res, err := resource.New(ctx, resource.WithAttributes(resourceAttributes(cfg)...))
	if err != nil {
		return nil, nil, fmt.Errorf("build otel resource: %w", err)
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}

	if cfg.OTLPInsecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	if len(cfg.OTLPHeaders) > 0 {
		traceOpts = append(traceOpts, otlptracegrpc.WithHeaders(cfg.OTLPHeaders))
		metricOpts = append(metricOpts, otlpmetricgrpc.WithHeaders(cfg.OTLPHeaders))
	}

	spans, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create trace exporter: %w", err)
	}

	metrics, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, nil, errors.Join(fmt.Errorf("create metric exporter: %w", err), spans.Shutdown(ctx))
	}

	// Dropped attributes are only worth reporting while debugging traces.
	var filterLogger *slog.Logger
	if cfg.DebugTrace {
		filterLogger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(NewAttributeFilter(sdktrace.NewBatchSpanProcessor(spans), filterLogger)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(cfg.sampler()),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metrics)),
		sdkmetric.WithResource(res),
	)

	return tp, mp, nil
}

func resourceAttributes(cfg Config) []attribute.KeyValue {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}

	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}

	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}

	if cfg.Mode != "" {
		attrs = append(attrs, attribute.String("app.mode", string(cfg.Mode)))
	}

	return attrs
}

// ParseOTLPHeaders reads "key=value,key=value" into a header map. Entries
// without "=" are skipped; nil means no usable header.
func ParseOTLPHeaders(raw string) map[string]string {
	var headers map[string]string

	for entry := range strings.SplitSeq(raw, ",") {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}

		if headers == nil {
			headers = make(map[string]string)
		}

		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	return headers
}
