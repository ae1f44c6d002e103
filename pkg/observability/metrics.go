package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricRequestsTotal    = "treediff.requests.total"
	metricRequestDuration  = "treediff.request.duration.seconds"
	metricErrorsTotal      = "treediff.errors.total"
	metricInflightRequests = "treediff.inflight.requests"

	metricPhaseDuration = "treediff.diff.phase.duration.seconds"
	metricTreeNodes     = "treediff.diff.tree.nodes"
	metricMappings      = "treediff.diff.mappings.total"
	metricActions       = "treediff.diff.actions.total"

	attrOp     = "op"
	attrStatus = "status"
	attrPhase  = "phase"
	attrSide   = "side"
	attrKind   = "kind"

	// StatusOK and StatusError are the status attribute values.
	StatusOK    = "ok"
	StatusError = "error"
)

// durationBucketBoundaries covers 1ms to 60s: small trees diff in
// microseconds, generated trees of a few hundred thousand nodes take seconds.
var durationBucketBoundaries = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

var sizeBucketBoundaries = []float64{10, 100, 1000, 10_000, 100_000, 1_000_000}

// REDMetrics holds the OTel instruments for Rate, Error, Duration metrics.
type REDMetrics struct {
	requestsTotal    metric.Int64Counter
	requestDuration  metric.Float64Histogram
	errorsTotal      metric.Int64Counter
	inflightRequests metric.Int64UpDownCounter
}

// NewREDMetrics creates RED metric instruments from the given meter.
func NewREDMetrics(mt metric.Meter) (*REDMetrics, error) {
	reqTotal, err := mt.Int64Counter(metricRequestsTotal,
		metric.WithDescription("Total number of requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRequestsTotal, err)
	}

	reqDuration, err := mt.Float64Histogram(metricRequestDuration,
		metric.WithDescription("Request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRequestDuration, err)
	}

	errTotal, err := mt.Int64Counter(metricErrorsTotal,
		metric.WithDescription("Total number of errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricErrorsTotal, err)
	}

	inflight, err := mt.Int64UpDownCounter(metricInflightRequests,
		metric.WithDescription("Number of in-flight requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricInflightRequests, err)
	}

	return &REDMetrics{
		requestsTotal:    reqTotal,
		requestDuration:  reqDuration,
		errorsTotal:      errTotal,
		inflightRequests: inflight,
	}, nil
}

// RecordRequest records a completed request with its operation, status, and duration.
func (rm *REDMetrics) RecordRequest(ctx context.Context, op, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(attrOp, op),
		attribute.String(attrStatus, status),
	)

	rm.requestsTotal.Add(ctx, 1, attrs)
	rm.requestDuration.Record(ctx, duration.Seconds(), attrs)

	if status == StatusError {
		rm.errorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrOp, op)))
	}
}

// TrackInflight increments the in-flight gauge and returns a function to decrement it.
func (rm *REDMetrics) TrackInflight(ctx context.Context, op string) func() {
	attrs := metric.WithAttributes(attribute.String(attrOp, op))
	rm.inflightRequests.Add(ctx, 1, attrs)

	return func() {
		rm.inflightRequests.Add(ctx, -1, attrs)
	}
}

// DiffMetrics holds the instruments recorded by the differencing engine.
type DiffMetrics struct {
	phaseDuration metric.Float64Histogram
	treeNodes     metric.Int64Histogram
	mappings      metric.Int64Counter
	actions       metric.Int64Counter
}

// NewDiffMetrics creates the engine instruments from the given meter.
func NewDiffMetrics(mt metric.Meter) (*DiffMetrics, error) {
	phaseDuration, err := mt.Float64Histogram(metricPhaseDuration,
		metric.WithDescription("Duration of one differencing phase"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricPhaseDuration, err)
	}

	treeNodes, err := mt.Int64Histogram(metricTreeNodes,
		metric.WithDescription("Number of nodes per compared tree"),
		metric.WithUnit("{node}"),
		metric.WithExplicitBucketBoundaries(sizeBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricTreeNodes, err)
	}

	mappings, err := mt.Int64Counter(metricMappings,
		metric.WithDescription("Node pairs mapped, by phase"),
		metric.WithUnit("{pair}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricMappings, err)
	}

	actions, err := mt.Int64Counter(metricActions,
		metric.WithDescription("Edit actions emitted, by kind"),
		metric.WithUnit("{action}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricActions, err)
	}

	return &DiffMetrics{
		phaseDuration: phaseDuration,
		treeNodes:     treeNodes,
		mappings:      mappings,
		actions:       actions,
	}, nil
}

// RecordPhase records the duration of a phase.
func (dm *DiffMetrics) RecordPhase(ctx context.Context, phase string, duration time.Duration) {
	dm.phaseDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String(attrPhase, phase)))
}

// RecordTrees records the sizes of the source and destination trees.
func (dm *DiffMetrics) RecordTrees(ctx context.Context, srcNodes, dstNodes int) {
	dm.treeNodes.Record(ctx, int64(srcNodes), metric.WithAttributes(attribute.String(attrSide, "src")))
	dm.treeNodes.Record(ctx, int64(dstNodes), metric.WithAttributes(attribute.String(attrSide, "dst")))
}

// RecordMappings adds count pairs for a phase.
func (dm *DiffMetrics) RecordMappings(ctx context.Context, phase string, count int) {
	dm.mappings.Add(ctx, int64(count), metric.WithAttributes(attribute.String(attrPhase, phase)))
}

// RecordActions adds count actions of a kind.
func (dm *DiffMetrics) RecordActions(ctx context.Context, kind string, count int) {
	if count == 0 {
		return
	}

	dm.actions.Add(ctx, int64(count), metric.WithAttributes(attribute.String(attrKind, kind)))
}
