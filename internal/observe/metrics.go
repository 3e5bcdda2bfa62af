// Package observe provides observability primitives for mnemo: OpenTelemetry
// metrics with a Prometheus exporter bridge, so the standard /metrics endpoint
// keeps working.
//
// There is no package-level default instance — the composition root creates
// one [Metrics] value and hands it to the layers that record. Tests construct
// their own with an isolated [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all mnemo metrics.
const meterName = "github.com/mnemo-ai/mnemo"

// Metrics holds the OpenTelemetry metric instruments for the memory service.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// OperationDuration tracks remote memory operation latency. Use with
	// attribute.String("operation", ...).
	OperationDuration metric.Float64Histogram

	// Operations counts remote memory operations by operation and status.
	Operations metric.Int64Counter

	// OperationErrors counts failed remote memory operations by operation.
	OperationErrors metric.Int64Counter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// operations that include a model round trip.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.OperationDuration, err = m.Float64Histogram("mnemo.operation.duration",
		metric.WithDescription("Latency of remote memory operations."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Operations, err = m.Int64Counter("mnemo.operations",
		metric.WithDescription("Total remote memory operations by operation and status."),
	); err != nil {
		return nil, err
	}
	if met.OperationErrors, err = m.Int64Counter("mnemo.operation.errors",
		metric.WithDescription("Total failed remote memory operations by operation."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordOperation records one remote operation: its duration, the operation
// counter with a status attribute, and the error counter when err is non-nil.
// Nil receivers are no-ops so callers need no metrics wiring in tests.
func (m *Metrics) RecordOperation(ctx context.Context, operation string, start time.Time, err error) {
	if m == nil {
		return
	}

	status := "ok"
	if err != nil {
		status = "error"
		m.OperationErrors.Add(ctx, 1,
			metric.WithAttributes(attribute.String("operation", operation)),
		)
	}

	m.OperationDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("operation", operation)),
	)
	m.Operations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("status", status),
		),
	)
}
