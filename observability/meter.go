package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/orderedpipe/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name of the service.
	ServiceName string
	// ServiceVersion is the version of the service.
	ServiceVersion string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	// Insecure allows insecure connections (for development).
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metric instrument names.
const (
	MetricItemsSubmitted = "pipeline.items.submitted"
	MetricItemsCompleted = "pipeline.items.completed"
	MetricItemsFailed    = "pipeline.items.failed"
	MetricInflight       = "pipeline.inflight"
	MetricItemDuration   = "pipeline.item.duration"
	MetricTraversals     = "pipeline.traversals"
)

// PipelineMetrics holds the instruments recorded by ordered pipelines.
// A nil *PipelineMetrics records nothing.
type PipelineMetrics struct {
	submitted  metric.Int64Counter
	completed  metric.Int64Counter
	failed     metric.Int64Counter
	inflight   metric.Int64UpDownCounter
	duration   metric.Float64Histogram
	traversals metric.Int64Counter
}

// NewPipelineMetrics creates metric instruments on the given meter.
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	submitted, err := meter.Int64Counter(MetricItemsSubmitted,
		metric.WithDescription("Work items submitted to the executor"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricItemsSubmitted, err)
	}

	completed, err := meter.Int64Counter(MetricItemsCompleted,
		metric.WithDescription("Work items whose computation finished, successfully or not"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricItemsCompleted, err)
	}

	failed, err := meter.Int64Counter(MetricItemsFailed,
		metric.WithDescription("Work items whose computation returned an error or panicked"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricItemsFailed, err)
	}

	inflight, err := meter.Int64UpDownCounter(MetricInflight,
		metric.WithDescription("Work items submitted but not yet finished"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s gauge: %w", MetricInflight, err)
	}

	duration, err := meter.Float64Histogram(MetricItemDuration,
		metric.WithDescription("Duration of a single item computation in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s histogram: %w", MetricItemDuration, err)
	}

	traversals, err := meter.Int64Counter(MetricTraversals,
		metric.WithDescription("Traversals started, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricTraversals, err)
	}

	return &PipelineMetrics{
		submitted:  submitted,
		completed:  completed,
		failed:     failed,
		inflight:   inflight,
		duration:   duration,
		traversals: traversals,
	}, nil
}

// RecordSubmit records a work item handed to the executor.
func (m *PipelineMetrics) RecordSubmit(ctx context.Context, pipeline string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrPipeline, pipeline))
	m.submitted.Add(ctx, 1, attrs)
	m.inflight.Add(ctx, 1, attrs)
}

// RecordComplete records a finished work item.
func (m *PipelineMetrics) RecordComplete(ctx context.Context, pipeline string, d time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrPipeline, pipeline))
	m.inflight.Add(ctx, -1, attrs)
	m.completed.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
	if err != nil {
		m.failed.Add(ctx, 1, attrs)
	}
}

// RecordTraversal records the end of a traversal with its outcome
// ("completed", "closed", "interrupted").
func (m *PipelineMetrics) RecordTraversal(ctx context.Context, pipeline, outcome string) {
	if m == nil {
		return
	}
	m.traversals.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrPipeline, pipeline),
		attribute.String(AttrOutcome, outcome),
	))
}
