package pipeline

import (
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/kbukum/orderedpipe/logger"
	"github.com/kbukum/orderedpipe/observability"
)

const defaultName = "ordered"

// Option configures an ordered pipeline.
type Option func(*options)

type options struct {
	name    string
	log     *logger.Logger
	metrics *observability.PipelineMetrics
	tracer  trace.Tracer
}

func applyOptions(opts []Option) options {
	o := options{
		name:   defaultName,
		log:    logger.Nop(),
		tracer: noop.NewTracerProvider().Tracer(""),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithName labels the pipeline in logs, metrics and spans.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets the logger used for lifecycle events at debug level.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMetrics records item and traversal metrics on m.
func WithMetrics(m *observability.PipelineMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracer opens a span per traversal and a child span per item.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}
