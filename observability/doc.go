// Package observability provides OpenTelemetry tracing and metrics for
// orderedpipe pipelines.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("orderedpipe"))
//	defer tp.Shutdown(ctx)
//
// Metrics:
//
//	cfg := observability.DefaultMeterConfig("orderedpipe")
//	mp, err := observability.InitMeter(ctx, &cfg)
//	defer mp.Shutdown(ctx)
//
//	metrics, err := observability.NewPipelineMetrics(observability.Meter("orderedpipe"))
//	p, err := pipeline.ParallelTransform(src, fn, 4, pipeline.WithMetrics(metrics))
package observability
