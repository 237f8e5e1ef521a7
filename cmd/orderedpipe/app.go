package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/orderedpipe/config"
	"github.com/kbukum/orderedpipe/executor"
	"github.com/kbukum/orderedpipe/logger"
	"github.com/kbukum/orderedpipe/observability"
	"github.com/kbukum/orderedpipe/pipeline"
)

const shutdownTimeout = 5 * time.Second

// app holds what every subcommand shares: configuration, logger, the
// optional shared executor and telemetry.
type app struct {
	cfg *config.Config
	log *logger.Logger

	// exec is nil for the owned executor kind.
	exec executor.Executor

	metrics *observability.PipelineMetrics
	tracer  trace.Tracer
	closers []func(context.Context) error
}

func (a *app) setup(cmd *cobra.Command, flag *rootFlags) error {
	opts := []config.LoaderOption{}
	if flag.configFile != "" {
		opts = append(opts, config.WithConfigFile(flag.configFile))
	}
	cfg := config.Default()
	if err := config.LoadConfig(config.ServiceName, &cfg, opts...); err != nil {
		return err
	}
	applyFlags(cmd, flag, &cfg)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = &cfg

	a.log = logger.NewWithWriter(&cfg.Logging, cfg.Name, cmd.ErrOrStderr())
	logger.SetGlobalLogger(a.log)

	if cfg.Telemetry.Enabled {
		if err := a.startTelemetry(cmd.Context()); err != nil {
			return err
		}
	}

	a.exec = newExecutor(cfg.Pipeline, a.log)
	a.log.Debug("configured", logger.Fields(
		logger.FieldFactor, cfg.Pipeline.Factor,
		"executor", cfg.Pipeline.Executor,
		"telemetry", cfg.Telemetry.Enabled,
	))
	return nil
}

// applyFlags copies explicitly set flags over the loaded configuration.
func applyFlags(cmd *cobra.Command, flag *rootFlags, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed(factorFlagName) {
		cfg.Pipeline.Factor = flag.factor
	}
	if flags.Changed(workersFlagName) {
		cfg.Pipeline.Workers = flag.workers
	}
	if flags.Changed(executorFlagName) {
		cfg.Pipeline.Executor = flag.executor
	}
	if flags.Changed(logLevelFlagName) {
		cfg.Logging.Level = flag.logLevel
	}
}

// newExecutor builds the shared executor for the configured kind. The owned
// kind returns nil: each traversal then creates its own pool.
func newExecutor(cfg config.PipelineConfig, log *logger.Logger) executor.Executor {
	switch cfg.Executor {
	case config.ExecutorPool:
		return executor.NewPool(cfg.PoolSize(), executor.WithPoolLogger(log))
	case config.ExecutorLimited:
		return executor.NewLimited(cfg.PoolSize(), executor.WithLimitedLogger(log))
	default:
		return nil
	}
}

func (a *app) startTelemetry(ctx context.Context) error {
	tp, err := observability.InitTracer(ctx, a.cfg.TracerConfig())
	if err != nil {
		return fmt.Errorf("starting tracer: %w", err)
	}
	a.closers = append(a.closers, tp.Shutdown)
	a.tracer = tp.Tracer(appName)

	mc := a.cfg.MeterConfig()
	mp, err := observability.InitMeter(ctx, &mc)
	if err != nil {
		return fmt.Errorf("starting meter: %w", err)
	}
	a.closers = append(a.closers, mp.Shutdown)
	a.metrics, err = observability.NewPipelineMetrics(mp.Meter(appName))
	return err
}

// run executes fn and then releases the shared executor and flushes telemetry.
func (a *app) run(ctx context.Context, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	if err != nil {
		a.log.Debug("command failed", logger.ErrorFields("run", err))
	} else {
		a.log.Debug("command finished", logger.DurationFields("run", time.Since(start)))
	}
	return errors.Join(err, a.teardown(ctx))
}

func (a *app) teardown(ctx context.Context) error {
	if s, ok := a.exec.(executor.Shutdowner); ok {
		s.Shutdown()
	}
	if w, ok := a.exec.(interface{ Wait() }); ok {
		w.Wait()
	}
	a.exec = nil
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c(ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) options(name string) []pipeline.Option {
	return []pipeline.Option{
		pipeline.WithName(name),
		pipeline.WithLogger(a.log),
		pipeline.WithMetrics(a.metrics),
		pipeline.WithTracer(a.tracer),
	}
}

// transform applies fn through the configured executor.
func transform[T, U any](a *app, name string, p *pipeline.Pipeline[T], fn func(context.Context, T) (U, error)) (*pipeline.Pipeline[U], error) {
	if a.exec == nil {
		return pipeline.ParallelTransform(p, fn, a.cfg.Pipeline.Factor, a.options(name)...)
	}
	return pipeline.ParallelTransformWith(p, fn, a.cfg.Pipeline.Factor, a.exec, a.options(name)...)
}

// filter keeps the values pred holds for, through the configured executor.
func filter[T any](a *app, name string, p *pipeline.Pipeline[T], pred func(context.Context, T) (bool, error)) (*pipeline.Pipeline[T], error) {
	if a.exec == nil {
		return p.ParallelFilter(pred, a.cfg.Pipeline.Factor, a.options(name)...)
	}
	return p.ParallelFilterWith(pred, a.cfg.Pipeline.Factor, a.exec, a.options(name)...)
}
