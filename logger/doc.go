// Package logger provides structured logging for orderedpipe using zerolog.
//
// It supports JSON and console output, level configuration, and
// component-scoped loggers with structured fields. Library code defaults to
// Nop so nothing is written unless the caller passes a logger in.
//
// # Configuration
//
//	logging:
//	  level: "debug"
//	  format: "json"
//
// # Usage
//
//	log := logger.New(&cfg, "orderedpipe").WithComponent("pipeline")
//	log.Debug("driver finished", logger.Fields(logger.FieldItems, 42))
package logger
