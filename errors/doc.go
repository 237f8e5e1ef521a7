// Package errors provides the structured error type used across orderedpipe.
//
// Every error raised by the pipeline or its executors is an *AppError with a
// machine-readable code. Causes are preserved, so errors.Is and errors.As from
// the standard library keep working on the wrapped mapping error or context
// error.
//
//	v, ok, err := it.Next(ctx)
//	if idx, ok := errors.ItemIndex(err); ok {
//	    log.Printf("item %d failed: %v", idx, err)
//	}
package errors
