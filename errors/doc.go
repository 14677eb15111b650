// Package errors provides structured error types for the rbridge library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries a human-readable detail, the offending value, an
// optional R-side type name and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseCallable, errors.KindNotCallable).
//		GoType("int").
//		Detail("value cannot be called from R").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.HomeNotFound(cause)
//	err := errors.LibraryNotFound("/opt/R/lib/libR.so")
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
