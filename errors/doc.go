// Package errors provides structured error types for the engine bridge.
//
// Errors are categorized by Phase (where in the engine lifecycle the error
// occurred) and Kind (error category). The Error type carries the engine
// name, the loader step, a detail message and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLoad, errors.KindLoadFailure).
//		Engine("sqlite").
//		Step("connect").
//		Cause(cause).
//		Build()
//
// Or use convenience constructors for the failure taxonomy:
//
//	err := errors.Timeout("python", 60*time.Second)
//	err := errors.Statement("sqlite", cause)
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
