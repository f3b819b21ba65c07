// Package errors provides the classified error primitives used across prbot.
//
// Every failure that crosses a package boundary is a ClassifiedError with a
// category, a severity and a retry strategy. Storage code distinguishes a
// corrupt document (logged, treated as empty) from a failed write (returned
// to the caller). Collaborator failures (forge, notify, generator) are
// classified at the boundary so callers can report them without touching
// local state.
//
// Example usage:
//
//	err := errors.StorageWriteError("rename failed").
//		WithCause(cause).
//		WithContext("path", path).
//		Build()
package errors
