// Package errors provides structured error types for the otapi bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the native class, field, handle, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseAccess, errors.KindFieldUnknown).
//		Class("ServerInfo").
//		Field("gui_label").
//		Handle(h).
//		Detail("field not declared").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.UseAfterRelease("ServerInfo", "ServerID")
//	err := errors.StaleHandle(errors.PhaseHeap, "ServerInfo", h)
//
// The Err* sentinels match on Kind alone, so callers can write
//
//	if errors.Is(err, errors.ErrUseAfterRelease) { ... }
//
// with the standard library errors package.
package errors
