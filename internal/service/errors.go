// Package service provides the business logic of the Alexander engine:
// the bucket registry, the versioning controller, the lock manager, the
// query engine, and blob garbage collection.
package service

import "errors"

// Common service errors.
var (
	// ErrInternalError wraps infrastructure failures so they never leak
	// driver details across the engine boundary.
	ErrInternalError = errors.New("internal server error")
)
