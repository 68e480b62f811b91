// Package apperr holds the sentinel errors shared across the engine and its surfaces.
package apperr

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrStoreUnavailable marks index store failures the caller may retry
	// (locked, closed or corrupt database).
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrSyncInProgress   = errors.New("sync in progress")
)
