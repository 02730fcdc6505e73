// Package apperr holds sentinel errors shared by the service surfaces.
package apperr

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrNoRun    = errors.New("no conversion run yet")
	ErrBusy     = errors.New("conversion already running")
)
