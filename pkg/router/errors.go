package router

import (
	"errors"
	"fmt"
)

// ErrPrecache is wrapped by every precache failure.
var ErrPrecache = errors.New("precache failed")

// PrecacheError reports which manifest entry failed during install.
type PrecacheError struct {
	URL        string
	StatusCode int
	Err        error
}

// Error implements the error interface.
func (e *PrecacheError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("precache %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("precache %s: status %d", e.URL, e.StatusCode)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *PrecacheError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrPrecache, e.Err}
	}
	return []error{ErrPrecache}
}
