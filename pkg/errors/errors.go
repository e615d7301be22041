package catalog_errors

import (
	"errors"
	"time"
)

// Common errors
var (
	// ErrInvalidInput is the validation error class: surfaced immediately, never retried.
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	// ErrEngineUnavailable marks failures of the search index engine.
	ErrEngineUnavailable  = errors.New("search engine unavailable")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// NowPtr returns a pointer to current time
func NowPtr() *time.Time {
	now := time.Now()
	return &now
}

// Truncate cuts s to at most max bytes, keeping valid UTF-8 boundaries.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	for len(cut) > 0 && !isRuneStart(s[len(cut)]) {
		cut = cut[:len(cut)-1]
	}
	return cut
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
