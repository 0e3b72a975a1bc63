package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks a structurally invalid configuration document.
	// It is fatal: loading stops before any external call is made.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrNotFound marks a missing category or group key when no fallback
	// path applies.
	ErrNotFound = errors.New("not found")
)

// Warning codes for recoverable configuration inconsistencies.
const (
	WarnNoDefaultModel   = "no_default_model"
	WarnDuplicateDefault = "duplicate_default"
	WarnMissingGroupKey  = "missing_group_key"
	WarnDanglingGroupKey = "dangling_group_key"
	WarnNoFallbackGroup  = "no_fallback_group"
)

// Warning is a resolvable inconsistency: recovered via fallback, reported to
// the caller, never raised as an error.
type Warning struct {
	Code    string
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Code, w.Message)
}

func warnf(code, format string, args ...any) Warning {
	return Warning{Code: code, Message: fmt.Sprintf(format, args...)}
}
