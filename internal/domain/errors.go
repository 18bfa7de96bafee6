package domain

import (
	"errors"
	"fmt"
)

// Contract violations. Aggregation is only ever called with validated or
// fallback-substituted input, so hitting one of these is a programming error
// upstream, not a runtime condition to recover from.
var (
	ErrNoOpinions        = errors.New("aggregate called with no opinions")
	ErrInvalidMaxResults = errors.New("aggregate called with non-positive max results")
)

// ErrNotFound reports that a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// SourceUnavailableError reports that an opinion source could not be reached
// or did not answer within its deadline. It is recovered locally via the
// fallback policy and never surfaces past the orchestrator.
type SourceUnavailableError struct {
	SourceID string
	Err      error
}

// Error implements the error interface
func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("opinion source %s unavailable: %v", e.SourceID, e.Err)
}

// Unwrap returns the underlying cause
func (e *SourceUnavailableError) Unwrap() error {
	return e.Err
}

// MalformedOutputError reports that a source answered with structurally
// invalid data. Like unavailability, it is recovered locally via the
// fallback policy.
type MalformedOutputError struct {
	SourceID string
	Detail   string
	Err      error
}

// Error implements the error interface
func (e *MalformedOutputError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("opinion source %s returned malformed output: %s", e.SourceID, e.Detail)
	}
	return fmt.Sprintf("opinion source %s returned malformed output: %v", e.SourceID, e.Err)
}

// Unwrap returns the underlying cause
func (e *MalformedOutputError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports an invalid tuning constant. It is fatal at
// startup; the engine never runs with unvalidated knobs.
type ConfigurationError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// Violation describes one structural defect found in a raw opinion.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// String implements fmt.Stringer
func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

// ValidationResult is the outcome of checking a raw opinion's structural
// well-formedness. A result with no violations is valid.
type ValidationResult struct {
	Violations []Violation `json:"violations,omitempty"`
}

// Valid reports whether the opinion passed all checks.
func (r ValidationResult) Valid() bool {
	return len(r.Violations) == 0
}

// Summary renders the ordered violation list as a single string.
func (r ValidationResult) Summary() string {
	if r.Valid() {
		return "valid"
	}
	out := ""
	for i, v := range r.Violations {
		if i > 0 {
			out += "; "
		}
		out += v.String()
	}
	return out
}
