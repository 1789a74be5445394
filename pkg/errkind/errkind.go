// Package errkind classifies the errors that cross the Agent Orchestration
// Core's boundaries into the taxonomy the TurnEngine's retry policy and the
// UI error surface are keyed off.
package errkind

import (
	"time"

	"github.com/pkg/errors"
)

// Kind identifies a class of failure from §7 of the orchestration spec.
type Kind string

const (
	Auth                  Kind = "auth"
	RateLimited           Kind = "rate_limited"
	Transport             Kind = "transport"
	Overloaded            Kind = "overloaded"
	ContextOverflow       Kind = "context_overflow"
	InvalidRequest        Kind = "invalid_request"
	ContextLengthExceeded Kind = "context_length_exceeded"
	InvalidToolInput      Kind = "invalid_tool_input"
	ToolExecutionFailed   Kind = "tool_execution_failed"
	ToolTimeout           Kind = "tool_timeout"
	PermissionDenied      Kind = "permission_denied"
	LoopCap               Kind = "loop_cap"
	Canceled              Kind = "canceled"
	Persistence           Kind = "persistence"
	Unknown               Kind = "unknown"
)

// Error wraps an underlying cause with the Kind the engine should react to,
// and an optional retry hint for RateLimited.
type Error struct {
	Kind       Kind
	RetryAfter *time.Duration
	cause      error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.cause.Error()
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a classified error wrapping cause with the given kind.
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, cause: cause}
}

// NewRateLimited builds a RateLimited error carrying a provider-supplied
// retry-after hint, clamped to the 60s ceiling the retry policy (§4.5)
// requires.
func NewRateLimited(cause error, retryAfter time.Duration) *Error {
	if retryAfter > 60*time.Second {
		retryAfter = 60 * time.Second
	}
	return &Error{Kind: RateLimited, RetryAfter: &retryAfter, cause: cause}
}

// Classify recovers the Kind from err, defaulting to Unknown when err was
// never wrapped with errkind.New. It unwraps through errors.Wrap chains via
// errors.As semantics (github.com/pkg/errors satisfies the stdlib Unwrap
// contract since v0.9).
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return Unknown
}

// IsRetryable reports whether the retry policy of §4.5 should re-attempt a
// request that failed with this error.
func IsRetryable(err error) bool {
	switch Classify(err) {
	case RateLimited, Transport, Overloaded:
		return true
	default:
		return false
	}
}
