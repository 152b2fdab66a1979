// Package resilience provides retry and circuit-breaker patterns for calls
// to the document extraction provider.
package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
	"time"
)

// Class is the retry classification of a failure.
type Class int

const (
	// ClassTerminal errors propagate immediately without retry.
	ClassTerminal Class = iota
	// ClassTransient errors are retried with exponential backoff.
	ClassTransient
	// ClassRateLimited errors get a single long fixed wait per attempt.
	ClassRateLimited
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassRateLimited:
		return "rate_limited"
	default:
		return "terminal"
	}
}

// TransientError wraps an error that is safe to retry (overload, 5xx,
// network timeout, connection reset).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// RateLimitError wraps an explicit throttling signal from the provider.
type RateLimitError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string { return e.Err.Error() }
func (e *RateLimitError) Unwrap() error { return e.Err }

// TerminalError marks an error as not retryable regardless of heuristics
// (auth failure, invalid request, malformed response).
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string { return e.Err.Error() }
func (e *TerminalError) Unwrap() error { return e.Err }

// ExhaustedError wraps the last underlying error after all attempts fail.
type ExhaustedError struct {
	Label    string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: retries exhausted after %d attempts: %v", e.Label, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// IsExhausted reports whether err wraps an ExhaustedError.
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}

// Classify maps an error onto its retry class. Explicit markers win; unknown
// errors fall back to network-level heuristics and default to terminal.
func Classify(err error) Class {
	if err == nil {
		return ClassTerminal
	}

	var rl *RateLimitError
	if errors.As(err, &rl) {
		return ClassRateLimited
	}

	var term *TerminalError
	if errors.As(err, &term) {
		return ClassTerminal
	}

	var tr *TransientError
	if errors.As(err, &tr) {
		return ClassTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return ClassTransient
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
		"overloaded",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return ClassTransient
		}
	}

	return ClassTerminal
}

// ClassifyHTTPStatus maps an HTTP status code onto a retry class.
func ClassifyHTTPStatus(statusCode int) Class {
	switch {
	case statusCode == 429:
		return ClassRateLimited
	case statusCode == 408, statusCode >= 500:
		return ClassTransient
	default:
		return ClassTerminal
	}
}
