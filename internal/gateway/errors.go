// Locsync - Offline-Resilient Location Sync
// Copyright 2026 Mapic Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mapic/locsync

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	gobreaker "github.com/sony/gobreaker/v2"
)

// Error taxonomy for remote calls. Callers decide retry and fallback behavior
// from the error kind, never from message text.

// ErrTimeout is returned when a request exceeds the per-attempt deadline.
var ErrTimeout = errors.New("gateway request timed out")

// HTTPError is a non-2xx response from the backend. Status carries the HTTP
// status code; Message carries the backend's error message when the body had
// one.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("http %d", e.Status)
}

// ParseError is a 2xx response whose body could not be decoded. Not
// retryable: the payload will not improve on a retry.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Retryable reports whether a failed attempt is worth repeating.
// Transport-level failures and timeouts are retryable, as are server errors
// and the two client statuses that signal transient conditions (408 request
// timeout and 429 rate limiting). Other 4xx responses and parse errors are
// permanent for the request as issued.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// Breaker rejections are deliberate load shedding, not transient faults.
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.Status >= 500:
			return true
		case httpErr.Status == http.StatusRequestTimeout, httpErr.Status == http.StatusTooManyRequests:
			return true
		default:
			return false
		}
	}
	// Anything else is a transport-level failure (DNS, connection reset,
	// TLS) and may succeed on a fresh connection.
	return true
}
