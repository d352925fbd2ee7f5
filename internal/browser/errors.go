// File: internal/browser/errors.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TimeoutError reports that a wait condition never held within its bound.
// Last carries the final probe error observed while polling, if any.
type TimeoutError struct {
	Condition string
	Timeout   time.Duration
	Last      error
}

func (e *TimeoutError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("timed out after %v waiting for %s (last probe error: %v)", e.Timeout, e.Condition, e.Last)
	}
	return fmt.Sprintf("timed out after %v waiting for %s", e.Timeout, e.Condition)
}

func (e *TimeoutError) Unwrap() error { return e.Last }

// ElementNotFoundError reports that an action could not locate or use its target.
type ElementNotFoundError struct {
	Selector string
	Err      error
}

func (e *ElementNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("element %q not found: %v", e.Selector, e.Err)
	}
	return fmt.Sprintf("element %q not found", e.Selector)
}

func (e *ElementNotFoundError) Unwrap() error { return e.Err }

// EnvironmentError means the browser handle itself is gone or never came up.
// It is never retried.
type EnvironmentError struct {
	Op  string
	Err error
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("browser environment failure during %s: %v", e.Op, e.Err)
}

func (e *EnvironmentError) Unwrap() error { return e.Err }

// EmptyResponseError reports that a reply finished but nothing could be extracted.
type EmptyResponseError struct {
	Selector string
}

func (e *EmptyResponseError) Error() string {
	return fmt.Sprintf("no response text found for %q", e.Selector)
}

// IsRecoverable reports whether err is worth another attempt. Timeouts, missing
// elements and empty responses are; a dead browser or a cancelled run is not.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var envErr *EnvironmentError
	if errors.As(err, &envErr) {
		return false
	}

	var timeoutErr *TimeoutError
	var notFoundErr *ElementNotFoundError
	var emptyErr *EmptyResponseError
	return errors.As(err, &timeoutErr) || errors.As(err, &notFoundErr) || errors.As(err, &emptyErr)
}
