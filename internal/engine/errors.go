// Package engine provides agent orchestration functionality.
// This file contains error classification and handling.

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
)

// RetryClass indicates whether an error should be retried.
type RetryClass string

const (
	RetryClassRetryable    RetryClass = "retryable"     // Transient, retry with backoff
	RetryClassNonRetryable RetryClass = "non_retryable" // Structural, surface immediately
)

// ErrorKind tags an Error with its place in the taxonomy.
type ErrorKind string

const (
	KindTimeout          ErrorKind = "timeout"
	KindTransport        ErrorKind = "transport"
	KindAPI              ErrorKind = "api"
	KindGeneric          ErrorKind = "generic"
	KindContextOverflow  ErrorKind = "context_overflow"
	KindMalformedJSON    ErrorKind = "malformed_json"
	KindConfig           ErrorKind = "config"
	KindInvalidArguments ErrorKind = "invalid_arguments"
)

// Retryable reports whether errors of this kind are transient.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTimeout, KindTransport, KindAPI, KindGeneric:
		return true
	default:
		return false
	}
}

// Error wraps errors with classification metadata.
type Error struct {
	Kind ErrorKind
	Op   string // Operation that failed, e.g. "http_fetch" or "config.load"
	Err  error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable implements the retry classification contract.
func (e *Error) Retryable() bool { return e.Kind.Retryable() }

// NewError creates a kind-tagged error.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf creates a kind-tagged error from a format string.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// retryClassifier is implemented by errors that know whether they are transient.
// Sandbox violations implement it and always answer false.
type retryClassifier interface {
	Retryable() bool
}

// ClassifyError decides whether err is worth retrying. Structural errors
// (invalid transitions, context overflow, malformed JSON, configuration,
// security) are never retried; timeouts, transport and API failures, and
// anything unclassified are.
func ClassifyError(err error) RetryClass {
	if err == nil {
		return RetryClassNonRetryable
	}

	var transition *InvalidTransitionError
	if errors.As(err, &transition) {
		return RetryClassNonRetryable
	}

	var rc retryClassifier
	if errors.As(err, &rc) {
		if rc.Retryable() {
			return RetryClassRetryable
		}
		return RetryClassNonRetryable
	}

	if errors.Is(err, context.Canceled) {
		return RetryClassNonRetryable
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return RetryClassRetryable
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return RetryClassNonRetryable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return RetryClassRetryable
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "context length") ||
		strings.Contains(errStr, "maximum context length") ||
		strings.Contains(errStr, "token limit") {
		return RetryClassNonRetryable
	}

	return RetryClassRetryable
}

// RetryExhaustedError indicates that all retry attempts have been exhausted.
type RetryExhaustedError struct {
	Err         error
	Attempts    int
	MaxAttempts int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("max retries exceeded after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// IsRetryExhausted checks if an error is a RetryExhaustedError.
func IsRetryExhausted(err error) bool {
	var retryExhausted *RetryExhaustedError
	return errors.As(err, &retryExhausted)
}

// ToolValidationError indicates that tool arguments failed JSON schema validation.
type ToolValidationError struct {
	ToolName string
	Errors   []string
}

func (e *ToolValidationError) Error() string {
	return fmt.Sprintf("tool %s validation failed: %s", e.ToolName, strings.Join(e.Errors, "; "))
}

// Retryable reports false; bad arguments do not get better on a second try.
func (e *ToolValidationError) Retryable() bool { return false }

// ErrInvariant marks a broken internal invariant. It is never produced by the
// modeled Panic event, which is an ordinary state machine input.
var ErrInvariant = errors.New("engine invariant violated")

// TaskContextError wraps errors with execution context (task, iteration, state).
type TaskContextError struct {
	Err       error
	TaskID    string
	Iteration int
	State     TaskState
	Operation string // "plan", "execute", "verify", "transition"
}

func (e *TaskContextError) Error() string {
	return fmt.Sprintf("[task=%s iter=%d state=%s op=%s] %v",
		e.TaskID, e.Iteration, e.State, e.Operation, e.Err)
}

func (e *TaskContextError) Unwrap() error {
	return e.Err
}
