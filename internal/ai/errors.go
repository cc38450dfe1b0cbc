package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies an inference failure for the retry policy.
type Kind int

const (
	// KindFatal is anything not classified below; never retried.
	KindFatal Kind = iota
	// KindEmpty means the call succeeded at the transport level but carried
	// no usable candidate output.
	KindEmpty
	// KindTimeout means the call exceeded its time budget.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindTimeout:
		return "timeout"
	default:
		return "fatal"
	}
}

// InferenceError is the typed error returned by every Client.
type InferenceError struct {
	Kind       Kind
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *InferenceError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InferenceError) Unwrap() error { return e.Err }

// Timeout reports whether the error is a timeout; it lets callers treat the
// error like a net.Error.
func (e *InferenceError) Timeout() bool { return e.Kind == KindTimeout }

// ErrEmptyResponse is wrapped by KindEmpty errors.
var ErrEmptyResponse = errors.New("empty response")

// EmptyResponse builds a KindEmpty error.
func EmptyResponse(provider, reason string) error {
	return &InferenceError{Kind: KindEmpty, Provider: provider, Message: reason, Err: ErrEmptyResponse}
}

// KindOf extracts the classification of err. Untyped deadline and network
// timeout errors are reported as KindTimeout.
func KindOf(err error) Kind {
	if err == nil {
		return KindFatal
	}
	var ie *InferenceError
	if errors.As(err, &ie) {
		return ie.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	return KindFatal
}

// IsRetryable reports whether the retry policy should try again.
func IsRetryable(err error) bool {
	k := KindOf(err)
	return k == KindEmpty || k == KindTimeout
}

// classifyTransport wraps an error from http.Client.Do.
func classifyTransport(provider string, err error) error {
	if errors.Is(err, context.Canceled) {
		return &InferenceError{Kind: KindFatal, Provider: provider, Message: "request cancelled", Err: err}
	}
	kind := KindFatal
	if KindOf(err) == KindTimeout {
		kind = KindTimeout
	}
	return &InferenceError{Kind: kind, Provider: provider, Message: "request failed", Err: err}
}

// classifyStatus maps a non-2xx status to an InferenceError. Gateway and
// request timeouts are the only retryable statuses.
func classifyStatus(provider string, status int, body []byte) error {
	kind := KindFatal
	if status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout {
		kind = KindTimeout
	}
	return &InferenceError{Kind: kind, Provider: provider, StatusCode: status, Message: truncate(string(body), 300)}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
