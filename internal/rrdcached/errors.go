package rrdcached

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for rrdcached operations.
//
// Every error returned by this package matches exactly one of these via
// errors.Is, so callers can branch on the failure class:
//
//	if errors.Is(err, rrdcached.ErrNotFound) {
//	    // create the database first
//	}
var (
	// ErrBadRequest indicates a command failed local validation.
	// No bytes were written to the stream.
	ErrBadRequest = errors.New("rrdcached: bad request")

	// ErrNotFound indicates the daemon does not know the database identifier.
	ErrNotFound = errors.New("rrdcached: database not found")

	// ErrAlreadyExists indicates CREATE targeted an existing database.
	ErrAlreadyExists = errors.New("rrdcached: database already exists")

	// ErrOutOfOrderUpdate indicates an UPDATE timestamp was not newer than
	// the last sample recorded by the daemon.
	ErrOutOfOrderUpdate = errors.New("rrdcached: update out of order")

	// ErrProtocol indicates malformed or unexpected response framing.
	// The connection is unusable afterwards.
	ErrProtocol = errors.New("rrdcached: protocol error")

	// ErrConnectionClosed indicates the stream closed, failed, or was
	// abandoned mid-call. The connection is unusable afterwards.
	ErrConnectionClosed = errors.New("rrdcached: connection closed")

	// ErrDaemonRejected indicates any other negative status from the daemon.
	ErrDaemonRejected = errors.New("rrdcached: daemon rejected command")
)

// ErrorKind is the closed set of failure classes.
type ErrorKind int

// Error kinds, in the order KindOf tests for them.
const (
	KindNone ErrorKind = iota
	KindBadRequest
	KindNotFound
	KindAlreadyExists
	KindOutOfOrderUpdate
	KindProtocol
	KindConnectionClosed
	KindDaemonRejected
)

var kindSentinels = []struct {
	kind ErrorKind
	err  error
}{
	{KindBadRequest, ErrBadRequest},
	{KindNotFound, ErrNotFound},
	{KindAlreadyExists, ErrAlreadyExists},
	{KindOutOfOrderUpdate, ErrOutOfOrderUpdate},
	{KindProtocol, ErrProtocol},
	{KindConnectionClosed, ErrConnectionClosed},
	{KindDaemonRejected, ErrDaemonRejected},
}

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindOutOfOrderUpdate:
		return "out_of_order_update"
	case KindProtocol:
		return "protocol_error"
	case KindConnectionClosed:
		return "connection_closed"
	case KindDaemonRejected:
		return "daemon_rejected"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinel returns the sentinel error for the kind, or nil for KindNone.
func (k ErrorKind) Sentinel() error {
	for _, ks := range kindSentinels {
		if ks.kind == k {
			return ks.err
		}
	}
	return nil
}

// KindOf classifies err. It returns KindNone for nil and
// KindDaemonRejected for errors that match no sentinel.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, ks := range kindSentinels {
		if errors.Is(err, ks.err) {
			return ks.kind
		}
	}
	return KindDaemonRejected
}

// IsFatal reports whether err left the connection unusable.
func IsFatal(err error) bool {
	return errors.Is(err, ErrProtocol) || errors.Is(err, ErrConnectionClosed)
}

// ResponseError is a negative status reported by the daemon.
//
// It unwraps to the sentinel chosen by the message classifier, so
// errors.Is(err, ErrNotFound) works on it directly.
type ResponseError struct {
	Code    int
	Message string
	Kind    ErrorKind
}

// Error implements error.
func (e *ResponseError) Error() string {
	return fmt.Sprintf("%v: %d %s", e.Kind.Sentinel(), e.Code, e.Message)
}

// Unwrap returns the kind sentinel.
func (e *ResponseError) Unwrap() error {
	return e.Kind.Sentinel()
}

// Message patterns used to classify daemon errors. Daemon wording differs
// between versions, so anything unmatched falls through to DaemonRejected.
var (
	notFoundPatterns = []string{
		"no such file",
		"unknown database",
		"not found",
	}
	alreadyExistsPatterns = []string{
		"file exists",
		"already exists",
	}
	outOfOrderPatterns = []string{
		"illegal attempt to update",
		"minimum one second step",
		"not newer than",
	}
)

// classify maps a daemon status code and message onto an error kind.
func classify(message string) ErrorKind {
	lower := strings.ToLower(message)
	switch {
	case containsAny(lower, outOfOrderPatterns):
		return KindOutOfOrderUpdate
	case containsAny(lower, alreadyExistsPatterns):
		return KindAlreadyExists
	case containsAny(lower, notFoundPatterns):
		return KindNotFound
	default:
		return KindDaemonRejected
	}
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// newResponseError builds the classified error for a negative status.
func newResponseError(code int, message string) *ResponseError {
	return &ResponseError{
		Code:    code,
		Message: message,
		Kind:    classify(message),
	}
}

// badRequest wraps a validation failure.
func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}
