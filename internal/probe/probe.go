// Package probe implements the protocol-specific checks the fleet scanner
// runs against each device: ICMP reachability, neighbor-table MAC resolution,
// SSH system metrics, and GNS3 server status. Probes are independent, enforce
// their own timeouts, and report failures as typed errors so callers can
// degrade individual snapshot fields instead of failing a whole device.
package probe

import (
	"errors"
	"fmt"
)

// FailureKind classifies a probe failure.
type FailureKind string

const (
	// KindTimeout means the probe's own deadline expired.
	KindTimeout FailureKind = "timeout"
	// KindUnreachable means the target did not answer.
	KindUnreachable FailureKind = "unreachable"
	// KindAuthFailed means the target rejected the configured credentials.
	KindAuthFailed FailureKind = "auth_failed"
	// KindParseError means the target answered but its output was unusable.
	KindParseError FailureKind = "parse_error"
	// KindAPIUnauthorized means the GNS3 API rejected the access token.
	KindAPIUnauthorized FailureKind = "api_unauthorized"
	// KindAPIUnreachable means the GNS3 API endpoint could not be reached.
	KindAPIUnreachable FailureKind = "api_unreachable"
	// KindAPIError means the GNS3 API returned an unexpected response.
	KindAPIError FailureKind = "api_error"
	// KindProbeError means the probe itself failed to run (tooling,
	// permissions, bad input).
	KindProbeError FailureKind = "probe_error"
)

// Error is a typed probe failure. A probe either succeeds with a fully
// populated value or returns an *Error; it never returns a partial result.
type Error struct {
	Kind    FailureKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Errf builds a probe Error with a formatted message.
func Errf(kind FailureKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a probe Error around an underlying cause.
func Wrap(kind FailureKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the failure kind from err, or KindProbeError if err is not
// a probe Error.
func KindOf(err error) FailureKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindProbeError
}
