// SPDX-License-Identifier: GPL-3.0-or-later

package busconn

import (
	"errors"
	"fmt"
)

// ErrKind classifies the taxonomy of errors this package returns.
//
// Unrecoverable kinds ([ErrKindTransport], [ErrKindAuth],
// [ErrKindProtocol]) transition the connection to [StateClosed].
// Recoverable kinds leave the connection healthy.
type ErrKind int

const (
	// ErrKindInvalidArgument means the caller passed a null, empty, or
	// out-of-range argument. The connection state does not change.
	ErrKindInvalidArgument ErrKind = iota

	// ErrKindPermissionDenied means the operation was attempted in the
	// wrong connection state (e.g. a setter called outside [StateUnset]).
	ErrKindPermissionDenied

	// ErrKindNotConnected means the operation was attempted before
	// [*Connection.Start] or after [*Connection.Close].
	ErrKindNotConnected

	// ErrKindChildGuard means the process id changed since the
	// connection was constructed (the owning process forked).
	ErrKindChildGuard

	// ErrKindOutOfMemory means an allocation failed. The connection
	// state is preserved.
	ErrKindOutOfMemory

	// ErrKindOutOfBuffer means a queue capacity was exceeded. The
	// message in question was not enqueued.
	ErrKindOutOfBuffer

	// ErrKindTransport means a read, write, or connect failed. The
	// connection transitions to [StateClosed].
	ErrKindTransport

	// ErrKindAuth means the authentication handshake was rejected. The
	// connection transitions to [StateClosed].
	ErrKindAuth

	// ErrKindProtocol means a malformed frame, an unexpected Hello
	// reply, or a wrong protocol version was observed. The connection
	// transitions to [StateClosed].
	ErrKindProtocol

	// ErrKindTimeout means a synchronous call deadline, or an async
	// reply deadline, elapsed.
	ErrKindTimeout

	// ErrKindRemote means the peer replied with a method-error message.
	ErrKindRemote
)

// String implements [fmt.Stringer].
func (k ErrKind) String() string {
	switch k {
	case ErrKindInvalidArgument:
		return "InvalidArgument"
	case ErrKindPermissionDenied:
		return "PermissionDenied"
	case ErrKindNotConnected:
		return "NotConnected"
	case ErrKindChildGuard:
		return "ChildGuard"
	case ErrKindOutOfMemory:
		return "OutOfMemory"
	case ErrKindOutOfBuffer:
		return "OutOfBuffer"
	case ErrKindTransport:
		return "TransportError"
	case ErrKindAuth:
		return "AuthError"
	case ErrKindProtocol:
		return "ProtocolError"
	case ErrKindTimeout:
		return "Timeout"
	case ErrKindRemote:
		return "RemoteError"
	default:
		return "Unknown"
	}
}

// ConnError is the concrete error type returned by this package.
//
// Use [errors.As] to recover the [ErrKind] without string matching:
//
//	var ce *ConnError
//	if errors.As(err, &ce) && ce.Kind == ErrKindTimeout { ... }
type ConnError struct {
	Kind ErrKind
	Op   string
	Err  error
}

// Error implements error.
func (e *ConnError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("busconn: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("busconn: %s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap implements the errors.Unwrap contract.
func (e *ConnError) Unwrap() error {
	return e.Err
}

// newErr constructs a [*ConnError] for the given op/kind, optionally
// wrapping an underlying error.
func newErr(op string, kind ErrKind, err error) *ConnError {
	return &ConnError{Kind: kind, Op: op, Err: err}
}

// Sentinel errors for common cases, usable with [errors.Is].
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrPermissionDenied = errors.New("permission denied in current state")
	ErrNotConnected     = errors.New("not connected")
	ErrChildGuard       = errors.New("connection used from a different process than its creator")
	ErrOutOfBuffer      = errors.New("queue capacity exceeded")
	ErrTimeout          = errors.New("timed out")
	ErrClosed           = errors.New("connection closed")
)

// Is reports whether e matches target via the package sentinel errors,
// so that errors.Is(err, ErrNotConnected) works without callers needing
// to know about [*ConnError].
func (e *ConnError) Is(target error) bool {
	switch target {
	case ErrInvalidArgument:
		return e.Kind == ErrKindInvalidArgument
	case ErrPermissionDenied:
		return e.Kind == ErrKindPermissionDenied
	case ErrNotConnected:
		return e.Kind == ErrKindNotConnected
	case ErrChildGuard:
		return e.Kind == ErrKindChildGuard
	case ErrOutOfBuffer:
		return e.Kind == ErrKindOutOfBuffer
	case ErrTimeout:
		return e.Kind == ErrKindTimeout
	case ErrClosed:
		return e.Kind == ErrKindTransport && errors.Is(e.Err, ErrClosed)
	}
	return false
}

// Well-known D-Bus error names emitted by this engine (spec §6).
const (
	ErrorNameNoReply       = "org.freedesktop.DBus.Error.NoReply"
	ErrorNameUnknownMethod = "org.freedesktop.DBus.Error.UnknownMethod"
	ErrorNameUnknownObject = "org.freedesktop.DBus.Error.UnknownObject"
	ErrorNameInvalidArgs   = "org.freedesktop.DBus.Error.InvalidArgs"
)
