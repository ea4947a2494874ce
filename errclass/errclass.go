//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/common/errclass/errclass.go
//

// Package errclass classifies network and transport errors into short,
// stable strings suitable for structured-log analysis.
//
// The mapping favors coarse, cross-platform classes over raw errno names:
// callers that need the full taxonomy of spec §7 should use
// [busconn.ErrKind] instead. This package exists only to feed
// [busconn.ErrClassifier] with a label alongside a typed error.
package errclass

import (
	"context"
	"errors"
	"net"
	"os"
)

// Class strings returned by [New].
const (
	EADDRNOTAVAIL   = "EADDRNOTAVAIL"
	EADDRINUSE      = "EADDRINUSE"
	ECONNABORTED    = "ECONNABORTED"
	ECONNREFUSED    = "ECONNREFUSED"
	ECONNRESET      = "ECONNRESET"
	EHOSTUNREACH    = "EHOSTUNREACH"
	EINVAL          = "EINVAL"
	EINTR           = "EINTR"
	ENETDOWN        = "ENETDOWN"
	ENETUNREACH     = "ENETUNREACH"
	ENOBUFS         = "ENOBUFS"
	ENOTCONN        = "ENOTCONN"
	EPROTONOSUPPORT = "EPROTONOSUPPORT"
	ETIMEDOUT       = "ETIMEDOUT"
	EWOULDBLOCK     = "EWOULDBLOCK"
	EOF             = "EOF"
	EGENERIC        = "EGENERIC"
)

// New classifies err into one of the class strings above.
//
// New returns the empty string for a nil error, matching the
// [busconn.DefaultErrClassifier] no-op convention when wrapped.
func New(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return ETIMEDOUT
	}
	if errors.Is(err, net.ErrClosed) {
		return ECONNABORTED
	}
	if cls, ok := classifyErrno(err); ok {
		return cls
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ETIMEDOUT
	}
	return EGENERIC
}
