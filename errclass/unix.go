//go:build unix

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/common/errclass/unix.go
//

package errclass

import (
	"errors"

	"golang.org/x/sys/unix"
)

const (
	errEADDRNOTAVAIL   = unix.EADDRNOTAVAIL
	errEADDRINUSE      = unix.EADDRINUSE
	errECONNABORTED    = unix.ECONNABORTED
	errECONNREFUSED    = unix.ECONNREFUSED
	errECONNRESET      = unix.ECONNRESET
	errEHOSTUNREACH    = unix.EHOSTUNREACH
	errEINVAL          = unix.EINVAL
	errEINTR           = unix.EINTR
	errENETDOWN        = unix.ENETDOWN
	errENETUNREACH     = unix.ENETUNREACH
	errENOBUFS         = unix.ENOBUFS
	errENOTCONN        = unix.ENOTCONN
	errEPROTONOSUPPORT = unix.EPROTONOSUPPORT
	errETIMEDOUT       = unix.ETIMEDOUT
	errEAGAIN          = unix.EAGAIN
)

// classifyErrno maps a unix errno wrapped anywhere in err's chain to a
// class string for structured logging. The non-blocking read/write paths
// recognize EAGAIN suspension points with [IsWouldBlock], not with this
// table.
func classifyErrno(err error) (string, bool) {
	switch {
	case errors.Is(err, errEAGAIN):
		return EWOULDBLOCK, true
	case errors.Is(err, errEADDRNOTAVAIL):
		return EADDRNOTAVAIL, true
	case errors.Is(err, errEADDRINUSE):
		return EADDRINUSE, true
	case errors.Is(err, errECONNABORTED):
		return ECONNABORTED, true
	case errors.Is(err, errECONNREFUSED):
		return ECONNREFUSED, true
	case errors.Is(err, errECONNRESET):
		return ECONNRESET, true
	case errors.Is(err, errEHOSTUNREACH):
		return EHOSTUNREACH, true
	case errors.Is(err, errEINVAL):
		return EINVAL, true
	case errors.Is(err, errEINTR):
		return EINTR, true
	case errors.Is(err, errENETDOWN):
		return ENETDOWN, true
	case errors.Is(err, errENETUNREACH):
		return ENETUNREACH, true
	case errors.Is(err, errENOBUFS):
		return ENOBUFS, true
	case errors.Is(err, errENOTCONN):
		return ENOTCONN, true
	case errors.Is(err, errEPROTONOSUPPORT):
		return EPROTONOSUPPORT, true
	case errors.Is(err, errETIMEDOUT):
		return ETIMEDOUT, true
	default:
		return "", false
	}
}

// IsWouldBlock reports whether err represents an EAGAIN/EWOULDBLOCK
// condition, the "needs more I/O" suspension point referenced throughout
// spec §4.2–§4.6.
func IsWouldBlock(err error) bool {
	return errors.Is(err, errEAGAIN)
}
