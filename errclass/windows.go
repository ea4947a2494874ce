//go:build windows

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/common/errclass/windows.go
//

package errclass

import (
	"errors"

	"golang.org/x/sys/windows"
)

const (
	errEADDRNOTAVAIL   = windows.WSAEADDRNOTAVAIL
	errEADDRINUSE      = windows.WSAEADDRINUSE
	errECONNABORTED    = windows.WSAECONNABORTED
	errECONNREFUSED    = windows.WSAECONNREFUSED
	errECONNRESET      = windows.WSAECONNRESET
	errEHOSTUNREACH    = windows.WSAEHOSTUNREACH
	errEINVAL          = windows.WSAEINVAL
	errEINTR           = windows.WSAEINTR
	errENETDOWN        = windows.WSAENETDOWN
	errENETUNREACH     = windows.WSAENETUNREACH
	errENOBUFS         = windows.WSAENOBUFS
	errENOTCONN        = windows.WSAENOTCONN
	errEPROTONOSUPPORT = windows.WSAEPROTONOSUPPORT
	errETIMEDOUT       = windows.WSAETIMEDOUT
	errEWOULDBLOCK     = windows.WSAEWOULDBLOCK
)

func classifyErrno(err error) (string, bool) {
	switch {
	case errors.Is(err, errEWOULDBLOCK):
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

// IsWouldBlock reports whether err represents a WSAEWOULDBLOCK condition.
func IsWouldBlock(err error) bool {
	return errors.Is(err, errEWOULDBLOCK)
}
