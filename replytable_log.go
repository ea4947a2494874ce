// SPDX-License-Identifier: GPL-3.0-or-later

package busconn

import (
	"log/slog"
	"time"
)

// ReplyLogContext holds common logging state for reply correlation
// events (spec §4.5): a method call registered in the reply table, its
// eventual delivery or timeout.
//
// This type consolidates the logging boilerplate of [replyTable] so every
// outstanding-call lifecycle emits a consistent callStart/callDone or
// callStart/callTimeout pair.
type ReplyLogContext struct {
	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// LocalAddr is the local address of the connection's transport.
	LocalAddr string

	// Logger is the SLogger to use.
	Logger SLogger

	// Protocol is the transport protocol (e.g., "unix", "tcp").
	Protocol string

	// RemoteAddr is the remote address of the connection's transport.
	RemoteAddr string

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time
}

// LogCallStart logs the registration of a pending method call.
func (lc *ReplyLogContext) LogCallStart(t0 time.Time, deadline time.Time, serial uint32, destination, path, iface, member string) {
	lc.Logger.Info(
		"callStart",
		slog.Time("deadline", deadline),
		slog.String("destination", destination),
		slog.String("interface", iface),
		slog.String("localAddr", lc.LocalAddr),
		slog.String("member", member),
		slog.String("path", path),
		slog.String("protocol", lc.Protocol),
		slog.String("remoteAddr", lc.RemoteAddr),
		slog.Uint64("serial", uint64(serial)),
		slog.Time("t", t0),
	)
}

// LogCallDone logs the delivery of a reply (or error) for serial.
func (lc *ReplyLogContext) LogCallDone(t0 time.Time, deadline time.Time, serial uint32, err error) {
	lc.Logger.Info(
		"callDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", lc.ErrClassifier.Classify(err)),
		slog.String("localAddr", lc.LocalAddr),
		slog.String("protocol", lc.Protocol),
		slog.String("remoteAddr", lc.RemoteAddr),
		slog.Uint64("serial", uint64(serial)),
		slog.Time("t0", t0),
		slog.Time("t", lc.TimeNow()),
	)
}

// LogCallTimeout logs a pending call expiring before any reply arrived.
func (lc *ReplyLogContext) LogCallTimeout(deadline time.Time, serial uint32) {
	lc.Logger.Info(
		"callTimeout",
		slog.Time("deadline", deadline),
		slog.String("localAddr", lc.LocalAddr),
		slog.String("protocol", lc.Protocol),
		slog.String("remoteAddr", lc.RemoteAddr),
		slog.Uint64("serial", uint64(serial)),
		slog.Time("t", lc.TimeNow()),
	)
}
