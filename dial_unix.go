// SPDX-License-Identifier: GPL-3.0-or-later

package busconn

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/bassosimone/safeconn"
)

// NewUnixDialFunc returns a new [*UnixDialFunc] wired from cfg.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewUnixDialFunc(cfg *Config, logger SLogger) *UnixDialFunc {
	return &UnixDialFunc{
		Dialer:        cfg.Dialer,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// UnixDialFunc dials the "unix:" transport candidate of spec §4.2: either
// a filesystem path (path=) or a Linux abstract socket name (abstract=).
//
// Returns either a valid [Transport] or an error, never both.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type UnixDialFunc struct {
	// Dialer is the [Dialer] to use.
	//
	// Set by [NewUnixDialFunc] from [Config.Dialer].
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewUnixDialFunc] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	//
	// Set by [NewUnixDialFunc] to the user-provided logger.
	Logger SLogger

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewUnixDialFunc] from [Config.TimeNow].
	TimeNow func() time.Time
}

var _ Func[Candidate, Transport] = &UnixDialFunc{}

// Call dials the unix-domain socket named by candidate. An abstract
// candidate's address already carries the leading NUL byte Linux uses to
// distinguish the abstract namespace from the filesystem (see
// [parseUnixCandidate]).
func (op *UnixDialFunc) Call(ctx context.Context, candidate Candidate) (Transport, error) {
	// candidate.UnixPath already carries the leading NUL byte for an
	// abstract-socket candidate (see [parseUnixCandidate]).
	address := candidate.UnixPath

	t0 := op.TimeNow()
	deadline, _ := ctx.Deadline()
	op.logDialStart(address, t0, deadline)
	conn, err := op.Dialer.DialContext(ctx, "unix", address)
	op.logDialDone(address, t0, deadline, conn, err)
	if err != nil {
		return nil, newErr("UnixDialFunc.Call", ErrKindTransport, err)
	}

	local, remote := safeconn.LocalAddr(conn), address
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return &connTransport{Conn: conn, protocol: "unix", localAddr: local, remoteAddr: remote}, nil
	}
	f, ferr := uc.File()
	if ferr != nil {
		conn.Close()
		return nil, newErr("UnixDialFunc.Call", ErrKindTransport, ferr)
	}
	return newFileTransport(f, "unix", local, remote), nil
}

func (op *UnixDialFunc) logDialStart(address string, t0 time.Time, deadline time.Time) {
	op.Logger.Info(
		"dialStart",
		slog.Time("deadline", deadline),
		slog.String("protocol", "unix"),
		slog.String("remoteAddr", address),
		slog.Time("t", t0),
	)
}

func (op *UnixDialFunc) logDialDone(
	address string, t0 time.Time, deadline time.Time, conn net.Conn, err error) {
	op.Logger.Info(
		"dialDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", "unix"),
		slog.String("remoteAddr", address),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
	)
}
