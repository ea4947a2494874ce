//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/netxlite/dialer.go
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/x/netcore/dialer.go
//

package busconn

import (
	"context"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/bassosimone/safeconn"
)

// Dialer abstracts the [*net.Dialer] behavior.
//
// By making [*TCPDialFunc] depend on an abstract implementation we allow
// for unit testing and for using alternative dialers.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// NewTCPDialFunc returns a new [*TCPDialFunc] wired from cfg.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewTCPDialFunc(cfg *Config, logger SLogger) *TCPDialFunc {
	return &TCPDialFunc{
		Dialer:        cfg.Dialer,
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// TCPDialFunc dials the "tcp:" transport candidate of spec §4.2: a host,
// port, and optional address-family hint ("ipv4" or "ipv6").
//
// Returns either a valid [Transport] or an error, never both.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type TCPDialFunc struct {
	// Dialer is the [Dialer] to use.
	//
	// Set by [NewTCPDialFunc] from [Config.Dialer].
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewTCPDialFunc] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	//
	// Set by [NewTCPDialFunc] to the user-provided logger.
	Logger SLogger

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewTCPDialFunc] from [Config.TimeNow].
	TimeNow func() time.Time
}

var _ Func[Candidate, Transport] = &TCPDialFunc{}

// Call dials the host:port pair named by candidate, honoring Family
// ("ipv4" forces "tcp4", "ipv6" forces "tcp6", "" leaves the choice to
// the resolver).
func (op *TCPDialFunc) Call(ctx context.Context, candidate Candidate) (Transport, error) {
	network := "tcp"
	switch candidate.Family {
	case "ipv4":
		network = "tcp4"
	case "ipv6":
		network = "tcp6"
	}
	address := net.JoinHostPort(candidate.Host, candidate.Port)

	t0 := op.TimeNow()
	deadline, _ := ctx.Deadline()
	op.logDialStart(network, address, t0, deadline)
	conn, err := op.Dialer.DialContext(ctx, network, address)
	op.logDialDone(network, address, t0, deadline, conn, err)
	if err != nil {
		return nil, newErr("TCPDialFunc.Call", ErrKindTransport, err)
	}

	local, remote := safeconn.LocalAddr(conn), safeconn.RemoteAddr(conn)
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		// A stubbed Dialer in tests may hand back a net.Conn backed by
		// something other than *net.TCPConn; wrap it directly.
		return &connTransport{Conn: conn, protocol: network, localAddr: local, remoteAddr: remote}, nil
	}
	f, ferr := tc.File()
	if ferr != nil {
		conn.Close()
		return nil, newErr("TCPDialFunc.Call", ErrKindTransport, ferr)
	}
	return newFileTransport(f, network, local, remote), nil
}

func (op *TCPDialFunc) logDialStart(network, address string, t0 time.Time, deadline time.Time) {
	op.Logger.Info(
		"dialStart",
		slog.Time("deadline", deadline),
		slog.String("protocol", network),
		slog.String("remoteAddr", address),
		slog.Time("t", t0),
	)
}

func (op *TCPDialFunc) logDialDone(
	network, address string, t0 time.Time, deadline time.Time, conn net.Conn, err error) {
	op.Logger.Info(
		"dialDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("localAddr", safeconn.LocalAddr(conn)),
		slog.String("protocol", network),
		slog.String("remoteAddr", address),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
	)
}

// connTransport adapts a plain [net.Conn] (one that does not expose a
// *os.File, e.g. a test stub) to [Transport]. InputFile/OutputFile return
// nil: such a transport can still be driven via Read/Write but cannot be
// attached to a file-descriptor-based [Reactor].
type connTransport struct {
	net.Conn
	protocol            string
	localAddr, remoteAddr string
}

func (c *connTransport) InputFile() *os.File  { return nil }
func (c *connTransport) OutputFile() *os.File { return nil }
func (c *connTransport) Protocol() string     { return c.protocol }
func (c *connTransport) LocalAddr() string    { return c.localAddr }
func (c *connTransport) RemoteAddr() string   { return c.remoteAddr }
