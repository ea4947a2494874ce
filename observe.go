//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/measurexlite/conn.go
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/x/netcore/conn.go
//

package busconn

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"
)

// NewObserveFunc returns a new [*ObserveFunc] with default logging.
//
// The cfg argument contains the common configuration for busconn operations.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewObserveFunc(cfg *Config, logger SLogger) *ObserveFunc {
	return &ObserveFunc{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// ObserveFunc observes a [Transport] to log I/O operations.
//
// This primitive provides observability for transport operations by
// logging all I/O events including reads, writes, and closes. For
// timeout enforcement, use [CancelWatchFunc] to close the transport when
// the context is done, which causes any in-progress I/O to fail
// immediately.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type ObserveFunc struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewObserveFunc] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	//
	// Set by [NewObserveFunc] to the user-provided logger.
	Logger SLogger

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewObserveFunc] from [Config.TimeNow].
	TimeNow func() time.Time
}

var _ Func[Transport, Transport] = &ObserveFunc{}

// Call wraps transport with a logging decorator that preserves its
// Protocol/LocalAddr/RemoteAddr/InputFile/OutputFile identity.
func (op *ObserveFunc) Call(ctx context.Context, transport Transport) (Transport, error) {
	observed := &observedTransport{
		closeonce: sync.Once{},
		transport: transport,
		op:        op,
	}
	return observed, nil
}

// observedTransport observes a [Transport].
type observedTransport struct {
	closeonce sync.Once
	transport Transport
	op        *ObserveFunc
}

func (c *observedTransport) InputFile() *os.File  { return c.transport.InputFile() }
func (c *observedTransport) OutputFile() *os.File { return c.transport.OutputFile() }
func (c *observedTransport) Protocol() string     { return c.transport.Protocol() }
func (c *observedTransport) LocalAddr() string    { return c.transport.LocalAddr() }
func (c *observedTransport) RemoteAddr() string   { return c.transport.RemoteAddr() }

// Close implements [Transport].
//
// Subsequent calls return nil without re-closing the underlying
// transport, consistent with the once-only close contract of spec §5.
func (c *observedTransport) Close() (err error) {
	c.closeonce.Do(func() {
		t0 := c.op.TimeNow()
		c.op.Logger.Info(
			"closeStart",
			slog.String("localAddr", c.LocalAddr()),
			slog.String("protocol", c.Protocol()),
			slog.String("remoteAddr", c.RemoteAddr()),
			slog.Time("t", t0),
		)

		err = c.transport.Close()

		c.op.Logger.Info(
			"closeDone",
			slog.Any("err", err),
			slog.String("errClass", c.op.ErrClassifier.Classify(err)),
			slog.String("localAddr", c.LocalAddr()),
			slog.String("protocol", c.Protocol()),
			slog.String("remoteAddr", c.RemoteAddr()),
			slog.Time("t0", t0),
			slog.Time("t", c.op.TimeNow()),
		)
	})
	return
}

// Read implements [Transport].
func (c *observedTransport) Read(buf []byte) (int, error) {
	t0 := c.op.TimeNow()
	c.op.Logger.Debug(
		"readStart",
		slog.Int("ioBufferSize", len(buf)),
		slog.String("localAddr", c.LocalAddr()),
		slog.String("protocol", c.Protocol()),
		slog.String("remoteAddr", c.RemoteAddr()),
		slog.Time("t", t0),
	)

	count, err := c.transport.Read(buf)

	c.op.Logger.Debug(
		"readDone",
		slog.Int("ioBytesCount", count),
		slog.Any("err", err),
		slog.String("errClass", c.op.ErrClassifier.Classify(err)),
		slog.String("localAddr", c.LocalAddr()),
		slog.String("protocol", c.Protocol()),
		slog.String("remoteAddr", c.RemoteAddr()),
		slog.Time("t0", t0),
		slog.Time("t", c.op.TimeNow()),
	)

	return count, err
}

// Write implements [Transport].
func (c *observedTransport) Write(data []byte) (n int, err error) {
	t0 := c.op.TimeNow()
	c.op.Logger.Debug(
		"writeStart",
		slog.Int("ioBufferSize", len(data)),
		slog.String("localAddr", c.LocalAddr()),
		slog.String("protocol", c.Protocol()),
		slog.String("remoteAddr", c.RemoteAddr()),
		slog.Time("t", t0),
	)

	count, err := c.transport.Write(data)

	c.op.Logger.Debug(
		"writeDone",
		slog.Int("ioBytesCount", count),
		slog.Any("err", err),
		slog.String("errClass", c.op.ErrClassifier.Classify(err)),
		slog.String("localAddr", c.LocalAddr()),
		slog.String("protocol", c.Protocol()),
		slog.String("remoteAddr", c.RemoteAddr()),
		slog.Time("t0", t0),
		slog.Time("t", c.op.TimeNow()),
	)

	return count, err
}
