// SPDX-License-Identifier: GPL-3.0-or-later

package busconn

import (
	"context"
)

// NewCancelWatchFunc returns a new [*CancelWatchFunc].
func NewCancelWatchFunc() *CancelWatchFunc {
	return &CancelWatchFunc{}
}

// CancelWatchFunc arranges for the transport to be closed when the
// context is done (cancelled or deadline exceeded). This provides
// responsive cleanup on external cancellation (e.g., SIGINT via
// signal.NotifyContext) rather than waiting for per-operation timeouts.
//
// The returned transport wraps the input transport. Closing the
// returned transport unregisters the context watcher and closes the
// underlying transport. This ensures no goroutine leaks even if the
// context is never cancelled.
//
// Use this primitive in pipelines where:
//   - The context lifetime matches the intended connection lifetime
//   - Immediate cleanup on cancellation is desired (e.g., CLI tools)
//
// Do not use this primitive when:
//   - The transport will be returned and may outlive the current context
//   - You're implementing a connection pool or long-lived connection management
type CancelWatchFunc struct{}

var _ Func[Transport, Transport] = &CancelWatchFunc{}

// Call registers a context watcher using [context.AfterFunc] that closes
// the transport when the context is done. The returned [Transport] wraps
// the input: closing it unregisters the watcher and closes the
// underlying transport.
func (op *CancelWatchFunc) Call(ctx context.Context, transport Transport) (Transport, error) {
	stop := context.AfterFunc(ctx, func() {
		transport.Close()
	})
	return &cancelWatchedTransport{Transport: transport, stop: stop}, nil
}

// cancelWatchedTransport wraps a [Transport] with a context cancellation watcher.
type cancelWatchedTransport struct {
	Transport
	stop func() bool
}

// Close unregisters the context watcher and closes the underlying transport.
func (c *cancelWatchedTransport) Close() error {
	c.stop()
	return c.Transport.Close()
}
