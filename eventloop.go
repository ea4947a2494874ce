// SPDX-License-Identifier: GPL-3.0-or-later

package busconn

import (
	"os"
	"time"
)

// ReactorEvents is a bitmask of I/O readiness a [Connection] wants to be
// notified about (spec §4.7).
type ReactorEvents int

const (
	EventReadable ReactorEvents = 1 << iota
	EventWritable
)

// Reactor is the contract an external event loop (epoll, kqueue, a
// userspace poller) must satisfy to drive a [Connection]. This package
// implements none of the reactor side itself (spec §1 Non-goals: "a
// userspace event loop adapter is out of scope"); callers bridge
// [*Connection.DesiredEvents], [*Connection.Fds], and
// [*Connection.NextDeadline] into whatever polling primitive they use,
// calling [*Connection.Process] when it fires.
type Reactor interface {
	// Watch registers interest in events on fd, to be reported through
	// whatever mechanism the concrete Reactor uses to wake its caller.
	Watch(fd *os.File, events ReactorEvents) error

	// Unwatch cancels a prior Watch for fd.
	Unwatch(fd *os.File) error
}

// DesiredEvents reports which I/O readiness events the connection
// currently wants. During [StateOpening] this is 0: the dial runs on a
// background goroutine with no fd of its own to watch yet, so a caller
// must instead rely on [*Connection.NextDeadline] to know when to call
// [*Connection.Process] again. Once a transport exists, it is always
// [EventReadable], plus [EventWritable] whenever there are unsent bytes
// queued up (spec §4.7).
func (c *Connection) DesiredEvents() ReactorEvents {
	if c.transport == nil {
		return 0
	}
	events := EventReadable
	switch c.state {
	case StateAuthenticating:
		if c.auth != nil && len(c.auth.outbuf) > 0 {
			events |= EventWritable
		}
	case StateHello, StateRunning:
		if c.sendQ.Len() > 0 {
			events |= EventWritable
		}
	}
	return events
}

// NextDeadline returns the earliest time [*Connection.Process] should
// be called even with no I/O readiness. While a dial is in flight
// ([StateOpening] with a candidate already being dialed) this is a short
// poll interval, since the background goroutine driving the dial has no
// fd the caller can watch; otherwise it is driven by outstanding reply
// timeouts. ok is false if there is no pending deadline.
func (c *Connection) NextDeadline() (deadline time.Time, ok bool) {
	if c.state == StateOpening && c.dialDone != nil {
		return c.TimeNow().Add(dialPollInterval), true
	}
	return c.replies.NextDeadline()
}

// Fds returns the file descriptors a [Reactor] should watch for this
// connection: in for readability, out for writability. Either may be
// nil if the transport does not expose a descriptor (e.g. a pipe-backed
// unixexec transport falling back to blocking I/O) or if no transport
// has been dialed yet.
func (c *Connection) Fds() (in, out *os.File) {
	if c.transport == nil {
		return nil, nil
	}
	return c.transport.InputFile(), c.transport.OutputFile()
}
