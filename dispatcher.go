// SPDX-License-Identifier: GPL-3.0-or-later

package busconn

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Process drives the connection state machine forward by exactly one
// non-blocking round (spec §4.6): dialing, authenticating, or — once
// Running — the first of these steps that has work to do: expiring
// timeouts, flushing the send queue, or reading and dispatching at most
// one complete inbound message (see stepRunning).
// progressed reports whether this round did any useful work, so a
// caller driving a tight loop (like [*Connection.Call]) knows when to
// back off until the next readiness notification. Process is not
// re-entrant: a reply callback invoked from within this call that calls
// back into Process fails with [ErrPermissionDenied].
func (c *Connection) Process(ctx context.Context) (progressed bool, err error) {
	if !c.processing.CompareAndSwap(false, true) {
		return false, newErr("Connection.Process", ErrKindPermissionDenied, ErrPermissionDenied)
	}
	defer c.processing.Store(false)

	switch c.state {
	case StateUnset, StateClosed:
		return false, newErr("Connection.Process", ErrKindNotConnected, ErrNotConnected)
	case StateOpening:
		return c.stepOpening(ctx)
	case StateAuthenticating:
		return c.stepAuthenticating(ctx)
	case StateHello, StateRunning:
		return c.stepRunning(ctx)
	default:
		return false, newErr("Connection.Process", ErrKindProtocol, nil)
	}
}

// dialOutcome is the result of a background dial started by stepOpening.
type dialOutcome struct {
	transport Transport
	err       error
}

// dialPollInterval bounds how long a [Reactor]-driven caller can go
// between [*Connection.Process] calls while a dial is in flight (see
// [*Connection.NextDeadline]): a background dial has no fd to watch
// until it completes, so the caller is told to poll instead.
const dialPollInterval = 5 * time.Millisecond

// stepOpening tries candidates from the address cursor in order until
// one dials successfully (spec §8 scenario: "tcp: fails, falls through
// to unix:"), or the cursor is exhausted. Each dial attempt runs in a
// background goroutine and is picked up on a later call: a TCP handshake
// or DNS lookup can take arbitrarily long, and process() must return
// promptly regardless (spec §4.2's non-blocking contract).
func (c *Connection) stepOpening(ctx context.Context) (bool, error) {
	if c.dialDone == nil {
		for {
			cand, ok := c.cursor.Next()
			if !ok {
				c.state = StateClosed
				err := c.cursor.Err()
				if err == nil {
					err = ErrNotConnected
				}
				return false, newErr("Connection.Process", ErrKindTransport, err)
			}
			dialer, ok := c.dialers[cand.Kind]
			if !ok {
				// e.g. x-container with no NamespaceEntry wired: try the
				// next candidate rather than failing outright.
				continue
			}
			done := make(chan dialOutcome, 1)
			go func() {
				transport, err := dialer.Call(ctx, cand)
				done <- dialOutcome{transport: transport, err: err}
			}()
			c.dialDone = done
			c.dialCandidate = cand
			return true, nil
		}
	}

	select {
	case outcome := <-c.dialDone:
		c.dialDone = nil
		if outcome.err != nil {
			// Try the next candidate on the following call.
			return true, nil
		}

		cand := c.dialCandidate
		c.transport = outcome.transport
		c.transportKind = cand.Kind
		c.replies.Log.Protocol = outcome.transport.Protocol()
		c.replies.Log.LocalAddr = outcome.transport.LocalAddr()
		c.replies.Log.RemoteAddr = outcome.transport.RemoteAddr()

		if cand.Kind == CandidateKernel {
			// The kernel transport has no SASL-style handshake (spec
			// §4.2): skip straight to Running.
			c.state = StateRunning
			return true, nil
		}
		c.auth = newAuthMachine(true, false, os.Getuid(), c.Logger, c.ErrClassifier, c.TimeNow)
		c.state = StateAuthenticating
		return true, nil
	default:
		return false, nil
	}
}

// stepAuthenticating advances the SASL-style handshake by one round and,
// once it completes, sends the implicit Hello call (spec §4.3, §4.6).
func (c *Connection) stepAuthenticating(ctx context.Context) (bool, error) {
	done, err := c.auth.Step(c.transport)
	if err != nil {
		c.state = StateClosed
		return false, err
	}
	if !done {
		return false, nil
	}
	c.serverGUID = c.auth.GUID
	c.state = StateHello
	return c.sendHello()
}

// sendHello enqueues the implicit org.freedesktop.DBus.Hello call that
// every connection must complete before any other message is dispatched
// (spec §4.6, "Hello gate").
func (c *Connection) sendHello() (bool, error) {
	msg := NewMethodCall(busName, busPath, busInterface, "Hello")
	serial, err := c.Send(msg, c.cfg.DefaultTimeout, func(reply *Message, _ any) {
		if reply.Header.Type == TypeMethodReturn {
			if name, _, ok := decodeString(reply.Body); ok {
				c.uniqueName = name
			}
		}
		if c.state == StateHello {
			c.state = StateRunning
		}
	}, nil)
	if err != nil {
		c.state = StateClosed
		return false, err
	}
	c.helloSerial = serial
	return true, nil
}

// stepRunning is the fixed dispatch chain of spec §4.6: timeout expiry,
// send-queue flush, inbound fetch, then dispatch of at most one inbound
// message, stopping at the first step that did work (spec §4.6,
// "process_running performs in order ... at most one message per call").
// Dispatching only one message per round, rather than draining every
// buffered frame, keeps one connection's backlog from starving others
// sharing a reactor loop.
func (c *Connection) stepRunning(ctx context.Context) (bool, error) {
	if n := c.replies.expire(c.TimeNow()); n > 0 {
		return true, nil
	}

	wrote, werr := c.flushSendQueue()
	if werr != nil {
		c.state = StateClosed
		return false, werr
	}
	if wrote {
		return true, nil
	}

	msg, rerr := c.fetchInbound()
	if rerr != nil {
		c.state = StateClosed
		return false, rerr
	}
	if msg != nil {
		if c.state == StateHello && (msg.Header.ReplySerial != c.helloSerial ||
			(msg.Header.Type != TypeMethodReturn && msg.Header.Type != TypeMethodError)) {
			// The first inbound message after Hello is sent must be its
			// reply; anything else closes the connection.
			c.state = StateClosed
			return false, newErr("Connection.Process", ErrKindProtocol, nil)
		}
		c.dispatchInbound(msg)
		return true, nil
	}
	return false, nil
}

// flushSendQueue writes as much of the head message's frame as the
// transport accepts without blocking, popping it once fully written.
func (c *Connection) flushSendQueue() (progressed bool, err error) {
	for c.sendQ.Len() > 0 {
		pending := c.sendQ.PendingBytes()
		if pending == nil {
			c.sendQ.Pop()
			continue
		}
		n, werr := c.transport.Write(pending)
		if n > 0 {
			progressed = true
			if c.sendQ.WriteAdvance(n) {
				c.sendQ.Pop()
			}
		}
		if werr != nil {
			if isWouldBlock(werr) {
				return progressed, nil
			}
			return progressed, newErr("Connection.Process", ErrKindTransport, werr)
		}
	}
	return progressed, nil
}

// inboundReadSize is the scratch buffer size for one non-blocking read
// of the transport.
const inboundReadSize = 4096

// fetchInbound returns the next complete inbound frame, or nil if none
// is available yet. If readBuf already holds a complete frame from a
// prior read (a transport can deliver more than one message per Read),
// it is returned without touching the transport; any bytes left over
// after that one frame stay buffered for the next call, so a single
// Process round never dispatches more than one message (spec §4.6).
func (c *Connection) fetchInbound() (*Message, error) {
	if msg, consumed, ok := parseMessageFrame(c.readBuf); ok {
		c.readBuf = c.readBuf[consumed:]
		return msg, nil
	}

	buf := make([]byte, inboundReadSize)
	n, err := c.transport.Read(buf)
	if n > 0 {
		c.readBuf = append(c.readBuf, buf[:n]...)
	}
	if err != nil && !isWouldBlock(err) {
		return nil, newErr("Connection.Process", ErrKindTransport, err)
	}

	msg, consumed, ok := parseMessageFrame(c.readBuf)
	if !ok {
		return nil, nil
	}
	c.readBuf = c.readBuf[consumed:]
	return msg, nil
}

// dispatchInbound runs one message through the fixed chain of spec
// §4.6 step e/f: reply correlation, filters, matches, the built-in
// org.freedesktop.DBus.Peer interface, the object tree, and finally an
// UnknownObject fallback for unclaimed method calls.
func (c *Connection) dispatchInbound(msg *Message) {
	if c.state == StateHello {
		// Before Hello completes, stepRunning lets only the Hello reply
		// through (any other message closes the connection there); it is
		// correlated and nothing else runs.
		if msg.Header.ReplySerial == c.helloSerial {
			c.replies.deliver(msg)
		}
		return
	}

	c.iteration++
	iteration := c.iteration

	if c.replies.deliver(msg) {
		return
	}
	if r := c.filters.Dispatch(msg, iteration); r != 0 {
		return
	}
	if r := c.matches.Dispatch(msg, iteration); r != 0 {
		return
	}
	if msg.Header.Type != TypeMethodCall {
		return
	}

	if reply, handled := c.dispatchBuiltin(msg); handled {
		c.sendReply(msg, reply)
		return
	}
	if reply, handled := c.objects.Dispatch(msg); handled {
		c.sendReply(msg, reply)
		return
	}
	c.sendReply(msg, NewMethodError(msg, ErrorNameUnknownObject, "Unknown object path"))
}

// dispatchBuiltin implements the built-in org.freedesktop.DBus.Peer
// interface every connection answers regardless of object path (spec
// §6): Ping returns an empty method-return, GetMachineId returns the
// server GUID learned during authentication.
func (c *Connection) dispatchBuiltin(msg *Message) (*Message, bool) {
	if msg.Interface != "org.freedesktop.DBus.Peer" {
		return nil, false
	}
	switch msg.Member {
	case "Ping":
		return NewMethodReturn(msg), true
	case "GetMachineId":
		reply := NewMethodReturn(msg)
		reply.Body = encodeString(c.serverGUID)
		return reply, true
	default:
		return NewMethodError(msg, ErrorNameUnknownMethod, "No such method"), true
	}
}

// sendReply seals and enqueues reply as the response to msg, unless msg
// asked for no reply.
func (c *Connection) sendReply(msg, reply *Message) {
	if reply == nil || msg.NoReplyExpected() {
		return
	}
	reply.Seal(c.nextOutSerial())
	if err := c.sendQ.Push(reply); err != nil {
		c.Logger.Info("replyDropped", slog.String("err", err.Error()))
	}
}
