// SPDX-License-Identifier: GPL-3.0-or-later

package busconn

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// connState enumerates the lifecycle states of a [Connection] (spec §4.6).
type connState int

const (
	StateUnset connState = iota
	StateOpening
	StateAuthenticating
	StateHello
	StateRunning
	StateClosed
)

// String implements [fmt.Stringer].
func (s connState) String() string {
	switch s {
	case StateUnset:
		return "Unset"
	case StateOpening:
		return "Opening"
	case StateAuthenticating:
		return "Authenticating"
	case StateHello:
		return "Hello"
	case StateRunning:
		return "Running"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// busName is the bus daemon's own well-known name and object path,
// used for the implicit Hello call (spec §4.6, "Hello gate").
const (
	busName      = "org.freedesktop.DBus"
	busPath      = "/org/freedesktop/DBus"
	busInterface = "org.freedesktop.DBus"
)

// Connection drives one D-Bus connection end to end: transport dialing,
// authentication, message framing, reply correlation, and dispatch
// (spec §1, §4). A Connection is not safe for concurrent use from
// multiple goroutines; callers that need that own their own
// serialization, matching the single-threaded process() model spec §4.6
// describes.
type Connection struct {
	cfg     *Config
	cursor  *AddressCursor
	dialers map[CandidateKind]Func[Candidate, Transport]

	transport     Transport
	transportKind CandidateKind
	auth          *authMachine

	// dialDone is non-nil while a candidate is being dialed in the
	// background (see stepOpening): the dial itself can block on a DNS
	// lookup or TCP handshake, so it runs in its own goroutine instead
	// of blocking the single-threaded process() round.
	dialDone      chan dialOutcome
	dialCandidate Candidate

	sendQ   *msgQueue
	replies *replyTable
	filters *filterList
	matches *matchTree
	objects *objectTree

	state       connState
	nextSerial  uint32
	iteration   uint64
	helloSerial uint32
	uniqueName  string
	serverGUID  string

	readBuf []byte // accumulates partial frames across non-blocking reads

	creatorPID int
	refcount   atomic.Int32
	closeOnce  sync.Once
	closeErr   error

	// processing guards [*Connection.Process] against re-entrant
	// invocation (spec §3, §4.6: "process() is non-re-entrant"). A
	// reply callback that calls back into Process or Call while a round
	// is already running would otherwise corrupt readBuf/iteration/queue
	// state.
	processing atomic.Bool

	Logger        SLogger
	ErrClassifier ErrClassifier
	TimeNow       func() time.Time
}

// NewConnection creates a [*Connection] for address (spec §4.1 syntax),
// in [StateUnset]. ns is used only by the "x-container:" candidate kind
// and may be nil if that transport is not needed; with ns == nil an
// "x-container:" candidate is skipped and the next candidate is tried.
//
// The returned Connection has refcount 1 (spec §5); call
// [*Connection.Ref] and [*Connection.Unref] to share ownership.
func NewConnection(cfg *Config, address string, ns NamespaceEntry) (*Connection, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if _, err := ParseAddress(address); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	c := &Connection{
		cfg:     cfg,
		cursor:  NewAddressCursor(address),
		dialers: newDialerTable(cfg, ns, logger),
		sendQ:   newMsgQueue(cfg.WriteQueueMax),
		replies: newReplyTable(&ReplyLogContext{
			ErrClassifier: cfg.ErrClassifier,
			Logger:        logger,
			TimeNow:       cfg.TimeNow,
		}, cfg.TimeNow),
		filters:       &filterList{},
		matches:       &matchTree{},
		objects:       newObjectTree(),
		state:         StateUnset,
		creatorPID:    os.Getpid(),
		Logger:        logger,
		ErrClassifier: cfg.ErrClassifier,
		TimeNow:       cfg.TimeNow,
	}
	c.refcount.Store(1)
	return c, nil
}

// newDialerTable wires one Func[Candidate, Transport] pipeline per
// [CandidateKind]: dial, then observe, then cancel-watch, mirroring the
// resolve→connect→observe→cancel-watch composition the rest of this
// package's pipelines follow.
func newDialerTable(cfg *Config, ns NamespaceEntry, logger SLogger) map[CandidateKind]Func[Candidate, Transport] {
	observe := NewObserveFunc(cfg, logger)
	watch := NewCancelWatchFunc()
	table := map[CandidateKind]Func[Candidate, Transport]{
		CandidateUnix:     Compose3[Candidate, Transport, Transport](NewUnixDialFunc(cfg, logger), observe, watch),
		CandidateTCP:      Compose3[Candidate, Transport, Transport](NewTCPDialFunc(cfg, logger), observe, watch),
		CandidateUnixExec: Compose3[Candidate, Transport, Transport](NewExecDialFunc(cfg, logger), observe, watch),
		CandidateKernel:   Compose3[Candidate, Transport, Transport](NewKernelDialFunc(cfg, logger), observe, watch),
	}
	if ns != nil {
		table[CandidateContainer] = Compose3[Candidate, Transport, Transport](NewContainerDialFunc(cfg, ns, logger), observe, watch)
	}
	return table
}

// Ref increments the reference count and returns c, for the common
// "store a ref while starting a goroutine" idiom.
func (c *Connection) Ref() *Connection {
	c.refcount.Add(1)
	return c
}

// Unref decrements the reference count and closes the connection once
// it reaches zero. Calling Unref more times than Ref (plus the initial
// reference from [NewConnection]) is a programming error.
func (c *Connection) Unref() error {
	if c.refcount.Add(-1) == 0 {
		return c.Close()
	}
	return nil
}

// checkCaller returns [ErrKindChildGuard] if the calling process differs
// from the one that created c (spec §5: a forked child must not drive
// its parent's Connection).
func (c *Connection) checkCaller(op string) error {
	if os.Getpid() != c.creatorPID {
		return newErr(op, ErrKindChildGuard, ErrChildGuard)
	}
	return nil
}

// Start transitions the connection from [StateUnset] to [StateOpening],
// making it eligible for [*Connection.Process] to drive forward.
func (c *Connection) Start() error {
	if err := c.checkCaller("Connection.Start"); err != nil {
		return err
	}
	if c.state != StateUnset {
		return newErr("Connection.Start", ErrKindPermissionDenied, ErrPermissionDenied)
	}
	c.state = StateOpening
	return nil
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() connState {
	return c.state
}

// ServerID returns the bus daemon's GUID, learned during authentication.
// It is empty before authentication completes.
func (c *Connection) ServerID() string {
	return c.serverGUID
}

// UniqueName returns the unique bus name assigned by the Hello call. It
// is empty before [StateRunning].
func (c *Connection) UniqueName() string {
	return c.uniqueName
}

// AddFilter installs fn to run on every inbound message ahead of
// match-rule and object-tree dispatch (spec §4.6 step c). The returned
// handle can be passed to [*Connection.RemoveFilter].
func (c *Connection) AddFilter(fn FilterFunc) any {
	return c.filters.Add(fn)
}

// RemoveFilter unregisters a filter previously returned by
// [*Connection.AddFilter].
func (c *Connection) RemoveFilter(handle any) bool {
	entry, ok := handle.(*filterEntry)
	if !ok {
		return false
	}
	return c.filters.Remove(entry)
}

// AddMatchRule subscribes fn to messages matching the given pattern
// (empty fields are wildcards), returning cookie for later removal with
// [*Connection.RemoveMatchRule]. This is the local-dispatch half of the
// bus's AddMatch mechanism (spec §4.6 step d); wiring the corresponding
// org.freedesktop.DBus.AddMatch method call is the caller's
// responsibility.
func (c *Connection) AddMatchRule(iface, member, path, arg0, cookie string, fn MatchFunc) {
	c.matches.AddRule(iface, member, path, arg0, cookie, fn)
}

// RemoveMatchRule unsubscribes the rule registered under cookie.
func (c *Connection) RemoveMatchRule(cookie string) bool {
	return c.matches.RemoveRule(cookie)
}

// Export installs handler for iface.member on path (spec §4.6 step f).
func (c *Connection) Export(path, iface, member string, handler MethodHandler) {
	c.objects.AddMethod(path, iface, member, handler)
}

// Unexport removes every handler registered on path.
func (c *Connection) Unexport(path string) {
	c.objects.RemoveNode(path)
}

// nextOutSerial returns the next strictly-increasing serial to assign to
// an outbound message (spec §8 invariant: "serials are assigned in
// strictly increasing order and never reused while outstanding").
func (c *Connection) nextOutSerial() uint32 {
	c.nextSerial++
	if c.nextSerial == 0 {
		c.nextSerial = 1
	}
	return c.nextSerial
}

// Send enqueues msg on the outgoing queue for async dispatch. If timeout
// is not [NoTimeout] and the caller wants a reply, pass cb and ud; pass a
// nil cb when [Message.SetNoReplyExpected] was set to true. Returns the
// serial assigned to msg.
func (c *Connection) Send(msg *Message, timeout time.Duration, cb ReplyCallback, ud any) (uint32, error) {
	if c.state != StateRunning && c.state != StateHello {
		return 0, newErr("Connection.Send", ErrKindNotConnected, ErrNotConnected)
	}
	serial := msg.Seal(c.nextOutSerial())
	if err := c.sendQ.Push(msg); err != nil {
		return 0, err
	}
	if cb != nil {
		if timeout == 0 {
			// spec §4.5: a caller-supplied 0 means "use the configured
			// default", not "expire immediately".
			timeout = c.cfg.DefaultTimeout
		}
		if err := c.replies.register(serial, cb, ud, timeout); err != nil {
			return 0, err
		}
	}
	return serial, nil
}

// Call sends msg and blocks, driving [*Connection.Process] until a reply
// arrives, the deadline implied by timeout elapses, or ctx is cancelled.
func (c *Connection) Call(ctx context.Context, msg *Message, timeout time.Duration) (*Message, error) {
	var reply *Message
	done := make(chan struct{})
	_, err := c.Send(msg, timeout, func(m *Message, _ any) {
		reply = m
		close(done)
	}, nil)
	if err != nil {
		return nil, err
	}
	for {
		select {
		case <-done:
			if reply != nil && reply.Header.Type == TypeMethodError {
				if reply.ErrorName == ErrorNameNoReply {
					return reply, newErr("Connection.Call", ErrKindTimeout, ErrTimeout)
				}
				return reply, newErr("Connection.Call", ErrKindRemote, nil)
			}
			return reply, nil
		case <-ctx.Done():
			return nil, newErr("Connection.Call", ErrKindTimeout, ctx.Err())
		default:
		}
		progressed, err := c.Process(ctx)
		if err != nil {
			return nil, err
		}
		if !progressed {
			// Nothing to do this round (transport would-block, no
			// timeout expired): avoid a pure busy spin while waiting
			// for the next readiness notification.
			time.Sleep(time.Millisecond)
		}
	}
}

// Close tears down the connection's transport and transitions to
// [StateClosed]. It is idempotent: subsequent calls return the result of
// the first call.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		if c.transport != nil {
			c.closeErr = c.transport.Close()
		}
		c.state = StateClosed
	})
	return c.closeErr
}
