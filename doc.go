// SPDX-License-Identifier: GPL-3.0-or-later

// Package busconn implements a client-side connection engine for the D-Bus
// IPC protocol.
//
// # Core Abstraction
//
// A [*Connection] negotiates a transport, authenticates, and multiplexes
// method calls, method replies, signals, and introspection traffic over a
// single bidirectional byte stream (or a kernel-bus transport with the same
// framing contract). The engine owns the full I/O lifecycle: transport
// selection ([ParseAddress]), SASL-style authentication, message queueing,
// reply correlation with timeouts, filter/match-rule dispatch, and built-in
// org.freedesktop.DBus.Peer responses.
//
// # Lifecycle
//
//	cfg := NewConfig()
//	conn, err := NewConnection(cfg, "unix:path=/run/dbus/system_bus_socket", nil)
//	if err != nil { ... }
//	if err := conn.Start(); err != nil { ... }
//	for conn.State() != StateRunning {
//	        if _, err := conn.Process(ctx); err != nil { ... }
//	}
//	reply, err := conn.Call(ctx, msg, 0)
//
// The connection drives the [Candidate] values produced by [ParseAddress]
// until one dialer succeeds, runs the authentication handshake, exchanges
// a Hello round-trip (skipped on the kernel transport) to learn its unique
// name, then enters [StateRunning]. From there the caller either calls
// [*Connection.Process] in a loop or attaches the connection to an external reactor
// via [*Connection.Fds], [*Connection.DesiredEvents], and
// [*Connection.NextDeadline].
//
// # Transports
//
// Five transport kinds are supported, selected by address prefix: unix
// domain sockets ("unix:"), TCP ("tcp:"), an exec-spawned child whose
// stdio is the transport ("unixexec:"), a kernel-bus character device
// ("kernel:"), and a container's system bus reached by namespace entry
// ("x-container:"). See [ParseAddress] for the address grammar.
//
// # Observability
//
// All components support structured logging via [SLogger] (compatible
// with [log/slog]). By default logging is disabled; set [Config.Logger]
// to enable it. Error classification is configurable via
// [Config.ErrClassifier]. Dial, close, and reply-correlation events
// (call start, done, timeout) are logged at Info; authentication steps
// and per-I/O events (read, write) at Debug. [NewSpanID] generates span
// identifiers, but the engine's own log events do not carry one.
//
// # Concurrency
//
// The engine is single-threaded per [*Connection]: [*Connection.Process],
// [*Connection.Call], and the other methods are mutually exclusive by
// convention, and [*Connection.Process] itself is guarded against
// re-entrant invocation. No [Connection] state is protected by a mutex.
//
// # Design Boundaries
//
// This package implements the connection engine only. Full signature-typed
// message marshalling, a full object-vtable host, and any higher-level
// object-model service (name registries, machine managers, and similar)
// are intentionally out of scope; they are meant to be built on top of
// [*Connection] using the exported filter, match, and object-node hooks.
package busconn
