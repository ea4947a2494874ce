// SPDX-License-Identifier: GPL-3.0-or-later

package busconn

import (
	"net"
	"os"
	"time"
)

// Config holds common configuration for connection engine operations.
//
// Pass this to [NewConnection] and to the transport dialer constructors
// to pre-wire dependencies. All fields have sensible defaults set by
// [NewConfig].
type Config struct {
	// Dialer is used by the TCP transport dialer.
	//
	// Set by [NewConfig] to [*net.Dialer].
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConfig] to [DefaultErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use for structured logging.
	//
	// Set by [NewConfig] to [DefaultSLogger] (a no-op discard logger).
	Logger SLogger

	// TimeNow returns the current time.
	//
	// Set by [NewConfig] to [time.Now].
	TimeNow func() time.Time

	// WriteQueueMax is the bound on the outgoing message queue
	// (BUS_WQUEUE_MAX in spec §4.4).
	//
	// Set by [NewConfig] to 256.
	WriteQueueMax int

	// ReadQueueMax is not consulted by the engine: there is no incoming
	// message queue, and each Process round parses at most one frame from
	// its read buffer and dispatches it directly.
	//
	// Set by [NewConfig] to 256.
	ReadQueueMax int

	// DefaultTimeout is the timeout used when a caller passes 0 to an
	// async call (BUS_DEFAULT_TIMEOUT in spec §4.5).
	//
	// Set by [NewConfig] to 25 seconds, matching the D-Bus reference
	// implementation's default.
	DefaultTimeout time.Duration

	// AuthTimeout is not consulted by the engine: the authentication
	// handshake has no deadline and runs until the server answers or the
	// transport fails.
	//
	// Set by [NewConfig] to 30 seconds.
	AuthTimeout time.Duration
}

// NewConfig creates a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Dialer:         &net.Dialer{},
		ErrClassifier:  DefaultErrClassifier,
		Logger:         DefaultSLogger(),
		TimeNow:        time.Now,
		WriteQueueMax:  256,
		ReadQueueMax:   256,
		DefaultTimeout: 25 * time.Second,
		AuthTimeout:    30 * time.Second,
	}
}

// NoTimeout, when passed to [*Connection.Call] or an async send, means
// "wait forever" (spec §4.5: "(uint64_t)-1 means no timeout").
const NoTimeout time.Duration = -1

// EnvAddress resolves the default bus address from the environment,
// following spec §6: DBUS_SYSTEM_BUS_ADDRESS and DBUS_SESSION_BUS_ADDRESS
// override the default socket paths, and XDG_RUNTIME_DIR builds the
// default session path as "<dir>/bus".
//
// system selects between the system and session bus defaults.
func EnvAddress(system bool) string {
	if system {
		if v := os.Getenv("DBUS_SYSTEM_BUS_ADDRESS"); v != "" {
			return v
		}
		return "unix:path=/var/run/dbus/system_bus_socket"
	}
	if v := os.Getenv("DBUS_SESSION_BUS_ADDRESS"); v != "" {
		return v
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return "unix:path=" + dir + "/bus"
	}
	return ""
}
