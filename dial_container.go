// SPDX-License-Identifier: GPL-3.0-or-later

package busconn

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// NamespaceEntry abstracts entering a container's namespace before
// dialing its system bus socket.
//
// Concrete implementations are necessarily platform- and
// privilege-specific (setns(2) on Linux); this engine depends only on
// the abstract contract so it stays portable and testable.
type NamespaceEntry interface {
	// Enter enters the namespace of the container named by machine and
	// returns a cleanup function that restores the caller's namespace.
	Enter(ctx context.Context, machine string) (cleanup func(), err error)
}

// containerSocketPath is the conventional system-bus socket path inside
// a container's mount namespace (spec §4.1: "a conventional path").
const containerSocketPath = "/var/run/dbus/system_bus_socket"

// NewContainerDialFunc returns a new [*ContainerDialFunc] wired from cfg.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewContainerDialFunc(cfg *Config, ns NamespaceEntry, logger SLogger) *ContainerDialFunc {
	return &ContainerDialFunc{
		NamespaceEntry: ns,
		Unix:           NewUnixDialFunc(cfg, logger),
		ErrClassifier:  cfg.ErrClassifier,
		Logger:         logger,
		TimeNow:        cfg.TimeNow,
	}
}

// ContainerDialFunc dials the "x-container:" transport candidate of
// spec §4.2: it enters the named container's namespace and connects to
// its system bus socket at [containerSocketPath].
//
// Namespace entry and the unix-socket dial run under a shared
// [errgroup.Group] so that cancelling the context (or either step
// failing) unwinds the other promptly, the same pattern
// golang.org/x/sync/errgroup gives the rest of the pack for
// cancellation-aware concurrent setup steps.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type ContainerDialFunc struct {
	// NamespaceEntry enters the target container's namespace.
	NamespaceEntry NamespaceEntry

	// Unix dials the unix-domain socket once inside the namespace.
	Unix *UnixDialFunc

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewContainerDialFunc] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	//
	// Set by [NewContainerDialFunc] to the user-provided logger.
	Logger SLogger

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewContainerDialFunc] from [Config.TimeNow].
	TimeNow func() time.Time
}

var _ Func[Candidate, Transport] = &ContainerDialFunc{}

// Call enters candidate.Machine's namespace and dials its system bus
// socket, returning the resulting [Transport].
func (op *ContainerDialFunc) Call(ctx context.Context, candidate Candidate) (Transport, error) {
	t0 := op.TimeNow()
	deadline, _ := ctx.Deadline()
	op.logDialStart(candidate, t0, deadline)

	group, gctx := errgroup.WithContext(ctx)

	var cleanup func()
	group.Go(func() error {
		c, err := op.NamespaceEntry.Enter(gctx, candidate.Machine)
		if err != nil {
			return newErr("ContainerDialFunc.Call", ErrKindTransport, err)
		}
		cleanup = c
		return nil
	})

	var transport Transport
	group.Go(func() error {
		unixCandidate := Candidate{Kind: CandidateUnix, UnixPath: containerSocketPath}
		t, err := op.Unix.Call(gctx, unixCandidate)
		if err != nil {
			return err
		}
		transport = t
		return nil
	})

	err := group.Wait()
	if cleanup != nil {
		defer cleanup()
	}
	op.logDialDone(candidate, t0, deadline, err)
	if err != nil {
		if transport != nil {
			transport.Close()
		}
		return nil, newErr("ContainerDialFunc.Call", ErrKindTransport, err)
	}
	return transport, nil
}

func (op *ContainerDialFunc) logDialStart(candidate Candidate, t0 time.Time, deadline time.Time) {
	op.Logger.Info(
		"dialStart",
		slog.Time("deadline", deadline),
		slog.String("protocol", "x-container"),
		slog.String("remoteAddr", candidate.Machine),
		slog.Time("t", t0),
	)
}

func (op *ContainerDialFunc) logDialDone(candidate Candidate, t0 time.Time, deadline time.Time, err error) {
	op.Logger.Info(
		"dialDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("protocol", "x-container"),
		slog.String("remoteAddr", candidate.Machine),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
	)
}
