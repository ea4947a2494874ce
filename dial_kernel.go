// SPDX-License-Identifier: GPL-3.0-or-later

package busconn

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// NewKernelDialFunc returns a new [*KernelDialFunc] wired from cfg.
//
// The logger argument is the [SLogger] to use for structured logging.
func NewKernelDialFunc(cfg *Config, logger SLogger) *KernelDialFunc {
	return &KernelDialFunc{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// KernelDialFunc dials the "kernel:" transport candidate of spec §4.2: a
// kernel bus character device opened directly, with no SASL-style
// handshake and no dial step (see [kernelUnusedDialer]).
//
// The kernel bus node exposes an out-of-band identity and ioctl surface
// this engine does not model (see the Open Question disposition in
// DESIGN.md); the returned [Transport] treats the device as an opaque
// byte stream.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type KernelDialFunc struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewKernelDialFunc] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use (configurable for testing or custom logging).
	//
	// Set by [NewKernelDialFunc] to the user-provided logger.
	Logger SLogger

	// TimeNow is the function to get the current time (configurable for testing).
	//
	// Set by [NewKernelDialFunc] from [Config.TimeNow].
	TimeNow func() time.Time
}

var _ Func[Candidate, Transport] = &KernelDialFunc{}

// Call opens candidate.KernelPath read-write and wraps it in a
// [*fileTransport]. The caller that receives this [Transport] must skip
// straight to the Running state (spec §4.2) rather than starting the
// auth machine.
func (op *KernelDialFunc) Call(ctx context.Context, candidate Candidate) (Transport, error) {
	t0 := op.TimeNow()
	deadline, _ := ctx.Deadline()
	op.logDialStart(candidate, t0, deadline)

	f, err := os.OpenFile(candidate.KernelPath, os.O_RDWR, 0)
	op.logDialDone(candidate, t0, deadline, err)
	if err != nil {
		return nil, newErr("KernelDialFunc.Call", ErrKindTransport, err)
	}
	return newFileTransport(f, "kernel", candidate.KernelPath, ""), nil
}

func (op *KernelDialFunc) logDialStart(candidate Candidate, t0 time.Time, deadline time.Time) {
	op.Logger.Info(
		"dialStart",
		slog.Time("deadline", deadline),
		slog.String("protocol", "kernel"),
		slog.String("remoteAddr", candidate.KernelPath),
		slog.Time("t", t0),
	)
}

func (op *KernelDialFunc) logDialDone(candidate Candidate, t0 time.Time, deadline time.Time, err error) {
	op.Logger.Info(
		"dialDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", op.ErrClassifier.Classify(err)),
		slog.String("protocol", "kernel"),
		slog.String("remoteAddr", candidate.KernelPath),
		slog.Time("t0", t0),
		slog.Time("t", op.TimeNow()),
	)
}
