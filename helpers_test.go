// SPDX-License-Identifier: GPL-3.0-or-later

package busconn

import (
	"context"
	"log/slog"

	"github.com/bassosimone/busconn/busstub"
)

// capturingHandler is a minimal [slog.Handler] that appends every record
// it receives, used by [newCapturingLogger] instead of an external
// handler-stub dependency.
type capturingHandler struct {
	records *[]slog.Record
}

func (h *capturingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *capturingHandler) Handle(_ context.Context, record slog.Record) error {
	*h.records = append(*h.records, record)
	return nil
}

func (h *capturingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *capturingHandler) WithGroup(string) slog.Handler      { return h }

// newCapturingLogger returns a logger that captures all log records into the
// returned slice. The caller can inspect the slice after exercising the code
// under test to verify which events were emitted.
func newCapturingLogger() (*slog.Logger, *[]slog.Record) {
	records := &[]slog.Record{}
	return slog.New(&capturingHandler{records: records}), records
}

// newMinimalTransport returns a [*busstub.FuncTransport] with only
// Protocol/LocalAddr/RemoteAddr wired, the minimum needed for code
// paths that only need transport metadata during construction.
func newMinimalTransport() *busstub.FuncTransport {
	return &busstub.FuncTransport{
		ProtocolFunc:   func() string { return "tcp" },
		LocalAddrFunc:  func() string { return "127.0.0.1:0" },
		RemoteAddrFunc: func() string { return "127.0.0.1:0" },
	}
}
