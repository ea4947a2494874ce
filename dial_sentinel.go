// SPDX-License-Identifier: GPL-3.0-or-later

package busconn

import (
	"context"
	"net"
)

// kernelUnusedDialer is a [Dialer] that panics if DialContext is called.
//
// The "kernel:" transport (spec §4.2) opens its bus node directly with
// [os.OpenFile]; it never goes through a [Dialer]. This type serves as a
// sentinel to catch programming errors where the kernel dialer is wired
// into a pipeline stage that expects to dial.
type kernelUnusedDialer struct{}

var _ Dialer = kernelUnusedDialer{}

// DialContext implements [Dialer] and always panics.
func (kernelUnusedDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	panic("busconn: kernel transport must not dial; this is a programming error")
}
