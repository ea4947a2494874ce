// SPDX-License-Identifier: GPL-3.0-or-later

// Package busstub provides fake [net.Conn] and [net.Dialer]-shaped types
// for testing the connection engine without real sockets.
//
// Adapted from the field-by-field function-stub pattern used by
// github.com/bassosimone/netstub in the upstream nop test suite.
package busstub

import (
	"context"
	"net"
	"os"
	"time"
)

// FuncConn is a [net.Conn] whose methods delegate to configurable
// function fields. Unset ReadFunc or WriteFunc panics if called; the
// other unset fields return nil, so tests only need to wire the methods
// the code under test actually exercises.
type FuncConn struct {
	ReadFunc             func(b []byte) (int, error)
	WriteFunc            func(b []byte) (int, error)
	CloseFunc            func() error
	LocalAddrFunc        func() net.Addr
	RemoteAddrFunc       func() net.Addr
	SetDeadlineFunc      func(t time.Time) error
	SetReadDeadlineFunc  func(t time.Time) error
	SetWriteDeadlineFunc func(t time.Time) error
}

var _ net.Conn = &FuncConn{}

func (c *FuncConn) Read(b []byte) (int, error)  { return c.ReadFunc(b) }
func (c *FuncConn) Write(b []byte) (int, error) { return c.WriteFunc(b) }

func (c *FuncConn) Close() error {
	if c.CloseFunc == nil {
		return nil
	}
	return c.CloseFunc()
}

func (c *FuncConn) LocalAddr() net.Addr {
	if c.LocalAddrFunc == nil {
		return nil
	}
	return c.LocalAddrFunc()
}

func (c *FuncConn) RemoteAddr() net.Addr {
	if c.RemoteAddrFunc == nil {
		return nil
	}
	return c.RemoteAddrFunc()
}

func (c *FuncConn) SetDeadline(t time.Time) error {
	if c.SetDeadlineFunc == nil {
		return nil
	}
	return c.SetDeadlineFunc(t)
}

func (c *FuncConn) SetReadDeadline(t time.Time) error {
	if c.SetReadDeadlineFunc == nil {
		return nil
	}
	return c.SetReadDeadlineFunc(t)
}

func (c *FuncConn) SetWriteDeadline(t time.Time) error {
	if c.SetWriteDeadlineFunc == nil {
		return nil
	}
	return c.SetWriteDeadlineFunc(t)
}

// FuncDialer is a [net.Dialer]-shaped stub whose DialContext delegates
// to DialContextFunc.
type FuncDialer struct {
	DialContextFunc func(ctx context.Context, network, address string) (net.Conn, error)
}

func (d *FuncDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return d.DialContextFunc(ctx, network, address)
}

// FuncTransport is a busconn.Transport-shaped stub whose methods
// delegate to configurable function fields. Unset fields are no-ops:
// Read returns 0, nil; Write reports all of p written; the others
// return zero values. Tests only need to wire the methods the code
// under test actually exercises.
type FuncTransport struct {
	ReadFunc       func(p []byte) (int, error)
	WriteFunc      func(p []byte) (int, error)
	CloseFunc      func() error
	InputFileFunc  func() *os.File
	OutputFileFunc func() *os.File
	ProtocolFunc   func() string
	LocalAddrFunc  func() string
	RemoteAddrFunc func() string
}

func (t *FuncTransport) Read(p []byte) (int, error) {
	if t.ReadFunc == nil {
		return 0, nil
	}
	return t.ReadFunc(p)
}

func (t *FuncTransport) Write(p []byte) (int, error) {
	if t.WriteFunc == nil {
		return len(p), nil
	}
	return t.WriteFunc(p)
}

func (t *FuncTransport) Close() error {
	if t.CloseFunc == nil {
		return nil
	}
	return t.CloseFunc()
}

func (t *FuncTransport) InputFile() *os.File {
	if t.InputFileFunc == nil {
		return nil
	}
	return t.InputFileFunc()
}

func (t *FuncTransport) OutputFile() *os.File {
	if t.OutputFileFunc == nil {
		return nil
	}
	return t.OutputFileFunc()
}

func (t *FuncTransport) Protocol() string {
	if t.ProtocolFunc == nil {
		return ""
	}
	return t.ProtocolFunc()
}

func (t *FuncTransport) LocalAddr() string {
	if t.LocalAddrFunc == nil {
		return ""
	}
	return t.LocalAddrFunc()
}

func (t *FuncTransport) RemoteAddr() string {
	if t.RemoteAddrFunc == nil {
		return ""
	}
	return t.RemoteAddrFunc()
}
