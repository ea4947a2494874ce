// SPDX-License-Identifier: GPL-3.0-or-later

package busconn

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/bassosimone/busconn/busstub"
)

// onceReadTransport returns data on the first Read call and EAGAIN on
// every call after, modeling one inbound frame arriving on an otherwise
// idle non-blocking socket.
func onceReadTransport(data []byte) *busstub.FuncTransport {
	read := false
	return &busstub.FuncTransport{
		ReadFunc: func(p []byte) (int, error) {
			if read {
				return 0, unix.EAGAIN
			}
			read = true
			return copy(p, data), nil
		},
		ProtocolFunc: func() string { return "unix" },
	}
}

func newRunningTestConnection(t *testing.T, transport Transport) *Connection {
	t.Helper()
	conn, err := NewConnection(nil, "unix:path=/tmp/busconn-dispatch-test", nil)
	require.NoError(t, err)
	conn.transport = transport
	conn.replies.Log.Protocol = transport.Protocol()
	conn.state = StateRunning
	return conn
}

func sealedMethodCall(path, iface, member string, noReply bool) *Message {
	msg := NewMethodCall("org.example.Dest", path, iface, member)
	if noReply {
		msg.SetNoReplyExpected(true)
	}
	msg.Seal(100)
	return msg
}

func TestDispatchReplyCorrelationBypassesFiltersAndMatches(t *testing.T) {
	reply := methodReturnFor(7)
	transport := onceReadTransport(reply.Bytes())
	conn := newRunningTestConnection(t, transport)

	var delivered *Message
	require.NoError(t, conn.replies.register(7, func(m *Message, _ any) { delivered = m }, nil, NoTimeout))

	filterRan := false
	conn.AddFilter(func(*Message) int { filterRan = true; return 0 })

	progressed, err := conn.Process(context.Background())
	require.NoError(t, err)
	assert.True(t, progressed)
	require.NotNil(t, delivered)
	assert.False(t, filterRan, "reply correlation must short-circuit before filters run")
}

func TestDispatchFilterSuppressesMatchesAndObjects(t *testing.T) {
	msg := sealedMethodCall("/org/example", "org.example.Iface", "Method", false)
	transport := onceReadTransport(msg.Bytes())
	conn := newRunningTestConnection(t, transport)

	matchRan := false
	conn.AddMatchRule("org.example.Iface", "", "", "", "c", func(*Message) int { matchRan = true; return 0 })
	conn.AddFilter(func(*Message) int { return 1 })

	_, err := conn.Process(context.Background())
	require.NoError(t, err)
	assert.False(t, matchRan)
	assert.Equal(t, 0, conn.sendQ.Len(), "a filter claiming the message suppresses any fallback reply")
}

func TestDispatchBuiltinPeerPing(t *testing.T) {
	msg := sealedMethodCall("/org/example", "org.freedesktop.DBus.Peer", "Ping", false)
	transport := onceReadTransport(msg.Bytes())
	conn := newRunningTestConnection(t, transport)

	_, err := conn.Process(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, conn.sendQ.Len())
	assert.Equal(t, TypeMethodReturn, conn.sendQ.Front().Header.Type)
	assert.Equal(t, uint32(100), conn.sendQ.Front().Header.ReplySerial)
}

func TestDispatchBuiltinPeerGetMachineId(t *testing.T) {
	msg := sealedMethodCall("/org/example", "org.freedesktop.DBus.Peer", "GetMachineId", false)
	transport := onceReadTransport(msg.Bytes())
	conn := newRunningTestConnection(t, transport)
	conn.serverGUID = "deadbeef"

	_, err := conn.Process(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, conn.sendQ.Len())
	body, _, ok := decodeString(conn.sendQ.Front().Body)
	require.True(t, ok)
	assert.Equal(t, "deadbeef", body)
}

func TestDispatchFallbackUnknownObject(t *testing.T) {
	msg := sealedMethodCall("/not/registered", "org.example.Iface", "Method", false)
	transport := onceReadTransport(msg.Bytes())
	conn := newRunningTestConnection(t, transport)

	_, err := conn.Process(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, conn.sendQ.Len())
	assert.Equal(t, ErrorNameUnknownObject, conn.sendQ.Front().ErrorName)
}

func TestDispatchUnknownMethodOnKnownPath(t *testing.T) {
	msg := sealedMethodCall("/org/example", "org.example.Iface", "Bogus", false)
	transport := onceReadTransport(msg.Bytes())
	conn := newRunningTestConnection(t, transport)
	conn.Export("/org/example", "org.example.Iface", "Known", func(m *Message) *Message { return NewMethodReturn(m) })

	_, err := conn.Process(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, conn.sendQ.Len())
	assert.Equal(t, ErrorNameUnknownMethod, conn.sendQ.Front().ErrorName)
}

func TestDispatchNoReplyExpectedSuppressesFallback(t *testing.T) {
	msg := sealedMethodCall("/not/registered", "org.example.Iface", "Method", true)
	transport := onceReadTransport(msg.Bytes())
	conn := newRunningTestConnection(t, transport)

	_, err := conn.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, conn.sendQ.Len())
}

func TestDispatchSignalNeverGetsAReply(t *testing.T) {
	sig := NewSignal("/org/example", "org.example.Iface", "Changed")
	sig.Seal(1)
	transport := onceReadTransport(sig.Bytes())
	conn := newRunningTestConnection(t, transport)

	_, err := conn.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, conn.sendQ.Len())
}

func TestStepRunningIdleReportsNoProgress(t *testing.T) {
	transport := &busstub.FuncTransport{
		ReadFunc:     func([]byte) (int, error) { return 0, unix.EAGAIN },
		ProtocolFunc: func() string { return "unix" },
	}
	conn := newRunningTestConnection(t, transport)

	progressed, err := conn.Process(context.Background())
	require.NoError(t, err)
	assert.False(t, progressed)
}

func TestHelloGateClosesOnNonHelloMessage(t *testing.T) {
	unrelated := sealedMethodCall("/org/example", "org.freedesktop.DBus.Peer", "Ping", false)
	unrelated.Header.Serial = 999
	transport := onceReadTransport(unrelated.Bytes())
	conn := newRunningTestConnection(t, transport)
	conn.state = StateHello
	conn.helloSerial = 1

	_, err := conn.Process(context.Background())
	var ce *ConnError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrKindProtocol, ce.Kind)
	assert.Equal(t, StateClosed, conn.state)
	assert.Equal(t, 0, conn.sendQ.Len(), "messages other than the Hello reply must not be dispatched before Hello completes")
}

func TestStepOpeningFallsThroughToNextCandidateOnFailure(t *testing.T) {
	conn, err := NewConnection(nil, "tcp:host=127.0.0.1,port=1;unix:path=/tmp/busconn-fallback-test", nil)
	require.NoError(t, err)
	require.NoError(t, conn.Start())

	unixClient, unixServer := net.Pipe()
	t.Cleanup(func() { unixServer.Close() })
	picky := &busstub.FuncDialer{
		DialContextFunc: func(_ context.Context, network, _ string) (net.Conn, error) {
			if network == "tcp" {
				return nil, assertAnError{}
			}
			return unixClient, nil
		},
	}
	conn.cfg.Dialer = picky
	conn.dialers = newDialerTable(conn.cfg, nil, conn.Logger)

	// Each candidate's dial now runs on its own goroutine (see
	// stepOpening), so the tcp failure and the unix success each surface
	// on a separate Process call rather than within one.
	deadline := time.Now().Add(time.Second)
	for conn.State() == StateOpening && time.Now().Before(deadline) {
		_, err := conn.Process(context.Background())
		require.NoError(t, err)
		if conn.State() != StateOpening {
			break
		}
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, StateAuthenticating, conn.State())
	assert.Equal(t, "unix", conn.transport.Protocol())
}

type assertAnError struct{}

func (assertAnError) Error() string { return "dial failed" }
