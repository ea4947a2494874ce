// SPDX-License-Identifier: GPL-3.0-or-later

package busconn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sealedCall(t *testing.T, serial uint32) *Message {
	t.Helper()
	msg := NewMethodCall("org.example.Dest", "/org/example", "org.example.Iface", "Method")
	msg.Seal(serial)
	return msg
}

func TestMsgQueuePushPopFront(t *testing.T) {
	q := newMsgQueue(2)
	assert.Equal(t, 0, q.Len())
	assert.Nil(t, q.Front())

	m1 := sealedCall(t, 1)
	require.NoError(t, q.Push(m1))
	assert.Equal(t, 1, q.Len())
	assert.Same(t, m1, q.Front())

	m2 := sealedCall(t, 2)
	require.NoError(t, q.Push(m2))
	assert.Equal(t, 2, q.Len())

	err := q.Push(sealedCall(t, 3))
	require.Error(t, err)
	var ce *ConnError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrKindOutOfBuffer, ce.Kind)

	q.Pop()
	assert.Equal(t, 1, q.Len())
	assert.Same(t, m2, q.Front())
}

func TestMsgQueueWriteAdvanceAndPendingBytes(t *testing.T) {
	q := newMsgQueue(1)
	msg := sealedCall(t, 7)
	require.NoError(t, q.Push(msg))

	full := msg.Bytes()
	require.NotEmpty(t, full)

	half := len(full) / 2
	complete := q.WriteAdvance(half)
	assert.False(t, complete)
	assert.Equal(t, full[half:], q.PendingBytes())

	complete = q.WriteAdvance(len(full) - half)
	assert.True(t, complete)

	q.Pop()
	assert.Nil(t, q.PendingBytes())
	assert.Equal(t, 0, q.Len())
}

func TestMsgQueuePendingBytesEmpty(t *testing.T) {
	q := newMsgQueue(1)
	assert.Nil(t, q.PendingBytes())
}

func TestMsgQueuePopResetsWindex(t *testing.T) {
	q := newMsgQueue(2)
	m1 := sealedCall(t, 1)
	require.NoError(t, q.Push(m1))
	q.WriteAdvance(3)
	m2 := sealedCall(t, 2)
	require.NoError(t, q.Push(m2))

	q.Pop()
	assert.Equal(t, m2.Bytes(), q.PendingBytes())
}
