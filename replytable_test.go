// SPDX-License-Identifier: GPL-3.0-or-later

package busconn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReplyTable(now time.Time) *replyTable {
	return newReplyTable(&ReplyLogContext{
		ErrClassifier: DefaultErrClassifier,
		Logger:        DefaultSLogger(),
		TimeNow:       func() time.Time { return now },
	}, func() time.Time { return now })
}

func methodReturnFor(serial uint32) *Message {
	m := &Message{Header: Header{Type: TypeMethodReturn, ReplySerial: serial, HasReply: true}, sealed: true}
	return m
}

func TestReplyTableRegisterAndDeliver(t *testing.T) {
	now := time.Now()
	rt := newTestReplyTable(now)

	var got *Message
	require.NoError(t, rt.register(1, func(m *Message, _ any) { got = m }, nil, NoTimeout))
	assert.Equal(t, 1, rt.Len())

	delivered := rt.deliver(methodReturnFor(1))
	assert.True(t, delivered)
	assert.Equal(t, 0, rt.Len())
	require.NotNil(t, got)
	assert.Equal(t, uint32(1), got.Header.ReplySerial)
}

func TestReplyTableDeliverNoMatch(t *testing.T) {
	rt := newTestReplyTable(time.Now())
	require.NoError(t, rt.register(1, func(*Message, any) {}, nil, NoTimeout))
	assert.False(t, rt.deliver(methodReturnFor(2)))
	assert.Equal(t, 1, rt.Len())
}

func TestReplyTableDeliverIgnoresNonReplyTypes(t *testing.T) {
	rt := newTestReplyTable(time.Now())
	require.NoError(t, rt.register(1, func(*Message, any) {}, nil, NoTimeout))
	signal := &Message{Header: Header{Type: TypeSignal}, sealed: true}
	assert.False(t, rt.deliver(signal))
}

func TestReplyTableCancel(t *testing.T) {
	rt := newTestReplyTable(time.Now())
	called := false
	require.NoError(t, rt.register(5, func(*Message, any) { called = true }, nil, NoTimeout))

	assert.True(t, rt.cancel(5))
	assert.Equal(t, 0, rt.Len())
	assert.False(t, rt.cancel(5))

	assert.False(t, rt.deliver(methodReturnFor(5)))
	assert.False(t, called)
}

func TestReplyTableExpire(t *testing.T) {
	base := time.Now()
	now := base
	rt := newTestReplyTable(base)
	rt.TimeNow = func() time.Time { return now }

	var expired *Message
	require.NoError(t, rt.register(9, func(m *Message, _ any) { expired = m }, nil, 10*time.Millisecond))

	n := rt.expire(base)
	assert.Equal(t, 0, n)

	now = base.Add(20 * time.Millisecond)
	n = rt.expire(now)
	assert.Equal(t, 1, n)
	require.NotNil(t, expired)
	assert.Equal(t, TypeMethodError, expired.Header.Type)
	assert.Equal(t, ErrorNameNoReply, expired.ErrorName)
	assert.Equal(t, 0, rt.Len())
}

func TestReplyTableNoTimeoutNeverExpires(t *testing.T) {
	base := time.Now()
	rt := newTestReplyTable(base)
	require.NoError(t, rt.register(1, func(*Message, any) {}, nil, NoTimeout))

	_, ok := rt.NextDeadline()
	assert.False(t, ok)
	assert.Equal(t, 0, rt.expire(base.Add(time.Hour)))
}

func TestReplyTableNextDeadlineOrdersAscending(t *testing.T) {
	base := time.Now()
	rt := newTestReplyTable(base)
	require.NoError(t, rt.register(1, func(*Message, any) {}, nil, 2*time.Second))
	require.NoError(t, rt.register(2, func(*Message, any) {}, nil, time.Second))
	require.NoError(t, rt.register(3, func(*Message, any) {}, nil, NoTimeout))

	deadline, ok := rt.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, base.Add(time.Second), deadline)
}
