// SPDX-License-Identifier: GPL-3.0-or-later

package busconn

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrKindString(t *testing.T) {
	assert.Equal(t, "NotConnected", ErrKindNotConnected.String())
	assert.Equal(t, "Unknown", ErrKind(999).String())
}

func TestConnErrorErrorFormatting(t *testing.T) {
	withCause := newErr("Op", ErrKindTransport, errors.New("boom"))
	assert.Contains(t, withCause.Error(), "Op")
	assert.Contains(t, withCause.Error(), "boom")

	withoutCause := newErr("Op", ErrKindTimeout, nil)
	assert.NotContains(t, withoutCause.Error(), "<nil>")
}

func TestConnErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	wrapped := newErr("Op", ErrKindTransport, cause)
	assert.Same(t, cause, errors.Unwrap(wrapped))
}

func TestConnErrorIsSentinels(t *testing.T) {
	cases := []struct {
		err    *ConnError
		target error
	}{
		{newErr("op", ErrKindInvalidArgument, nil), ErrInvalidArgument},
		{newErr("op", ErrKindPermissionDenied, nil), ErrPermissionDenied},
		{newErr("op", ErrKindNotConnected, nil), ErrNotConnected},
		{newErr("op", ErrKindChildGuard, nil), ErrChildGuard},
		{newErr("op", ErrKindOutOfBuffer, nil), ErrOutOfBuffer},
		{newErr("op", ErrKindTimeout, nil), ErrTimeout},
	}
	for _, tc := range cases {
		require.ErrorIs(t, tc.err, tc.target)
	}
}

func TestConnErrorIsClosed(t *testing.T) {
	wrapped := newErr("op", ErrKindTransport, ErrClosed)
	assert.ErrorIs(t, wrapped, ErrClosed)

	notClosed := newErr("op", ErrKindTransport, errors.New("other"))
	assert.NotErrorIs(t, notClosed, ErrClosed)
}

func TestConnErrorAsRecoversKind(t *testing.T) {
	err := newErr("op", ErrKindTimeout, nil)
	var ce *ConnError
	require.ErrorAs(t, error(err), &ce)
	assert.Equal(t, ErrKindTimeout, ce.Kind)
}
