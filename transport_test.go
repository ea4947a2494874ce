// SPDX-License-Identifier: GPL-3.0-or-later

package busconn

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileTransportReadWriteClose(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	transport := newFileTransport(w, "unix", "local", "remote")
	assert.Equal(t, "unix", transport.Protocol())
	assert.Equal(t, "local", transport.LocalAddr())
	assert.Equal(t, "remote", transport.RemoteAddr())
	assert.Same(t, w, transport.InputFile())
	assert.Same(t, w, transport.OutputFile())

	n, err := transport.Write([]byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.NoError(t, transport.Close())
}

func TestPairTransportDistinctDescriptors(t *testing.T) {
	inR, inW, err := os.Pipe()
	require.NoError(t, err)
	outR, outW, err := os.Pipe()
	require.NoError(t, err)
	defer inW.Close()
	defer outR.Close()

	transport := newPairTransport(inR, outW, "unixexec", "", "child")
	assert.Same(t, inR, transport.InputFile())
	assert.Same(t, outW, transport.OutputFile())
	assert.Equal(t, "unixexec", transport.Protocol())
	assert.Equal(t, "child", transport.RemoteAddr())

	go func() {
		inW.Write([]byte("x"))
	}()
	buf := make([]byte, 1)
	n, err := transport.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, transport.Close())
}

func TestPairTransportCloseDedupesSameDescriptor(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer w.Close()

	transport := newPairTransport(r, r, "kernel", "path", "")
	require.NoError(t, transport.Close())
}
