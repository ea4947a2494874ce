// SPDX-License-Identifier: GPL-3.0-or-later

package busconn

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecDialFuncOverridesVisibleArgv0(t *testing.T) {
	op := NewExecDialFunc(NewConfig(), DefaultSLogger())
	candidate := Candidate{
		Kind:     CandidateUnixExec,
		ExecPath: "/bin/sh",
		Argv:     []string{"my-custom-name", "-c", `printf %s "$0"`},
	}

	transport, err := op.Call(context.Background(), candidate)
	require.NoError(t, err)
	defer transport.Close()

	buf := make([]byte, 64)
	n, err := readUntilEOF(transport, buf)
	require.NoError(t, err)
	assert.Equal(t, "my-custom-name", string(buf[:n]))
}

func TestExecDialFuncDefaultsArgv0ToPath(t *testing.T) {
	op := NewExecDialFunc(NewConfig(), DefaultSLogger())
	argv, err := buildArgv("/bin/sh", map[string]string{"argv1": "-c", "argv2": `printf %s "$0"`})
	require.NoError(t, err)
	candidate := Candidate{
		Kind:     CandidateUnixExec,
		ExecPath: "/bin/sh",
		Argv:     argv,
	}

	transport, err := op.Call(context.Background(), candidate)
	require.NoError(t, err)
	defer transport.Close()

	buf := make([]byte, 64)
	n, err := readUntilEOF(transport, buf)
	require.NoError(t, err)
	assert.Equal(t, "/bin/sh", string(buf[:n]))
}

func TestExecDialFuncRoundTripsStdinStdout(t *testing.T) {
	op := NewExecDialFunc(NewConfig(), DefaultSLogger())
	candidate := Candidate{Kind: CandidateUnixExec, ExecPath: "/bin/cat", Argv: []string{"/bin/cat"}}

	transport, err := op.Call(context.Background(), candidate)
	require.NoError(t, err)
	defer transport.Close()

	_, err = transport.Write([]byte("ping"))
	require.NoError(t, err)

	buf := make([]byte, 4)
	_, err = io.ReadFull(transport, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
}

func TestExecDialFuncCloseReapsChild(t *testing.T) {
	op := NewExecDialFunc(NewConfig(), DefaultSLogger())
	candidate := Candidate{Kind: CandidateUnixExec, ExecPath: "/bin/true", Argv: []string{"/bin/true"}}

	transport, err := op.Call(context.Background(), candidate)
	require.NoError(t, err)

	// Give the child a moment to exit on its own so Close's Wait reaps an
	// already-finished process rather than racing its own Kill signal.
	time.Sleep(50 * time.Millisecond)
	assert.NoError(t, transport.Close())
}

// readUntilEOF reads from r until EOF or buf is full, returning the
// number of bytes read. Unlike io.ReadFull it tolerates the reader
// closing early, which a short-lived child process's stdout does.
func readUntilEOF(r io.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			if err == io.EOF {
				return total, nil
			}
			return total, err
		}
	}
	return total, nil
}
