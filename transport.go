// SPDX-License-Identifier: GPL-3.0-or-later

package busconn

import (
	"io"
	"os"
)

// Transport abstracts the byte stream a [Candidate] dialer produces
// (spec §4.2): a pair of file descriptors (input, output, possibly the
// same descriptor) set non-blocking and close-on-exec.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer

	// InputFile returns the descriptor used for reads.
	InputFile() *os.File

	// OutputFile returns the descriptor used for writes. For stream
	// transports this is the same descriptor as InputFile.
	OutputFile() *os.File

	// Protocol names the transport kind for structured logging, one of
	// "unix", "tcp", "unixexec", "kernel", "x-container".
	Protocol() string

	// LocalAddr and RemoteAddr return logging-friendly endpoint
	// descriptions. Either may be empty when the concept does not apply
	// (e.g. the kernel transport has no dialed peer).
	LocalAddr() string
	RemoteAddr() string
}

// fileTransport is a [Transport] backed by a single *os.File used for
// both reading and writing (the common stream-socket case).
type fileTransport struct {
	f                   *os.File
	protocol            string
	localAddr, remoteAddr string
}

func newFileTransport(f *os.File, protocol, localAddr, remoteAddr string) *fileTransport {
	return &fileTransport{f: f, protocol: protocol, localAddr: localAddr, remoteAddr: remoteAddr}
}

func (t *fileTransport) Read(p []byte) (int, error)  { return t.f.Read(p) }
func (t *fileTransport) Write(p []byte) (int, error) { return t.f.Write(p) }
func (t *fileTransport) Close() error                { return t.f.Close() }
func (t *fileTransport) InputFile() *os.File         { return t.f }
func (t *fileTransport) OutputFile() *os.File        { return t.f }
func (t *fileTransport) Protocol() string            { return t.protocol }
func (t *fileTransport) LocalAddr() string           { return t.localAddr }
func (t *fileTransport) RemoteAddr() string          { return t.remoteAddr }

// pairTransport is a [Transport] backed by two distinct *os.File
// descriptors, used by dialers that communicate over a pipe pair
// (spec §4.2: "the kernel dialer and unixexec dialer set input_fd≠
// output_fd if they use a pipe pair").
type pairTransport struct {
	in, out             *os.File
	protocol            string
	localAddr, remoteAddr string
}

func newPairTransport(in, out *os.File, protocol, localAddr, remoteAddr string) *pairTransport {
	return &pairTransport{in: in, out: out, protocol: protocol, localAddr: localAddr, remoteAddr: remoteAddr}
}

func (t *pairTransport) Read(p []byte) (int, error)  { return t.in.Read(p) }
func (t *pairTransport) Write(p []byte) (int, error) { return t.out.Write(p) }

// Close closes both descriptors, deduplicating when they happen to
// coincide, and returns the first error encountered (spec §5: "on
// teardown every fd is closed exactly once").
func (t *pairTransport) Close() error {
	inErr := t.in.Close()
	if t.out == t.in {
		return inErr
	}
	outErr := t.out.Close()
	if inErr != nil {
		return inErr
	}
	return outErr
}

func (t *pairTransport) InputFile() *os.File  { return t.in }
func (t *pairTransport) OutputFile() *os.File { return t.out }
func (t *pairTransport) Protocol() string     { return t.protocol }
func (t *pairTransport) LocalAddr() string    { return t.localAddr }
func (t *pairTransport) RemoteAddr() string   { return t.remoteAddr }
