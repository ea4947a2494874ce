// SPDX-License-Identifier: GPL-3.0-or-later

package busconn

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bassosimone/busconn/errclass"
)

// authState enumerates the steps of the SASL-style handshake (spec §4.3).
type authState int

const (
	authSendingAuth authState = iota
	authAwaitingOK
	authSendingNegotiateFD
	authAwaitingAgreeFD
	authSendingBegin
	authDone
)

// authMachine drives the text-line authentication handshake on a stream
// [Transport]. Step is non-blocking: every read or write may return
// [errclass.EWOULDBLOCK] wrapped through [ErrClassifier], in which case
// the caller re-enters Step on the next readiness notification (spec
// §4.3, "Suspension points").
type authMachine struct {
	state authState

	// AcceptFD requests unix-fd-passing negotiation (Config default: true).
	AcceptFD bool

	// Anonymous authenticates with ANONYMOUS instead of EXTERNAL.
	Anonymous bool

	// UID is the numeric uid; AUTH EXTERNAL sends its decimal string
	// hex-encoded (1000 becomes "31303030").
	UID int

	// GUID is the server identity learned from the OK response.
	GUID string

	// CanSendFDs reports whether NEGOTIATE_UNIX_FD was agreed.
	CanSendFDs bool

	outbuf []byte // pending bytes not yet written
	inbuf  []byte // bytes read but not yet forming a complete line

	Logger        SLogger
	ErrClassifier ErrClassifier
	TimeNow       func() time.Time
}

// newAuthMachine returns an [*authMachine] in its initial state, with its
// first outbound line (the NUL byte plus AUTH command) already queued.
func newAuthMachine(acceptFD, anonymous bool, uid int, logger SLogger, classifier ErrClassifier, timeNow func() time.Time) *authMachine {
	m := &authMachine{
		AcceptFD:      acceptFD,
		Anonymous:     anonymous,
		UID:           uid,
		Logger:        logger,
		ErrClassifier: classifier,
		TimeNow:       timeNow,
	}
	m.queueAuthLine()
	return m
}

func (m *authMachine) queueAuthLine() {
	var line string
	if m.Anonymous {
		line = "AUTH ANONYMOUS\r\n"
	} else {
		line = fmt.Sprintf("AUTH EXTERNAL %x\r\n", fmt.Sprintf("%d", m.UID))
	}
	m.outbuf = append([]byte{0}, []byte(line)...)
}

// Done reports whether the handshake has completed successfully.
func (m *authMachine) Done() bool {
	return m.state == authDone
}

// Step drives one round of the handshake against transport. It returns
// true once the handshake has sent BEGIN and the caller should switch to
// the message framing (transition to Hello or Running per spec §4.2).
func (m *authMachine) Step(transport Transport) (done bool, err error) {
	t0 := m.TimeNow()
	m.logStepStart(t0)
	defer func() { m.logStepDone(t0, err) }()

	if len(m.outbuf) > 0 {
		n, werr := transport.Write(m.outbuf)
		if n > 0 {
			m.outbuf = m.outbuf[n:]
		}
		if werr != nil {
			if isWouldBlock(werr) {
				return false, nil
			}
			return false, newErr("authMachine.Step", ErrKindAuth, werr)
		}
		if len(m.outbuf) > 0 {
			return false, nil
		}
		m.advanceAfterWrite()
	}

	if m.state == authSendingBegin && len(m.outbuf) == 0 {
		m.state = authDone
		return true, nil
	}

	if m.needsReply() {
		line, rerr := m.readLine(transport)
		if rerr != nil {
			if isWouldBlock(rerr) {
				return false, nil
			}
			return false, newErr("authMachine.Step", ErrKindAuth, rerr)
		}
		if line == "" {
			return false, nil // no complete line yet
		}
		if aerr := m.handleLine(line); aerr != nil {
			return false, aerr
		}
	}
	return m.state == authDone, nil
}

func (m *authMachine) needsReply() bool {
	switch m.state {
	case authAwaitingOK, authAwaitingAgreeFD:
		return true
	default:
		return false
	}
}

func (m *authMachine) advanceAfterWrite() {
	switch m.state {
	case authSendingAuth:
		m.state = authAwaitingOK
	case authSendingNegotiateFD:
		m.state = authAwaitingAgreeFD
	case authSendingBegin:
		// handled by caller once outbuf drains
	}
}

func (m *authMachine) handleLine(line string) error {
	switch m.state {
	case authAwaitingOK:
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != "OK" {
			return newErr("authMachine.handleLine", ErrKindAuth, fmt.Errorf("busconn: unexpected auth reply %q", line))
		}
		m.GUID = fields[1]
		if m.AcceptFD {
			m.outbuf = []byte("NEGOTIATE_UNIX_FD\r\n")
			m.state = authSendingNegotiateFD
		} else {
			m.outbuf = []byte("BEGIN\r\n")
			m.state = authSendingBegin
		}
		return nil
	case authAwaitingAgreeFD:
		if strings.HasPrefix(line, "AGREE_UNIX_FD") {
			m.CanSendFDs = true
		}
		// A broker rejection (ERROR line) leaves CanSendFDs false and the
		// connection continues (spec §4.3 point 3).
		m.outbuf = []byte("BEGIN\r\n")
		m.state = authSendingBegin
		return nil
	default:
		return nil
	}
}

// readLine scans inbuf (topped up from transport) for a terminating
// "\r\n" and returns the line without the terminator. An empty string
// with a nil error means "no complete line yet, keep reading".
func (m *authMachine) readLine(transport Transport) (string, error) {
	if idx := indexCRLF(m.inbuf); idx >= 0 {
		line := string(m.inbuf[:idx])
		m.inbuf = m.inbuf[idx+2:]
		return line, nil
	}

	buf := make([]byte, 256)
	n, err := transport.Read(buf)
	if n > 0 {
		m.inbuf = append(m.inbuf, buf[:n]...)
	}
	if err != nil {
		return "", err
	}
	if idx := indexCRLF(m.inbuf); idx >= 0 {
		line := string(m.inbuf[:idx])
		m.inbuf = m.inbuf[idx+2:]
		return line, nil
	}
	return "", nil
}

func indexCRLF(buf []byte) int {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == '\r' && buf[i+1] == '\n' {
			return i
		}
	}
	return -1
}

func (m *authMachine) logStepStart(t0 time.Time) {
	m.Logger.Debug("authStepStart", slog.Int("authState", int(m.state)), slog.Time("t", t0))
}

func (m *authMachine) logStepDone(t0 time.Time, err error) {
	m.Logger.Debug(
		"authStepDone",
		slog.Int("authState", int(m.state)),
		slog.Any("err", err),
		slog.String("errClass", m.ErrClassifier.Classify(err)),
		slog.Time("t0", t0),
		slog.Time("t", m.TimeNow()),
	)
}

// isWouldBlock reports whether err represents a non-blocking suspension
// point rather than a fatal I/O error.
func isWouldBlock(err error) bool {
	return errclass.IsWouldBlock(err)
}
