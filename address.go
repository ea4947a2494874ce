// SPDX-License-Identifier: GPL-3.0-or-later

package busconn

import (
	"fmt"
	"strconv"
	"strings"
)

// CandidateKind identifies which transport a [Candidate] addresses.
type CandidateKind int

const (
	CandidateUnix CandidateKind = iota
	CandidateTCP
	CandidateUnixExec
	CandidateKernel
	CandidateContainer
)

// String implements [fmt.Stringer].
func (k CandidateKind) String() string {
	switch k {
	case CandidateUnix:
		return "unix"
	case CandidateTCP:
		return "tcp"
	case CandidateUnixExec:
		return "unixexec"
	case CandidateKernel:
		return "kernel"
	case CandidateContainer:
		return "x-container"
	default:
		return "unknown"
	}
}

// Candidate is one parsed transport specification from a D-Bus address
// string (spec §4.1). Exactly the fields relevant to Kind are populated.
type Candidate struct {
	Kind CandidateKind

	// unix:
	UnixPath     string // decoded bytes of "path="
	UnixAbstract bool   // true when the candidate came from "abstract="
	GUID         string // optional "guid="

	// tcp:
	Host   string
	Port   string
	Family string // "", "ipv4", or "ipv6"

	// unixexec:
	ExecPath string
	Argv     []string

	// kernel:
	KernelPath string

	// x-container:
	Machine string
}

// ParseAddress parses a semicolon-separated list of transport
// specifications (spec §4.1) into a sequence of candidate connect
// descriptors. Unrecognized transport prefixes and empty segments are
// skipped. If every segment is invalid or unrecognized, ParseAddress
// returns the last segment error it saw, or a generic "connection
// refused" error if no segment produced one.
func ParseAddress(s string) ([]Candidate, error) {
	var candidates []Candidate
	var lastErr error

	for _, segment := range strings.Split(s, ";") {
		if segment == "" {
			continue
		}
		c, err := parseSegment(segment)
		if err != nil {
			lastErr = err
			continue
		}
		if c == nil {
			// unrecognized transport prefix: skip
			continue
		}
		candidates = append(candidates, *c)
	}

	if len(candidates) == 0 {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, newErr("ParseAddress", ErrKindInvalidArgument, fmt.Errorf("connection refused"))
	}
	return candidates, nil
}

// AddressCursor re-enters a parsed address string segment by segment,
// matching spec §4.1's bus_next_address re-entry semantics: each call to
// [*AddressCursor.Next] advances the cursor and returns the next
// candidate, skipping unrecognized or malformed segments.
type AddressCursor struct {
	segments []string
	pos      int
	lastErr  error
}

// NewAddressCursor creates a cursor over the semicolon-separated address
// string s.
func NewAddressCursor(s string) *AddressCursor {
	return &AddressCursor{segments: strings.Split(s, ";")}
}

// Next returns the next valid candidate and true, or a zero Candidate and
// false once the cursor is exhausted. Call [*AddressCursor.Err] after a
// false return to retrieve the last segment error, if any.
func (c *AddressCursor) Next() (Candidate, bool) {
	for c.pos < len(c.segments) {
		segment := c.segments[c.pos]
		c.pos++
		if segment == "" {
			continue
		}
		cand, err := parseSegment(segment)
		if err != nil {
			c.lastErr = err
			continue
		}
		if cand == nil {
			continue
		}
		return *cand, true
	}
	return Candidate{}, false
}

// Err returns the last error encountered by [*AddressCursor.Next], or nil.
func (c *AddressCursor) Err() error {
	return c.lastErr
}

// parseSegment parses one "transport:k1=v1,k2=v2" segment. It returns a
// nil *Candidate (no error) for an unrecognized transport prefix.
func parseSegment(segment string) (*Candidate, error) {
	transport, rest, _ := strings.Cut(segment, ":")
	kv, err := parseKeyValues(rest)
	if err != nil {
		return nil, fmt.Errorf("busconn: address segment %q: %w", segment, err)
	}

	switch transport {
	case "unix":
		return parseUnixCandidate(kv)
	case "tcp":
		return parseTCPCandidate(kv)
	case "unixexec":
		return parseUnixExecCandidate(kv)
	case "kernel":
		return parseKernelCandidate(kv)
	case "x-container":
		return parseContainerCandidate(kv)
	default:
		return nil, nil
	}
}

// parseKeyValues splits a "k1=v1,k2=v2" string into a map, percent-decoding
// every value.
func parseKeyValues(s string) (map[string]string, error) {
	out := make(map[string]string)
	if s == "" {
		return out, nil
	}
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("malformed key=value pair %q", pair)
		}
		decoded, err := decodePercent(v)
		if err != nil {
			return nil, err
		}
		out[k] = decoded
	}
	return out, nil
}

// decodePercent decodes %HH escapes in s into raw bytes.
func decodePercent(s string) (string, error) {
	if !strings.Contains(s, "%") {
		return s, nil
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			b.WriteByte(s[i])
			continue
		}
		if i+2 >= len(s) {
			return "", fmt.Errorf("truncated percent-escape in %q", s)
		}
		n, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
		if err != nil {
			return "", fmt.Errorf("invalid percent-escape in %q: %w", s, err)
		}
		b.WriteByte(byte(n))
		i += 2
	}
	return b.String(), nil
}

func parseUnixCandidate(kv map[string]string) (*Candidate, error) {
	path, hasPath := kv["path"]
	abstract, hasAbstract := kv["abstract"]
	switch {
	case hasPath == hasAbstract:
		return nil, fmt.Errorf("unix: must set exactly one of path= or abstract=")
	case hasPath:
		return &Candidate{Kind: CandidateUnix, UnixPath: path, GUID: kv["guid"]}, nil
	default:
		// Abstract sockets are conventionally represented with a
		// leading NUL byte prepended to the path.
		return &Candidate{Kind: CandidateUnix, UnixPath: "\x00" + abstract, UnixAbstract: true, GUID: kv["guid"]}, nil
	}
}

func parseTCPCandidate(kv map[string]string) (*Candidate, error) {
	host, ok := kv["host"]
	if !ok || host == "" {
		return nil, fmt.Errorf("tcp: missing host=")
	}
	port, ok := kv["port"]
	if !ok || port == "" {
		return nil, fmt.Errorf("tcp: missing port=")
	}
	family := kv["family"]
	if family != "" && family != "ipv4" && family != "ipv6" {
		return nil, fmt.Errorf("tcp: invalid family=%q", family)
	}
	return &Candidate{Kind: CandidateTCP, Host: host, Port: port, Family: family}, nil
}

func parseUnixExecCandidate(kv map[string]string) (*Candidate, error) {
	path, ok := kv["path"]
	if !ok || path == "" {
		return nil, fmt.Errorf("unixexec: missing path=")
	}
	argv, err := buildArgv(path, kv)
	if err != nil {
		return nil, err
	}
	return &Candidate{Kind: CandidateUnixExec, ExecPath: path, Argv: argv}, nil
}

// buildArgv reconstructs the child's argv: argv[0] is "argv0=" if given,
// else path (spec §4.1, "argv0 defaults to path"), followed by the
// contiguous "argvI=" keys starting at index 1. A hole in the 1..N range
// is invalid. argv0's own index (0) plays no part in that contiguity
// check: an address with only "argv1=" and no "argv0=" is valid.
func buildArgv(path string, kv map[string]string) ([]string, error) {
	maxIdx := 0
	for key := range kv {
		if key == "argv0" || !strings.HasPrefix(key, "argv") {
			continue
		}
		n, err := strconv.Atoi(key[len("argv"):])
		if err != nil || n <= 0 {
			continue
		}
		if n > maxIdx {
			maxIdx = n
		}
	}

	argv0 := path
	if v, ok := kv["argv0"]; ok {
		argv0 = v
	}
	argv := []string{argv0}
	for i := 1; i <= maxIdx; i++ {
		v, ok := kv[fmt.Sprintf("argv%d", i)]
		if !ok {
			return nil, fmt.Errorf("unixexec: hole in argv indices (missing argv%d, max index %d)", i, maxIdx)
		}
		argv = append(argv, v)
	}
	return argv, nil
}

func parseKernelCandidate(kv map[string]string) (*Candidate, error) {
	path, ok := kv["path"]
	if !ok || path == "" {
		return nil, fmt.Errorf("kernel: missing path=")
	}
	return &Candidate{Kind: CandidateKernel, KernelPath: path}, nil
}

func parseContainerCandidate(kv map[string]string) (*Candidate, error) {
	machine, ok := kv["machine"]
	if !ok || machine == "" {
		return nil, fmt.Errorf("x-container: missing machine=")
	}
	return &Candidate{Kind: CandidateContainer, Machine: machine}, nil
}
