// SPDX-License-Identifier: GPL-3.0-or-later

package busconn

import (
	"encoding/binary"
	"os"
)

// MessageType identifies the kind of a [Message] as carried in its header.
type MessageType byte

const (
	TypeMethodCall MessageType = iota + 1
	TypeMethodReturn
	TypeMethodError
	TypeSignal
)

// Header flag bits (spec §3, §6).
const (
	FlagNoReplyExpected byte = 1 << iota
	FlagNoAutoStart
)

// nativeEndianByte is the endianness byte this engine writes into sealed
// messages. The wire format supports either; we always seal little-endian,
// matching the common case on the platforms this engine targets.
const nativeEndianByte byte = 'l'

// Header carries the fixed-size portion of a D-Bus message.
type Header struct {
	Endian      byte
	Type        MessageType
	Flags       byte
	Version     byte
	BodyLength  uint32
	Serial      uint32
	ReplySerial uint32 // valid only when HasReply is true
	HasReply    bool
}

// Message is an owned, possibly-sealed D-Bus message.
//
// This is the engine's minimal stand-in for the externally-assumed
// marshaller (spec §1, §3): it carries exactly the fields the connection
// engine needs to route, correlate, and log messages, plus enough body
// encoding to construct and decode the built-in Peer replies. It does not
// implement a general signature-typed body codec.
type Message struct {
	Header Header

	Sender      string
	Destination string
	Path        string
	Interface   string
	Member      string
	ErrorName   string

	Body  []byte
	Files []*os.File

	sealed bool
}

// NewMethodCall constructs an unsealed method-call [Message].
func NewMethodCall(destination, path, iface, member string) *Message {
	return &Message{
		Header:      Header{Type: TypeMethodCall, Version: 1, Endian: nativeEndianByte},
		Destination: destination,
		Path:        path,
		Interface:   iface,
		Member:      member,
	}
}

// NewMethodReturn constructs an unsealed method-return [Message] replying
// to replyTo.
func NewMethodReturn(replyTo *Message) *Message {
	return &Message{
		Header: Header{
			Type:        TypeMethodReturn,
			Version:     1,
			Endian:      nativeEndianByte,
			ReplySerial: replyTo.Header.Serial,
			HasReply:    true,
		},
		Destination: replyTo.Sender,
	}
}

// NewMethodError constructs an unsealed method-error [Message] replying to
// replyTo with the given D-Bus error name and a single string detail,
// matching the body shape of the built-in errors this engine emits.
func NewMethodError(replyTo *Message, name, detail string) *Message {
	m := &Message{
		Header: Header{
			Type:        TypeMethodError,
			Version:     1,
			Endian:      nativeEndianByte,
			ReplySerial: replyTo.Header.Serial,
			HasReply:    true,
		},
		Destination: replyTo.Sender,
		ErrorName:   name,
	}
	m.Body = encodeString(detail)
	return m
}

// NewSignal constructs an unsealed signal [Message].
func NewSignal(path, iface, member string) *Message {
	return &Message{
		Header: Header{Type: TypeSignal, Version: 1, Endian: nativeEndianByte},
		Path:   path, Interface: iface, Member: member,
	}
}

// Sealed reports whether the message has already been assigned a serial
// and frozen. Sealing more than once is a no-op (spec §4.6).
func (m *Message) Sealed() bool {
	return m.sealed
}

// Seal assigns serial to the message and freezes it. Calling Seal on an
// already-sealed message is a no-op and returns the serial it was
// originally sealed with.
func (m *Message) Seal(serial uint32) uint32 {
	if m.sealed {
		return m.Header.Serial
	}
	m.Header.Serial = serial
	m.Header.BodyLength = uint32(len(m.Body))
	m.sealed = true
	return serial
}

// NoReplyExpected reports whether the no-reply-expected header flag is set.
func (m *Message) NoReplyExpected() bool {
	return m.Header.Flags&FlagNoReplyExpected != 0
}

// SetNoReplyExpected sets or clears the no-reply-expected header flag.
// [*Connection.Send] does not set or clear it: a caller that wants no
// reply sets it here and passes a nil callback to Send.
func (m *Message) SetNoReplyExpected(v bool) {
	if v {
		m.Header.Flags |= FlagNoReplyExpected
	} else {
		m.Header.Flags &^= FlagNoReplyExpected
	}
}

// Len returns the fixed header size plus the body length. It does not
// count the encoded header fields, so it is less than len(m.Bytes()) for
// any message that carries fields. The send queue works from
// [*Message.Bytes] and does not use Len.
func (m *Message) Len() int {
	return headerFixedSize + len(m.Body)
}

// headerFixedSize is the size in bytes this engine accounts for the fixed
// header portion when computing queue byte counts.
const headerFixedSize = 16

// Bytes returns the wire-format frame for a sealed message: a 16-byte
// fixed header (BodyLength counting everything that follows it) followed
// by the logical string fields and the body. Calling Bytes on an
// unsealed message panics: only a sealed message has a final serial and
// an immutable byte count (spec §4.6, "sealing ... making the buffer
// immutable").
func (m *Message) Bytes() []byte {
	if !m.sealed {
		panic("busconn: Bytes called on an unsealed message")
	}
	fields := append(
		append(
			append(
				append(
					append(encodeString(m.Sender), encodeString(m.Destination)...),
					encodeString(m.Path)...),
				encodeString(m.Interface)...),
			encodeString(m.Member)...),
		encodeString(m.ErrorName)...)
	trailing := append(fields, m.Body...)

	buf := make([]byte, headerFixedSize+len(trailing))
	buf[0] = m.Header.Endian
	buf[1] = byte(m.Header.Type)
	buf[2] = m.Header.Flags
	buf[3] = m.Header.Version
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(trailing)))
	binary.LittleEndian.PutUint32(buf[8:12], m.Header.Serial)
	binary.LittleEndian.PutUint32(buf[12:16], m.Header.ReplySerial)
	copy(buf[headerFixedSize:], trailing)
	return buf
}

// parseMessageFrame attempts to parse one complete frame from the
// prefix of buf. It returns the parsed message, the number of bytes
// consumed, and true on success. If buf does not yet contain a complete
// frame, it returns ok=false so the caller can accumulate more bytes
// and retry (the non-blocking contract of spec §4.2/§4.4).
func parseMessageFrame(buf []byte) (msg *Message, consumed int, ok bool) {
	if len(buf) < headerFixedSize {
		return nil, 0, false
	}
	trailingLen := int(binary.LittleEndian.Uint32(buf[4:8]))
	total := headerFixedSize + trailingLen
	if len(buf) < total {
		return nil, 0, false
	}

	h := Header{
		Endian:      buf[0],
		Type:        MessageType(buf[1]),
		Flags:       buf[2],
		Version:     buf[3],
		Serial:      binary.LittleEndian.Uint32(buf[8:12]),
		ReplySerial: binary.LittleEndian.Uint32(buf[12:16]),
	}
	h.HasReply = h.ReplySerial != 0

	trailing := buf[headerFixedSize:total]
	var fields [6]string
	off := 0
	for i := range fields {
		s, n, ok := decodeString(trailing[off:])
		if !ok {
			return nil, 0, false
		}
		fields[i] = s
		off += n
	}
	body := trailing[off:]
	h.BodyLength = uint32(len(body))

	msg = &Message{
		Header:      h,
		Sender:      fields[0],
		Destination: fields[1],
		Path:        fields[2],
		Interface:   fields[3],
		Member:      fields[4],
		ErrorName:   fields[5],
		Body:        append([]byte(nil), body...),
		sealed:      true,
	}
	return msg, total, true
}

// encodeString encodes s as a length-prefixed, NUL-terminated D-Bus
// STRING body (the only body shape the built-in interface needs).
func encodeString(s string) []byte {
	buf := make([]byte, 4+len(s)+1)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(s)))
	copy(buf[4:], s)
	buf[len(buf)-1] = 0
	return buf
}

// decodeString decodes the first D-Bus STRING from body, returning the
// string and the number of bytes consumed.
func decodeString(body []byte) (string, int, bool) {
	if len(body) < 4 {
		return "", 0, false
	}
	n := int(binary.LittleEndian.Uint32(body[0:4]))
	end := 4 + n
	if end >= len(body) || end+1 > len(body) {
		return "", 0, false
	}
	return string(body[4:end]), end + 1, true
}
