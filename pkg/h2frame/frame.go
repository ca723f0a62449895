// Package h2frame implements the HTTP/2 frame codec: the 9-octet frame
// header and the typed payload layouts of RFC 7540 §4 and §6, with no
// connection-level state. The connection engine (pkg/http2conn) is the
// only caller that knows what a frame *means*; this package only knows how
// to turn bytes into a frame and back.
package h2frame

import (
	"encoding/binary"
	"io"

	"github.com/WhileEndless/go-rawserver/pkg/errors"
)

// Type is the 8-bit HTTP/2 frame type (RFC 7540 §11.2).
type Type uint8

const (
	TypeData         Type = 0x0
	TypeHeaders      Type = 0x1
	TypePriority     Type = 0x2
	TypeRSTStream    Type = 0x3
	TypeSettings     Type = 0x4
	TypePushPromise  Type = 0x5
	TypePing         Type = 0x6
	TypeGoAway       Type = 0x7
	TypeWindowUpdate Type = 0x8
	TypeContinuation Type = 0x9
)

func (t Type) String() string {
	switch t {
	case TypeData:
		return "DATA"
	case TypeHeaders:
		return "HEADERS"
	case TypePriority:
		return "PRIORITY"
	case TypeRSTStream:
		return "RST_STREAM"
	case TypeSettings:
		return "SETTINGS"
	case TypePushPromise:
		return "PUSH_PROMISE"
	case TypePing:
		return "PING"
	case TypeGoAway:
		return "GOAWAY"
	case TypeWindowUpdate:
		return "WINDOW_UPDATE"
	case TypeContinuation:
		return "CONTINUATION"
	default:
		return "UNKNOWN"
	}
}

// Flags is the 8-bit frame flags field. Meaning is type-dependent.
type Flags uint8

const (
	FlagEndStream  Flags = 0x1 // DATA, HEADERS
	FlagAck        Flags = 0x1 // SETTINGS, PING
	FlagEndHeaders Flags = 0x4 // HEADERS, PUSH_PROMISE, CONTINUATION
	FlagPadded     Flags = 0x8 // DATA, HEADERS, PUSH_PROMISE
	FlagPriority   Flags = 0x20
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Header is the 9-octet frame header every HTTP/2 frame carries.
type Header struct {
	Length   uint32 // 24-bit payload length
	Type     Type
	Flags    Flags
	StreamID uint32 // 31-bit, reserved high bit always 0 here
}

// FrameHeaderLen is the fixed size in octets of Header on the wire.
const FrameHeaderLen = 9

// ReadHeader reads and parses one 9-octet frame header.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [FrameHeaderLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}
	return ParseHeader(buf[:])
}

// ParseHeader decodes a 9-octet buffer into a Header.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < FrameHeaderLen {
		return Header{}, errors.NewProtocolError("parse_frame_header", "short frame header", nil)
	}
	length := uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2])
	typ := Type(buf[3])
	flags := Flags(buf[4])
	streamID := binary.BigEndian.Uint32(buf[5:9]) & 0x7fffffff
	return Header{Length: length, Type: typ, Flags: flags, StreamID: streamID}, nil
}

// AppendHeader appends the wire encoding of h to dst.
func AppendHeader(dst []byte, h Header) []byte {
	dst = append(dst,
		byte(h.Length>>16), byte(h.Length>>8), byte(h.Length),
		byte(h.Type),
		byte(h.Flags),
	)
	var sid [4]byte
	binary.BigEndian.PutUint32(sid[:], h.StreamID&0x7fffffff)
	return append(dst, sid[:]...)
}

// WriteHeader writes the wire encoding of h to w.
func WriteHeader(w io.Writer, h Header) error {
	var buf [FrameHeaderLen]byte
	b := AppendHeader(buf[:0], h)
	_, err := w.Write(b)
	return err
}
