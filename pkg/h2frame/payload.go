package h2frame

import (
	"encoding/binary"

	"github.com/WhileEndless/go-rawserver/pkg/errors"
)

// ErrorCode is an HTTP/2 connection/stream error code (RFC 7540 §7).
type ErrorCode uint32

const (
	ErrCodeNoError            ErrorCode = 0x0
	ErrCodeProtocolError      ErrorCode = 0x1
	ErrCodeInternalError      ErrorCode = 0x2
	ErrCodeFlowControlError   ErrorCode = 0x3
	ErrCodeSettingsTimeout    ErrorCode = 0x4
	ErrCodeStreamClosed       ErrorCode = 0x5
	ErrCodeFrameSizeError     ErrorCode = 0x6
	ErrCodeRefusedStream      ErrorCode = 0x7
	ErrCodeCancel             ErrorCode = 0x8
	ErrCodeCompressionError   ErrorCode = 0x9
	ErrCodeConnectError       ErrorCode = 0xa
	ErrCodeEnhanceYourCalm    ErrorCode = 0xb
	ErrCodeInadequateSecurity ErrorCode = 0xc
	ErrCodeHTTP11Required     ErrorCode = 0xd
)

// SettingID identifies one HTTP/2 SETTINGS parameter (RFC 7540 §6.5.2).
type SettingID uint16

const (
	SettingHeaderTableSize      SettingID = 0x1
	SettingEnablePush           SettingID = 0x2
	SettingMaxConcurrentStreams SettingID = 0x3
	SettingInitialWindowSize    SettingID = 0x4
	SettingMaxFrameSize         SettingID = 0x5
	SettingMaxHeaderListSize    SettingID = 0x6
)

// SettingParam is one (identifier, value) tuple inside a SETTINGS frame.
type SettingParam struct {
	ID    SettingID
	Value uint32
}

// SplitPadded strips the optional pad-length prefix and trailing padding
// from a DATA/HEADERS/PUSH_PROMISE payload when FlagPadded is set, per RFC
// 7540 §6.1/§6.2/§6.6. It returns the unpadded payload.
func SplitPadded(payload []byte, flags Flags) ([]byte, error) {
	if !flags.Has(FlagPadded) {
		return payload, nil
	}
	if len(payload) < 1 {
		return nil, errors.NewProtocolError("split_padded", "padded frame with empty payload", nil)
	}
	padLen := int(payload[0])
	rest := payload[1:]
	if padLen > len(rest) {
		return nil, errors.NewProtocolError("split_padded", "pad length exceeds frame payload", nil)
	}
	return rest[:len(rest)-padLen], nil
}

// PriorityFields is the 5-octet priority prefix found in HEADERS frames
// with FlagPriority set, and the sole payload of a PRIORITY frame.
type PriorityFields struct {
	Exclusive        bool
	StreamDependency uint32
	Weight           uint8 // encoded weight-1; add 1 for the true weight 1..256
}

// ParsePriority reads the 5-octet priority prefix from the start of data,
// returning the parsed fields and the remaining bytes.
func ParsePriority(data []byte) (PriorityFields, []byte, error) {
	if len(data) < 5 {
		return PriorityFields{}, nil, errors.NewProtocolError("parse_priority", "short priority fields", nil)
	}
	raw := binary.BigEndian.Uint32(data[0:4])
	return PriorityFields{
		Exclusive:        raw&0x80000000 != 0,
		StreamDependency: raw & 0x7fffffff,
		Weight:           data[4],
	}, data[5:], nil
}

// ParseSettings decodes a SETTINGS payload into its (id, value) tuples.
// Length not a multiple of 6 is a FRAME_SIZE_ERROR per RFC 7540 §6.5.
func ParseSettings(payload []byte) ([]SettingParam, error) {
	if len(payload)%6 != 0 {
		return nil, errors.NewFrameSizeError("parse_settings", 0, uint32(len(payload)))
	}
	n := len(payload) / 6
	out := make([]SettingParam, n)
	for i := 0; i < n; i++ {
		b := payload[i*6 : i*6+6]
		out[i] = SettingParam{
			ID:    SettingID(binary.BigEndian.Uint16(b[0:2])),
			Value: binary.BigEndian.Uint32(b[2:6]),
		}
	}
	return out, nil
}

// AppendSettings appends the wire encoding of params to dst.
func AppendSettings(dst []byte, params []SettingParam) []byte {
	for _, p := range params {
		var b [6]byte
		binary.BigEndian.PutUint16(b[0:2], uint16(p.ID))
		binary.BigEndian.PutUint32(b[2:6], p.Value)
		dst = append(dst, b[:]...)
	}
	return dst
}

// ParseRSTStream decodes a 4-octet RST_STREAM payload.
func ParseRSTStream(payload []byte) (ErrorCode, error) {
	if len(payload) != 4 {
		return 0, errors.NewFrameSizeError("parse_rst_stream", 4, uint32(len(payload)))
	}
	return ErrorCode(binary.BigEndian.Uint32(payload)), nil
}

// AppendRSTStream appends a 4-octet RST_STREAM payload to dst.
func AppendRSTStream(dst []byte, code ErrorCode) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(code))
	return append(dst, b[:]...)
}

// GoAway is the parsed payload of a GOAWAY frame.
type GoAway struct {
	LastStreamID uint32
	ErrorCode    ErrorCode
	Debug        []byte
}

// ParseGoAway decodes a GOAWAY payload.
func ParseGoAway(payload []byte) (GoAway, error) {
	if len(payload) < 8 {
		return GoAway{}, errors.NewFrameSizeError("parse_goaway", 8, uint32(len(payload)))
	}
	return GoAway{
		LastStreamID: binary.BigEndian.Uint32(payload[0:4]) & 0x7fffffff,
		ErrorCode:    ErrorCode(binary.BigEndian.Uint32(payload[4:8])),
		Debug:        payload[8:],
	}, nil
}

// AppendGoAway appends the wire encoding of a GOAWAY payload to dst.
func AppendGoAway(dst []byte, lastStreamID uint32, code ErrorCode, debug []byte) []byte {
	var b [8]byte
	binary.BigEndian.PutUint32(b[0:4], lastStreamID&0x7fffffff)
	binary.BigEndian.PutUint32(b[4:8], uint32(code))
	dst = append(dst, b[:]...)
	return append(dst, debug...)
}

// ParsePing decodes an 8-octet PING payload.
func ParsePing(payload []byte) ([8]byte, error) {
	var out [8]byte
	if len(payload) != 8 {
		return out, errors.NewFrameSizeError("parse_ping", 8, uint32(len(payload)))
	}
	copy(out[:], payload)
	return out, nil
}

// ParseWindowUpdate decodes a 4-octet WINDOW_UPDATE payload.
func ParseWindowUpdate(payload []byte) (uint32, error) {
	if len(payload) != 4 {
		return 0, errors.NewFrameSizeError("parse_window_update", 4, uint32(len(payload)))
	}
	return binary.BigEndian.Uint32(payload) & 0x7fffffff, nil
}

// AppendWindowUpdate appends a 4-octet WINDOW_UPDATE payload to dst.
func AppendWindowUpdate(dst []byte, increment uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], increment&0x7fffffff)
	return append(dst, b[:]...)
}

// ClientPreface is the fixed 24-byte sequence a client sends before any
// HTTP/2 frames (RFC 7540 §3.5).
const ClientPreface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"
