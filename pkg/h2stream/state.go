// Package h2stream implements the per-stream state machine and header-list
// validation of an HTTP/2 connection (RFC 7540 §5.1, §8.1.2).
package h2stream

import (
	"sync"

	"github.com/WhileEndless/go-rawserver/pkg/errors"
	"github.com/WhileEndless/go-rawserver/pkg/hpack"
)

// State is one node of the per-stream state machine.
type State int

const (
	StateIdle State = iota
	StateReservedLocal
	StateReservedRemote
	StateOpen
	StateHalfClosedLocal
	StateHalfClosedRemote
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReservedLocal:
		return "reserved_local"
	case StateReservedRemote:
		return "reserved_remote"
	case StateOpen:
		return "open"
	case StateHalfClosedLocal:
		return "half_closed_local"
	case StateHalfClosedRemote:
		return "half_closed_remote"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stream is one HTTP/2 stream: its state, flow-control windows, and the
// request being assembled from HEADERS/CONTINUATION/DATA frames.
type Stream struct {
	mu sync.Mutex

	ID    uint32
	state State

	SendWindow int32 // credit this side may spend, replenished by peer WINDOW_UPDATE
	RecvWindow int32 // credit offered to the peer, consumed as DATA arrives

	Headers    []hpack.HeaderField
	Body       []byte
	EndStream  bool // true once the request side has seen END_STREAM

	sawResponseEndStream bool // enforces "exactly one END_STREAM per accepted stream id"
}

// NewStream creates a stream in the Idle state with the given initial
// flow-control windows.
func NewStream(id uint32, initialSendWindow, initialRecvWindow int32) *Stream {
	return &Stream{ID: id, state: StateIdle, SendWindow: initialSendWindow, RecvWindow: initialRecvWindow}
}

// State returns the current state under the stream's lock.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RecvHeaders applies the "receive HEADERS" transition. endStream is true
// when the frame that completed the header block also carried END_STREAM.
func (s *Stream) RecvHeaders(endStream bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIdle:
		if endStream {
			s.state = StateHalfClosedRemote
			s.EndStream = true
		} else {
			s.state = StateOpen
		}
		return nil
	case StateOpen:
		// Trailing HEADERS on an already-open stream.
		if endStream {
			s.state = StateHalfClosedRemote
			s.EndStream = true
		}
		return nil
	case StateHalfClosedLocal:
		if endStream {
			s.state = StateClosed
			s.EndStream = true
		}
		return nil
	default:
		return errors.NewProtocolError("stream_recv_headers", "HEADERS not valid in state "+s.state.String(), nil).WithConn("", s.ID)
	}
}

// RecvData applies the "receive DATA" transition.
func (s *Stream) RecvData(endStream bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateOpen:
		if endStream {
			s.state = StateHalfClosedRemote
			s.EndStream = true
		}
		return nil
	case StateHalfClosedLocal:
		if endStream {
			s.state = StateClosed
			s.EndStream = true
		}
		return nil
	case StateClosed:
		return errors.NewProtocolError("stream_recv_data", "DATA on closed stream", nil).WithConn("", s.ID)
	default:
		return errors.NewProtocolError("stream_recv_data", "DATA not valid in state "+s.state.String(), nil).WithConn("", s.ID)
	}
}

// SendHeaders applies the "send HEADERS" transition (a response or a push
// promise's own HEADERS on the pushed stream).
func (s *Stream) SendHeaders() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIdle:
		s.state = StateReservedLocal
		return nil
	case StateOpen, StateHalfClosedRemote:
		return nil
	default:
		return errors.NewProtocolError("stream_send_headers", "cannot send HEADERS in state "+s.state.String(), nil).WithConn("", s.ID)
	}
}

// SendEndStream applies the "send DATA with END_STREAM" transition, marking
// the response complete from this side. It is an error to call this twice
// for the same stream: the core must emit exactly one END_STREAM.
func (s *Stream) SendEndStream() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sawResponseEndStream {
		return errors.NewProtocolError("stream_send_end_stream", "END_STREAM already sent on this stream", nil).WithConn("", s.ID)
	}
	s.sawResponseEndStream = true

	switch s.state {
	case StateOpen:
		s.state = StateHalfClosedLocal
	case StateHalfClosedRemote, StateReservedLocal:
		s.state = StateClosed
	default:
		return errors.NewProtocolError("stream_send_end_stream", "cannot end stream in state "+s.state.String(), nil).WithConn("", s.ID)
	}
	return nil
}

// Reset forces the stream to Closed, valid from any state, per RST_STREAM
// semantics (sent or received).
func (s *Stream) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
}

// IsClosed reports whether the stream has reached the terminal state.
func (s *Stream) IsClosed() bool {
	return s.State() == StateClosed
}
