// Package errors provides structured error types for the server core.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Kind represents the category of error that occurred.
type Kind string

const (
	// KindIO represents a lower-level socket/TLS failure.
	KindIO Kind = "io"
	// KindTimeout represents a deadline expiring mid-operation.
	KindTimeout Kind = "timeout"
	// KindBadRequest represents a rejected HTTP/1.1 request.
	KindBadRequest Kind = "bad_request"
	// KindProtocol represents a rejected HTTP/2 frame or connection state.
	KindProtocol Kind = "protocol"
	// KindPayloadTooLarge represents a body exceeding the configured bound.
	KindPayloadTooLarge Kind = "payload_too_large"
	// KindCompression represents an HPACK decode failure.
	KindCompression Kind = "compression"
	// KindFlowControl represents an HTTP/2 flow-control window violation.
	KindFlowControl Kind = "flow_control"
	// KindFrameSize represents an HTTP/2 frame exceeding the size bound.
	KindFrameSize Kind = "frame_size"
	// KindHandlerFailure represents an error surfacing above the dispatch boundary.
	KindHandlerFailure Kind = "handler_failure"
)

// Error is a structured error with context information, carried from the
// byte where a fault is detected up to the layer that turns it into a wire
// response or a connection teardown.
type Error struct {
	Kind      Kind      `json:"kind"`
	Op        string    `json:"op"`                 // operation that failed (read_header, decode_frame, hpack_decode, ...)
	Message   string    `json:"message"`
	Cause     error     `json:"cause,omitempty"`
	ConnID    string    `json:"conn_id,omitempty"`
	StreamID  uint32    `json:"stream_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface.
// Format: [kind] op conn/stream: message: cause
func (e *Error) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s]", e.Kind))

	if e.Op != "" {
		parts = append(parts, e.Op)
	}

	if e.ConnID != "" {
		if e.StreamID != 0 {
			parts = append(parts, fmt.Sprintf("%s/stream=%d", e.ConnID, e.StreamID))
		} else {
			parts = append(parts, e.ConnID)
		}
	}

	errStr := strings.Join(parts, " ")
	if e.Message != "" {
		errStr += ": " + e.Message
	}
	if e.Cause != nil {
		errStr += ": " + e.Cause.Error()
	}

	return errStr
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target shares this error's kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// WithConn attaches connection/stream identifiers, returning e for chaining.
func (e *Error) WithConn(connID string, streamID uint32) *Error {
	e.ConnID = connID
	e.StreamID = streamID
	return e
}

func newError(kind Kind, op, message string, cause error) *Error {
	return &Error{
		Kind:      kind,
		Op:        op,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// NewIOError creates a lower-level socket/TLS error.
func NewIOError(op string, cause error) *Error {
	return newError(KindIO, op, fmt.Sprintf("I/O error during %s", op), cause)
}

// NewTimeoutError creates a deadline-expired error.
func NewTimeoutError(op string, timeout time.Duration) *Error {
	return newError(KindTimeout, op, fmt.Sprintf("operation timed out after %v", timeout), nil)
}

// NewBadRequestError creates a rejected HTTP/1.1 parse error.
func NewBadRequestError(op, message string, cause error) *Error {
	return newError(KindBadRequest, op, message, cause)
}

// NewProtocolError creates a rejected HTTP/2 frame/state error.
func NewProtocolError(op, message string, cause error) *Error {
	return newError(KindProtocol, op, message, cause)
}

// NewPayloadTooLargeError creates a body-too-large error.
func NewPayloadTooLargeError(op string, limit, got int64) *Error {
	return newError(KindPayloadTooLarge, op, fmt.Sprintf("body of %d bytes exceeds limit of %d bytes", got, limit), nil)
}

// NewCompressionError creates an HPACK decode failure.
func NewCompressionError(op, message string, cause error) *Error {
	return newError(KindCompression, op, message, cause)
}

// NewFlowControlError creates an HTTP/2 flow-control violation error.
func NewFlowControlError(op, message string) *Error {
	return newError(KindFlowControl, op, message, nil)
}

// NewFrameSizeError creates an HTTP/2 frame-size violation error.
func NewFrameSizeError(op string, limit, got uint32) *Error {
	return newError(KindFrameSize, op, fmt.Sprintf("frame of %d bytes exceeds limit of %d bytes", got, limit), nil)
}

// NewHandlerFailureError wraps a panic/error surfacing from the application handler.
func NewHandlerFailureError(cause error) *Error {
	return newError(KindHandlerFailure, "dispatch", "handler failed", cause)
}

// IsTimeout reports whether err is a timeout, from this package or from
// net, unwrapping *Error's Cause chain — a read deadline expiring mid-parse
// surfaces as a *Error{Kind: KindIO} wrapping the net.Error, not as
// KindTimeout directly.
func IsTimeout(err error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.Kind == KindTimeout {
				return true
			}
			err = e.Cause
			continue
		}
		if netErr, ok := err.(net.Error); ok {
			return netErr.Timeout()
		}
		return errors.Is(err, context.DeadlineExceeded)
	}
	return false
}

// Of returns the error kind if err is a structured *Error, else "".
func Of(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsContextCanceled reports whether err is due to context cancellation.
func IsContextCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
