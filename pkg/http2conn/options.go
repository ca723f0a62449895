// Package http2conn implements the L3 HTTP/2 connection engine: preface and
// settings handshake, the frame receive loop, and the response writer that
// respects connection- and stream-level flow control.
package http2conn

import "time"

// Options mirrors the h2_* fields of the top-level ServerOptions; Server.Start
// builds it from ServerOptions and the connection manager hands it to every
// HTTP/2 connection it accepts.
type Options struct {
	MaxConcurrentStreams uint32
	MaxFrameSize         uint32
	MaxHeaderListSize    uint32
	InitialWindowSize    uint32
	HeaderTableSize      uint32

	EnablePush                  bool
	MaxPushedStreamsPerConn     int
	MaxPushedResourceSize       int64

	MaxRequestBodySize int64

	HeaderTimeout  time.Duration
	RequestTimeout time.Duration
	IdleTimeout    time.Duration
}

// DefaultOptions matches spec §3's documented defaults.
func DefaultOptions() Options {
	return Options{
		MaxConcurrentStreams:    100,
		MaxFrameSize:            16384,
		MaxHeaderListSize:       8192,
		InitialWindowSize:       65535,
		HeaderTableSize:         4096,
		EnablePush:              true,
		MaxPushedStreamsPerConn: 10,
		MaxPushedResourceSize:   1 << 20,
		MaxRequestBodySize:      30 << 20,
		HeaderTimeout:           30 * time.Second,
		RequestTimeout:          30 * time.Second,
		IdleTimeout:             120 * time.Second,
	}
}
