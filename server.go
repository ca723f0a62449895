// Package rawserver is a high-performance HTTP/1.1 and HTTP/2 server core:
// it owns the TCP/TLS connection lifecycle, the HTTP/1.1 parser, the
// HTTP/2 framing engine, and the HPACK codec, handing fully-assembled
// requests to a single application-supplied Handler (pkg/dispatch). The
// application owns routing, serialization, and business logic; this
// package owns the wire.
package rawserver

import (
	"context"
	"strconv"
	"time"

	"github.com/WhileEndless/go-rawserver/pkg/connmgr"
	"github.com/WhileEndless/go-rawserver/pkg/dispatch"
	"github.com/WhileEndless/go-rawserver/pkg/http2conn"
	"github.com/WhileEndless/go-rawserver/pkg/metrics"
	"github.com/WhileEndless/go-rawserver/pkg/tlsconfig"
)

// Version is the current version of the server core.
const Version = "1.0.0"

// ServerOptions configures one Server. It is immutable once passed to
// Start; build it with NewServerOptions and Option functions, per spec §3.
type ServerOptions struct {
	HTTPPort  int
	HTTPSPort int

	TLSIdentity  tlsconfig.Identity
	TLSProfile   tlsconfig.VersionProfile
	RequireHTTPS bool

	MaxConcurrentConnections int32
	MaxRequestBodySize       int64

	HeaderTimeout  time.Duration
	RequestTimeout time.Duration
	IdleTimeout    time.Duration

	H2MaxConcurrentStreams       uint32
	H2MaxFrameSize               uint32
	H2MaxHeaderListSize          uint32
	H2InitialWindowSize          uint32
	H2HeaderTableSize            uint32
	H2EnablePush                 bool
	H2MaxPushedStreamsPerConn    int
	H2MaxPushedResourceSize      int64
}

// Option mutates a ServerOptions under construction.
type Option func(*ServerOptions)

// WithHTTPPort sets the plaintext HTTP/1.1 listener port. 0 disables it.
func WithHTTPPort(port int) Option { return func(o *ServerOptions) { o.HTTPPort = port } }

// WithHTTPSPort sets the TLS listener port. 0 disables it.
func WithHTTPSPort(port int) Option { return func(o *ServerOptions) { o.HTTPSPort = port } }

// WithTLSIdentity sets the certificate/ALPN identity for the TLS listener.
func WithTLSIdentity(identity tlsconfig.Identity) Option {
	return func(o *ServerOptions) { o.TLSIdentity = identity }
}

// WithTLSProfile sets the TLS version/cipher-suite profile.
func WithTLSProfile(profile tlsconfig.VersionProfile) Option {
	return func(o *ServerOptions) { o.TLSProfile = profile }
}

// WithMaxConcurrentConnections bounds live connections across all listeners.
func WithMaxConcurrentConnections(n int32) Option {
	return func(o *ServerOptions) { o.MaxConcurrentConnections = n }
}

// WithMaxRequestBodySize bounds request bodies on both protocols.
func WithMaxRequestBodySize(n int64) Option {
	return func(o *ServerOptions) { o.MaxRequestBodySize = n }
}

// WithTimeouts sets header/request/idle timeouts in one call.
func WithTimeouts(header, request, idle time.Duration) Option {
	return func(o *ServerOptions) {
		o.HeaderTimeout = header
		o.RequestTimeout = request
		o.IdleTimeout = idle
	}
}

// WithHTTP2Push toggles server push and bounds it.
func WithHTTP2Push(enabled bool, maxStreamsPerConn int, maxResourceSize int64) Option {
	return func(o *ServerOptions) {
		o.H2EnablePush = enabled
		o.H2MaxPushedStreamsPerConn = maxStreamsPerConn
		o.H2MaxPushedResourceSize = maxResourceSize
	}
}

// NewServerOptions builds a ServerOptions from spec §3's defaults, then
// applies opts in order.
func NewServerOptions(opts ...Option) ServerOptions {
	h2Defaults := http2conn.DefaultOptions()
	o := ServerOptions{
		HTTPPort:                  8080,
		HTTPSPort:                 8443,
		TLSProfile:                tlsconfig.ProfileSecure,
		MaxConcurrentConnections:  10000,
		MaxRequestBodySize:        30 * 1024 * 1024,
		HeaderTimeout:             30 * time.Second,
		RequestTimeout:            30 * time.Second,
		IdleTimeout:               120 * time.Second,
		H2MaxConcurrentStreams:    h2Defaults.MaxConcurrentStreams,
		H2MaxFrameSize:            h2Defaults.MaxFrameSize,
		H2MaxHeaderListSize:       h2Defaults.MaxHeaderListSize,
		H2InitialWindowSize:       h2Defaults.InitialWindowSize,
		H2HeaderTableSize:         h2Defaults.HeaderTableSize,
		H2EnablePush:              h2Defaults.EnablePush,
		H2MaxPushedStreamsPerConn: h2Defaults.MaxPushedStreamsPerConn,
		H2MaxPushedResourceSize:   h2Defaults.MaxPushedResourceSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o ServerOptions) toConnmgrOptions() connmgr.Options {
	return connmgr.Options{
		HTTPAddr:                 portAddr(o.HTTPPort),
		HTTPSAddr:                portAddr(o.HTTPSPort),
		TLSIdentity:              o.TLSIdentity,
		TLSProfile:               o.TLSProfile,
		RequireHTTPS:             o.RequireHTTPS,
		MaxConcurrentConnections: o.MaxConcurrentConnections,
		MaxRequestBodySize:       o.MaxRequestBodySize,
		HeaderTimeout:            o.HeaderTimeout,
		RequestTimeout:           o.RequestTimeout,
		IdleTimeout:              o.IdleTimeout,
		H2: http2conn.Options{
			MaxConcurrentStreams:    o.H2MaxConcurrentStreams,
			MaxFrameSize:            o.H2MaxFrameSize,
			MaxHeaderListSize:       o.H2MaxHeaderListSize,
			InitialWindowSize:       o.H2InitialWindowSize,
			HeaderTableSize:         o.H2HeaderTableSize,
			EnablePush:              o.H2EnablePush,
			MaxPushedStreamsPerConn: o.H2MaxPushedStreamsPerConn,
			MaxPushedResourceSize:   o.H2MaxPushedResourceSize,
			MaxRequestBodySize:      o.MaxRequestBodySize,
			HeaderTimeout:           o.HeaderTimeout,
			RequestTimeout:          o.RequestTimeout,
			IdleTimeout:             o.IdleTimeout,
		},
	}
}

func portAddr(port int) string {
	if port == 0 {
		return ""
	}
	return ":" + strconv.Itoa(port)
}

// Server is the top-level entry point applications embed: configure it
// with ServerOptions and a dispatch.Handler, then Start/Shutdown it.
type Server struct {
	opts     ServerOptions
	handler  dispatch.Handler
	recorder *metrics.Recorder
	mgr      *connmgr.Manager
}

// New creates a Server. A nil recorder is replaced by a fresh metrics.New(),
// so metrics are always collected.
func New(opts ServerOptions, handler dispatch.Handler, recorder *metrics.Recorder) *Server {
	if recorder == nil {
		recorder = metrics.New()
	}
	return &Server{
		opts:     opts,
		handler:  handler,
		recorder: recorder,
	}
}

// Start opens the configured listeners and begins serving. It returns
// once listeners are bound; connections are served in background
// goroutines until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.mgr = connmgr.New(s.opts.toConnmgrOptions(), s.handler, s.recorder)
	return s.mgr.Start(ctx)
}

// Shutdown stops accepting new connections and waits (bounded by ctx) for
// in-flight connections to drain gracefully, per spec §4.6.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.mgr == nil {
		return nil
	}
	return s.mgr.Shutdown(ctx)
}

// Metrics returns the server's metrics recorder.
func (s *Server) Metrics() *metrics.Recorder {
	return s.recorder
}
