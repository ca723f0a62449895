package connmgr

import (
	"time"

	"github.com/WhileEndless/go-rawserver/pkg/http2conn"
	"github.com/WhileEndless/go-rawserver/pkg/tlsconfig"
)

// Options configures one Manager, per spec §3's ServerOptions and §4.6's
// connection-manager responsibilities.
type Options struct {
	HTTPAddr  string // empty disables the plaintext listener
	HTTPSAddr string // empty disables the TLS listener

	TLSIdentity  tlsconfig.Identity
	TLSProfile   tlsconfig.VersionProfile
	RequireHTTPS bool // when true and HTTPSAddr is set, HTTPAddr is unused

	MaxConcurrentConnections int32
	MaxRequestBodySize       int64

	HeaderTimeout  time.Duration
	RequestTimeout time.Duration
	IdleTimeout    time.Duration

	H2 http2conn.Options
}

// DefaultOptions matches spec §3's ServerOptions defaults.
func DefaultOptions() Options {
	return Options{
		MaxConcurrentConnections: 10000,
		MaxRequestBodySize:       30 * 1024 * 1024,
		HeaderTimeout:            30 * time.Second,
		RequestTimeout:           30 * time.Second,
		IdleTimeout:              120 * time.Second,
		H2:                       http2conn.DefaultOptions(),
	}
}
