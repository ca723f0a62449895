// Package connmgr owns the transport layer: TCP/TLS accept loops, ALPN
// protocol demux, per-connection concurrency limiting, and graceful
// shutdown, per spec §4.6.
package connmgr

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/WhileEndless/go-rawserver/pkg/dispatch"
	"github.com/WhileEndless/go-rawserver/pkg/errors"
	"github.com/WhileEndless/go-rawserver/pkg/http2conn"
	"github.com/WhileEndless/go-rawserver/pkg/metrics"
	"github.com/WhileEndless/go-rawserver/pkg/tlsconfig"
)

// Manager accepts connections on one or two listeners (plaintext and/or
// TLS), enforces the configured concurrency ceiling with a lock-free
// counter, and dispatches each accepted connection to the HTTP/1.1 or
// HTTP/2 engine depending on the negotiated protocol.
type Manager struct {
	opts     Options
	handler  dispatch.Handler
	recorder *metrics.Recorder
	log      *logrus.Entry

	httpLn  net.Listener
	httpsLn net.Listener

	activeConns int32 // CAS-guarded slot counter, spec §4.6/§5
	connsDone   sync.WaitGroup

	mu      sync.Mutex
	h2conns map[*http2conn.Connection]struct{}
	closed  bool
}

// New creates a Manager. recorder may be nil to disable metrics.
func New(opts Options, handler dispatch.Handler, recorder *metrics.Recorder) *Manager {
	return &Manager{
		opts:     opts,
		handler:  handler,
		recorder: recorder,
		log:      logrus.WithField("component", "connmgr"),
		h2conns:  make(map[*http2conn.Connection]struct{}),
	}
}

// Start opens the configured listeners and begins accepting connections.
// It returns once both listeners are open; accept loops run in background
// goroutines until Shutdown is called.
func (m *Manager) Start(ctx context.Context) error {
	var result *multierror.Error

	if m.opts.HTTPAddr != "" && !(m.opts.RequireHTTPS && m.opts.HTTPSAddr != "") {
		ln, err := net.Listen("tcp", m.opts.HTTPAddr)
		if err != nil {
			result = multierror.Append(result, errors.NewIOError("listen_http", err))
		} else {
			m.httpLn = ln
			go m.acceptLoop(ln, false)
		}
	}

	if m.opts.HTTPSAddr != "" {
		tlsCfg := tlsServerConfig(m.opts)
		ln, err := tls.Listen("tcp", m.opts.HTTPSAddr, tlsCfg)
		if err != nil {
			result = multierror.Append(result, errors.NewIOError("listen_https", err))
		} else {
			m.httpsLn = ln
			go m.acceptLoop(ln, true)
		}
	}

	return result.ErrorOrNil()
}

func tlsServerConfig(opts Options) *tls.Config {
	identity := opts.TLSIdentity
	if len(identity.ALPNProtocols) == 0 {
		identity.ALPNProtocols = []string{"h2", "http/1.1"}
	}
	return tlsconfig.BuildServerConfig(identity, opts.TLSProfile)
}

func (m *Manager) acceptLoop(ln net.Listener, isTLS bool) {
	for {
		nc, err := ln.Accept()
		if err != nil {
			m.mu.Lock()
			closed := m.closed
			m.mu.Unlock()
			if closed {
				return
			}
			m.log.WithError(err).Warn("accept failed")
			continue
		}

		if !m.acquireSlot() {
			m.log.Debug("connection limit reached, rejecting")
			nc.Close()
			continue
		}

		go func() {
			defer m.releaseSlot()
			m.handleConn(nc, isTLS)
		}()
	}
}

// acquireSlot implements the lock-free connection-count ceiling with a
// compare-and-swap retry loop, per spec §4.6/§5.
func (m *Manager) acquireSlot() bool {
	for {
		cur := atomic.LoadInt32(&m.activeConns)
		if cur >= m.opts.MaxConcurrentConnections {
			return false
		}
		if atomic.CompareAndSwapInt32(&m.activeConns, cur, cur+1) {
			m.connsDone.Add(1)
			if m.recorder != nil {
				m.recorder.ConnectionsAccepted.Inc()
				m.recorder.ConnectionsActive.Inc()
			}
			return true
		}
	}
}

func (m *Manager) releaseSlot() {
	atomic.AddInt32(&m.activeConns, -1)
	m.connsDone.Done()
	if m.recorder != nil {
		m.recorder.ConnectionsActive.Dec()
	}
}

func (m *Manager) handleConn(nc net.Conn, wasTLS bool) {
	defer nc.Close()

	if tcpConn, ok := nc.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}

	connID := newConnID()
	connLog := m.log.WithFields(logrus.Fields{"conn_id": connID, "remote": nc.RemoteAddr().String()})

	negotiated := "http/1.1"
	if wasTLS {
		tlsConn := nc.(*tls.Conn)
		if err := tlsConn.HandshakeContext(context.Background()); err != nil {
			connLog.WithError(err).Debug("TLS handshake failed")
			return
		}
		negotiated = tlsConn.ConnectionState().NegotiatedProtocol
		if negotiated == "" {
			negotiated = "http/1.1"
		}
	}

	var err error
	switch negotiated {
	case "h2":
		conn := http2conn.NewConnection(nc, connID, m.opts.H2, m.handler, m.recorder)
		m.trackH2(conn)
		err = conn.Run()
		m.untrackH2(conn)
	default:
		err = m.serveHTTP1(nc, connID, wasTLS)
	}

	if err != nil && errors.Of(err) != "" {
		connLog.WithError(err).Debug("connection ended")
	}
}

// Shutdown stops accepting new connections, asks every tracked HTTP/2
// connection to drain (GOAWAY, no new streams), and closes the listeners.
// In-flight HTTP/1.1 requests finish on their own because their keep-alive
// loop checks the same shutdown flag between requests.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	conns := make([]*http2conn.Connection, 0, len(m.h2conns))
	for c := range m.h2conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	var result *multierror.Error
	if m.httpLn != nil {
		if err := m.httpLn.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if m.httpsLn != nil {
		if err := m.httpsLn.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	g, _ := errgroup.WithContext(ctx)
	for _, c := range conns {
		c := c
		g.Go(func() error {
			c.RequestShutdown()
			return nil
		})
	}
	_ = g.Wait()

	done := make(chan struct{})
	go func() {
		m.connsDone.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		result = multierror.Append(result, ctx.Err())
	}

	return result.ErrorOrNil()
}

func (m *Manager) trackH2(c *http2conn.Connection) {
	m.mu.Lock()
	m.h2conns[c] = struct{}{}
	m.mu.Unlock()
}

func (m *Manager) untrackH2(c *http2conn.Connection) {
	m.mu.Lock()
	delete(m.h2conns, c)
	m.mu.Unlock()
}
