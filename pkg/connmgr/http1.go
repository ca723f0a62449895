package connmgr

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/WhileEndless/go-rawserver/pkg/dispatch"
	"github.com/WhileEndless/go-rawserver/pkg/errors"
	"github.com/WhileEndless/go-rawserver/pkg/http1"
)

// serveHTTP1 runs the keep-alive request loop for one HTTP/1.x connection,
// per spec §4.3.4/§4.6: wait for the next request bounded by idle_timeout,
// read its header block bounded by header_timeout, read its body and
// dispatch it bounded by request_timeout, write the response, then either
// loop (if both sides want to keep the connection alive and no shutdown
// has been requested) or return.
func (m *Manager) serveHTTP1(nc net.Conn, connID string, isTLS bool) error {
	br := bufio.NewReaderSize(nc, 16*1024)
	bw := bufio.NewWriterSize(nc, 16*1024)
	cfg := http1.Config{MaxRequestBodySize: m.opts.MaxRequestBodySize}

	for {
		if m.isShuttingDown() {
			return nil
		}

		if err := nc.SetReadDeadline(time.Now().Add(m.opts.IdleTimeout)); err != nil {
			return errors.NewIOError("set_idle_deadline", err)
		}
		if _, err := br.Peek(1); err != nil {
			return nil // idle timeout or peer closed; no bytes read for a new request
		}

		if err := nc.SetReadDeadline(time.Now().Add(m.opts.HeaderTimeout)); err != nil {
			return errors.NewIOError("set_header_deadline", err)
		}
		req, framing, err := http1.ReadRequestHead(br)
		if err != nil {
			if errors.IsTimeout(err) {
				m.writeHTTP1Timeout(bw)
				return err
			}
			m.writeHTTP1Error(bw, err)
			return err
		}

		if err := nc.SetReadDeadline(time.Now().Add(m.opts.RequestTimeout)); err != nil {
			return errors.NewIOError("set_request_deadline", err)
		}
		if err := http1.ReadRequestBody(br, req, framing, cfg); err != nil {
			if errors.IsTimeout(err) {
				m.writeHTTP1Timeout(bw)
				return err
			}
			m.writeHTTP1Error(bw, err)
			return err
		}

		req.ConnID = connID
		req.IsHTTPS = isTLS
		req.Remote = nc.RemoteAddr().String()
		req.TLS = tlsRequestInfo(nc)

		if m.recorder != nil {
			m.recorder.RequestsTotal.Inc()
		}

		ctx, cancel := context.WithTimeout(context.Background(), m.opts.RequestTimeout)
		resp := dispatch.Invoke(ctx, m.handler, req)
		cancel()

		if !req.KeepAlive || m.isShuttingDown() {
			resp.KeepAlive = false
		} else {
			resp.KeepAlive = true
		}

		if err := http1.WriteResponse(bw, resp, req.Proto); err != nil {
			return errors.NewIOError("write_response", err)
		}

		if !resp.KeepAlive {
			return nil
		}
	}
}

// writeHTTP1Timeout replies 408 for a deadline expiring mid-request — once
// ReadRequestHead has started, bytes have necessarily already been read off
// the wire (the idle-wait Peek above only returns once data has arrived),
// so per spec §4.3.4 this is never the silent-close case.
func (m *Manager) writeHTTP1Timeout(bw *bufio.Writer) {
	resp := dispatch.RequestTimeout()
	resp.KeepAlive = false
	_ = http1.WriteResponse(bw, resp, "HTTP/1.1")
}

func (m *Manager) writeHTTP1Error(bw *bufio.Writer, err error) {
	var resp *dispatch.Response
	if errors.Of(err) == errors.KindPayloadTooLarge {
		resp = dispatch.PayloadTooLarge(m.opts.MaxRequestBodySize)
	} else {
		resp = dispatch.BadRequest(err.Error())
	}
	resp.KeepAlive = false
	_ = http1.WriteResponse(bw, resp, "HTTP/1.1")
}

// tlsRequestInfo returns the negotiated TLS parameters for nc, or nil over
// plaintext.
func tlsRequestInfo(nc net.Conn) *dispatch.TLSInfo {
	tc, ok := nc.(*tls.Conn)
	if !ok {
		return nil
	}
	st := tc.ConnectionState()
	return &dispatch.TLSInfo{
		Version:            st.Version,
		CipherSuite:        st.CipherSuite,
		ServerName:         st.ServerName,
		NegotiatedProtocol: st.NegotiatedProtocol,
		Resumed:            st.DidResume,
	}
}

func (m *Manager) isShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
