package http1

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/WhileEndless/go-rawserver/pkg/dispatch"
)

// statusText falls back to a generic phrase for status codes the stdlib
// table doesn't name, rather than sending an empty reason phrase.
func statusText(code int) string {
	if t := http.StatusText(code); t != "" {
		return t
	}
	return "Status"
}

// WriteResponse serializes resp as an HTTP/1.x response onto w, using
// Content-Length framing since the handler hands back a fully materialized
// body. proto is echoed from the request ("HTTP/1.0" or "HTTP/1.1").
func WriteResponse(w *bufio.Writer, resp *dispatch.Response, proto string) error {
	if _, err := fmt.Fprintf(w, "%s %d %s\r\n", proto, resp.Status, statusText(resp.Status)); err != nil {
		return err
	}

	wroteContentLength := resp.Header.Has("Content-Length")
	wroteContentType := resp.Header.Has("Content-Type")

	for _, f := range resp.Header.All() {
		if err := writeHeaderLine(w, f.Name, f.Value); err != nil {
			return err
		}
	}
	if !wroteContentType && resp.ContentType != "" {
		if err := writeHeaderLine(w, "Content-Type", resp.ContentType); err != nil {
			return err
		}
	}
	if !wroteContentLength {
		if err := writeHeaderLine(w, "Content-Length", strconv.Itoa(len(resp.Body))); err != nil {
			return err
		}
	}
	connValue := "close"
	if resp.KeepAlive {
		connValue = "keep-alive"
	}
	if err := writeHeaderLine(w, "Connection", connValue); err != nil {
		return err
	}

	if _, err := w.WriteString("\r\n"); err != nil {
		return err
	}
	if len(resp.Body) > 0 {
		if _, err := w.Write(resp.Body); err != nil {
			return err
		}
	}
	return w.Flush()
}

func writeHeaderLine(w *bufio.Writer, name, value string) error {
	_, err := fmt.Fprintf(w, "%s: %s\r\n", name, value)
	return err
}

// ChunkedWriter streams a response body whose length isn't known upfront —
// used by the SSE helper and by handlers that stream progressively instead
// of returning a fully-materialized Response.Body.
type ChunkedWriter struct {
	w       *bufio.Writer
	headers dispatch.Header
	started bool
}

// NewChunkedWriter wraps w. Call Start before the first WriteChunk to emit
// the status line and headers (forcing Transfer-Encoding: chunked).
func NewChunkedWriter(w *bufio.Writer, headers dispatch.Header) *ChunkedWriter {
	return &ChunkedWriter{w: w, headers: headers}
}

func (c *ChunkedWriter) writeHeader(status int, proto string) error {
	if _, err := fmt.Fprintf(c.w, "%s %d %s\r\n", proto, status, statusText(status)); err != nil {
		return err
	}
	for _, f := range c.headers.All() {
		if err := writeHeaderLine(c.w, f.Name, f.Value); err != nil {
			return err
		}
	}
	if err := writeHeaderLine(c.w, "Transfer-Encoding", "chunked"); err != nil {
		return err
	}
	if err := writeHeaderLine(c.w, "Connection", "keep-alive"); err != nil {
		return err
	}
	_, err := c.w.WriteString("\r\n")
	return err
}

// Start writes the status line and header block. Must be called exactly
// once, before the first WriteChunk.
func (c *ChunkedWriter) Start(status int, proto string) error {
	if c.started {
		return nil
	}
	c.started = true
	return c.writeHeader(status, proto)
}

// WriteChunk writes one chunk of body data.
func (c *ChunkedWriter) WriteChunk(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if _, err := fmt.Fprintf(c.w, "%x\r\n", len(data)); err != nil {
		return err
	}
	if _, err := c.w.Write(data); err != nil {
		return err
	}
	if _, err := c.w.WriteString("\r\n"); err != nil {
		return err
	}
	return c.w.Flush()
}

// Close writes the terminating zero-length chunk and flushes.
func (c *ChunkedWriter) Close() error {
	if _, err := c.w.WriteString("0\r\n\r\n"); err != nil {
		return err
	}
	return c.w.Flush()
}

var _ io.Writer = (*chunkedBodyWriter)(nil)

// chunkedBodyWriter adapts ChunkedWriter to io.Writer for callers (like the
// SSE package) that want a plain io.Writer rather than the WriteChunk API.
type chunkedBodyWriter struct {
	cw *ChunkedWriter
}

func (w *chunkedBodyWriter) Write(p []byte) (int, error) {
	if err := w.cw.WriteChunk(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// AsWriter exposes c as a plain io.Writer.
func (c *ChunkedWriter) AsWriter() io.Writer {
	return &chunkedBodyWriter{cw: c}
}
