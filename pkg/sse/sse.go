// Package sse is a thin Server-Sent Events layer atop the HTTP/1.1 chunked
// response writer (spec §1): it frames `text/event-stream` events and can
// emit periodic keepalive comments so intermediaries don't time the
// connection out during quiet periods.
package sse

import (
	"bufio"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/WhileEndless/go-rawserver/pkg/dispatch"
	"github.com/WhileEndless/go-rawserver/pkg/http1"
)

// Event is one Server-Sent Event. ID and Event (the event name) are
// optional; Data is split on newlines into multiple `data:` lines per the
// wire format.
type Event struct {
	ID    string
	Event string
	Data  string
	Retry time.Duration
}

// Writer streams events to an HTTP/1.1 connection as chunked
// text/event-stream output. It is not safe for concurrent use by more
// than one goroutine without external synchronization beyond what
// StartKeepalive already provides.
type Writer struct {
	mu  sync.Mutex
	cw  *http1.ChunkedWriter
	cfg WriterConfig

	stopKeepalive chan struct{}
	keepaliveDone chan struct{}
}

// WriterConfig carries the response headers and protocol version needed
// to start the underlying chunked response.
type WriterConfig struct {
	Proto   string // "HTTP/1.1"
	Headers dispatch.Header
}

// NewWriter wraps bw as an SSE stream, writing the status line and the
// text/event-stream headers immediately.
func NewWriter(bw *bufio.Writer, cfg WriterConfig) (*Writer, error) {
	headers := cfg.Headers
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("X-Accel-Buffering", "no")

	cw := http1.NewChunkedWriter(bw, headers)
	if err := cw.Start(200, cfg.Proto); err != nil {
		return nil, err
	}
	return &Writer{cw: cw, cfg: cfg}, nil
}

// WriteEvent serializes and flushes one event.
func (w *Writer) WriteEvent(ev Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var b strings.Builder
	if ev.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", ev.ID)
	}
	if ev.Event != "" {
		fmt.Fprintf(&b, "event: %s\n", ev.Event)
	}
	if ev.Retry > 0 {
		fmt.Fprintf(&b, "retry: %d\n", ev.Retry.Milliseconds())
	}
	for _, line := range strings.Split(ev.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")

	return w.cw.WriteChunk([]byte(b.String()))
}

// writeComment writes a raw SSE comment line, used for keepalive pings —
// these are ignored by conforming clients but keep intermediaries from
// treating the connection as idle.
func (w *Writer) writeComment(text string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cw.WriteChunk([]byte(": " + text + "\n\n"))
}

// StartKeepalive starts a background goroutine that writes a comment line
// every interval until Close is called. Safe to call at most once.
func (w *Writer) StartKeepalive(interval time.Duration) {
	w.stopKeepalive = make(chan struct{})
	w.keepaliveDone = make(chan struct{})

	go func() {
		defer close(w.keepaliveDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := w.writeComment("ping"); err != nil {
					return
				}
			case <-w.stopKeepalive:
				return
			}
		}
	}()
}

// Close stops the keepalive goroutine (if started) and terminates the
// chunked stream.
func (w *Writer) Close() error {
	if w.stopKeepalive != nil {
		close(w.stopKeepalive)
		<-w.keepaliveDone
	}
	return w.cw.Close()
}
