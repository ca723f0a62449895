package http1

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/WhileEndless/go-rawserver/pkg/dispatch"
)

func TestWriteResponseAddsContentLengthAndConnection(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	resp := &dispatch.Response{
		Status:      200,
		Body:        []byte("hello"),
		ContentType: "text/plain",
		KeepAlive:   true,
	}
	if err := WriteResponse(w, resp, "HTTP/1.1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("unexpected status line: %q", out)
	}
	if !strings.Contains(out, "Content-Length: 5\r\n") {
		t.Fatalf("expected Content-Length header, got %q", out)
	}
	if !strings.Contains(out, "Content-Type: text/plain\r\n") {
		t.Fatalf("expected Content-Type header, got %q", out)
	}
	if !strings.Contains(out, "Connection: keep-alive\r\n") {
		t.Fatalf("expected Connection: keep-alive header, got %q", out)
	}
	if !strings.HasSuffix(out, "\r\n\r\nhello") {
		t.Fatalf("expected body to follow blank line, got %q", out)
	}
}

func TestWriteResponseConnectionCloseWhenNotKeepAlive(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	resp := &dispatch.Response{Status: 404, Body: []byte("not found")}
	if err := WriteResponse(w, resp, "HTTP/1.1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "Connection: close\r\n") {
		t.Fatalf("expected Connection: close, got %q", buf.String())
	}
}

func TestChunkedWriterFramesChunks(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	var headers dispatch.Header
	headers.Set("Content-Type", "text/event-stream")
	cw := NewChunkedWriter(w, headers)

	if err := cw.Start(200, "HTTP/1.1"); err != nil {
		t.Fatalf("unexpected error starting: %v", err)
	}
	if err := cw.WriteChunk([]byte("Wiki")); err != nil {
		t.Fatalf("unexpected error writing chunk: %v", err)
	}
	if err := cw.WriteChunk([]byte("pedia")); err != nil {
		t.Fatalf("unexpected error writing chunk: %v", err)
	}
	if err := cw.Close(); err != nil {
		t.Fatalf("unexpected error closing: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Transfer-Encoding: chunked\r\n") {
		t.Fatalf("expected chunked framing header, got %q", out)
	}
	if !strings.Contains(out, "4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n") {
		t.Fatalf("expected chunk framing in body, got %q", out)
	}
}
