package sse

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/WhileEndless/go-rawserver/pkg/dispatch"
)

func TestWriteEventFramesDataLines(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)

	w, err := NewWriter(bw, WriterConfig{Proto: "HTTP/1.1"})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.WriteEvent(Event{ID: "1", Event: "tick", Data: "line one\nline two"}); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "text/event-stream") {
		t.Fatalf("expected Content-Type header, got %q", out)
	}
	if !strings.Contains(out, "id: 1\n") || !strings.Contains(out, "event: tick\n") {
		t.Fatalf("expected id/event fields, got %q", out)
	}
	if !strings.Contains(out, "data: line one\n") || !strings.Contains(out, "data: line two\n") {
		t.Fatalf("expected both data lines, got %q", out)
	}
	if !strings.HasSuffix(out, "0\r\n\r\n") {
		t.Fatalf("expected terminating chunk, got %q", out)
	}
}

func TestWriterConfigHeadersPreserved(t *testing.T) {
	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)

	headers := dispatch.Header{}
	headers.Set("X-Custom", "value")

	w, err := NewWriter(bw, WriterConfig{Proto: "HTTP/1.1", Headers: headers})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	_ = w.Close()

	if !strings.Contains(buf.String(), "X-Custom: value") {
		t.Fatalf("expected custom header preserved, got %q", buf.String())
	}
}
