package h2stream

import (
	"testing"

	"github.com/WhileEndless/go-rawserver/pkg/hpack"
)

func TestIdleToHalfClosedRemoteOnHeadersEndStream(t *testing.T) {
	s := NewStream(1, 65535, 65535)
	if err := s.RecvHeaders(true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.State() != StateHalfClosedRemote {
		t.Fatalf("expected half_closed_remote, got %s", s.State())
	}
}

func TestIdleToOpenOnHeadersNoEndStream(t *testing.T) {
	s := NewStream(1, 65535, 65535)
	if err := s.RecvHeaders(false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.State() != StateOpen {
		t.Fatalf("expected open, got %s", s.State())
	}
}

func TestFullRequestResponseLifecycle(t *testing.T) {
	s := NewStream(1, 65535, 65535)
	if err := s.RecvHeaders(true); err != nil {
		t.Fatalf("recv headers: %v", err)
	}
	if err := s.SendHeaders(); err != nil {
		t.Fatalf("send headers: %v", err)
	}
	if err := s.SendEndStream(); err != nil {
		t.Fatalf("send end stream: %v", err)
	}
	if s.State() != StateClosed {
		t.Fatalf("expected closed, got %s", s.State())
	}
}

func TestSendEndStreamOnlyOnce(t *testing.T) {
	s := NewStream(1, 65535, 65535)
	_ = s.RecvHeaders(true)
	_ = s.SendHeaders()
	if err := s.SendEndStream(); err != nil {
		t.Fatalf("first end stream should succeed: %v", err)
	}
	if err := s.SendEndStream(); err == nil {
		t.Fatalf("expected error on second END_STREAM for the same stream")
	}
}

func TestDataOnClosedStreamIsError(t *testing.T) {
	s := NewStream(1, 65535, 65535)
	s.Reset()
	if err := s.RecvData(false); err == nil {
		t.Fatalf("expected error receiving DATA on closed stream")
	}
}

func TestValidateRequestHeadersAccepts(t *testing.T) {
	headers := []hpack.HeaderField{
		{":method", "GET"},
		{":path", "/"},
		{":scheme", "https"},
		{":authority", "example.com"},
		{"accept", "*/*"},
	}
	if err := ValidateRequestHeaders(headers, 8192); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRequestHeadersRejectsConnectionSpecific(t *testing.T) {
	headers := []hpack.HeaderField{
		{":method", "GET"},
		{":path", "/"},
		{":scheme", "https"},
		{"connection", "keep-alive"},
	}
	if err := ValidateRequestHeaders(headers, 8192); err == nil {
		t.Fatalf("expected error for connection-specific header")
	}
}

func TestValidateRequestHeadersRejectsMissingPseudo(t *testing.T) {
	headers := []hpack.HeaderField{
		{":method", "GET"},
		{"accept", "*/*"},
	}
	if err := ValidateRequestHeaders(headers, 8192); err == nil {
		t.Fatalf("expected error for missing :path/:scheme")
	}
}

func TestValidateRequestHeadersRejectsPseudoAfterRegular(t *testing.T) {
	headers := []hpack.HeaderField{
		{":method", "GET"},
		{"accept", "*/*"},
		{":path", "/"},
	}
	if err := ValidateRequestHeaders(headers, 8192); err == nil {
		t.Fatalf("expected error for pseudo-header after regular header")
	}
}
