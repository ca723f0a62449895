package dispatch

import (
	"context"
	"testing"
)

func TestInvokeReturnsHandlerResponse(t *testing.T) {
	h := HandlerFunc(func(ctx context.Context, req *Request) *Response {
		return &Response{Status: 200, Body: []byte("ok")}
	})
	resp := Invoke(context.Background(), h, &Request{})
	if resp.Status != 200 || string(resp.Body) != "ok" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestInvokeRecoversPanic(t *testing.T) {
	h := HandlerFunc(func(ctx context.Context, req *Request) *Response {
		panic("boom")
	})
	resp := Invoke(context.Background(), h, &Request{})
	if resp.Status != 500 {
		t.Fatalf("expected 500, got %d", resp.Status)
	}
	if resp.Header.Get("Content-Type") != problemContentType {
		t.Fatalf("expected problem+json content type, got %q", resp.Header.Get("Content-Type"))
	}
}

func TestInvokeHandlesNilResponse(t *testing.T) {
	h := HandlerFunc(func(ctx context.Context, req *Request) *Response {
		return nil
	})
	resp := Invoke(context.Background(), h, &Request{})
	if resp.Status != 500 {
		t.Fatalf("expected 500 for nil response, got %d", resp.Status)
	}
}

func TestHeaderCaseInsensitive(t *testing.T) {
	var h Header
	h.Set("Content-Type", "text/plain")
	if got := h.Get("content-type"); got != "text/plain" {
		t.Fatalf("expected case-insensitive get, got %q", got)
	}
}

func TestHeaderPreservesDuplicates(t *testing.T) {
	var h Header
	h.Add("Set-Cookie", "a=1")
	h.Add("Set-Cookie", "b=2")
	got := h.Values("set-cookie")
	if len(got) != 2 || got[0] != "a=1" || got[1] != "b=2" {
		t.Fatalf("expected two preserved values, got %v", got)
	}
}
