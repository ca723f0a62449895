package http2conn

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/WhileEndless/go-rawserver/pkg/dispatch"
	"github.com/WhileEndless/go-rawserver/pkg/h2frame"
	"github.com/WhileEndless/go-rawserver/pkg/hpack"
)

func TestServeSimpleGETRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	deadline := time.Now().Add(5 * time.Second)
	clientConn.SetDeadline(deadline)
	serverConn.SetDeadline(deadline)

	handler := dispatch.HandlerFunc(func(ctx context.Context, req *dispatch.Request) *dispatch.Response {
		if req.Method != "GET" || req.Path != "/" {
			return dispatch.NewProblemResponse(400, "bad", "unexpected request")
		}
		resp := &dispatch.Response{Status: 200, Body: []byte("hello")}
		resp.Header.Set("Content-Type", "text/plain")
		return resp
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- Serve(serverConn, "test-conn", DefaultOptions(), handler, nil)
	}()

	result := make(chan string, 1)
	clientErr := make(chan error, 1)
	go func() {
		status, body, err := runClient(clientConn)
		if err != nil {
			clientErr <- err
			return
		}
		result <- status + "|" + body
	}()

	select {
	case err := <-clientErr:
		t.Fatalf("client exchange failed: %v", err)
	case got := <-result:
		if got != "200|hello" {
			t.Fatalf("unexpected response: %q", got)
		}
	case <-time.After(4 * time.Second):
		t.Fatal("timed out waiting for response")
	}
}

// runClient performs the minimal exchange: preface, a client SETTINGS
// frame, a GET / HEADERS frame, then reads the server's SETTINGS and the
// HEADERS+DATA response.
func runClient(conn net.Conn) (status, body string, err error) {
	if _, err = conn.Write([]byte(h2frame.ClientPreface)); err != nil {
		return "", "", err
	}
	if err = writeFrame(conn, h2frame.TypeSettings, 0, 0, nil); err != nil {
		return "", "", err
	}

	enc := hpack.NewEncoder(4096)
	block := enc.Encode(nil, []hpack.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":scheme", Value: "http"},
		{Name: ":path", Value: "/"},
		{Name: ":authority", Value: "example.com"},
	})
	if err = writeFrame(conn, h2frame.TypeHeaders, h2frame.FlagEndHeaders|h2frame.FlagEndStream, 1, block); err != nil {
		return "", "", err
	}

	dec := hpack.NewDecoder(4096, 1<<20)
	var respBlock []byte
	var respBody []byte

	for {
		hdr, err := h2frame.ReadHeader(conn)
		if err != nil {
			return "", "", err
		}
		payload := make([]byte, hdr.Length)
		if _, err := io.ReadFull(conn, payload); err != nil {
			return "", "", err
		}

		switch hdr.Type {
		case h2frame.TypeSettings:
			if hdr.Flags.Has(h2frame.FlagAck) {
				continue
			}
			if err := writeFrame(conn, h2frame.TypeSettings, h2frame.FlagAck, 0, nil); err != nil {
				return "", "", err
			}
		case h2frame.TypeHeaders, h2frame.TypeContinuation:
			respBlock = append(respBlock, payload...)
			if hdr.Flags.Has(h2frame.FlagEndStream) {
				return decodeStatus(dec, respBlock), "", nil
			}
		case h2frame.TypeData:
			respBody = append(respBody, payload...)
			if hdr.Flags.Has(h2frame.FlagEndStream) {
				st := decodeStatus(dec, respBlock)
				return st, string(respBody), nil
			}
		case h2frame.TypeWindowUpdate, h2frame.TypePing:
			// ignore
		}
	}
}

func decodeStatus(dec *hpack.Decoder, block []byte) string {
	fields, err := dec.Decode(block)
	if err != nil {
		return ""
	}
	for _, f := range fields {
		if f.Name == ":status" {
			return f.Value
		}
	}
	return ""
}

func writeFrame(w io.Writer, typ h2frame.Type, flags h2frame.Flags, streamID uint32, payload []byte) error {
	hdr := h2frame.Header{Length: uint32(len(payload)), Type: typ, Flags: flags, StreamID: streamID}
	if err := h2frame.WriteHeader(w, hdr); err != nil {
		return err
	}
	if len(payload) > 0 {
		_, err := w.Write(payload)
		return err
	}
	return nil
}
