package http2conn

import (
	"io"
	"strconv"

	"github.com/WhileEndless/go-rawserver/pkg/dispatch"
	"github.com/WhileEndless/go-rawserver/pkg/errors"
	"github.com/WhileEndless/go-rawserver/pkg/h2frame"
	"github.com/WhileEndless/go-rawserver/pkg/h2stream"
	"github.com/WhileEndless/go-rawserver/pkg/hpack"
)

// writeResponse emits resp on streamID per spec §4.5.3: first any requested
// server pushes (each one's PUSH_PROMISE and pushed response), then HEADERS
// (with END_STREAM if there is no body), then the body chunked into DATA
// frames bounded by the peer's MAX_FRAME_SIZE and both flow-control
// windows, then the stream is torn down.
func (c *Connection) writeResponse(streamID uint32, resp *dispatch.Response) error {
	c.mu.Lock()
	s, ok := c.streams[streamID]
	c.mu.Unlock()
	if !ok {
		return nil // stream already reset by the peer; drop the response
	}

	if err := s.SendHeaders(); err != nil {
		return err
	}

	for _, push := range resp.Push {
		c.tryPush(streamID, push)
	}

	headerFields := responseHeaderFields(resp)
	endStream := len(resp.Body) == 0
	if err := c.encodeAndWriteHeaders(h2frame.TypeHeaders, streamID, nil, endStream, headerFields); err != nil {
		return err
	}

	if !endStream {
		if err := c.writeBody(streamID, s, resp.Body); err != nil {
			return err
		}
	}

	if err := s.SendEndStream(); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.streams, streamID)
	if c.recorder != nil {
		c.recorder.H2StreamsActive.Dec()
	}
	c.mu.Unlock()
	c.cond.Broadcast()
	return nil
}

// encodeAndWriteHeaders HPACK-encodes fields and emits it as one leading
// frame of type typ (HEADERS or PUSH_PROMISE) — with prefix prepended to
// its payload, for PUSH_PROMISE's 4-octet promised-stream-id — followed by
// as many CONTINUATION frames as MAX_FRAME_SIZE requires.
//
// Encoding and frame emission run as a single writeMu critical section.
// The HPACK encoder's dynamic table mutates as a side effect of Encode, and
// that mutation order must match the order HEADERS/PUSH_PROMISE blocks hit
// the wire (spec §5 "HPACK state") — two streams responding concurrently
// must not interleave their Encode calls with each other's frame writes.
// It also keeps a block's HEADERS/PUSH_PROMISE + CONTINUATION run
// uninterrupted by any other frame, which RFC 7540 §4.3 requires.
func (c *Connection) encodeAndWriteHeaders(typ h2frame.Type, streamID uint32, prefix []byte, endStream bool, fields []hpack.HeaderField) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	block := c.henc.Encode(nil, fields)

	c.mu.Lock()
	maxFrame := c.peerMaxFrameSize
	c.mu.Unlock()
	if maxFrame == 0 {
		maxFrame = 16384
	}

	first := true
	for len(block) > 0 || first {
		frameType := h2frame.TypeContinuation
		var flags h2frame.Flags
		var payload []byte

		if first {
			frameType = typ
			if endStream {
				flags |= h2frame.FlagEndStream
			}
			budget := maxFrame
			if uint32(len(prefix)) < budget {
				budget -= uint32(len(prefix))
			} else {
				budget = 0
			}
			n := uint32(len(block))
			if n > budget {
				n = budget
			}
			payload = append(append(make([]byte, 0, len(prefix)+int(n)), prefix...), block[:n]...)
			block = block[n:]
		} else {
			n := uint32(len(block))
			if n > maxFrame {
				n = maxFrame
			}
			payload = block[:n]
			block = block[n:]
		}

		if len(block) == 0 {
			flags |= h2frame.FlagEndHeaders
		}
		if err := c.writeFrameLocked(frameType, flags, streamID, payload); err != nil {
			return err
		}
		first = false
	}
	return nil
}

// writeBody chunks body into DATA frames, blocking on flow-control credit
// from both the connection and the stream without blocking the receive
// loop (spec §4.5.3, §5 "suspension points").
func (c *Connection) writeBody(streamID uint32, s *h2stream.Stream, body []byte) error {
	for len(body) > 0 {
		n, err := c.acquireSendCredit(streamID, s, len(body))
		if err != nil {
			return err
		}
		chunk := body[:n]
		body = body[n:]

		var flags h2frame.Flags
		if len(body) == 0 {
			flags = h2frame.FlagEndStream
		}
		if err := c.writeFrame(h2frame.TypeData, flags, streamID, chunk); err != nil {
			return err
		}
	}
	return nil
}

// acquireSendCredit blocks until both the connection and stream send
// windows have at least 1 byte of credit, then grants and debits
// min(want, connWindow, streamWindow, peerMaxFrameSize).
func (c *Connection) acquireSendCredit(streamID uint32, s *h2stream.Stream, want int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if c.torndown {
			return 0, errors.NewIOError("h2_write_body", io.ErrClosedPipe)
		}
		if _, ok := c.streams[streamID]; !ok {
			return 0, errors.NewProtocolError("h2_write_body", "stream reset while awaiting flow-control credit", nil)
		}
		if c.connSendWindow > 0 && s.SendWindow > 0 {
			break
		}
		c.cond.Wait()
	}

	grant := want
	if grant > int(c.connSendWindow) {
		grant = int(c.connSendWindow)
	}
	if grant > int(s.SendWindow) {
		grant = int(s.SendWindow)
	}
	if grant > int(c.peerMaxFrameSize) {
		grant = int(c.peerMaxFrameSize)
	}
	c.connSendWindow -= int32(grant)
	s.SendWindow -= int32(grant)
	return grant, nil
}

func responseHeaderFields(resp *dispatch.Response) []hpack.HeaderField {
	fields := []hpack.HeaderField{{Name: ":status", Value: strconv.Itoa(resp.Status)}}
	for _, f := range resp.Header.All() {
		fields = append(fields, hpack.HeaderField{Name: lowerHeaderName(f.Name), Value: f.Value})
	}
	if resp.ContentType != "" && !resp.Header.Has("Content-Type") {
		fields = append(fields, hpack.HeaderField{Name: "content-type", Value: resp.ContentType})
	}
	return fields
}

func lowerHeaderName(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		b := name[i]
		if b >= 'A' && b <= 'Z' {
			b += 'a' - 'A'
		}
		out[i] = b
	}
	return string(out)
}
