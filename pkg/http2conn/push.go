package http2conn

import (
	"strings"

	"github.com/WhileEndless/go-rawserver/pkg/dispatch"
	"github.com/WhileEndless/go-rawserver/pkg/h2frame"
	"github.com/WhileEndless/go-rawserver/pkg/h2stream"
	"github.com/WhileEndless/go-rawserver/pkg/hpack"
)

// tryPush validates and, if accepted, emits one PUSH_PROMISE associated
// with parentStreamID followed by the pushed resource's own HEADERS/DATA,
// per spec §4.5.4. Rejections are silent — a push is an optimization the
// client never requested, so there is nothing to report back on failure.
func (c *Connection) tryPush(parentStreamID uint32, push dispatch.PushRequest) {
	if !isSafePushMethod(push.Method) {
		return
	}

	c.mu.Lock()
	if !c.peerEnablePush {
		c.mu.Unlock()
		return
	}
	if c.pushedStreamCount >= c.opts.MaxPushedStreamsPerConn {
		c.mu.Unlock()
		return
	}
	if int64(len(push.Body)) >= c.opts.MaxPushedResourceSize {
		c.mu.Unlock()
		return
	}

	pushedID := c.nextPushStreamID
	c.nextPushStreamID += 2
	c.pushedStreamCount++

	s := h2stream.NewStream(pushedID, c.peerInitialWindow, int32(c.opts.InitialWindowSize))
	c.streams[pushedID] = s
	if c.recorder != nil {
		c.recorder.H2StreamsActive.Inc()
	}
	c.mu.Unlock()

	promiseFields := []hpack.HeaderField{
		{Name: ":method", Value: push.Method},
		{Name: ":path", Value: push.Path},
	}
	for _, f := range push.Header.All() {
		promiseFields = append(promiseFields, hpack.HeaderField{Name: lowerHeaderName(f.Name), Value: f.Value})
	}

	prefix := appendPromisedStreamID(nil, pushedID)
	if err := c.encodeAndWriteHeaders(h2frame.TypePushPromise, parentStreamID, prefix, false, promiseFields); err != nil {
		return
	}

	if err := s.SendHeaders(); err != nil {
		return
	}
	_ = c.writeResponsePushed(pushedID, s, push)
}

// writeResponsePushed writes the pushed resource's own HEADERS+DATA on the
// reserved stream, reusing the ordinary response writer's framing/flow
// control logic.
func (c *Connection) writeResponsePushed(streamID uint32, s *h2stream.Stream, push dispatch.PushRequest) error {
	resp := &dispatch.Response{Status: 200, Header: push.Header, Body: push.Body}

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

func isSafePushMethod(method string) bool {
	m := strings.ToUpper(method)
	return m == "GET" || m == "HEAD"
}

// appendPromisedStreamID appends the 4-octet promised-stream-id prefix
// (reserved bit cleared) that leads a PUSH_PROMISE frame's payload, ahead
// of the HPACK block itself.
func appendPromisedStreamID(dst []byte, promisedStreamID uint32) []byte {
	var b [4]byte
	b[0] = byte(promisedStreamID >> 24 & 0x7f)
	b[1] = byte(promisedStreamID >> 16)
	b[2] = byte(promisedStreamID >> 8)
	b[3] = byte(promisedStreamID)
	return append(dst, b[:]...)
}
