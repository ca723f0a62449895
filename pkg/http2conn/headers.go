package http2conn

import (
	"github.com/WhileEndless/go-rawserver/pkg/dispatch"
	"github.com/WhileEndless/go-rawserver/pkg/errors"
	"github.com/WhileEndless/go-rawserver/pkg/h2frame"
	"github.com/WhileEndless/go-rawserver/pkg/h2stream"
)

func (c *Connection) handleHeaders(hdr h2frame.Header, payload []byte) error {
	s, err := c.allocateClientStream(hdr.StreamID)
	if err != nil {
		return err
	}

	rest, err := h2frame.SplitPadded(payload, hdr.Flags)
	if err != nil {
		return err
	}
	if hdr.Flags.Has(h2frame.FlagPriority) {
		_, r, err := h2frame.ParsePriority(rest)
		if err != nil {
			return err
		}
		rest = r
	}

	c.mu.Lock()
	c.headerBlockStreamID = hdr.StreamID
	c.headerBlockBuf = append([]byte(nil), rest...)
	c.headerBlockEndStrm = hdr.Flags.Has(h2frame.FlagEndStream)
	c.mu.Unlock()

	if hdr.Flags.Has(h2frame.FlagEndHeaders) {
		return c.finishHeaderBlock(s)
	}
	return nil
}

func (c *Connection) handleContinuation(hdr h2frame.Header, payload []byte) error {
	c.mu.Lock()
	if c.headerBlockStreamID != hdr.StreamID {
		c.mu.Unlock()
		return errors.NewProtocolError("h2_continuation", "CONTINUATION for a stream with no pending header block", nil)
	}
	c.headerBlockBuf = append(c.headerBlockBuf, payload...)
	s := c.streams[hdr.StreamID]
	c.mu.Unlock()

	if hdr.Flags.Has(h2frame.FlagEndHeaders) {
		return c.finishHeaderBlock(s)
	}
	return nil
}

// finishHeaderBlock decodes a complete, reassembled header block. It always
// runs the HPACK decode — even when the stream was refused above the
// concurrency limit — because the dynamic table must stay in lockstep with
// what the peer actually sent regardless of what the engine does with it.
func (c *Connection) finishHeaderBlock(s *h2stream.Stream) error {
	c.mu.Lock()
	streamID := c.headerBlockStreamID
	buf := c.headerBlockBuf
	endStream := c.headerBlockEndStrm
	c.headerBlockStreamID = 0
	c.headerBlockBuf = nil
	c.mu.Unlock()

	headers, err := c.hdec.Decode(buf)
	if err != nil {
		return err
	}

	if s == nil {
		return nil // stream already refused; decode was only for HPACK sync
	}

	if err := h2stream.ValidateRequestHeaders(headers, int(c.opts.MaxHeaderListSize)); err != nil {
		c.rstStream(streamID, h2frame.ErrCodeProtocolError)
		return nil
	}
	if err := s.RecvHeaders(endStream); err != nil {
		c.rstStream(streamID, h2frame.ErrCodeProtocolError)
		return nil
	}

	c.mu.Lock()
	s.Headers = headers
	c.mu.Unlock()

	if endStream {
		c.dispatchRequest(s)
	}
	return nil
}

func (c *Connection) handleData(hdr h2frame.Header, payload []byte) error {
	c.mu.Lock()
	s, ok := c.streams[hdr.StreamID]
	c.mu.Unlock()
	if !ok {
		c.rstStream(hdr.StreamID, h2frame.ErrCodeStreamClosed)
		return nil
	}
	switch s.State() {
	case h2stream.StateOpen, h2stream.StateHalfClosedLocal:
	default:
		c.rstStream(hdr.StreamID, h2frame.ErrCodeStreamClosed)
		return nil
	}

	body, err := h2frame.SplitPadded(payload, hdr.Flags)
	if err != nil {
		return err
	}
	endStream := hdr.Flags.Has(h2frame.FlagEndStream)

	var connIncrement, streamIncrement uint32
	c.mu.Lock()
	if int64(len(s.Body)+len(body)) > c.opts.MaxRequestBodySize {
		c.mu.Unlock()
		c.rstStream(hdr.StreamID, h2frame.ErrCodeEnhanceYourCalm)
		return nil
	}
	s.Body = append(s.Body, body...)
	c.connRecvWindow -= int32(len(payload))
	s.RecvWindow -= int32(len(payload))

	lowWater := int32(c.opts.InitialWindowSize) / 2
	if c.connRecvWindow < lowWater {
		connIncrement = uint32(int32(c.opts.InitialWindowSize) - c.connRecvWindow)
		c.connRecvWindow += int32(connIncrement)
	}
	if s.RecvWindow < lowWater {
		streamIncrement = uint32(int32(c.opts.InitialWindowSize) - s.RecvWindow)
		s.RecvWindow += int32(streamIncrement)
	}
	c.mu.Unlock()

	if connIncrement > 0 {
		if err := c.writeFrame(h2frame.TypeWindowUpdate, 0, 0, h2frame.AppendWindowUpdate(nil, connIncrement)); err != nil {
			return err
		}
	}
	if streamIncrement > 0 {
		if err := c.writeFrame(h2frame.TypeWindowUpdate, 0, hdr.StreamID, h2frame.AppendWindowUpdate(nil, streamIncrement)); err != nil {
			return err
		}
	}

	if err := s.RecvData(endStream); err != nil {
		c.rstStream(hdr.StreamID, h2frame.ErrCodeStreamClosed)
		return nil
	}

	if endStream {
		c.dispatchRequest(s)
	}
	return nil
}

// dispatchRequest builds the Request from the assembled pseudo/regular
// header list and invokes the handler on its own goroutine, so the receive
// loop keeps multiplexing other streams while the handler runs (spec §5).
func (c *Connection) dispatchRequest(s *h2stream.Stream) {
	req := buildRequest(c.id, s, c.isTLS())
	req.Remote = c.nc.RemoteAddr().String()
	req.TLS = c.tlsInfo()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := c.requestContext()
		defer cancel()
		resp := dispatch.Invoke(ctx, c.handler, req)
		if c.recorder != nil {
			c.recorder.RequestsTotal.Inc()
		}
		if err := c.writeResponse(s.ID, resp); err != nil {
			_ = err // best-effort; the connection will observe the I/O failure on its next read/write
		}
	}()
}

func buildRequest(connID string, s *h2stream.Stream, isTLS bool) *dispatch.Request {
	req := &dispatch.Request{
		Proto:    "HTTP/2",
		ConnID:   connID,
		StreamID: s.ID,
		IsHTTPS:  isTLS,
		Body:     s.Body,
	}
	for _, f := range s.Headers {
		switch f.Name {
		case ":method":
			req.Method = f.Value
		case ":path":
			req.Path = f.Value
		case ":authority":
			req.Header.Add("Host", f.Value)
		case ":scheme":
			// scheme is captured via isTLS; the pseudo-header itself carries no
			// further information the Request type exposes.
		default:
			req.Header.Add(f.Name, f.Value)
		}
	}
	req.ContentLength = int64(len(s.Body))
	req.KeepAlive = true
	return req
}
