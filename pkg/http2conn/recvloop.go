package http2conn

import (
	"io"

	"github.com/WhileEndless/go-rawserver/pkg/errors"
	"github.com/WhileEndless/go-rawserver/pkg/h2frame"
	"github.com/WhileEndless/go-rawserver/pkg/h2stream"
)

// receiveLoop reads and dispatches frames until the connection closes, per
// spec §4.5.2. A *errors.Error with Kind KindProtocol/KindFlowControl/
// KindFrameSize/KindCompression is mapped to the matching GOAWAY code;
// anything else (typically I/O) just ends the loop.
func (c *Connection) receiveLoop() error {
	for {
		hdr, err := h2frame.ReadHeader(c.br)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.NewIOError("h2_read_frame_header", err)
		}
		if hdr.Length > c.opts.MaxFrameSize {
			c.sendGoAway(h2frame.ErrCodeFrameSizeError, "frame exceeds configured max frame size")
			return errors.NewFrameSizeError("h2_read_frame", c.opts.MaxFrameSize, hdr.Length)
		}

		payload := make([]byte, hdr.Length)
		if _, err := io.ReadFull(c.br, payload); err != nil {
			return errors.NewIOError("h2_read_frame_payload", err)
		}
		if c.recorder != nil {
			c.recorder.BytesIn.Add(float64(h2frame.FrameHeaderLen + len(payload)))
		}

		// While a header block is being assembled, only CONTINUATION frames
		// on that same stream are permitted — anything else interleaved is
		// a protocol violation (spec §4.5.2, §5 HPACK-state ordering).
		c.mu.Lock()
		inHeaderBlock := c.headerBlockStreamID != 0
		blockStream := c.headerBlockStreamID
		c.mu.Unlock()
		if inHeaderBlock && !(hdr.Type == h2frame.TypeContinuation && hdr.StreamID == blockStream) {
			c.sendGoAway(h2frame.ErrCodeProtocolError, "frame interleaved with incomplete header block")
			return errors.NewProtocolError("h2_recv", "frame interleaved with incomplete header block", nil)
		}

		if err := c.dispatchFrame(hdr, payload); err != nil {
			if herr, ok := err.(*errors.Error); ok {
				switch herr.Kind {
				case errors.KindProtocol, errors.KindFlowControl, errors.KindFrameSize, errors.KindCompression:
					c.sendGoAway(kindToErrorCode(herr.Kind), herr.Message)
				}
			}
			return err
		}

		c.mu.Lock()
		gotGoAway := c.gotPeerGoAway
		noStreams := len(c.streams) == 0
		c.mu.Unlock()
		if gotGoAway && noStreams {
			return nil
		}
	}
}

func kindToErrorCode(k errors.Kind) h2frame.ErrorCode {
	switch k {
	case errors.KindFlowControl:
		return h2frame.ErrCodeFlowControlError
	case errors.KindFrameSize:
		return h2frame.ErrCodeFrameSizeError
	case errors.KindCompression:
		return h2frame.ErrCodeCompressionError
	default:
		return h2frame.ErrCodeProtocolError
	}
}

func (c *Connection) dispatchFrame(hdr h2frame.Header, payload []byte) error {
	switch hdr.Type {
	case h2frame.TypeSettings:
		return c.handleSettings(hdr, payload)
	case h2frame.TypeHeaders:
		return c.handleHeaders(hdr, payload)
	case h2frame.TypeContinuation:
		return c.handleContinuation(hdr, payload)
	case h2frame.TypeData:
		return c.handleData(hdr, payload)
	case h2frame.TypeWindowUpdate:
		return c.handleWindowUpdate(hdr, payload)
	case h2frame.TypePing:
		return c.handlePing(hdr, payload)
	case h2frame.TypeRSTStream:
		return c.handleRSTStream(hdr, payload)
	case h2frame.TypeGoAway:
		return c.handleGoAway(hdr, payload)
	case h2frame.TypePriority:
		return nil // parsed and ignored, no scheduler (spec §4.5.2)
	case h2frame.TypePushPromise:
		return errors.NewProtocolError("h2_recv_push_promise", "a server never accepts pushed streams from a client", nil)
	default:
		return nil // unknown frame types are ignored per RFC 7540 §4.1
	}
}

func (c *Connection) handleSettings(hdr h2frame.Header, payload []byte) error {
	if hdr.Flags.Has(h2frame.FlagAck) {
		if len(payload) != 0 {
			return errors.NewFrameSizeError("h2_settings_ack", 0, uint32(len(payload)))
		}
		return nil
	}

	params, err := h2frame.ParseSettings(payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	for _, p := range params {
		switch p.ID {
		case h2frame.SettingEnablePush:
			if p.Value != 0 && p.Value != 1 {
				c.mu.Unlock()
				return errors.NewProtocolError("h2_settings", "ENABLE_PUSH must be 0 or 1", nil)
			}
			c.peerEnablePush = p.Value == 1
		case h2frame.SettingInitialWindowSize:
			if p.Value > 1<<31-1 {
				c.mu.Unlock()
				return errors.NewFlowControlError("h2_settings", "INITIAL_WINDOW_SIZE exceeds 2^31-1")
			}
			delta := int64(p.Value) - int64(c.peerInitialWindow)
			for _, s := range c.streams {
				newWindow := int64(s.SendWindow) + delta
				if newWindow > 1<<31-1 || newWindow < -(1<<31) {
					c.mu.Unlock()
					return errors.NewFlowControlError("h2_settings", "INITIAL_WINDOW_SIZE change overflows a stream window")
				}
				s.SendWindow = int32(newWindow)
			}
			c.peerInitialWindow = int32(p.Value)
		case h2frame.SettingMaxFrameSize:
			if p.Value < 16384 || p.Value > 16777215 {
				c.mu.Unlock()
				return errors.NewProtocolError("h2_settings", "MAX_FRAME_SIZE out of range", nil)
			}
			c.peerMaxFrameSize = p.Value
		case h2frame.SettingHeaderTableSize:
			c.henc.SetMaxDynamicTableSize(int(p.Value))
		case h2frame.SettingMaxConcurrentStreams:
			c.peerMaxConcurrent = p.Value
		case h2frame.SettingMaxHeaderListSize:
			c.peerMaxHeaderList = p.Value
		}
	}
	c.cond.Broadcast()
	c.mu.Unlock()

	return c.writeFrame(h2frame.TypeSettings, h2frame.FlagAck, 0, nil)
}

func (c *Connection) handlePing(hdr h2frame.Header, payload []byte) error {
	opaque, err := h2frame.ParsePing(payload)
	if err != nil {
		return err
	}
	if hdr.Flags.Has(h2frame.FlagAck) {
		return nil
	}
	return c.writeFrame(h2frame.TypePing, h2frame.FlagAck, 0, opaque[:])
}

func (c *Connection) handleRSTStream(hdr h2frame.Header, payload []byte) error {
	if _, err := h2frame.ParseRSTStream(payload); err != nil {
		return err
	}
	c.mu.Lock()
	if s, ok := c.streams[hdr.StreamID]; ok {
		s.Reset()
		delete(c.streams, hdr.StreamID)
		if c.recorder != nil {
			c.recorder.H2StreamsActive.Dec()
		}
	}
	c.cond.Broadcast()
	c.mu.Unlock()
	return nil
}

func (c *Connection) handleGoAway(hdr h2frame.Header, payload []byte) error {
	ga, err := h2frame.ParseGoAway(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.gotPeerGoAway = true
	c.peerGoAwayStreamID = ga.LastStreamID
	c.mu.Unlock()
	return nil
}

func (c *Connection) handleWindowUpdate(hdr h2frame.Header, payload []byte) error {
	increment, err := h2frame.ParseWindowUpdate(payload)
	if err != nil {
		return err
	}
	if increment == 0 {
		if hdr.StreamID == 0 {
			return errors.NewProtocolError("h2_window_update", "zero-length WINDOW_UPDATE on connection", nil)
		}
		c.rstStream(hdr.StreamID, h2frame.ErrCodeProtocolError)
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if hdr.StreamID == 0 {
		newWindow := int64(c.connSendWindow) + int64(increment)
		if newWindow > 1<<31-1 {
			return errors.NewFlowControlError("h2_window_update", "connection send window overflow")
		}
		c.connSendWindow = int32(newWindow)
		c.cond.Broadcast()
		return nil
	}

	s, ok := c.streams[hdr.StreamID]
	if !ok {
		return nil // stream already closed, ignore
	}
	newWindow := int64(s.SendWindow) + int64(increment)
	if newWindow > 1<<31-1 {
		c.mu.Unlock()
		c.rstStream(hdr.StreamID, h2frame.ErrCodeFlowControlError)
		c.mu.Lock()
		return nil
	}
	s.SendWindow = int32(newWindow)
	c.cond.Broadcast()
	return nil
}

// allocateClientStream validates and creates (or looks up) the stream a
// HEADERS frame targets, per spec §4.5.2's HEADERS rules.
func (c *Connection) allocateClientStream(streamID uint32) (*h2stream.Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if streamID == 0 || streamID%2 == 0 {
		return nil, errors.NewProtocolError("h2_headers", "client HEADERS must use a non-zero odd stream id", nil)
	}

	if s, ok := c.streams[streamID]; ok {
		return s, nil
	}

	if streamID <= c.lastClientStreamID {
		return nil, errors.NewProtocolError("h2_headers", "stream ids must strictly increase", nil)
	}

	if c.closed {
		c.mu.Unlock()
		c.rstStream(streamID, h2frame.ErrCodeRefusedStream)
		c.mu.Lock()
		return nil, nil
	}

	live := 0
	for id, s := range c.streams {
		if id%2 == 1 && !s.IsClosed() {
			live++
		}
	}
	if uint32(live) >= c.opts.MaxConcurrentStreams {
		c.mu.Unlock()
		c.rstStream(streamID, h2frame.ErrCodeRefusedStream)
		c.mu.Lock()
		return nil, nil
	}

	s := h2stream.NewStream(streamID, c.peerInitialWindow, int32(c.opts.InitialWindowSize))
	c.streams[streamID] = s
	c.lastClientStreamID = streamID
	if c.recorder != nil {
		c.recorder.H2StreamsActive.Inc()
	}
	return s, nil
}
