package http2conn

import (
	"bufio"
	"context"
	"crypto/tls"
	"io"
	"net"
	"sync"

	"github.com/WhileEndless/go-rawserver/pkg/dispatch"
	"github.com/WhileEndless/go-rawserver/pkg/errors"
	"github.com/WhileEndless/go-rawserver/pkg/h2frame"
	"github.com/WhileEndless/go-rawserver/pkg/h2stream"
	"github.com/WhileEndless/go-rawserver/pkg/hpack"
	"github.com/WhileEndless/go-rawserver/pkg/metrics"
)

// Connection is one HTTP/2 connection's engine state, exclusively owned by
// the goroutine that calls Serve — except for the fields under mu, which
// response-writer goroutines (one per in-flight stream) also touch.
type Connection struct {
	id       string
	nc       net.Conn
	br       *bufio.Reader
	bw       *bufio.Writer
	writeMu  sync.Mutex
	handler  dispatch.Handler
	recorder *metrics.Recorder
	opts     Options

	hdec *hpack.Decoder
	henc *hpack.Encoder

	mu                  sync.Mutex
	cond                *sync.Cond
	streams             map[uint32]*h2stream.Stream
	lastClientStreamID  uint32
	nextPushStreamID    uint32
	pushedStreamCount   int
	connSendWindow      int32
	connRecvWindow      int32
	peerInitialWindow   int32
	peerMaxFrameSize    uint32
	peerEnablePush      bool
	peerMaxConcurrent   uint32
	peerMaxHeaderList   uint32
	goAwaySent          bool
	closed              bool
	peerGoAwayStreamID  uint32
	gotPeerGoAway       bool

	headerBlockStreamID uint32
	headerBlockBuf      []byte
	headerBlockEndHdrs  bool
	headerBlockEndStrm  bool

	// torndown is set once receiveLoop has returned for any reason (client
	// disconnect, protocol error, GOAWAY drain). Response writers blocked in
	// acquireSendCredit wait on cond and must re-check this on every wake so
	// a dead connection doesn't park them forever (spec §5 "suspension
	// points" must still observe connection teardown).
	torndown bool

	wg sync.WaitGroup
}

const defaultPeerInitialWindow = 65535

// NewConnection builds an HTTP/2 connection engine without starting it,
// so a caller (the connection manager) can register it for shutdown
// broadcast before calling Run.
func NewConnection(nc net.Conn, connID string, opts Options, handler dispatch.Handler, recorder *metrics.Recorder) *Connection {
	c := &Connection{
		id:                connID,
		nc:                nc,
		br:                bufio.NewReaderSize(nc, 64*1024),
		bw:                bufio.NewWriterSize(nc, 64*1024),
		handler:           handler,
		recorder:          recorder,
		opts:              opts,
		streams:           make(map[uint32]*h2stream.Stream),
		nextPushStreamID:  2,
		connSendWindow:    defaultPeerInitialWindow,
		connRecvWindow:    int32(opts.InitialWindowSize),
		peerInitialWindow: defaultPeerInitialWindow,
		peerMaxFrameSize:  16384,
		peerEnablePush:    true,
		peerMaxConcurrent: opts.MaxConcurrentStreams,
		peerMaxHeaderList: opts.MaxHeaderListSize,
		hdec:              hpack.NewDecoder(int(opts.HeaderTableSize), int(opts.MaxHeaderListSize)),
		henc:              hpack.NewEncoder(int(opts.HeaderTableSize)),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Run executes the connection lifecycle to completion: preface
// verification, the SETTINGS handshake, then the receive loop (spec
// §4.5.1-§4.5.2). It returns when the connection closes, for any reason.
func (c *Connection) Run() error {
	if err := c.handshake(); err != nil {
		return err
	}
	err := c.receiveLoop()

	c.mu.Lock()
	c.torndown = true
	c.mu.Unlock()
	c.cond.Broadcast()

	c.wg.Wait()
	return err
}

// Serve is a convenience wrapper combining NewConnection and Run, for
// callers that have no need to track the *Connection for shutdown.
func Serve(nc net.Conn, connID string, opts Options, handler dispatch.Handler, recorder *metrics.Recorder) error {
	return NewConnection(nc, connID, opts, handler, recorder).Run()
}

func (c *Connection) handshake() error {
	preface := make([]byte, len(h2frame.ClientPreface))
	if _, err := io.ReadFull(c.br, preface); err != nil {
		return errors.NewIOError("h2_preface", err)
	}
	if string(preface) != h2frame.ClientPreface {
		return errors.NewProtocolError("h2_preface", "bad client preface", nil)
	}

	settings := []h2frame.SettingParam{
		{ID: h2frame.SettingMaxConcurrentStreams, Value: c.opts.MaxConcurrentStreams},
		{ID: h2frame.SettingMaxFrameSize, Value: c.opts.MaxFrameSize},
		{ID: h2frame.SettingMaxHeaderListSize, Value: c.opts.MaxHeaderListSize},
		{ID: h2frame.SettingInitialWindowSize, Value: c.opts.InitialWindowSize},
		{ID: h2frame.SettingHeaderTableSize, Value: c.opts.HeaderTableSize},
	}
	enablePush := uint32(0)
	if c.opts.EnablePush {
		enablePush = 1
	}
	settings = append(settings, h2frame.SettingParam{ID: h2frame.SettingEnablePush, Value: enablePush})

	return c.writeFrame(h2frame.TypeSettings, 0, 0, h2frame.AppendSettings(nil, settings))
}

// writeFrame serializes and writes one frame atomically under the write
// mutex — the invariant that lets multiple stream writers interleave frames
// without ever splitting one (spec §4.5.3, §5 "write atomicity").
func (c *Connection) writeFrame(typ h2frame.Type, flags h2frame.Flags, streamID uint32, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writeFrameLocked(typ, flags, streamID, payload)
}

// writeFrameLocked is writeFrame without taking writeMu, for callers that
// already hold it (a HEADERS/PUSH_PROMISE block and its CONTINUATION
// frames must reach the wire as one uninterrupted run; see
// encodeAndWriteHeaders).
func (c *Connection) writeFrameLocked(typ h2frame.Type, flags h2frame.Flags, streamID uint32, payload []byte) error {
	hdr := h2frame.Header{Length: uint32(len(payload)), Type: typ, Flags: flags, StreamID: streamID}
	if err := h2frame.WriteHeader(c.bw, hdr); err != nil {
		return errors.NewIOError("write_frame", err)
	}
	if len(payload) > 0 {
		if _, err := c.bw.Write(payload); err != nil {
			return errors.NewIOError("write_frame", err)
		}
	}
	if err := c.bw.Flush(); err != nil {
		return errors.NewIOError("write_frame", err)
	}
	if c.recorder != nil {
		c.recorder.BytesOut.Add(float64(h2frame.FrameHeaderLen + len(payload)))
	}
	return nil
}

func (c *Connection) sendGoAway(code h2frame.ErrorCode, debug string) {
	c.mu.Lock()
	if c.goAwaySent {
		c.mu.Unlock()
		return
	}
	c.goAwaySent = true
	lastID := c.lastClientStreamID
	c.mu.Unlock()

	payload := h2frame.AppendGoAway(nil, lastID, code, []byte(debug))
	_ = c.writeFrame(h2frame.TypeGoAway, 0, 0, payload)
}

func (c *Connection) rstStream(streamID uint32, code h2frame.ErrorCode) {
	_ = c.writeFrame(h2frame.TypeRSTStream, 0, streamID, h2frame.AppendRSTStream(nil, code))
	c.mu.Lock()
	if s, ok := c.streams[streamID]; ok {
		s.Reset()
		delete(c.streams, streamID)
		if c.recorder != nil {
			c.recorder.H2StreamsActive.Dec()
		}
	}
	c.mu.Unlock()
	c.cond.Broadcast()
}

// idleConnection reports whether no streams remain in flight. It does not
// look at whether shutdown has been requested.
func (c *Connection) idleConnection() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams) == 0
}

func (c *Connection) isTLS() bool {
	_, ok := c.nc.(*tls.Conn)
	return ok
}

// tlsInfo returns the negotiated TLS parameters for this connection, or nil
// over plaintext. Safe to call repeatedly; the handshake has already
// completed by the time any stream reaches dispatchRequest.
func (c *Connection) tlsInfo() *dispatch.TLSInfo {
	tc, ok := c.nc.(*tls.Conn)
	if !ok {
		return nil
	}
	st := tc.ConnectionState()
	return &dispatch.TLSInfo{
		Version:            st.Version,
		CipherSuite:        st.CipherSuite,
		ServerName:         st.ServerName,
		NegotiatedProtocol: st.NegotiatedProtocol,
		Resumed:            st.DidResume,
	}
}

// requestContext bounds one request's handler invocation by request_timeout,
// per spec §4.6's per-request timeout.
func (c *Connection) requestContext() (context.Context, context.CancelFunc) {
	if c.opts.RequestTimeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), c.opts.RequestTimeout)
}

// RequestShutdown sends a GOAWAY naming the last stream id this connection
// accepted and refuses any client HEADERS for a new stream id from then on,
// per spec §4.6's graceful-drain semantics: in-flight streams finish, no
// new ones start.
func (c *Connection) RequestShutdown() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.sendGoAway(h2frame.ErrCodeNoError, "graceful shutdown")
}
