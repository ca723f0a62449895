package http2conn

import (
	"bufio"
	"net"
	"sync"
	"testing"

	"github.com/WhileEndless/go-rawserver/pkg/errors"
	"github.com/WhileEndless/go-rawserver/pkg/h2frame"
	"github.com/WhileEndless/go-rawserver/pkg/h2stream"
	"github.com/WhileEndless/go-rawserver/pkg/hpack"
)

func newTestConnection(t *testing.T) (*Connection, net.Conn) {
	t.Helper()
	serverSide, peer := net.Pipe()
	opts := DefaultOptions()
	c := &Connection{
		nc:                serverSide,
		br:                bufio.NewReader(serverSide),
		bw:                bufio.NewWriter(serverSide),
		opts:              opts,
		streams:           make(map[uint32]*h2stream.Stream),
		nextPushStreamID:  2,
		connSendWindow:    65535,
		connRecvWindow:    int32(opts.InitialWindowSize),
		peerInitialWindow: 65535,
		peerMaxFrameSize:  16384,
		peerEnablePush:    true,
		peerMaxConcurrent: opts.MaxConcurrentStreams,
		peerMaxHeaderList: opts.MaxHeaderListSize,
		hdec:              hpack.NewDecoder(int(opts.HeaderTableSize), int(opts.MaxHeaderListSize)),
		henc:              hpack.NewEncoder(int(opts.HeaderTableSize)),
	}
	c.cond = sync.NewCond(&c.mu)

	// Drain whatever the connection writes so writeFrame never blocks on
	// the synchronous net.Pipe.
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := peer.Read(buf); err != nil {
				return
			}
		}
	}()

	t.Cleanup(func() {
		serverSide.Close()
		peer.Close()
	})
	return c, peer
}

func TestHandleSettingsRejectsInvalidEnablePush(t *testing.T) {
	c, _ := newTestConnection(t)
	payload := h2frame.AppendSettings(nil, []h2frame.SettingParam{{ID: h2frame.SettingEnablePush, Value: 2}})

	err := c.handleSettings(h2frame.Header{Length: uint32(len(payload))}, payload)
	if errors.Of(err) != errors.KindProtocol {
		t.Fatalf("expected protocol error for invalid ENABLE_PUSH, got %v", err)
	}
}

func TestHandleSettingsRejectsOutOfRangeMaxFrameSize(t *testing.T) {
	c, _ := newTestConnection(t)
	payload := h2frame.AppendSettings(nil, []h2frame.SettingParam{{ID: h2frame.SettingMaxFrameSize, Value: 100}})

	err := c.handleSettings(h2frame.Header{Length: uint32(len(payload))}, payload)
	if errors.Of(err) != errors.KindProtocol {
		t.Fatalf("expected protocol error for out-of-range MAX_FRAME_SIZE, got %v", err)
	}
}

func TestHandleSettingsAppliesInitialWindowDeltaToExistingStreams(t *testing.T) {
	c, _ := newTestConnection(t)
	s := h2stream.NewStream(1, 65535, 65535)
	c.streams[1] = s

	payload := h2frame.AppendSettings(nil, []h2frame.SettingParam{{ID: h2frame.SettingInitialWindowSize, Value: 70000}})
	if err := c.handleSettings(h2frame.Header{Length: uint32(len(payload))}, payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.SendWindow != 70000 {
		t.Fatalf("expected stream send window updated to 70000, got %d", s.SendWindow)
	}
}

func TestHandleWindowUpdateZeroIncrementOnConnectionIsProtocolError(t *testing.T) {
	c, _ := newTestConnection(t)
	payload := h2frame.AppendWindowUpdate(nil, 0)

	err := c.handleWindowUpdate(h2frame.Header{StreamID: 0}, payload)
	if errors.Of(err) != errors.KindProtocol {
		t.Fatalf("expected protocol error for zero-increment connection WINDOW_UPDATE, got %v", err)
	}
}

func TestHandleWindowUpdateIncreasesStreamSendWindow(t *testing.T) {
	c, _ := newTestConnection(t)
	s := h2stream.NewStream(1, 100, 65535)
	c.streams[1] = s

	payload := h2frame.AppendWindowUpdate(nil, 50)
	if err := c.handleWindowUpdate(h2frame.Header{StreamID: 1}, payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.SendWindow != 150 {
		t.Fatalf("expected stream send window 150, got %d", s.SendWindow)
	}
}

func TestAllocateClientStreamRejectsEvenStreamID(t *testing.T) {
	c, _ := newTestConnection(t)
	_, err := c.allocateClientStream(2)
	if errors.Of(err) != errors.KindProtocol {
		t.Fatalf("expected protocol error for even client stream id, got %v", err)
	}
}

func TestAllocateClientStreamRejectsNonIncreasingStreamID(t *testing.T) {
	c, _ := newTestConnection(t)
	c.lastClientStreamID = 5
	_, err := c.allocateClientStream(3)
	if errors.Of(err) != errors.KindProtocol {
		t.Fatalf("expected protocol error for non-increasing stream id, got %v", err)
	}
}
