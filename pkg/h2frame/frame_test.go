package h2frame

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		h := Header{
			Length:   uint32(rng.Intn(1 << 24)),
			Type:     Type(rng.Intn(10)),
			Flags:    Flags(rng.Intn(256)),
			StreamID: uint32(rng.Intn(1 << 31)),
		}
		wire := AppendHeader(nil, h)
		if len(wire) != FrameHeaderLen {
			t.Fatalf("case %d: expected %d bytes, got %d", i, FrameHeaderLen, len(wire))
		}
		got, err := ParseHeader(wire)
		if err != nil {
			t.Fatalf("case %d: parse failed: %v", i, err)
		}
		if got != h {
			t.Fatalf("case %d: round trip mismatch: got %+v want %+v", i, got, h)
		}
	}
}

func TestReadHeaderFromReader(t *testing.T) {
	h := Header{Length: 5, Type: TypeData, Flags: FlagEndStream, StreamID: 1}
	wire := AppendHeader(nil, h)
	got, err := ReadHeader(bytes.NewReader(wire))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if got != h {
		t.Fatalf("mismatch: got %+v want %+v", got, h)
	}
}

func TestSplitPaddedNoFlag(t *testing.T) {
	payload := []byte("hello")
	got, err := SplitPadded(payload, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("expected unchanged payload, got %q", got)
	}
}

func TestSplitPaddedWithPadding(t *testing.T) {
	// pad length byte (2), "hi", two pad bytes
	payload := []byte{2, 'h', 'i', 0, 0}
	got, err := SplitPadded(payload, FlagPadded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "hi" {
		t.Fatalf("expected \"hi\", got %q", got)
	}
}

func TestSplitPaddedRejectsOverlongPad(t *testing.T) {
	payload := []byte{10, 'h', 'i'}
	if _, err := SplitPadded(payload, FlagPadded); err == nil {
		t.Fatalf("expected error for pad length exceeding payload")
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	params := []SettingParam{
		{SettingHeaderTableSize, 4096},
		{SettingEnablePush, 0},
		{SettingMaxConcurrentStreams, 100},
		{SettingInitialWindowSize, 65535},
		{SettingMaxFrameSize, 16384},
	}
	wire := AppendSettings(nil, params)
	got, err := ParseSettings(wire)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(got) != len(params) {
		t.Fatalf("expected %d params, got %d", len(params), len(got))
	}
	for i := range params {
		if got[i] != params[i] {
			t.Fatalf("param %d mismatch: got %+v want %+v", i, got[i], params[i])
		}
	}
}

func TestSettingsRejectsBadLength(t *testing.T) {
	if _, err := ParseSettings([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected frame size error for non-multiple-of-6 payload")
	}
}

func TestGoAwayRoundTrip(t *testing.T) {
	wire := AppendGoAway(nil, 17, ErrCodeProtocolError, []byte("bad stream"))
	got, err := ParseGoAway(wire)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got.LastStreamID != 17 || got.ErrorCode != ErrCodeProtocolError || string(got.Debug) != "bad stream" {
		t.Fatalf("mismatch: %+v", got)
	}
}

func TestWindowUpdateRoundTrip(t *testing.T) {
	wire := AppendWindowUpdate(nil, 1000)
	got, err := ParseWindowUpdate(wire)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if got != 1000 {
		t.Fatalf("expected 1000, got %d", got)
	}
}
