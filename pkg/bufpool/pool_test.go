package bufpool

import "testing"

func TestGetPutRoundTrip(t *testing.T) {
	for _, n := range []int{1, 512, 4096, 16384, 65536, 100000} {
		buf := Get(n)
		if len(buf) != n {
			t.Fatalf("Get(%d) returned slice of len %d", n, len(buf))
		}
		buf[0] = 0xAB
		Put(buf)
	}
}

func TestGetZeroedOrReused(t *testing.T) {
	buf := Get(4096)
	for i := range buf {
		buf[i] = 0xFF
	}
	Put(buf)

	buf2 := Get(4096)
	if len(buf2) != 4096 {
		t.Fatalf("expected len 4096, got %d", len(buf2))
	}
}

func TestSpillBufferMemoryOnly(t *testing.T) {
	b := NewSpillBuffer(1024)
	defer b.Close()

	payload := []byte("hello world")
	n, err := b.Write(payload)
	if err != nil || n != len(payload) {
		t.Fatalf("write failed: n=%d err=%v", n, err)
	}
	if b.IsSpilled() {
		t.Fatalf("expected in-memory buffer")
	}
	if string(b.Bytes()) != string(payload) {
		t.Fatalf("bytes mismatch: got %q", b.Bytes())
	}
}

func TestSpillBufferSpillsToDisk(t *testing.T) {
	b := NewSpillBuffer(8)
	defer b.Close()

	payload := make([]byte, 64)
	for i := range payload {
		payload[i] = byte(i)
	}
	if _, err := b.Write(payload); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if !b.IsSpilled() {
		t.Fatalf("expected buffer to have spilled to disk")
	}

	r, err := b.Reader()
	if err != nil {
		t.Fatalf("reader failed: %v", err)
	}
	defer r.Close()

	got := make([]byte, len(payload))
	if _, err := r.Read(got); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	for i := range got {
		if got[i] != payload[i] {
			t.Fatalf("byte %d mismatch: got %d want %d", i, got[i], payload[i])
		}
	}
}

func TestSpillBufferCloseIdempotent(t *testing.T) {
	b := NewSpillBuffer(0)
	if _, err := b.Write(make([]byte, 10)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("first close failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got: %v", err)
	}
}
