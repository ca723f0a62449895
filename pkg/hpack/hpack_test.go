package hpack

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStaticMethodGet(t *testing.T) {
	d := NewDecoder(4096, 8192)
	got, err := d.Decode([]byte{0x82})
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	want := []HeaderField{{":method", "GET"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestHuffmanRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		n := rng.Intn(128)
		b := make([]byte, n)
		rng.Read(b)
		s := string(b)

		encoded := appendHuffman(nil, s)
		decoded, err := huffmanDecode(encoded)
		if err != nil {
			t.Fatalf("round trip %d failed: %v", i, err)
		}
		if decoded != s {
			t.Fatalf("round trip %d mismatch: got %q want %q", i, decoded, s)
		}
	}
}

func TestHuffmanRejectsBadPadding(t *testing.T) {
	// "a" Huffman-encodes to the 5 bits 00011; padded with 3 zero bits that
	// is 0x18, whose padding is not a prefix of the all-ones EOS code.
	bad := []byte{0x18}
	if _, err := huffmanDecode(bad); err == nil {
		t.Fatalf("expected padding error")
	}
}

func TestHPACKRoundTrip(t *testing.T) {
	headers := []HeaderField{
		{":method", "GET"},
		{":path", "/widgets"},
		{":scheme", "https"},
		{":authority", "example.com"},
		{"x-custom-one", "value-one"},
		{"x-custom-two", "value-two-is-a-bit-longer-than-the-first"},
		{"cookie", "session=abc123; theme=dark"},
	}

	enc := NewEncoder(4096)
	wire := enc.Encode(nil, headers)

	dec := NewDecoder(4096, 1<<20)
	got, err := dec.Decode(wire)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if diff := cmp.Diff(headers, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestHPACKRoundTripReusesDynamicTable(t *testing.T) {
	enc := NewEncoder(4096)
	dec := NewDecoder(4096, 1<<20)

	requests := [][]HeaderField{
		{{":method", "GET"}, {":path", "/"}, {"x-trace", "abc"}},
		{{":method", "GET"}, {":path", "/"}, {"x-trace", "def"}},
		{{":method", "POST"}, {":path", "/submit"}, {"x-trace", "abc"}},
	}

	for i, req := range requests {
		wire := enc.Encode(nil, req)
		got, err := dec.Decode(wire)
		if err != nil {
			t.Fatalf("request %d: decode failed: %v", i, err)
		}
		if diff := cmp.Diff(req, got); diff != "" {
			t.Fatalf("request %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestDynamicTableSizeUpdateEvictsEntries(t *testing.T) {
	dt := NewDynamicTable(4096)
	dt.Insert(HeaderField{"x-a", "1"})
	dt.Insert(HeaderField{"x-b", "2"})
	if dt.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", dt.Len())
	}

	dt.SetMaxSize(0)
	if dt.Len() != 0 || dt.Size() != 0 {
		t.Fatalf("expected table emptied by zero-size update, got len=%d size=%d", dt.Len(), dt.Size())
	}
}

func TestDecoderRejectsIndexIntoEvictedDynamicEntry(t *testing.T) {
	enc := NewEncoder(4096)
	dec := NewDecoder(4096, 1<<20)

	// Insert a literal into both encoder and decoder's dynamic tables.
	wire := enc.Encode(nil, []HeaderField{{"x-big", "value"}})
	if _, err := dec.Decode(wire); err != nil {
		t.Fatalf("priming decode failed: %v", err)
	}

	// Now shrink the decoder's table to 0 directly (simulating a peer
	// SETTINGS_HEADER_TABLE_SIZE change) and try to reference dynamic index 62.
	dec.dynTable.SetMaxSize(0)
	_, err := dec.Decode([]byte{0xbe}) // indexed field, index 62
	if err == nil {
		t.Fatalf("expected compression error referencing evicted entry")
	}
}

func TestDecompressionBombBound(t *testing.T) {
	// Build a block that inserts one large literal then indexes it
	// repeatedly; cumulative size must trip the bound well before any
	// unbounded allocation.
	enc := NewEncoder(4096)
	big := make([]byte, 4000)
	for i := range big {
		big[i] = 'a' + byte(i%26)
	}

	headers := []HeaderField{{"x-big", string(big)}}
	for i := 0; i < 100; i++ {
		headers = append(headers, HeaderField{"x-big", string(big)})
	}

	wire := enc.Encode(nil, headers)
	dec := NewDecoder(4096, 8192)
	_, err := dec.Decode(wire)
	if err == nil {
		t.Fatalf("expected CompressionError from decompression bound")
	}
}

func TestDecodeIntBoundsContinuation(t *testing.T) {
	// 7-bit prefix maxed out, followed by 6 continuation bytes — one more
	// than the permitted 5.
	data := []byte{0x7f, 0x80, 0x80, 0x80, 0x80, 0x80, 0x01}
	if _, _, err := decodeInt(data, 7); err == nil {
		t.Fatalf("expected too-many-continuation-bytes error")
	}
}
