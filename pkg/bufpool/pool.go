// Package bufpool provides the process-wide pooled byte allocator the
// connection and stream layers rent frame payloads and request bodies from.
//
// This is the systems-language equivalent of a global ArrayPool: one
// process-wide pool initialized implicitly at first use, with a small
// rent/return facade so callers (and tests) never see sync.Pool directly.
package bufpool

import "sync"

// classes are the rentable slice capacities, chosen to cover a frame header
// (9 bytes), a default-sized HTTP/2 frame payload (16384 bytes) and a
// generous request/response scratch buffer, without forcing every caller
// into one fixed size.
var classes = []int{512, 4096, 16384, 65536}

var pools = func() []*sync.Pool {
	ps := make([]*sync.Pool, len(classes))
	for i, size := range classes {
		size := size
		ps[i] = &sync.Pool{New: func() any {
			b := make([]byte, size)
			return &b
		}}
	}
	return ps
}()

func classFor(n int) int {
	for i, size := range classes {
		if n <= size {
			return i
		}
	}
	return -1
}

// Get rents a []byte of length n (capacity may exceed n). Slices larger than
// the biggest pooled class are allocated directly and never pooled.
func Get(n int) []byte {
	idx := classFor(n)
	if idx < 0 {
		return make([]byte, n)
	}
	p := pools[idx].Get().(*[]byte)
	buf := (*p)[:n]
	return buf
}

// Put returns a slice previously obtained from Get. Any slice whose capacity
// equals a pooled class size is pooled, wherever it came from; any other
// slice is simply dropped.
func Put(buf []byte) {
	c := cap(buf)
	for i, size := range classes {
		if c == size {
			full := buf[:size]
			pools[i].Put(&full)
			return
		}
	}
}
