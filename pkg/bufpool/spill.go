package bufpool

import (
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/WhileEndless/go-rawserver/pkg/errors"
)

// DefaultMemoryLimit is the default threshold before a SpillBuffer spills to disk.
const DefaultMemoryLimit = 4 * 1024 * 1024 // 4MiB

// SpillBuffer accumulates a response body in memory and spills to a temp
// file once it exceeds limit. It exists for handlers that stream a response
// body larger than is reasonable to hold resident for every connection;
// ordinary request bodies stay under max_request_body_size and use Get/Put
// instead.
type SpillBuffer struct {
	buf    bytes.Buffer
	file   *os.File
	path   string
	size   int64
	limit  int64
	mu     sync.Mutex
	closed bool
}

// NewSpillBuffer creates a SpillBuffer with the given memory limit (0 uses
// DefaultMemoryLimit).
func NewSpillBuffer(limit int64) *SpillBuffer {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &SpillBuffer{limit: limit}
}

// Write appends p, spilling to disk once the in-memory threshold is crossed.
func (b *SpillBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, errors.NewIOError("spillbuffer_write", os.ErrClosed)
	}

	b.size += int64(len(p))

	if b.file == nil && int64(b.buf.Len()+len(p)) <= b.limit {
		return b.buf.Write(p)
	}

	if b.file == nil {
		tmp, err := os.CreateTemp("", "rawserver-body-*.tmp")
		if err != nil {
			return 0, errors.NewIOError("spillbuffer_create_temp", err)
		}
		b.file = tmp
		b.path = tmp.Name()

		if b.buf.Len() > 0 {
			if _, err := tmp.Write(b.buf.Bytes()); err != nil {
				b.closeLocked()
				return 0, errors.NewIOError("spillbuffer_write_temp", err)
			}
		}
		b.buf.Reset()
	}

	n, err := b.file.Write(p)
	if err != nil {
		return n, errors.NewIOError("spillbuffer_write_temp", err)
	}
	return n, nil
}

// Bytes returns the in-memory payload; nil if the buffer has spilled.
func (b *SpillBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.file != nil {
		return nil
	}
	return b.buf.Bytes()
}

// Size returns the total number of bytes written so far.
func (b *SpillBuffer) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// IsSpilled reports whether the buffer has spilled to disk.
func (b *SpillBuffer) IsSpilled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file != nil
}

// Reader returns a fresh reader over the stored payload.
func (b *SpillBuffer) Reader() (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.NewIOError("spillbuffer_reader", os.ErrClosed)
	}

	if b.file != nil {
		if err := b.file.Sync(); err != nil {
			return nil, errors.NewIOError("spillbuffer_sync", err)
		}
		f, err := os.Open(b.path)
		if err != nil {
			return nil, errors.NewIOError("spillbuffer_reopen", err)
		}
		return f, nil
	}

	return io.NopCloser(bytes.NewReader(b.buf.Bytes())), nil
}

// Close releases any temp file backing the buffer. Idempotent.
func (b *SpillBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeLocked()
}

func (b *SpillBuffer) closeLocked() error {
	if b.closed {
		return nil
	}
	b.closed = true

	if b.file != nil {
		err := b.file.Close()
		if removeErr := os.Remove(b.path); removeErr != nil && err == nil {
			err = removeErr
		}
		b.file = nil
		b.path = ""
		if err != nil {
			return errors.NewIOError("spillbuffer_close", err)
		}
	}
	return nil
}
