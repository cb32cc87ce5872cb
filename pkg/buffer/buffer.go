// Package buffer accumulates a relayed upstream response into memory for
// possible caching, without ever growing past the cache's own per-entry
// ceiling.
package buffer

import (
	"bytes"
	"sync"
)

// Buffer accumulates bytes up to a fixed limit. Writes past the limit are
// cheap no-ops: the capture has already missed the cache's per-entry
// ceiling, so there is nothing left worth holding, and the relay itself
// must never be slowed or disrupted by a doomed capture. Once overflowed,
// Bytes returns nil, matching the cache's own admission rule.
type Buffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	size      int64
	limit     int64
	overflown bool
	closed    bool
}

// New creates a Buffer that discards its contents once more than limit
// bytes have been written to it.
func New(limit int64) *Buffer {
	return &Buffer{limit: limit}
}

// Write records p, or discards it if the buffer has already overflowed or
// been closed. Never fails: a capture is best-effort and must not be able
// to turn an otherwise successful relay into an error.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.size += int64(len(p))

	if b.closed || b.overflown {
		return len(p), nil
	}

	if int64(b.buf.Len())+int64(len(p)) > b.limit {
		b.overflown = true
		b.buf.Reset()
		return len(p), nil
	}

	return b.buf.Write(p)
}

// Bytes returns the captured payload, or nil if the capture overflowed its
// limit or was closed.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.overflown || b.closed {
		return nil
	}
	return b.buf.Bytes()
}

// Size returns the total number of bytes written, including any that were
// discarded after overflow.
func (b *Buffer) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Overflowed reports whether the capture exceeded its limit and was
// discarded.
func (b *Buffer) Overflowed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overflown
}

// Close releases the buffer's backing memory. Idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.buf = bytes.Buffer{}
	return nil
}
