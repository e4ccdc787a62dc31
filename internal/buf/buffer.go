// Package buf provides a growable, front-consumable byte buffer used by the
// HTTP decoder and the TLS plaintext/ciphertext relays.
package buf

import "sync"

const initialCap = 4096

// Buffer is a growable byte queue: bytes are appended at the back and
// consumed from the front. Retrieve never reallocates; Append grows the
// backing array only when the free space at the back is insufficient, and
// compacts consumed bytes out of the way first.
type Buffer struct {
	data []byte
	off  int // read offset; data[off:] is the unconsumed region
}

// New returns an empty Buffer with a small initial capacity.
func New() *Buffer {
	return &Buffer{data: make([]byte, 0, initialCap)}
}

// Reset discards all buffered bytes, keeping the backing array.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.off = 0
}

// Len returns the number of unconsumed bytes.
func (b *Buffer) Len() int {
	return len(b.data) - b.off
}

// Append copies p onto the back of the buffer.
func (b *Buffer) Append(p []byte) {
	if len(p) == 0 {
		return
	}
	b.reclaim(len(p))
	b.data = append(b.data, p...)
}

// Peek returns a contiguous read view over the unconsumed bytes. The slice is
// only valid until the next Append or Retrieve call.
func (b *Buffer) Peek() []byte {
	return b.data[b.off:]
}

// Retrieve discards the first n unconsumed bytes. n must not exceed Len().
func (b *Buffer) Retrieve(n int) {
	if n <= 0 {
		return
	}
	if n > b.Len() {
		n = b.Len()
	}
	b.off += n
	if b.off == len(b.data) {
		b.data = b.data[:0]
		b.off = 0
	}
}

// FindCRLF scans the unconsumed region for "\r\n" and returns its offset
// relative to the start of the unconsumed region, or -1 if not present.
func (b *Buffer) FindCRLF() int {
	view := b.Peek()
	for i := 0; i+1 < len(view); i++ {
		if view[i] == '\r' && view[i+1] == '\n' {
			return i
		}
	}
	return -1
}

// reclaim ensures there is room for n more bytes at the back, compacting
// already-consumed bytes out of the slice before growing it.
func (b *Buffer) reclaim(n int) {
	free := cap(b.data) - len(b.data)
	if free >= n {
		return
	}
	unconsumed := b.Len()
	if cap(b.data)-unconsumed >= n {
		copy(b.data, b.data[b.off:])
		b.data = b.data[:unconsumed]
		b.off = 0
		return
	}
	fresh := make([]byte, unconsumed, grow(cap(b.data), unconsumed+n))
	copy(fresh, b.data[b.off:])
	b.data = fresh
	b.off = 0
}

func grow(oldCap, need int) int {
	c := oldCap * 2
	if c < need {
		c = need
	}
	return c
}

var pool = sync.Pool{
	New: func() any { return New() },
}

// Get returns a Buffer from the shared pool, ready for use.
func Get() *Buffer {
	return pool.Get().(*Buffer)
}

// Put resets b and returns it to the shared pool.
func Put(b *Buffer) {
	b.Reset()
	pool.Put(b)
}
