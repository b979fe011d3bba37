package websocket

import (
	"sync"
)

const defaultBufferSize = 4 << 10

// BufferPool recycles []byte buffers of one size class.
// Requests larger than the class are allocated and never pooled.
type BufferPool struct {
	size int
	pool *sync.Pool
}

// DefaultBufferPool returns a pool sized for typical order frames.
func DefaultBufferPool() *BufferPool {
	return NewBufferPool(defaultBufferSize)
}

// NewBufferPool creates a pool handing out buffers with capacity size.
func NewBufferPool(size int) *BufferPool {
	if size <= 0 {
		size = defaultBufferSize
	}
	return &BufferPool{
		size: size,
		pool: &sync.Pool{
			New: func() any {
				buf := make([]byte, size)
				return &buf
			},
		},
	}
}

// Get returns a buffer with length size.
func (p *BufferPool) Get(size int) []byte {
	if size <= 0 {
		return nil
	}
	if size > p.size {
		return make([]byte, size)
	}
	buf := *(p.pool.Get().(*[]byte))
	return buf[:size]
}

// Put returns a buffer to the pool when its capacity matches the class.
func (p *BufferPool) Put(buf []byte) {
	if cap(buf) != p.size {
		return
	}
	buf = buf[:0]
	p.pool.Put(&buf)
}

// Size returns the pooled buffer capacity.
func (p *BufferPool) Size() int {
	return p.size
}
