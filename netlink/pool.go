package netlink

import (
	"sync"
	"sync/atomic"
)

const poisonByte = 0xa5

type slab struct {
	b    []byte
	pool *BufferPool
	free bool
}

// Buffer is a handle on a borrowed slab. Each call to BufferPool.Take hands
// out a new handle and Release consumes it: once released, a handle can't
// reach the slab again, so a stale handle can never scribble over a buffer
// that has since been lent to somebody else.
type Buffer struct {
	s atomic.Pointer[slab]
	n int
}

// Bytes returns the portion of the buffer written so far. It returns nil
// once the buffer has been released.
func (b *Buffer) Bytes() []byte {
	s := b.s.Load()
	if s == nil {
		return nil
	}
	return s.b[:b.n]
}

// Cap returns the fixed capacity of the underlying slab.
func (b *Buffer) Cap() int {
	s := b.s.Load()
	if s == nil {
		return 0
	}
	return len(s.b)
}

func (b *Buffer) raw() []byte {
	s := b.s.Load()
	if s == nil {
		panic("netlink: use of released buffer")
	}
	return s.b
}

// Release returns the slab to its pool. Releasing the same handle twice is a
// programming error and panics.
func (b *Buffer) Release() {
	s := b.s.Swap(nil)
	if s == nil {
		panic("netlink: buffer released twice")
	}
	s.pool.put(s)
}

// BufferPool is a fixed set of equally sized buffers. It never allocates past
// the count given at construction: once every buffer is borrowed Take fails
// instead of growing.
type BufferPool struct {
	mu     sync.Mutex
	free   []*slab
	count  int
	size   int
	poison bool
}

// NewBufferPool preallocates count buffers of size bytes each. When poison is
// set released buffers are overwritten so any read after release is obvious.
func NewBufferPool(count, size int, poison bool) *BufferPool {
	p := &BufferPool{
		free:   make([]*slab, 0, count),
		count:  count,
		size:   size,
		poison: poison,
	}

	mem := make([]byte, count*size)
	for i := 0; i < count; i++ {
		p.free = append(p.free, &slab{
			b:    mem[i*size : (i+1)*size : (i+1)*size],
			pool: p,
			free: true,
		})
	}

	return p
}

// Take borrows a buffer. It fails fast with ErrPoolExhausted.
func (p *BufferPool) Take() (*Buffer, error) {
	p.mu.Lock()
	n := len(p.free)
	if n == 0 {
		p.mu.Unlock()
		return nil, admissionError(ErrPoolExhausted)
	}
	s := p.free[n-1]
	p.free[n-1] = nil
	p.free = p.free[:n-1]
	s.free = false
	p.mu.Unlock()

	b := &Buffer{}
	b.s.Store(s)
	return b, nil
}

func (p *BufferPool) put(s *slab) {
	if p.poison {
		for i := range s.b {
			s.b[i] = poisonByte
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if s.free {
		panic("netlink: releasing a buffer that is already free")
	}
	s.free = true
	p.free = append(p.free, s)
}

// Available returns the number of buffers that can currently be borrowed.
func (p *BufferPool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Cap returns the total number of buffers managed by the pool.
func (p *BufferPool) Cap() int {
	return p.count
}

// BufferSize returns the size of every buffer in the pool.
func (p *BufferPool) BufferSize() int {
	return p.size
}
