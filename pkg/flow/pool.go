package flow

import (
	"sync"
	"sync/atomic"
)

// FrameBuffer is a reusable raw frame buffer
type FrameBuffer struct {
	Data []byte
	pool *FramePool
}

// Release returns the buffer to its pool
func (fb *FrameBuffer) Release() {
	if fb.pool != nil {
		fb.pool.Put(fb)
	}
}

// FramePool recycles raw frame buffers between reads. At 1152000 baud the
// stream carries about 55 frames a second, each of which would otherwise be
// a fresh allocation.
type FramePool struct {
	pool   sync.Pool
	hits   int64
	misses int64
}

// NewFramePool creates an empty pool
func NewFramePool() *FramePool {
	p := &FramePool{}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.misses, 1)
		return &FrameBuffer{Data: make([]byte, FrameSize), pool: p}
	}
	return p
}

// Get returns a FrameSize buffer
func (p *FramePool) Get() *FrameBuffer {
	atomic.AddInt64(&p.hits, 1)
	return p.pool.Get().(*FrameBuffer)
}

// Put returns a buffer; foreign or resized buffers are dropped
func (p *FramePool) Put(fb *FrameBuffer) {
	if fb == nil || fb.pool != p || cap(fb.Data) < FrameSize {
		return
	}
	fb.Data = fb.Data[:FrameSize]
	p.pool.Put(fb)
}

// Statistics returns request and allocation counts
func (p *FramePool) Statistics() map[string]int64 {
	return map[string]int64{
		"requests":    atomic.LoadInt64(&p.hits),
		"allocations": atomic.LoadInt64(&p.misses),
	}
}
