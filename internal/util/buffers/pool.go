package buffers

import (
	"sync"
	"sync/atomic"
)

// Pool provides reusable chunk buffers of one fixed size to reduce heap allocations
// during chunked uploads and downloads. Chunk size is configurable (1-50 MB), so a
// pool is created per transfer size instead of sharing a package-level pool.
type Pool struct {
	size        int
	pool        sync.Pool
	allocations int64 // Total buffer allocations (new creates)
	gets        int64 // Total Get calls
}

// NewPool creates a pool of size-byte buffers.
func NewPool(size int) *Pool {
	p := &Pool{size: size}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.allocations, 1)
		buf := make([]byte, size)
		return &buf
	}
	return p
}

// Get retrieves a buffer from the pool.
// The buffer must be returned with Put when done.
//
// Usage:
//
//	buf := pool.Get()
//	defer pool.Put(buf)
//	data, next, err := cur.Next(file, *buf, sep)
func (p *Pool) Get() *[]byte {
	atomic.AddInt64(&p.gets, 1)
	return p.pool.Get().(*[]byte)
}

// Put returns a buffer to the pool for reuse.
// Only buffers of the pool's size are kept. The buffer is cleared first so row data
// does not persist across transfers.
func (p *Pool) Put(buf *[]byte) {
	if buf == nil || len(*buf) != p.size {
		return
	}
	clear(*buf)
	p.pool.Put(buf)
}

// Size returns the buffer size of the pool.
func (p *Pool) Size() int {
	return p.size
}

// Stats holds buffer pool statistics
type Stats struct {
	BufferSize  int
	Allocations int64
	Reuses      int64
}

// GetStats returns current pool statistics.
// Reuses is approximate since sync.Pool does not report cache hits.
func (p *Pool) GetStats() Stats {
	allocs := atomic.LoadInt64(&p.allocations)
	gets := atomic.LoadInt64(&p.gets)
	reuses := gets - allocs
	if reuses < 0 {
		reuses = 0
	}
	return Stats{
		BufferSize:  p.size,
		Allocations: allocs,
		Reuses:      reuses,
	}
}
