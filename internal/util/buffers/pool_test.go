package buffers

import (
	"sync"
	"testing"
)

// TestPoolBufferSize verifies that buffers have the pool's size
func TestPoolBufferSize(t *testing.T) {
	p := NewPool(4096)

	buf := p.Get()
	if buf == nil {
		t.Fatal("Get returned nil")
	}
	if len(*buf) != 4096 {
		t.Errorf("Buffer size = %d, want 4096", len(*buf))
	}
	p.Put(buf)

	buf2 := p.Get()
	if buf2 == nil {
		t.Fatal("Get returned nil on second call")
	}
	p.Put(buf2)
}

// TestPutClearsBuffer verifies pooled buffers do not leak previous contents
func TestPutClearsBuffer(t *testing.T) {
	p := NewPool(8)
	buf := p.Get()
	copy(*buf, "rowdata!")
	p.Put(buf)

	for i, b := range *buf {
		if b != 0 {
			t.Fatalf("byte %d not cleared: %q", i, b)
		}
	}
}

// TestPutWrongSize verifies wrong-sized and nil buffers are ignored
func TestPutWrongSize(t *testing.T) {
	p := NewPool(1024)
	wrong := make([]byte, 10)
	p.Put(&wrong) // Should not panic, just not pool it
	p.Put(nil)
}

// TestConcurrentAccess tests concurrent buffer get/put operations
func TestConcurrentAccess(t *testing.T) {
	const goroutines = 10
	const iterations = 100

	p := NewPool(1024)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				buf := p.Get()
				(*buf)[0] = byte(j)
				p.Put(buf)
			}
		}()
	}
	wg.Wait()

	stats := p.GetStats()
	if stats.BufferSize != 1024 {
		t.Errorf("BufferSize = %d, want 1024", stats.BufferSize)
	}
	if stats.Allocations < 1 || stats.Allocations > goroutines*iterations {
		t.Errorf("unexpected allocation count %d", stats.Allocations)
	}
}
