package pipeline

import (
	"sync"
	"sync/atomic"
)

// stage ids for dedicated buffer caches
const (
	cacheRead = iota
	cacheDecode
	cacheSink
	cacheWorkerBase // workers use cacheWorkerBase + workerID
)

// BufferPool manages reusable byte buffers with lock-free per-goroutine caches.
//
// architecture:
//   - one dedicated cache per stage goroutine (read, decode, sink), grown
//     on demand for unit-pool workers
//   - each cache has a local ring buffer (8 slots) using atomic operations
//   - overflow fallback to sync.Pool for burst allocations
//   - eliminates lock contention between stage goroutines
type BufferPool struct {
	caches     []*bufferCache
	bufferSize int
	mu         sync.Mutex // protects cache slice growth
}

// bufferCache is a lock-free ring buffer for a single goroutine
type bufferCache struct {
	local      [8]*[]byte // local ring buffer (no locks, atomic access)
	overflow   sync.Pool  // fallback for burst allocations
	head       uint32     // read position (atomic)
	tail       uint32     // write position (atomic)
	bufferSize int        // buffer size for new allocations
}

// NewBufferPool creates a buffer pool with per-goroutine lock-free caches
func NewBufferPool(bufferSize int) *BufferPool {
	pool := &BufferPool{
		caches:     make([]*bufferCache, cacheWorkerBase),
		bufferSize: bufferSize,
	}

	for i := range pool.caches {
		pool.caches[i] = newBufferCache(bufferSize)
	}

	return pool
}

func newBufferCache(bufferSize int) *bufferCache {
	return &bufferCache{
		bufferSize: bufferSize,
		overflow: sync.Pool{
			New: func() interface{} {
				buf := make([]byte, bufferSize)
				return &buf
			},
		},
	}
}

// cacheFor returns the dedicated cache for a stage goroutine, growing the
// cache slice for worker ids (thread-safe).
func (p *BufferPool) cacheFor(stageID int) *bufferCache {
	if stageID < 0 {
		stageID = cacheRead
	}

	// fast path: cache already exists
	if stageID < len(p.caches) {
		return p.caches[stageID]
	}

	// slow path: grow for workers (rare)
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.caches) <= stageID {
		p.caches = append(p.caches, newBufferCache(p.bufferSize))
	}

	return p.caches[stageID]
}

// Get retrieves a buffer from the lock-free cache
func (c *bufferCache) Get() []byte {
	// try lock-free local cache first (with retry on contention)
	for attempt := 0; attempt < 3; attempt++ {
		head := atomic.LoadUint32(&c.head)
		tail := atomic.LoadUint32(&c.tail)

		if head != tail {
			buf := c.local[head%8]
			if buf != nil && atomic.CompareAndSwapUint32(&c.head, head, head+1) {
				return *buf
			}
		} else {
			break // cache empty, don't retry
		}
	}

	// local cache empty or contended, try overflow pool
	if val := c.overflow.Get(); val != nil {
		return *val.(*[]byte)
	}

	return make([]byte, c.bufferSize)
}

// Put returns a buffer to the lock-free cache
func (c *bufferCache) Put(buf []byte) {
	// only pool buffers with the pooled capacity
	if cap(buf) != c.bufferSize {
		return
	}

	// reset length to full capacity (keep capacity)
	buf = buf[:c.bufferSize]

	for attempt := 0; attempt < 3; attempt++ {
		head := atomic.LoadUint32(&c.head)
		tail := atomic.LoadUint32(&c.tail)

		if (tail - head) < 8 {
			c.local[tail%8] = &buf
			if atomic.CompareAndSwapUint32(&c.tail, tail, tail+1) {
				return
			}
		} else {
			break // cache full, don't retry
		}
	}

	c.overflow.Put(&buf)
}
