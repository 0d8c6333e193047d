package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferCacheGetPut(t *testing.T) {
	cache := newBufferCache(1024)

	buf := cache.Get()
	assert.Len(t, buf, 1024)

	// mark and recycle; the ring should hand the same buffer back
	buf[0] = 0x42
	cache.Put(buf)

	again := cache.Get()
	assert.Len(t, again, 1024)
	assert.Equal(t, byte(0x42), again[0])
}

func TestBufferCachePutRejectsWrongCapacity(t *testing.T) {
	cache := newBufferCache(1024)

	cache.Put(make([]byte, 100)) // silently discarded

	buf := cache.Get()
	assert.Equal(t, 1024, cap(buf))
}

func TestBufferCachePutRestoresLength(t *testing.T) {
	cache := newBufferCache(1024)

	buf := cache.Get()
	cache.Put(buf[:10]) // partially consumed slice, full capacity

	again := cache.Get()
	assert.Len(t, again, 1024)
}

func TestBufferCacheOverflow(t *testing.T) {
	cache := newBufferCache(64)

	// more buffers than the 8-slot ring holds
	bufs := make([][]byte, 16)
	for i := range bufs {
		bufs[i] = cache.Get()
	}
	for _, buf := range bufs {
		cache.Put(buf)
	}

	for i := 0; i < 16; i++ {
		assert.Len(t, cache.Get(), 64)
	}
}

func TestBufferPoolCacheFor(t *testing.T) {
	pool := NewBufferPool(512)

	read := pool.cacheFor(cacheRead)
	decode := pool.cacheFor(cacheDecode)
	require.NotNil(t, read)
	require.NotNil(t, decode)
	assert.NotSame(t, read, decode)

	// stable across calls
	assert.Same(t, read, pool.cacheFor(cacheRead))

	// grows on demand for workers
	worker := pool.cacheFor(cacheWorkerBase + 5)
	require.NotNil(t, worker)
	assert.Same(t, worker, pool.cacheFor(cacheWorkerBase+5))
	assert.Len(t, worker.Get(), 512)
}
