package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ax-x2/gzdec/go/zstream"
)

// Pipeline coordinates multi-stage streaming decode:
// reader -> decode -> sink
//
// - 2 concurrent goroutines with buffered channels (configurable capacity)
// - sink callback runs in the calling goroutine
// - context-based cancellation propagates through all stages
// - error channel aggregates errors from all stages
// - WaitGroup ensures clean shutdown
type Pipeline struct {
	pool            *BufferPool
	chunkSize       int
	channelCapacity int // channel buffer capacity (0 = use default: 12)
}

// NewPipeline creates a pipeline with the given chunk size and channel
// capacity. chunkSize of 0 selects zstream.DefaultChunkSize; capacity of 0
// uses the default (12). Higher capacity increases throughput but uses
// more memory.
func NewPipeline(chunkSize, channelCapacity int) *Pipeline {
	if chunkSize == 0 {
		chunkSize = zstream.DefaultChunkSize
	}

	return &Pipeline{
		pool:            NewBufferPool(chunkSize),
		chunkSize:       chunkSize,
		channelCapacity: channelCapacity,
	}
}

// Execute runs the pipeline: reader -> decode -> sink. The sink receives
// decoded chunks in stream order; pass nil to discard output (stats only).
func (p *Pipeline) Execute(ctx context.Context, reader io.Reader, sink ChunkSink) (*DecodeStats, error) {
	start := time.Now()

	stageCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	capacity := p.channelCapacity
	if capacity == 0 {
		capacity = 12 // balances throughput vs memory
	}

	rawCh := make(chan []byte, capacity) // reader -> decode
	decCh := make(chan []byte, capacity) // decode -> sink
	errCh := make(chan error, 3)         // error aggregation, never blocks a stage

	engine, err := newEngine(p.chunkSize, p.pool.cacheFor(cacheDecode))
	if err != nil {
		return nil, err
	}
	defer engine.Close()

	src := &countingReader{r: reader}

	var wg sync.WaitGroup
	var completed atomic.Uint64

	wg.Add(2)

	go func() {
		defer wg.Done()
		defer close(rawCh)
		ReadStage(stageCtx, src, rawCh, errCh, p.pool.cacheFor(cacheRead))
	}()

	go func() {
		defer wg.Done()
		defer close(decCh)
		DecodeStage(stageCtx, engine, rawCh, decCh, errCh, p.pool.cacheFor(cacheDecode), &completed)
	}()

	// sink runs in this goroutine (no goroutine leaks from callbacks)
	stats := &DecodeStats{}

	var sinkErr error
	for chunk := range decCh {
		stats.BytesOut += uint64(len(chunk))

		if sinkErr == nil && sink != nil {
			if err := sink.OnDecodedChunk(chunk); err != nil {
				sinkErr = fmt.Errorf("%w: %v", ErrCallback, err)
				cancel() // stop upstream stages, keep draining decCh
			}
		}
	}

	// decCh is closed, so no further output is possible; release any stage
	// still blocked on a channel send (the read stage keeps producing after
	// a decode error until its buffers fill)
	cancel()

	wg.Wait()
	close(errCh)

	stats.BytesIn = src.n
	stats.Units = completed.Load()
	stats.Duration = time.Since(start)

	if sinkErr != nil {
		return stats, sinkErr
	}
	for err := range errCh {
		if err != nil {
			return stats, err
		}
	}
	// stages exit silently when the caller's context is canceled
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	return stats, nil
}

// OpenReader starts the read and decode stages over r and returns an
// io.ReadCloser producing the decompressed stream. Errors from any stage
// surface from Read in place of io.EOF. Close releases the stages; it is
// required even when Read was consumed to EOF.
func (p *Pipeline) OpenReader(ctx context.Context, r io.Reader) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)

	capacity := p.channelCapacity
	if capacity == 0 {
		capacity = 12
	}

	rawCh := make(chan []byte, capacity)
	decCh := make(chan []byte, capacity)
	errCh := make(chan error, 3)

	engine, err := newEngine(p.chunkSize, p.pool.cacheFor(cacheDecode))
	if err != nil {
		cancel()
		return nil, err
	}

	sr := &streamReader{
		inner:  NewChannelReader(ctx, decCh, nil),
		cancel: cancel,
		errCh:  errCh,
		engine: engine,
	}

	sr.wg.Add(2)

	go func() {
		defer sr.wg.Done()
		defer close(rawCh)
		ReadStage(ctx, r, rawCh, errCh, p.pool.cacheFor(cacheRead))
	}()

	go func() {
		defer sr.wg.Done()
		defer close(decCh)
		DecodeStage(ctx, engine, rawCh, decCh, errCh, p.pool.cacheFor(cacheDecode), nil)
	}()

	return sr, nil
}

// countingReader tracks compressed bytes consumed from the source.
type countingReader struct {
	r io.Reader
	n uint64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += uint64(n)
	return n, err
}
