package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/ax-x2/gzdec/go/zstream"
)

// UnitWork is a self-contained gzip unit submitted to a UnitPool. The
// result is delivered on Done, which must have capacity 1 so workers
// never block on delivery.
type UnitWork struct {
	Unit []byte
	Done chan UnitResult
}

// UnitResult is the outcome of decoding one unit.
type UnitResult struct {
	Decoded []byte
	Err     error
}

// UnitPool decodes independent gzip units concurrently. Each worker owns
// its own Engine, hence its own decompression context, so units decode in
// parallel without shared state. Units are assumed self-contained; a unit
// that ends mid-stream yields ErrIncomplete and the worker discards the
// dangling context before the next unit.
type UnitPool struct {
	workCh chan UnitWork
	wg     sync.WaitGroup

	// mu orders submissions against shutdown: submitters hold the read
	// side across the workCh send, so Shutdown's close of workCh cannot
	// interleave with an in-flight send. Workers never take mu; their
	// error ledger has its own lock so they keep draining the queue while
	// a blocked submitter holds the read side.
	mu      sync.RWMutex
	stopped bool

	errMu sync.Mutex
	errs  []error
}

// NewUnitPool starts workers goroutines, each with a private engine of
// the given chunk size. queueDepth bounds pending submissions; 0 selects
// workers*2.
func NewUnitPool(chunkSize, workers, queueDepth int) (*UnitPool, error) {
	if chunkSize == 0 {
		chunkSize = zstream.DefaultChunkSize
	}
	if workers <= 0 {
		workers = 1
	}
	if queueDepth <= 0 {
		queueDepth = workers * 2
	}

	pool := &UnitPool{
		workCh: make(chan UnitWork, queueDepth),
	}

	shared := NewBufferPool(chunkSize)

	for i := 0; i < workers; i++ {
		engine, err := newEngine(chunkSize, shared.cacheFor(cacheWorkerBase+i))
		if err != nil {
			close(pool.workCh)
			pool.wg.Wait()
			return nil, err
		}

		pool.wg.Add(1)
		go pool.worker(engine)
	}

	return pool, nil
}

func (p *UnitPool) worker(engine *Engine) {
	defer p.wg.Done()
	defer engine.Close()

	for work := range p.workCh {
		decoded, err := engine.Decode(work.Unit)
		if err != nil {
			p.recordErr(err)
			if errors.Is(err, ErrIncomplete) {
				// the unit was truncated; do not let its dangling state
				// bleed into the next unit
				engine.Discard()
			}
		}

		work.Done <- UnitResult{Decoded: decoded, Err: err}
	}
}

// Submit queues a unit for decoding. It blocks when the queue is full and
// honors ctx cancellation while waiting.
func (p *UnitPool) Submit(ctx context.Context, work UnitWork) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrEngineClosed
	}

	select {
	case p.workCh <- work:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting work, waits for in-flight units to finish and
// returns the errors recorded during the pool's lifetime.
func (p *UnitPool) Shutdown() []error {
	p.mu.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.workCh)
	}
	p.mu.Unlock()

	p.wg.Wait()

	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.errs
}

func (p *UnitPool) recordErr(err error) {
	p.errMu.Lock()
	p.errs = append(p.errs, err)
	p.errMu.Unlock()
}
