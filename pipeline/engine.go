package pipeline

import (
	"io"
	"sync/atomic"

	"github.com/ax-x2/gzdec/go/zstream"
)

// Engine drives one decompression context over arbitrarily large input by
// feeding and draining it in fixed-size chunks, accumulating output in an
// outputChain and linearizing the chain into the final result.
//
// thread safety: the context carries mutable cross-call decode state, so
// one decode runs to completion before another may begin. Concurrent calls
// fail fast with ErrBusy instead of corrupting both streams; callers that
// want parallelism use one engine per stream (see UnitPool).
type Engine struct {
	chunkSize int
	cache     *bufferCache
	ctx       *zstream.Context
	inChunk   []byte // reused input staging buffer, one feed at a time
	outChunk  []byte // reused drain buffer, one drain step at a time
	busy      atomic.Bool
	closed    bool
}

// NewEngine creates an engine with its own buffer cache. chunkSize of 0
// selects zstream.DefaultChunkSize; a negative size fails with
// zstream.ErrInit. Context allocation failure is fatal to engine startup.
func NewEngine(chunkSize int) (*Engine, error) {
	if chunkSize == 0 {
		chunkSize = zstream.DefaultChunkSize
	}
	return newEngine(chunkSize, newBufferCache(chunkSize))
}

// newEngine wires an engine to a caller-owned cache (pipeline stages hand
// each goroutine its dedicated cache).
func newEngine(chunkSize int, cache *bufferCache) (*Engine, error) {
	ctx, err := zstream.NewContext(chunkSize)
	if err != nil {
		return nil, err
	}

	return &Engine{
		chunkSize: chunkSize,
		cache:     cache,
		ctx:       ctx,
		inChunk:   make([]byte, chunkSize),
		outChunk:  make([]byte, chunkSize),
	}, nil
}

// Decode decompresses one arrived unit of gzip input and returns the
// equivalent uncompressed bytes.
//
// A nil error means the stream's terminal marker was observed and the
// checksum verified; the engine is then ready for the next independent
// stream. If all input was consumed without the terminal marker the
// decoded-so-far bytes are returned with ErrIncomplete and the context
// stays mid-stream, so a following call continues the same logical stream.
// Data, resource and state errors abort the in-flight decode: partial
// output is released, the context is torn down, and the next call starts
// fresh.
func (e *Engine) Decode(src []byte) ([]byte, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer e.busy.Store(false)

	if e.closed {
		return nil, ErrEngineClosed
	}
	if e.ctx == nil {
		// previous unit tore the context down; start fresh
		ctx, err := zstream.NewContext(e.chunkSize)
		if err != nil {
			return nil, err
		}
		e.ctx = ctx
	}

	chain := newOutputChain(e.cache)
	remaining := len(src)
	ended := false

feed:
	for remaining > 0 {
		// remaining, not the loop count, decides when feeding stops
		n := copy(e.inChunk, src[len(src)-remaining:])
		remaining -= n

		if err := e.ctx.Write(e.inChunk[:n]); err != nil {
			chain.release()
			return nil, e.abort(err)
		}

		for {
			produced, err := e.ctx.Read(e.outChunk)
			if produced > 0 {
				chain.append(e.outChunk[:produced])
			}
			if err == io.EOF {
				ended = true
				break feed
			}
			if err != nil {
				chain.release()
				return nil, e.abort(err)
			}
			if produced == 0 {
				continue feed // needs more input
			}
			// output step produced bytes; keep draining this feed
		}
	}

	out := chain.linearize()

	if !ended {
		return out, ErrIncomplete
	}

	// rearm the context for the next independent stream
	if err := e.ctx.Reset(); err != nil {
		return out, e.abort(err)
	}

	return out, nil
}

// abort finalizes the in-flight context after an unrecoverable error; the
// next Decode builds a fresh one.
func (e *Engine) abort(err error) error {
	_ = e.ctx.Close()
	e.ctx = nil
	return err
}

// Discard drops any mid-stream state without closing the engine. The next
// Decode starts a fresh context. Used when a caller decides a partially
// fed stream will never be completed.
func (e *Engine) Discard() {
	if !e.busy.CompareAndSwap(false, true) {
		return
	}
	defer e.busy.Store(false)

	if e.ctx != nil {
		_ = e.ctx.Close()
		e.ctx = nil
	}
}

// Close finalizes the engine's context. Further Decode calls report
// ErrEngineClosed.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true

	if e.ctx != nil {
		_ = e.ctx.Close()
		e.ctx = nil
	}

	return nil
}
