package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// ChunkSink receives decoded output during a streaming decode.
//
// - OnDecodedChunk receives a borrowed slice from the buffer pool
// - callbacks *must not* retain references to chunk []byte after return
// - If data needs to be kept, copy it before returning
type ChunkSink interface {
	// OnDecodedChunk is called for each chunk of decompressed bytes, in
	// stream order. Returning an error aborts the pipeline.
	OnDecodedChunk(chunk []byte) error
}

// ChunkSinkFunc adapts a plain function to the ChunkSink interface.
type ChunkSinkFunc func(chunk []byte) error

// OnDecodedChunk implements ChunkSink.
func (f ChunkSinkFunc) OnDecodedChunk(chunk []byte) error {
	return f(chunk)
}

// DecodeStats tracks totals from a streaming decode run.
type DecodeStats struct {
	BytesIn  uint64
	BytesOut uint64
	Units    uint64
	Duration time.Duration
}

// sentinel errors for common error cases
var (
	ErrIncomplete   = errors.New("incomplete gzip stream")
	ErrBusy         = errors.New("decode already in progress")
	ErrEngineClosed = errors.New("engine closed")
	ErrRead         = errors.New("read error")
	ErrCallback     = errors.New("callback error")
	ErrHTTPRequest  = errors.New("HTTP request failed")
	ErrURLParse     = errors.New("URL parse error")
)

// UnitTooLargeError is returned when an input unit exceeds the configured
// size limit.
type UnitTooLargeError struct {
	Size uint64
	Max  uint64
}

func (e *UnitTooLargeError) Error() string {
	return fmt.Sprintf("input unit too large: %d bytes (max: %d)", e.Size, e.Max)
}
