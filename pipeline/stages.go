package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
)

// ReadStage reads from an io.Reader and pushes buffers to the output channel.
// First stage in the pipeline, reading from an HTTP response, file or pipe.
//
// ownership model: buffers are obtained from the pool and ownership is
// transferred to the next stage via channel. The next stage is responsible
// for returning the buffer to the pool.
func ReadStage(
	ctx context.Context,
	reader io.Reader,
	out chan<- []byte,
	errCh chan<- error,
	cache *bufferCache,
) {
	for {
		buf := cache.Get()

		n, err := reader.Read(buf)
		if n > 0 {
			// send only the filled portion (zero-copy slice)
			select {
			case out <- buf[:n]:
				// buffer ownership transferred to next stage
			case <-ctx.Done():
				cache.Put(buf)
				return
			}
		} else {
			cache.Put(buf)
		}

		if err == io.EOF {
			return
		}
		if err != nil {
			select {
			case errCh <- fmt.Errorf("%w: %v", ErrRead, err):
			case <-ctx.Done():
			}
			return
		}
	}
}

// DecodeStage decompresses chunks arriving from the read stage and sends
// decoded output downstream. One engine, hence one decompression context,
// carries the stream state across chunk boundaries: a chunk that ends
// mid-stream is simply in progress, and the next chunk continues it.
//
// When the input channel closes before the stream's terminal marker was
// seen, the truncation is reported as ErrIncomplete rather than silently
// forwarding a partial stream as success. After a completed stream the
// engine is rearmed, so a new stream starting on the next chunk decodes
// as well; completed counts the streams that ended cleanly.
func DecodeStage(
	ctx context.Context,
	engine *Engine,
	in <-chan []byte,
	out chan<- []byte,
	errCh chan<- error,
	cache *bufferCache,
	completed *atomic.Uint64,
) {
	// no input at all is a truncated stream, not an empty success
	clean := false

	for {
		select {
		case chunk, ok := <-in:
			if !ok {
				if !clean {
					select {
					case errCh <- ErrIncomplete:
					case <-ctx.Done():
					}
				}
				return
			}

			decoded, err := engine.Decode(chunk)
			cache.Put(chunk) // engine copied what it needed

			switch {
			case err == nil:
				clean = true
				if completed != nil {
					completed.Add(1)
				}
			case errors.Is(err, ErrIncomplete):
				clean = false // mid-stream, later chunks continue it
			default:
				select {
				case errCh <- err:
				case <-ctx.Done():
				}
				return
			}

			if len(decoded) > 0 {
				select {
				case out <- decoded:
				case <-ctx.Done():
					return
				}
			}

		case <-ctx.Done():
			return
		}
	}
}
