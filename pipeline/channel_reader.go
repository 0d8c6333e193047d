package pipeline

import (
	"context"
	"io"
	"sync"
)

// ChannelReader adapts a channel of byte buffers into an io.Reader.
// Bridges the channel-based pipeline stages to consumers that expect a
// plain stream.
type ChannelReader struct {
	ctx     context.Context
	ch      <-chan []byte
	cache   *bufferCache // nil when buffers are not pool-owned
	current []byte       // partially consumed buffer
	offset  int
	err     error
}

// NewChannelReader wraps ch as an io.Reader. If cache is non-nil, fully
// consumed buffers are returned to it.
func NewChannelReader(ctx context.Context, ch <-chan []byte, cache *bufferCache) *ChannelReader {
	return &ChannelReader{
		ctx:   ctx,
		ch:    ch,
		cache: cache,
	}
}

func (r *ChannelReader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}

	for r.offset >= len(r.current) {
		if r.current != nil && r.cache != nil {
			r.cache.Put(r.current)
		}
		r.current = nil
		r.offset = 0

		select {
		case buf, ok := <-r.ch:
			if !ok {
				r.err = io.EOF
				return 0, r.err
			}
			r.current = buf
		case <-r.ctx.Done():
			r.err = r.ctx.Err()
			return 0, r.err
		}
	}

	n := copy(p, r.current[r.offset:])
	r.offset += n
	return n, nil
}

// streamReader is the io.ReadCloser returned by Pipeline.OpenReader. It
// owns the stage goroutines and the engine, and replaces a bare io.EOF
// with the first stage error when one was reported.
type streamReader struct {
	inner  *ChannelReader
	cancel context.CancelFunc
	errCh  chan error
	engine *Engine
	wg     sync.WaitGroup
	once   sync.Once
	err    error
}

func (s *streamReader) Read(p []byte) (int, error) {
	n, err := s.inner.Read(p)
	if err == io.EOF {
		s.finish()
		if s.err != nil {
			return n, s.err
		}
	}
	return n, err
}

func (s *streamReader) Close() error {
	s.finish()
	return nil
}

// finish tears the stages down exactly once and latches the first stage
// error, if any.
func (s *streamReader) finish() {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
		s.engine.Close()

		select {
		case err := <-s.errCh:
			s.err = err
		default:
		}
	})
}
