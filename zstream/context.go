package zstream

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

// Context decompresses one gzip stream fed to it in chunks.
//
// - Write() stages compressed input for the decoder
// - Read() drains decompressed output produced from staged input
// - each instance is single-flight (one decode in progress at a time)
//
// Read reports progress the same way a staged decompressor does:
// (n>0, nil) output produced, possibly more pending; (0, nil) the decoder
// needs more input; (n, io.EOF) the stream's end marker was seen and the
// trailing checksum verified; any other error is unrecoverable for this
// stream.
//
// critical: Write may only be called when the context is starved, i.e.
// before the first Read or after a Read returned (0, nil). Staging more
// input while drained output is still pending corrupts the feed/drain
// handshake.
type Context struct {
	chunkSize int

	in    chan []byte     // staged input chunks
	req   chan struct{}   // decoder requests more input
	out   chan drainEvent // drained output steps
	free  chan []byte     // recycled drain buffers
	reset chan struct{}   // rearm after a clean end of stream
	quit  chan struct{}   // closed on finalize

	// caller-side bookkeeping, valid under the single-flight contract
	starved bool // input request consumed, decoder waiting on Write
	ended   bool // io.EOF delivered
	failed  bool // unrecoverable error delivered

	closed    bool
	closeOnce sync.Once
}

// drainEvent is one step of decoder output. err is io.EOF at end of
// stream, or an already-classified unrecoverable error.
type drainEvent struct {
	buf []byte
	n   int
	err error
}

// NewContext allocates the persistent decoder state for gzip-framed input
// (header auto-detected, raw deflate rejected). chunkSize bounds a single
// drain step. The context must be finalized with Close exactly once.
func NewContext(chunkSize int) (*Context, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: invalid chunk size %d", ErrInit, chunkSize)
	}

	c := &Context{
		chunkSize: chunkSize,
		in:        make(chan []byte),
		req:       make(chan struct{}),
		out:       make(chan drainEvent),
		free:      make(chan []byte, 2),
		reset:     make(chan struct{}, 1),
		quit:      make(chan struct{}),
	}

	// two drain buffers rotate between the decoder goroutine and Read
	c.free <- make([]byte, chunkSize)
	c.free <- make([]byte, chunkSize)

	go c.run()

	return c, nil
}

// Write stages p as pending input. The byte slice is only referenced until
// the decoder reports it starved again, so callers may reuse the backing
// array across feeds.
func (c *Context) Write(p []byte) error {
	switch {
	case c.closed:
		return ErrClosed
	case c.failed:
		return fmt.Errorf("%w: context already failed", ErrState)
	case c.ended:
		return fmt.Errorf("%w: write after end of stream", ErrState)
	}
	if len(p) == 0 {
		return nil
	}

	if !c.starved {
		select {
		case <-c.req:
		case <-c.quit:
			return ErrClosed
		}
	}
	c.starved = false

	select {
	case c.in <- p:
		return nil
	case <-c.quit:
		return ErrClosed
	}
}

// Read drains up to len(dst) decompressed bytes. dst must be at least
// chunkSize long or drained bytes would be truncated.
func (c *Context) Read(dst []byte) (int, error) {
	switch {
	case c.closed:
		return 0, ErrClosed
	case c.failed:
		return 0, fmt.Errorf("%w: context already failed", ErrState)
	case c.ended:
		return 0, fmt.Errorf("%w: read after end of stream", ErrState)
	}

	if c.starved {
		return 0, nil // input already requested, stage it first
	}

	select {
	case <-c.req:
		c.starved = true
		return 0, nil

	case ev := <-c.out:
		n := copy(dst, ev.buf[:ev.n])
		if ev.buf != nil {
			c.free <- ev.buf
		}
		switch {
		case ev.err == io.EOF:
			c.ended = true
			return n, io.EOF
		case ev.err != nil:
			c.failed = true
			return n, ev.err
		}
		return n, nil

	case <-c.quit:
		return 0, ErrClosed
	}
}

// Reset rearms a cleanly ended context for the next independent gzip
// stream, reusing the allocated decoder state. Only legal after Read
// returned io.EOF.
func (c *Context) Reset() error {
	switch {
	case c.closed:
		return ErrClosed
	case c.failed:
		return fmt.Errorf("%w: context already failed", ErrState)
	case !c.ended:
		return fmt.Errorf("%w: reset mid-stream", ErrState)
	}

	c.ended = false
	c.starved = false
	c.reset <- struct{}{}

	return nil
}

// Close releases the context. Safe to call more than once; every other
// operation afterwards reports ErrClosed.
func (c *Context) Close() error {
	c.closeOnce.Do(func() {
		c.closed = true
		close(c.quit)
	})
	return nil
}

// run is the decoder goroutine. It owns the gzip reader and blocks on the
// chunk source whenever the primitive wants bytes the caller has not fed
// yet. One iteration of the outer loop decodes one gzip member.
func (c *Context) run() {
	src := &chunkSource{req: c.req, in: c.in, quit: c.quit}

	var zr *gzip.Reader
	for {
		if zr == nil {
			r, err := gzip.NewReader(src)
			if err != nil {
				c.emit(drainEvent{err: classify(err)})
				return
			}
			zr = r
		} else {
			// trailing bytes of the previous member are discarded
			src.rest = nil
			if err := zr.Reset(src); err != nil {
				c.emit(drainEvent{err: classify(err)})
				return
			}
		}
		// one member per stream; Reset rearms for the next one
		zr.Multistream(false)

		if !c.drain(zr) {
			return
		}

		select {
		case <-c.reset:
		case <-c.quit:
			return
		}
	}
}

// drain pumps the gzip reader until end of stream or failure. Returns true
// only on a clean end, leaving the goroutine eligible for Reset.
func (c *Context) drain(zr *gzip.Reader) bool {
	for {
		var buf []byte
		select {
		case buf = <-c.free:
		case <-c.quit:
			return false
		}

		n, err := zr.Read(buf)
		if n == 0 && err == nil {
			c.free <- buf
			continue
		}

		ev := drainEvent{buf: buf, n: n}
		if err != nil && err != io.EOF {
			ev.err = classify(err)
		} else {
			ev.err = err
		}

		if !c.emit(ev) {
			return false
		}
		if ev.err == io.EOF {
			return true
		}
		if ev.err != nil {
			return false
		}
	}
}

func (c *Context) emit(ev drainEvent) bool {
	select {
	case c.out <- ev:
		return true
	case <-c.quit:
		return false
	}
}

// classify maps primitive errors onto the package taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrClosed) {
		return ErrClosed
	}
	if errors.Is(err, gzip.ErrHeader) || errors.Is(err, gzip.ErrChecksum) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrData, err)
	}

	var corrupt flate.CorruptInputError
	if errors.As(err, &corrupt) {
		return fmt.Errorf("%w: %v", ErrData, err)
	}
	var internal flate.InternalError
	if errors.As(err, &internal) {
		return fmt.Errorf("%w: %v", ErrState, err)
	}

	// zlib treats anything else coming out of inflate as a data error
	return fmt.Errorf("%w: %v", ErrData, err)
}

// chunkSource adapts staged chunks to the pull interface the inflate
// primitive wants. It blocks until the caller stages more input instead of
// returning a transient error the primitive would latch. Implements
// flate.Reader so the gzip reader does not wrap it in a bufio.Reader and
// read ahead past what was actually fed.
type chunkSource struct {
	req  chan<- struct{}
	in   <-chan []byte
	quit <-chan struct{}
	rest []byte
}

func (s *chunkSource) refill() error {
	for len(s.rest) == 0 {
		select {
		case s.req <- struct{}{}:
		case <-s.quit:
			return ErrClosed
		}
		select {
		case p := <-s.in:
			s.rest = p
		case <-s.quit:
			return ErrClosed
		}
	}
	return nil
}

func (s *chunkSource) Read(p []byte) (int, error) {
	if err := s.refill(); err != nil {
		return 0, err
	}
	n := copy(p, s.rest)
	s.rest = s.rest[n:]
	return n, nil
}

func (s *chunkSource) ReadByte() (byte, error) {
	if err := s.refill(); err != nil {
		return 0, err
	}
	b := s.rest[0]
	s.rest = s.rest[1:]
	return b, nil
}
