package pipeline

// outputChain accumulates decompressed bytes across an unbounded number of
// drain steps without knowing the final size up front. Bytes are copied
// into fixed-capacity blocks borrowed from a bufferCache, appended by
// index in stream order, and linearized into one exact-size buffer at the
// end.
//
// invariant: every block except the last is completely full, so the chain
// carries at most one partially-filled block of slack.
type outputChain struct {
	cache  *bufferCache
	blocks [][]byte // len(block) == valid bytes; cap == pooled block size
	total  int
}

func newOutputChain(cache *bufferCache) *outputChain {
	return &outputChain{cache: cache}
}

// append copies p into the chain, spilling into new blocks as needed.
func (oc *outputChain) append(p []byte) {
	for len(p) > 0 {
		if n := len(oc.blocks); n == 0 || len(oc.blocks[n-1]) == cap(oc.blocks[n-1]) {
			oc.blocks = append(oc.blocks, oc.cache.Get()[:0])
		}

		last := len(oc.blocks) - 1
		block := oc.blocks[last]

		n := cap(block) - len(block)
		if n > len(p) {
			n = len(p)
		}

		oc.blocks[last] = append(block, p[:n]...)
		oc.total += n
		p = p[n:]
	}
}

// len returns the running total of appended bytes.
func (oc *outputChain) len() int {
	return oc.total
}

// linearize copies every block's valid bytes, in order, into a single
// buffer sized exactly to the total, then releases the blocks.
func (oc *outputChain) linearize() []byte {
	out := make([]byte, 0, oc.total)
	for _, block := range oc.blocks {
		out = append(out, block...)
	}
	oc.release()
	return out
}

// release returns every block to the pool. Safe on an empty chain; used
// directly on abort paths.
func (oc *outputChain) release() {
	for _, block := range oc.blocks {
		oc.cache.Put(block)
	}
	oc.blocks = nil
	oc.total = 0
}
