// Package zstream drives a gzip inflate state machine in explicit
// feed/drain steps.
//
// A Context owns the persistent decoder state (window, partial symbol
// state, checksum) across feeds, so one logical gzip stream can be pushed
// through it in arbitrarily sized pieces. The pure-Go inflate primitive is
// pull-based, so the Context isolates it in a goroutine behind a blocking
// chunk source; callers see the same staged-write/drained-read contract as
// a zlib push decoder.
package zstream

// DefaultChunkSize is the reference capacity for input feeds and output
// drains. 256KB keeps per-step copies well above the 32KB deflate window.
const DefaultChunkSize = 256 * 1024
