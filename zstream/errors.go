package zstream

import "errors"

// sentinel errors for the decode context.
// wrap with fmt.Errorf("%w: ...") when detail is available.
var (
	// ErrInit means the context could not be configured; fatal to the caller.
	ErrInit = errors.New("zstream: init failed")
	// ErrData means the compressed bytes are malformed or truncated, or the
	// trailing checksum did not match.
	ErrData = errors.New("zstream: corrupt gzip data")
	// ErrResource means the decompressor could not allocate working memory.
	// The pure-Go inflate primitive does not report allocation failure, so
	// this is reserved for alternative backends; the abort policy treats it
	// exactly like ErrData.
	ErrResource = errors.New("zstream: decompressor out of memory")
	// ErrState means the context was driven inconsistently, e.g. fed after
	// the stream already ended, or the decoder state machine broke.
	ErrState = errors.New("zstream: inconsistent decoder state")
	// ErrClosed is returned by any operation on a finalized context.
	ErrClosed = errors.New("zstream: context closed")
)
