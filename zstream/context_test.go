package zstream

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gzipBytes(t *testing.T, payload []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

func testPayload(size int) []byte {
	payload := make([]byte, size)
	for i := range payload {
		payload[i] = byte("the quick brown fox jumps over the lazy dog "[i%44])
	}
	return payload
}

// feedAndDrain drives a context over compressed input in feedSize pieces
// and collects all decompressed output until the end of stream.
func feedAndDrain(t *testing.T, c *Context, compressed []byte, feedSize int) []byte {
	t.Helper()

	var out bytes.Buffer
	dst := make([]byte, c.chunkSize)

	for off := 0; off < len(compressed); {
		end := off + feedSize
		if end > len(compressed) {
			end = len(compressed)
		}
		require.NoError(t, c.Write(compressed[off:end]))
		off = end

		for {
			n, err := c.Read(dst)
			if n > 0 {
				out.Write(dst[:n])
			}
			if err == io.EOF {
				return out.Bytes()
			}
			require.NoError(t, err)
			if n == 0 {
				break // starved, stage the next piece
			}
		}
	}

	t.Fatal("input exhausted before end of stream")
	return nil
}

func TestNewContextInvalidChunkSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		c, err := NewContext(size)
		assert.Nil(t, c)
		assert.ErrorIs(t, err, ErrInit)
	}
}

func TestContextRoundTrip(t *testing.T) {
	payload := testPayload(4096)
	compressed := gzipBytes(t, payload)

	c, err := NewContext(512)
	require.NoError(t, err)
	defer c.Close()

	out := feedAndDrain(t, c, compressed, len(compressed))
	assert.Equal(t, payload, out)
}

func TestContextSplitFeeds(t *testing.T) {
	payload := testPayload(8192)
	compressed := gzipBytes(t, payload)

	for _, feedSize := range []int{1, 7, 100, len(compressed) - 1} {
		c, err := NewContext(1024)
		require.NoError(t, err)

		out := feedAndDrain(t, c, compressed, feedSize)
		assert.Equal(t, payload, out, "feed size %d", feedSize)

		require.NoError(t, c.Close())
	}
}

func TestContextReadBeforeWrite(t *testing.T) {
	c, err := NewContext(512)
	require.NoError(t, err)
	defer c.Close()

	// nothing staged yet: Read must report starvation, not block
	n, err := c.Read(make([]byte, 512))
	assert.Zero(t, n)
	assert.NoError(t, err)
}

func TestContextCorruptHeader(t *testing.T) {
	compressed := gzipBytes(t, testPayload(1024))
	compressed[0] ^= 0xff

	c, err := NewContext(512)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Write(compressed))

	dst := make([]byte, 512)
	for {
		n, err := c.Read(dst)
		if err != nil {
			assert.ErrorIs(t, err, ErrData)
			break
		}
		require.NotZero(t, n, "decoder asked for more input on corrupt data")
	}

	// context is unusable after the failure
	err = c.Write(compressed)
	assert.ErrorIs(t, err, ErrState)
}

func TestContextCorruptChecksum(t *testing.T) {
	compressed := gzipBytes(t, testPayload(2048))
	compressed[len(compressed)-1] ^= 0xff

	c, err := NewContext(512)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Write(compressed))

	dst := make([]byte, 512)
	var sawErr error
	for sawErr == nil {
		_, sawErr = c.Read(dst)
	}
	assert.ErrorIs(t, sawErr, ErrData)
}

func TestContextWriteAfterEnd(t *testing.T) {
	payload := testPayload(256)
	compressed := gzipBytes(t, payload)

	c, err := NewContext(512)
	require.NoError(t, err)
	defer c.Close()

	out := feedAndDrain(t, c, compressed, len(compressed))
	assert.Equal(t, payload, out)

	err = c.Write([]byte("more"))
	assert.ErrorIs(t, err, ErrState)

	_, err = c.Read(make([]byte, 512))
	assert.ErrorIs(t, err, ErrState)
}

func TestContextReset(t *testing.T) {
	first := testPayload(1024)
	second := testPayload(3000)

	c, err := NewContext(512)
	require.NoError(t, err)
	defer c.Close()

	out := feedAndDrain(t, c, gzipBytes(t, first), 64)
	assert.Equal(t, first, out)

	require.NoError(t, c.Reset())

	out = feedAndDrain(t, c, gzipBytes(t, second), 64)
	assert.Equal(t, second, out)
}

func TestContextResetMidStream(t *testing.T) {
	c, err := NewContext(512)
	require.NoError(t, err)
	defer c.Close()

	err = c.Reset()
	assert.ErrorIs(t, err, ErrState)
}

func TestContextClose(t *testing.T) {
	c, err := NewContext(512)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close()) // idempotent

	assert.ErrorIs(t, c.Write([]byte("x")), ErrClosed)

	_, err = c.Read(make([]byte, 512))
	assert.ErrorIs(t, err, ErrClosed)

	assert.ErrorIs(t, c.Reset(), ErrClosed)
}
