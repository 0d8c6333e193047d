package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnitPoolDecode(t *testing.T) {
	pool, err := NewUnitPool(1024, 4, 0)
	require.NoError(t, err)

	const units = 20

	payloads := make([][]byte, units)
	results := make([]chan UnitResult, units)

	for i := range payloads {
		payloads[i] = testPayload(500 + i*37)
		results[i] = make(chan UnitResult, 1)

		err := pool.Submit(context.Background(), UnitWork{
			Unit: gzipBytes(t, payloads[i]),
			Done: results[i],
		})
		require.NoError(t, err)
	}

	for i := range results {
		res := <-results[i]
		require.NoError(t, res.Err, "unit %d", i)
		assert.Equal(t, payloads[i], res.Decoded, "unit %d", i)
	}

	assert.Empty(t, pool.Shutdown())
}

func TestUnitPoolTruncatedUnit(t *testing.T) {
	pool, err := NewUnitPool(1024, 1, 0)
	require.NoError(t, err)

	truncated := gzipBytes(t, testPayload(8 * 1024))
	truncated = truncated[:len(truncated)/2]

	done := make(chan UnitResult, 1)
	require.NoError(t, pool.Submit(context.Background(), UnitWork{Unit: truncated, Done: done}))

	res := <-done
	assert.ErrorIs(t, res.Err, ErrIncomplete)

	// the dangling half-stream must not leak into the next unit
	payload := testPayload(1000)
	done = make(chan UnitResult, 1)
	require.NoError(t, pool.Submit(context.Background(), UnitWork{Unit: gzipBytes(t, payload), Done: done}))

	res = <-done
	require.NoError(t, res.Err)
	assert.Equal(t, payload, res.Decoded)

	errs := pool.Shutdown()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrIncomplete)
}

// submissions racing a shutdown must fail cleanly with ErrEngineClosed,
// never panic with a send on the closed work channel.
func TestUnitPoolShutdownDuringSubmit(t *testing.T) {
	unit := gzipBytes(t, testPayload(64))

	for round := 0; round < 25; round++ {
		pool, err := NewUnitPool(1024, 2, 1)
		require.NoError(t, err)

		var wg sync.WaitGroup
		start := make(chan struct{})

		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start

				err := pool.Submit(context.Background(), UnitWork{
					Unit: unit,
					Done: make(chan UnitResult, 1),
				})
				if err != nil {
					assert.ErrorIs(t, err, ErrEngineClosed)
				}
			}()
		}

		close(start)
		pool.Shutdown()
		wg.Wait()
	}
}

func TestUnitPoolSubmitAfterShutdown(t *testing.T) {
	pool, err := NewUnitPool(1024, 2, 0)
	require.NoError(t, err)

	pool.Shutdown()

	err = pool.Submit(context.Background(), UnitWork{Done: make(chan UnitResult, 1)})
	assert.ErrorIs(t, err, ErrEngineClosed)
}

func TestUnitPoolSubmitCanceled(t *testing.T) {
	// single worker wedged on a slow queue: fill the queue, then cancel
	pool, err := NewUnitPool(1024, 1, 1)
	require.NoError(t, err)
	defer pool.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// submissions race worker pickup, so only the error type is asserted
	for i := 0; ; i++ {
		err := pool.Submit(ctx, UnitWork{
			Unit: gzipBytes(t, testPayload(100)),
			Done: make(chan UnitResult, 1),
		})
		if err != nil {
			assert.ErrorIs(t, err, context.Canceled)
			break
		}
		require.Less(t, i, 100, fmt.Sprintf("queue never filled after %d submissions", i))
	}
}
