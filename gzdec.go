// Package gzdec provides streaming gzip decompression built around a
// persistent decompression context: input arrives in arbitrary pieces,
// output streams out as it is produced, and one logical gzip stream may
// span any number of input pieces.
package gzdec

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ax-x2/gzdec/go/pipeline"
	"github.com/ax-x2/gzdec/go/zstream"
)

// types from pipeline for public API
type (
	ChunkSink         = pipeline.ChunkSink
	ChunkSinkFunc     = pipeline.ChunkSinkFunc
	DecodeStats       = pipeline.DecodeStats
	Metrics           = pipeline.Metrics
	MetricsConfig     = pipeline.MetricsConfig
	UnitTooLargeError = pipeline.UnitTooLargeError
)

// constants
const (
	DefaultChunkSize = zstream.DefaultChunkSize
)

// errors
var (
	ErrInit         = zstream.ErrInit
	ErrData         = zstream.ErrData
	ErrResource     = zstream.ErrResource
	ErrState        = zstream.ErrState
	ErrIncomplete   = pipeline.ErrIncomplete
	ErrBusy         = pipeline.ErrBusy
	ErrEngineClosed = pipeline.ErrEngineClosed
	ErrHTTPRequest  = pipeline.ErrHTTPRequest
	ErrURLParse     = pipeline.ErrURLParse
	ErrCallback     = pipeline.ErrCallback
)

// NewMetrics creates a Prometheus metrics set for decode instrumentation.
// Register it on a registry before use; a nil or unregistered Metrics is
// inert.
func NewMetrics(config MetricsConfig) *Metrics {
	return pipeline.NewMetrics(config)
}

// StreamDecoder is the main API for streaming gzip decompression.
// uses builder pattern for configuration with sensible defaults.
type StreamDecoder struct {
	chunkSize       int
	channelCapacity int
	verbose         bool
	maxUnitSize     uint64
	log             logrus.FieldLogger
	metrics         *Metrics
	httpClient      *http.Client
}

// New creates a decoder with defaults:
// - 256KB feed/drain chunks
// - default channel capacity (12, balances throughput vs memory)
// - no unit size limit
// - no HTTP timeout (streaming)
func New() *StreamDecoder {
	return &StreamDecoder{
		chunkSize:       0, // 0 = DefaultChunkSize
		channelCapacity: 0, // 0 = use default (12)
		httpClient:      &http.Client{Timeout: 0},
	}
}

// WithChunkSize sets the feed/drain chunk capacity. Larger chunks trade
// memory for fewer context handoffs.
func (d *StreamDecoder) WithChunkSize(size int) *StreamDecoder {
	d.chunkSize = size
	return d
}

// WithChannelCapacity sets the channel buffer capacity for the pipeline.
// higher values increase throughput by reducing goroutine blocking, but
// use more memory. memory usage: capacity * chunkSize * 2 channels.
func (d *StreamDecoder) WithChannelCapacity(capacity int) *StreamDecoder {
	d.channelCapacity = capacity
	return d
}

// WithVerbose enables one log line per processed data unit.
func (d *StreamDecoder) WithVerbose(verbose bool) *StreamDecoder {
	d.verbose = verbose
	return d
}

// WithLogger sets the logger used for verbose output and warnings.
func (d *StreamDecoder) WithLogger(log logrus.FieldLogger) *StreamDecoder {
	d.log = log
	return d
}

// WithMetrics attaches a Prometheus metrics set to the decoder.
func (d *StreamDecoder) WithMetrics(m *Metrics) *StreamDecoder {
	d.metrics = m
	return d
}

// WithMaxUnitSize sets a size limit on single data units passed to
// DecodeBytes; oversized input fails with UnitTooLargeError.
func (d *StreamDecoder) WithMaxUnitSize(max uint64) *StreamDecoder {
	d.maxUnitSize = max
	return d
}

// WithHTTPClient sets custom HTTP client for DecodeFromURL.
// useful for custom timeouts, redirects, proxies, etc.
func (d *StreamDecoder) WithHTTPClient(client *http.Client) *StreamDecoder {
	d.httpClient = client
	return d
}

// DecodeBytes decompresses one self-contained gzip unit held in memory.
//
// The unit must carry a complete stream: any failure, including input
// that ends mid-stream (ErrIncomplete), yields no output bytes. For
// piecewise input use DecodeFromReader, which decodes across arbitrary
// input boundaries.
func (d *StreamDecoder) DecodeBytes(unit []byte) ([]byte, error) {
	element, err := pipeline.NewElement(d.log, pipeline.ElementConfig{
		ChunkSize:   d.chunkSize,
		Verbose:     d.verbose,
		MaxUnitSize: d.maxUnitSize,
		Metrics:     d.metrics,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create decode element")
	}
	defer element.Close()

	return element.Process(unit)
}

// DecodeFromReader streams gzip input from reader through the pipeline,
// delivering decompressed chunks to sink in stream order. Constant memory
// usage regardless of input size. sink may be nil to decode for stats
// only.
func (d *StreamDecoder) DecodeFromReader(
	ctx context.Context,
	reader io.Reader,
	sink ChunkSink,
) (*DecodeStats, error) {
	p := pipeline.NewPipeline(d.chunkSize, d.channelCapacity)

	stats, err := p.Execute(ctx, reader, sink)
	d.record(stats, err)
	return stats, err
}

// DecodeFromURL downloads and decompresses a gzip stream from a URL.
// supports HTTP/HTTPS with streaming - constant memory usage regardless
// of payload size. context allows cancellation of long-running downloads.
func (d *StreamDecoder) DecodeFromURL(
	ctx context.Context,
	url string,
	sink ChunkSink,
) (*DecodeStats, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrURLParse, err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHTTPRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrHTTPRequest, resp.StatusCode)
	}

	p := pipeline.NewPipeline(d.chunkSize, d.channelCapacity)
	stats, err := p.Execute(ctx, resp.Body, sink)
	d.record(stats, err)
	if err != nil {
		return stats, err
	}

	stats.Duration = time.Since(start)
	return stats, nil
}

// OpenReader returns an io.ReadCloser producing the decompressed stream
// from r, decoding concurrently as the caller reads. The caller must
// Close the returned reader to release the pipeline.
func (d *StreamDecoder) OpenReader(ctx context.Context, r io.Reader) (io.ReadCloser, error) {
	p := pipeline.NewPipeline(d.chunkSize, d.channelCapacity)
	return p.OpenReader(ctx, r)
}

func (d *StreamDecoder) record(stats *DecodeStats, err error) {
	if d.metrics == nil || stats == nil {
		return
	}
	d.metrics.IncUnits()
	d.metrics.AddBytesIn(int(stats.BytesIn))
	d.metrics.AddBytesOut(int(stats.BytesOut))
	if err != nil {
		d.metrics.IncErrors()
	}
}
