package pipeline

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ElementConfig configures a decode element.
type ElementConfig struct {
	// ChunkSize is the feed/drain chunk capacity; 0 selects the default.
	ChunkSize int
	// Verbose makes the element log one line per processed unit. Purely
	// informational, no effect on decode behavior.
	Verbose bool
	// MaxUnitSize rejects oversized input units; 0 means no limit.
	MaxUnitSize uint64
	// Metrics is optional; nil records nothing.
	Metrics *Metrics
}

// Element is the unit-processing decode wrapper: it receives one arrived
// data unit at a time, hands the byte range to the engine, and forwards the
// decoded buffer downstream. Any non-ok decode status becomes a stream
// error and the unit is not forwarded, truncation (ErrIncomplete)
// included. Units are expected to be self-contained streams; after a
// failed unit the next one decodes against fresh decoder state.
//
// Callers that need one stream spread across many input buffers use
// Pipeline or the engine directly, which carry the context mid-stream.
type Element struct {
	log     logrus.FieldLogger
	config  ElementConfig
	engine  *Engine
	metrics *Metrics
}

// NewElement creates a decode element with its own engine.
func NewElement(log logrus.FieldLogger, config ElementConfig) (*Element, error) {
	if log == nil {
		log = logrus.New()
	}

	engine, err := NewEngine(config.ChunkSize)
	if err != nil {
		return nil, err
	}

	return &Element{
		log:     log,
		config:  config,
		engine:  engine,
		metrics: config.Metrics,
	}, nil
}

// Process decodes one arrived data unit and returns the decompressed
// equivalent.
func (el *Element) Process(unit []byte) ([]byte, error) {
	if el.config.MaxUnitSize > 0 && uint64(len(unit)) > el.config.MaxUnitSize {
		el.metrics.IncErrors()
		return nil, &UnitTooLargeError{Size: uint64(len(unit)), Max: el.config.MaxUnitSize}
	}

	if el.config.Verbose {
		el.log.WithField("size", len(unit)).Info("have data unit")
	}

	el.metrics.IncUnits()
	el.metrics.AddBytesIn(len(unit))

	decoded, err := el.engine.Decode(unit)
	if err != nil {
		el.metrics.IncErrors()
		// a truncated unit leaves the context mid-stream; drop it so the
		// next unit starts fresh
		el.engine.Discard()
		return nil, errors.Wrap(err, "decode unit")
	}

	el.metrics.AddBytesOut(len(decoded))

	if el.config.Verbose {
		el.log.WithFields(logrus.Fields{
			"in":  len(unit),
			"out": len(decoded),
		}).Info("decoded data unit")
	}

	return decoded, nil
}

// Run is the channel-stage form of Process: units in, decoded buffers out.
// A failed unit is surfaced on errCh and not forwarded; the element keeps
// processing subsequent units.
func (el *Element) Run(ctx context.Context, in <-chan []byte, out chan<- []byte, errCh chan<- error) {
	for {
		select {
		case unit, ok := <-in:
			if !ok {
				return // upstream closed
			}

			decoded, err := el.Process(unit)
			if err != nil {
				el.log.WithError(err).Warn("dropping undecodable unit")
				select {
				case errCh <- err:
				case <-ctx.Done():
					return
				}
				continue
			}

			select {
			case out <- decoded:
			case <-ctx.Done():
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// Close releases the element's engine.
func (el *Element) Close() error {
	return el.engine.Close()
}
