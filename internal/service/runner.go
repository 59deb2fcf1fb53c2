package service

import (
	"context"
	"errors"

	"github.com/dray-io/wireframe/internal/decoder"
	"github.com/dray-io/wireframe/internal/logging"
)

// Winner identifies which side of a step was handled.
type Winner int

const (
	// WinnerNone means neither side completed; the step's context ended.
	WinnerNone Winner = iota
	// WinnerConsumer means a decoded item was consumed, or decoding failed.
	WinnerConsumer
	// WinnerProducer means a produced message was emitted, or producing failed.
	WinnerProducer
)

func (w Winner) String() string {
	switch w {
	case WinnerConsumer:
		return "consumer"
	case WinnerProducer:
		return "producer"
	default:
		return "none"
	}
}

type decodeResult[T any] struct {
	item T
	err  error
}

// decodeCall is one Next call running on its own goroutine.
type decodeCall[T any] struct {
	done   chan decodeResult[T]
	cancel context.CancelFunc
}

// Runner drives a stream, a consumer and a producer.
//
// At most one Next call is in flight at any time. When a decode loses a race
// its context is canceled; a source that cannot be interrupted keeps the call
// running and the next Step waits for it rather than starting another, so no
// buffered bytes are lost or read twice.
//
// Runner is not safe for concurrent use.
type Runner[In, Out any] struct {
	stream   *decoder.Stream[In]
	consumer Consumer[In]
	producer Producer[Out]
	emit     func(Out) error
	logger   *logging.Logger

	pending *decodeCall[In]
}

// NewRunner creates a runner. emit receives every produced message.
func NewRunner[In, Out any](stream *decoder.Stream[In], c Consumer[In], p Producer[Out], emit func(Out) error) *Runner[In, Out] {
	if p == nil {
		p = Idle[Out]()
	}
	return &Runner[In, Out]{
		stream:   stream,
		consumer: c,
		producer: p,
		emit:     emit,
		logger:   logging.Discard(),
	}
}

// WithLogger sets the logger. Returns the runner for method chaining.
func (r *Runner[In, Out]) WithLogger(l *logging.Logger) *Runner[In, Out] {
	if l != nil {
		r.logger = l.WithComponent("runner")
	}
	return r
}

// Pending reports whether a decode from an earlier step is still in flight.
func (r *Runner[In, Out]) Pending() bool {
	return r.pending != nil
}

func (r *Runner[In, Out]) startDecode(ctx context.Context) *decodeCall[In] {
	dctx, cancel := context.WithCancel(ctx)
	call := &decodeCall[In]{done: make(chan decodeResult[In], 1), cancel: cancel}
	go func() {
		item, err := r.stream.Next(dctx)
		call.done <- decodeResult[In]{item: item, err: err}
	}()
	return call
}

// Step waits for whichever completes first: the next decoded item or the next
// produced message. A decoded item is passed to the consumer; a produced
// message is passed to emit. The losing side is canceled.
//
// A producer that still returns a message after losing has it emitted too, so
// completed messages are never dropped.
func (r *Runner[In, Out]) Step(ctx context.Context) (Winner, error) {
	for {
		if r.pending == nil {
			r.pending = r.startDecode(ctx)
		}
		call := r.pending

		pctx, pcancel := context.WithCancel(ctx)
		produced := make(chan produceResult[Out], 1)
		go func() {
			msg, err := r.producer.Produce(pctx)
			produced <- produceResult[Out]{msg: msg, err: err}
		}()

		select {
		case res := <-call.done:
			r.pending = nil
			call.cancel()
			pcancel()
			late := <-produced

			if res.err != nil && isCancellation(res.err) {
				if err := r.emitLate(late); err != nil {
					return WinnerProducer, err
				}
				if ctx.Err() != nil {
					return WinnerNone, ctx.Err()
				}
				// An abandoned call observed its own cancellation. Its bytes
				// stay buffered; decode again for this step.
				continue
			}
			if res.err != nil {
				if err := r.emitLate(late); err != nil {
					return WinnerProducer, err
				}
				return WinnerConsumer, res.err
			}
			r.consumer.Consume(res.item)
			return WinnerConsumer, r.emitLate(late)

		case res := <-produced:
			pcancel()
			call.cancel()
			if res.err != nil {
				if ctx.Err() != nil {
					return WinnerNone, ctx.Err()
				}
				return WinnerProducer, res.err
			}
			r.logger.Debug("producer won, decode abandoned")
			if r.emit != nil {
				if err := r.emit(res.msg); err != nil {
					return WinnerProducer, err
				}
			}
			return WinnerProducer, nil

		case <-ctx.Done():
			pcancel()
			call.cancel()
			if err := r.emitLate(<-produced); err != nil {
				return WinnerProducer, err
			}
			return WinnerNone, ctx.Err()
		}
	}
}

// emitLate emits a message a canceled producer returned anyway.
func (r *Runner[In, Out]) emitLate(res produceResult[Out]) error {
	if res.err != nil || r.emit == nil {
		return nil
	}
	return r.emit(res.msg)
}

// Run calls Step until it fails or ctx is done.
func (r *Runner[In, Out]) Run(ctx context.Context) error {
	for {
		if _, err := r.Step(ctx); err != nil {
			return err
		}
	}
}

type produceResult[T any] struct {
	msg T
	err error
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
