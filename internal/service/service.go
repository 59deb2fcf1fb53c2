// Package service composes a decoder.Stream with a message producer: each step
// races the next decoded item against the next produced message and handles
// whichever is ready first.
package service

import (
	"context"
	"time"
)

// Consumer handles decoded items.
type Consumer[M any] interface {
	Consume(M)
}

// Producer produces outbound messages. Produce must return promptly once ctx
// is done.
type Producer[M any] interface {
	Produce(ctx context.Context) (M, error)
}

// ConsumerFunc adapts a function to Consumer.
type ConsumerFunc[M any] func(M)

// Consume calls f(m).
func (f ConsumerFunc[M]) Consume(m M) { f(m) }

// ProducerFunc adapts a function to Producer.
type ProducerFunc[M any] func(ctx context.Context) (M, error)

// Produce calls f(ctx).
func (f ProducerFunc[M]) Produce(ctx context.Context) (M, error) { return f(ctx) }

// Idle returns a producer that never produces. A runner with an idle producer
// only decodes.
func Idle[M any]() Producer[M] {
	return ProducerFunc[M](func(ctx context.Context) (M, error) {
		<-ctx.Done()
		var zero M
		return zero, ctx.Err()
	})
}

// Ticker produces msg once per interval.
type Ticker[M any] struct {
	ticker *time.Ticker
	msg    M
}

// NewTicker returns a producer emitting msg every interval.
// Call Stop to release the underlying timer.
func NewTicker[M any](interval time.Duration, msg M) *Ticker[M] {
	return &Ticker[M]{ticker: time.NewTicker(interval), msg: msg}
}

// Produce waits for the next tick.
func (t *Ticker[M]) Produce(ctx context.Context) (M, error) {
	select {
	case <-t.ticker.C:
		return t.msg, nil
	case <-ctx.Done():
		var zero M
		return zero, ctx.Err()
	}
}

// Stop stops the ticker.
func (t *Ticker[M]) Stop() {
	t.ticker.Stop()
}
