package decoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dray-io/wireframe/internal/logging"
	"github.com/dray-io/wireframe/internal/metrics"
)

// maxEmptyReads bounds consecutive (0, nil) reads before giving up, as bufio does.
const maxEmptyReads = 100

// aLongTimeAgo is a deadline in the past, used to interrupt a blocked read.
var aLongTimeAgo = time.Unix(1, 0)

// deadliner is implemented by sources whose blocking reads can be interrupted,
// such as net.Conn.
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

// Cursors is a snapshot of a stream's buffer bookkeeping.
// 0 <= Read <= Write <= Capacity always holds.
type Cursors struct {
	Read     int
	Write    int
	Capacity int
}

// Stream is a buffered stream decoder. It reads from src into a buffer of fixed
// capacity and yields items parsed by a Strategy.
type Stream[T any] struct {
	src      io.Reader
	strategy Strategy[T]

	buf   []byte
	read  int
	write int
	epoch uint64

	readTimeout time.Duration
	logger      *logging.Logger
	metrics     *metrics.DecoderMetrics
	framing     string
}

// New creates a Stream reading from src with a buffer of capacity bytes.
// Capacity bounds the largest item the stream can ever decode.
func New[T any](src io.Reader, strategy Strategy[T], capacity int) *Stream[T] {
	if src == nil {
		panic("decoder: nil source")
	}
	if strategy == nil {
		panic("decoder: nil strategy")
	}
	if capacity <= 0 {
		panic("decoder: capacity must be positive")
	}
	return &Stream[T]{
		src:      src,
		strategy: strategy,
		buf:      make([]byte, capacity),
		logger:   logging.Discard(),
	}
}

// WithLogger sets the logger used for compaction and overflow diagnostics.
// Returns the stream for method chaining.
func (s *Stream[T]) WithLogger(l *logging.Logger) *Stream[T] {
	if l != nil {
		s.logger = l.WithComponent("decoder")
	}
	return s
}

// WithMetrics records stream activity under the given framing label.
// Returns the stream for method chaining.
func (s *Stream[T]) WithMetrics(m *metrics.DecoderMetrics, framing string) *Stream[T] {
	s.metrics = m
	s.framing = framing
	return s
}

// WithReadTimeout sets a deadline of d before every read when the source
// supports read deadlines. Zero disables it.
func (s *Stream[T]) WithReadTimeout(d time.Duration) *Stream[T] {
	s.readTimeout = d
	return s
}

// Next returns the next decoded item, reading from the source as needed.
//
// Errors:
//   - ErrOverflow when the pending item cannot fit in the buffer;
//   - ErrConnectionClosed when the source ends while bytes are still needed;
//   - *DecodeError when the strategy rejects the window (cursors unchanged);
//   - ctx.Err() when ctx is done before the item is complete;
//   - any other read error, wrapped.
//
// Buffered bytes are never lost on error; a canceled call can be retried.
// The returned item may alias the buffer and is valid until the next call to
// Next, NextView or Discard.
func (s *Stream[T]) Next(ctx context.Context) (T, error) {
	var zero T
	s.epoch++

	for IsNeeded(s.strategy, s.window()) {
		if err := s.fill(ctx); err != nil {
			s.recordError(err)
			return zero, err
		}
	}

	window := s.window()
	item, tail, err := s.strategy.Decode(window)
	if err != nil {
		if IsNeedMore(err) {
			panic(ErrContractViolation)
		}
		err = &DecodeError{Err: err}
		s.recordError(err)
		return zero, err
	}
	if len(tail) > len(window) {
		panic(fmt.Errorf("%w: tail of %d bytes exceeds window of %d", ErrContractViolation, len(tail), len(window)))
	}

	s.read = s.write - len(tail)
	if s.metrics != nil {
		s.metrics.RecordItem(s.framing, len(window)-len(tail))
	}
	return item, nil
}

// NextView is Next with the item wrapped in a View that can report whether it
// is still backed by live buffer memory.
func (s *Stream[T]) NextView(ctx context.Context) (View[T], error) {
	item, err := s.Next(ctx)
	if err != nil {
		return View[T]{}, err
	}
	return View[T]{item: item, epoch: s.epoch, owner: s}, nil
}

// Buffered returns the buffered, unconsumed window. It aliases the buffer and
// is valid until the stream next advances.
func (s *Stream[T]) Buffered() []byte {
	return s.window()
}

// Discard retires n buffered bytes without decoding them. The stream never
// discards on its own; this is the hook for callers that choose to skip past
// bytes a strategy rejected.
func (s *Stream[T]) Discard(n int) error {
	if n < 0 || n > s.write-s.read {
		return fmt.Errorf("decoder: cannot discard %d of %d buffered bytes", n, s.write-s.read)
	}
	s.epoch++
	s.read += n
	return nil
}

// Cursors returns the current cursor positions.
func (s *Stream[T]) Cursors() Cursors {
	return Cursors{Read: s.read, Write: s.write, Capacity: len(s.buf)}
}

// Epoch identifies the current validity period of borrowed items. It advances
// on every Next, NextView and Discard.
func (s *Stream[T]) Epoch() uint64 {
	return s.epoch
}

func (s *Stream[T]) window() []byte {
	return s.buf[s.read:s.write]
}

// fill makes room if needed and appends at least one byte from the source.
func (s *Stream[T]) fill(ctx context.Context) error {
	if s.write == len(s.buf) {
		if s.read == 0 {
			s.logger.Warnf("buffer overflow", map[string]any{
				"capacity": len(s.buf),
				"framing":  s.framing,
			})
			return ErrOverflow
		}
		s.compact()
	}

	for empty := 0; ; empty++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := s.readSource(ctx)
		if s.metrics != nil {
			s.metrics.RecordRead(s.framing, n)
		}
		if n > 0 {
			s.write += n
			if err != nil && !errors.Is(err, io.EOF) {
				return s.wrapReadErr(ctx, err)
			}
			return nil
		}

		switch {
		case errors.Is(err, io.EOF):
			return ErrConnectionClosed
		case err != nil:
			return s.wrapReadErr(ctx, err)
		case empty+1 >= maxEmptyReads:
			return io.ErrNoProgress
		}
	}
}

// compact moves the live window to the start of the buffer.
func (s *Stream[T]) compact() {
	moved := copy(s.buf, s.buf[s.read:s.write])
	s.logger.Debugf("buffer compacted", map[string]any{
		"freed": s.read,
		"moved": moved,
	})
	if s.metrics != nil {
		s.metrics.RecordCompaction(s.framing, moved)
	}
	s.write -= s.read
	s.read = 0
}

// readSource issues one read into the free tail of the buffer. When the source
// supports deadlines, cancellation of ctx interrupts the read; the deadline is
// cleared afterwards so the source stays usable.
func (s *Stream[T]) readSource(ctx context.Context) (int, error) {
	dst := s.buf[s.write:]

	dl, interruptible := s.src.(deadliner)
	if interruptible && s.readTimeout > 0 {
		_ = dl.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
	if !interruptible || ctx.Done() == nil {
		return s.src.Read(dst)
	}

	interrupted := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		_ = dl.SetReadDeadline(aLongTimeAgo)
		close(interrupted)
	})

	n, err := s.src.Read(dst)
	if !stop() {
		<-interrupted
		_ = dl.SetReadDeadline(time.Time{})
		if err != nil {
			err = ctx.Err()
		}
	}
	return n, err
}

func (s *Stream[T]) wrapReadErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return ctxErr
	}
	return fmt.Errorf("decoder: read: %w", err)
}

func (s *Stream[T]) recordError(err error) {
	if s.metrics != nil {
		s.metrics.RecordError(s.framing, Kind(err))
	}
}
