package decoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"
	"testing/iotest"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dray-io/wireframe/internal/metrics"
)

func requireCursorInvariant(t *testing.T, c Cursors) {
	t.Helper()
	require.True(t, 0 <= c.Read && c.Read <= c.Write && c.Write <= c.Capacity,
		"cursor invariant violated: %+v", c)
}

func TestStreamExampleScenario(t *testing.T) {
	source := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 0}
	s := New(bytes.NewReader(source), split(2), 1024)
	ctx := context.Background()

	for _, want := range [][]byte{{1, 2}, {3, 4}, {5, 6}, {7, 8}, {9, 0}} {
		got, err := s.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := s.Next(ctx)
	require.ErrorIs(t, err, ErrConnectionClosed)
}

func TestStreamRecoversChunkSequence(t *testing.T) {
	tests := []struct {
		chunk    int
		chunks   int
		capacity int
		reader   func(io.Reader) io.Reader
	}{
		{chunk: 1, chunks: 50, capacity: 2, reader: iotest.OneByteReader},
		{chunk: 4, chunks: 25, capacity: 5, reader: iotest.HalfReader},
		{chunk: 7, chunks: 13, capacity: 16, reader: iotest.DataErrReader},
		{chunk: 16, chunks: 8, capacity: 1024, reader: func(r io.Reader) io.Reader { return r }},
		{chunk: 3, chunks: 40, capacity: 10, reader: iotest.OneByteReader},
	}

	for _, tc := range tests {
		t.Run(fmt.Sprintf("chunk=%d/cap=%d", tc.chunk, tc.capacity), func(t *testing.T) {
			source := make([]byte, tc.chunk*tc.chunks)
			for i := range source {
				source[i] = byte(i * 31)
			}

			s := New(tc.reader(bytes.NewReader(source)), split(tc.chunk), tc.capacity)
			for i := 0; i < tc.chunks; i++ {
				got, err := s.Next(context.Background())
				require.NoError(t, err, "chunk %d", i)
				require.Equal(t, source[i*tc.chunk:(i+1)*tc.chunk], got, "chunk %d", i)
				requireCursorInvariant(t, s.Cursors())
			}

			_, err := s.Next(context.Background())
			require.ErrorIs(t, err, ErrConnectionClosed)
			assert.Empty(t, s.Buffered())
		})
	}
}

// probeReader checks, on every read, that the destination is exactly the free
// tail of the stream's buffer.
type probeReader struct {
	t      *testing.T
	r      io.Reader
	cursor func() Cursors
	reads  int
}

func (p *probeReader) Read(b []byte) (int, error) {
	c := p.cursor()
	requireCursorInvariant(p.t, c)
	require.Equal(p.t, c.Capacity-c.Write, len(b), "read must target the free tail only")
	require.NotZero(p.t, len(b), "read issued with no free space")
	p.reads++
	return p.r.Read(b)
}

func TestStreamCompactsInsteadOfOverflowing(t *testing.T) {
	const item = 4
	source := bytes.Repeat([]byte{1, 2, 3, 4}, 10)
	reg := prometheus.NewRegistry()
	m := newTestMetrics(reg)

	probe := &probeReader{t: t, r: iotest.HalfReader(bytes.NewReader(source))}
	s := New(probe, split(item), item+1).WithMetrics(m, "split")
	probe.cursor = s.Cursors

	for i := 0; i < 10; i++ {
		got, err := s.Next(context.Background())
		require.NoError(t, err, "item %d", i)
		require.Equal(t, []byte{1, 2, 3, 4}, got)
		requireCursorInvariant(t, s.Cursors())
	}

	metric := &dto.Metric{}
	require.NoError(t, m.CompactionsTotal.WithLabelValues("split").Write(metric))
	assert.Positive(t, metric.GetCounter().GetValue(), "expected at least one compaction")
}

func TestStreamCompactsOnlyWhenTailExhausted(t *testing.T) {
	s := New(bytes.NewReader([]byte{1, 2, 3, 4, 5, 6}), split(2), 6)

	_, err := s.Next(context.Background())
	require.NoError(t, err)

	// The first read filled the buffer; the window just shrank, nothing moved.
	assert.Equal(t, Cursors{Read: 2, Write: 6, Capacity: 6}, s.Cursors())

	_, err = s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Cursors{Read: 4, Write: 6, Capacity: 6}, s.Cursors())
}

func TestStreamOverflow(t *testing.T) {
	s := New(bytes.NewReader([]byte{1, 2, 3, 4, 5, 6, 7, 8}), split(4), 3)

	item, err := s.Next(context.Background())
	require.ErrorIs(t, err, ErrOverflow)
	assert.Nil(t, item, "no partial item may be returned")
	assert.Equal(t, KindOverflow, Kind(err))

	// Terminal at this capacity.
	_, err = s.Next(context.Background())
	require.ErrorIs(t, err, ErrOverflow)
}

func TestStreamOverflowAfterPartialProgress(t *testing.T) {
	// A 1-byte length header followed by payload.
	prefixed := StrategyFunc[[]byte](func(w []byte) ([]byte, []byte, error) {
		if len(w) < 1 {
			return nil, nil, NeedMore(1)
		}
		n := int(w[0])
		if len(w) < 1+n {
			return nil, nil, NeedMore(1 + n - len(w))
		}
		return w[1 : 1+n], w[1+n:], nil
	})

	s := New(bytes.NewReader([]byte{2, 'h', 'i', 9, 'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'i'}), prefixed, 5)

	got, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), got)

	_, err = s.Next(context.Background())
	require.ErrorIs(t, err, ErrOverflow)
	requireCursorInvariant(t, s.Cursors())
}

// scriptedReader returns one scripted result per Read call.
type scriptedReader struct {
	steps []scriptStep
}

type scriptStep struct {
	data []byte
	err  error
}

func (r *scriptedReader) Read(b []byte) (int, error) {
	if len(r.steps) == 0 {
		return 0, io.EOF
	}
	step := r.steps[0]
	r.steps = r.steps[1:]
	n := copy(b, step.data)
	return n, step.err
}

func TestStreamZeroByteReadMidDecode(t *testing.T) {
	src := &scriptedReader{steps: []scriptStep{
		{data: []byte{1}},
		{err: io.EOF},
	}}
	s := New(src, split(2), 16)

	item, err := s.Next(context.Background())
	require.ErrorIs(t, err, ErrConnectionClosed)
	assert.Nil(t, item)
	assert.Equal(t, []byte{1}, s.Buffered(), "partial bytes stay buffered")
}

func TestStreamDataWithEOFIsKept(t *testing.T) {
	src := &scriptedReader{steps: []scriptStep{
		{data: []byte{1, 2, 3}, err: io.EOF},
	}}
	s := New(src, split(3), 16)

	got, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)

	_, err = s.Next(context.Background())
	require.ErrorIs(t, err, ErrConnectionClosed)
}

func TestStreamReadErrorKeepsBytes(t *testing.T) {
	boom := errors.New("boom")
	src := &scriptedReader{steps: []scriptStep{
		{data: []byte{7}, err: boom},
		{data: []byte{8}},
	}}
	s := New(src, split(2), 16)

	_, err := s.Next(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Equal(t, KindIO, Kind(err))

	got, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 8}, got)
}

func TestStreamNoProgress(t *testing.T) {
	steps := make([]scriptStep, maxEmptyReads)
	s := New(&scriptedReader{steps: steps}, split(1), 4)

	_, err := s.Next(context.Background())
	require.ErrorIs(t, err, io.ErrNoProgress)
}

func TestStreamDecodeFailureLeavesCursors(t *testing.T) {
	errBadMagic := errors.New("bad magic")
	magic := StrategyFunc[[]byte](func(w []byte) ([]byte, []byte, error) {
		if len(w) < 2 {
			return nil, nil, NeedMore(2 - len(w))
		}
		if w[0] != 0xCA {
			return nil, nil, errBadMagic
		}
		return w[:2], w[2:], nil
	})

	s := New(bytes.NewReader([]byte{0x00, 0xCA, 0x01}), magic, 8)

	_, err := s.Next(context.Background())
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	require.ErrorIs(t, err, errBadMagic)
	assert.Equal(t, KindDecode, Kind(err))

	before := s.Cursors()
	_, err = s.Next(context.Background())
	require.ErrorIs(t, err, errBadMagic, "failure is not retired implicitly")
	assert.Equal(t, before, s.Cursors())

	// Caller-driven recovery.
	require.NoError(t, s.Discard(1))
	got, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{0xCA, 0x01}, got)
}

func TestStreamDiscardBounds(t *testing.T) {
	s := New(bytes.NewReader(nil), split(1), 4)
	require.Error(t, s.Discard(1))
	require.Error(t, s.Discard(-1))
	require.NoError(t, s.Discard(0))
}

func TestStreamContractViolationPanics(t *testing.T) {
	calls := 0
	flaky := StrategyFunc[[]byte](func(w []byte) ([]byte, []byte, error) {
		calls++
		if calls%2 == 1 {
			return w, nil, nil
		}
		return nil, nil, NeedMore(0)
	})

	s := New(bytes.NewReader([]byte{1}), flaky, 4)
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected panic")
		err, ok := r.(error)
		require.True(t, ok)
		assert.ErrorIs(t, err, ErrContractViolation)
	}()
	_, _ = s.Next(context.Background())
}

func TestStreamDecodesIdenticalWindowIdentically(t *testing.T) {
	type outcome struct {
		item string
		tail int
		err  bool
	}
	var seen []outcome
	recording := StrategyFunc[[]byte](func(w []byte) ([]byte, []byte, error) {
		item, tail, err := split(2).Decode(w)
		seen = append(seen, outcome{string(item), len(tail), err != nil})
		return item, tail, err
	})

	s := New(bytes.NewReader([]byte{5, 6, 7}), recording, 8)
	_, err := s.Next(context.Background())
	require.NoError(t, err)

	// Readiness probe and the final decode see the same window.
	require.GreaterOrEqual(t, len(seen), 2)
	assert.Equal(t, seen[len(seen)-2], seen[len(seen)-1])
}

func TestStreamCanceledContextDoesNotRead(t *testing.T) {
	probe := &scriptedReader{steps: []scriptStep{{data: []byte{1, 2}}}}
	s := New(probe, split(2), 4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, KindCanceled, Kind(err))
	assert.Len(t, probe.steps, 1, "no read should be issued")

	got, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, got)
}

func TestStreamCancelInterruptsDeadlineSource(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	s := New(server, split(3), 8)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := s.Next(ctx)
		errCh <- err
	}()

	// Deliver part of an item, then abandon the call.
	_, err := client.Write([]byte{1})
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after cancellation")
	}

	// The abandoned read left the stream resumable.
	go func() { _, _ = client.Write([]byte{2, 3}) }()
	got, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)
}

func TestStreamReadTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	s := New(server, split(1), 8).WithReadTimeout(20 * time.Millisecond)

	_, err := s.Next(context.Background())
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())
}

func TestStreamViewValidity(t *testing.T) {
	s := New(bytes.NewReader([]byte{1, 2, 3, 4}), split(2), 8)

	v, err := s.NextView(context.Background())
	require.NoError(t, err)
	require.True(t, v.Valid())
	assert.Equal(t, []byte{1, 2}, v.Value())

	_, err = s.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, v.Valid())
	assert.Panics(t, func() { v.Value() })

	var zero View[[]byte]
	assert.False(t, zero.Valid())
}

func TestStreamErrorMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newTestMetrics(reg)
	s := New(bytes.NewReader([]byte{1}), split(2), 4).WithMetrics(m, "split")

	_, err := s.Next(context.Background())
	require.ErrorIs(t, err, ErrConnectionClosed)

	metric := &dto.Metric{}
	require.NoError(t, m.ErrorsTotal.WithLabelValues("split", KindClosed).Write(metric))
	assert.Equal(t, float64(1), metric.GetCounter().GetValue())
}

func TestNewPanicsOnInvalidArguments(t *testing.T) {
	assert.Panics(t, func() { New(bytes.NewReader(nil), split(1), 0) })
	assert.Panics(t, func() { New[[]byte](nil, split(1), 1) })
	assert.Panics(t, func() { New[[]byte](bytes.NewReader(nil), nil, 1) })
}

func newTestMetrics(reg prometheus.Registerer) *metrics.DecoderMetrics {
	return metrics.NewDecoderMetricsWithRegistry(reg)
}
