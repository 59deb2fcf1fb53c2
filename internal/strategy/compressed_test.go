package strategy

import (
	"bytes"
	"context"
	"runtime"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dray-io/wireframe/internal/decoder"
)

func TestCompressedRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("wireframe compressed block "), 40)
	codecs := []Codec{CodecNone, CodecGzip, CodecSnappy, CodecLZ4, CodecZstd}

	var wire []byte
	for _, c := range codecs {
		var err error
		wire, err = AppendCompressed(wire, Uint32BE(0), c, payload)
		require.NoError(t, err, c.String())
	}

	s := decoder.New(iotest.HalfReader(bytes.NewReader(wire)), Compressed(Uint32BE(0), 0), 4096)
	for _, c := range codecs {
		block, err := s.Next(context.Background())
		require.NoError(t, err, c.String())
		assert.Equal(t, c, block.Codec)
		assert.Equal(t, payload, block.Data)
	}

	_, err := s.Next(context.Background())
	require.ErrorIs(t, err, decoder.ErrConnectionClosed)
}

func TestCompressedUnknownCodec(t *testing.T) {
	wire, err := AppendLengthPrefixed(nil, Uint32BE(0), []byte{42, 1, 2})
	require.NoError(t, err)

	_, _, err = Compressed(Uint32BE(0), 0).Decode(wire)
	require.ErrorIs(t, err, ErrUnknownCodec)
}

func TestCompressedEmptyFrame(t *testing.T) {
	_, _, err := Compressed(Uint32BE(0), 0).Decode([]byte{0, 0, 0, 0})
	require.ErrorIs(t, err, ErrEmptyBlock)
}

func TestCompressedBlockLimit(t *testing.T) {
	payload := bytes.Repeat([]byte{0}, 1024)
	for _, c := range []Codec{CodecNone, CodecGzip, CodecSnappy, CodecLZ4, CodecZstd} {
		wire, err := AppendCompressed(nil, Uint32BE(0), c, payload)
		require.NoError(t, err)

		_, _, err = Compressed(Uint32BE(0), 512).Decode(wire)
		require.ErrorIs(t, err, ErrBlockTooLarge, c.String())
	}
}

func TestCompressedZstdDeclaredSizeRejectedEarly(t *testing.T) {
	wire, err := AppendCompressed(nil, Uint32BE(0), CodecZstd, make([]byte, 256<<20))
	require.NoError(t, err)
	require.Less(t, len(wire), 64<<10, "zero block should compress to a small frame")

	s := Compressed(Uint32BE(0), 1024)

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	_, _, err = s.Decode(wire)
	runtime.ReadMemStats(&after)

	require.ErrorIs(t, err, ErrBlockTooLarge)
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(16<<20))
}

func TestCompressedReusesDecodeForSameWindow(t *testing.T) {
	payload := bytes.Repeat([]byte("abc"), 100)
	wire, err := AppendCompressed(nil, Uint32BE(0), CodecZstd, payload)
	require.NoError(t, err)
	wire = append(wire, 9, 9)

	s := Compressed(Uint32BE(0), 0)
	first, tail, err := s.Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9}, tail)

	second, tail, err := s.Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9}, tail)
	assert.Same(t, &first.Data[0], &second.Data[0], "same window should reuse the decoded block")

	third, _, err := s.Decode(wire)
	require.NoError(t, err)
	assert.NotSame(t, &first.Data[0], &third.Data[0], "a reused block is handed out once")
	assert.Equal(t, payload, third.Data)
}

func TestCompressedCacheIgnoresDifferentFrame(t *testing.T) {
	a, err := AppendCompressed(nil, Uint32BE(0), CodecNone, []byte("aa"))
	require.NoError(t, err)
	b, err := AppendCompressed(nil, Uint32BE(0), CodecNone, []byte("bb"))
	require.NoError(t, err)

	s := Compressed(Uint32BE(0), 0)
	_, _, err = s.Decode(a)
	require.NoError(t, err)

	block, _, err := s.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, []byte("bb"), block.Data)
}

func TestCompressedCorruptPayload(t *testing.T) {
	wire, err := AppendLengthPrefixed(nil, Uint32BE(0), []byte{byte(CodecGzip), 1, 2, 3, 4})
	require.NoError(t, err)

	_, _, err = Compressed(Uint32BE(0), 0).Decode(wire)
	require.Error(t, err)
	assert.False(t, decoder.IsNeedMore(err))
}

func TestParseCodec(t *testing.T) {
	tests := map[string]Codec{"": CodecNone, "GZIP": CodecGzip, "snappy": CodecSnappy, " lz4 ": CodecLZ4, "zstd": CodecZstd}
	for in, want := range tests {
		got, err := ParseCodec(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseCodec("brotli")
	require.ErrorIs(t, err, ErrUnknownCodec)
}
