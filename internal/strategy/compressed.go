package strategy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/dray-io/wireframe/internal/decoder"
)

// Codec identifies the compression of a block. Values match Kafka's record
// batch compression attribute.
type Codec byte

const (
	CodecNone   Codec = 0
	CodecGzip   Codec = 1
	CodecSnappy Codec = 2
	CodecLZ4    Codec = 3
	CodecZstd   Codec = 4
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecGzip:
		return "gzip"
	case CodecSnappy:
		return "snappy"
	case CodecLZ4:
		return "lz4"
	case CodecZstd:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", byte(c))
	}
}

// ParseCodec converts a codec name to a Codec.
func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CodecNone, nil
	case "gzip":
		return CodecGzip, nil
	case "snappy":
		return CodecSnappy, nil
	case "lz4":
		return CodecLZ4, nil
	case "zstd":
		return CodecZstd, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCodec, s)
	}
}

var (
	// ErrUnknownCodec is returned for blocks tagged with an unsupported codec.
	ErrUnknownCodec = errors.New("strategy: unknown codec")

	// ErrEmptyBlock is returned for frames too short to carry a codec tag.
	ErrEmptyBlock = errors.New("strategy: empty block")

	// ErrBlockTooLarge is returned when a block decompresses beyond the limit.
	ErrBlockTooLarge = errors.New("strategy: decompressed block too large")
)

// Block is a decompressed item. Data is owned by the caller.
type Block struct {
	Codec Codec
	Data  []byte
}

// DefaultMaxBlock bounds decompressed block size when a Compressed strategy is
// built without a limit.
const DefaultMaxBlock = 64 << 20

// CompressedStrategy yields blocks framed as <length><codec byte><payload>.
//
// The last decoded frame is kept so that decoding the same window again
// returns the same block without decompressing twice.
type CompressedStrategy struct {
	prefix   Prefix
	maxBlock int

	zstd    *zstd.Decoder
	zstdErr error

	cached     []byte
	cachedItem Block
	hasCached  bool
}

// Compressed returns a strategy for compressed blocks framed with p.
// Decompressed data is limited to maxBlock bytes, or DefaultMaxBlock when
// maxBlock is zero.
func Compressed(p Prefix, maxBlock int) *CompressedStrategy {
	p.validate()
	if maxBlock <= 0 {
		maxBlock = DefaultMaxBlock
	}
	return &CompressedStrategy{prefix: p, maxBlock: maxBlock}
}

// Decode implements decoder.Strategy.
func (c *CompressedStrategy) Decode(w []byte) (Block, []byte, error) {
	if c.hasCached && bytes.HasPrefix(w, c.cached) {
		item, tail := c.cachedItem, w[len(c.cached):]
		c.hasCached, c.cachedItem = false, Block{}
		return item, tail, nil
	}

	frame, tail, err := c.prefix.frame(w)
	if err != nil {
		return Block{}, nil, err
	}
	if len(frame) == 0 {
		return Block{}, nil, ErrEmptyBlock
	}

	codec := Codec(frame[0])
	var data []byte
	if codec == CodecZstd {
		data, err = c.decodeZstd(frame[1:])
	} else {
		data, err = decompress(codec, frame[1:], c.maxBlock)
	}
	if err != nil {
		return Block{}, nil, err
	}

	item := Block{Codec: codec, Data: data}
	c.cached = append(c.cached[:0], w[:len(w)-len(tail)]...)
	c.cachedItem, c.hasCached = item, true
	return item, tail, nil
}

// decodeZstd decompresses with a decoder bounded to maxBlock, so frames
// declaring a larger content size fail before their output is allocated.
func (c *CompressedStrategy) decodeZstd(data []byte) ([]byte, error) {
	if c.zstd == nil && c.zstdErr == nil {
		c.zstd, c.zstdErr = zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(uint64(c.maxBlock)))
	}
	if c.zstdErr != nil {
		return nil, fmt.Errorf("zstd: %w", c.zstdErr)
	}
	out, err := c.zstd.DecodeAll(data, nil)
	switch {
	case errors.Is(err, zstd.ErrDecoderSizeExceeded), errors.Is(err, zstd.ErrWindowSizeExceeded):
		return nil, fmt.Errorf("%w: limit %d", ErrBlockTooLarge, c.maxBlock)
	case err != nil:
		return nil, fmt.Errorf("zstd: %w", err)
	case len(out) > c.maxBlock:
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrBlockTooLarge, len(out), c.maxBlock)
	}
	return out, nil
}

var _ decoder.Strategy[Block] = (*CompressedStrategy)(nil)

// AppendCompressed compresses data with codec and appends the framed block to dst.
func AppendCompressed(dst []byte, p Prefix, codec Codec, data []byte) ([]byte, error) {
	p.validate()
	payload, err := compress(codec, data)
	if err != nil {
		return dst, err
	}
	dst, err = p.append(dst, 1+len(payload))
	if err != nil {
		return dst, err
	}
	dst = append(dst, byte(codec))
	return append(dst, payload...), nil
}

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdErr     error
)

func zstdWriter() (*zstd.Encoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil)
	})
	return zstdEncoder, zstdErr
}

// decompress handles every codec but zstd, which needs the strategy's bounded
// decoder.
func decompress(codec Codec, data []byte, max int) ([]byte, error) {
	switch codec {
	case CodecNone:
		if len(data) > max {
			return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrBlockTooLarge, len(data), max)
		}
		return append([]byte(nil), data...), nil
	case CodecGzip:
		reader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer reader.Close()
		return readLimited(reader, max)
	case CodecSnappy:
		n, err := snappy.DecodedLen(data)
		if err != nil {
			return nil, fmt.Errorf("snappy: %w", err)
		}
		if n > max {
			return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrBlockTooLarge, n, max)
		}
		return snappy.Decode(nil, data)
	case CodecLZ4:
		return readLimited(lz4.NewReader(bytes.NewReader(data)), max)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCodec, byte(codec))
	}
}

func readLimited(r io.Reader, max int) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, int64(max)+1))
	if err != nil {
		return nil, err
	}
	if len(out) > max {
		return nil, fmt.Errorf("%w: limit %d", ErrBlockTooLarge, max)
	}
	return out, nil
}

func compress(codec Codec, data []byte) ([]byte, error) {
	switch codec {
	case CodecNone:
		return data, nil
	case CodecGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("gzip writer: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("gzip writer: %w", err)
		}
		return buf.Bytes(), nil
	case CodecSnappy:
		return snappy.Encode(nil, data), nil
	case CodecLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("lz4 writer: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4 writer: %w", err)
		}
		return buf.Bytes(), nil
	case CodecZstd:
		enc, err := zstdWriter()
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return enc.EncodeAll(data, nil), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCodec, byte(codec))
	}
}
