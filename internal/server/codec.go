package server

import (
	"github.com/dray-io/wireframe/internal/decoder"
	"github.com/dray-io/wireframe/internal/kafka"
	"github.com/dray-io/wireframe/internal/strategy"
)

// Codec adapts a framing to the server: it builds the per-connection decoding
// strategy and frames outbound payloads.
type Codec[T any] interface {
	// Framing names the framing in logs and metrics.
	Framing() string
	// NewStrategy returns a strategy for one connection.
	NewStrategy() decoder.Strategy[T]
	// RequestName labels a request in logs and metrics.
	RequestName(req T) string
	// AppendFrame appends payload framed for the wire to dst.
	AppendFrame(dst, payload []byte) ([]byte, error)
}

// LengthCodec frames payloads with a length prefix.
type LengthCodec struct {
	Prefix strategy.Prefix
}

func (c LengthCodec) Framing() string { return "length" }

func (c LengthCodec) NewStrategy() decoder.Strategy[[]byte] {
	return strategy.LengthPrefixed(c.Prefix)
}

func (c LengthCodec) RequestName([]byte) string { return "frame" }

func (c LengthCodec) AppendFrame(dst, payload []byte) ([]byte, error) {
	return strategy.AppendLengthPrefixed(dst, c.Prefix, payload)
}

// LineCodec frames payloads as newline-terminated lines.
type LineCodec struct {
	// MaxLine bounds a line including its newline. Zero means unbounded.
	MaxLine int
}

func (c LineCodec) Framing() string { return "line" }

func (c LineCodec) NewStrategy() decoder.Strategy[[]byte] {
	return strategy.Lines(c.MaxLine)
}

func (c LineCodec) RequestName([]byte) string { return "line" }

func (c LineCodec) AppendFrame(dst, payload []byte) ([]byte, error) {
	dst = append(dst, payload...)
	return append(dst, '\n'), nil
}

// CompressedCodec frames payloads as compressed blocks.
type CompressedCodec struct {
	Prefix strategy.Prefix
	// Codec compresses outbound payloads.
	Codec strategy.Codec
	// MaxBlock bounds decompressed inbound blocks. Zero uses the strategy default.
	MaxBlock int
}

func (c CompressedCodec) Framing() string { return "compressed" }

func (c CompressedCodec) NewStrategy() decoder.Strategy[strategy.Block] {
	return strategy.Compressed(c.Prefix, c.MaxBlock)
}

func (c CompressedCodec) RequestName(b strategy.Block) string { return b.Codec.String() }

func (c CompressedCodec) AppendFrame(dst, payload []byte) ([]byte, error) {
	return strategy.AppendCompressed(dst, c.Prefix, c.Codec, payload)
}

// KafkaCodec frames Kafka requests. Handlers return the response without its
// size prefix, as built by kafka.AppendResponseBody.
type KafkaCodec struct {
	MaxRequestSize int32
}

func (c KafkaCodec) Framing() string { return "kafka" }

func (c KafkaCodec) NewStrategy() decoder.Strategy[kafka.Request] {
	return kafka.Strategy(c.MaxRequestSize)
}

func (c KafkaCodec) RequestName(req kafka.Request) string {
	return kafka.APIName(req.Header.APIKey)
}

func (c KafkaCodec) AppendFrame(dst, payload []byte) ([]byte, error) {
	return strategy.AppendLengthPrefixed(dst, strategy.Uint32BE(0), payload)
}

var (
	_ Codec[[]byte]         = LengthCodec{}
	_ Codec[[]byte]         = LineCodec{}
	_ Codec[strategy.Block] = CompressedCodec{}
	_ Codec[kafka.Request]  = KafkaCodec{}
)
