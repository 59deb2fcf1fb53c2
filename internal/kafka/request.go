package kafka

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kmsg"

	"github.com/dray-io/wireframe/internal/decoder"
)

// DefaultMaxRequestSize bounds request frames when no limit is configured.
const DefaultMaxRequestSize = 100 * 1024 * 1024

var (
	// ErrInvalidSize is returned for negative or oversized request frames.
	ErrInvalidSize = errors.New("kafka: invalid request size")

	// ErrUnsupportedAPI is returned when decoding a body for an unknown key or
	// a version newer than the protocol tables know.
	ErrUnsupportedAPI = errors.New("kafka: unsupported api")
)

// Request is one framed Kafka request. Body aliases the stream buffer.
type Request struct {
	Header RequestHeader
	Body   []byte
}

// Decode decodes the body into its kmsg request type.
func (r Request) Decode() (kmsg.Request, error) {
	key, version := r.Header.APIKey, r.Header.APIVersion
	if key < 0 || key > kmsg.MaxKey {
		return nil, fmt.Errorf("%w: key %d", ErrUnsupportedAPI, key)
	}
	req := kmsg.Key(key).Request()
	if req == nil {
		return nil, fmt.Errorf("%w: key %d", ErrUnsupportedAPI, key)
	}
	if version < 0 || version > req.MaxVersion() {
		return nil, fmt.Errorf("%w: %s v%d exceeds v%d", ErrUnsupportedAPI, APIName(key), version, req.MaxVersion())
	}
	req.SetVersion(version)
	if err := req.ReadFrom(r.Body); err != nil {
		return nil, fmt.Errorf("kafka: decode %s v%d: %w", APIName(key), version, err)
	}
	return req, nil
}

// Strategy returns a decoder.Strategy yielding Kafka requests framed by an
// int32 big-endian size. Frames larger than maxRequestSize fail; zero means
// DefaultMaxRequestSize.
func Strategy(maxRequestSize int32) decoder.Strategy[Request] {
	if maxRequestSize <= 0 {
		maxRequestSize = DefaultMaxRequestSize
	}
	return decoder.StrategyFunc[Request](func(w []byte) (Request, []byte, error) {
		if len(w) < 4 {
			return Request{}, nil, decoder.NeedMore(4 - len(w))
		}
		size := int32(binary.BigEndian.Uint32(w))
		if size < 0 || size > maxRequestSize {
			return Request{}, nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
		}
		end := 4 + int(size)
		if len(w) < end {
			return Request{}, nil, decoder.NeedMore(end - len(w))
		}

		frame := w[4:end:end]
		header, n, err := parseRequestHeader(frame)
		if err != nil {
			return Request{}, nil, err
		}
		return Request{Header: header, Body: frame[n:]}, w[end:], nil
	})
}
