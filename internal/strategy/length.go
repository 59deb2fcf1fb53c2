package strategy

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/dray-io/wireframe/internal/decoder"
)

var (
	// ErrFrameTooLarge is returned when a frame's declared length exceeds the
	// configured maximum.
	ErrFrameTooLarge = errors.New("strategy: frame too large")

	// ErrNegativeLength is returned for signed prefixes that decode below zero.
	ErrNegativeLength = errors.New("strategy: negative frame length")
)

// Prefix describes a length header.
type Prefix struct {
	// Size is the header width in bytes: 1, 2, 4 or 8.
	Size int
	// Order is the header byte order. Nil means big endian.
	Order binary.ByteOrder
	// Max bounds the payload length. Zero means the header width is the only limit.
	Max int
}

// Uint32BE is the 4-byte big-endian prefix used by most binary protocols.
func Uint32BE(max int) Prefix {
	return Prefix{Size: 4, Order: binary.BigEndian, Max: max}
}

func (p Prefix) order() binary.ByteOrder {
	if p.Order == nil {
		return binary.BigEndian
	}
	return p.Order
}

func (p Prefix) validate() {
	switch p.Size {
	case 1, 2, 4, 8:
	default:
		panic(fmt.Sprintf("strategy: unsupported prefix size %d", p.Size))
	}
	if p.Max < 0 {
		panic("strategy: negative max frame size")
	}
}

func (p Prefix) read(b []byte) uint64 {
	switch p.Size {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(p.order().Uint16(b))
	case 4:
		return uint64(p.order().Uint32(b))
	default:
		return p.order().Uint64(b)
	}
}

func (p Prefix) limit() uint64 {
	var width uint64 = math.MaxInt32
	if p.Size < 4 {
		width = 1<<(8*p.Size) - 1
	}
	if p.Max > 0 && uint64(p.Max) < width {
		return uint64(p.Max)
	}
	return width
}

// frame splits window into the payload of its first frame and the tail.
func (p Prefix) frame(w []byte) ([]byte, []byte, error) {
	if len(w) < p.Size {
		return nil, nil, decoder.NeedMore(p.Size - len(w))
	}
	n := p.read(w)
	if n > p.limit() {
		return nil, nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFrameTooLarge, n, p.limit())
	}
	total := p.Size + int(n)
	if len(w) < total {
		return nil, nil, decoder.NeedMore(total - len(w))
	}
	return w[p.Size:total:total], w[total:], nil
}

func (p Prefix) append(dst []byte, n int) ([]byte, error) {
	if n < 0 {
		return dst, ErrNegativeLength
	}
	if uint64(n) > p.limit() {
		return dst, fmt.Errorf("%w: %d bytes, limit %d", ErrFrameTooLarge, n, p.limit())
	}
	switch p.Size {
	case 1:
		return append(dst, byte(n)), nil
	case 2:
		dst = append(dst, make([]byte, 2)...)
		p.order().PutUint16(dst[len(dst)-2:], uint16(n))
		return dst, nil
	case 4:
		dst = append(dst, make([]byte, 4)...)
		p.order().PutUint32(dst[len(dst)-4:], uint32(n))
		return dst, nil
	default:
		dst = append(dst, make([]byte, 8)...)
		p.order().PutUint64(dst[len(dst)-8:], uint64(n))
		return dst, nil
	}
}

// LengthPrefixed yields the payload of frames carrying a length header.
// Payloads alias the stream buffer.
func LengthPrefixed(p Prefix) decoder.Strategy[[]byte] {
	p.validate()
	return decoder.StrategyFunc[[]byte](p.frame)
}

// AppendLengthPrefixed appends payload framed with p to dst.
func AppendLengthPrefixed(dst []byte, p Prefix, payload []byte) ([]byte, error) {
	p.validate()
	dst, err := p.append(dst, len(payload))
	if err != nil {
		return dst, err
	}
	return append(dst, payload...), nil
}
