package strategy

import (
	"github.com/dray-io/wireframe/internal/decoder"
)

// Split yields fixed-size chunks of n bytes. Items alias the stream buffer.
func Split(n int) decoder.Strategy[[]byte] {
	if n <= 0 {
		panic("strategy: split size must be positive")
	}
	return decoder.StrategyFunc[[]byte](func(w []byte) ([]byte, []byte, error) {
		if len(w) < n {
			return nil, nil, decoder.NeedMore(n - len(w))
		}
		return w[:n:n], w[n:], nil
	})
}

// SplitCopy yields fixed-size chunks of n bytes copied into owned slices.
func SplitCopy(n int) decoder.Strategy[[]byte] {
	split := Split(n)
	return decoder.StrategyFunc[[]byte](func(w []byte) ([]byte, []byte, error) {
		chunk, tail, err := split.Decode(w)
		if err != nil {
			return nil, nil, err
		}
		return append([]byte(nil), chunk...), tail, nil
	})
}

// Whole yields everything currently buffered as one item. It needs at least
// one byte.
func Whole() decoder.Strategy[[]byte] {
	return decoder.StrategyFunc[[]byte](func(w []byte) ([]byte, []byte, error) {
		if len(w) == 0 {
			return nil, nil, decoder.NeedMore(0)
		}
		return w, w[len(w):], nil
	})
}
