package decoder

// Strategy parses one item from the front of a window of buffered bytes.
//
// Decode reports one of three outcomes:
//   - success: err is nil, item is derived from a prefix of window and tail is
//     the exact remaining suffix of window;
//   - need more: err satisfies IsNeedMore, optionally hinting how many more
//     bytes are required;
//   - failure: any other error; the window cannot be parsed.
//
// The window is always offered in full, starting at the first unconsumed byte.
// Parse state that must survive across partial windows lives in the strategy
// itself. Implementations must be deterministic for a given window and must
// never report need more for a window they already accepted or rejected.
type Strategy[T any] interface {
	Decode(window []byte) (item T, tail []byte, err error)
}

// StrategyFunc adapts a plain function to the Strategy interface.
type StrategyFunc[T any] func(window []byte) (T, []byte, error)

// Decode calls f(window).
func (f StrategyFunc[T]) Decode(window []byte) (T, []byte, error) {
	return f(window)
}

// Check runs s against window and discards the item.
func Check[T any](s Strategy[T], window []byte) error {
	_, _, err := s.Decode(window)
	return err
}

// IsNeeded reports whether s needs more bytes than window holds.
func IsNeeded[T any](s Strategy[T], window []byte) bool {
	return IsNeedMore(Check(s, window))
}
