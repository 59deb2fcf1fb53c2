package decoder

// View is an item borrowed from a Stream's buffer together with the epoch it
// was decoded in. Once the stream advances the view is stale.
type View[T any] struct {
	item  T
	epoch uint64
	owner interface{ Epoch() uint64 }
}

// Valid reports whether the view's backing bytes are still live.
func (v View[T]) Valid() bool {
	return v.owner != nil && v.owner.Epoch() == v.epoch
}

// Value returns the item. It panics when the view is stale.
func (v View[T]) Value() T {
	if !v.Valid() {
		panic("decoder: view used after its stream advanced")
	}
	return v.item
}
