// Package decoder turns a byte-oriented source into a sequence of discrete
// items.
//
// A Stream owns a fixed-capacity buffer with two cursors delimiting the
// buffered but unconsumed window. Each call to Next offers the window to a
// pluggable Strategy, reading more bytes from the source while the strategy
// needs them and compacting the buffer only when its trailing space is
// exhausted. Items may alias the buffer; they are valid until the next call
// that advances the stream.
//
// A Stream is driven by one goroutine at a time. It does no locking.
package decoder
