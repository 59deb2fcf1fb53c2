// Package strategy provides concrete decoding strategies for decoder.Stream:
// fixed-size chunks, whole windows, length-prefixed frames, delimited lines and
// compressed blocks.
//
// Strategies that keep scan state (Delimited) belong to a single stream.
package strategy
