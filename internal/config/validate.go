package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Decoder.Capacity <= 0 {
		fail("decoder.capacity must be positive, got %d", c.Decoder.Capacity)
	}

	switch c.Server.Framing {
	case FramingKafka, FramingLength, FramingLine, FramingCompressed:
	default:
		fail("server.framing %q is not one of kafka, length, line, compressed", c.Server.Framing)
	}
	if c.Server.MaxItemSize < 0 {
		fail("server.maxItemSize must not be negative")
	}
	if c.Server.MaxItemSize > c.Decoder.Capacity && c.Decoder.Capacity > 0 {
		fail("server.maxItemSize %d exceeds decoder.capacity %d", c.Server.MaxItemSize, c.Decoder.Capacity)
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		fail("server timeouts must not be negative")
	}
	switch strings.ToLower(c.Server.Codec) {
	case "", "none", "gzip", "snappy", "lz4", "zstd":
	default:
		fail("server.codec %q is not supported", c.Server.Codec)
	}

	if c.Pipe.ChunkSize <= 0 {
		fail("pipe.chunkSize must be positive")
	}
	if c.Pipe.ChunkSize > c.Decoder.Capacity && c.Decoder.Capacity > 0 {
		fail("pipe.chunkSize %d exceeds decoder.capacity %d", c.Pipe.ChunkSize, c.Decoder.Capacity)
	}
	if c.Pipe.Interval <= 0 {
		fail("pipe.interval must be positive")
	}

	switch strings.ToLower(c.Observability.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		fail("observability.logLevel %q is not supported", c.Observability.LogLevel)
	}
	switch strings.ToLower(c.Observability.LogFormat) {
	case "json", "text":
	default:
		fail("observability.logFormat %q is not supported", c.Observability.LogFormat)
	}

	return errors.Join(errs...)
}
