package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"unicode/utf8"

	"github.com/dray-io/wireframe/internal/config"
	"github.com/dray-io/wireframe/internal/decoder"
	"github.com/dray-io/wireframe/internal/logging"
	"github.com/dray-io/wireframe/internal/service"
	"github.com/dray-io/wireframe/internal/strategy"
)

func runPipe(args []string) {
	fs := flag.NewFlagSet("pipe", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	chunkSize := fs.Int("chunk-size", 0, "Override chunk size in bytes")
	interval := fs.Duration("interval", 0, "Override message interval (e.g., 1s)")
	message := fs.String("message", "", "Override the periodic message")

	fs.Usage = func() {
		fmt.Println(`Usage: wireframe pipe [options]

Split stdin into fixed-size chunks and print each one, while printing a
message on every interval. Exits when stdin closes.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Apply CLI overrides
	if *chunkSize > 0 {
		cfg.Pipe.ChunkSize = *chunkSize
	}
	if *interval > 0 {
		cfg.Pipe.Interval = *interval
	}
	if *message != "" {
		cfg.Pipe.Message = *message
	}
	exitOnConfigError(fs, cfg.Validate())

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := pipe(ctx, os.Stdin, os.Stdout, cfg, logger); err != nil {
		logger.Errorf("pipe error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
}

// pipe decodes fixed-size chunks from in and prints them to out, racing the
// decoder against a ticker that prints the configured message. It returns nil
// once in is exhausted or ctx is done.
func pipe(ctx context.Context, in io.Reader, out io.Writer, cfg *config.Config, logger *logging.Logger) error {
	stream := decoder.New[[]byte](in, strategy.Split(cfg.Pipe.ChunkSize), cfg.Decoder.Capacity).
		WithLogger(logger)

	ticker := service.NewTicker(cfg.Pipe.Interval, []byte(cfg.Pipe.Message))
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writeErr error
	consume := service.ConsumerFunc[[]byte](func(chunk []byte) {
		if writeErr != nil {
			return
		}
		if _, writeErr = io.WriteString(out, formatChunk(chunk)); writeErr != nil {
			cancel()
		}
	})
	emit := func(msg []byte) error {
		if writeErr != nil {
			return writeErr
		}
		_, err := fmt.Fprintf(out, "Send: %s\n", msg)
		return err
	}

	err := service.NewRunner[[]byte, []byte](stream, consume, ticker, emit).
		WithLogger(logger).
		Run(ctx)
	if writeErr != nil {
		return writeErr
	}

	switch {
	case errors.Is(err, decoder.ErrConnectionClosed):
		if rest := stream.Buffered(); len(rest) > 0 {
			logger.Warnf("input ended inside a chunk", map[string]any{
				"bytes": len(rest),
			})
		}
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil
	default:
		return err
	}
}

// formatChunk renders a chunk as text when it is valid UTF-8 and as hex
// otherwise.
func formatChunk(chunk []byte) string {
	if utf8.Valid(chunk) {
		return fmt.Sprintf("Receive: %s\n", chunk)
	}
	return fmt.Sprintf("Receive: % X\n", chunk)
}
