// Package server implements a TCP server for framed request/response
// protocols. Each connection is read through a decoder.Stream and driven by a
// service.Runner, so handlers see whole decoded requests and optional pushers
// can write unsolicited frames between them.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dray-io/wireframe/internal/logging"
	"github.com/dray-io/wireframe/internal/metrics"
)

var (
	// ErrServerClosed is returned when operations are attempted on a closed server.
	ErrServerClosed = errors.New("server closed")

	// ErrNotAccepting is reported by Ready once the server stops accepting.
	ErrNotAccepting = errors.New("server not accepting connections")
)

// Handler processes decoded requests.
type Handler[T any] interface {
	// HandleRequest returns the response payload for req. The server frames it
	// with the codec. A nil response sends nothing. A non-nil error closes the
	// connection.
	//
	// req may alias the connection's read buffer and must not be retained
	// after HandleRequest returns.
	HandleRequest(ctx context.Context, req T) ([]byte, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[T any] func(ctx context.Context, req T) ([]byte, error)

// HandleRequest calls f(ctx, req).
func (f HandlerFunc[T]) HandleRequest(ctx context.Context, req T) ([]byte, error) {
	return f(ctx, req)
}

// Pusher produces unsolicited payloads for one connection. Push blocks until
// a payload is ready or ctx is done.
type Pusher interface {
	Push(ctx context.Context) ([]byte, error)
}

// PusherFunc adapts a function to Pusher.
type PusherFunc func(ctx context.Context) ([]byte, error)

// Push calls f(ctx).
func (f PusherFunc) Push(ctx context.Context) ([]byte, error) { return f(ctx) }

// Config holds the TCP server configuration.
type Config struct {
	ListenAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// BufferCapacity is the per-connection decoder buffer size. It bounds the
	// largest request a connection can send.
	BufferCapacity int
	// CancelOnHalfClose also cancels in-flight handlers when the peer shuts
	// down its write side, not only on a full hang-up. Linux only.
	CancelOnHalfClose bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:     ":9092",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		BufferCapacity: 1024 * 1024, // 1MB
	}
}

// Server is a TCP server for one framing.
type Server[T any] struct {
	cfg            Config
	codec          Codec[T]
	handler        Handler[T]
	logger         *logging.Logger
	metrics        *metrics.ConnectionMetrics
	decoderMetrics *metrics.DecoderMetrics
	newPusher      func(connID string) Pusher

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	listener   net.Listener
	conns      map[net.Conn]struct{}
	stopping   atomic.Bool
	closed     atomic.Bool
	connWg     sync.WaitGroup
	inflightWg sync.WaitGroup
	requestMu  sync.Mutex
}

// New creates a new Server with the given configuration, codec and handler.
func New[T any](cfg Config, codec Codec[T], handler Handler[T], logger *logging.Logger) *Server[T] {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	if cfg.BufferCapacity <= 0 {
		cfg.BufferCapacity = DefaultConfig().BufferCapacity
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server[T]{
		cfg:     cfg,
		codec:   codec,
		handler: handler,
		logger:  logger.WithComponent("server"),
		ctx:     ctx,
		cancel:  cancel,
		conns:   make(map[net.Conn]struct{}),
	}
}

// WithMetrics sets the connection metrics for the server.
// Returns the server for method chaining.
func (s *Server[T]) WithMetrics(m *metrics.ConnectionMetrics) *Server[T] {
	s.metrics = m
	return s
}

// WithDecoderMetrics sets the metrics recorded by every connection's decoder.
// Returns the server for method chaining.
func (s *Server[T]) WithDecoderMetrics(m *metrics.DecoderMetrics) *Server[T] {
	s.decoderMetrics = m
	return s
}

// WithPusher installs a factory for per-connection pushers. Pushed payloads
// are framed with the codec and written between responses.
// Returns the server for method chaining.
func (s *Server[T]) WithPusher(newPusher func(connID string) Pusher) *Server[T] {
	s.newPusher = newPusher
	return s
}

// ListenAndServe starts the server on the configured address.
func (s *Server[T]) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on the given listener.
func (s *Server[T]) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Infof("server listening", map[string]any{
		"addr":    ln.Addr().String(),
		"framing": s.codec.Framing(),
	})

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.stopping.Load() || s.closed.Load() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.logger.Warnf("temporary accept error", map[string]any{"error": err.Error()})
				time.Sleep(5 * time.Millisecond)
				continue
			}
			return fmt.Errorf("accept error: %w", err)
		}

		s.connWg.Add(1)
		go s.handleConn(conn)
	}
}

// Addr returns the listener's address, or nil if not listening.
func (s *Server[T]) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Ready reports whether the server is listening and accepting connections.
func (s *Server[T]) Ready(context.Context) error {
	if s.closed.Load() {
		return ErrServerClosed
	}
	if s.stopping.Load() || s.Addr() == nil {
		return ErrNotAccepting
	}
	return nil
}

// Close shuts down the server immediately.
func (s *Server[T]) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrServerClosed
	}
	s.requestMu.Lock()
	s.stopping.Store(true)
	s.requestMu.Unlock()

	s.cancel()
	s.closeAll(true)
	s.connWg.Wait()
	return nil
}

// StopAccepting stops accepting new connections and new requests on existing connections.
func (s *Server[T]) StopAccepting() error {
	s.requestMu.Lock()
	if s.closed.Load() {
		s.requestMu.Unlock()
		return ErrServerClosed
	}
	if s.stopping.Load() {
		s.requestMu.Unlock()
		return nil
	}
	s.stopping.Store(true)
	s.requestMu.Unlock()

	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()

	return nil
}

// Drain waits for in-flight requests to complete, then closes all connections.
// When ctx ends first, remaining handlers are canceled and ctx.Err() is returned.
func (s *Server[T]) Drain(ctx context.Context) error {
	if s.closed.Load() {
		return ErrServerClosed
	}

	done := make(chan struct{})
	go func() {
		s.inflightWg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.cancel()
	}

	s.closeAll(false)
	s.connWg.Wait()
	s.closed.Store(true)
	s.cancel()

	return ctx.Err()
}

// Shutdown stops accepting new connections, drains in-flight requests, and closes connections.
func (s *Server[T]) Shutdown(ctx context.Context) error {
	if err := s.StopAccepting(); err != nil {
		return err
	}
	return s.Drain(ctx)
}

func (s *Server[T]) closeAll(listener bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if listener && s.listener != nil {
		s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
}

// beginRequest registers an in-flight request unless the server is stopping.
func (s *Server[T]) beginRequest() bool {
	s.requestMu.Lock()
	defer s.requestMu.Unlock()
	if s.stopping.Load() || s.closed.Load() {
		return false
	}
	s.inflightWg.Add(1)
	return true
}
