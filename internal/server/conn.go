package server

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/dray-io/wireframe/internal/decoder"
	"github.com/dray-io/wireframe/internal/logging"
	"github.com/dray-io/wireframe/internal/service"
)

// Disconnect reasons recorded in metrics.
const (
	reasonClean     = "clean"
	reasonTruncated = "truncated"
	reasonOverflow  = "overflow"
	reasonDecode    = "decode"
	reasonHandler   = "handler"
	reasonTimeout   = "timeout"
	reasonReset     = "reset"
	reasonIO        = "io"
	reasonShutdown  = "shutdown"
)

// connection is the state of one accepted connection.
type connection[T any] struct {
	srv    *Server[T]
	conn   net.Conn
	id     string
	logger *logging.Logger
	ctx    context.Context
	stream *decoder.Stream[T]
	out    []byte

	// err and reason are set by the consumer when the connection must close.
	err    error
	reason string
}

func (s *Server[T]) handleConn(conn net.Conn) {
	defer s.connWg.Done()

	// Canceled when the connection ends so long-running handlers can exit early.
	connCtx, connCancel := context.WithCancel(s.ctx)
	defer connCancel()
	defer conn.Close()

	id := uuid.NewString()

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ConnectionOpened()
	}

	logger := s.logger.WithConn(id).With(map[string]any{
		"remoteAddr": conn.RemoteAddr().String(),
	})
	logger.Debug("connection accepted")

	c := &connection[T]{
		srv:    s,
		conn:   conn,
		id:     id,
		logger: logger,
		ctx:    logging.WithConnIDCtx(connCtx, id),
	}
	c.stream = decoder.New[T](conn, s.codec.NewStrategy(), s.cfg.BufferCapacity).
		WithLogger(logger).
		WithMetrics(s.decoderMetrics, s.codec.Framing()).
		WithReadTimeout(s.cfg.ReadTimeout)

	var producer service.Producer[[]byte]
	if s.newPusher != nil {
		producer = service.ProducerFunc[[]byte](s.newPusher(id).Push)
	}
	runner := service.NewRunner[T, []byte](c.stream, service.ConsumerFunc[T](c.handle), producer, c.push).
		WithLogger(logger)

	reason := c.serve(runner)

	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ConnectionClosed(reason)
	}
}

// serve runs the connection until it ends and returns why it ended.
func (c *connection[T]) serve(runner *service.Runner[T, []byte]) string {
	for {
		if c.srv.stopping.Load() || c.srv.closed.Load() {
			return reasonShutdown
		}
		_, err := runner.Step(c.ctx)
		if c.err != nil {
			return c.reason
		}
		if err != nil {
			return c.closeReason(err)
		}
	}
}

// handle runs the handler for one request and writes its response.
func (c *connection[T]) handle(req T) {
	s := c.srv
	if !s.beginRequest() {
		c.fail(ErrNotAccepting, reasonShutdown)
		return
	}
	defer s.inflightWg.Done()

	name := s.codec.RequestName(req)
	reqLogger := c.logger.With(map[string]any{"request": name})
	reqLogger.Debug("request received")

	reqCtx, reqCancel := context.WithCancel(logging.WithLoggerCtx(c.ctx, reqLogger))

	// Watch for hang-ups while the handler runs.
	monitorDone := make(chan struct{})
	go monitorConnection(reqCtx, c.conn, reqCancel, s.cfg.CancelOnHalfClose, monitorDone)

	resp, err := s.handler.HandleRequest(reqCtx, req)

	reqCancel()
	<-monitorDone

	if s.metrics != nil {
		s.metrics.RecordRequest(name, err == nil)
	}
	if err != nil {
		reqLogger.Errorf("handler error", map[string]any{"error": err.Error()})
		c.fail(err, reasonHandler)
		return
	}
	if resp == nil {
		return
	}
	if err := c.write(resp); err != nil {
		reqLogger.Warnf("write error", map[string]any{"error": err.Error()})
		c.fail(err, reasonIO)
		return
	}
	reqLogger.Debug("response sent")
}

// push writes a pushed payload. Errors end the runner's step.
func (c *connection[T]) push(payload []byte) error {
	if err := c.write(payload); err != nil {
		return err
	}
	if c.srv.metrics != nil {
		c.srv.metrics.RecordPush()
	}
	return nil
}

func (c *connection[T]) write(payload []byte) error {
	frame, err := c.srv.codec.AppendFrame(c.out[:0], payload)
	if err != nil {
		return err
	}
	c.out = frame
	if c.srv.cfg.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.srv.cfg.WriteTimeout))
	}
	_, err = c.conn.Write(frame)
	return err
}

func (c *connection[T]) fail(err error, reason string) {
	if c.err == nil {
		c.err = err
		c.reason = reason
	}
}

// closeReason logs why the runner stopped and classifies it.
func (c *connection[T]) closeReason(err error) string {
	var de *decoder.DecodeError
	switch {
	case errors.Is(err, decoder.ErrConnectionClosed):
		if pending := len(c.stream.Buffered()); pending > 0 {
			c.logger.Warnf("connection closed mid-frame", map[string]any{"pendingBytes": pending})
			return reasonTruncated
		}
		c.logger.Debug("connection closed")
		return reasonClean
	case errors.Is(err, decoder.ErrOverflow):
		c.logger.Warnf("request exceeds buffer capacity", map[string]any{
			"capacity": c.srv.cfg.BufferCapacity,
		})
		return reasonOverflow
	case errors.As(err, &de):
		c.logger.Warnf("malformed request", map[string]any{"error": err.Error()})
		return reasonDecode
	case c.srv.stopping.Load() || c.srv.closed.Load():
		c.logger.Debug("connection closed by server")
		return reasonShutdown
	case isTimeout(err):
		c.logger.Debug("read timeout")
		return reasonTimeout
	case isConnReset(err):
		c.logger.Debug("connection reset by peer")
		return reasonReset
	default:
		c.logger.Warnf("connection error", map[string]any{"error": err.Error()})
		return reasonIO
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isConnReset(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	return strings.Contains(err.Error(), "connection reset by peer")
}
