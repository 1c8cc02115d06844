// Package dispatcher levels incoming connections across a fixed pool of
// goroutines. The accept loop only queues connections; each worker reads one
// request, routes it and closes the connection.
package dispatcher

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/akylbek/payment-system/intake-gateway/internal/queue"
)

type Dispatcher struct {
	handler     http.Handler
	workers     int
	readTimeout time.Duration
	logger      *zap.Logger

	conns    *queue.BlockingQueue[net.Conn]
	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

func New(handler http.Handler, workers int, readTimeout time.Duration, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handler:     handler,
		workers:     workers,
		readTimeout: readTimeout,
		logger:      logger,
		conns:       queue.New[net.Conn](),
	}
}

// Serve starts the workers and accepts on ln until Shutdown. It returns
// http.ErrServerClosed after a clean shutdown.
func (d *Dispatcher) Serve(ln net.Listener) error {
	d.mu.Lock()
	d.listener = ln
	d.mu.Unlock()

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return http.ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}
		if !d.conns.Push(conn) {
			_ = conn.Close()
		}
	}
}

// Shutdown stops accepting, lets the workers answer every queued connection
// and waits for them.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	if d.listener != nil {
		_ = d.listener.Close()
	}
	d.mu.Unlock()

	d.conns.Close()
	d.wg.Wait()
}

// Queued reports connections accepted but not yet picked up.
func (d *Dispatcher) Queued() int { return d.conns.Len() }

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for {
		conn, ok := d.conns.Pop()
		if !ok {
			return
		}
		d.serveConn(conn)
	}
}

func (d *Dispatcher) serveConn(conn net.Conn) {
	defer conn.Close()

	if d.readTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(d.readTimeout))
	}

	req, err := http.ReadRequest(bufio.NewReader(conn))
	if err != nil {
		d.logger.Debug("Failed to read request", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
		return
	}
	req.RemoteAddr = conn.RemoteAddr().String()

	rw := newResponseWriter()
	d.serveHTTP(rw, req)

	if err := rw.response(req).Write(conn); err != nil {
		d.logger.Debug("Failed to write response", zap.Error(err))
	}
}

func (d *Dispatcher) serveHTTP(rw *responseWriter, req *http.Request) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Handler panicked", zap.Any("panic", r))
			rw.reset()
			rw.Header().Set("Content-Type", "application/json")
			rw.WriteHeader(http.StatusInternalServerError)
			_, _ = rw.Write([]byte(`{"error":"Internal Server Error"}`))
		}
	}()
	d.handler.ServeHTTP(rw, req)
}
