// Package pool implements a fixed-size pool of pre-established connections
// with scoped checkout.
package pool

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/akylbek/payment-system/intake-gateway/internal/queue"
)

var ErrPoolClosed = errors.New("connection pool closed")

// DialFunc establishes one connection.
type DialFunc[C any] func() (C, error)

// CloseFunc tears one connection down when the pool is closed.
type CloseFunc[C any] func(C) error

// Pool hands out exclusive connections. All of them are created up front and
// Acquire blocks while every connection is checked out. Connections are
// never health-checked on checkout.
type Pool[C any] struct {
	idle    *queue.BlockingQueue[C]
	size    int
	inUse   atomic.Int64
	closeFn CloseFunc[C]
	closed  atomic.Bool
}

// New dials size connections. If any dial fails, the ones already created
// are closed and the error is returned.
func New[C any](size int, dial DialFunc[C], closeFn CloseFunc[C]) (*Pool[C], error) {
	if size < 1 {
		return nil, fmt.Errorf("pool size must be positive, got %d", size)
	}

	p := &Pool[C]{
		idle:    queue.New[C](),
		size:    size,
		closeFn: closeFn,
	}

	created := make([]C, 0, size)
	for i := 0; i < size; i++ {
		conn, err := dial()
		if err != nil {
			for _, c := range created {
				p.closeConn(c)
			}
			return nil, fmt.Errorf("dial connection %d/%d: %w", i+1, size, err)
		}
		created = append(created, conn)
	}

	for _, c := range created {
		p.idle.Push(c)
	}

	return p, nil
}

// Acquire checks a connection out, blocking until one is free. The caller
// must release the lease, normally with defer.
func (p *Pool[C]) Acquire() (*Lease[C], error) {
	conn, ok := p.idle.Pop()
	if !ok {
		return nil, ErrPoolClosed
	}
	p.inUse.Add(1)
	return &Lease[C]{conn: conn, pool: p}, nil
}

// With runs fn with a checked-out connection. The connection goes back to
// the pool when fn returns, fails or panics.
func (p *Pool[C]) With(fn func(C) error) error {
	lease, err := p.Acquire()
	if err != nil {
		return err
	}
	defer lease.Release()

	return fn(lease.Conn())
}

// Do is With for callbacks that produce a value.
func Do[C, T any](p *Pool[C], fn func(C) (T, error)) (T, error) {
	lease, err := p.Acquire()
	if err != nil {
		var zero T
		return zero, err
	}
	defer lease.Release()

	return fn(lease.Conn())
}

func (p *Pool[C]) Size() int { return p.size }

// InUse reports how many connections are currently checked out.
func (p *Pool[C]) InUse() int { return int(p.inUse.Load()) }

// Available reports how many connections are idle.
func (p *Pool[C]) Available() int { return p.idle.Len() }

// Close closes idle connections and rejects further checkouts. Connections
// released after Close are closed on return.
func (p *Pool[C]) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.idle.Close()
	for {
		conn, ok := p.idle.TryPop()
		if !ok {
			return
		}
		p.closeConn(conn)
	}
}

func (p *Pool[C]) put(conn C) {
	p.inUse.Add(-1)
	if p.closed.Load() || !p.idle.Push(conn) {
		p.closeConn(conn)
	}
}

func (p *Pool[C]) closeConn(conn C) {
	if p.closeFn != nil {
		_ = p.closeFn(conn)
	}
}

// Lease is one checked-out connection.
type Lease[C any] struct {
	conn     C
	pool     *Pool[C]
	released atomic.Bool
}

func (l *Lease[C]) Conn() C { return l.conn }

// Release returns the connection to its pool. Only the first call has any
// effect.
func (l *Lease[C]) Release() {
	if !l.released.CompareAndSwap(false, true) {
		return
	}
	var zero C
	conn := l.conn
	l.conn = zero
	l.pool.put(conn)
}
