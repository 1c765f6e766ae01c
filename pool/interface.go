/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package pool implements ConnectionPool: a per-endpoint bucket of reusable
// connections bounded by a semaphore.Sem, with reconnection scheduling on
// connection loss. Pool never imports package client directly — it talks
// back through the narrow ClientHandle interface, breaking the
// Connection/Pool/Client reference cycle the teacher's own httpcli avoids
// with HttpClient-shaped narrow interfaces.
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"golang.org/x/time/rate"

	"github.com/sabouaram/asyncnet/atomic"
	"github.com/sabouaram/asyncnet/connection"
	"github.com/sabouaram/asyncnet/consumer"
	"github.com/sabouaram/asyncnet/duration"
	liberr "github.com/sabouaram/asyncnet/errors"
	"github.com/sabouaram/asyncnet/logger"
	"github.com/sabouaram/asyncnet/loop"
	"github.com/sabouaram/asyncnet/semaphore"
	"github.com/sabouaram/asyncnet/transport"
)

// defaultReconnectRate bounds how fast one Pool redials after connection
// loss, independent of duration.ReconnectGap's per-consumer backoff: a
// server restart that drops every connection in the pool at once should
// still trickle reconnects out instead of dialing all of them in the same
// instant.
const (
	defaultReconnectRate  = 20
	defaultReconnectBurst = 5
)

func init() {
	liberr.RegisterMessage(ErrTooManyConnections, "too many connections")
	liberr.RegisterMessage(ErrPoolClosed, "pool is closed")
}

const (
	ErrTooManyConnections liberr.CodeError = iota + 600
	ErrPoolClosed
)

// ClientHandle is the narrow view of client.Client a Pool needs: transport
// and consumer factories, retry/reconnect policy, and self-deregistration.
// Implemented by *client.Client; pool never imports client's concrete type.
type ClientHandle interface {
	NewTransport() transport.Transport
	NewConsumer() *consumer.ProtocolConsumer
	CanReuseConnection(conn *connection.Connection, resp *consumer.ProtocolConsumer) bool
	MaxReconnect() int
	ReconnectingGap() time.Duration
	Loop() loop.Loop
	RemovePool(p *Pool)
}

// Pool is a per-endpoint (address, idle timeout) cache of Connections.
type Pool struct {
	Address     string
	IdleTimeout time.Duration
	Log         logger.Logger

	client ClientHandle
	sem    semaphore.Sem

	reconnectLimiter *rate.Limiter
	closed           atomic.Bool

	mu        sync.Mutex
	available []*connection.Connection
	concurrent map[*connection.Connection]struct{}
}

// New returns a Pool for address, bounded by maxConnections (0 = unbounded).
func New(address string, idleTimeout time.Duration, maxConnections int64, client ClientHandle, log logger.Logger) *Pool {
	return newPool(address, idleTimeout, maxConnections, client, log, semaphore.New(maxConnections))
}

// NewWithProgress is New plus a live mpb bar tracking pool saturation: every
// GetOrCreateConnection/ReleaseConnection/Close moves the same semaphore
// permits an mpb-less Pool would, so the bar reflects real admission-control
// state rather than a value synthesized for display.
func NewWithProgress(address string, idleTimeout time.Duration, maxConnections int64, client ClientHandle, log logger.Logger, progress *mpb.Progress) *Pool {
	return newPool(address, idleTimeout, maxConnections, client, log, semaphore.NewWithProgress(maxConnections, progress, address))
}

func newPool(address string, idleTimeout time.Duration, maxConnections int64, client ClientHandle, log logger.Logger, sem semaphore.Sem) *Pool {
	if log == nil {
		log = logger.NewNop()
	}

	return &Pool{
		Address:          address,
		IdleTimeout:      idleTimeout,
		Log:              log,
		client:           client,
		sem:              sem,
		reconnectLimiter: rate.NewLimiter(rate.Limit(defaultReconnectRate), defaultReconnectBurst),
		concurrent:       make(map[*connection.Connection]struct{}),
	}
}

// GetOrCreateConnection drains a non-stale idle connection if one exists,
// otherwise admits and dials a fresh one, per spec.md §4.3.
func (p *Pool) GetOrCreateConnection(ctx context.Context) (*connection.Connection, error) {
	if conn := p.drainAvailable(); conn != nil {
		p.mu.Lock()
		p.concurrent[conn] = struct{}{}
		p.mu.Unlock()

		p.Log.Debugf("pool %s: reused connection %s", p.Address, conn.ID)
		return conn, nil
	}

	if !p.sem.TryAcquire() {
		return nil, liberr.New(ErrTooManyConnections)
	}

	t := p.client.NewTransport()
	conn := connection.New(t, p, p.Log)

	fut, err := t.Connect(ctx, p.Address)
	if err != nil {
		p.sem.Release()
		return nil, err
	}

	if _, err := fut.Wait(ctx); err != nil {
		p.sem.Release()
		return nil, err
	}

	p.mu.Lock()
	p.concurrent[conn] = struct{}{}
	p.mu.Unlock()

	p.Log.Debugf("pool %s: created connection %s", p.Address, conn.ID)
	return conn, nil
}

// drainAvailable pops idle connections until a non-stale one is found,
// force-closing any stale ones it removes along the way.
func (p *Pool) drainAvailable() *connection.Connection {
	for {
		p.mu.Lock()
		if len(p.available) == 0 {
			p.mu.Unlock()
			return nil
		}

		conn := p.available[len(p.available)-1]
		p.available = p.available[:len(p.available)-1]
		p.mu.Unlock()

		if conn.IsStale() {
			_ = conn.Close()
			p.sem.Release()
			continue
		}

		return conn
	}
}

// ReleaseConnection returns conn to the idle reservoir if reusable, per
// spec.md §4.3; otherwise closes it. Deregisters the pool from its client
// once both sets are empty.
func (p *Pool) ReleaseConnection(conn *connection.Connection, resp *consumer.ProtocolConsumer) {
	p.mu.Lock()
	delete(p.concurrent, conn)
	p.mu.Unlock()

	reuse := !conn.IsClosed() && p.client.CanReuseConnection(conn, resp)

	if reuse {
		p.mu.Lock()
		p.available = append(p.available, conn)
		p.mu.Unlock()
		p.Log.Debugf("pool %s: released connection %s for reuse", p.Address, conn.ID)
	} else {
		_ = conn.Close()
		p.sem.Release()
		p.Log.Debugf("pool %s: discarded connection %s", p.Address, conn.ID)
	}

	p.maybeDeregister()
}

func (p *Pool) maybeDeregister() {
	p.mu.Lock()
	empty := len(p.available) == 0 && len(p.concurrent) == 0
	p.mu.Unlock()

	if empty {
		p.client.RemovePool(p)
	}
}

// Close closes every connection the pool is tracking, idle (available) and
// in-flight (concurrent) alike, releasing each one's semaphore permit and,
// for any connection with a consumer still attached, synchronously
// delivering connection_lost then Finish(ErrPoolClosed) — per spec.md §5,
// Abort closes every transport with outstanding consumers resolving with
// failure rather than being left to hang. Marks the pool closed first so
// ConnectionLost ignores the same connections' own async connection_lost
// firing once Transport.Close unblocks their read loops.
func (p *Pool) Close() error {
	p.closed.Store(true)

	p.mu.Lock()
	conns := make([]*connection.Connection, 0, len(p.available)+len(p.concurrent))
	conns = append(conns, p.available...)
	for c := range p.concurrent {
		conns = append(conns, c)
	}
	p.available = nil
	p.concurrent = make(map[*connection.Connection]struct{})
	p.mu.Unlock()

	exc := liberr.New(ErrPoolClosed)

	var firstErr error
	for _, conn := range conns {
		if cons := conn.Current(); cons != nil {
			cons.ConnectionLost(exc)
			cons.Finish(exc)
		}

		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}

		p.sem.Release()
	}

	return firstErr
}

// ConnectionLost implements connection.Producer: on a network failure
// with an attached consumer, schedule a bounded reconnect per spec.md §4.4;
// otherwise drop the connection from bookkeeping. A no-op once Close has
// run: Close's own conn.Close() calls trip this same handler a second time
// (asynchronously, once the read loop notices its socket went away), and
// by then Close has already released every permit and finished every
// consumer itself.
func (p *Pool) ConnectionLost(conn *connection.Connection, exc error) {
	if p.closed.Load() {
		return
	}

	p.mu.Lock()
	delete(p.concurrent, conn)
	for i, c := range p.available {
		if c == conn {
			p.available = append(p.available[:i], p.available[i+1:]...)
			break
		}
	}
	p.mu.Unlock()

	cons := conn.Current()
	if exc == nil || cons == nil {
		p.sem.Release()
		p.maybeDeregister()
		return
	}

	retries := cons.CanReconnect(p.client.MaxReconnect(), exc)
	if retries <= 0 {
		p.sem.Release()
		cons.Finish(exc)
		p.maybeDeregister()
		return
	}

	lag := time.Duration(retries-1) * time.Second
	if lag <= 0 {
		p.reconnect(cons)
		return
	}

	delay := duration.ReconnectGap(p.client.ReconnectingGap(), lag)
	p.client.Loop().CallLater(delay, func() {
		p.reconnect(cons)
	})
}

// reconnect redials on the same semaphore permit the lost connection already
// held (ConnectionLost's retry path never released it), so no Acquire here.
// Gated by reconnectLimiter so a whole pool dropping at once (server
// restart) trickles redials instead of bursting them; reschedules itself
// via CallLater rather than blocking the loop goroutine on the limiter.
func (p *Pool) reconnect(cons *consumer.ProtocolConsumer) {
	if !p.reconnectLimiter.Allow() {
		p.client.Loop().CallLater(p.reconnectLimiter.Reserve().Delay(), func() {
			p.reconnect(cons)
		})
		return
	}

	t := p.client.NewTransport()
	conn := connection.New(t, p, p.Log)
	conn.Attach(cons)

	fut, err := t.Connect(context.Background(), p.Address)
	if err != nil {
		cons.Finish(err)
		return
	}

	fut.Chain(func(_ interface{}, err error) {
		if err != nil {
			cons.Finish(err)
			return
		}

		p.mu.Lock()
		p.concurrent[conn] = struct{}{}
		p.mu.Unlock()

		// Replay the request without re-firing pre_request side effects,
		// per spec.md §4.4: a direct write, not a fresh NewRequest.
		if req := cons.CurrentRequest(); req != nil {
			if rw, ok := req.(interface{ Bytes() []byte }); ok {
				_, _ = conn.Write(rw.Bytes())
			}
		}
	})
}
