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

// Package transport is the external-collaborator boundary for byte-stream
// I/O: a Transport is a bidirectional stream bound to one remote address,
// optionally TLS, delivering lifecycle events through an *event.Handler.
// Connection is the only caller; Transport itself never touches consumer
// or pool state.
package transport

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/sabouaram/asyncnet/event"
	"github.com/sabouaram/asyncnet/loop"
)

// Event names fired on a Transport's Handler.
const (
	EventConnectionMade = "connection_made"
	EventDataReceived   = "data_received"
	EventConnectionLost = "connection_lost"
)

// Transport is a bidirectional byte stream bound to one remote address.
type Transport interface {
	// Connect dials addr and resolves the returned Future with this
	// Transport once connection_made would fire.
	Connect(ctx context.Context, addr string) (loop.Future, error)
	Write(p []byte) (int, error)
	Close() error
	// Socket exposes the underlying net.Conn, used by httpplug.Tunneling
	// to rewrap a CONNECT tunnel in TLS via TLSWrap.
	Socket() net.Conn
	// IsTLS reports whether this Transport terminates TLS.
	IsTLS() bool
	Handler() *event.Handler
}

// TLSConfigFunc lazily builds a *tls.Config, deferring the certificates
// package import to call sites that actually need TLS.
type TLSConfigFunc func() (*tls.Config, error)

type tcpTransport struct {
	lp      loop.Loop
	handler *event.Handler
	conn    net.Conn
	tlsCfg  TLSConfigFunc
	isTLS   bool
	dialer  net.Dialer
}

// New returns a plain TCP Transport. If tlsCfg is non-nil, Connect
// establishes TLS directly (https-style dialing); otherwise a later
// TLSWrap call upgrades a live plain connection (proxy CONNECT tunneling).
func New(lp loop.Loop, tlsCfg TLSConfigFunc) Transport {
	return &tcpTransport{
		lp:      lp,
		handler: event.NewHandler(),
		tlsCfg:  tlsCfg,
	}
}

func (t *tcpTransport) Connect(ctx context.Context, addr string) (loop.Future, error) {
	fut := loop.NewFuture()

	go func() {
		conn, err := t.dial(ctx, addr)
		if err != nil {
			fut.Callback(nil, err)
			return
		}

		t.conn = conn
		t.lp.CallSoon(func() {
			t.handler.Fire(EventConnectionMade, t, nil)
			fut.Callback(t, nil)
		})

		go t.readLoop()
	}()

	return fut, nil
}

func (t *tcpTransport) dial(ctx context.Context, addr string) (net.Conn, error) {
	if t.tlsCfg == nil {
		return t.dialer.DialContext(ctx, "tcp", addr)
	}

	cfg, err := t.tlsCfg()
	if err != nil {
		return nil, err
	}

	t.isTLS = true

	d := tls.Dialer{NetDialer: &t.dialer, Config: cfg}
	return d.DialContext(ctx, "tcp", addr)
}

func (t *tcpTransport) readLoop() {
	buf := make([]byte, 32*1024)

	for {
		n, err := t.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			t.lp.CallSoon(func() {
				t.handler.Fire(EventDataReceived, chunk, nil)
			})
		}

		if err != nil {
			t.lp.CallSoon(func() {
				t.handler.Fire(EventConnectionLost, t, err)
			})
			return
		}
	}
}

func (t *tcpTransport) Write(p []byte) (int, error) {
	if t.conn == nil {
		return 0, net.ErrClosed
	}

	return t.conn.Write(p)
}

func (t *tcpTransport) Close() error {
	if t.conn == nil {
		return nil
	}

	return t.conn.Close()
}

func (t *tcpTransport) Socket() net.Conn { return t.conn }
func (t *tcpTransport) IsTLS() bool      { return t.isTLS }
func (t *tcpTransport) Handler() *event.Handler { return t.handler }

// TLSWrap rewraps an already-connected plain Transport's socket in TLS,
// used by httpplug.Tunneling after a successful proxy CONNECT. The returned
// Transport reuses lp, fires connection_made on its own Handler once the
// handshake completes (scheduled via CallSoon, same as Connect, so the
// caller has a window to silence it before the loop goroutine gets to it),
// and starts its own read loop. The caller is responsible for silencing
// this connection_made on the returned Transport's own Handler — not the
// original plain Transport's — to avoid double-firing it (spec.md §4.6 S6).
//
// TODO: the original plain Transport's readLoop goroutine is not stopped
// here, so it keeps blocked on the same net.Conn the new TLS read loop now
// also reads from. In practice the CONNECT response's transport is
// discarded immediately after this call and never produces another read,
// but the two goroutines racing on one fd is still a latent hazard worth
// closing by giving tcpTransport an explicit single-reader handoff.
func TLSWrap(lp loop.Loop, conn net.Conn, cfg *tls.Config, serverHostname string) (Transport, error) {
	c := cfg
	if c == nil {
		c = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if c.ServerName == "" {
		c2 := c.Clone()
		c2.ServerName = serverHostname
		c = c2
	}

	tlsConn := tls.Client(conn, c)

	t := &tcpTransport{
		lp:      lp,
		handler: event.NewHandler(),
		conn:    tlsConn,
		isTLS:   true,
	}

	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		return nil, err
	}

	lp.CallSoon(func() {
		t.handler.Fire(EventConnectionMade, t, nil)
	})

	go t.readLoop()

	return t, nil
}
