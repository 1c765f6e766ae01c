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

// Package transporttest provides an in-memory transport.Transport so
// pool/client/httpplug specs can assert protocol-level behavior
// deterministically, without driving real sockets — the same role the
// teacher's socket package fills with in-process listeners in its own
// *_test.go suites.
package transporttest

import (
	"bytes"
	"context"
	"net"
	"sync"

	"github.com/sabouaram/asyncnet/event"
	"github.com/sabouaram/asyncnet/loop"
	"github.com/sabouaram/asyncnet/transport"
)

// Fake is an in-memory Transport: it records every Write, and a test
// scripts the server side by calling Deliver (data_received) and Fail
// (connection_lost), optionally from OnWrite.
type Fake struct {
	mu      sync.Mutex
	lp      loop.Loop
	handler *event.Handler
	written bytes.Buffer
	closed  bool
	isTLS   bool

	// OnWrite, if set, is called synchronously from Write with the bytes
	// written, letting a test script a reply (via Deliver) in response.
	OnWrite func(p []byte)
}

var _ transport.Transport = (*Fake)(nil)

// New returns a Fake bound to lp. Call Deliver to simulate inbound bytes
// and Fail to simulate connection_lost.
func New(lp loop.Loop) *Fake {
	return &Fake{lp: lp, handler: event.NewHandler()}
}

// MarkTLS flags this Fake as already terminating TLS, for scenarios
// exercising the tunneling handoff without a real certificate.
func (f *Fake) MarkTLS() { f.isTLS = true }

func (f *Fake) Connect(ctx context.Context, addr string) (loop.Future, error) {
	fut := loop.NewFuture()

	f.lp.CallSoon(func() {
		f.handler.Fire(transport.EventConnectionMade, f, nil)
		fut.Callback(f, nil)
	})

	return fut, nil
}

func (f *Fake) Write(p []byte) (int, error) {
	f.mu.Lock()
	f.written.Write(p)
	f.mu.Unlock()

	if f.OnWrite != nil {
		f.OnWrite(p)
	}

	return len(p), nil
}

// Written returns everything written so far.
func (f *Fake) Written() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]byte, f.written.Len())
	copy(out, f.written.Bytes())
	return out
}

// Deliver simulates the peer sending p, firing data_received on the loop.
func (f *Fake) Deliver(p []byte) {
	f.lp.CallSoon(func() {
		f.handler.Fire(transport.EventDataReceived, p, nil)
	})
}

// Fail simulates the peer dropping the connection with err.
func (f *Fake) Fail(err error) {
	f.lp.CallSoon(func() {
		f.handler.Fire(transport.EventConnectionLost, f, err)
	})
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fake) Socket() net.Conn       { return nil }
func (f *Fake) IsTLS() bool            { return f.isTLS }
func (f *Fake) Handler() *event.Handler { return f.handler }
