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

// Package loop realizes the single-threaded cooperative event loop of the
// original async client as a Go actor: one goroutine draining a channel of
// closures. Client and Pool still guard their own state with a mutex, since
// they are also called from goroutines other than the loop's.
package loop

import (
	"context"
	"sync"
	"time"
)

// Future is a one-shot result slot, chainable like the original Deferred.
type Future interface {
	// Callback resolves the future. Only the first call has effect.
	Callback(result interface{}, err error)
	// Chain runs fn with the result and error once this future resolves.
	// Registering against an already-resolved Future invokes fn
	// immediately.
	Chain(fn func(result interface{}, err error))
	// Wait blocks until resolved or ctx is done.
	Wait(ctx context.Context) (interface{}, error)
	Done() <-chan struct{}
}

type future struct {
	once   sync.Once
	done   chan struct{}
	result interface{}
	err    error

	mu    sync.Mutex
	chain []func(interface{}, error)
}

// NewFuture returns an unresolved Future.
func NewFuture() Future {
	return &future{done: make(chan struct{})}
}

func (f *future) Callback(result interface{}, err error) {
	f.once.Do(func() {
		f.result = result
		f.err = err
		close(f.done)

		f.mu.Lock()
		cbs := f.chain
		f.chain = nil
		f.mu.Unlock()

		for _, cb := range cbs {
			cb(result, err)
		}
	})
}

func (f *future) Chain(fn func(result interface{}, err error)) {
	if fn == nil {
		return
	}

	select {
	case <-f.done:
		fn(f.result, f.err)
		return
	default:
	}

	f.mu.Lock()
	select {
	case <-f.done:
		f.mu.Unlock()
		fn(f.result, f.err)
		return
	default:
	}
	f.chain = append(f.chain, fn)
	f.mu.Unlock()
}

func (f *future) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *future) Done() <-chan struct{} { return f.done }

// Loop is a Client's callback queue: transport events, reconnect pacing
// and deferred work run here one at a time. Pool and client bookkeeping is
// additionally guarded by their own mutexes.
type Loop interface {
	// CallSoon queues fn to run on the loop goroutine, FIFO, as soon as
	// prior work drains. Used for the tunneling next-tick handoff.
	CallSoon(fn func())
	// CallLater queues fn to run after delay, used for reconnect pacing.
	CallLater(delay time.Duration, fn func()) (cancel func())
	// RunUntilComplete submits fut-producing work and blocks the caller
	// (not the loop) until it resolves or ctx is done.
	RunUntilComplete(ctx context.Context, submit func() Future) (interface{}, error)
	// Stop drains pending work and stops the goroutine. Safe to call once.
	Stop()
}

type loop struct {
	mu       sync.Mutex
	pending  chan func()
	stopped  bool
	stopOnce sync.Once
	done     chan struct{}
}

// New starts a Loop goroutine and returns it.
func New() Loop {
	l := &loop{
		pending: make(chan func(), 256),
		done:    make(chan struct{}),
	}

	go l.run()

	return l
}

func (l *loop) run() {
	defer close(l.done)

	for fn := range l.pending {
		fn()
	}
}

func (l *loop) CallSoon(fn func()) {
	if fn == nil {
		return
	}

	l.mu.Lock()
	stopped := l.stopped
	l.mu.Unlock()

	if stopped {
		return
	}

	l.pending <- fn
}

func (l *loop) CallLater(delay time.Duration, fn func()) func() {
	if fn == nil {
		return func() {}
	}

	timer := time.AfterFunc(delay, func() {
		l.CallSoon(fn)
	})

	return func() { timer.Stop() }
}

func (l *loop) RunUntilComplete(ctx context.Context, submit func() Future) (interface{}, error) {
	resultCh := make(chan Future, 1)

	l.CallSoon(func() {
		resultCh <- submit()
	})

	select {
	case fut := <-resultCh:
		return fut.Wait(ctx)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *loop) Stop() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.stopped = true
		l.mu.Unlock()
		close(l.pending)
	})

	<-l.done
}
