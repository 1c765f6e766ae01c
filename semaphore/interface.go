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

// Package semaphore provides ConnectionPool's admission control: a weighted
// semaphore capping concurrent connections at max_connections, with an
// optional mpb progress bar tracking pool saturation for long-lived
// processes (the teacher's bar/nobar split, collapsed to one flag here).
package semaphore

import (
	"context"
	"sync"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/sync/semaphore"
)

// Sem bounds concurrent holders of a resource to a fixed capacity.
type Sem interface {
	// Acquire blocks until a slot is free or ctx is done.
	Acquire(ctx context.Context) error
	// TryAcquire reports whether a slot was free, without blocking.
	TryAcquire() bool
	Release()
	// InUse returns the current number of held slots, best-effort.
	InUse() int64
	Capacity() int64
}

type weighted struct {
	w     *semaphore.Weighted
	cap   int64
	inUse int64mu
	bar   *mpb.Bar
}

type int64mu struct {
	mu sync.Mutex
	n  int64
}

func (c *int64mu) add(d int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n += d
	return c.n
}

func (c *int64mu) get() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// New returns a Sem capped at capacity. If capacity <= 0, the semaphore
// never blocks (unbounded pools, matching a zero max_connections config).
func New(capacity int64) Sem {
	if capacity <= 0 {
		return &unbounded{}
	}

	return &weighted{
		w:   semaphore.NewWeighted(capacity),
		cap: capacity,
	}
}

// NewWithProgress is New plus an mpb bar rendered on progress, for CLI
// tools that want live pool-saturation feedback.
func NewWithProgress(capacity int64, progress *mpb.Progress, name string) Sem {
	s := New(capacity)

	w, ok := s.(*weighted)
	if !ok || progress == nil {
		return s
	}

	w.bar = progress.AddBar(capacity,
		mpb.PrependDecorators(decor.Name(name)),
		mpb.AppendDecorators(decor.CountersNoUnit("%d / %d")),
	)

	return w
}

func (w *weighted) Acquire(ctx context.Context) error {
	if err := w.w.Acquire(ctx, 1); err != nil {
		return err
	}

	n := w.inUse.add(1)
	if w.bar != nil {
		w.bar.SetCurrent(n)
	}

	return nil
}

func (w *weighted) TryAcquire() bool {
	if !w.w.TryAcquire(1) {
		return false
	}

	n := w.inUse.add(1)
	if w.bar != nil {
		w.bar.SetCurrent(n)
	}

	return true
}

func (w *weighted) Release() {
	w.w.Release(1)
	n := w.inUse.add(-1)

	if w.bar != nil {
		w.bar.SetCurrent(n)
	}
}

func (w *weighted) InUse() int64 {
	return w.inUse.get()
}

func (w *weighted) Capacity() int64 {
	return w.cap
}

// unbounded is the Sem used when no admission limit is configured.
type unbounded struct {
	inUse int64mu
}

func (u *unbounded) Acquire(ctx context.Context) error {
	u.inUse.add(1)
	return nil
}

func (u *unbounded) TryAcquire() bool {
	u.inUse.add(1)
	return true
}

func (u *unbounded) Release() {
	u.inUse.add(-1)
}

func (u *unbounded) InUse() int64 { return u.inUse.get() }
func (u *unbounded) Capacity() int64 { return 0 }
