/*
 * MIT License
 *
 * Copyright (c) 2019 Nicolas JUHEL
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

// Package context provides a generic, concurrency-safe key/value map bound
// to a context.Context. It is a standalone utility: no other package of
// this module imports it (client.Client keys its pools in a plain map and
// client.Params.Extra is a plain map too).
package context

import (
	"context"
	"sync"
	"time"
)

// FuncWalk is called for each key/value pair during a Walk; return false to
// stop the iteration early.
type FuncWalk[T comparable] func(key T, val interface{}) bool

// Map is a generic, concurrency-safe key/value store scoped to a
// context.Context.
type Map[T comparable] interface {
	context.Context

	Load(key T) (val interface{}, ok bool)
	Store(key T, val interface{})
	Delete(key T)
	Clean()
	Len() int

	Walk(fct FuncWalk[T])
	LoadOrStore(key T, val interface{}) (interface{}, bool)
	LoadAndDelete(key T) (interface{}, bool)

	Clone(ctx context.Context) Map[T]
}

type cmap[T comparable] struct {
	mu sync.RWMutex
	m  map[T]interface{}
	x  context.Context
}

// New returns a Map bound to ctx (context.Background() if ctx is nil).
func New[T comparable](ctx context.Context) Map[T] {
	if ctx == nil {
		ctx = context.Background()
	}

	return &cmap[T]{
		m: make(map[T]interface{}),
		x: ctx,
	}
}

func (c *cmap[T]) Deadline() (deadline time.Time, ok bool) {
	return c.x.Deadline()
}

func (c *cmap[T]) Done() <-chan struct{} {
	return c.x.Done()
}

func (c *cmap[T]) Err() error {
	return c.x.Err()
}

func (c *cmap[T]) Value(key interface{}) interface{} {
	return c.x.Value(key)
}

func (c *cmap[T]) Load(key T) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *cmap[T]) Store(key T, val interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if val == nil {
		delete(c.m, key)
		return
	}

	c.m[key] = val
}

func (c *cmap[T]) Delete(key T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
}

func (c *cmap[T]) Clean() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = make(map[T]interface{})
}

func (c *cmap[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

func (c *cmap[T]) Walk(fct FuncWalk[T]) {
	if fct == nil {
		return
	}

	c.mu.RLock()
	cp := make(map[T]interface{}, len(c.m))
	for k, v := range c.m {
		cp[k] = v
	}
	c.mu.RUnlock()

	for k, v := range cp {
		if !fct(k, v) {
			return
		}
	}
}

func (c *cmap[T]) LoadOrStore(key T, val interface{}) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.m[key]; ok {
		return v, true
	}

	c.m[key] = val
	return val, false
}

func (c *cmap[T]) LoadAndDelete(key T) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.m[key]
	if ok {
		delete(c.m, key)
	}

	return v, ok
}

func (c *cmap[T]) Clone(ctx context.Context) Map[T] {
	if ctx == nil {
		ctx = c.x
	}

	n := New[T](ctx).(*cmap[T])

	c.mu.RLock()
	defer c.mu.RUnlock()

	for k, v := range c.m {
		n.m[k] = v
	}

	return n
}
