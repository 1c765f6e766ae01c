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

// Package atomic wraps sync/atomic with typed helpers for the few shared
// mutable counters that are touched from more than one goroutine: the
// consumer's received-byte counter, the connection's closed/stale flags and
// processed counter, and the pool's closed flag.
package atomic

import "sync/atomic"

// Int64 is a thin wrapper over atomic.Int64 giving call sites a named type
// instead of a bare int64 field guarded by convention.
type Int64 struct {
	v atomic.Int64
}

func (i *Int64) Load() int64        { return i.v.Load() }
func (i *Int64) Store(n int64)      { i.v.Store(n) }
func (i *Int64) Add(n int64) int64  { return i.v.Add(n) }
func (i *Int64) Swap(n int64) int64 { return i.v.Swap(n) }

// CompareAndSwap reports whether the swap took place.
func (i *Int64) CompareAndSwap(old, new int64) bool {
	return i.v.CompareAndSwap(old, new)
}

// Bool is a thin wrapper over atomic.Bool for one-shot flags such as
// Connection.closed or Pool.closed that are read from the
// actor loop but may be set from a callback running on another goroutine.
type Bool struct {
	v atomic.Bool
}

func (b *Bool) Load() bool   { return b.v.Load() }
func (b *Bool) Store(v bool) { b.v.Store(v) }

// CompareAndSwap reports whether the swap took place.
func (b *Bool) CompareAndSwap(old, new bool) bool {
	return b.v.CompareAndSwap(old, new)
}
