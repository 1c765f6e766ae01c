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

package atomic_test

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/asyncnet/atomic"
)

var _ = Describe("Int64", func() {
	It("stores and loads a value", func() {
		var n atomic.Int64
		n.Store(42)
		Expect(n.Load()).To(Equal(int64(42)))
	})

	It("adds and returns the new value", func() {
		var n atomic.Int64
		n.Store(10)
		Expect(n.Add(5)).To(Equal(int64(15)))
		Expect(n.Load()).To(Equal(int64(15)))
	})

	It("swaps and returns the previous value", func() {
		var n atomic.Int64
		n.Store(10)
		Expect(n.Swap(20)).To(Equal(int64(10)))
		Expect(n.Load()).To(Equal(int64(20)))
	})

	It("only swaps via CompareAndSwap when the old value matches", func() {
		var n atomic.Int64
		n.Store(10)

		Expect(n.CompareAndSwap(5, 99)).To(BeFalse())
		Expect(n.Load()).To(Equal(int64(10)))

		Expect(n.CompareAndSwap(10, 99)).To(BeTrue())
		Expect(n.Load()).To(Equal(int64(99)))
	})

	It("survives concurrent Add calls without losing updates", func() {
		var n atomic.Int64
		var wg sync.WaitGroup

		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				n.Add(1)
			}()
		}
		wg.Wait()

		Expect(n.Load()).To(Equal(int64(100)))
	})
})

var _ = Describe("Bool", func() {
	It("stores and loads a value", func() {
		var b atomic.Bool
		Expect(b.Load()).To(BeFalse())

		b.Store(true)
		Expect(b.Load()).To(BeTrue())
	})

	It("only swaps via CompareAndSwap once, matching a one-shot flag", func() {
		var b atomic.Bool

		Expect(b.CompareAndSwap(false, true)).To(BeTrue())
		Expect(b.CompareAndSwap(false, true)).To(BeFalse())
		Expect(b.Load()).To(BeTrue())
	})
})
