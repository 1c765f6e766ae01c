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

package event_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/asyncnet/event"
)

var _ = Describe("Handler", func() {
	const name = "tick"

	It("runs nothing and returns the input result for an unbound event", func() {
		h := event.NewHandler()
		Expect(h.Fire(name, "seed", nil)).To(Equal("seed"))
		Expect(h.HasHandlers(name)).To(BeFalse())
	})

	It("runs bound handlers in registration order, chaining their results", func() {
		h := event.NewHandler()
		var order []string

		h.Bind(name, func(result event.Result, exc error) event.Result {
			order = append(order, "first")
			return result.(string) + "-a"
		})
		h.Bind(name, func(result event.Result, exc error) event.Result {
			order = append(order, "second")
			return result.(string) + "-b"
		})

		Expect(h.Fire(name, "seed", nil)).To(Equal("seed-a-b"))
		Expect(order).To(Equal([]string{"first", "second"}))
	})

	It("leaves the result unchanged when a handler returns nil", func() {
		h := event.NewHandler()
		h.Bind(name, func(result event.Result, exc error) event.Result {
			return nil
		})

		Expect(h.Fire(name, "seed", nil)).To(Equal("seed"))
	})

	It("passes the original error to every handler in the chain unchanged", func() {
		h := event.NewHandler()
		boom := errors.New("boom")
		var seen []error

		h.Bind(name, func(result event.Result, exc error) event.Result {
			seen = append(seen, exc)
			return result
		})
		h.Bind(name, func(result event.Result, exc error) event.Result {
			seen = append(seen, exc)
			return result
		})

		h.Fire(name, nil, boom)
		Expect(seen).To(Equal([]error{boom, boom}))
	})

	It("runs a BindOnce handler exactly once across repeated fires", func() {
		h := event.NewHandler()
		calls := 0

		h.BindOnce(name, func(result event.Result, exc error) event.Result {
			calls++
			return result
		})

		h.Fire(name, nil, nil)
		h.Fire(name, nil, nil)
		h.Fire(name, nil, nil)

		Expect(calls).To(Equal(1))
	})

	It("keeps running later Bind handlers after a BindOnce handler has already fired", func() {
		h := event.NewHandler()
		var order []string

		h.BindOnce(name, func(result event.Result, exc error) event.Result {
			order = append(order, "once")
			return result
		})
		h.Bind(name, func(result event.Result, exc error) event.Result {
			order = append(order, "every")
			return result
		})

		h.Fire(name, nil, nil)
		h.Fire(name, nil, nil)

		Expect(order).To(Equal([]string{"once", "every", "every"}))
	})

	It("suppresses only the next firing after Silence, not later ones", func() {
		h := event.NewHandler()
		calls := 0

		h.Bind(name, func(result event.Result, exc error) event.Result {
			calls++
			return result
		})
		Expect(h.HasHandlers(name)).To(BeTrue())

		h.Silence(name)
		Expect(h.HasHandlers(name)).To(BeTrue())

		h.Fire(name, nil, nil)
		Expect(calls).To(Equal(0))

		h.Fire(name, nil, nil)
		Expect(calls).To(Equal(1))
	})

	It("keeps each event's chain independent", func() {
		h := event.NewHandler()
		h.Bind("a", func(result event.Result, exc error) event.Result {
			return "from-a"
		})

		Expect(h.Fire("a", nil, nil)).To(Equal("from-a"))
		Expect(h.Fire("b", "untouched", nil)).To(Equal("untouched"))
	})
})
