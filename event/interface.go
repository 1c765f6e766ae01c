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

// Package event implements the one-time/many-times event primitive shared
// by Connection and ProtocolConsumer: named events with chained handlers,
// where each handler may replace the Result passed to the next one. This is
// the mechanism httpplug.Redirect uses to swap a finished consumer's result
// for a client.Outcome requesting a redispatch.
package event

import "sync"

// Result is whatever a handler chain is threading through; concrete
// producers (consumer, connection) pass their own result type through
// interface{} and type-assert it back.
type Result interface{}

// HandlerFunc receives the current Result and the error passed to Fire
// (every handler in the chain sees that same error), and returns the
// Result to pass on.
// Returning a non-nil Result different from the input replaces it for the
// remaining chain.
type HandlerFunc func(result Result, exc error) Result

type binding struct {
	fn    HandlerFunc
	once  bool
	fired bool
}

// Handler is a registry of named events, each with an ordered chain of
// handlers. The registry and the silence/once flags are guarded by an
// internal mutex; handlers themselves run outside that lock, on whichever
// goroutine called Fire.
type Handler struct {
	mu          sync.Mutex
	events      map[string][]*binding
	silenceNext map[string]bool
}

// NewHandler returns an empty event registry.
func NewHandler() *Handler {
	return &Handler{
		events:      make(map[string][]*binding),
		silenceNext: make(map[string]bool),
	}
}

// Bind registers fn against name, run every time the event fires.
func (h *Handler) Bind(name string, fn HandlerFunc) {
	h.bind(name, fn, false)
}

// BindOnce registers fn against name for exactly one firing; subsequent
// fires skip it.
func (h *Handler) BindOnce(name string, fn HandlerFunc) {
	h.bind(name, fn, true)
}

func (h *Handler) bind(name string, fn HandlerFunc, once bool) {
	if fn == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.events[name] = append(h.events[name], &binding{fn: fn, once: once})
}

// Silence suppresses the next Fire call for name: that single firing runs
// no handlers and returns its input result unchanged, and every later
// firing proceeds normally. Matches original_source's
// connection.silence_event, which is one-shot by the same contract. Used
// by httpplug's Tunneling plugin to suppress a single duplicate
// connection_made after a post-CONNECT TLS rewrap (spec.md §4.6 S6).
func (h *Handler) Silence(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.silenceNext[name] = true
}

// Fire runs name's handler chain in registration order. Each handler sees
// the Result returned by the previous one (or the initial result for the
// first handler) and the original error, unchanged across the chain. The
// final Result is returned to the caller. If Silence(name) was called since
// the last Fire(name, ...), this firing runs no handlers and returns result
// unchanged.
func (h *Handler) Fire(name string, result Result, exc error) Result {
	h.mu.Lock()
	if h.silenceNext[name] {
		h.silenceNext[name] = false
		h.mu.Unlock()
		return result
	}

	chain := append([]*binding(nil), h.events[name]...)
	h.mu.Unlock()

	for _, b := range chain {
		if b.once {
			h.mu.Lock()
			already := b.fired
			b.fired = true
			h.mu.Unlock()

			if already {
				continue
			}
		}

		if r := b.fn(result, exc); r != nil {
			result = r
		}
	}

	return result
}

// HasHandlers reports whether name has any bound handlers.
func (h *Handler) HasHandlers(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.events[name]) > 0
}
