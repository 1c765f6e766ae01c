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

// Package consumer implements ProtocolConsumer, the one-shot state machine
// driving a single request/response exchange over a connection.Connection.
// Plugins (package httpplug) bind to its events; the event chain's
// mutating-return rule is how redirect/retry/tunnel-restart swap a
// finished consumer's result for a redispatch instruction.
package consumer

import (
	"sync"

	"github.com/google/uuid"

	"github.com/sabouaram/asyncnet/atomic"
	liberr "github.com/sabouaram/asyncnet/errors"
	"github.com/sabouaram/asyncnet/event"
)

func init() {
	liberr.RegisterMessage(ErrAlreadyFinished, "consumer already finished")
	liberr.RegisterMessage(ErrNoRequest, "consumer has no current request")
}

const (
	ErrAlreadyFinished liberr.CodeError = iota + 500
	ErrNoRequest
)

// State is the consumer's position in its one-shot lifecycle.
type State int

const (
	StateNew State = iota
	StateHeadersPending
	StateBodyStreaming
	StateFinished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateHeadersPending:
		return "headers_pending"
	case StateBodyStreaming:
		return "body_streaming"
	case StateFinished:
		return "finished"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event names fired on a ProtocolConsumer's Handler.
const (
	EventPreRequest     = "pre_request"
	EventDataReceived   = "data_received"
	EventOnHeaders      = "on_headers"
	EventPostRequest    = "post_request"
	EventConnectionLost = "connection_lost"
	EventFinish         = "finish"
)

// ConnectionHandle is the narrow view of connection.Connection a consumer
// needs, avoiding an import cycle between consumer and connection. Attach
// and Current additionally let client.Client.Upgrade swap the bound
// consumer without importing the concrete *connection.Connection type.
type ConnectionHandle interface {
	Write(p []byte) (int, error)
	MarkProcessed()
	Attach(cons *ProtocolConsumer)
	Current() *ProtocolConsumer
}

// CanReconnectFunc decides, given the configured ceiling and the failure
// that just occurred, how many retries remain (0 means "do not retry").
// Plugins/users may override the default (which always allows up to
// maxReconnect) for protocol-shape failures that should never retry.
type CanReconnectFunc func(maxReconnect int, exc error) int

// ProtocolConsumer drives one request/response exchange. State, current
// request and connection are guarded by an internal mutex and the
// received-byte counter is atomic, since the consumer is driven both from
// the owning Client's loop goroutine and from httpplug's exchange
// goroutine.
type ProtocolConsumer struct {
	ID      string
	Handler *event.Handler

	mu                sync.Mutex
	state             State
	currentRequest    interface{}
	connection        ConnectionHandle
	receivedBytes     atomic.Int64
	ReleaseConnection bool

	canReconnect CanReconnectFunc
	attempts     int

	once       sync.Once
	postResult event.Result
	finishOnce sync.Once
}

// New returns a fresh, unbound ProtocolConsumer in StateNew.
func New() *ProtocolConsumer {
	return &ProtocolConsumer{
		ID:                uuid.NewString(),
		Handler:           event.NewHandler(),
		state:             StateNew,
		ReleaseConnection: true,
		canReconnect:      defaultCanReconnect,
	}
}

func defaultCanReconnect(maxReconnect int, exc error) int {
	if exc == nil || maxReconnect <= 0 {
		return 0
	}

	return maxReconnect
}

// SetCanReconnect overrides the retry-budget function, e.g. so a
// protocol-shape failure never retries regardless of maxReconnect.
func (c *ProtocolConsumer) SetCanReconnect(fn CanReconnectFunc) {
	if fn != nil {
		c.canReconnect = fn
	}
}

// Bind attaches this consumer to a live connection and records req as the
// current request, without firing pre_request.
func (c *ProtocolConsumer) Bind(conn ConnectionHandle, req interface{}) {
	c.mu.Lock()
	c.connection = conn
	c.currentRequest = req
	c.mu.Unlock()
}

func (c *ProtocolConsumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *ProtocolConsumer) CurrentRequest() interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentRequest
}

// Connection returns the ConnectionHandle this consumer is bound to, or
// nil before Bind is called. Used by client.SingleClient to keep pinning
// every request to the same underlying connection.
func (c *ProtocolConsumer) Connection() ConnectionHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connection
}

func (c *ProtocolConsumer) AddReceivedBytes(n int) int64 {
	return c.receivedBytes.Add(int64(n))
}

func (c *ProtocolConsumer) ReceivedBytes() int64 {
	return c.receivedBytes.Load()
}

// NewRequest fires pre_request for req and transitions to
// StateHeadersPending. Writing req's bytes to the connection is the
// caller's responsibility (client.Client owns request serialization).
func (c *ProtocolConsumer) NewRequest(req interface{}) event.Result {
	c.mu.Lock()
	c.currentRequest = req
	c.state = StateHeadersPending
	c.mu.Unlock()

	return c.Handler.Fire(EventPreRequest, c, nil)
}

// DataReceived accounts raw inbound bytes and hands them to whichever
// protocol-specific handler is bound to data_received (httpplug's HTTP
// exchange parser, typically). The consumer itself has no byte-level
// parsing knowledge, per spec.md §1's out-of-scope note.
func (c *ProtocolConsumer) DataReceived(data []byte, exc error) {
	c.receivedBytes.Add(int64(len(data)))
	c.Handler.Fire(EventDataReceived, data, exc)
}

// OnHeaders fires on_headers with result as the parsed-headers subject,
// transitioning to StateBodyStreaming.
func (c *ProtocolConsumer) OnHeaders(result event.Result, exc error) event.Result {
	c.mu.Lock()
	c.state = StateBodyStreaming
	c.mu.Unlock()

	return c.Handler.Fire(EventOnHeaders, result, exc)
}

// PostRequest fires post_request exactly once; subsequent calls are a
// no-op returning the result the first call produced. This is where
// redirect/retry plugins may substitute a redispatch instruction for result.
func (c *ProtocolConsumer) PostRequest(result event.Result, exc error) event.Result {
	c.once.Do(func() {
		c.postResult = c.Handler.Fire(EventPostRequest, result, exc)
	})

	return c.postResult
}

// ConnectionLost fires connection_lost; the owning pool listens to decide
// on reconnection.
func (c *ProtocolConsumer) ConnectionLost(exc error) {
	c.Handler.Fire(EventConnectionLost, c, exc)
}

// Finish fires the one-time finish event and moves to a terminal state.
// Calls after the first are a no-op.
func (c *ProtocolConsumer) Finish(exc error) {
	c.finishOnce.Do(func() {
		c.mu.Lock()
		if exc != nil {
			c.state = StateFailed
		} else {
			c.state = StateFinished
		}
		c.mu.Unlock()

		c.Handler.Fire(EventFinish, c, exc)
	})
}

// CanReconnect reports how many retry attempts remain for exc under
// maxReconnect, decrementing the internal attempt counter.
func (c *ProtocolConsumer) CanReconnect(maxReconnect int, exc error) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	remaining := c.canReconnect(maxReconnect, exc)
	if remaining <= 0 {
		return 0
	}

	left := remaining - c.attempts
	if left <= 0 {
		return 0
	}

	c.attempts++
	return left
}
