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

// Package connection implements Connection, which owns one
// transport.Transport, multiplexes its lifecycle events to at most one
// active consumer.ProtocolConsumer at a time, and reports back to its
// owning pool.Pool through the narrow Producer interface.
package connection

import (
	"net"

	"github.com/google/uuid"

	"github.com/sabouaram/asyncnet/atomic"
	"github.com/sabouaram/asyncnet/consumer"
	"github.com/sabouaram/asyncnet/event"
	"github.com/sabouaram/asyncnet/logger"
	"github.com/sabouaram/asyncnet/transport"
)

// Producer is the narrow view of pool.Pool a Connection needs: enough to
// report connection_lost for reconnection scheduling, without importing
// the concrete *pool.Pool type (which would cycle back to connection).
type Producer interface {
	ConnectionLost(conn *Connection, exc error)
}

// Connection owns one Transport and at most one current consumer.
type Connection struct {
	ID        string
	Transport transport.Transport
	Producer  Producer
	Log       logger.Logger

	closed    atomic.Bool
	isStale   atomic.Bool
	processed atomic.Int64

	current *consumer.ProtocolConsumer
}

// New wires conn's lifecycle events (data_received, connection_lost) to
// whichever consumer is currently bound, and reports losses to producer.
func New(conn transport.Transport, producer Producer, log logger.Logger) *Connection {
	if log == nil {
		log = logger.NewNop()
	}

	c := &Connection{
		ID:        uuid.NewString(),
		Transport: conn,
		Producer:  producer,
		Log:       log,
	}

	c.wire(conn)

	return c
}

func (c *Connection) wire(t transport.Transport) {
	t.Handler().Bind(transport.EventDataReceived, func(result event.Result, exc error) event.Result {
		if c.current == nil {
			return nil
		}

		data, _ := result.([]byte)
		c.current.DataReceived(data, exc)
		return nil
	})

	t.Handler().Bind(transport.EventConnectionLost, func(result event.Result, exc error) event.Result {
		c.closed.Store(true)

		if c.current != nil {
			c.current.ConnectionLost(exc)
		}

		if c.Producer != nil {
			c.Producer.ConnectionLost(c, exc)
		}

		return nil
	})
}

// Rewrap replaces the underlying Transport with t, re-wiring its
// data_received/connection_lost events to whatever consumer is currently
// bound. Used by httpplug's Tunneling plugin after a successful proxy
// CONNECT rewraps the raw socket in TLS.
func (c *Connection) Rewrap(t transport.Transport) {
	c.Transport = t
	c.wire(t)
}

// Write delegates to the underlying transport. Satisfies
// consumer.ConnectionHandle.
func (c *Connection) Write(p []byte) (int, error) {
	return c.Transport.Write(p)
}

// MarkProcessed increments the processed-request counter. Satisfies
// consumer.ConnectionHandle.
func (c *Connection) MarkProcessed() {
	c.processed.Add(1)
}

// Processed returns the number of requests completed on this connection.
func (c *Connection) Processed() int64 { return c.processed.Load() }

// Socket exposes the underlying net.Conn of the current Transport, used by
// httpplug's Tunneling plugin to rewrap a plain CONNECT tunnel in TLS.
func (c *Connection) Socket() net.Conn { return c.Transport.Socket() }

// Attach binds cons as the current consumer, replacing any previous one.
// Used both for a fresh request and for reconnection (same consumer,
// fresh Connection).
func (c *Connection) Attach(cons *consumer.ProtocolConsumer) {
	c.current = cons
}

// Current returns the currently bound consumer, or nil.
func (c *Connection) Current() *consumer.ProtocolConsumer { return c.current }

// Close force-closes the transport and marks the connection closed.
func (c *Connection) Close() error {
	c.closed.Store(true)
	return c.Transport.Close()
}

func (c *Connection) IsClosed() bool { return c.closed.Load() }

// MarkStale flags the connection as no longer eligible for reuse; a pool
// draining `available` closes and discards stale connections it finds.
func (c *Connection) MarkStale() { c.isStale.Store(true) }

func (c *Connection) IsStale() bool { return c.isStale.Load() || c.closed.Load() }

// SilenceNextConnectionMade suppresses the next connection_made firing on
// the underlying transport's handler, used once by the tunneling plugin
// after rewrapping as TLS to avoid double-firing the event (§4.6 S6).
func (c *Connection) SilenceNextConnectionMade() {
	c.Transport.Handler().Silence(transport.EventConnectionMade)
}
