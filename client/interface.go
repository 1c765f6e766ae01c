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

// Package client is the public entry point: Client is a registry of
// pool.Pool instances keyed by request fingerprint, producing Requests and
// materializing them into consumer.ProtocolConsumer instances while
// enforcing client-wide policy (max connections, max reconnects).
package client

import (
	"bytes"
	"context"
	"net/http"
	stdcookiejar "net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"

	"github.com/sabouaram/asyncnet/certificates"
	"github.com/sabouaram/asyncnet/connection"
	"github.com/sabouaram/asyncnet/consumer"
	"github.com/sabouaram/asyncnet/cookiejar"
	liberr "github.com/sabouaram/asyncnet/errors"
	"github.com/sabouaram/asyncnet/event"
	"github.com/sabouaram/asyncnet/logger"
	"github.com/sabouaram/asyncnet/loop"
	"github.com/sabouaram/asyncnet/pool"
	"github.com/sabouaram/asyncnet/transport"
)

func init() {
	liberr.RegisterMessage(ErrNoConsumerFactory, "client has no consumer factory")
	liberr.RegisterMessage(ErrTooManyRedirects, "too many redirects")
	liberr.RegisterMessage(ErrClientClosed, "client is closed")
}

const (
	ErrNoConsumerFactory liberr.CodeError = iota + 700
	ErrTooManyRedirects
	ErrClientClosed
)

// EventRedispatch fires on the originally returned consumer, in async
// (non-ForceSync) mode, once a request_again round-trip has produced a
// final consumer — since the consumer Response first returns may not be
// the one that ultimately carries the response, callers that care about
// the outcome of a redirect/retry chain in async mode bind to this event
// rather than polling the original consumer's own finish.
const EventRedispatch = "client_redispatch"

// Plugin installs protocol-specific event handlers (redirect, cookies,
// 100-continue, tunneling, ...) on a freshly created consumer, before
// pre_request fires. httpplug's BindXxx functions have this shape.
type Plugin func(cons *consumer.ProtocolConsumer, req *Request)

// RequestKey selects which Pool serves a Request: spec.md §3's
// (address, timeout) pair.
type RequestKey struct {
	Address string
	Timeout time.Duration
}

// TunnelDescriptor describes a forward-proxy CONNECT target for httpplug's
// Tunneling plugin.
type TunnelDescriptor struct {
	ProxyAddress string
	TargetHost   string
	Username     string
	Password     string
}

// Request is the hashable hand-off between Client and ConnectionPool, plus
// the HTTP-specific payload spec.md §3 describes.
type Request struct {
	Address string
	Timeout time.Duration

	Method  string
	URL     *url.URL
	Header  http.Header
	Body    []byte

	TLS              *certificates.Config
	Tunnel           *TunnelDescriptor
	MaxRedirects     int
	StoreCookies     bool
	WebSocketHandler interface{}

	Params Params
}

// Key implements the (address, timeout) fingerprint selecting a Pool.
func (r *Request) Key() RequestKey {
	return RequestKey{Address: r.Address, Timeout: r.Timeout}
}

// HTTPRequest builds the equivalent net/http.Request, delegating header
// and status-line serialization to the standard library rather than
// hand-rolling wire formatting (spec.md §1 Non-goals).
func (r *Request) HTTPRequest() (*http.Request, error) {
	hr, err := http.NewRequest(r.Method, r.URL.String(), bytes.NewReader(r.Body))
	if err != nil {
		return nil, err
	}

	if r.Header != nil {
		hr.Header = r.Header.Clone()
	}

	return hr, nil
}

// Bytes serializes the request for the wire via net/http.Request.Write.
// Implements the interface pool.Pool's reconnect path type-asserts for to
// replay a request without re-firing pre_request side effects.
func (r *Request) Bytes() []byte {
	hr, err := r.HTTPRequest()
	if err != nil {
		return nil
	}

	var buf bytes.Buffer
	_ = hr.Write(&buf)
	return buf.Bytes()
}

// Params threads redispatch state (redirect/tunnel history, protocol
// extras) across a request_again round-trip, per spec.md §4.5.
type Params struct {
	History []interface{}
	Extra   map[string]interface{}
}

// Kind distinguishes the two Outcome shapes of the request_again
// tagged union (spec.md §3, §9 Design Note).
type Kind int

const (
	Completed Kind = iota
	Redispatch
)

// Outcome replaces the source's duck-typed request_again sentinel: a
// post_request handler chain's final Result is either a finished consumer
// (Completed, implicit — see Client.Response) or an explicit Redispatch
// instruction naming the next (method, url, params).
type Outcome struct {
	Kind     Kind
	Response *consumer.ProtocolConsumer
	Method   string
	URL      string
	Body     []byte
	Params   Params
	Err      error

	// Conn, when set, tells followOutcome to redispatch directly onto this
	// connection instead of acquiring one from the pool (httpplug.Tunneling,
	// after a successful CONNECT rewraps the socket in TLS).
	Conn consumer.ConnectionHandle
}

// TransportFactory builds a fresh Transport for a pool's connections. TLS
// is selected by whether req.TLS is set; tlsCfg is nil for a plain
// connection (proxy tunnels start plain and are rewrapped later).
type TransportFactory func(lp loop.Loop, tlsCfg *certificates.Config) transport.Transport

// Client is a registry of ConnectionPools keyed by RequestKey.
type Client struct {
	MaxConnections   int64
	Timeout          time.Duration
	MaxReconnectN    int
	ReconnectingGapD time.Duration
	ForceSync        bool
	// TrustEnv mirrors the source's trust_env: when true (the default) and
	// a Request sets no explicit Tunnel, httpplug.BindTunneling derives one
	// from HTTP_PROXY/HTTPS_PROXY/NO_PROXY.
	TrustEnv bool
	Log      logger.Logger

	NewTransportFunc TransportFactory
	// ConsumerFactory builds the ProtocolConsumer each Response/dispatch call
	// binds to a connection. New sets this to consumer.New; a Client built by
	// struct literal instead of New leaves it nil, and Response/dispatch
	// report that as ErrNoConsumerFactory rather than panicking on the nil
	// call.
	ConsumerFactory func() *consumer.ProtocolConsumer
	CanReuseFunc    func(conn *connection.Connection, resp *consumer.ProtocolConsumer) bool
	Plugins         []Plugin

	// Progress, when set, is shared across every Pool this Client creates,
	// giving each a live mpb bar tracking its admission-control saturation.
	Progress *mpb.Progress

	lp            loop.Loop
	ownLoop       bool
	mu            sync.Mutex
	pools         map[RequestKey]*pool.Pool
	jar           *stdcookiejar.Jar
	finishHandler *event.Handler
	finishOnce    sync.Once
	closed        bool
}

// Jar lazily builds and returns the Client's shared cookiejar, used by
// httpplug's Cookies plugin whenever a Request sets StoreCookies.
func (c *Client) Jar() (*stdcookiejar.Jar, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.jar == nil {
		jar, err := cookiejar.New()
		if err != nil {
			return nil, err
		}
		c.jar = jar
	}

	return c.jar, nil
}

// New builds a Client. If lp is nil, a private loop.Loop is started
// (force_sync clients always own one, per spec.md §5).
func New(lp loop.Loop, log logger.Logger) *Client {
	owns := false
	if lp == nil {
		lp = loop.New()
		owns = true
	}

	if log == nil {
		log = logger.NewNop()
	}

	return &Client{
		Log:             log,
		TrustEnv:        true,
		lp:              lp,
		ownLoop:         owns,
		pools:           make(map[RequestKey]*pool.Pool),
		finishHandler:   event.NewHandler(),
		CanReuseFunc:    defaultCanReuse,
		ConsumerFactory: consumer.New,
		NewTransportFunc: func(lp loop.Loop, tlsCfg *certificates.Config) transport.Transport {
			if tlsCfg == nil {
				return transport.New(lp, nil)
			}
			return transport.New(lp, tlsCfg.TLSConfig)
		},
	}
}

func defaultCanReuse(conn *connection.Connection, resp *consumer.ProtocolConsumer) bool {
	return !conn.IsClosed() && !conn.IsStale()
}

// Loop implements pool.ClientHandle.
func (c *Client) Loop() loop.Loop { return c.lp }

// MaxReconnect implements pool.ClientHandle.
func (c *Client) MaxReconnect() int { return c.MaxReconnectN }

// ReconnectingGap implements pool.ClientHandle.
func (c *Client) ReconnectingGap() time.Duration { return c.ReconnectingGapD }

// CanReuseConnection implements pool.ClientHandle.
func (c *Client) CanReuseConnection(conn *connection.Connection, resp *consumer.ProtocolConsumer) bool {
	return c.CanReuseFunc(conn, resp)
}

// NewTransport implements pool.ClientHandle using NewTransportFunc; callers
// needing TLS set it per-request via getOrCreatePool's tlsCfg closure.
func (c *Client) NewTransport() transport.Transport {
	return c.NewTransportFunc(c.lp, nil)
}

// NewConsumer implements pool.ClientHandle. Returns nil if ConsumerFactory
// is unset; callers going through Response/dispatch never observe that,
// since both check ConsumerFactory first and report ErrNoConsumerFactory.
func (c *Client) NewConsumer() *consumer.ProtocolConsumer {
	if c.ConsumerFactory == nil {
		return nil
	}
	return c.ConsumerFactory()
}

// RemovePool implements pool.ClientHandle: deregisters p by identity, not
// by re-deriving its key (the bug spec.md §9 flags would keep a pool whose
// key happens to hash to a falsy value).
func (c *Client) RemovePool(p *pool.Pool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, v := range c.pools {
		if v == p {
			delete(c.pools, k)
			return
		}
	}
}

func (c *Client) getOrCreatePool(req *Request) *pool.Pool {
	key := req.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.pools[key]; ok {
		return p
	}

	tlsCfg := req.TLS
	handle := &clientTLSHandle{Client: c, tlsCfg: tlsCfg}

	var p *pool.Pool
	if c.Progress != nil {
		p = pool.NewWithProgress(req.Address, req.Timeout, c.MaxConnections, handle, c.Log, c.Progress)
	} else {
		p = pool.New(req.Address, req.Timeout, c.MaxConnections, handle, c.Log)
	}
	c.pools[key] = p
	return p
}

// clientTLSHandle adapts Client to pool.ClientHandle while pinning the TLS
// config a particular pool's connections should dial with (each pool is
// keyed by address+timeout, so one Request's TLS setting applies to all
// connections that pool ever creates).
type clientTLSHandle struct {
	*Client
	tlsCfg *certificates.Config
}

func (h *clientTLSHandle) NewTransport() transport.Transport {
	return h.NewTransportFunc(h.lp, h.tlsCfg)
}

// Response materializes req into a ProtocolConsumer: acquires a pooled
// connection, binds a fresh consumer, installs any configured Plugins,
// fires pre_request, writes the request, and, once post_request produces
// its final Result, either returns the finished consumer or follows a
// request_again Outcome{Kind: Redispatch} by recursing, per spec.md §4.5.
//
// Under ForceSync, Response blocks until the whole chain (including any
// redispatch) settles and returns the final consumer. Otherwise it returns
// the first consumer immediately; a redispatch chain resolves in the
// background and its outcome is announced on that first consumer's
// Handler as EventRedispatch.
func (c *Client) Response(ctx context.Context, req *Request) (*consumer.ProtocolConsumer, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return nil, liberr.New(ErrClientClosed)
	}

	if c.ConsumerFactory == nil {
		return nil, liberr.New(ErrNoConsumerFactory)
	}

	p := c.getOrCreatePool(req)

	conn, err := p.GetOrCreateConnection(ctx)
	if err != nil {
		return nil, err
	}

	return c.dispatch(ctx, conn, req)
}

// dispatch runs one request/response cycle on an already-acquired
// connection: binds a fresh consumer, installs Plugins, fires pre_request,
// writes the request, and resolves the outcome. Split out of Response so
// httpplug's Tunneling plugin can redispatch the real request onto the
// same (now TLS-rewrapped) connection instead of going back through the
// pool, via Outcome.Conn.
func (c *Client) dispatch(ctx context.Context, conn consumer.ConnectionHandle, req *Request) (*consumer.ProtocolConsumer, error) {
	if c.ConsumerFactory == nil {
		return nil, liberr.New(ErrNoConsumerFactory)
	}

	cons := c.NewConsumer()
	conn.Attach(cons)
	cons.Bind(conn, req)

	for _, pg := range c.Plugins {
		pg(cons, req)
	}

	done := make(chan struct{})
	var finalResult event.Result
	var finalErr error

	cons.Handler.Bind(consumer.EventPostRequest, func(result event.Result, exc error) event.Result {
		finalResult = result
		finalErr = exc
		close(done)
		return result
	})

	cons.NewRequest(req)

	alreadyWritten, _ := req.Params.Extra["_expect100_written"].(bool)
	if !alreadyWritten {
		if _, err := conn.Write(req.Bytes()); err != nil {
			cons.Finish(err)
			return cons, err
		}
	}

	if c.ForceSync {
		select {
		case <-done:
		case <-ctx.Done():
			return cons, ctx.Err()
		}

		return c.followOutcome(ctx, conn, cons, finalResult, finalErr)
	}

	go func() {
		select {
		case <-done:
		case <-ctx.Done():
			return
		}

		final, err := c.followOutcome(ctx, conn, cons, finalResult, finalErr)
		cons.Handler.Fire(EventRedispatch, final, err)
	}()

	return cons, nil
}

// followOutcome pattern-matches the tagged union a post_request handler
// chain may have produced, recursing for Redispatch per spec.md §4.5/§9.
// A Redispatch naming Outcome.Conn reuses that connection directly
// (Tunneling, after a successful CONNECT); otherwise it goes back through
// Response, which may land on a different pooled connection.
func (c *Client) followOutcome(ctx context.Context, conn consumer.ConnectionHandle, cons *consumer.ProtocolConsumer, result event.Result, exc error) (*consumer.ProtocolConsumer, error) {
	out, ok := result.(Outcome)
	if !ok {
		cons.Finish(exc)
		return cons, exc
	}

	if out.Err != nil {
		cons.Finish(out.Err)
		return cons, out.Err
	}

	if out.Kind == Completed {
		cons.Finish(exc)
		return cons, exc
	}

	cons.Finish(nil)

	u, err := url.Parse(out.URL)
	if err != nil {
		return cons, err
	}

	next := &Request{
		Address: u.Host,
		Timeout: c.Timeout,
		Method:  out.Method,
		URL:     u,
		Header:  http.Header{},
		Body:    out.Body,
		Params:  out.Params,
	}

	if out.Conn != nil {
		return c.dispatch(ctx, out.Conn, next)
	}

	return c.Response(ctx, next)
}

// Upgrade detaches cons (release_connection=false, fires finish without
// returning the connection to its pool) and swaps the Connection to a
// freshly bound consumer, per spec.md §4.5.
func (c *Client) Upgrade(conn consumer.ConnectionHandle, factory func() *consumer.ProtocolConsumer) *consumer.ProtocolConsumer {
	if old := conn.Current(); old != nil {
		old.ReleaseConnection = false
		old.Finish(nil)
	}

	next := factory()
	conn.Attach(next)
	return next
}

// Close closes every pool and fires the one-time finish event. If async is
// false, pool closes happen synchronously on the calling goroutine.
func (c *Client) Close(async bool) {
	c.mu.Lock()
	c.closed = true
	pools := make([]*pool.Pool, 0, len(c.pools))
	for _, p := range c.pools {
		pools = append(pools, p)
	}
	c.pools = make(map[RequestKey]*pool.Pool)
	c.mu.Unlock()

	closeAll := func() {
		for _, p := range pools {
			_ = p.Close()
		}

		c.finishOnce.Do(func() {
			c.finishHandler.Fire(consumer.EventFinish, c, nil)
		})

		if c.ownLoop {
			c.lp.Stop()
		}
	}

	if async {
		go closeAll()
	} else {
		closeAll()
	}
}

// Abort is a synchronous Close.
func (c *Client) Abort() { c.Close(false) }

// OnFinish registers a one-time callback for the Client's own finish event.
func (c *Client) OnFinish(fn func()) {
	c.finishHandler.BindOnce(consumer.EventFinish, func(result event.Result, exc error) event.Result {
		fn()
		return nil
	})
}
