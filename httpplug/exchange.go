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

// Package httpplug provides the HTTP-specific plugins spec.md §4.6
// describes: Redirect, Cookies, Expect100Continue, SwitchProtocols101 and
// Tunneling, all implemented as event.HandlerFunc bound to a
// consumer.ProtocolConsumer. Exchange is the glue between raw
// data_received bytes and these HTTP-level events, delegating wire parsing
// to net/textproto (package-local parser.go) rather than hand-rolling it.
package httpplug

import (
	"io"
	"net/http"

	"github.com/sabouaram/asyncnet/client"
	"github.com/sabouaram/asyncnet/consumer"
	"github.com/sabouaram/asyncnet/event"
)

// Exchange drives one HTTP response off a consumer's data_received
// stream: accumulates bytes through an io.Pipe, parses status+headers+body,
// and fires on_headers / post_request / finish on the consumer in order.
type Exchange struct {
	cons   *consumer.ProtocolConsumer
	httpReq *http.Request
	pw     *io.PipeWriter
	parser *Parser
}

// NewExchange binds cons's data_received event to an HTTP response parser
// and starts reading it in the background. httpReq is used only to decide
// whether a HEAD-shaped response should skip body reading.
func NewExchange(cons *consumer.ProtocolConsumer, httpReq *http.Request) *Exchange {
	pr, pw := io.Pipe()

	e := &Exchange{
		cons:    cons,
		httpReq: httpReq,
		pw:      pw,
		parser:  NewParser(pr),
	}

	cons.Handler.Bind(consumer.EventDataReceived, func(result event.Result, exc error) event.Result {
		if exc != nil {
			_ = pw.CloseWithError(exc)
			return nil
		}

		data, _ := result.([]byte)
		if len(data) > 0 {
			_, _ = pw.Write(data)
		}

		return nil
	})

	go e.run()

	return e
}

func (e *Exchange) run() {
	for {
		proto, code, _, err := e.parser.ReadStatusLine()
		if err != nil {
			e.fail(err)
			return
		}

		header, err := e.parser.ReadHeader()
		if err != nil {
			e.fail(err)
			return
		}

		resp := &Response{Proto: proto, StatusCode: code, Header: header, Request: e.httpReq}

		if code == 100 {
			// spec.md §4.6: reset the parser for the next status line
			// and let Expect100Continue decide to write the body now.
			e.cons.OnHeaders(resp, nil)
			e.parser.Reset()
			continue
		}

		if e.httpReq != nil && e.httpReq.Method == http.MethodHead {
			resp.Body = nil
		} else {
			body, err := e.parser.ReadBody(header)
			if err != nil {
				e.fail(err)
				return
			}
			resp.Body = body
		}

		result := e.cons.OnHeaders(resp, nil)
		if r, ok := result.(*Response); ok {
			resp = r
		}

		if code == 101 {
			// SwitchProtocols101 already called client.Upgrade and
			// marked the consumer finished from on_headers; nothing
			// left for this exchange to do.
			return
		}

		out := e.cons.PostRequest(resp, nil)
		if o, ok := out.(client.Outcome); ok && o.Kind == client.Redispatch {
			// client.Client.Response resolves the redispatch itself;
			// this exchange's job ends here either way.
			return
		}

		e.cons.Finish(nil)
		return
	}
}

func (e *Exchange) fail(err error) {
	e.cons.OnHeaders(nil, err)
	e.cons.PostRequest(nil, err)
	e.cons.Finish(err)
}

// BindExchange is the client.Plugin that every HTTP request needs: it
// wires data_received into an HTTP response parser. Register it first in
// a Client's Plugins list.
func BindExchange(cons *consumer.ProtocolConsumer, req *client.Request) {
	hreq, err := req.HTTPRequest()
	if err != nil {
		return
	}

	NewExchange(cons, hreq)
}
