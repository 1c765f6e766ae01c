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

package httpplug

import (
	"bytes"
	"strings"

	"github.com/sabouaram/asyncnet/client"
	"github.com/sabouaram/asyncnet/consumer"
	"github.com/sabouaram/asyncnet/event"
)

// BindExpect100Continue installs the Expect100Continue plugin: when a
// Request carries "Expect: 100-continue", it writes the header block alone
// on pre_request and holds the body back until on_headers observes a 100
// interim response, per spec.md §4.6. Client.Response skips its own
// initial write for a request this plugin has already put on the wire
// (Params.Extra["_expect100_written"]).
func BindExpect100Continue(cons *consumer.ProtocolConsumer, req *client.Request) {
	cons.Handler.Bind(consumer.EventPreRequest, func(result event.Result, exc error) event.Result {
		if !strings.EqualFold(req.Header.Get("Expect"), "100-continue") {
			return result
		}

		hr, err := req.HTTPRequest()
		if err != nil {
			return result
		}

		var buf bytes.Buffer
		if err := hr.Write(&buf); err != nil {
			return result
		}

		// Request.Write emits the body raw after the header block; keep
		// only the header block here.
		head := buf.Bytes()[:buf.Len()-len(req.Body)]

		conn := cons.Connection()
		if conn == nil {
			return result
		}

		if _, err := conn.Write(head); err != nil {
			return result
		}

		if req.Params.Extra == nil {
			req.Params.Extra = make(map[string]interface{})
		}
		req.Params.Extra["_expect100_written"] = true

		body := req.Body
		cons.Handler.Bind(consumer.EventOnHeaders, func(result event.Result, exc error) event.Result {
			if resp, ok := result.(*Response); ok && resp.StatusCode == 100 {
				_, _ = conn.Write(body)
			}
			return result
		})

		return result
	})
}
