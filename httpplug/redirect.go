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
	"net/http"

	"github.com/sabouaram/asyncnet/client"
	"github.com/sabouaram/asyncnet/consumer"
	liberr "github.com/sabouaram/asyncnet/errors"
	"github.com/sabouaram/asyncnet/event"
	"github.com/sabouaram/asyncnet/urlutil"
)

const defaultMaxRedirects = 10

// BindRedirect installs the Redirect plugin on post_request: when the
// response status is one of urlutil.RedirectCodes and carries a Location
// header, it substitutes a client.Outcome{Kind: Redispatch} for the
// response, threading req.URL onto Params.History. Only 303 See Other
// downgrades the next request to GET with no body; every other redirect
// code preserves the original method and body, per spec.md §4.6. Exceeding
// req.MaxRedirects produces a terminal client.ErrTooManyRedirects instead
// of one more redispatch.
func BindRedirect(cons *consumer.ProtocolConsumer, req *client.Request) {
	cons.Handler.Bind(consumer.EventPostRequest, func(result event.Result, exc error) event.Result {
		if exc != nil {
			return result
		}

		resp, ok := result.(*Response)
		if !ok || !urlutil.RedirectCodes[resp.StatusCode] {
			return result
		}

		location := resp.Header.Get("Location")
		if location == "" {
			return result
		}

		maxRedirects := req.MaxRedirects
		if maxRedirects <= 0 {
			maxRedirects = defaultMaxRedirects
		}

		if len(req.Params.History) >= maxRedirects {
			return client.Outcome{Err: liberr.New(client.ErrTooManyRedirects)}
		}

		next, err := urlutil.Join(req.URL, location)
		if err != nil {
			return result
		}

		method := req.Method
		body := req.Body

		if resp.StatusCode == http.StatusSeeOther {
			method = http.MethodGet
			body = nil
		}

		history := append(append([]interface{}{}, req.Params.History...), req.URL.String())

		return client.Outcome{
			Kind:   client.Redispatch,
			Method: method,
			URL:    next.String(),
			Body:   body,
			Params: client.Params{History: history, Extra: req.Params.Extra},
		}
	})
}
