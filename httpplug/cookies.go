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
	"github.com/sabouaram/asyncnet/client"
	"github.com/sabouaram/asyncnet/consumer"
	"github.com/sabouaram/asyncnet/cookiejar"
	"github.com/sabouaram/asyncnet/event"
)

// BindCookies returns a client.Plugin that, on post_request, extracts
// Set-Cookie/Set-Cookie2 from the response into c's shared jar whenever the
// request sets StoreCookies, and attaches whatever the jar holds for a
// request's URL before pre_request fires. c is closed over because
// client.Plugin's signature has no Client parameter: the jar is
// Client-scoped, not per-request.
func BindCookies(c *client.Client) client.Plugin {
	return func(cons *consumer.ProtocolConsumer, req *client.Request) {
		if !req.StoreCookies {
			return
		}

		jar, err := c.Jar()
		if err != nil {
			return
		}

		cons.Handler.Bind(consumer.EventPreRequest, func(result event.Result, exc error) event.Result {
			if req.Header == nil {
				req.Header = make(map[string][]string)
			}
			cookiejar.Attach(jar, req.URL, req.Header)
			return result
		})

		cons.Handler.Bind(consumer.EventPostRequest, func(result event.Result, exc error) event.Result {
			if resp, ok := result.(*Response); ok {
				cookiejar.ExtractCookies(jar, req.URL, resp.Header)
			}
			return result
		})
	}
}
