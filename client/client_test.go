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

package client_test

import (
	"context"
	"net/url"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/asyncnet/certificates"
	"github.com/sabouaram/asyncnet/client"
	"github.com/sabouaram/asyncnet/consumer"
	liberr "github.com/sabouaram/asyncnet/errors"
	"github.com/sabouaram/asyncnet/event"
	"github.com/sabouaram/asyncnet/httpplug"
	"github.com/sabouaram/asyncnet/loop"
	"github.com/sabouaram/asyncnet/transport"
	"github.com/sabouaram/asyncnet/transport/transporttest"
)

// newFakeClient wires c.NewTransportFunc to hand back transporttest.Fake
// instances, stashing the most recently created one in *last and, if reply
// is non-nil, scripting it as the server's response to the fake's first
// write.
func newFakeClient(last **transporttest.Fake, reply []byte) *client.Client {
	lp := loop.New()
	c := client.New(lp, nil)
	c.ForceSync = true

	c.NewTransportFunc = func(lp loop.Loop, tlsCfg *certificates.Config) transport.Transport {
		f := transporttest.New(lp)
		*last = f

		if reply != nil {
			delivered := false
			f.OnWrite = func(p []byte) {
				if delivered {
					return
				}
				delivered = true
				f.Deliver(reply)
			}
		}

		return f
	}

	return c
}

func captureResponse(got **httpplug.Response) client.Plugin {
	return func(cons *consumer.ProtocolConsumer, req *client.Request) {
		cons.Handler.Bind(consumer.EventPostRequest, func(result event.Result, exc error) event.Result {
			if r, ok := result.(*httpplug.Response); ok {
				*got = r
			}
			return result
		})
	}
}

func mustURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	Expect(err).NotTo(HaveOccurred())
	return u
}

var _ = Describe("Client.Response", func() {
	It("round-trips a plain GET through a fake transport", func() {
		var fake *transporttest.Fake
		reply := []byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello")
		c := newFakeClient(&fake, reply)

		var got *httpplug.Response
		c.Plugins = []client.Plugin{httpplug.BindExchange, captureResponse(&got)}

		req := &client.Request{
			Address: "example.com:80",
			Method:  "GET",
			URL:     mustURL("http://example.com/"),
		}

		cons, err := c.Response(context.Background(), req)
		Expect(err).NotTo(HaveOccurred())
		Expect(cons).NotTo(BeNil())

		Expect(got).NotTo(BeNil())
		Expect(got.StatusCode).To(Equal(200))
		Expect(string(got.Body)).To(Equal("hello"))
	})

	It("reports ErrNoConsumerFactory instead of panicking when ConsumerFactory is unset", func() {
		var fake *transporttest.Fake
		c := newFakeClient(&fake, nil)
		c.ConsumerFactory = nil

		req := &client.Request{
			Address: "example.com:80",
			Method:  "GET",
			URL:     mustURL("http://example.com/"),
		}

		cons, err := c.Response(context.Background(), req)
		Expect(cons).To(BeNil())
		Expect(err).To(HaveOccurred())

		coded, ok := err.(liberr.Error)
		Expect(ok).To(BeTrue())
		Expect(coded.IsCode(client.ErrNoConsumerFactory)).To(BeTrue())
	})
})
