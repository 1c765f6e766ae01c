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

package cookiejar_test

import (
	"net/http"
	"net/url"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/asyncnet/cookiejar"
)

var _ = Describe("Jar", func() {
	u, _ := url.Parse("https://example.com/")

	It("stores a Set-Cookie response header and replays it as a Cookie request header", func() {
		jar, err := cookiejar.New()
		Expect(err).NotTo(HaveOccurred())

		respHeader := http.Header{}
		respHeader.Add("Set-Cookie", "session=abc123; Path=/")
		cookiejar.ExtractCookies(jar, u, respHeader)

		reqHeader := http.Header{}
		cookiejar.Attach(jar, u, reqHeader)

		Expect(reqHeader.Get("Cookie")).To(ContainSubstring("session=abc123"))
	})

	It("does not scope a cookie to an unrelated domain", func() {
		jar, err := cookiejar.New()
		Expect(err).NotTo(HaveOccurred())

		respHeader := http.Header{}
		respHeader.Add("Set-Cookie", "session=abc123; Path=/")
		cookiejar.ExtractCookies(jar, u, respHeader)

		other, _ := url.Parse("https://other.example/")
		reqHeader := http.Header{}
		cookiejar.Attach(jar, other, reqHeader)

		Expect(reqHeader.Get("Cookie")).To(BeEmpty())
	})

	It("tolerates a nil jar or nil URL without panicking", func() {
		Expect(func() {
			cookiejar.ExtractCookies(nil, u, http.Header{})
			cookiejar.Attach(nil, u, http.Header{})
			cookiejar.Attach(nil, nil, http.Header{})
		}).NotTo(Panic())
	})
})
