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

// Package cookiejar wraps net/http/cookiejar, scoped with
// golang.org/x/net/publicsuffix, as the cookie-jar collaborator spec.md §6
// names: storage internals are delegated entirely, this package only
// builds the jar, extracts Set-Cookie/Set-Cookie2 from a response onto it
// and attaches its cookies to an outgoing request.
package cookiejar

import (
	"net/http"
	"net/url"

	"golang.org/x/net/publicsuffix"
	stdcookiejar "net/http/cookiejar"
)

// New returns a Jar scoped by the public suffix list, so cookies never
// leak across unrelated domains sharing a registrable suffix.
func New() (*stdcookiejar.Jar, error) {
	return stdcookiejar.New(&stdcookiejar.Options{PublicSuffixList: publicsuffix.List})
}

// ExtractCookies reads Set-Cookie/Set-Cookie2 from resp.Header and merges
// them into jar, scoped to the originating request's URL — the operation
// httpplug's Cookies plugin calls when store_cookies is enabled.
func ExtractCookies(jar *stdcookiejar.Jar, reqURL *url.URL, header http.Header) {
	if jar == nil || reqURL == nil {
		return
	}

	merged := http.Header{}
	for _, v := range header.Values("Set-Cookie") {
		merged.Add("Set-Cookie", v)
	}
	for _, v := range header.Values("Set-Cookie2") {
		merged.Add("Set-Cookie", v)
	}

	resp := &http.Response{Header: merged}
	if cookies := resp.Cookies(); len(cookies) > 0 {
		jar.SetCookies(reqURL, cookies)
	}
}

// Attach sets the Cookie header on header from whatever jar holds for
// reqURL, used when constructing an outgoing request.
func Attach(jar *stdcookiejar.Jar, reqURL *url.URL, header http.Header) {
	if jar == nil || reqURL == nil {
		return
	}

	for _, c := range jar.Cookies(reqURL) {
		header.Add("Cookie", c.String())
	}
}
