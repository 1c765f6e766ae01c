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

// Package urlutil is a thin wrapper over net/url for the handful of
// operations httpplug.Redirect needs: resolving scheme-relative and
// relative Location headers against the current request URL, and the set
// of status codes that mean "redirect".
package urlutil

import "net/url"

// RedirectCodes are the HTTP status codes httpplug.Redirect treats as a
// redirect, per spec.md §4.6.
var RedirectCodes = map[int]bool{
	301: true,
	302: true,
	303: true,
	307: true,
	308: true,
}

// Join resolves location against current per spec.md §4.6's three cases:
// scheme-relative ("//host/path"), relative/authority-less, and absolute.
func Join(current *url.URL, location string) (*url.URL, error) {
	loc, err := url.Parse(location)
	if err != nil {
		return nil, err
	}

	if loc.IsAbs() {
		return loc, nil
	}

	if loc.Host != "" && loc.Scheme == "" {
		// scheme-relative: //host/path
		loc.Scheme = current.Scheme
		return loc, nil
	}

	return current.ResolveReference(loc), nil
}

// Requote normalizes u's path/query percent-encoding, delegating entirely
// to net/url rather than hand-rolling percent-encoding (spec.md §1
// Non-goals).
func Requote(u *url.URL) *url.URL {
	cp := *u
	cp.RawPath = ""
	parsed, err := url.Parse(cp.String())
	if err != nil {
		return u
	}

	return parsed
}
