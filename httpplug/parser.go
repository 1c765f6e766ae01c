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
	"bufio"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"strconv"
)

// Response is the parsed HTTP exchange handed through the consumer's
// on_headers/post_request events: the "consumer-like object" spec.md §3
// describes request_again as flowing through in place of.
type Response struct {
	Proto      string
	StatusCode int
	Header     http.Header
	Body       []byte
	Request    *http.Request
}

// Parser reads successive HTTP/1.1 status-line+header blocks off r,
// delegating header syntax to net/textproto — the same primitive
// net/http itself is built on — rather than hand-rolling line scanning
// (spec.md §1 Non-goals). Reset is a no-op: textproto.Reader already
// supports reading the next message in sequence, which is all "new
// parser for the next status line" (spec.md §4.6, 100-continue) requires.
type Parser struct {
	br *bufio.Reader
	tp *textproto.Reader
}

// NewParser wraps r for sequential status-line+header reads.
func NewParser(r io.Reader) *Parser {
	br := bufio.NewReader(r)
	return &Parser{br: br, tp: textproto.NewReader(br)}
}

// Reset is kept for symmetry with the original new_parser() operation;
// textproto.Reader needs no explicit reset between messages.
func (p *Parser) Reset() {}

// ReadStatusLine reads one "HTTP/1.1 200 OK"-shaped line.
func (p *Parser) ReadStatusLine() (proto string, code int, text string, err error) {
	line, err := p.tp.ReadLine()
	if err != nil {
		return "", 0, "", err
	}

	var codeStr string
	n, err := fmt.Sscanf(line, "%s %s", &proto, &codeStr)
	if err != nil || n != 2 {
		return "", 0, "", fmt.Errorf("httpplug: malformed status line %q", line)
	}

	code, err = strconv.Atoi(codeStr)
	if err != nil {
		return "", 0, "", fmt.Errorf("httpplug: malformed status code %q", line)
	}

	return proto, code, line, nil
}

// ReadHeader reads a MIME header block terminated by a blank line.
func (p *Parser) ReadHeader() (http.Header, error) {
	mh, err := p.tp.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		return nil, err
	}

	return http.Header(mh), nil
}

// ReadBody reads exactly Content-Length bytes (chunked/streaming bodies
// are out of scope for this minimal collaborator; real byte-level framing
// belongs to the transport/parser boundary spec.md §1 delegates away).
func (p *Parser) ReadBody(header http.Header) ([]byte, error) {
	lenStr := header.Get("Content-Length")
	if lenStr == "" {
		return nil, nil
	}

	n, err := strconv.Atoi(lenStr)
	if err != nil || n <= 0 {
		return nil, nil
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(p.br, buf); err != nil {
		return nil, err
	}

	return buf, nil
}
