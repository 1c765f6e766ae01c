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

package errors

import "sync"

// Each owning package reserves its own codes by calling RegisterMessage
// from an init(), keeping pool/client/httpplug/transport failures distinct.
const (
	UnknownError CodeError = iota
	ParamsInvalid
	NotImplemented
)

var (
	msgMu  sync.RWMutex
	custom = map[CodeError]string{
		UnknownError:   "unknown error",
		ParamsInvalid:  "invalid parameters",
		NotImplemented: "not implemented",
	}
)

// RegisterMessage associates a human-readable message with a CodeError.
// Packages call this from an init() so CodeError.Message() and
// CodeError.Error() (via New) read back a meaningful string.
func RegisterMessage(code CodeError, msg string) {
	msgMu.Lock()
	defer msgMu.Unlock()
	custom[code] = msg
}

// Message returns the registered message for a code, or a generic
// placeholder if no package ever registered one.
func (c CodeError) Message() string {
	msgMu.RLock()
	defer msgMu.RUnlock()

	if m, ok := custom[c]; ok {
		return m
	}

	return "unregistered error code"
}

// Error builds an Error for this code with the given parents; it is
// shorthand for New(c, parent...). Its signature differs from the standard
// error interface's Error() string, so a CodeError is not itself an error.
func (c CodeError) Error(parent ...error) Error {
	return New(c, parent...)
}
