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

// Package errors provides the typed error taxonomy used across this module:
// an Error carries a numeric CodeError, an optional parent chain, and a
// captured call site. The module's own failure modes are raised as Errors;
// errors coming from the standard library (transport writes, URL parsing,
// context cancellation) and httpplug's parser errors are returned without
// a code.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// CodeError is a numeric classification of a failure, similar in spirit to
// an HTTP status code but scoped to this module's own failure modes.
type CodeError uint16

// FuncMap iterates a failure and its parents; return false to stop early.
type FuncMap func(e error) bool

// Error extends the standard error with a code, a parent chain and a
// captured call site. All read methods are safe for concurrent use;
// Add/SetParent are not.
type Error interface {
	error

	IsCode(code CodeError) bool
	HasCode(code CodeError) bool
	GetCode() CodeError

	Is(e error) bool
	HasError(err error) bool
	HasParent() bool
	GetParent() []error
	Map(fct FuncMap) bool

	Add(parent ...error)
	SetParent(parent ...error)

	Code() uint16
	CodeError(pattern string) string

	GetTrace() string
	Unwrap() []error
}

type cError struct {
	code   CodeError
	msg    string
	file   string
	line   int
	fn     string
	parent []error
}

// New builds an Error with the given code and optional parent errors,
// capturing the caller's file/line/function as its trace.
func New(code CodeError, parent ...error) Error {
	e := &cError{
		code:   code,
		msg:    code.Message(),
		parent: make([]error, 0, len(parent)),
	}

	if pc, file, line, ok := runtime.Caller(1); ok {
		e.file = file
		e.line = line
		if f := runtime.FuncForPC(pc); f != nil {
			e.fn = f.Name()
		}
	}

	e.Add(parent...)

	return e
}

func (e *cError) Error() string {
	return e.CodeError("[%d] %s")
}

func (e *cError) IsCode(code CodeError) bool {
	return e.code == code
}

func (e *cError) HasCode(code CodeError) bool {
	if e.code == code {
		return true
	}

	for _, p := range e.parent {
		if v, ok := p.(Error); ok && v.HasCode(code) {
			return true
		}
	}

	return false
}

func (e *cError) GetCode() CodeError {
	return e.code
}

func (e *cError) Is(target error) bool {
	if v, ok := target.(Error); ok {
		return e.code == v.GetCode()
	}

	return errors.Is(error(e), target)
}

func (e *cError) HasError(err error) bool {
	if err == nil {
		return false
	}

	if e.Error() == err.Error() {
		return true
	}

	for _, p := range e.parent {
		if p.Error() == err.Error() {
			return true
		}
	}

	return false
}

func (e *cError) HasParent() bool {
	return len(e.parent) > 0
}

func (e *cError) GetParent() []error {
	out := make([]error, len(e.parent))
	copy(out, e.parent)
	return out
}

func (e *cError) Map(fct FuncMap) bool {
	if fct == nil {
		return false
	}

	if !fct(e) {
		return false
	}

	for _, p := range e.parent {
		if !fct(p) {
			return false
		}
	}

	return true
}

func (e *cError) Add(parent ...error) {
	for _, p := range parent {
		if p != nil {
			e.parent = append(e.parent, p)
		}
	}
}

func (e *cError) SetParent(parent ...error) {
	e.parent = make([]error, 0, len(parent))
	e.Add(parent...)
}

func (e *cError) Code() uint16 {
	return uint16(e.code)
}

func (e *cError) CodeError(pattern string) string {
	if len(e.parent) == 0 {
		return fmt.Sprintf(pattern, e.code, e.msg)
	}

	return fmt.Sprintf(pattern+": %s", e.code, e.msg, e.parent[len(e.parent)-1].Error())
}

func (e *cError) GetTrace() string {
	return fmt.Sprintf("%s:%d (%s)", e.file, e.line, e.fn)
}

func (e *cError) Unwrap() []error {
	return e.parent
}
