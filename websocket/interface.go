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

// Package websocket declares the external-collaborator boundary for
// WebSocket frame handling. Byte-level frame parsing is out of scope per
// spec.md §1; this package only defines the interfaces httpplug's
// SwitchProtocols101 plugin hands off to, plus a stub satisfying them
// until a caller supplies a real implementation.
package websocket

import liberr "github.com/sabouaram/asyncnet/errors"

// ErrNotImplemented reuses the shared errors.NotImplemented code: frame
// parsing has no protocol-shape failure mode of its own yet, just "absent".
const ErrNotImplemented = liberr.NotImplemented

// Frame is one decoded WebSocket frame.
type Frame struct {
	Opcode  byte
	Final   bool
	Payload []byte
}

// FrameParser decodes a stream of bytes into Frames and encodes Frames
// back to wire bytes, for whichever side (client/server) it was built for.
type FrameParser interface {
	Decode(chunk []byte) ([]Frame, error)
	Encode(f Frame) ([]byte, error)
}

// Handler receives decoded frames from the upgraded connection.
type Handler interface {
	OnFrame(f Frame) error
	OnClose(err error)
}

// NotImplementedParser satisfies FrameParser so a client can be built and
// upgraded without frame parsing wired in yet; any Decode/Encode call
// fails with errors.NotImplemented. Replace with a real codec before
// sending real traffic over the upgraded connection.
type NotImplementedParser struct{}

func (NotImplementedParser) Decode(chunk []byte) ([]Frame, error) {
	return nil, liberr.New(ErrNotImplemented)
}

func (NotImplementedParser) Encode(f Frame) ([]byte, error) {
	return nil, liberr.New(ErrNotImplemented)
}
