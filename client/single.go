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

package client

import (
	"context"
	"sync"

	"github.com/sabouaram/asyncnet/consumer"
	liberr "github.com/sabouaram/asyncnet/errors"
	"github.com/sabouaram/asyncnet/logger"
	"github.com/sabouaram/asyncnet/loop"
)

// SingleClient pins every request to one ProtocolConsumer/Connection
// instead of keying by request fingerprint, for protocols that are
// inherently single-connection (e.g. a persistent control channel).
// Supplemented from original_source/clients.py's SingleClient, which
// subclasses Client the same way this wraps one.
type SingleClient struct {
	*Client

	mu   sync.Mutex
	cons *consumer.ProtocolConsumer
}

// NewSingle builds a SingleClient around a normally-configured Client.
func NewSingle(lp loop.Loop, log logger.Logger) *SingleClient {
	return &SingleClient{Client: New(lp, log)}
}

// Response materializes the first request through the normal pool path;
// every subsequent call reuses the already-bound consumer and connection
// instead of acquiring a new one.
func (s *SingleClient) Response(ctx context.Context, req *Request) (*consumer.ProtocolConsumer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cons == nil {
		cons, err := s.Client.Response(ctx, req)
		if err != nil {
			return nil, err
		}

		s.cons = cons
		return cons, nil
	}

	conn := s.cons.Connection()
	if conn == nil {
		return nil, liberr.New(ErrClientClosed)
	}

	s.cons.NewRequest(req)

	if _, err := conn.Write(req.Bytes()); err != nil {
		return s.cons, err
	}

	return s.cons, nil
}
