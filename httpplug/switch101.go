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
	"github.com/sabouaram/asyncnet/event"
	"github.com/sabouaram/asyncnet/websocket"
)

// WebSocketUpgrade adapts a websocket.Handler into the
// consumer.ProtocolConsumer a switched connection runs under: every frame
// the parser decodes off data_received is handed to the caller's Handler,
// with no HTTP framing left to interpret. This is the explicit adapter
// spec.md §9 calls for in place of the original's dynamic attribute
// delegation onto the upgraded consumer.
type WebSocketUpgrade struct {
	Parser  websocket.FrameParser
	Handler websocket.Handler
}

func newWebSocketConsumer(up *WebSocketUpgrade) *consumer.ProtocolConsumer {
	cons := consumer.New()

	cons.Handler.Bind(consumer.EventDataReceived, func(result event.Result, exc error) event.Result {
		if exc != nil {
			up.Handler.OnClose(exc)
			return nil
		}

		data, _ := result.([]byte)
		frames, err := up.Parser.Decode(data)
		if err != nil {
			up.Handler.OnClose(err)
			return nil
		}

		for _, f := range frames {
			if err := up.Handler.OnFrame(f); err != nil {
				up.Handler.OnClose(err)
				return nil
			}
		}

		return nil
	})

	cons.Handler.Bind(consumer.EventConnectionLost, func(result event.Result, exc error) event.Result {
		up.Handler.OnClose(exc)
		return nil
	})

	return cons
}

// BindSwitchProtocols101 returns a client.Plugin implementing
// SwitchProtocols101 (spec.md §4.6): on a 101 on_headers response, it
// upgrades req's connection away from the HTTP exchange machinery onto a
// WebSocketUpgrade consumer built from req.WebSocketHandler, via c.Upgrade.
// req.WebSocketHandler must be a *WebSocketUpgrade; anything else is
// ignored and the 101 response is left to fall through as a plain
// (unusual) HTTP response.
func BindSwitchProtocols101(c *client.Client) client.Plugin {
	return func(cons *consumer.ProtocolConsumer, req *client.Request) {
		up, ok := req.WebSocketHandler.(*WebSocketUpgrade)
		if !ok || up == nil {
			return
		}

		cons.Handler.Bind(consumer.EventOnHeaders, func(result event.Result, exc error) event.Result {
			resp, ok := result.(*Response)
			if !ok || resp.StatusCode != 101 {
				return result
			}

			conn := cons.Connection()
			if conn == nil {
				return result
			}

			c.Upgrade(conn, func() *consumer.ProtocolConsumer {
				return newWebSocketConsumer(up)
			})

			return result
		})
	}
}
