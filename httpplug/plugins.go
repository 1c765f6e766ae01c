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

import "github.com/sabouaram/asyncnet/client"

// DefaultPlugins returns every httpplug plugin in the order Client.Plugins
// needs: Tunneling must rewrite a CONNECT request before Exchange captures
// the net/http.Request it parses responses against, and Expect100Continue
// must claim the initial write before Exchange (via dispatch's
// alreadyWritten check) ever happens. Redirect/Cookies/SwitchProtocols101
// only bind post_request/on_headers handlers, so their relative order
// amongst themselves and after Exchange does not matter.
func DefaultPlugins(c *client.Client) []client.Plugin {
	return []client.Plugin{
		BindTunneling(c),
		BindExpect100Continue,
		BindExchange,
		BindRedirect,
		BindCookies(c),
		BindSwitchProtocols101(c),
	}
}
