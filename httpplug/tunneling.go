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
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"golang.org/x/net/http/httpproxy"

	"github.com/sabouaram/asyncnet/certificates"
	"github.com/sabouaram/asyncnet/client"
	"github.com/sabouaram/asyncnet/consumer"
	liberr "github.com/sabouaram/asyncnet/errors"
	"github.com/sabouaram/asyncnet/event"
	"github.com/sabouaram/asyncnet/transport"
)

func init() {
	liberr.RegisterMessage(ErrTunnelRefused, "proxy refused CONNECT tunnel")
}

// ErrTunnelRefused reports a non-2xx response to a CONNECT request.
const ErrTunnelRefused liberr.CodeError = iota + 800

// rewrapper is the narrow view of connection.Connection Tunneling needs
// beyond consumer.ConnectionHandle. A plain type assertion off
// cons.Connection() works because the concrete value is always
// *connection.Connection.
type rewrapper interface {
	Socket() net.Conn
	Rewrap(t transport.Transport)
	SilenceNextConnectionMade()
}

// BindTunneling returns a client.Plugin implementing the forward-proxy
// CONNECT flow (spec.md §4.6): on pre_request it rewrites req into a
// CONNECT to req.Tunnel.ProxyAddress, then on the CONNECT's own
// post_request (parsed by the same Exchange machinery as any other
// response) it rewraps the raw socket in TLS and redispatches the
// original request onto the same connection via Outcome.Conn.
//
// When req.Tunnel is nil and c.TrustEnv is set (the default, mirroring the
// source's trust_env), a Tunnel is first derived from the process's
// HTTP_PROXY/HTTPS_PROXY/NO_PROXY environment via proxyFromEnv, so a
// caller that never names a proxy explicitly still tunnels through
// whatever the environment configures.
//
// This collapses the source's two-pass pre_request-rebinds-itself state
// machine into one coherent pass producing the same wire sequence: a
// CONNECT, then (on 2xx) the real request over the upgraded socket.
func BindTunneling(c *client.Client) client.Plugin {
	return func(cons *consumer.ProtocolConsumer, req *client.Request) {
		if req.Tunnel == nil {
			req.Tunnel = proxyFromEnv(c, req)
		}

		if req.Tunnel == nil {
			return
		}

		target := req.Tunnel.TargetHost
		real := *req

		req.Method = "CONNECT"
		req.Address = req.Tunnel.ProxyAddress
		req.Header = connectHeader(req.Tunnel)
		// An empty-path URL with just Host set makes net/http.Request.Write
		// emit "CONNECT host:port HTTP/1.1" instead of the real path.
		req.URL = &url.URL{Host: target}

		cons.Handler.Bind(consumer.EventPostRequest, func(result event.Result, exc error) event.Result {
			resp, ok := result.(*Response)
			if !ok {
				return result
			}

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return client.Outcome{Err: liberr.New(ErrTunnelRefused)}
			}

			conn := cons.Connection()
			rw, ok := conn.(rewrapper)
			if !ok {
				return client.Outcome{Err: liberr.New(ErrTunnelRefused)}
			}

			tlsCfg, err := tlsConfigFor(real.TLS)
			if err != nil {
				return client.Outcome{Err: err}
			}

			newTransport, err := transport.TLSWrap(c.Loop(), rw.Socket(), tlsCfg, target)
			if err != nil {
				return client.Outcome{Err: err}
			}

			rw.Rewrap(newTransport)
			rw.SilenceNextConnectionMade()

			return client.Outcome{
				Kind:   client.Redispatch,
				Method: real.Method,
				URL:    real.URL.String(),
				Body:   real.Body,
				Params: real.Params,
				Conn:   conn,
			}
		})
	}
}

// proxyFromEnv resolves req.URL against the environment's proxy
// configuration (golang.org/x/net/http/httpproxy, the same rules
// net/http's DefaultTransport uses for ProxyFromEnvironment), honoring
// NO_PROXY. Returns nil when trust_env is off, req.URL is unset, or the
// environment names no proxy for this request.
func proxyFromEnv(c *client.Client, req *client.Request) *client.TunnelDescriptor {
	if !c.TrustEnv || req.URL == nil {
		return nil
	}

	proxyURL, err := httpproxy.FromEnvironment().ProxyFunc()(req.URL)
	if err != nil || proxyURL == nil {
		return nil
	}

	desc := &client.TunnelDescriptor{
		ProxyAddress: proxyURL.Host,
		TargetHost:   hostWithPort(req.URL),
	}

	if proxyURL.User != nil {
		desc.Username = proxyURL.User.Username()
		desc.Password, _ = proxyURL.User.Password()
	}

	return desc
}

// hostWithPort returns u.Host with the scheme's default port appended when
// u carries none, since a CONNECT target must always name a port.
func hostWithPort(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}

	port := "80"
	if u.Scheme == "https" {
		port = "443"
	}

	return net.JoinHostPort(u.Hostname(), port)
}

func connectHeader(t *client.TunnelDescriptor) http.Header {
	h := http.Header{"Host": {t.TargetHost}}

	if t.Username != "" {
		creds := base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%s:%s", t.Username, t.Password)))
		h.Set("Proxy-Authorization", "Basic "+creds)
	}

	return h
}

// tlsConfigFor builds the *tls.Config the rewrapped tunnel connection
// should present, defaulting when the request set none.
func tlsConfigFor(cfg *certificates.Config) (*tls.Config, error) {
	if cfg == nil {
		return &tls.Config{MinVersion: tls.VersionTLS12}, nil
	}

	return cfg.TLSConfig()
}
