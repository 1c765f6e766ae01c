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

package transport_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/asyncnet/event"
	"github.com/sabouaram/asyncnet/loop"
	"github.com/sabouaram/asyncnet/transport"
)

func selfSignedServerCert(name string) tls.Certificate {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	Expect(err).NotTo(HaveOccurred())

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: name},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{name},
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	Expect(err).NotTo(HaveOccurred())

	crt, err := x509.ParseCertificate(der)
	Expect(err).NotTo(HaveOccurred())

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: crt}
}

var _ = Describe("tcpTransport (New)", func() {
	It("connects to a listener, exchanges bytes, and fires lifecycle events", func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		defer ln.Close()

		accepted := make(chan net.Conn, 1)
		go func() {
			c, err := ln.Accept()
			if err == nil {
				accepted <- c
			}
		}()

		lp := loop.New()
		defer lp.Stop()

		tr := transport.New(lp, nil)

		madeCh := make(chan struct{}, 1)
		dataCh := make(chan []byte, 1)
		lostCh := make(chan error, 1)

		tr.Handler().Bind(transport.EventConnectionMade, func(result event.Result, exc error) event.Result {
			madeCh <- struct{}{}
			return result
		})
		tr.Handler().Bind(transport.EventDataReceived, func(result event.Result, exc error) event.Result {
			b, _ := result.([]byte)
			dataCh <- b
			return result
		})
		tr.Handler().Bind(transport.EventConnectionLost, func(result event.Result, exc error) event.Result {
			lostCh <- exc
			return result
		})

		fut, err := tr.Connect(context.Background(), ln.Addr().String())
		Expect(err).NotTo(HaveOccurred())

		_, err = fut.Wait(context.Background())
		Expect(err).NotTo(HaveOccurred())

		Eventually(madeCh).Should(Receive())
		Expect(tr.IsTLS()).To(BeFalse())
		Expect(tr.Socket()).NotTo(BeNil())

		var server net.Conn
		Eventually(accepted).Should(Receive(&server))
		defer server.Close()

		_, err = server.Write([]byte("server says hi"))
		Expect(err).NotTo(HaveOccurred())

		var got []byte
		Eventually(dataCh).Should(Receive(&got))
		Expect(string(got)).To(Equal("server says hi"))

		n, err := tr.Write([]byte("client says hi"))
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(len("client says hi")))

		buf := make([]byte, 64)
		n, err = server.Read(buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(buf[:n])).To(Equal("client says hi"))

		Expect(server.Close()).To(Succeed())
		Eventually(lostCh).Should(Receive())
	})

	It("fails Write before Connect has established a socket", func() {
		lp := loop.New()
		defer lp.Stop()

		tr := transport.New(lp, nil)
		_, err := tr.Write([]byte("too soon"))
		Expect(err).To(Equal(net.ErrClosed))
	})
})

var _ = Describe("TLSWrap", func() {
	It("upgrades an already-connected plain socket to TLS and exchanges bytes", func() {
		clientConn, serverConn := net.Pipe()

		cert := selfSignedServerCert("tunnel.example.com")
		serverDone := make(chan error, 1)

		go func() {
			srv := tls.Server(serverConn, &tls.Config{Certificates: []tls.Certificate{cert}})
			serverDone <- srv.Handshake()

			buf := make([]byte, 64)
			n, err := srv.Read(buf)
			if err == nil {
				_, _ = srv.Write(buf[:n])
			}
		}()

		lp := loop.New()
		defer lp.Stop()

		clientTLSCfg := &tls.Config{
			ServerName: "tunnel.example.com",
			RootCAs:    x509.NewCertPool(),
		}
		clientTLSCfg.RootCAs.AddCert(cert.Leaf)

		tr, err := transport.TLSWrap(lp, clientConn, clientTLSCfg, "tunnel.example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(<-serverDone).NotTo(HaveOccurred())

		Expect(tr.IsTLS()).To(BeTrue())

		dataCh := make(chan []byte, 1)
		tr.Handler().Bind(transport.EventDataReceived, func(result event.Result, exc error) event.Result {
			b, _ := result.([]byte)
			dataCh <- b
			return result
		})

		_, err = tr.Write([]byte("ping"))
		Expect(err).NotTo(HaveOccurred())

		var got []byte
		Eventually(dataCh).Should(Receive(&got))
		Expect(string(got)).To(Equal("ping"))
	})

	It("defaults to ServerName when cfg has none set", func() {
		clientConn, serverConn := net.Pipe()

		cert := selfSignedServerCert("auto.example.com")
		serverDone := make(chan error, 1)
		go func() {
			srv := tls.Server(serverConn, &tls.Config{Certificates: []tls.Certificate{cert}})
			serverDone <- srv.Handshake()
		}()

		lp := loop.New()
		defer lp.Stop()

		pool := x509.NewCertPool()
		pool.AddCert(cert.Leaf)

		tr, err := transport.TLSWrap(lp, clientConn, &tls.Config{RootCAs: pool}, "auto.example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(<-serverDone).NotTo(HaveOccurred())
		Expect(tr.IsTLS()).To(BeTrue())
	})

	It("fails the handshake against an untrusted certificate", func() {
		clientConn, serverConn := net.Pipe()

		cert := selfSignedServerCert("untrusted.example.com")
		go func() {
			srv := tls.Server(serverConn, &tls.Config{Certificates: []tls.Certificate{cert}})
			_ = srv.Handshake()
		}()

		lp := loop.New()
		defer lp.Stop()

		_, err := transport.TLSWrap(lp, clientConn, &tls.Config{}, "untrusted.example.com")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Close", func() {
	It("closes the underlying socket and is a no-op before Connect", func() {
		lp := loop.New()
		defer lp.Stop()

		tr := transport.New(lp, nil)
		Expect(tr.Close()).To(Succeed())
	})
})

var _ = Describe("io reader contract", func() {
	It("net.Pipe enforces synchronous read/write, as TLSWrap's tests rely on", func() {
		a, b := net.Pipe()
		defer a.Close()
		defer b.Close()

		done := make(chan struct{})
		go func() {
			buf := make([]byte, 4)
			_, _ = io.ReadFull(b, buf)
			close(done)
		}()

		_, err := a.Write([]byte("data"))
		Expect(err).NotTo(HaveOccurred())
		Eventually(done).Should(BeClosed())
	})
})
