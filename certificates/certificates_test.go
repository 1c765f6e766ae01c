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

package certificates_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/asyncnet/certificates"
)

// selfSigned writes a fresh self-signed cert/key pair under dir and returns
// the PEM-encoded certificate bytes alongside the cert and key file paths.
func selfSigned(dir, name string) (certPEM []byte, certPath, keyPath string) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	Expect(err).NotTo(HaveOccurred())

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: name},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		IsCA:         true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	Expect(err).NotTo(HaveOccurred())

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	certPath = filepath.Join(dir, name+".crt")
	keyPath = filepath.Join(dir, name+".key")

	Expect(os.WriteFile(certPath, certPEM, 0o600)).To(Succeed())
	Expect(os.WriteFile(keyPath, keyPEM, 0o600)).To(Succeed())

	return certPEM, certPath, keyPath
}

var _ = Describe("Config.TLSConfig", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "asyncnet-certs-")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	It("defaults MinVersion to TLS 1.2 when unset", func() {
		cfg, err := certificates.Config{}.TLSConfig()
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.MinVersion).To(Equal(uint16(tls.VersionTLS12)))
	})

	It("honors an explicit MinVersion", func() {
		cfg, err := certificates.Config{MinVersion: tls.VersionTLS13}.TLSConfig()
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.MinVersion).To(Equal(uint16(tls.VersionTLS13)))
	})

	It("loads a CA bundle into RootCAs", func() {
		_, caPath, _ := selfSigned(dir, "ca")

		cfg, err := certificates.Config{CAFiles: []string{caPath}}.TLSConfig()
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.RootCAs).NotTo(BeNil())
	})

	It("fails with ErrLoadCA when a CA file is missing", func() {
		_, err := certificates.Config{CAFiles: []string{filepath.Join(dir, "missing.pem")}}.TLSConfig()
		Expect(err).To(HaveOccurred())
	})

	It("loads a client certificate pair", func() {
		_, certPath, keyPath := selfSigned(dir, "client")

		cfg, err := certificates.Config{CertFile: certPath, KeyFile: keyPath}.TLSConfig()
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Certificates).To(HaveLen(1))
	})

	It("fails with ErrLoadCert on an unreadable key file", func() {
		_, certPath, _ := selfSigned(dir, "client2")

		_, err := certificates.Config{CertFile: certPath, KeyFile: filepath.Join(dir, "missing.key")}.TLSConfig()
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Clone", func() {
	It("overrides ServerName on a copy, leaving the base untouched", func() {
		base := &tls.Config{ServerName: "proxy.internal", MinVersion: tls.VersionTLS12}

		cloned := certificates.Clone(base, "origin.example.com")

		Expect(cloned.ServerName).To(Equal("origin.example.com"))
		Expect(base.ServerName).To(Equal("proxy.internal"))
	})

	It("builds a sane default when base is nil", func() {
		cloned := certificates.Clone(nil, "origin.example.com")

		Expect(cloned.ServerName).To(Equal("origin.example.com"))
		Expect(cloned.MinVersion).To(Equal(uint16(tls.VersionTLS12)))
	})
})
