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

// Package certificates builds crypto/tls.Config values for Transport (client
// side) and the tunneling plugin's post-CONNECT TLS rewrap, from the subset
// of options a pooled async client actually needs: server name, a custom root
// pool, client certificates and the usual insecure-skip-verify escape hatch.
package certificates

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	liberr "github.com/sabouaram/asyncnet/errors"
)

func init() {
	liberr.RegisterMessage(ErrLoadCert, "cannot load certificate pair")
	liberr.RegisterMessage(ErrLoadCA, "cannot load CA bundle")
}

const (
	ErrLoadCert liberr.CodeError = iota + 300
	ErrLoadCA
)

// Config describes the TLS posture of one Transport or Tunneling target.
type Config struct {
	ServerName         string   `mapstructure:"server_name" json:"server_name,omitempty"`
	InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify" json:"insecure_skip_verify,omitempty"`
	CAFiles            []string `mapstructure:"ca_files" json:"ca_files,omitempty"`
	CertFile           string   `mapstructure:"cert_file" json:"cert_file,omitempty"`
	KeyFile            string   `mapstructure:"key_file" json:"key_file,omitempty"`
	MinVersion         uint16   `mapstructure:"min_version" json:"min_version,omitempty"`
}

// TLSConfig builds a *tls.Config from c, loading any configured CA bundle
// and client certificate pair from disk.
func (c Config) TLSConfig() (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName:         c.ServerName,
		InsecureSkipVerify: c.InsecureSkipVerify,
		MinVersion:         c.MinVersion,
	}

	if cfg.MinVersion == 0 {
		cfg.MinVersion = tls.VersionTLS12
	}

	if len(c.CAFiles) > 0 {
		pool := x509.NewCertPool()

		for _, f := range c.CAFiles {
			b, err := os.ReadFile(f)
			if err != nil {
				return nil, liberr.New(ErrLoadCA, err)
			}

			if !pool.AppendCertsFromPEM(b) {
				return nil, liberr.New(ErrLoadCA)
			}
		}

		cfg.RootCAs = pool
	}

	if c.CertFile != "" && c.KeyFile != "" {
		crt, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, liberr.New(ErrLoadCert, err)
		}

		cfg.Certificates = []tls.Certificate{crt}
	}

	return cfg, nil
}

// Clone returns a copy of base with ServerName overridden, used by the
// tunneling plugin to rewrap a CONNECT'd connection for the true target
// host rather than the proxy's own name.
func Clone(base *tls.Config, serverName string) *tls.Config {
	if base == nil {
		base = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cp := base.Clone()
	cp.ServerName = serverName
	return cp
}
