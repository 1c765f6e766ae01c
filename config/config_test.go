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

package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/asyncnet/config"
)

const validYAML = `
max_connections: 10
timeout: 30s
max_reconnect: 3
reconnecting_gap: 1s
force_sync: false
`

const invalidYAML = `
max_connections: -1
timeout: 30s
max_reconnect: 3
reconnecting_gap: 1s
`

var _ = Describe("Load", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "asyncnet-config-")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	It("loads and validates a well-formed YAML file", func() {
		path := filepath.Join(dir, "client.yaml")
		Expect(os.WriteFile(path, []byte(validYAML), 0o600)).To(Succeed())

		cfg, err := config.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.MaxConnections).To(Equal(int64(10)))
		Expect(cfg.MaxReconnect).To(Equal(3))
	})

	It("fails on a missing file", func() {
		_, err := config.Load(filepath.Join(dir, "missing.yaml"))
		Expect(err).To(HaveOccurred())
	})

	It("fails validation when max_connections is negative", func() {
		path := filepath.Join(dir, "bad.yaml")
		Expect(os.WriteFile(path, []byte(invalidYAML), 0o600)).To(Succeed())

		_, err := config.Load(path)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Watcher", func() {
	var dir, path string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "asyncnet-config-watch-")
		Expect(err).NotTo(HaveOccurred())

		path = filepath.Join(dir, "client.yaml")
		Expect(os.WriteFile(path, []byte(validYAML), 0o600)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	It("reloads and reports the new config through OnChange on a file write", func() {
		w, err := config.NewWatcher(path)
		Expect(err).NotTo(HaveOccurred())
		defer w.Close()

		changed := make(chan *config.ClientConfig, 1)
		w.OnChange(func(cfg *config.ClientConfig) { changed <- cfg })

		updated := validYAML + "\n"
		Expect(os.WriteFile(path, []byte(updated+"  "), 0o600)).To(Succeed())

		Eventually(changed, "2s").Should(Receive())
	})

	It("keeps the previous config and reports via OnError on an invalid reload", func() {
		w, err := config.NewWatcher(path)
		Expect(err).NotTo(HaveOccurred())
		defer w.Close()

		failed := make(chan error, 1)
		w.OnError(func(err error) { failed <- err })

		Expect(os.WriteFile(path, []byte(invalidYAML), 0o600)).To(Succeed())

		Eventually(failed, "2s").Should(Receive())
		Expect(w.Current().MaxConnections).To(Equal(int64(10)))
	})

	It("stops watching after Close", func() {
		w, err := config.NewWatcher(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Close()).To(Succeed())
	})
})
