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

// Package config loads and validates ClientConfig, the top-level settings
// for a Client/ConnectionPool, through viper with optional live-reload on
// the backing file.
package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/sabouaram/asyncnet/certificates"
	liberr "github.com/sabouaram/asyncnet/errors"
)

func init() {
	liberr.RegisterMessage(ErrConfigLoad, "cannot load configuration")
	liberr.RegisterMessage(ErrConfigValidate, "invalid configuration")
}

const (
	ErrConfigLoad liberr.CodeError = iota + 400
	ErrConfigValidate
)

// ProxyConfig describes an optional forward proxy CONNECT tunnel.
type ProxyConfig struct {
	URL      string `mapstructure:"url" json:"url,omitempty" yaml:"url,omitempty" toml:"url,omitempty"`
	Username string `mapstructure:"username" json:"username,omitempty" yaml:"username,omitempty" toml:"username,omitempty"`
	Password string `mapstructure:"password" json:"password,omitempty" yaml:"password,omitempty" toml:"password,omitempty"`
}

// ClientConfig is the top-level, hot-reloadable configuration for a Client
// and the ConnectionPool instances it creates.
type ClientConfig struct {
	MaxConnections  int64               `mapstructure:"max_connections" json:"max_connections" yaml:"max_connections" toml:"max_connections" validate:"gte=0"`
	Timeout         string              `mapstructure:"timeout" json:"timeout" yaml:"timeout" toml:"timeout" validate:"required"`
	MaxReconnect    int                 `mapstructure:"max_reconnect" json:"max_reconnect" yaml:"max_reconnect" toml:"max_reconnect" validate:"gte=0"`
	ReconnectingGap string              `mapstructure:"reconnecting_gap" json:"reconnecting_gap" yaml:"reconnecting_gap" toml:"reconnecting_gap" validate:"required"`
	ForceSync       bool                `mapstructure:"force_sync" json:"force_sync,omitempty" yaml:"force_sync,omitempty" toml:"force_sync,omitempty"`
	TLS             certificates.Config `mapstructure:"tls" json:"tls,omitempty" yaml:"tls,omitempty" toml:"tls,omitempty"`
	Proxy           *ProxyConfig        `mapstructure:"proxy" json:"proxy,omitempty" yaml:"proxy,omitempty" toml:"proxy,omitempty"`
}

var validate = validator.New()

// Load reads path (any format viper supports: yaml, json, toml) into a
// ClientConfig and validates it.
func Load(path string) (*ClientConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, liberr.New(ErrConfigLoad, err)
	}

	cfg := &ClientConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, liberr.New(ErrConfigLoad, err)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, liberr.New(ErrConfigValidate, err)
	}

	return cfg, nil
}

// Watcher reloads a ClientConfig from its backing file whenever that file
// changes, handing each valid reload to a registered callback. An invalid
// reload is logged by the caller (via OnError) and the previous config is
// kept in effect.
type Watcher struct {
	mu       sync.RWMutex
	path     string
	current  *ClientConfig
	watcher  *fsnotify.Watcher
	onChange func(*ClientConfig)
	onError  func(error)
	done     chan struct{}
}

// NewWatcher loads path once and begins watching it for subsequent writes.
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, liberr.New(ErrConfigLoad, err)
	}

	if err := fw.Add(path); err != nil {
		_ = fw.Close()
		return nil, liberr.New(ErrConfigLoad, err)
	}

	w := &Watcher{
		path:    path,
		current: cfg,
		watcher: fw,
		done:    make(chan struct{}),
	}

	go w.run()

	return w, nil
}

// OnChange registers a callback invoked after every successful reload.
func (w *Watcher) OnChange(fct func(*ClientConfig)) { w.onChange = fct }

// OnError registers a callback invoked when a reload fails validation or
// parsing; the previously loaded config remains current.
func (w *Watcher) OnError(fct func(error)) { w.onError = fct }

// Current returns the most recently loaded valid configuration.
func (w *Watcher) Current() *ClientConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Close stops watching the backing file.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			cfg, err := Load(w.path)
			if err != nil {
				if w.onError != nil {
					w.onError(fmt.Errorf("reload %s: %w", w.path, err))
				}
				continue
			}

			w.mu.Lock()
			w.current = cfg
			w.mu.Unlock()

			if w.onChange != nil {
				w.onChange(cfg)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}

			if w.onError != nil {
				w.onError(err)
			}
		}
	}
}
