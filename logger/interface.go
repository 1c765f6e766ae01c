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

// Package logger wraps logrus behind a narrow interface so pool, client and
// httpplug depend on a handful of leveled methods rather than the full
// logrus API, and so tests can inject a no-op or a captured-entries logger.
package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the subset of logging behavior used across this module.
type Logger interface {
	WithField(key string, val interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})

	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type logrusLogger struct {
	entry *logrus.Entry
}

// Options configures the concrete logger built by New.
type Options struct {
	Level     string `mapstructure:"level" json:"level,omitempty"`
	JSON      bool   `mapstructure:"json" json:"json,omitempty"`
	Output    io.Writer
	Component string `mapstructure:"component" json:"component,omitempty"`
}

// New builds a Logger from opts, defaulting to info level, text formatting
// on stderr, matching the teacher's default logrus setup.
func New(opts Options) Logger {
	l := logrus.New()

	if opts.Output != nil {
		l.SetOutput(opts.Output)
	} else {
		l.SetOutput(os.Stderr)
	}

	if opts.JSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	lvl, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	e := logrus.NewEntry(l)
	if opts.Component != "" {
		e = e.WithField("component", opts.Component)
	}

	return &logrusLogger{entry: e}
}

// NewNop returns a Logger that discards everything, for tests that only
// care about behavior, not log output.
func NewNop() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

func (g *logrusLogger) WithField(key string, val interface{}) Logger {
	return &logrusLogger{entry: g.entry.WithField(key, val)}
}

func (g *logrusLogger) WithFields(fields map[string]interface{}) Logger {
	return &logrusLogger{entry: g.entry.WithFields(fields)}
}

func (g *logrusLogger) WithError(err error) Logger {
	return &logrusLogger{entry: g.entry.WithError(err)}
}

func (g *logrusLogger) Debug(args ...interface{}) { g.entry.Debug(args...) }
func (g *logrusLogger) Info(args ...interface{})  { g.entry.Info(args...) }
func (g *logrusLogger) Warn(args ...interface{})  { g.entry.Warn(args...) }
func (g *logrusLogger) Error(args ...interface{}) { g.entry.Error(args...) }

func (g *logrusLogger) Debugf(format string, args ...interface{}) { g.entry.Debugf(format, args...) }
func (g *logrusLogger) Infof(format string, args ...interface{})  { g.entry.Infof(format, args...) }
func (g *logrusLogger) Warnf(format string, args ...interface{})  { g.entry.Warnf(format, args...) }
func (g *logrusLogger) Errorf(format string, args ...interface{}) { g.entry.Errorf(format, args...) }
