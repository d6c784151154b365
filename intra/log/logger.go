// Copyright (c) 2025 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.
//
// This file incorporates work covered by the following copyright and
// permission notice:
//
//	MIT License
//
//	Copyright (c) 2018 eycorsican
//
//	Permission is hereby granted, free of charge, to any person obtaining a copy
//	of this software and associated documentation files (the "Software"), to deal
//	in the Software without restriction, including without limitation the rights
//	to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
//	copies of the Software, and to permit persons to whom the Software is
//	furnished to do so, subject to the following conditions:
//
//	The above copyright notice and this permission notice shall be included in all
//	copies or substantial portions of the Software.
//
//	THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
//	IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
//	FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
//	AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
//	LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
//	OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
//	SOFTWARE.
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

type Logger interface {
	SetLevel(level LogLevel)
	SetTag(tag string)
	SetOutput(w io.Writer)
	Verbosef(at int, msg string, args ...any)
	Debugf(at int, msg string, args ...any)
	Infof(at int, msg string, args ...any)
	Warnf(at int, msg string, args ...any)
	Errorf(at int, msg string, args ...any)
	Fatalf(at int, msg string, args ...any)
	Stack(at int, msg string)
}

// based on github.com/eycorsican/go-tun2socks/blob/301549c43/common/log/simple/logger.go
type simpleLogger struct {
	sync.RWMutex // guards tag
	level        atomic.Uint32
	tag          string
	l            *logrus.Logger
	q            *ring[string] // recent msgs, dumped along with stacktraces
}

var _ Logger = (*simpleLogger)(nil)

// based on: github.com/eycorsican/go-tun2socks/blob/301549c43/common/log/logger.go
type LogLevel uint32

const (
	VERBOSE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
	STACKTRACE
	NONE
)

const defaultLevel = INFO

// qSize is the number of recent log msgs to keep in the ring buffer.
const qSize = 64

// stackSize is the max bytes of a single goroutine's stacktrace.
const stackSize = 16 * 1024

var _ = RegisterLogger(defaultLogger())

func defaultLogger() *simpleLogger {
	lr := logrus.New()
	lr.SetOutput(os.Stderr)
	lr.SetLevel(logrus.TraceLevel) // filtered by simpleLogger.level
	lr.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	l := &simpleLogger{
		l: lr,
		q: newRing[string](qSize),
	}
	l.level.Store(uint32(defaultLevel))
	return l
}

// NewLogger creates a new Glogger with the given tag.
func NewLogger(tag string) *simpleLogger {
	l := defaultLogger()
	l.SetTag(tag)
	return l
}

// SetLevel sets the log level.
func (l *simpleLogger) SetLevel(n LogLevel) {
	l.level.Store(uint32(n))
}

// SetTag sets the prefix for all msgs; empty clears it.
func (l *simpleLogger) SetTag(tag string) {
	if len(tag) > 0 && !strings.HasSuffix(tag, ":") {
		tag += ":"
	}
	l.Lock()
	l.tag = tag
	l.Unlock()
}

// SetOutput redirects all msgs to w.
func (l *simpleLogger) SetOutput(w io.Writer) {
	l.l.SetOutput(w)
}

func (l *simpleLogger) enabled(n LogLevel) bool {
	return LogLevel(l.level.Load()) <= n
}

func (l *simpleLogger) Verbosef(at int, msg string, args ...any) {
	if l.enabled(VERBOSE) {
		l.emit(at, logrus.TraceLevel, l.msgstr(msg, args...))
	}
}

func (l *simpleLogger) Debugf(at int, msg string, args ...any) {
	if l.enabled(DEBUG) {
		l.emit(at, logrus.DebugLevel, l.msgstr(msg, args...))
	}
}

func (l *simpleLogger) Infof(at int, msg string, args ...any) {
	if l.enabled(INFO) {
		l.emit(at, logrus.InfoLevel, l.msgstr(msg, args...))
	}
}

func (l *simpleLogger) Warnf(at int, msg string, args ...any) {
	if l.enabled(WARN) {
		l.emit(at, logrus.WarnLevel, l.msgstr(msg, args...))
	}
}

func (l *simpleLogger) Errorf(at int, msg string, args ...any) {
	if l.enabled(ERROR) {
		l.emit(at, logrus.ErrorLevel, l.msgstr(msg, args...))
	}
}

func (l *simpleLogger) Fatalf(at int, msg string, args ...any) {
	l.emit(at, logrus.ErrorLevel, l.msgstr(msg, args...))
	os.Exit(1)
}

func (l *simpleLogger) Stack(at int, msg string) {
	msg = l.msgstr("%s", msg)
	if !l.enabled(STACKTRACE) {
		l.emit(at, logrus.ErrorLevel, msg+"; stacktrace disabled")
		return
	}

	recent := l.q.Items()
	scratch := make([]byte, stackSize)
	n := runtime.Stack(scratch, false)
	if n == len(scratch) {
		msg += " [trunc]"
	}

	if len(recent) > 0 {
		l.emit(at, logrus.ErrorLevel, strings.Join(recent, "\n"))
	}
	l.emit(at, logrus.ErrorLevel, msg+"\n"+string(scratch[:n]))
}

func (l *simpleLogger) msgstr(f string, args ...any) string {
	msg := fmt.Sprintf(f, args...)
	l.RLock()
	tag := l.tag
	l.RUnlock()
	if len(tag) > 0 {
		msg = tag + " " + msg
	}
	return msg
}

// emit logs msg at lvl annotated with the source of the frame at depth at,
// and pushes msg into the ring buffer.
func (l *simpleLogger) emit(at int, lvl logrus.Level, msg string) {
	e := logrus.NewEntry(l.l)
	if _, file, line, ok := runtime.Caller(at); ok {
		e = e.WithField("src", filepath.Base(file)+":"+strconv.Itoa(line))
	}
	e.Log(lvl, msg)
	l.q.Push(msg)
}
