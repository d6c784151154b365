// Copyright (c) 2025 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.
//
// This file incorporates work covered by the following copyright and
// permission notice:
//
//    MIT License
//
//    Copyright (c) 2018 eycorsican
//
//    Permission is hereby granted, free of charge, to any person obtaining a copy
//    of this software and associated documentation files (the "Software"), to deal
//    in the Software without restriction, including without limitation the rights
//    to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
//    copies of the Software, and to permit persons to whom the Software is
//    furnished to do so, subject to the following conditions:
//
//    The above copyright notice and this permission notice shall be included in all
//    copies or substantial portions of the Software.
//
//    THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
//    IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
//    FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
//    AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
//    LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
//    OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
//    SOFTWARE.

package log

import (
	"strings"
)

// based on: github.com/eycorsican/go-tun2socks/blob/301549c43/common/log/log.go#L5
var Glogger Logger

// caller -> log.I -> log.I2 -> simpleLogger.Infof -> simpleLogger.emit
var CallerDepth = 4

// caller -> LogFn -> log.I2 -> simpleLogger.Infof -> simpleLogger.emit
var LogFnCallerDepth = CallerDepth

type LogFn func(string, ...any)
type LogFn2 func(int, string, ...any)

func RegisterLogger(l Logger) bool {
	Glogger = l
	l.SetLevel(INFO)
	return true
}

func SetLevel(level LogLevel) {
	if Glogger != nil {
		Glogger.SetLevel(level)
	}
}

// SetTag prefixes all subsequent messages with tag; usually the
// interface name of the daemon instance.
func SetTag(tag string) {
	if Glogger != nil {
		Glogger.SetTag(tag)
	}
}

func Of(tag string, l LogFn2) LogFn {
	if l != nil {
		return func(msg string, args ...any) {
			l(LogFnCallerDepth, tag+" "+msg, args...)
		}
	}
	return N
}

func N(string, ...any)       {}
func N2(int, string, ...any) {}

func V(msg string, args ...any) {
	V2(CallerDepth, msg, args...)
}

func D(msg string, args ...any) {
	D2(CallerDepth, msg, args...)
}

func I(msg string, args ...any) {
	I2(CallerDepth, msg, args...)
}

func W(msg string, args ...any) {
	W2(CallerDepth, msg, args...)
}

func E(msg string, args ...any) {
	E2(CallerDepth, msg, args...)
}

// Wtf logs msg and exits the process.
func Wtf(msg string, args ...any) {
	if Glogger != nil {
		Glogger.Fatalf(CallerDepth-1, msg, args...)
	}
}

// T logs the stack trace of the current goroutine along with
// the most recent log lines.
func T(msg string) {
	if Glogger != nil {
		E2(CallerDepth, "----START----")
		Glogger.Stack(CallerDepth-1, msg)
		E2(CallerDepth, "----STOPP----")
	}
}

func V2(at int, msg string, args ...any) {
	if Glogger != nil {
		Glogger.Verbosef(at, msg, args...)
	}
}

func D2(at int, msg string, args ...any) {
	if Glogger != nil {
		Glogger.Debugf(at, msg, args...)
	}
}

func I2(at int, msg string, args ...any) {
	if Glogger != nil {
		Glogger.Infof(at, msg, args...)
	}
}

func W2(at int, msg string, args ...any) {
	if Glogger != nil {
		Glogger.Warnf(at, msg, args...)
	}
}

func E2(at int, msg string, args ...any) {
	if Glogger != nil {
		Glogger.Errorf(at, msg, args...)
	}
}

func LevelOf(level int) LogLevel {
	dlvl := WARN
	switch l := LogLevel(level); l {
	case VERBOSE:
		dlvl = VERBOSE
	case DEBUG:
		dlvl = DEBUG
	case INFO:
		dlvl = INFO
	case WARN:
		dlvl = WARN
	case ERROR:
		dlvl = ERROR
	case STACKTRACE:
		dlvl = STACKTRACE
	case NONE:
		dlvl = NONE
	default:
	}
	return dlvl
}

// ParseLevel maps names like "debug" or "warn" to a LogLevel;
// unknown names yield INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "verbose", "trace":
		return VERBOSE
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "none", "off":
		return NONE
	default:
		return INFO
	}
}
