// Copyright 2024 The Mudcore Authors
// This file is part of Mudcore.
//
// Mudcore is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Mudcore is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Mudcore. If not, see <http://www.gnu.org/licenses/>.

// Package log provides leveled, key-value structured logging for the driver
// backend loop, matching the call convention log.Info("msg", "k1", v1, ...).
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Lvl is a logging level.
type Lvl int

const (
	LvlCrit Lvl = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

func (l Lvl) String() string {
	switch l {
	case LvlCrit:
		return "CRIT"
	case LvlError:
		return "ERRO"
	case LvlWarn:
		return "WARN"
	case LvlInfo:
		return "INFO"
	case LvlDebug:
		return "DBUG"
	case LvlTrace:
		return "TRCE"
	default:
		return "????"
	}
}

var levelColor = map[Lvl]*color.Color{
	LvlCrit:  color.New(color.FgMagenta, color.Bold),
	LvlError: color.New(color.FgRed),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
	LvlTrace: color.New(color.FgWhite),
}

// Logger emits leveled records with key-value context.
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	color  bool
	lvl    Lvl
	ctx    []interface{}
}

var root = New()

// New returns a standalone logger writing to stderr, colorized when the
// file descriptor is a terminal.
func New() *Logger {
	w := colorable.NewColorableStderr()
	return &Logger{
		out:   w,
		color: isatty.IsTerminal(os.Stderr.Fd()),
		lvl:   LvlInfo,
	}
}

// SetLevel adjusts the minimum level the root logger emits.
func SetLevel(l Lvl) { root.SetLevel(l) }

func (lg *Logger) SetLevel(l Lvl) {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	lg.lvl = l
}

// With returns a child logger carrying additional persistent key-value
// context, in the style of log15's Logger.New.
func With(ctx ...interface{}) *Logger { return root.With(ctx...) }

func (lg *Logger) With(ctx ...interface{}) *Logger {
	child := &Logger{out: lg.out, color: lg.color, lvl: lg.lvl}
	child.ctx = append(append([]interface{}{}, lg.ctx...), ctx...)
	return child
}

func (lg *Logger) write(lvl Lvl, msg string, ctx []interface{}) {
	if lvl > lg.lvl {
		return
	}
	lg.mu.Lock()
	defer lg.mu.Unlock()

	ts := time.Now().Format("2006-01-02T15:04:05-0700")
	levelStr := lvl.String()
	if lg.color {
		if c, ok := levelColor[lvl]; ok {
			levelStr = c.Sprint(levelStr)
		}
	}
	fmt.Fprintf(lg.out, "%s [%s] %s", ts, levelStr, msg)

	all := append(append([]interface{}{}, lg.ctx...), ctx...)
	for i := 0; i+1 < len(all); i += 2 {
		fmt.Fprintf(lg.out, " %v=%v", all[i], all[i+1])
	}
	if len(all)%2 == 1 {
		fmt.Fprintf(lg.out, " %v=MISSING", all[len(all)-1])
	}
	fmt.Fprintln(lg.out)

	if lvl == LvlCrit {
		fmt.Fprintf(lg.out, "    at %v\n", stack.Caller(2))
	}
}

func (lg *Logger) Trace(msg string, ctx ...interface{}) { lg.write(LvlTrace, msg, ctx) }
func (lg *Logger) Debug(msg string, ctx ...interface{}) { lg.write(LvlDebug, msg, ctx) }
func (lg *Logger) Info(msg string, ctx ...interface{})  { lg.write(LvlInfo, msg, ctx) }
func (lg *Logger) Warn(msg string, ctx ...interface{})  { lg.write(LvlWarn, msg, ctx) }
func (lg *Logger) Error(msg string, ctx ...interface{}) { lg.write(LvlError, msg, ctx) }
func (lg *Logger) Crit(msg string, ctx ...interface{})  { lg.write(LvlCrit, msg, ctx) }

func Trace(msg string, ctx ...interface{}) { root.Trace(msg, ctx...) }
func Debug(msg string, ctx ...interface{}) { root.Debug(msg, ctx...) }
func Info(msg string, ctx ...interface{})  { root.Info(msg, ctx...) }
func Warn(msg string, ctx ...interface{})  { root.Warn(msg, ctx...) }
func Error(msg string, ctx ...interface{}) { root.Error(msg, ctx...) }
func Crit(msg string, ctx ...interface{})  { root.Crit(msg, ctx...) }
