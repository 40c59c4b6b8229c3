// Copyright 2017 The go-ethereum Authors
// Copyright 2024 The rgeth Authors
// This file is part of the rgeth library.
//
// The rgeth library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package log implements the structured, leveled logging used across the sync driver,
// storage engine and peer table. It mirrors go-ethereum's log package: a Logger carries a
// bound set of key/value context pairs, and every call site passes alternating key/value
// pairs rather than building format strings.
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
		return "?"
	}
}

var levelColor = map[Lvl]color.Attribute{
	LvlCrit:  color.FgMagenta,
	LvlError: color.FgRed,
	LvlWarn:  color.FgYellow,
	LvlInfo:  color.FgGreen,
	LvlDebug: color.FgCyan,
	LvlTrace: color.FgBlue,
}

// Record is a single log event.
type Record struct {
	Time time.Time
	Lvl  Lvl
	Msg  string
	Ctx  []interface{}
	Call stack.Call
}

// Logger writes leveled, structured log records, carrying a fixed set of context pairs that
// are appended to every record it emits.
type Logger interface {
	New(ctx ...interface{}) Logger
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})
}

type logger struct {
	ctx []interface{}
	h   *writeHandler
}

func (l *logger) New(ctx ...interface{}) Logger {
	normalized := normalize(ctx)
	merged := make([]interface{}, 0, len(l.ctx)+len(normalized))
	merged = append(merged, l.ctx...)
	merged = append(merged, normalized...)
	return &logger{ctx: merged, h: l.h}
}

func (l *logger) write(lvl Lvl, msg string, ctx []interface{}) {
	if lvl > l.h.level() {
		return
	}
	r := Record{Time: time.Now(), Lvl: lvl, Msg: msg}
	r.Ctx = make([]interface{}, 0, len(l.ctx)+len(ctx))
	r.Ctx = append(r.Ctx, l.ctx...)
	r.Ctx = append(r.Ctx, normalize(ctx)...)
	if l.h.callsite {
		r.Call = stack.Caller(2)
	}
	l.h.emit(r)
}

func (l *logger) Trace(msg string, ctx ...interface{}) { l.write(LvlTrace, msg, ctx) }
func (l *logger) Debug(msg string, ctx ...interface{}) { l.write(LvlDebug, msg, ctx) }
func (l *logger) Info(msg string, ctx ...interface{})  { l.write(LvlInfo, msg, ctx) }
func (l *logger) Warn(msg string, ctx ...interface{})  { l.write(LvlWarn, msg, ctx) }
func (l *logger) Error(msg string, ctx ...interface{}) { l.write(LvlError, msg, ctx) }
func (l *logger) Crit(msg string, ctx ...interface{}) {
	l.write(LvlCrit, msg, ctx)
	os.Exit(1)
}

func normalize(ctx []interface{}) []interface{} {
	if len(ctx)%2 != 0 {
		ctx = append(ctx, nil, "LOG_ERROR: missing value for key")
		ctx[len(ctx)-2], ctx[len(ctx)-1] = ctx[len(ctx)-1], ctx[len(ctx)-2]
	}
	return ctx
}

type writeHandler struct {
	mu       sync.Mutex
	out      io.Writer
	lvl      Lvl
	color    bool
	callsite bool
}

func (h *writeHandler) level() Lvl {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lvl
}

func (h *writeHandler) setLevel(l Lvl) {
	h.mu.Lock()
	h.lvl = l
	h.mu.Unlock()
}

func (h *writeHandler) emit(r Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprint(h.out, format(r, h.color))
}

func format(r Record, useColor bool) string {
	ts := r.Time.Format("2006-01-02T15:04:05-0700")
	lvl := r.Lvl.String()
	if useColor {
		lvl = color.New(levelColor[r.Lvl]).Sprint(lvl)
	}
	line := fmt.Sprintf("%s[%s] %s", ts, lvl, r.Msg)
	for i := 0; i+1 < len(r.Ctx); i += 2 {
		line += fmt.Sprintf(" %v=%v", r.Ctx[i], formatValue(r.Ctx[i+1]))
	}
	return line + "\n"
}

func formatValue(v interface{}) interface{} {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return v
}

var root = &logger{h: defaultHandler()}

func defaultHandler() *writeHandler {
	useColor := isatty.IsTerminal(os.Stderr.Fd())
	var out io.Writer = os.Stderr
	if useColor {
		// colorable.NewColorableStderr strips or translates ANSI escapes as needed so colored
		// output still renders correctly in a Windows console, not just on ANSI terminals.
		out = colorable.NewColorableStderr()
	}
	return &writeHandler{out: out, lvl: LvlInfo, color: useColor, callsite: false}
}

// Root returns the root logger. New(...) on it, or the package-level helpers, are the normal
// way components obtain a Logger bound to their own context (e.g. "module", "snap").
func Root() Logger { return root }

// New creates a new logger with the given context, derived from the root logger.
func New(ctx ...interface{}) Logger { return root.New(ctx...) }

// SetLevel adjusts the minimum level emitted by the root handler; used by cmd/geth's
// --verbosity flag.
func SetLevel(l Lvl) { root.h.setLevel(l) }

func Trace(msg string, ctx ...interface{}) { root.write(LvlTrace, msg, ctx) }
func Debug(msg string, ctx ...interface{}) { root.write(LvlDebug, msg, ctx) }
func Info(msg string, ctx ...interface{})  { root.write(LvlInfo, msg, ctx) }
func Warn(msg string, ctx ...interface{})  { root.write(LvlWarn, msg, ctx) }
func Error(msg string, ctx ...interface{}) { root.write(LvlError, msg, ctx) }
func Crit(msg string, ctx ...interface{})  { root.write(LvlCrit, msg, ctx) }
