// Copyright 2017 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package log

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// errVmoduleSyntax is returned when a user vmodule pattern is invalid.
var errVmoduleSyntax = errors.New("expect comma-separated list of filename=N")

// GlogHandler is a log handler that mimics the filtering features of Google's
// glog logger: setting global log levels; overriding with callsite pattern
// matches.
// GlogHandler 模仿 glog 的过滤功能：全局级别加上按调用位置覆盖的级别。
type GlogHandler struct {
	origin slog.Handler

	level    atomic.Int32 // Current log level
	override atomic.Bool  // Whether vmodule patterns are in use

	lock      sync.RWMutex
	patterns  []pattern
	siteCache map[uintptr]slog.Level
}

type pattern struct {
	pattern *regexp.Regexp
	level   slog.Level
}

// NewGlogHandler creates a new log handler with filtering functionality similar
// to Google's glog logger. The returned handler implements Handler.
func NewGlogHandler(h slog.Handler) *GlogHandler {
	return &GlogHandler{origin: h}
}

// Verbosity sets the glog verbosity ceiling. The verbosity of individual packages
// and source files can be raised using Vmodule.
func (h *GlogHandler) Verbosity(level slog.Level) {
	h.level.Store(int32(level))
}

// Vmodule sets the glog verbosity pattern.
//
// The syntax of the argument is a comma-separated list of pattern=N, where the
// pattern is a literal file name or "glob" pattern matching and N is a V level.
//
// For instance:
//
//	pattern="core/txpool/*=5"
//	 sets the V level to 5 in all Go files in any core/txpool directory.
//	pattern="service.go=4"
//	 sets the V level to 4 in every service.go.
//
// Vmodule 设置按文件或目录覆盖的日志级别。
func (h *GlogHandler) Vmodule(ruleset string) error {
	var filter []pattern
	for _, rule := range strings.Split(ruleset, ",") {
		if len(rule) == 0 {
			continue
		}
		name, lvl, ok := strings.Cut(rule, "=")
		name, lvl = strings.TrimSpace(name), strings.TrimSpace(lvl)
		if !ok || name == "" || lvl == "" {
			return errVmoduleSyntax
		}
		l, err := strconv.Atoi(lvl)
		if err != nil {
			return errVmoduleSyntax
		}
		level := FromLegacyLevel(l)
		if level == LevelCrit {
			continue // no point paying the lookup cost
		}
		// Compile the rule pattern into a regular expression
		matcher := ".*"
		for _, comp := range strings.Split(name, "/") {
			if comp == "*" {
				matcher += "(/.*)?"
			} else if comp != "" {
				matcher += "/" + regexp.QuoteMeta(comp)
			}
		}
		if !strings.HasSuffix(name, ".go") {
			matcher += "/[^/]+\\.go"
		}
		re, err := regexp.Compile(matcher + "$")
		if err != nil {
			return errVmoduleSyntax
		}
		filter = append(filter, pattern{re, level})
	}
	h.lock.Lock()
	defer h.lock.Unlock()

	h.patterns = filter
	h.siteCache = make(map[uintptr]slog.Level)
	h.override.Store(len(filter) != 0)
	return nil
}

func (h *GlogHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	// Patterns are resolved lazily in Handle, so let everything through when
	// any override is active.
	return h.override.Load() || slog.Level(h.level.Load()) <= lvl
}

func (h *GlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h.lock.RLock()
	siteCache := maps.Clone(h.siteCache)
	patterns := append([]pattern(nil), h.patterns...)
	h.lock.RUnlock()

	res := &GlogHandler{
		origin:    h.origin.WithAttrs(attrs),
		patterns:  patterns,
		siteCache: siteCache,
	}
	res.level.Store(h.level.Load())
	res.override.Store(h.override.Load())
	return res
}

func (h *GlogHandler) WithGroup(name string) slog.Handler {
	panic("not implemented")
}

// Handle implements slog.Handler, filtering a log record through the global,
// local and backtrace filters, finally emitting it if either allow it through.
func (h *GlogHandler) Handle(_ context.Context, r slog.Record) error {
	if slog.Level(h.level.Load()) <= r.Level {
		return h.origin.Handle(context.Background(), r)
	}
	h.lock.RLock()
	lvl, ok := h.siteCache[r.PC]
	h.lock.RUnlock()

	if !ok {
		h.lock.Lock()
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		for _, rule := range h.patterns {
			if rule.pattern.MatchString("+" + frame.File) {
				lvl, ok = rule.level, true
			}
		}
		// No matching pattern: cache the global level so the site is not
		// evaluated again.
		if !ok {
			lvl = slog.Level(h.level.Load())
		}
		if h.siteCache != nil {
			h.siteCache[r.PC] = lvl
		}
		h.lock.Unlock()
	}
	if lvl <= r.Level {
		return h.origin.Handle(context.Background(), r)
	}
	return nil
}
