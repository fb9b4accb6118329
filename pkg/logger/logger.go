// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package logger configures the process-wide slog logger.
//
// Records emitted from outside this module (mcp-go, otel, database drivers)
// are only shown when the level is DEBUG.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"
)

const modulePrefix = "github.com/Nitish-Garikoti/databahn"

// Output formats accepted by Init.
const (
	FormatSimple  = "simple"
	FormatVerbose = "verbose"
)

var (
	mu            sync.Mutex
	defaultLogger *slog.Logger
)

// ParseLevel converts a string log level to slog.Level.
// Valid levels: debug, info, warn, error. Unknown values map to info.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, nil
	}
}

// Init installs the default logger.
//
// format: "simple" (level + message + attrs), "verbose" (time prefix added),
// anything else falls back to the plain slog.TextHandler layout.
func Init(level slog.Level, output io.Writer, format string) {
	if format == "" {
		format = FormatSimple
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey && a.Value.String() == "WARNING" {
				return slog.String(slog.LevelKey, "WARN")
			}
			return a
		},
	}

	var handler slog.Handler = slog.NewTextHandler(output, opts)
	if format == FormatSimple || format == FormatVerbose {
		handler = &lineHandler{
			base:    handler,
			out:     output,
			color:   isTerminal(output),
			verbose: format == FormatVerbose,
			mu:      &sync.Mutex{},
		}
	}

	l := slog.New(&moduleFilter{handler: handler, minLevel: level})

	mu.Lock()
	defaultLogger = l
	mu.Unlock()
	slog.SetDefault(l)
}

// OpenLogFile opens or creates a log file for appending.
func OpenLogFile(path string) (*os.File, func(), error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return file, func() { _ = file.Close() }, nil
}

// GetLogger returns the default logger, initializing it at INFO if needed.
func GetLogger() *slog.Logger {
	mu.Lock()
	l := defaultLogger
	mu.Unlock()
	if l == nil {
		Init(slog.LevelInfo, os.Stderr, FormatSimple)
		return GetLogger()
	}
	return l
}

// moduleFilter drops third-party records unless running at DEBUG.
type moduleFilter struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *moduleFilter) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel && h.handler.Enabled(ctx, level)
}

func (h *moduleFilter) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug || fromModule(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *moduleFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &moduleFilter{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *moduleFilter) WithGroup(name string) slog.Handler {
	return &moduleFilter{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func fromModule(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	file, _ := fn.FileLine(pc)
	return strings.Contains(fn.Name(), modulePrefix) || strings.Contains(file, "databahn/")
}

// lineHandler renders one compact line per record, colored on terminals.
type lineHandler struct {
	base    slog.Handler
	out     io.Writer
	color   bool
	verbose bool
	attrs   []slog.Attr
	mu      *sync.Mutex
}

func (h *lineHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *lineHandler) Handle(_ context.Context, record slog.Record) error {
	var buf strings.Builder

	if h.verbose && !record.Time.IsZero() {
		buf.WriteString(record.Time.Format("2006/01/02 15:04:05 "))
	}

	level := strings.ToUpper(record.Level.String())
	if level == "WARNING" {
		level = "WARN"
	}
	if h.color {
		buf.WriteString(levelColor(record.Level))
		buf.WriteString(level)
		buf.WriteString("\033[0m")
	} else {
		buf.WriteString(level)
	}
	buf.WriteString(" ")
	buf.WriteString(record.Message)

	write := func(a slog.Attr) bool {
		buf.WriteString(" ")
		buf.WriteString(a.Key)
		buf.WriteString("=")
		buf.WriteString(a.Value.String())
		return true
	}
	for _, a := range h.attrs {
		write(a)
	}
	record.Attrs(write)
	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, buf.String())
	return err
}

func (h *lineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.base = h.base.WithAttrs(attrs)
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

func (h *lineHandler) WithGroup(name string) slog.Handler {
	next := *h
	next.base = h.base.WithGroup(name)
	return &next
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "\033[31m"
	case level >= slog.LevelWarn:
		return "\033[33m"
	case level >= slog.LevelInfo:
		return "\033[36m"
	default:
		return "\033[90m"
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
