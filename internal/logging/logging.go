// Package logging constructs the slog loggers used across winpack. The CLI
// handler favors short, scannable lines on stderr; the JSON handler exists
// for log collection setups.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
)

// NewCLI returns a logger that writes terse human-readable records.
// A nil level defaults to slog.LevelInfo.
func NewCLI(w io.Writer, level slog.Leveler) *slog.Logger {
	if w == nil {
		panic("logging: writer must not be nil")
	}
	return slog.New(&textHandler{out: w, level: level, lock: &sync.Mutex{}})
}

// NewJSON returns a logger that writes structured JSON records.
func NewJSON(w io.Writer, level slog.Leveler) *slog.Logger {
	if w == nil {
		panic("logging: writer must not be nil")
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// Ensure returns the provided logger, or the process default when nil.
func Ensure(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

// textHandler renders records as "HH:MM:SS LEVEL message key=value ...".
// Preformatted attrs from WithAttrs are carried as a ready-made suffix so
// Handle only appends the record's own attrs.
type textHandler struct {
	out    io.Writer
	level  slog.Leveler
	prefix string // group path, dot-joined
	attrs  string // preformatted " key=value" pairs
	lock   *sync.Mutex
}

func (h *textHandler) Enabled(_ context.Context, level slog.Level) bool {
	minimum := slog.LevelInfo
	if h.level != nil {
		minimum = h.level.Level()
	}
	return level >= minimum
}

func (h *textHandler) Handle(_ context.Context, record slog.Record) error {
	var line strings.Builder
	if !record.Time.IsZero() {
		line.WriteString(record.Time.Format("15:04:05"))
		line.WriteByte(' ')
	}
	line.WriteString(record.Level.String())
	line.WriteByte(' ')
	line.WriteString(record.Message)
	line.WriteString(h.attrs)

	record.Attrs(func(attr slog.Attr) bool {
		writeAttr(&line, h.prefix, attr)
		return true
	})
	line.WriteByte('\n')

	h.lock.Lock()
	defer h.lock.Unlock()
	_, err := io.WriteString(h.out, line.String())
	return err
}

func (h *textHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var formatted strings.Builder
	formatted.WriteString(h.attrs)
	for _, attr := range attrs {
		writeAttr(&formatted, h.prefix, attr)
	}
	return &textHandler{
		out:    h.out,
		level:  h.level,
		prefix: h.prefix,
		attrs:  formatted.String(),
		lock:   h.lock,
	}
}

func (h *textHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	prefix := name
	if h.prefix != "" {
		prefix = h.prefix + "." + name
	}
	return &textHandler{
		out:    h.out,
		level:  h.level,
		prefix: prefix,
		attrs:  h.attrs,
		lock:   h.lock,
	}
}

func writeAttr(b *strings.Builder, prefix string, attr slog.Attr) {
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindGroup {
		nested := prefix
		if attr.Key != "" {
			nested = attr.Key
			if prefix != "" {
				nested = prefix + "." + attr.Key
			}
		}
		for _, member := range value.Group() {
			writeAttr(b, nested, member)
		}
		return
	}
	if attr.Equal(slog.Attr{}) {
		return
	}

	b.WriteByte(' ')
	if prefix != "" {
		b.WriteString(prefix)
		b.WriteByte('.')
	}
	b.WriteString(attr.Key)
	b.WriteByte('=')
	b.WriteString(renderValue(value))
}

func renderValue(value slog.Value) string {
	var text string
	switch value.Kind() {
	case slog.KindString:
		text = value.String()
	case slog.KindAny:
		if err, ok := value.Any().(error); ok && err != nil {
			text = err.Error()
		} else {
			text = fmt.Sprint(value.Any())
		}
	default:
		text = value.String()
	}
	if strings.ContainsAny(text, " \t\"") || text == "" {
		return strconv.Quote(text)
	}
	return text
}
