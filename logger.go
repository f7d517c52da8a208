package lifecycle

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
)

// Logger is the logging contract shared by every subpackage. Messages
// are printf-style; structured correlation fields attach through
// WithLoggerFields, not through the argument list.
type Logger interface {
	Trace(msg string, args ...any)
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Fatal(msg string, args ...any)
	WithContext(ctx context.Context) Logger
}

// FieldsLogger extends Logger with structured-field support.
type FieldsLogger interface {
	WithFields(map[string]any) Logger
}

type level uint8

const (
	levelTrace level = iota
	levelDebug
	levelInfo
	levelWarn
	levelError
	levelFatal
)

var levelNames = [...]string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

// FmtLogger is the fallback logger used when none is configured. Each
// call writes one line: timestamp, level, message, then the attached
// fields sorted by key.
type FmtLogger struct {
	out    io.Writer
	ctx    context.Context
	fields map[string]any
}

// NewFmtLogger constructs a fallback logger writing to stdout when out
// is nil.
func NewFmtLogger(out io.Writer) *FmtLogger {
	if out == nil {
		out = os.Stdout
	}
	return &FmtLogger{out: out, ctx: context.Background()}
}

func (l *FmtLogger) Trace(msg string, args ...any) { l.emit(levelTrace, msg, args) }
func (l *FmtLogger) Debug(msg string, args ...any) { l.emit(levelDebug, msg, args) }
func (l *FmtLogger) Info(msg string, args ...any)  { l.emit(levelInfo, msg, args) }
func (l *FmtLogger) Warn(msg string, args ...any)  { l.emit(levelWarn, msg, args) }
func (l *FmtLogger) Error(msg string, args ...any) { l.emit(levelError, msg, args) }
func (l *FmtLogger) Fatal(msg string, args ...any) { l.emit(levelFatal, msg, args) }

func (l *FmtLogger) WithContext(ctx context.Context) Logger {
	cp := l.clone()
	if ctx != nil {
		cp.ctx = ctx
	}
	return cp
}

// WithFields returns a copy carrying the merged field set; later keys
// override earlier ones.
func (l *FmtLogger) WithFields(fields map[string]any) Logger {
	cp := l.clone()
	if len(fields) > 0 {
		if cp.fields == nil {
			cp.fields = make(map[string]any, len(fields))
		}
		for k, v := range fields {
			cp.fields[k] = v
		}
	}
	return cp
}

func (l *FmtLogger) clone() *FmtLogger {
	if l == nil {
		return NewFmtLogger(nil)
	}
	cp := &FmtLogger{out: l.out, ctx: l.ctx}
	if len(l.fields) > 0 {
		cp.fields = make(map[string]any, len(l.fields))
		for k, v := range l.fields {
			cp.fields[k] = v
		}
	}
	return cp
}

func (l *FmtLogger) emit(lvl level, msg string, args []any) {
	if l == nil {
		l = NewFmtLogger(nil)
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}

	var b strings.Builder
	b.WriteString(time.Now().UTC().Format(time.RFC3339Nano))
	b.WriteByte(' ')
	b.WriteString(levelNames[lvl])
	b.WriteByte(' ')
	b.WriteString(strings.TrimSpace(msg))

	if len(l.fields) > 0 {
		keys := make([]string, 0, len(l.fields))
		for k := range l.fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, l.fields[k])
		}
	}
	fmt.Fprintln(l.out, b.String())
}

// NormalizeLogger returns logger, or the fmt fallback when nil.
func NormalizeLogger(logger Logger) Logger {
	if logger == nil {
		return NewFmtLogger(nil)
	}
	return logger
}

// WithLoggerFields attaches fields when the logger supports them.
// Loggers without field support get the fields dropped, not rendered
// into the message.
func WithLoggerFields(logger Logger, fields map[string]any) Logger {
	if logger == nil {
		return NewFmtLogger(nil)
	}
	if fl, ok := logger.(FieldsLogger); ok {
		return fl.WithFields(fields)
	}
	return logger
}
