package logx

import (
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

type Level = zerolog.Level

const (
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// callerSkip points runtime.Caller at the code calling Info/Warn/...
const callerSkip = 3

// Logger is a structured logger. A logger handed out by Service follows
// every Service.Apply; With derives a logger with fixed fields. The zero
// value discards everything.
type Logger struct {
	svc    *Service
	base   *zerolog.Logger
	fields []Field
}

// Nop returns a logger that never writes anything.
func Nop() Logger {
	zl := zerolog.Nop()
	return Logger{base: &zl}
}

// NewConsole creates a standalone console logger, used before the log
// service exists.
func NewConsole(level string) Logger {
	return standalone(newConsoleWriter(os.Stdout), level)
}

// NewWriter logs JSON lines to w.
func NewWriter(w io.Writer, level string) Logger {
	return standalone(w, level)
}

func standalone(w io.Writer, level string) Logger {
	setGlobals()
	zl := zerolog.New(w).Level(parseLevel(level, zerolog.InfoLevel)).With().Timestamp().Logger()
	return Logger{base: &zl}
}

func setGlobals() {
	zerolog.TimeFieldFormat = consoleTimeFormat
	zerolog.ErrorFieldName = "err"
}

func (l Logger) IsZero() bool { return l.svc == nil && l.base == nil && len(l.fields) == 0 }

func (l Logger) root() zerolog.Logger {
	switch {
	case l.svc != nil:
		return l.svc.current()
	case l.base != nil:
		return *l.base
	default:
		return zerolog.Nop()
	}
}

// Enabled reports whether level would be written. Use it to skip building
// expensive fields.
func (l Logger) Enabled(level Level) bool {
	zl := l.root()
	return level >= zl.GetLevel()
}

func (l Logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	cp := l
	cp.fields = make([]Field, 0, len(l.fields)+len(fields))
	cp.fields = append(append(cp.fields, l.fields...), fields...)
	return cp
}

func (l Logger) Debug(msg string, fields ...Field) { l.write(zerolog.DebugLevel, msg, fields) }
func (l Logger) Info(msg string, fields ...Field)  { l.write(zerolog.InfoLevel, msg, fields) }
func (l Logger) Warn(msg string, fields ...Field)  { l.write(zerolog.WarnLevel, msg, fields) }
func (l Logger) Error(msg string, fields ...Field) { l.write(zerolog.ErrorLevel, msg, fields) }

func (l Logger) write(level zerolog.Level, msg string, fields []Field) {
	zl := l.root()
	e := zl.WithLevel(level)
	if e == nil {
		return
	}
	if _, file, line, ok := runtime.Caller(callerSkip); ok {
		e.Str(zerolog.CallerFieldName, filepath.Base(file)+":"+strconv.Itoa(line))
	}
	apply(e, l.fields)
	apply(e, fields)
	e.Msg(msg)
}

func apply(e *zerolog.Event, fields []Field) {
	for _, f := range fields {
		if f != nil {
			f(e)
		}
	}
}

func newConsoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: consoleTimeFormat,
		FormatCaller: func(i any) string {
			s, _ := i.(string)
			return s
		},
	}
}

// parseLevel accepts zerolog level names plus "warning"; anything else
// yields def.
func parseLevel(s string, def zerolog.Level) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	if s == "" {
		return def
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel {
		return def
	}
	return lvl
}
