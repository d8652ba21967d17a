package logx

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// Field mutates a zerolog event. Fields are applied in order; later fields
// with the same key win.
type Field func(e *zerolog.Event)

func String(k, v string) Field                 { return func(e *zerolog.Event) { e.Str(k, v) } }
func Strs(k string, v []string) Field          { return func(e *zerolog.Event) { e.Strs(k, v) } }
func Int(k string, v int) Field                { return func(e *zerolog.Event) { e.Int(k, v) } }
func Int64(k string, v int64) Field            { return func(e *zerolog.Event) { e.Int64(k, v) } }
func Uint64(k string, v uint64) Field          { return func(e *zerolog.Event) { e.Uint64(k, v) } }
func Bool(k string, v bool) Field              { return func(e *zerolog.Event) { e.Bool(k, v) } }
func Duration(k string, v time.Duration) Field { return func(e *zerolog.Event) { e.Dur(k, v) } }
func Time(k string, v time.Time) Field         { return func(e *zerolog.Event) { e.Time(k, v) } }

// Date logs only the calendar day of t, in t's location.
func Date(k string, t time.Time) Field {
	return func(e *zerolog.Event) { e.Str(k, t.Format(time.DateOnly)) }
}

func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Panic records a recovered value under "panic".
func Panic(r any) Field {
	return func(e *zerolog.Event) { e.Str("panic", fmt.Sprint(r)) }
}

// Stack records the current goroutine stack. Call it from the deferred
// recover so the trace points at the panic site.
func Stack() Field {
	st := string(debug.Stack())
	return func(e *zerolog.Event) { e.Str("stack", st) }
}
