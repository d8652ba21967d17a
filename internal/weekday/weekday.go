package weekday

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Weekday is a Monday-first day index (Monday=0 .. Sunday=6).
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

// Labels are the accepted weekday identifiers, indexed by Weekday.
var Labels = [7]string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

func (w Weekday) String() string {
	if w < Monday || w > Sunday {
		return "weekday(" + strconv.Itoa(int(w)) + ")"
	}
	return Labels[w]
}

// Valid reports whether w is in Monday..Sunday.
func (w Weekday) Valid() bool { return w >= Monday && w <= Sunday }

// Of returns the Monday-first weekday of t.
func Of(t time.Time) Weekday {
	return Weekday((int(t.Weekday()) + 6) % 7)
}

// ParseWeekday accepts the short labels ("mon") and full English names
// ("Monday"), case-insensitive.
func ParseWeekday(s string) (Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 3 {
		return 0, false
	}
	for i, l := range Labels {
		if s == l {
			return Weekday(i), true
		}
		if strings.HasPrefix(s, l) && s == strings.ToLower(time.Weekday((i+1)%7).String()) {
			return Weekday(i), true
		}
	}
	return 0, false
}

// Ordinal is a signed position of a weekday within a month.
// Positive values count from the start, negative from the end.
type Ordinal int

// MaxOrdinal is the largest magnitude an ordinal may have.
const MaxOrdinal = 5

// OrdinalOptions lists the accepted textual ordinals, in display order.
var OrdinalOptions = []string{"-5", "-4", "-3", "-2", "-1", "1", "2", "3", "4", "5"}

// Valid reports whether o is within ±MaxOrdinal and not zero.
func (o Ordinal) Valid() bool {
	return o != 0 && o >= -MaxOrdinal && o <= MaxOrdinal
}

func (o Ordinal) String() string { return strconv.Itoa(int(o)) }

// ParseOrdinal parses a decimal ordinal such as "2" or "-1".
func ParseOrdinal(s string) (Ordinal, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("ordinal %q: %w", s, err)
	}
	o := Ordinal(n)
	if !o.Valid() {
		return 0, fmt.Errorf("ordinal %q: must be within -%d..-1 or 1..%d", s, MaxOrdinal, MaxOrdinal)
	}
	return o, nil
}

// Describe renders an ordinal/weekday pair in English, e.g. "last sat",
// "2nd tue", "3rd from last fri".
func Describe(o Ordinal, w string) string {
	switch {
	case o == -1:
		return "last " + w
	case o < 0:
		return suffix(int(-o)) + " from last " + w
	default:
		return suffix(int(o)) + " " + w
	}
}

func suffix(n int) string {
	switch n {
	case 1:
		return "1st"
	case 2:
		return "2nd"
	case 3:
		return "3rd"
	default:
		return strconv.Itoa(n) + "th"
	}
}
