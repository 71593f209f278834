// Package feel holds the native value model shared by the decision engine and
// the wire codec, plus a parser for single FEEL-style literals.
package feel

import (
	"fmt"
	"time"
)

// Value is a sealed interface over the native value kinds.
// Only the types declared in this file implement it.
type Value interface {
	feelValue()
}

// Null is the absent value.
type Null struct{}

func (Null) feelValue() {}

// Bool is a boolean value.
type Bool bool

func (Bool) feelValue() {}

// Number is a decimal number. The engine has no integer/float distinction.
type Number float64

func (Number) feelValue() {}

// Integer is a whole number that was not promoted to Number.
// The wire decoder only produces it for a top-level scalar; the engine treats
// it as a Number.
type Integer int64

func (Integer) feelValue() {}

// Text is a string value.
type Text string

func (Text) feelValue() {}

// Date is a calendar date without a time of day.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func (Date) feelValue() {}

// NewDate creates a Date.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// ISO formats the date as YYYY-MM-DD.
func (d Date) ISO() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Time is a time of day, optionally carrying a UTC offset.
type Time struct {
	Hour        int
	Minute      int
	Second      int
	Microsecond int

	// Zoned is false for a local (naive) time; Offset is then ignored.
	Zoned  bool
	Offset int // seconds east of UTC
}

func (Time) feelValue() {}

// NewTime creates a naive Time.
func NewTime(hour, minute, second, microsecond int) Time {
	return Time{Hour: hour, Minute: minute, Second: second, Microsecond: microsecond}
}

// ISO formats the time the way ISO-8601 writers usually do: HH:MM:SS, a
// six digit fraction only when there are microseconds, then the offset.
func (t Time) ISO() string {
	s := fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
	if t.Microsecond != 0 {
		s += fmt.Sprintf(".%06d", t.Microsecond)
	}
	if t.Zoned {
		off := t.Offset
		sign := '+'
		if off < 0 {
			sign = '-'
			off = -off
		}
		s += fmt.Sprintf("%c%02d:%02d", sign, off/3600, (off%3600)/60)
	}
	return s
}

// DateTime is a date combined with a time of day.
type DateTime struct {
	Date Date
	Time Time
}

func (DateTime) feelValue() {}

// ISO formats the value as <date>T<time>.
func (dt DateTime) ISO() string {
	return dt.Date.ISO() + "T" + dt.Time.ISO()
}

// GoTime converts the value to a time.Time. Naive values are taken as UTC.
func (dt DateTime) GoTime() time.Time {
	loc := time.UTC
	if dt.Time.Zoned && dt.Time.Offset != 0 {
		loc = time.FixedZone("", dt.Time.Offset)
	}
	return time.Date(dt.Date.Year, dt.Date.Month, dt.Date.Day,
		dt.Time.Hour, dt.Time.Minute, dt.Time.Second, dt.Time.Microsecond*1000, loc)
}

// DateTimeOf converts a time.Time into a zoned DateTime.
func DateTimeOf(t time.Time) DateTime {
	_, offset := t.Zone()
	return DateTime{
		Date: NewDate(t.Year(), t.Month(), t.Day()),
		Time: Time{
			Hour:        t.Hour(),
			Minute:      t.Minute(),
			Second:      t.Second(),
			Microsecond: t.Nanosecond() / 1000,
			Zoned:       true,
			Offset:      offset,
		},
	}
}

// DayTimeDuration is a duration measured in seconds.
type DayTimeDuration float64

func (DayTimeDuration) feelValue() {}

// Duration converts the value to a time.Duration.
func (d DayTimeDuration) Duration() time.Duration {
	return time.Duration(float64(d) * float64(time.Second))
}

// YearMonthDuration is a duration measured in whole months.
type YearMonthDuration int64

func (YearMonthDuration) feelValue() {}

// Interval is a range between two values. LowEnd is one of '[' '(' ']' and
// HighEnd one of ']' ')' '['.
type Interval struct {
	LowEnd  byte
	Low     Value
	High    Value
	HighEnd byte
}

func (Interval) feelValue() {}

// LowClosed reports whether the low end includes its endpoint.
func (iv Interval) LowClosed() bool { return iv.LowEnd == '[' }

// HighClosed reports whether the high end includes its endpoint.
func (iv Interval) HighClosed() bool { return iv.HighEnd == ']' }

// List is an ordered sequence of values.
type List []Value

func (List) feelValue() {}

// Map is a string keyed collection of values.
type Map map[string]Value

func (Map) feelValue() {}

// Of converts a plain Go value into a Value. It is meant for engine output and
// tests; wire input goes through the codec package.
func Of(v any) Value {
	switch val := v.(type) {
	case nil:
		return Null{}
	case Value:
		return val
	case bool:
		return Bool(val)
	case int:
		return Number(val)
	case int64:
		return Number(val)
	case float64:
		return Number(val)
	case string:
		return Text(val)
	case time.Time:
		return DateTimeOf(val)
	case time.Duration:
		return DayTimeDuration(val.Seconds())
	case []any:
		out := make(List, len(val))
		for i, elem := range val {
			out[i] = Of(elem)
		}
		return out
	case map[string]any:
		out := make(Map, len(val))
		for k, elem := range val {
			out[k] = Of(elem)
		}
		return out
	default:
		return Text(fmt.Sprint(v))
	}
}
