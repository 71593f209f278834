// Package codec converts values between the engine's native model and the
// two wire formats accepted by the server: URL-encoded form fields and JSON
// bodies. Temporal values and intervals travel as escaped literal tokens of
// the form @"...".
package codec

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/liamcoop/decisioncentral/feel"
)

const (
	escapePrefix = `@"`
	escapeSuffix = `"`
)

// IsEscaped reports whether s has the escaped-literal shape @"...".
func IsEscaped(s string) bool {
	return len(s) >= len(escapePrefix)+len(escapeSuffix) &&
		strings.HasPrefix(s, escapePrefix) &&
		strings.HasSuffix(s, escapeSuffix)
}

// DecodeLiteral parses an escaped literal token. Tokens that are not escaped,
// or whose contents do not parse, come back unchanged as Text.
func DecodeLiteral(token string) feel.Value {
	if !IsEscaped(token) {
		return feel.Text(token)
	}
	v, err := feel.Parse(token[len(escapePrefix) : len(token)-len(escapeSuffix)])
	if err != nil {
		return feel.Text(token)
	}
	return v
}

// EncodeLiteral converts one leaf value to its wire form. Temporal values and
// intervals become escaped tokens, Bool and Null become the plain strings
// "true", "false" and "null", and numbers and text pass through. JSON has no
// form for NaN or the infinities, so those numbers become the strings
// "NaN", "Infinity" and "-Infinity".
func EncodeLiteral(v feel.Value) any {
	switch val := v.(type) {
	case nil, feel.Null:
		return "null"
	case feel.Bool:
		if val {
			return "true"
		}
		return "false"
	case feel.Number:
		if s, ok := nonFinite(float64(val)); ok {
			return s
		}
		return float64(val)
	case feel.Integer:
		return int64(val)
	case feel.Text:
		return string(val)
	case feel.Date, feel.Time, feel.DateTime, feel.DayTimeDuration, feel.YearMonthDuration:
		return escape(bare(val))
	case feel.Interval:
		return escape(interval(val))
	case feel.List, feel.Map:
		return Encode(val)
	default:
		return fmt.Sprint(val)
	}
}

func nonFinite(f float64) (string, bool) {
	switch {
	case math.IsNaN(f):
		return "NaN", true
	case math.IsInf(f, 1):
		return "Infinity", true
	case math.IsInf(f, -1):
		return "-Infinity", true
	}
	return "", false
}

func escape(s string) string {
	return escapePrefix + s + escapeSuffix
}

// bare renders a value the way it appears inside an escaped token.
func bare(v feel.Value) string {
	switch val := v.(type) {
	case nil, feel.Null:
		return "null"
	case feel.Bool:
		return strconv.FormatBool(bool(val))
	case feel.Number:
		if s, ok := nonFinite(float64(val)); ok {
			return s
		}
		return strconv.FormatFloat(float64(val), 'f', -1, 64)
	case feel.Integer:
		return strconv.FormatInt(int64(val), 10)
	case feel.Text:
		return strconv.Quote(string(val))
	case feel.Date:
		return val.ISO()
	case feel.Time:
		return val.ISO()
	case feel.DateTime:
		return val.ISO()
	case feel.DayTimeDuration:
		return dayTime(float64(val))
	case feel.YearMonthDuration:
		return yearMonth(int64(val))
	case feel.Interval:
		return interval(val)
	default:
		return fmt.Sprint(val)
	}
}

func interval(iv feel.Interval) string {
	return string(iv.LowEnd) + bare(iv.Low) + " .. " + bare(iv.High) + string(iv.HighEnd)
}

func dayTime(seconds float64) string {
	sign := ""
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	days := math.Floor(seconds / 86400)
	rest := seconds - days*86400
	hours := math.Floor(rest / 3600)
	rest -= hours * 3600
	minutes := math.Floor(rest / 60)
	secs := math.Mod(seconds, 60)
	return fmt.Sprintf("%sP%dDT%dH%dM%.6fS", sign, int64(days), int64(hours), int64(minutes), secs)
}

func yearMonth(months int64) string {
	sign := ""
	if months < 0 {
		sign = "-"
		months = -months
	}
	return fmt.Sprintf("%sP%dY%dM", sign, months/12, months%12)
}
