package feel

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ParseError reports why a literal could not be parsed.
type ParseError struct {
	Input string
	Pos   int
	Msg   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("feel: %s at offset %d in %q", e.Msg, e.Pos, e.Input)
}

var (
	numberRe   = regexp.MustCompile(`^-?(\d+(\.\d*)?|\.\d+)([eE][-+]?\d+)?$`)
	dateRe     = regexp.MustCompile(`^(-?\d{4,})-(\d{2})-(\d{2})$`)
	timeRe     = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2})(?:\.(\d{1,9}))?(Z|[+-]\d{2}:\d{2})?$`)
	durationRe = regexp.MustCompile(`^(-)?P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)
)

// Parse parses a single literal: null, booleans, numbers, strings, dates,
// times, date-times, durations, the date()/time()/date and time()/duration()
// function forms, nested @"..." tokens and intervals such as [1 .. 10).
func Parse(text string) (Value, error) {
	p := &parser{src: text}
	p.skipSpace()
	v, err := p.value(true)
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return nil, p.errorf("unexpected trailing input")
	}
	return v, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) skipSpace() {
	for !p.eof() && strings.IndexByte(" \t\r\n", p.src[p.pos]) >= 0 {
		p.pos++
	}
}

func (p *parser) errorf(format string, args ...any) *ParseError {
	return &ParseError{Input: p.src, Pos: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) hasPrefix(s string) bool {
	return strings.HasPrefix(p.src[p.pos:], s)
}

// keyword consumes word if it appears at the cursor and is not followed by an
// identifier character.
func (p *parser) keyword(word string) bool {
	if !p.hasPrefix(word) {
		return false
	}
	end := p.pos + len(word)
	if end < len(p.src) && isIdent(p.src[end]) {
		return false
	}
	p.pos = end
	return true
}

func isIdent(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func (p *parser) value(allowInterval bool) (Value, error) {
	if p.eof() {
		return nil, p.errorf("unexpected end of input")
	}
	switch c := p.peek(); {
	case c == '[' || c == '(' || c == ']':
		if !allowInterval {
			return nil, p.errorf("nested interval")
		}
		return p.interval()
	case c == '"':
		s, err := p.quoted()
		if err != nil {
			return nil, err
		}
		return Text(s), nil
	case c == '@':
		p.pos++
		if p.peek() != '"' {
			return nil, p.errorf(`expected '"' after '@'`)
		}
		inner, err := p.quoted()
		if err != nil {
			return nil, err
		}
		return Parse(inner)
	case p.keyword("null"):
		return Null{}, nil
	case p.keyword("true"):
		return Bool(true), nil
	case p.keyword("false"):
		return Bool(false), nil
	case p.hasPrefix("date and time("):
		return p.call("date and time(", func(v Value) bool {
			_, ok := v.(DateTime)
			return ok
		})
	case p.hasPrefix("date("):
		return p.call("date(", func(v Value) bool {
			_, ok := v.(Date)
			return ok
		})
	case p.hasPrefix("time("):
		return p.call("time(", func(v Value) bool {
			_, ok := v.(Time)
			return ok
		})
	case p.hasPrefix("duration("):
		return p.call("duration(", func(v Value) bool {
			switch v.(type) {
			case DayTimeDuration, YearMonthDuration:
				return true
			}
			return false
		})
	default:
		return p.bare()
	}
}

// call parses fn("...") where the argument is a bare ISO literal of the kind
// accepted by want.
func (p *parser) call(fn string, want func(Value) bool) (Value, error) {
	p.pos += len(fn)
	p.skipSpace()
	if p.peek() != '"' {
		return nil, p.errorf("expected string argument")
	}
	start := p.pos
	arg, err := p.quoted()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.peek() != ')' {
		return nil, p.errorf("expected ')'")
	}
	p.pos++
	v, msg := temporal(arg)
	if msg != "" {
		return nil, &ParseError{Input: p.src, Pos: start, Msg: msg}
	}
	if !want(v) {
		return nil, &ParseError{Input: p.src, Pos: start, Msg: fmt.Sprintf("wrong literal kind for %s)", fn)}
	}
	return v, nil
}

// quoted reads a double quoted string starting at the cursor.
func (p *parser) quoted() (string, error) {
	start := p.pos
	i := p.pos + 1
	for i < len(p.src) {
		switch p.src[i] {
		case '\\':
			i += 2
			continue
		case '"':
			s, err := strconv.Unquote(p.src[start : i+1])
			if err != nil {
				return "", &ParseError{Input: p.src, Pos: start, Msg: "invalid string escape"}
			}
			p.pos = i + 1
			return s, nil
		}
		i++
	}
	return "", &ParseError{Input: p.src, Pos: start, Msg: "unterminated string"}
}

// bare reads an unquoted token (number or ISO literal). Tokens end at
// whitespace, a delimiter, or the ".." range operator.
func (p *parser) bare() (Value, error) {
	start := p.pos
	for !p.eof() {
		c := p.src[p.pos]
		if strings.IndexByte(" \t\r\n,()[]", c) >= 0 {
			break
		}
		if c == '.' && p.pos+1 < len(p.src) && p.src[p.pos+1] == '.' {
			break
		}
		p.pos++
	}
	tok := p.src[start:p.pos]
	if tok == "" {
		return nil, p.errorf("unexpected character %q", p.peek())
	}
	if numberRe.MatchString(tok) {
		f, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, &ParseError{Input: p.src, Pos: start, Msg: "number out of range"}
		}
		return Number(f), nil
	}
	v, msg := temporal(tok)
	if msg != "" {
		return nil, &ParseError{Input: p.src, Pos: start, Msg: msg}
	}
	return v, nil
}

// interval parses [low .. high] style ranges. A '[' that is followed by a
// comma separated sequence instead of ".." is read as a list.
func (p *parser) interval() (Value, error) {
	lowEnd := p.src[p.pos]
	p.pos++
	p.skipSpace()
	if lowEnd == '[' && p.peek() == ']' {
		p.pos++
		return List{}, nil
	}
	low, err := p.value(false)
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.hasPrefix("..") {
		if lowEnd == '[' && (p.peek() == ',' || p.peek() == ']') {
			return p.listFrom(low)
		}
		return nil, p.errorf("expected '..'")
	}
	p.pos += 2
	p.skipSpace()
	high, err := p.value(false)
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	highEnd := p.peek()
	if highEnd != ']' && highEnd != ')' && highEnd != '[' {
		return nil, p.errorf("expected interval end")
	}
	p.pos++
	return Interval{LowEnd: lowEnd, Low: low, High: high, HighEnd: highEnd}, nil
}

func (p *parser) listFrom(first Value) (Value, error) {
	out := List{first}
	for {
		p.skipSpace()
		switch p.peek() {
		case ']':
			p.pos++
			return out, nil
		case ',':
			p.pos++
			p.skipSpace()
			v, err := p.value(true)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		default:
			return nil, p.errorf("expected ',' or ']'")
		}
	}
}

// temporal classifies a bare ISO token. It returns a non-empty message when
// the token is not a valid literal.
func temporal(s string) (Value, string) {
	if m := durationRe.FindStringSubmatch(s); m != nil {
		return duration(m)
	}
	if i := strings.IndexByte(s, 'T'); i > 0 {
		d, msg := date(s[:i])
		if msg != "" {
			return nil, msg
		}
		t, msg := clock(s[i+1:])
		if msg != "" {
			return nil, msg
		}
		return DateTime{Date: d, Time: t}, ""
	}
	if dateRe.MatchString(s) {
		d, msg := date(s)
		if msg != "" {
			return nil, msg
		}
		return d, ""
	}
	if timeRe.MatchString(s) {
		t, msg := clock(s)
		if msg != "" {
			return nil, msg
		}
		return t, ""
	}
	return nil, fmt.Sprintf("not a literal: %q", s)
}

func date(s string) (Date, string) {
	m := dateRe.FindStringSubmatch(s)
	if m == nil {
		return Date{}, fmt.Sprintf("invalid date %q", s)
	}
	y, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	d, _ := strconv.Atoi(m[3])
	check := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	if check.Year() != y || int(check.Month()) != mo || check.Day() != d {
		return Date{}, fmt.Sprintf("invalid date %q", s)
	}
	return NewDate(y, time.Month(mo), d), ""
}

func clock(s string) (Time, string) {
	m := timeRe.FindStringSubmatch(s)
	if m == nil {
		return Time{}, fmt.Sprintf("invalid time %q", s)
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	sec, _ := strconv.Atoi(m[3])
	if h > 23 || mi > 59 || sec > 59 {
		return Time{}, fmt.Sprintf("invalid time %q", s)
	}
	t := NewTime(h, mi, sec, 0)
	if frac := m[4]; frac != "" {
		frac = (frac + "000000")[:6]
		t.Microsecond, _ = strconv.Atoi(frac)
	}
	switch zone := m[5]; {
	case zone == "Z":
		t.Zoned = true
	case zone != "":
		zh, _ := strconv.Atoi(zone[1:3])
		zm, _ := strconv.Atoi(zone[4:6])
		t.Zoned = true
		t.Offset = zh*3600 + zm*60
		if zone[0] == '-' {
			t.Offset = -t.Offset
		}
	}
	return t, ""
}

func duration(m []string) (Value, string) {
	years, months, days, hours, mins, secs := m[2], m[3], m[4], m[5], m[6], m[7]
	yearMonth := years != "" || months != ""
	dayTime := days != "" || hours != "" || mins != "" || secs != ""
	switch {
	case !yearMonth && !dayTime:
		return nil, "empty duration"
	case yearMonth && dayTime:
		return nil, "duration mixes year-month and day-time parts"
	}
	neg := m[1] == "-"
	if yearMonth {
		y, _ := strconv.ParseInt(or0(years), 10, 64)
		mo, _ := strconv.ParseInt(or0(months), 10, 64)
		total := y*12 + mo
		if neg {
			total = -total
		}
		return YearMonthDuration(total), ""
	}
	d, _ := strconv.ParseFloat(or0(days), 64)
	h, _ := strconv.ParseFloat(or0(hours), 64)
	mi, _ := strconv.ParseFloat(or0(mins), 64)
	s, _ := strconv.ParseFloat(or0(secs), 64)
	total := d*86400 + h*3600 + mi*60 + s
	if neg {
		total = -total
	}
	return DayTimeDuration(total), ""
}

func or0(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
