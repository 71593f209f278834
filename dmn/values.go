package dmn

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/liamcoop/decisioncentral/feel"
)

var (
	listType = reflect.TypeOf([]any{})
	mapType  = reflect.TypeOf(map[string]any{})
)

// native converts a value into the Go form bound to CEL variables.
// Numbers become doubles, dates and date-times timestamps, day-time durations
// durations, year-month durations a month count, and times their ISO text.
func native(v feel.Value) any {
	switch val := v.(type) {
	case nil, feel.Null:
		return nil
	case feel.Bool:
		return bool(val)
	case feel.Number:
		return float64(val)
	case feel.Integer:
		return float64(val)
	case feel.Text:
		return string(val)
	case feel.Date:
		return time.Date(val.Year, val.Month, val.Day, 0, 0, 0, 0, time.UTC)
	case feel.DateTime:
		return val.GoTime()
	case feel.Time:
		return val.ISO()
	case feel.DayTimeDuration:
		return val.Duration()
	case feel.YearMonthDuration:
		return int64(val)
	case feel.Interval:
		return []any{string(val.LowEnd), native(val.Low), native(val.High), string(val.HighEnd)}
	case feel.List:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = native(elem)
		}
		return out
	case feel.Map:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = native(elem)
		}
		return out
	default:
		return fmt.Sprint(val)
	}
}

// nativeData converts the working data of a decision into the map bound to
// the CEL data variable.
func nativeData(data map[string]feel.Value) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = native(v)
	}
	return out
}

// fromCEL converts an evaluation result back into a value.
func fromCEL(v ref.Val) (feel.Value, error) {
	switch v.Type() {
	case types.NullType:
		return feel.Null{}, nil
	case types.BoolType:
		return feel.Bool(v.Value().(bool)), nil
	case types.IntType:
		return feel.Number(float64(v.Value().(int64))), nil
	case types.UintType:
		return feel.Number(float64(v.Value().(uint64))), nil
	case types.DoubleType:
		return feel.Number(v.Value().(float64)), nil
	case types.StringType:
		return feel.Text(v.Value().(string)), nil
	case types.TimestampType:
		return feel.DateTimeOf(v.Value().(time.Time)), nil
	case types.DurationType:
		return feel.DayTimeDuration(v.Value().(time.Duration).Seconds()), nil
	case types.ListType:
		list, err := v.ConvertToNative(listType)
		if err != nil {
			return nil, fmt.Errorf("failed to convert list result: %w", err)
		}
		return fromNative(list), nil
	case types.MapType:
		m, err := v.ConvertToNative(mapType)
		if err != nil {
			return nil, fmt.Errorf("failed to convert map result: %w", err)
		}
		return fromNative(m), nil
	default:
		return nil, fmt.Errorf("unsupported result type %s", v.Type().TypeName())
	}
}

func fromNative(v any) feel.Value {
	switch val := v.(type) {
	case ref.Val:
		out, err := fromCEL(val)
		if err != nil {
			return feel.Text(fmt.Sprint(val.Value()))
		}
		return out
	case int64:
		return feel.Number(float64(val))
	case uint64:
		return feel.Number(float64(val))
	case []any:
		out := make(feel.List, len(val))
		for i, elem := range val {
			out[i] = fromNative(elem)
		}
		return out
	case map[string]any:
		out := make(feel.Map, len(val))
		for k, elem := range val {
			out[k] = fromNative(elem)
		}
		return out
	default:
		return feel.Of(val)
	}
}

// celLiteral renders a value as CEL source text matching native.
func celLiteral(v feel.Value) (string, error) {
	switch val := v.(type) {
	case feel.Null:
		return "null", nil
	case feel.Bool:
		return strconv.FormatBool(bool(val)), nil
	case feel.Number:
		return double(float64(val)), nil
	case feel.Integer:
		return double(float64(val)), nil
	case feel.Text:
		return strconv.Quote(string(val)), nil
	case feel.Date:
		return fmt.Sprintf("timestamp(%q)", val.ISO()+"T00:00:00Z"), nil
	case feel.DateTime:
		return fmt.Sprintf("timestamp(%q)", val.GoTime().UTC().Format(time.RFC3339Nano)), nil
	case feel.Time:
		return strconv.Quote(val.ISO()), nil
	case feel.DayTimeDuration:
		return fmt.Sprintf("duration(%q)", strconv.FormatFloat(float64(val), 'f', -1, 64)+"s"), nil
	case feel.YearMonthDuration:
		return strconv.FormatInt(int64(val), 10), nil
	case feel.List:
		parts := make([]string, len(val))
		for i, elem := range val {
			s, err := celLiteral(elem)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	default:
		return "", fmt.Errorf("%T cannot be used here", v)
	}
}

func double(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}

// normalize folds the wire-only Integer kind into Number at every depth.
func normalize(v feel.Value) feel.Value {
	switch val := v.(type) {
	case feel.Integer:
		return feel.Number(float64(val))
	case feel.List:
		out := make(feel.List, len(val))
		for i, elem := range val {
			out[i] = normalize(elem)
		}
		return out
	case feel.Map:
		out := make(feel.Map, len(val))
		for k, elem := range val {
			out[k] = normalize(elem)
		}
		return out
	default:
		return v
	}
}

// compare orders two values of the same kind. ok is false when the values
// cannot be ordered.
func compare(a, b feel.Value) (int, bool) {
	a, b = normalize(a), normalize(b)
	switch x := a.(type) {
	case feel.Number:
		y, ok := b.(feel.Number)
		if !ok {
			return 0, false
		}
		return cmp(float64(x), float64(y)), true
	case feel.Text:
		y, ok := b.(feel.Text)
		if !ok {
			return 0, false
		}
		return strings.Compare(string(x), string(y)), true
	case feel.Date:
		y, ok := b.(feel.Date)
		if !ok {
			return 0, false
		}
		return strings.Compare(x.ISO(), y.ISO()), true
	case feel.DateTime:
		y, ok := b.(feel.DateTime)
		if !ok {
			return 0, false
		}
		return x.GoTime().Compare(y.GoTime()), true
	case feel.DayTimeDuration:
		y, ok := b.(feel.DayTimeDuration)
		if !ok {
			return 0, false
		}
		return cmp(float64(x), float64(y)), true
	case feel.YearMonthDuration:
		y, ok := b.(feel.YearMonthDuration)
		if !ok {
			return 0, false
		}
		return cmp(float64(x), float64(y)), true
	default:
		return 0, false
	}
}

func cmp(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
