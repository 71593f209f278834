package decision

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/liamcoop/decisioncentral/codec"
)

// Envelope is the JSON response of a decide call.
type Envelope struct {
	Result       map[string]any `json:"Result"`
	ExecutedRule []RuleTrace    `json:"Executed Rule"`
	Status       Status         `json:"Status"`
}

// Normalize collapses an outcome into an envelope. Every record's rule traces
// are appended in evaluation order; the result is the last record's, encoded
// for the wire. A failed status yields an empty result and trace list.
func Normalize(status Status, outcome Outcome) Envelope {
	env := Envelope{
		Result:       map[string]any{},
		ExecutedRule: []RuleTrace{},
		Status:       status,
	}
	if !status.OK() {
		return env
	}

	for _, rec := range outcome.Records {
		env.ExecutedRule = append(env.ExecutedRule, rec.ExecutedRule...)
	}
	if last, ok := outcome.Last(); ok {
		env.Result = codec.EncodeMap(last.Result)
	}
	return env
}

// Report is the human readable rendition of a decide call.
type Report struct {
	Rows   []ReportRow
	Rules  []RuleTrace
	Errors []string
}

// ReportRow is one variable and its displayed value.
type ReportRow struct {
	Variable string
	Value    string
}

// NewReport renders the last record of an outcome. Variables whose value
// displays as the empty string are left out.
func NewReport(status Status, outcome Outcome) Report {
	if !status.OK() {
		return Report{Errors: status.Errors}
	}
	last, ok := outcome.Last()
	if !ok {
		return Report{}
	}

	names := make([]string, 0, len(last.Result))
	for name := range last.Result {
		names = append(names, name)
	}
	sort.Strings(names)

	var rep Report
	for _, name := range names {
		shown := Display(codec.Encode(last.Result[name]))
		if shown == "" {
			continue
		}
		rep.Rows = append(rep.Rows, ReportRow{Variable: name, Value: shown})
	}
	rep.Rules = append(rep.Rules, last.ExecutedRule...)
	return rep
}

// Display formats an encoded value for an HTML page.
func Display(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	case []any:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = Display(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + Display(val[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(val)
	}
}
