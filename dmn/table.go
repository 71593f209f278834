package dmn

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/liamcoop/decisioncentral/decision"
	"github.com/liamcoop/decisioncentral/feel"
)

// HitPolicy selects how matching rules of a table combine.
type HitPolicy string

const (
	Unique      HitPolicy = "U"
	Any         HitPolicy = "A"
	Priority    HitPolicy = "P"
	First       HitPolicy = "F"
	RuleOrder   HitPolicy = "R"
	OutputOrder HitPolicy = "O"
	Collect     HitPolicy = "C"
	CollectSum  HitPolicy = "C+"
	CollectMin  HitPolicy = "C<"
	CollectMax  HitPolicy = "C>"
	CollectCnt  HitPolicy = "C#"
)

// ParseHitPolicy accepts the single letter forms and the DMN names
// ("UNIQUE", "RULE ORDER", ...). An empty policy means Unique.
func ParseHitPolicy(s string) (HitPolicy, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "U", "UNIQUE":
		return Unique, nil
	case "A", "ANY":
		return Any, nil
	case "P", "PRIORITY":
		return Priority, nil
	case "F", "FIRST":
		return First, nil
	case "R", "RULE ORDER", "RULE_ORDER":
		return RuleOrder, nil
	case "O", "OUTPUT ORDER", "OUTPUT_ORDER":
		return OutputOrder, nil
	case "C", "COLLECT":
		return Collect, nil
	case "C+", "SUM":
		return CollectSum, nil
	case "C<", "MIN":
		return CollectMin, nil
	case "C>", "MAX":
		return CollectMax, nil
	case "C#", "COUNT":
		return CollectCnt, nil
	default:
		return "", fmt.Errorf("unknown hit policy %q", s)
	}
}

type rule struct {
	id         string
	tests      []test        // aligned with table.inputs
	outputs    []outputEntry // aligned with table.outputs
	annotation string
}

type table struct {
	name    string
	policy  HitPolicy
	inputs  []string
	outputs []string
	// priorities lists the allowed values of each output, highest priority
	// first. Used by the P and O policies.
	priorities map[string][]feel.Value
	rules      []rule
}

type match struct {
	rule   *rule
	values []feel.Value
}

// evaluate runs the table against data and returns the outputs to merge back
// into the data together with the traces of the rules that fired.
func (t *table) evaluate(decisionName string, data map[string]feel.Value) (map[string]feel.Value, []decision.RuleTrace, error) {
	nd := nativeData(data)
	inputs := make([]any, len(t.inputs))
	for i, name := range t.inputs {
		inputs[i] = native(data[name])
	}
	activation := map[string]any{"input": nil, "data": nd}

	var matches []match
	for i := range t.rules {
		r := &t.rules[i]
		hit := true
		for j, tst := range r.tests {
			if !tst.matches(inputs[j], nd) {
				hit = false
				break
			}
		}
		if !hit {
			continue
		}
		values := make([]feel.Value, len(r.outputs))
		for j, out := range r.outputs {
			v, err := out.eval(activation)
			if err != nil {
				return nil, nil, fmt.Errorf("table %s rule %s output %s: %w", t.name, r.id, t.outputs[j], err)
			}
			values[j] = v
		}
		matches = append(matches, match{rule: r, values: values})
	}

	selected, err := t.resolve(matches)
	if err != nil {
		return nil, nil, err
	}

	traces := make([]decision.RuleTrace, len(selected))
	for i, m := range selected {
		traces[i] = decision.RuleTrace{Decision: decisionName, Table: t.name, RuleID: m.rule.id}
	}
	result, err := t.combine(selected)
	if err != nil {
		return nil, nil, err
	}
	return result, traces, nil
}

// resolve applies the hit policy to pick the rules that are reported.
func (t *table) resolve(matches []match) ([]match, error) {
	switch t.policy {
	case Unique:
		if len(matches) > 1 {
			ids := make([]string, len(matches))
			for i, m := range matches {
				ids[i] = m.rule.id
			}
			return nil, fmt.Errorf("table %s has hit policy Unique but rules %s all matched", t.name, strings.Join(ids, ", "))
		}
		return matches, nil
	case Any:
		for _, m := range matches[min(1, len(matches)):] {
			if !slices.EqualFunc(m.values, matches[0].values, equal) {
				return nil, fmt.Errorf("table %s has hit policy Any but rules %s and %s differ", t.name, matches[0].rule.id, m.rule.id)
			}
		}
		return matches[:min(1, len(matches))], nil
	case First:
		return matches[:min(1, len(matches))], nil
	case Priority:
		sorted := t.byPriority(matches)
		return sorted[:min(1, len(sorted))], nil
	case OutputOrder:
		return t.byPriority(matches), nil
	default:
		return matches, nil
	}
}

// byPriority orders matches by the position of their output values in the
// priority lists, rule order breaking ties.
func (t *table) byPriority(matches []match) []match {
	sorted := slices.Clone(matches)
	rank := func(m match) []int {
		out := make([]int, len(t.outputs))
		for i, name := range t.outputs {
			out[i] = len(t.priorities[name])
			for p, v := range t.priorities[name] {
				if equal(v, m.values[i]) {
					out[i] = p
					break
				}
			}
		}
		return out
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return slices.Compare(rank(sorted[i]), rank(sorted[j])) < 0
	})
	return sorted
}

// combine turns the selected rules into output values.
func (t *table) combine(selected []match) (map[string]feel.Value, error) {
	out := make(map[string]feel.Value, len(t.outputs))
	for i, name := range t.outputs {
		column := make([]feel.Value, 0, len(selected))
		for _, m := range selected {
			if m.rule.outputs[i].set {
				column = append(column, m.values[i])
			}
		}

		switch t.policy {
		case Unique, Any, Priority, First:
			if len(column) == 0 {
				out[name] = feel.Null{}
			} else {
				out[name] = column[0]
			}
		case RuleOrder, OutputOrder, Collect:
			out[name] = feel.List(column)
		case CollectCnt:
			out[name] = feel.Number(float64(len(column)))
		case CollectSum:
			if len(column) == 0 {
				out[name] = feel.Null{}
				continue
			}
			var sum float64
			for _, v := range column {
				n, ok := normalize(v).(feel.Number)
				if !ok {
					return nil, fmt.Errorf("table %s output %s: cannot sum %s", t.name, name, describe(v))
				}
				sum += float64(n)
			}
			out[name] = feel.Number(sum)
		case CollectMin, CollectMax:
			if len(column) == 0 {
				out[name] = feel.Null{}
				continue
			}
			best := column[0]
			for _, v := range column[1:] {
				c, ok := compare(v, best)
				if !ok {
					return nil, fmt.Errorf("table %s output %s: cannot order %s and %s", t.name, name, describe(v), describe(best))
				}
				if (t.policy == CollectMin && c < 0) || (t.policy == CollectMax && c > 0) {
					best = v
				}
			}
			out[name] = normalize(best)
		}
	}
	return out, nil
}

// variables returns the variable names the table reads or writes.
func (t *table) variables() []string {
	out := slices.Clone(t.inputs)
	for _, name := range t.outputs {
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

func equal(a, b feel.Value) bool {
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	return fmt.Sprintf("%#v", normalize(a)) == fmt.Sprintf("%#v", normalize(b))
}

func describe(v feel.Value) string {
	return fmt.Sprintf("%T", v)
}
