package dmn

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/liamcoop/decisioncentral/feel"
)

// rawPrefix marks a cell holding a CEL expression instead of a unary test
// or literal.
const rawPrefix = "cel:"

// costLimit bounds the evaluation cost of each compiled cell.
const costLimit = 1000000

func newEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("input", cel.DynType),
		cel.Variable("data", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// compile compiles a CEL expression to a program with the cost limit applied.
// When wantBool is set the expression must produce a boolean.
func compile(env *cel.Env, expr string, wantBool bool) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	if wantBool {
		if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
			return nil, fmt.Errorf("expression must be boolean, got %s", out)
		}
	}

	prog, err := env.Program(ast, cel.CostLimit(costLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return prog, nil
}

// isAny reports whether a cell matches every input.
func isAny(cell string) bool {
	cell = strings.TrimSpace(cell)
	return cell == "" || cell == "-"
}

// unaryToCEL translates a unary test cell into a boolean CEL expression over
// input. Supported forms are "-", comparisons such as "< 10", intervals
// "[1 .. 5)", literal equality, comma separated alternatives, "not(...)" and
// raw "cel:" expressions.
func unaryToCEL(cell string) (string, error) {
	cell = strings.TrimSpace(cell)
	if isAny(cell) {
		return "true", nil
	}
	if strings.HasPrefix(cell, rawPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(cell, rawPrefix)), nil
	}
	if strings.HasPrefix(cell, "not(") && strings.HasSuffix(cell, ")") {
		inner, err := unaryToCEL(cell[len("not(") : len(cell)-1])
		if err != nil {
			return "", err
		}
		return "!(" + inner + ")", nil
	}

	parts := splitTopLevel(cell)
	exprs := make([]string, 0, len(parts))
	for _, part := range parts {
		expr, err := singleTest(strings.TrimSpace(part))
		if err != nil {
			return "", err
		}
		exprs = append(exprs, expr)
	}
	if len(exprs) == 1 {
		return exprs[0], nil
	}
	return "(" + strings.Join(exprs, " || ") + ")", nil
}

var comparisons = []struct{ prefix, op string }{
	{"<=", "<="},
	{">=", ">="},
	{"!=", "!="},
	{"<", "<"},
	{">", ">"},
	{"=", "=="},
}

func singleTest(part string) (string, error) {
	if part == "" {
		return "", fmt.Errorf("empty test")
	}
	for _, c := range comparisons {
		if strings.HasPrefix(part, c.prefix) {
			rest := strings.TrimSpace(part[len(c.prefix):])
			v, err := feel.Parse(rest)
			if err != nil {
				return "", fmt.Errorf("invalid unary test %q: %w", part, err)
			}
			lit, err := celLiteral(v)
			if err != nil {
				return "", fmt.Errorf("invalid unary test %q: %w", part, err)
			}
			return "input " + c.op + " " + lit, nil
		}
	}

	v, err := feel.Parse(part)
	if err != nil {
		if strings.ContainsAny(part, `"()[]<>=`) {
			return "", fmt.Errorf("invalid unary test %q: %w", part, err)
		}
		// bare words compare as text
		v = feel.Text(part)
	}
	if iv, ok := v.(feel.Interval); ok {
		return intervalTest(iv)
	}
	lit, err := celLiteral(v)
	if err != nil {
		return "", fmt.Errorf("invalid unary test %q: %w", part, err)
	}
	return "input == " + lit, nil
}

func intervalTest(iv feel.Interval) (string, error) {
	low, err := celLiteral(iv.Low)
	if err != nil {
		return "", fmt.Errorf("invalid interval: %w", err)
	}
	high, err := celLiteral(iv.High)
	if err != nil {
		return "", fmt.Errorf("invalid interval: %w", err)
	}
	lowOp, highOp := ">", "<"
	if iv.LowClosed() {
		lowOp = ">="
	}
	if iv.HighClosed() {
		highOp = "<="
	}
	return fmt.Sprintf("(input %s %s && input %s %s)", lowOp, low, highOp, high), nil
}

// splitTopLevel splits a cell on commas that are not inside quotes.
// Interval brackets need not balance, so they do not nest.
func splitTopLevel(s string) []string {
	var (
		parts   []string
		inQuote bool
		start   int
	)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case inQuote && c == '\\':
			i++
		case c == '"':
			inQuote = !inQuote
		case c == ',' && !inQuote:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

// outputEntry is a compiled output cell.
type outputEntry struct {
	set   bool
	value feel.Value
	prog  cel.Program
	text  string
}

func compileOutput(env *cel.Env, cell string) (outputEntry, error) {
	text := strings.TrimSpace(cell)
	if isAny(text) {
		return outputEntry{text: text}, nil
	}
	if strings.HasPrefix(text, rawPrefix) {
		prog, err := compile(env, strings.TrimSpace(strings.TrimPrefix(text, rawPrefix)), false)
		if err != nil {
			return outputEntry{}, err
		}
		return outputEntry{set: true, prog: prog, text: text}, nil
	}
	v, err := feel.Parse(text)
	if err != nil {
		v = feel.Text(text)
	}
	return outputEntry{set: true, value: v, text: text}, nil
}

// eval produces the output value for the current data.
func (o outputEntry) eval(activation map[string]any) (feel.Value, error) {
	if !o.set {
		return feel.Null{}, nil
	}
	if o.prog == nil {
		return o.value, nil
	}
	out, _, err := o.prog.Eval(activation)
	if err != nil {
		return nil, fmt.Errorf("evaluation error: %w", err)
	}
	return fromCEL(out)
}

// test is a compiled input cell.
type test struct {
	always bool
	prog   cel.Program
	text   string
}

func compileTest(env *cel.Env, cell string) (test, error) {
	if isAny(cell) {
		return test{always: true, text: strings.TrimSpace(cell)}, nil
	}
	expr, err := unaryToCEL(cell)
	if err != nil {
		return test{}, err
	}
	prog, err := compile(env, expr, true)
	if err != nil {
		return test{}, fmt.Errorf("unary test %q: %w", cell, err)
	}
	return test{prog: prog, text: strings.TrimSpace(cell)}, nil
}

// matches evaluates the test. Evaluation errors, such as comparing a missing
// input, count as no match.
func (t test) matches(input any, data map[string]any) bool {
	if t.always {
		return true
	}
	out, _, err := t.prog.Eval(map[string]any{"input": input, "data": data})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
