package decision

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liamcoop/decisioncentral/feel"
)

func TestNormalizeFlattensTraces(t *testing.T) {
	outcome := Outcome{
		Records: []Record{
			{
				Result:       map[string]feel.Value{"Risk": feel.Text("low")},
				ExecutedRule: []RuleTrace{{"Assess", "Risk", "r1"}},
			},
			{
				Result: map[string]feel.Value{
					"Risk":    feel.Text("low"),
					"Premium": feel.Number(120),
					"Review":  feel.NewDate(2024, time.July, 1),
				},
				ExecutedRule: []RuleTrace{{"Price", "Premium", "p2"}, {"Price", "Premium", "p5"}},
			},
		},
	}

	env := Normalize(Status{}, outcome)

	assert.Equal(t, []RuleTrace{
		{"Assess", "Risk", "r1"},
		{"Price", "Premium", "p2"},
		{"Price", "Premium", "p5"},
	}, env.ExecutedRule)
	assert.Equal(t, map[string]any{
		"Risk":    "low",
		"Premium": 120.0,
		"Review":  `@"2024-07-01"`,
	}, env.Result)
	assert.True(t, env.Status.OK())
}

func TestNormalizeEmptyOutcome(t *testing.T) {
	env := Normalize(Status{}, Outcome{Records: []Record{}})
	assert.Empty(t, env.Result)
	assert.NotNil(t, env.Result)
	assert.Empty(t, env.ExecutedRule)
	assert.NotNil(t, env.ExecutedRule)
}

func TestNormalizeErrorStatus(t *testing.T) {
	outcome := Single(Record{
		Result:       map[string]feel.Value{"x": feel.Number(1)},
		ExecutedRule: []RuleTrace{{"d", "t", "1"}},
	})
	status := Errorf("no rule matched in table %s", "t")

	env := Normalize(status, outcome)
	assert.Empty(t, env.Result)
	assert.Empty(t, env.ExecutedRule)
	assert.Equal(t, []string{"no rule matched in table t"}, env.Status.Errors)
}

func TestEnvelopeJSON(t *testing.T) {
	env := Normalize(Status{}, Single(Record{
		Result:       map[string]feel.Value{"ok": feel.Bool(true)},
		ExecutedRule: []RuleTrace{{"Decide", "Table 1", "R1"}},
	}))

	data, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"Result": {"ok": "true"},
		"Executed Rule": [["Decide", "Table 1", "R1"]],
		"Status": {"errors": []}
	}`, string(data))

	var back Envelope
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, env.ExecutedRule, back.ExecutedRule)
}

func TestEnvelopeJSONOnError(t *testing.T) {
	data, err := json.Marshal(Normalize(Errorf("boom"), Outcome{}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"Result": {}, "Executed Rule": [], "Status": {"errors": ["boom"]}}`, string(data))
}

func TestEnvelopeJSONNonFiniteNumbers(t *testing.T) {
	env := Normalize(Status{}, Single(Record{
		Result: map[string]feel.Value{
			"Fee":    feel.Number(math.Inf(1)),
			"Loss":   feel.Number(math.Inf(-1)),
			"Ratio":  feel.Number(math.NaN()),
			"Totals": feel.List{feel.Number(1), feel.Number(math.Inf(1))},
		},
		ExecutedRule: []RuleTrace{{"Price", "Fees", "F1"}},
	}))

	data, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"Result": {"Fee": "Infinity", "Loss": "-Infinity", "Ratio": "NaN", "Totals": [1, "Infinity"]},
		"Executed Rule": [["Price", "Fees", "F1"]],
		"Status": {"errors": []}
	}`, string(data))
}

func TestRuleTraceUnmarshalRejectsShortArrays(t *testing.T) {
	var rt RuleTrace
	assert.Error(t, json.Unmarshal([]byte(`["a", "b"]`), &rt))
}

func TestNewReport(t *testing.T) {
	outcome := Outcome{
		Records: []Record{
			{Result: map[string]feel.Value{"a": feel.Number(1)}, ExecutedRule: []RuleTrace{{"d", "t1", "1"}}},
			{
				Result: map[string]feel.Value{
					"b":     feel.List{feel.Text("x"), feel.Text("y")},
					"a":     feel.Number(2.5),
					"empty": feel.Text(""),
				},
				ExecutedRule: []RuleTrace{{"d", "t2", "3"}, {"d", "t2", "4"}},
			},
		},
	}

	rep := NewReport(Status{}, outcome)
	assert.Equal(t, []ReportRow{{"a", "2.5"}, {"b", "[x, y]"}}, rep.Rows)
	assert.Equal(t, []RuleTrace{{"d", "t2", "3"}, {"d", "t2", "4"}}, rep.Rules)
	assert.Empty(t, rep.Errors)

	assert.Equal(t, Report{}, NewReport(Status{}, Outcome{}))
	assert.Equal(t, []string{"bad"}, NewReport(Errorf("bad"), outcome).Errors)
}

func TestGlossaryLookups(t *testing.T) {
	g := Glossary{
		{Name: "Applicant", Variables: []Variable{
			{Name: "Age", QualifiedName: "Applicant.age"},
			{Name: "Income", QualifiedName: "Applicant.income"},
		}},
		{Name: DataConcept, Variables: []Variable{{Name: "Rate"}}},
	}

	assert.Len(t, g.Variables(), 3)
	v, ok := g.Variable("Income")
	require.True(t, ok)
	assert.Equal(t, "income", v.Attribute())
	rate, _ := g.Variable("Rate")
	assert.Equal(t, "Rate", rate.Attribute())
	_, ok = g.Concept("Missing")
	assert.False(t, ok)
}
