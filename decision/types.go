// Package decision defines the contract between the HTTP front end and a
// decision service, and shapes engine output into the response envelope.
package decision

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/liamcoop/decisioncentral/feel"
)

// DataConcept is the reserved concept holding variables that belong to no
// business concept. Its variables are rendered without a wrapping object.
const DataConcept = "Data"

// Glossary lists every input and output variable of a service, grouped by
// business concept, in declaration order.
type Glossary []Concept

// Concept is a business concept and its variables.
type Concept struct {
	Name      string
	Variables []Variable
}

// Variable describes one glossary entry.
type Variable struct {
	Name          string
	QualifiedName string   // Concept.attribute form used by the decision tables
	Sample        feel.Value
	Attributes    []string // annotation columns, aligned with the glossary names after the first
}

// Attribute returns the attribute part of the qualified name.
func (v Variable) Attribute() string {
	if i := strings.IndexByte(v.QualifiedName, '.'); i >= 0 {
		return v.QualifiedName[i+1:]
	}
	if v.QualifiedName != "" {
		return v.QualifiedName
	}
	return v.Name
}

// Variables returns every variable of the glossary in order.
func (g Glossary) Variables() []Variable {
	var out []Variable
	for _, c := range g {
		out = append(out, c.Variables...)
	}
	return out
}

// Concept looks a concept up by name.
func (g Glossary) Concept(name string) (Concept, bool) {
	for _, c := range g {
		if c.Name == name {
			return c, true
		}
	}
	return Concept{}, false
}

// Variable looks a variable up by name across all concepts.
func (g Glossary) Variable(name string) (Variable, bool) {
	for _, c := range g {
		for _, v := range c.Variables {
			if v.Name == name {
				return v, true
			}
		}
	}
	return Variable{}, false
}

// RuleTrace records one rule that fired. It is written to JSON as the array
// [decision, table, ruleId].
type RuleTrace struct {
	Decision string
	Table    string
	RuleID   string
}

func (rt RuleTrace) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]string{rt.Decision, rt.Table, rt.RuleID})
}

func (rt *RuleTrace) UnmarshalJSON(data []byte) error {
	var parts []string
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("failed to decode rule trace: %w", err)
	}
	if len(parts) != 3 {
		return fmt.Errorf("rule trace must have 3 elements, got %d", len(parts))
	}
	rt.Decision, rt.Table, rt.RuleID = parts[0], parts[1], parts[2]
	return nil
}

// Status carries the errors reported by a service call. An empty status
// means success.
type Status struct {
	Errors []string
}

// Errorf returns a status holding one formatted error.
func Errorf(format string, args ...any) Status {
	return Status{Errors: []string{fmt.Sprintf(format, args...)}}
}

// OK reports whether the status carries no errors.
func (s Status) OK() bool { return len(s.Errors) == 0 }

// Add appends the errors of other to s.
func (s *Status) Add(other Status) {
	s.Errors = append(s.Errors, other.Errors...)
}

func (s Status) MarshalJSON() ([]byte, error) {
	errs := s.Errors
	if errs == nil {
		errs = []string{}
	}
	return json.Marshal(struct {
		Errors []string `json:"errors"`
	}{errs})
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var raw struct {
		Errors []string `json:"errors"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode status: %w", err)
	}
	s.Errors = raw.Errors
	return nil
}

// Record is the outcome of one evaluated table or decision step.
type Record struct {
	Result       map[string]feel.Value
	ExecutedRule []RuleTrace
}

// Outcome is everything a decide call produced, one record per evaluated
// table or decision step in evaluation order.
type Outcome struct {
	Records []Record
}

// Single wraps one record as an outcome.
func Single(r Record) Outcome {
	return Outcome{Records: []Record{r}}
}

// Last returns the final record, if any.
func (o Outcome) Last() (Record, bool) {
	if len(o.Records) == 0 {
		return Record{}, false
	}
	return o.Records[len(o.Records)-1], true
}

// Sheet is a decision table rendered as an HTML fragment.
type Sheet struct {
	Name string
	HTML string
}

// DecisionSheet is the tabular view of a service's decision steps. The first
// row holds the headers.
type DecisionSheet struct {
	Name string
	Rows [][]string
}
