// Package dmn is a small decision-table engine. It loads decision services
// from YAML/JSON workbooks or a subset of DMN XML, compiles every unary test
// and expression cell to CEL once, and evaluates decisions against
// native values.
package dmn

import (
	"fmt"
	"slices"

	"github.com/google/cel-go/cel"

	"github.com/liamcoop/decisioncentral/decision"
	"github.com/liamcoop/decisioncentral/feel"
)

// step is one row of the decision sheet: run table when every condition
// holds.
type step struct {
	decision   string
	table      string
	conditions map[string]test // keyed by variable name
}

// Engine is a loaded decision service. It is immutable after a successful
// Use or UseXML and safe for concurrent Decide calls.
type Engine struct {
	env           *cel.Env
	glossaryNames []string
	glossary      decision.Glossary
	decisionName  string
	steps         []step
	stepInputs    []string
	tables        []*table
	byName        map[string]*table
	sheets        []decision.Sheet
}

var _ decision.Service = (*Engine)(nil)

// New creates an engine with no decisions loaded.
func New() (*Engine, error) {
	env, err := newEnv()
	if err != nil {
		return nil, err
	}
	return &Engine{env: env, byName: make(map[string]*table)}, nil
}

func (en *Engine) Glossary() decision.Glossary { return en.glossary }

func (en *Engine) GlossaryNames() []string { return slices.Clone(en.glossaryNames) }

func (en *Engine) Sheets() []decision.Sheet { return slices.Clone(en.sheets) }

// TableGlossary returns the glossary entries used by one table.
func (en *Engine) TableGlossary(sheet string) (decision.Glossary, bool) {
	t, ok := en.byName[sheet]
	if !ok {
		return nil, false
	}
	used := t.variables()
	var out decision.Glossary
	for _, c := range en.glossary {
		var vars []decision.Variable
		for _, v := range c.Variables {
			if slices.Contains(used, v.Name) {
				vars = append(vars, v)
			}
		}
		if len(vars) > 0 {
			out = append(out, decision.Concept{Name: c.Name, Variables: vars})
		}
	}
	return out, true
}

// Decision returns the decision sheet: one column per condition variable,
// then the decision and the table it executes.
func (en *Engine) Decision() decision.DecisionSheet {
	header := append(slices.Clone(en.stepInputs), "Decisions", "Execute Decision Tables")
	rows := [][]string{header}
	for _, s := range en.steps {
		row := make([]string, 0, len(header))
		for _, name := range en.stepInputs {
			cell := "-"
			if c, ok := s.conditions[name]; ok && c.text != "" {
				cell = c.text
			}
			row = append(row, cell)
		}
		rows = append(rows, append(row, s.decision, s.table))
	}
	return decision.DecisionSheet{Name: en.decisionName, Rows: rows}
}

// Decide runs every decision step in order. Outputs of earlier steps are
// visible to later ones.
func (en *Engine) Decide(data map[string]feel.Value) (decision.Status, decision.Outcome) {
	working, status := en.prepare(data)
	if !status.OK() {
		return status, decision.Outcome{}
	}

	var outcome decision.Outcome
	for _, s := range en.steps {
		if !en.applies(s, working) {
			continue
		}
		rec, err := en.run(s.decision, en.byName[s.table], working)
		if err != nil {
			return decision.Errorf("%v", err), decision.Outcome{}
		}
		outcome.Records = append(outcome.Records, rec)
	}
	return decision.Status{}, outcome
}

// DecideTables runs the named tables in order, skipping the decision sheet.
func (en *Engine) DecideTables(data map[string]feel.Value, tables []string) (decision.Status, decision.Outcome) {
	for _, name := range tables {
		if _, ok := en.byName[name]; !ok {
			return decision.Errorf("no decision table named %s", name), decision.Outcome{}
		}
	}
	working, status := en.prepare(data)
	if !status.OK() {
		return status, decision.Outcome{}
	}

	var outcome decision.Outcome
	for _, name := range tables {
		rec, err := en.run(en.decisionFor(name), en.byName[name], working)
		if err != nil {
			return decision.Errorf("%v", err), decision.Outcome{}
		}
		outcome.Records = append(outcome.Records, rec)
	}
	return decision.Status{}, outcome
}

func (en *Engine) decisionFor(tableName string) string {
	for _, s := range en.steps {
		if s.table == tableName {
			return s.decision
		}
	}
	return tableName
}

func (en *Engine) applies(s step, working map[string]feel.Value) bool {
	if len(s.conditions) == 0 {
		return true
	}
	nd := nativeData(working)
	for name, c := range s.conditions {
		if !c.matches(native(working[name]), nd) {
			return false
		}
	}
	return true
}

// run evaluates one table, merges its outputs into working and snapshots the
// glossary.
func (en *Engine) run(decisionName string, t *table, working map[string]feel.Value) (decision.Record, error) {
	outputs, traces, err := t.evaluate(decisionName, working)
	if err != nil {
		return decision.Record{}, err
	}
	for k, v := range outputs {
		working[k] = v
	}

	result := make(map[string]feel.Value)
	for _, v := range en.glossary.Variables() {
		if val, ok := working[v.Name]; ok {
			result[v.Name] = val
		} else {
			result[v.Name] = feel.Text("")
		}
	}
	return decision.Record{Result: result, ExecutedRule: traces}, nil
}

// prepare copies the caller's data into a working map keyed by variable
// name. A concept key holding a map is spread over the concept's variables
// by attribute; qualified names are accepted in place of variable names.
func (en *Engine) prepare(data map[string]feel.Value) (map[string]feel.Value, decision.Status) {
	working := make(map[string]feel.Value, len(data))
	var status decision.Status

	for key, value := range data {
		value = normalize(value)
		if c, ok := en.glossary.Concept(key); ok && c.Name != decision.DataConcept {
			obj, isMap := value.(feel.Map)
			if !isMap {
				status.Errors = append(status.Errors, fmt.Sprintf("concept %s must be an object", key))
				continue
			}
			for _, v := range c.Variables {
				if attr, ok := obj[v.Attribute()]; ok {
					working[v.Name] = attr
				}
			}
			continue
		}
		if v, ok := en.byQualifiedName(key); ok {
			working[v.Name] = value
			continue
		}
		working[key] = value
	}
	return working, status
}

func (en *Engine) byQualifiedName(name string) (decision.Variable, bool) {
	for _, v := range en.glossary.Variables() {
		if v.QualifiedName == name && v.Name != name {
			return v, true
		}
	}
	return decision.Variable{}, false
}
