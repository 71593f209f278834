package dmn

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/liamcoop/decisioncentral/decision"
	"github.com/liamcoop/decisioncentral/feel"
)

// definition is the source-format independent description of a service.
type definition struct {
	glossaryNames []string
	glossary      decision.Glossary
	// deriveGlossary adds variables referenced by tables but missing from
	// the glossary to the Data concept instead of reporting them.
	deriveGlossary bool
	decisionName   string
	steps          []stepDef
	tables         []tableDef
}

type stepDef struct {
	decision string
	table    string
	when     map[string]string
	order    []string // condition variables in source order
}

type tableDef struct {
	name         string
	hitPolicy    string
	inputs       []string
	outputs      []string
	outputValues map[string][]string
	rules        []ruleDef
}

type ruleDef struct {
	id         string
	when       []string // aligned with inputs
	then       []string // aligned with outputs
	annotation string
}

// load compiles a definition and swaps it into the engine. On any error the
// engine is left unchanged and every problem found is reported.
func (en *Engine) load(def definition) decision.Status {
	var status decision.Status
	fail := func(format string, args ...any) {
		status.Errors = append(status.Errors, fmt.Sprintf(format, args...))
	}

	if len(def.tables) == 0 {
		fail("no decision tables defined")
		return status
	}

	glossary := slices.Clone(def.glossary)
	known := make(map[string]bool)
	for _, c := range glossary {
		for _, v := range c.Variables {
			if known[v.Name] {
				fail("glossary variable %s is defined more than once", v.Name)
			}
			known[v.Name] = true
		}
	}
	require := func(where, name string) {
		if known[name] {
			return
		}
		if !def.deriveGlossary {
			fail("%s: variable %s is not in the glossary", where, name)
			return
		}
		known[name] = true
		glossary = addDataVariable(glossary, name)
	}

	tables := make([]*table, 0, len(def.tables))
	byName := make(map[string]*table, len(def.tables))
	for _, td := range def.tables {
		if td.name == "" {
			fail("decision table without a name")
			continue
		}
		if _, dup := byName[td.name]; dup {
			fail("decision table %s is defined more than once", td.name)
			continue
		}
		for _, name := range td.inputs {
			require("table "+td.name, name)
		}
		for _, name := range td.outputs {
			require("table "+td.name, name)
		}
		t, errs := en.compileTable(td)
		status.Errors = append(status.Errors, errs...)
		if t != nil {
			tables = append(tables, t)
			byName[t.name] = t
		}
	}

	stepDefs := def.steps
	if len(stepDefs) == 0 {
		for _, td := range def.tables {
			stepDefs = append(stepDefs, stepDef{decision: td.name, table: td.name})
		}
	}
	steps := make([]step, 0, len(stepDefs))
	var stepInputs []string
	for i, sd := range stepDefs {
		if sd.decision == "" {
			sd.decision = "Decision " + strconv.Itoa(i+1)
		}
		if _, ok := byName[sd.table]; !ok {
			fail("decision %s executes unknown table %q", sd.decision, sd.table)
			continue
		}
		s := step{decision: sd.decision, table: sd.table, conditions: make(map[string]test)}
		for _, name := range sd.order {
			require("decision "+sd.decision, name)
			c, err := compileTest(en.env, sd.when[name])
			if err != nil {
				fail("decision %s condition on %s: %v", sd.decision, name, err)
				continue
			}
			s.conditions[name] = c
			if !slices.Contains(stepInputs, name) {
				stepInputs = append(stepInputs, name)
			}
		}
		steps = append(steps, s)
	}

	if !status.OK() {
		return status
	}

	sheets := make([]decision.Sheet, len(tables))
	for i, t := range tables {
		html, err := renderTable(t)
		if err != nil {
			fail("table %s: %v", t.name, err)
			return status
		}
		sheets[i] = decision.Sheet{Name: t.name, HTML: html}
	}

	names := def.glossaryNames
	if len(names) == 0 {
		names = []string{"Glossary"}
	}
	decisionName := def.decisionName
	if decisionName == "" {
		decisionName = "Decision"
	}

	en.glossaryNames = names
	en.glossary = glossary
	en.decisionName = decisionName
	en.steps = steps
	en.stepInputs = stepInputs
	en.tables = tables
	en.byName = byName
	en.sheets = sheets
	return status
}

func addDataVariable(g decision.Glossary, name string) decision.Glossary {
	concept := decision.DataConcept
	attr := name
	if i := strings.IndexByte(name, '.'); i > 0 {
		concept, attr = name[:i], name[i+1:]
	}
	v := decision.Variable{Name: name, QualifiedName: concept + "." + attr}
	for i := range g {
		if g[i].Name == concept {
			g[i].Variables = append(g[i].Variables, v)
			return g
		}
	}
	return append(g, decision.Concept{Name: concept, Variables: []decision.Variable{v}})
}

func (en *Engine) compileTable(td tableDef) (*table, []string) {
	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf("table %s: ", td.name)+fmt.Sprintf(format, args...))
	}

	policy, err := ParseHitPolicy(td.hitPolicy)
	if err != nil {
		fail("%v", err)
	}
	if len(td.outputs) == 0 {
		fail("no outputs defined")
	}

	t := &table{
		name:       td.name,
		policy:     policy,
		inputs:     td.inputs,
		outputs:    td.outputs,
		priorities: make(map[string][]feel.Value),
	}
	for out, values := range td.outputValues {
		if !slices.Contains(td.outputs, out) {
			fail("output values given for unknown output %s", out)
			continue
		}
		for _, cell := range values {
			v, err := feel.Parse(cell)
			if err != nil {
				v = feel.Text(strings.TrimSpace(cell))
			}
			t.priorities[out] = append(t.priorities[out], v)
		}
	}

	for i, rd := range td.rules {
		id := rd.id
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		if len(rd.when) != len(td.inputs) {
			fail("rule %s has %d input entries, want %d", id, len(rd.when), len(td.inputs))
			continue
		}
		if len(rd.then) != len(td.outputs) {
			fail("rule %s has %d output entries, want %d", id, len(rd.then), len(td.outputs))
			continue
		}
		r := rule{id: id, annotation: rd.annotation}
		for j, cell := range rd.when {
			tst, err := compileTest(en.env, cell)
			if err != nil {
				fail("rule %s input %s: %v", id, td.inputs[j], err)
				continue
			}
			r.tests = append(r.tests, tst)
		}
		for j, cell := range rd.then {
			out, err := compileOutput(en.env, cell)
			if err != nil {
				fail("rule %s output %s: %v", id, td.outputs[j], err)
				continue
			}
			r.outputs = append(r.outputs, out)
		}
		t.rules = append(t.rules, r)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return t, nil
}

// align turns keyed cells into a slice following names, filling gaps with
// "-". Keys that are not in names are reported.
func align(names []string, cells map[string]string) ([]string, error) {
	out := make([]string, len(names))
	for i, name := range names {
		if cell, ok := cells[name]; ok {
			out[i] = cell
		} else {
			out[i] = "-"
		}
	}
	for key := range cells {
		if !slices.Contains(names, key) {
			return nil, fmt.Errorf("unknown column %s", key)
		}
	}
	return out, nil
}
