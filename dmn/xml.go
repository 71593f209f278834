package dmn

import (
	"bytes"
	"encoding/xml"
	"strings"

	"github.com/liamcoop/decisioncentral/decision"
)

// DMN 1.x elements understood by UseXML. Namespaces are ignored so files
// written against any DMN version load.
type dmnDefinitions struct {
	Name      string        `xml:"name,attr"`
	Decisions []dmnDecision `xml:"decision"`
}

type dmnDecision struct {
	ID    string    `xml:"id,attr"`
	Name  string    `xml:"name,attr"`
	Table *dmnTable `xml:"decisionTable"`
}

type dmnTable struct {
	HitPolicy   string      `xml:"hitPolicy,attr"`
	Aggregation string      `xml:"aggregation,attr"`
	Inputs      []dmnInput  `xml:"input"`
	Outputs     []dmnOutput `xml:"output"`
	Rules       []dmnRule   `xml:"rule"`
}

type dmnInput struct {
	Label      string `xml:"label,attr"`
	Expression string `xml:"inputExpression>text"`
}

type dmnOutput struct {
	Name   string `xml:"name,attr"`
	Label  string `xml:"label,attr"`
	Values string `xml:"outputValues>text"`
}

type dmnRule struct {
	ID          string   `xml:"id,attr"`
	Description string   `xml:"description"`
	Inputs      []string `xml:"inputEntry>text"`
	Outputs     []string `xml:"outputEntry>text"`
}

// UseXML loads a DMN XML document, replacing anything loaded before. Each
// decision with a decision table becomes a table and a decision step, in
// document order. The glossary is derived from the input expressions and
// output names.
func (en *Engine) UseXML(data []byte) decision.Status {
	var doc dmnDefinitions
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		return decision.Errorf("failed to parse DMN XML: %v", err)
	}

	def := definition{
		deriveGlossary: true,
		decisionName:   doc.Name,
	}
	var status decision.Status
	for _, d := range doc.Decisions {
		if d.Table == nil {
			continue
		}
		name := d.Name
		if name == "" {
			name = d.ID
		}
		td := tableDef{
			name:         name,
			hitPolicy:    xmlHitPolicy(d.Table.HitPolicy, d.Table.Aggregation),
			outputValues: make(map[string][]string),
		}
		for _, in := range d.Table.Inputs {
			expr := strings.TrimSpace(in.Expression)
			if expr == "" {
				expr = strings.TrimSpace(in.Label)
			}
			if expr == "" {
				status.Add(decision.Errorf("decision %s has an input without an expression", name))
			}
			td.inputs = append(td.inputs, expr)
		}
		for _, out := range d.Table.Outputs {
			outName := out.Name
			if outName == "" {
				outName = out.Label
			}
			if outName == "" {
				outName = name
			}
			td.outputs = append(td.outputs, outName)
			if values := strings.TrimSpace(out.Values); values != "" {
				td.outputValues[outName] = splitTopLevel(values)
			}
		}
		for _, r := range d.Table.Rules {
			td.rules = append(td.rules, ruleDef{
				id:         r.ID,
				when:       r.Inputs,
				then:       r.Outputs,
				annotation: strings.TrimSpace(r.Description),
			})
		}
		def.tables = append(def.tables, td)
		def.steps = append(def.steps, stepDef{decision: name, table: name})
	}

	if !status.OK() {
		return status
	}
	return en.load(def)
}

// xmlHitPolicy maps DMN hitPolicy and aggregation attributes to the short
// forms. Unknown values pass through to be reported by ParseHitPolicy.
func xmlHitPolicy(policy, aggregation string) string {
	policy = strings.ToUpper(strings.TrimSpace(policy))
	if policy != "COLLECT" {
		return strings.ReplaceAll(policy, "_", " ")
	}
	switch strings.ToUpper(strings.TrimSpace(aggregation)) {
	case "SUM":
		return string(CollectSum)
	case "MIN":
		return string(CollectMin)
	case "MAX":
		return string(CollectMax)
	case "COUNT":
		return string(CollectCnt)
	default:
		return string(Collect)
	}
}
