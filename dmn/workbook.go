package dmn

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/liamcoop/decisioncentral/decision"
	"github.com/liamcoop/decisioncentral/feel"
)

// workbook is the YAML (or JSON) source format:
//
//	glossaryNames: [Glossary, Annotation]
//	glossary:
//	  - concept: Applicant
//	    variables:
//	      - {name: Age, attribute: age, sample: "30", annotations: [years]}
//	decision:
//	  name: Determine Premium
//	  steps:
//	    - {decision: Assess risk, table: Risk}
//	    - {decision: Price, table: Premium, when: {Risk: '"high"'}}
//	tables:
//	  - name: Risk
//	    hitPolicy: U
//	    inputs: [Age]
//	    outputs: [Risk]
//	    rules:
//	      - {id: R1, when: {Age: "< 25"}, then: {Risk: '"high"'}}
//	      - {id: R2, when: ["-"], then: ['"low"']}
//
// Rule and condition cells may be keyed by column name or listed by position.
type workbook struct {
	GlossaryNames []string       `yaml:"glossaryNames"`
	Glossary      []conceptEntry `yaml:"glossary"`
	Decision      struct {
		Name  string      `yaml:"name"`
		Steps []stepEntry `yaml:"steps"`
	} `yaml:"decision"`
	Tables []tableEntry `yaml:"tables"`
}

type conceptEntry struct {
	Concept   string          `yaml:"concept"`
	Variables []variableEntry `yaml:"variables"`
}

type variableEntry struct {
	Name        string   `yaml:"name"`
	Attribute   string   `yaml:"attribute"`
	Sample      string   `yaml:"sample"`
	Annotations []string `yaml:"annotations"`
}

type stepEntry struct {
	Decision string `yaml:"decision"`
	Table    string `yaml:"table"`
	When     cells  `yaml:"when"`
}

type tableEntry struct {
	Name         string              `yaml:"name"`
	HitPolicy    string              `yaml:"hitPolicy"`
	Inputs       []string            `yaml:"inputs"`
	Outputs      []string            `yaml:"outputs"`
	OutputValues map[string][]string `yaml:"outputValues"`
	Rules        []ruleEntry         `yaml:"rules"`
}

type ruleEntry struct {
	ID         string `yaml:"id"`
	When       cells  `yaml:"when"`
	Then       cells  `yaml:"then"`
	Annotation string `yaml:"annotation"`
}

// cells holds a row of cells given either as a mapping or a sequence.
type cells struct {
	keys   []string
	byName map[string]string
	list   []string
	keyed  bool
}

func (c *cells) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.MappingNode:
		c.keyed = true
		c.byName = make(map[string]string, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, value := n.Content[i], n.Content[i+1]
			if value.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: cell %s must be a scalar", value.Line, key.Value)
			}
			c.keys = append(c.keys, key.Value)
			c.byName[key.Value] = value.Value
		}
	case yaml.SequenceNode:
		for _, item := range n.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: cell must be a scalar", item.Line)
			}
			c.list = append(c.list, item.Value)
		}
	default:
		return fmt.Errorf("line %d: cells must be a mapping or a sequence", n.Line)
	}
	return nil
}

func (c cells) aligned(names []string) ([]string, error) {
	if !c.keyed {
		if c.list == nil {
			return align(names, nil)
		}
		return c.list, nil
	}
	return align(names, c.byName)
}

// Use loads a YAML or JSON workbook, replacing anything loaded before.
func (en *Engine) Use(data []byte) decision.Status {
	var wb workbook
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&wb); err != nil {
		if errors.Is(err, io.EOF) {
			return decision.Errorf("empty workbook")
		}
		return decision.Errorf("failed to parse workbook: %v", err)
	}

	def := definition{
		glossaryNames:  wb.GlossaryNames,
		deriveGlossary: len(wb.Glossary) == 0,
		decisionName:   wb.Decision.Name,
	}
	var status decision.Status
	for _, ce := range wb.Glossary {
		concept := decision.Concept{Name: ce.Concept}
		if concept.Name == "" {
			concept.Name = decision.DataConcept
		}
		for _, ve := range ce.Variables {
			if ve.Name == "" {
				status.Add(decision.Errorf("concept %s has a variable without a name", concept.Name))
				continue
			}
			attr := ve.Attribute
			if attr == "" {
				attr = strings.ReplaceAll(ve.Name, " ", "")
			}
			v := decision.Variable{
				Name:          ve.Name,
				QualifiedName: concept.Name + "." + attr,
				Attributes:    ve.Annotations,
			}
			if ve.Sample != "" {
				sample, err := feel.Parse(ve.Sample)
				if err != nil {
					sample = feel.Text(ve.Sample)
				}
				v.Sample = sample
			}
			concept.Variables = append(concept.Variables, v)
		}
		def.glossary = append(def.glossary, concept)
	}

	for _, se := range wb.Decision.Steps {
		sd := stepDef{decision: se.Decision, table: se.Table}
		if se.When.keyed {
			sd.when = se.When.byName
			sd.order = se.When.keys
		} else if len(se.When.list) > 0 {
			status.Add(decision.Errorf("decision %s: conditions must be keyed by variable", se.Decision))
		}
		def.steps = append(def.steps, sd)
	}

	for _, te := range wb.Tables {
		td := tableDef{
			name:         te.Name,
			hitPolicy:    te.HitPolicy,
			inputs:       te.Inputs,
			outputs:      te.Outputs,
			outputValues: te.OutputValues,
		}
		for i, re := range te.Rules {
			when, err := re.When.aligned(te.Inputs)
			if err != nil {
				status.Add(decision.Errorf("table %s rule %d inputs: %v", te.Name, i+1, err))
				continue
			}
			then, err := re.Then.aligned(te.Outputs)
			if err != nil {
				status.Add(decision.Errorf("table %s rule %d outputs: %v", te.Name, i+1, err))
				continue
			}
			td.rules = append(td.rules, ruleDef{id: re.ID, when: when, then: then, annotation: re.Annotation})
		}
		def.tables = append(def.tables, td)
	}

	if !status.OK() {
		return status
	}
	return en.load(def)
}
