// Package openapi renders OpenAPI 3.0 documents for decision services. The
// documents are built as YAML node trees so key order follows the glossary
// and repeated calls produce identical bytes.
package openapi

import (
	"bytes"
	"fmt"
	"net/url"

	"gopkg.in/yaml.v3"

	"github.com/liamcoop/decisioncentral/decision"
)

const (
	inputSchema  = "decisionInputData"
	outputSchema = "decisionOutputData"
)

// Document is a generated document without its servers block. It is not
// modified after construction and may be rendered concurrently.
type Document struct {
	root *yaml.Node
}

// Render encodes the document, adding a servers block for serverURL unless
// it is empty.
func (d *Document) Render(serverURL string) ([]byte, error) {
	return render(d.root, serverURL)
}

// Decide renders the document for a service's decide endpoint. When sheet is
// non-empty the document describes the single table endpoint instead.
// serverURL is left out of the document when empty.
func Decide(glossary decision.Glossary, name, sheet, serverURL string) ([]byte, error) {
	return DecideDocument(glossary, name, sheet).Render(serverURL)
}

// DecideDocument builds the decide document for later rendering.
func DecideDocument(glossary decision.Glossary, name, sheet string) *Document {
	title := "Decision Service " + name
	path := "/api/" + url.PathEscape(name)
	if sheet != "" {
		title += " - Decision Table " + sheet
		path = "/api/" + url.PathEscape(name) + "_table/" + url.PathEscape(sheet)
	}

	post := mapping(
		"summary", str(fmt.Sprintf("Use the %s Decision Service to make a decision based upon the passed data", name)),
		"operationId", str("decide"),
		"requestBody", mapping(
			"description", str("json structure with one tag per item of passed data"),
			"content", mapping(
				"application/json", mapping("schema", ref(inputSchema)),
			),
			"required", boolean(true),
		),
		"responses", mapping(
			"200", mapping(
				"description", str("Success"),
				"content", mapping(
					"application/json", mapping("schema", ref(outputSchema)),
				),
			),
		),
	)

	doc := header(title)
	add(doc,
		"paths", mapping(path, mapping("post", post)),
		"components", mapping("schemas", mapping(
			inputSchema, inputData(glossary),
			outputSchema, outputData(glossary),
		)),
	)
	return &Document{root: doc}
}

func inputData(glossary decision.Glossary) *yaml.Node {
	props := mapping()
	for _, concept := range glossary {
		if concept.Name != decision.DataConcept {
			attrs := mapping()
			for _, v := range concept.Variables {
				addOnce(attrs, v.Attribute(), stringType())
			}
			addOnce(props, concept.Name, mapping("type", str("object"), "properties", attrs))
		}
		for _, v := range concept.Variables {
			addOnce(props, v.Name, stringType())
		}
	}
	return mapping("type", str("object"), "properties", props)
}

func outputData(glossary decision.Glossary) *yaml.Node {
	result := mapping()
	for _, v := range glossary.Variables() {
		addOnce(result, v.Name, stringOrList())
	}
	return mapping(
		"type", str("object"),
		"properties", mapping(
			"Result", mapping("type", str("object"), "properties", result),
			"Executed Rule", mapping("type", str("array"), "items", stringOrList()),
			"Status", mapping(
				"type", str("object"),
				"properties", mapping(
					"errors", mapping("type", str("array"), "items", stringType()),
				),
			),
		),
		"required", sequence(str("Result"), str("Executed Rule"), str("Status")),
	)
}

func stringType() *yaml.Node {
	return mapping("type", str("string"))
}

// stringOrList is the value shape of a result variable: a single value, or a
// list of values when a collecting hit policy fired.
func stringOrList() *yaml.Node {
	return mapping("oneOf", sequence(
		stringType(),
		mapping("type", str("array"), "items", stringType()),
	))
}

func ref(schema string) *yaml.Node {
	return mapping("$ref", str("#/components/schemas/"+schema))
}

// header starts a document with the openapi and info keys.
func header(title string) *yaml.Node {
	return mapping(
		"openapi", str("3.0.0"),
		"info", mapping(
			"title", str(title),
			"version", str("1.0.0"),
		),
	)
}

// headerPairs is the number of key and value nodes header emits.
const headerPairs = 4

// render encodes doc with the servers block placed after the header. doc is
// only read, so shared trees can be rendered from several goroutines.
func render(doc *yaml.Node, serverURL string) ([]byte, error) {
	if serverURL != "" {
		top := *doc
		top.Content = make([]*yaml.Node, 0, len(doc.Content)+2)
		top.Content = append(top.Content, doc.Content[:headerPairs]...)
		top.Content = append(top.Content, str("servers"), sequence(mapping("url", str(serverURL))))
		top.Content = append(top.Content, doc.Content[headerPairs:]...)
		doc = &top
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode OpenAPI document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode OpenAPI document: %w", err)
	}
	return buf.Bytes(), nil
}

func str(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func boolean(v bool) *yaml.Node {
	value := "false"
	if v {
		value = "true"
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: value}
}

func sequence(items ...*yaml.Node) *yaml.Node {
	return &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Content: items}
}

// mapping builds a mapping node from alternating keys and values.
func mapping(kv ...any) *yaml.Node {
	m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	add(m, kv...)
	return m
}

func add(m *yaml.Node, kv ...any) {
	for i := 0; i+1 < len(kv); i += 2 {
		m.Content = append(m.Content, str(kv[i].(string)), kv[i+1].(*yaml.Node))
	}
}

// addOnce appends key unless the mapping already holds it.
func addOnce(m *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return
		}
	}
	add(m, key, value)
}
