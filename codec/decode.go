package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/liamcoop/decisioncentral/feel"
)

// DecodeForm decodes a single form field. The text is first read with the
// YAML flow grammar, so "5", "true", "[1, 2]" and "{a: 1}" become typed
// values; block documents and anything that fails to parse stay strings.
func DecodeForm(raw string) feel.Value {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &doc); err != nil || !isFlowDocument(&doc) {
		return Decode(raw)
	}
	var v any
	if err := doc.Decode(&v); err != nil {
		return Decode(raw)
	}
	return Decode(v)
}

func isFlowDocument(doc *yaml.Node) bool {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return false
	}
	root := doc.Content[0]
	switch root.Kind {
	case yaml.ScalarNode:
		return root.Style&(yaml.LiteralStyle|yaml.FoldedStyle) == 0
	case yaml.MappingNode, yaml.SequenceNode:
		return root.Style&yaml.FlowStyle != 0
	default:
		return false
	}
}

// DecodeJSON reads one JSON document and converts it with Decode. Numbers are
// kept exact so integers and decimals can be told apart.
func DecodeJSON(r io.Reader) (feel.Value, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode JSON body: %w", err)
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, errors.New("failed to decode JSON body: unexpected data after document")
	}
	return Decode(v), nil
}

// Decode converts a generic decoded value into the native model. A top-level
// integer stays an Integer; integers inside lists and maps are promoted to
// Number. Escaped literal strings are parsed at every depth. Decode never
// fails: malformed literals come back as Text.
func Decode(v any) feel.Value {
	return decode(v, true)
}

func decode(v any, top bool) feel.Value {
	switch val := v.(type) {
	case nil:
		return feel.Null{}
	case feel.Value:
		return val
	case bool:
		return feel.Bool(val)
	case int:
		return integer(int64(val), top)
	case int32:
		return integer(int64(val), top)
	case int64:
		return integer(val, top)
	case uint64:
		if val > 1<<63-1 {
			return feel.Number(float64(val))
		}
		return integer(int64(val), top)
	case float32:
		return feel.Number(float64(val))
	case float64:
		return feel.Number(val)
	case json.Number:
		return number(val, top)
	case string:
		if IsEscaped(val) {
			return DecodeLiteral(val)
		}
		return feel.Text(val)
	case time.Time:
		return feel.DateTimeOf(val)
	case []any:
		out := make(feel.List, len(val))
		for i, elem := range val {
			out[i] = decode(elem, false)
		}
		return out
	case map[string]any:
		out := make(feel.Map, len(val))
		for k, elem := range val {
			out[k] = decode(elem, false)
		}
		return out
	case map[any]any:
		out := make(feel.Map, len(val))
		for k, elem := range val {
			out[fmt.Sprint(k)] = decode(elem, false)
		}
		return out
	default:
		return feel.Text(fmt.Sprint(val))
	}
}

func integer(n int64, top bool) feel.Value {
	if top {
		return feel.Integer(n)
	}
	return feel.Number(float64(n))
}

func number(n json.Number, top bool) feel.Value {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return integer(i, top)
		}
	}
	f, err := n.Float64()
	if err != nil {
		return feel.Text(s)
	}
	return feel.Number(f)
}
