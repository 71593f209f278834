package codec

import "github.com/liamcoop/decisioncentral/feel"

// Encode converts a native value into plain Go data ready for JSON or
// template output. Lists and maps are copied; every leaf goes through
// EncodeLiteral.
func Encode(v feel.Value) any {
	switch val := v.(type) {
	case feel.List:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Encode(elem)
		}
		return out
	case feel.Map:
		return EncodeMap(val)
	default:
		return EncodeLiteral(val)
	}
}

// EncodeMap encodes every value of m into a new map.
func EncodeMap(m map[string]feel.Value) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Encode(v)
	}
	return out
}
