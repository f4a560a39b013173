package todos

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// truthy applies the usual dynamic-language rule: null, false, zero, the
// empty string, the empty array and the empty object are false.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case json.Number:
		// Out-of-range literals come back as ±Inf or 0 alongside ErrRange.
		f, _ := strconv.ParseFloat(x.String(), 64)
		return f != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}

// truthyJSON decodes raw and reports its truthiness. Undecodable input is false.
func truthyJSON(raw json.RawMessage) bool {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return false
	}
	return truthy(v)
}
