package cli

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/vmihailenco/msgpack/v5"
)

// Value encodings reported by renderValue.
const (
	encodingJSON    = "json"
	encodingText    = "text"
	encodingMsgpack = "msgpack"
	encodingHex     = "hex"
)

// renderValue formats a stored value for display. JSON is indented,
// printable UTF-8 is shown as is, a complete msgpack document is shown as
// JSON, and anything else is hex dumped.
func renderValue(v []byte) (encoding, text string) {
	if len(v) > 0 && json.Valid(v) {
		var buf bytes.Buffer
		if err := json.Indent(&buf, v, "", "  "); err == nil {
			return encodingJSON, buf.String()
		}
	}
	if isPrintable(v) {
		return encodingText, string(v)
	}
	if out, ok := msgpackAsJSON(v); ok {
		return encodingMsgpack, out
	}
	return encodingHex, hex.Dump(v)
}

func isPrintable(v []byte) bool {
	if len(v) == 0 || !utf8.Valid(v) {
		return false
	}
	for _, r := range string(v) {
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// msgpackAsJSON decodes v as exactly one msgpack value.
func msgpackAsJSON(v []byte) (string, bool) {
	r := bytes.NewReader(v)
	dec := msgpack.NewDecoder(r)
	var decoded any
	if err := dec.Decode(&decoded); err != nil || r.Len() != 0 {
		return "", false
	}
	out, err := json.MarshalIndent(jsonSafe(decoded), "", "  ")
	if err != nil {
		return "", false
	}
	return string(out), true
}

// jsonSafe rewrites decoded msgpack so encoding/json accepts it.
func jsonSafe(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = jsonSafe(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = jsonSafe(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = jsonSafe(e)
		}
		return out
	case []byte:
		return hex.EncodeToString(t)
	default:
		return v
	}
}

// encodeMsgpack converts a JSON document to msgpack, for seeding fixtures.
func encodeMsgpack(jsonValue string) ([]byte, error) {
	var v any
	if err := json.Unmarshal([]byte(jsonValue), &v); err != nil {
		return nil, fmt.Errorf("value is not JSON: %w", err)
	}
	return msgpack.Marshal(v)
}
