package notify

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// tokenPattern matches placeholder tokens of the form #Dotted.Path#.
var tokenPattern = regexp.MustCompile(`#([A-Za-z0-9_]+(?:\.[A-Za-z0-9_]+)*)#`)

// cleanupPattern matches the token families that are blanked rather than
// left visible when no value resolved: action detail fields, additional
// data fields, and approver notes.
var cleanupPattern = regexp.MustCompile(`#(?:ActionDetails|AdditionalData)(?:\.[A-Za-z0-9_]+)+#|#ApproverNotes#`)

// Substitute performs a single substitution pass. Tokens without a value
// are left in place; substituted values may themselves contain tokens.
func Substitute(tpl string, values map[string]string) string {
	return tokenPattern.ReplaceAllStringFunc(tpl, func(tok string) string {
		name := tok[1 : len(tok)-1]
		if v, ok := values[name]; ok {
			return v
		}
		return tok
	})
}

// Render runs the full substitution pipeline: a tentative pass that may
// expand composite values such as detail blocks, an authoritative pass
// that resolves the tokens those values introduced, and a cleanup pass
// that blanks the optional token families that remained unresolved.
func Render(tpl string, values map[string]string) string {
	out := Substitute(tpl, values)
	out = Substitute(out, values)
	return cleanupPattern.ReplaceAllString(out, "")
}

// FlattenSummary decodes a summary JSON document into a flat placeholder
// map. Nested objects become dotted paths, array elements indexed paths.
// Numbers keep their source representation.
func FlattenSummary(summaryJSON string) (map[string]string, error) {
	dec := json.NewDecoder(strings.NewReader(summaryJSON))
	dec.UseNumber()
	var root interface{}
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("decoding summary json: %w", err)
	}
	out := make(map[string]string)
	flattenValue("", root, out)
	return out, nil
}

// FlattenRaw flattens a single raw JSON value into values under prefix.
func FlattenRaw(prefix string, raw json.RawMessage, values map[string]string) {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		values[prefix] = string(raw)
		return
	}
	flattenValue(prefix, v, values)
}

func flattenValue(prefix string, v interface{}, out map[string]string) {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, child := range t {
			flattenValue(joinPath(prefix, k), child, out)
		}
	case []interface{}:
		for i, child := range t {
			flattenValue(joinPath(prefix, strconv.Itoa(i)), child, out)
		}
	case json.Number:
		out[prefix] = t.String()
	case string:
		out[prefix] = t
	case bool:
		out[prefix] = strconv.FormatBool(t)
	case nil:
		if prefix != "" {
			out[prefix] = ""
		}
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
