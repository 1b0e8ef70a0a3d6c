package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Lookup resolves a field reference against fields. References use the
// bracket form "[host][name]". A bare name is looked up as a top-level key
// first and as a dotted path ("log.file.path") second.
func Lookup(fields map[string]interface{}, ref string) (interface{}, bool) {
	if fields == nil || ref == "" {
		return nil, false
	}

	if strings.HasPrefix(ref, "[") {
		return walk(fields, parseRef(ref))
	}
	if v, ok := fields[ref]; ok {
		return v, true
	}
	if strings.Contains(ref, ".") {
		return walk(fields, strings.Split(ref, "."))
	}
	return nil, false
}

// LookupString resolves ref and renders it as a string. Missing fields and
// nil values render as "".
func LookupString(fields map[string]interface{}, ref string) string {
	v, ok := Lookup(fields, ref)
	if !ok {
		return ""
	}
	return toString(v)
}

func parseRef(ref string) []string {
	var path []string
	for _, part := range strings.Split(ref, "]") {
		part = strings.TrimPrefix(part, "[")
		if part != "" {
			path = append(path, part)
		}
	}
	return path
}

func walk(fields map[string]interface{}, path []string) (interface{}, bool) {
	if len(path) == 0 {
		return nil, false
	}
	var cur interface{} = fields
	for _, key := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case fmt.Stringer:
		return t.String()
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	default:
		return fmt.Sprint(t)
	}
}
