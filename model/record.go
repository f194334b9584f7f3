package model

import (
	"fmt"
	"strconv"
)

// IDNew is the sentinel identifier meaning "no record yet — the client is
// creating one". A session opened with this id starts in insert mode and
// skips the initial fetch.
const IDNew = "new"

// Record is a single entity instance as exchanged with the backend: an
// opaque mapping from field name to scalar or array value.
type Record map[string]any

// StringField returns the value of key rendered as a string. Numeric JSON
// values are formatted without an exponent; absent or nil values yield "".
func (r Record) StringField(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// ID returns the record identifier under the given field, or "" when unset.
func (r Record) ID(idField string) string {
	if idField == "" {
		idField = "id"
	}
	return r.StringField(idField)
}

// Clone returns a deep copy of the record. Nested maps and slices are
// copied recursively so edits on the copy never leak into the original.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return Record(cloneMap(r))
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case Record:
		return Record(cloneMap(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []Record:
		out := make([]Record, len(t))
		for i, e := range t {
			out[i] = e.Clone()
		}
		return out
	default:
		return v
	}
}
