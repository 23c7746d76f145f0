package docstore

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

// Encode converts a typed value into its normalized document form.
func Encode(v any) (Document, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return doc, nil
}

// Decode fills v from doc.
func Decode(doc Document, v any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// Normalize returns v in the shape it would have after a store round trip.
func Normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, bool, float64:
		return t, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	return out, nil
}

// Clone deep-copies doc.
func Clone(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Clone(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return t
	}
}

// Equal compares two normalized values.
func Equal(a, b any) bool {
	na, err := Normalize(a)
	if err != nil {
		return false
	}
	nb, err := Normalize(b)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(na, nb)
}

// CheckExpect verifies the preconditions of a patch against the current
// document, which is nil when it does not exist.
func CheckExpect(doc Document, expect map[string]any) error {
	for field, want := range expect {
		got, present := doc[field]
		if want == nil {
			if present {
				return fmt.Errorf("%w: field %q is present", ErrConflict, field)
			}
			continue
		}
		if !present || !Equal(got, want) {
			return fmt.Errorf("%w: field %q is %v, want %v", ErrConflict, field, got, want)
		}
	}
	return nil
}

// Apply checks p's preconditions and returns a new document with the patch
// applied. doc is left untouched.
func Apply(doc Document, p Patch) (Document, error) {
	if err := CheckExpect(doc, p.Expect); err != nil {
		return nil, err
	}
	out := Clone(doc)
	if out == nil {
		out = Document{}
	}
	set, err := NormalizeDocument(p.Set)
	if err != nil {
		return nil, err
	}
	for k, v := range set {
		out[k] = v
	}
	for _, k := range p.Delete {
		delete(out, k)
	}
	return out, nil
}

// NormalizeDocument normalizes every value of doc.
func NormalizeDocument(doc Document) (Document, error) {
	out := make(Document, len(doc))
	for k, v := range doc {
		n, err := Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

// Matches reports whether doc satisfies every filter.
func Matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		got, ok := doc[f.Field]
		switch f.Op {
		case OpEq:
			if !ok || !Equal(got, f.Value) {
				return false
			}
		case OpIn:
			vs, _ := f.Value.([]any)
			found := false
			for _, v := range vs {
				if ok && Equal(got, v) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Compare orders two normalized scalar values: nil first, then numbers,
// then strings, then booleans.
func Compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch x := a.(type) {
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case string:
		return strings.Compare(x, b.(string))
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	}
	return 0
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case float64:
		return 1
	case string:
		return 2
	case bool:
		return 3
	default:
		return 4
	}
}

// Select filters, orders and pages docs according to q. It is the
// reference semantics for backends that evaluate queries in process.
func Select(docs []Document, q Query) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if !Matches(d, q.Filters) {
			continue
		}
		if q.AfterID != "" && q.OrderBy == "" {
			if id, _ := d[IDField].(string); id <= q.AfterID {
				continue
			}
		}
		out = append(out, d)
	}
	field := q.OrderBy
	if field == "" {
		field = IDField
	}
	sort.SliceStable(out, func(i, j int) bool {
		c := Compare(out[i][field], out[j][field])
		if c == 0 {
			c = Compare(out[i][IDField], out[j][IDField])
		}
		if q.Desc {
			return c > 0
		}
		return c < 0
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
