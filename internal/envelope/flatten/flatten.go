package flatten

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrUnsupportedType is returned when a value contains a kind the
// flattener has no encoding for (channels, functions, complex numbers).
var ErrUnsupportedType = errors.New("flatten: unsupported type")

// node is the wire representation of one table slot.
type node struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
	Keys  []string        `json:"keys,omitempty"`
	Refs  []int           `json:"refs,omitempty"`
	Ref   *int            `json:"ref,omitempty"` // single-child container (pointer)
}

type document struct {
	Root  int    `json:"root"`
	Table []node `json:"table"`
}

// encoder walks a value graph once, interning composite references by
// identity so a cycle re-emits an existing table index instead of
// recursing forever.
type encoder struct {
	table []node
	seen  map[uintptr]int
}

// Marshal serializes v into the flat, cycle-tolerant wire format.
func Marshal(v any) ([]byte, error) {
	enc := &encoder{seen: make(map[uintptr]int)}
	root, err := enc.intern(reflect.ValueOf(v))
	if err != nil {
		return nil, err
	}
	return json.Marshal(document{Root: root, Table: enc.table})
}

// reserve appends a placeholder slot and returns its index, so composite
// values can be registered as "seen" before their children are walked
// (this is what makes self-reference possible).
func (e *encoder) reserve() int {
	e.table = append(e.table, node{})
	return len(e.table) - 1
}

func (e *encoder) intern(v reflect.Value) (int, error) {
	if !v.IsValid() {
		return e.scalar("null", nil)
	}

	// A json.RawMessage already holds encoded JSON: flatten the value it
	// encodes rather than its individual bytes, so it decodes back to the
	// same JSON instead of an array of byte values.
	if v.Type() == reflect.TypeOf(json.RawMessage(nil)) {
		if v.Len() == 0 {
			return e.scalar("null", nil)
		}
		var decoded any
		if err := json.Unmarshal(v.Bytes(), &decoded); err != nil {
			return 0, err
		}
		return e.intern(reflect.ValueOf(decoded))
	}

	switch v.Kind() {
	case reflect.Interface:
		return e.intern(v.Elem())

	case reflect.Ptr:
		if v.IsNil() {
			return e.scalar("null", nil)
		}
		if idx, ok := e.seen[v.Pointer()]; ok {
			return idx, nil
		}
		idx := e.reserve()
		e.seen[v.Pointer()] = idx
		inner, err := e.intern(v.Elem())
		if err != nil {
			return 0, err
		}
		e.table[idx] = node{Type: "ptr", Ref: &inner}
		return idx, nil

	case reflect.Map:
		if v.IsNil() {
			return e.scalar("null", nil)
		}
		ptr := v.Pointer()
		if idx, ok := e.seen[ptr]; ok {
			return idx, nil
		}
		idx := e.reserve()
		e.seen[ptr] = idx

		keys := v.MapKeys()
		keyStrs := make([]string, len(keys))
		refs := make([]int, len(keys))
		for i, k := range keys {
			ks, err := mapKeyString(k)
			if err != nil {
				return 0, err
			}
			keyStrs[i] = ks
			ref, err := e.intern(v.MapIndex(k))
			if err != nil {
				return 0, err
			}
			refs[i] = ref
		}
		e.table[idx] = node{Type: "map", Keys: keyStrs, Refs: refs}
		return idx, nil

	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return e.scalar("null", nil)
		}
		var idx int
		if v.Kind() == reflect.Slice {
			ptr := v.Pointer()
			if seenIdx, ok := e.seen[ptr]; ok {
				return seenIdx, nil
			}
			idx = e.reserve()
			e.seen[ptr] = idx
		} else {
			idx = e.reserve()
		}

		refs := make([]int, v.Len())
		for i := 0; i < v.Len(); i++ {
			ref, err := e.intern(v.Index(i))
			if err != nil {
				return 0, err
			}
			refs[i] = ref
		}
		e.table[idx] = node{Type: "slice", Refs: refs}
		return idx, nil

	case reflect.Struct:
		idx := e.reserve()
		t := v.Type()
		var keys []string
		var refs []int
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.PkgPath != "" { // unexported
				continue
			}
			name, omitempty, skip := jsonFieldName(f)
			if skip {
				continue
			}
			fv := v.Field(i)
			if omitempty && fv.IsZero() {
				continue
			}
			ref, err := e.intern(fv)
			if err != nil {
				return 0, err
			}
			keys = append(keys, name)
			refs = append(refs, ref)
		}
		e.table[idx] = node{Type: "map", Keys: keys, Refs: refs}
		return idx, nil

	case reflect.String:
		return e.scalar("string", v.String())

	case reflect.Bool:
		return e.scalar("bool", v.Bool())

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return e.scalar("number", v.Int())

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return e.scalar("number", v.Uint())

	case reflect.Float32, reflect.Float64:
		return e.scalar("number", v.Float())

	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedType, v.Kind())
	}
}

func (e *encoder) scalar(typ string, v any) (int, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	idx := len(e.table)
	e.table = append(e.table, node{Type: typ, Value: raw})
	return idx, nil
}

// jsonFieldName mirrors the subset of encoding/json's struct tag rules
// the flattener needs: a "-" name drops the field, a blank name falls
// back to the Go field name, and a trailing ",omitempty" option is
// reported so the caller can skip zero values the same way json does.
func jsonFieldName(f reflect.StructField) (name string, omitempty bool, skip bool) {
	tag, ok := f.Tag.Lookup("json")
	if !ok || tag == "" {
		return f.Name, false, false
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	if name == "-" && len(parts) == 1 {
		return "", false, true
	}
	if name == "" {
		name = f.Name
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" {
			omitempty = true
		}
	}
	return name, omitempty, false
}

func mapKeyString(k reflect.Value) (string, error) {
	if k.Kind() == reflect.String {
		return k.String(), nil
	}
	return "", fmt.Errorf("%w: non-string map key %s", ErrUnsupportedType, k.Kind())
}

// Unmarshal decodes data produced by Marshal back into dynamic Go values
// (map[string]any, []any, string, float64, bool, nil), preserving the
// identity of any composite that was shared or self-referential in the
// original graph: every occurrence of the same table index decodes to
// the exact same map/slice instance.
func Unmarshal(data []byte) (any, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	values := make([]any, len(doc.Table))
	built := make([]bool, len(doc.Table))

	// pass 1: instantiate every composite container up front so a
	// forward or self reference always finds a live, if partially
	// empty, object instead of nil.
	for i, n := range doc.Table {
		switch n.Type {
		case "map":
			values[i] = make(map[string]any, len(n.Keys))
		case "slice":
			values[i] = make([]any, len(n.Refs))
		}
	}

	var resolve func(i int) (any, error)
	resolve = func(i int) (any, error) {
		if i < 0 || i >= len(doc.Table) {
			return nil, fmt.Errorf("flatten: ref %d out of range", i)
		}
		n := doc.Table[i]
		switch n.Type {
		case "null":
			return nil, nil
		case "string":
			var s string
			if err := json.Unmarshal(n.Value, &s); err != nil {
				return nil, err
			}
			return s, nil
		case "bool":
			var b bool
			if err := json.Unmarshal(n.Value, &b); err != nil {
				return nil, err
			}
			return b, nil
		case "number":
			var f float64
			if err := json.Unmarshal(n.Value, &f); err != nil {
				return nil, err
			}
			return f, nil
		case "ptr":
			// A ptr node is transparent indirection: it decodes to
			// exactly whatever its target decodes to, so identity
			// through a cycle is the target's to preserve (map/slice
			// targets are pre-instantiated reference types; caching a
			// value here too would return a stale nil on re-entry
			// before the target finished resolving).
			return resolve(*n.Ref)
		case "map":
			m := values[i].(map[string]any)
			if built[i] {
				return m, nil
			}
			built[i] = true
			for k, ref := range n.Refs {
				v, err := resolve(ref)
				if err != nil {
					return nil, err
				}
				m[n.Keys[k]] = v
			}
			return m, nil
		case "slice":
			s := values[i].([]any)
			if built[i] {
				return s, nil
			}
			built[i] = true
			for k, ref := range n.Refs {
				v, err := resolve(ref)
				if err != nil {
					return nil, err
				}
				s[k] = v
			}
			return s, nil
		default:
			return nil, fmt.Errorf("%w: table node type %q", ErrUnsupportedType, n.Type)
		}
	}

	return resolve(doc.Root)
}
