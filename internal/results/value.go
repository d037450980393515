package results

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Kind tags the variant held by a Value
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Value is a decoded JSON document as a tagged union
type Value struct {
	Kind   Kind
	Bool   bool
	Number json.Number
	String string
	Array  []Value
	// Object keeps keys sorted so walks are deterministic
	Object []Field
}

// Field is one key/value pair of an object
type Field struct {
	Key   string
	Value Value
}

// Decode parses raw JSON into a Value
func Decode(raw []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, fmt.Errorf("failed to decode result payload: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, fmt.Errorf("failed to decode result payload: trailing data")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}

	switch t := tok.(type) {
	case nil:
		return Value{Kind: KindNull}, nil
	case bool:
		return Value{Kind: KindBool, Bool: t}, nil
	case json.Number:
		return Value{Kind: KindNumber, Number: t}, nil
	case string:
		return Value{Kind: KindString, String: t}, nil
	case json.Delim:
		switch t {
		case '[':
			var items []Value
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Value{Kind: KindArray, Array: items}, nil
		case '{':
			var fields []Field
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("unexpected object key %v", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				fields = append(fields, Field{Key: key, Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			sort.SliceStable(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })
			return Value{Kind: KindObject, Object: fields}, nil
		}
	}
	return Value{}, fmt.Errorf("unexpected token %v", tok)
}

// Get returns the field value of an object, if present
func (v Value) Get(key string) (Value, bool) {
	if v.Kind != KindObject {
		return Value{}, false
	}
	i := sort.Search(len(v.Object), func(i int) bool { return v.Object[i].Key >= key })
	if i < len(v.Object) && v.Object[i].Key == key {
		return v.Object[i].Value, true
	}
	return Value{}, false
}

// Text renders scalars as text; containers and null render empty
func (v Value) Text() string {
	switch v.Kind {
	case KindString:
		return v.String
	case KindNumber:
		return v.Number.String()
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

// Contains reports whether needle occurs, case-insensitively, in any scalar
// or object key at any depth. An empty needle matches everything.
func (v Value) Contains(needle string) bool {
	if needle == "" {
		return true
	}
	return v.contains(strings.ToLower(needle))
}

func (v Value) contains(needle string) bool {
	switch v.Kind {
	case KindArray:
		for _, item := range v.Array {
			if item.contains(needle) {
				return true
			}
		}
		return false
	case KindObject:
		for _, f := range v.Object {
			if strings.Contains(strings.ToLower(f.Key), needle) || f.Value.contains(needle) {
				return true
			}
		}
		return false
	case KindNull:
		return false
	default:
		return strings.Contains(strings.ToLower(v.Text()), needle)
	}
}

// Walk visits every object field at any depth, depth-first
func (v Value) Walk(fn func(key string, val Value)) {
	switch v.Kind {
	case KindArray:
		for _, item := range v.Array {
			item.Walk(fn)
		}
	case KindObject:
		for _, f := range v.Object {
			fn(f.Key, f.Value)
			f.Value.Walk(fn)
		}
	}
}
