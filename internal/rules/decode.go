package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Member is one key/value pair of an Object.
type Member struct {
	Key   string
	Value any
}

// Object is a JSON object that keeps its members in file order, duplicates
// included. Only the top level of a watch configuration is decoded this way.
type Object []Member

// Decode reads a watch configuration. A top-level object becomes an Object;
// anything else is returned as decoded by encoding/json so Validate can
// report it.
func Decode(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		if err := expectEOF(dec); err != nil {
			return nil, err
		}
		return tok, nil
	}
	var root any
	switch delim {
	case '{':
		root, err = decodeObject(dec)
	case '[':
		root, err = decodeArrayRest(dec)
	default:
		err = fmt.Errorf("unexpected delimiter %q", delim)
	}
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := expectEOF(dec); err != nil {
		return nil, err
	}
	return root, nil
}

func decodeObject(dec *json.Decoder) (Object, error) {
	obj := Object{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("object key %v is not a string", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("value of %q: %w", key, err)
		}
		obj = append(obj, Member{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return obj, nil
}

func decodeArrayRest(dec *json.Decoder) ([]any, error) {
	out := []any{}
	for dec.More() {
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		out = append(out, value)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}

func expectEOF(dec *json.Decoder) error {
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: trailing data after top-level value")
	}
	return nil
}
