package registry

import (
	"fmt"

	"github.com/spf13/cast"
)

// Args are the arguments bound to an operation, after the implicit subject.
type Args struct {
	Positional []any
	Named      map[string]any
}

// NewArgs copies the decoded JSON arguments.
func NewArgs(positional []any, named map[string]any) Args {
	a := Args{
		Positional: append([]any(nil), positional...),
		Named:      make(map[string]any, len(named)),
	}
	for k, v := range named {
		a.Named[k] = v
	}
	return a
}

// Len is the number of positional arguments.
func (a Args) Len() int {
	return len(a.Positional)
}

// Require fails unless at least n positional arguments are present.
func (a Args) Require(n int) error {
	if len(a.Positional) < n {
		return fmt.Errorf("expected at least %d positional arguments, got %d", n, len(a.Positional))
	}
	return nil
}

// String returns positional argument i as a string.
func (a Args) String(i int) (string, error) {
	if i >= len(a.Positional) {
		return "", fmt.Errorf("missing positional argument %d", i)
	}
	s, err := cast.ToStringE(a.Positional[i])
	if err != nil {
		return "", fmt.Errorf("argument %d: %w", i, err)
	}
	return s, nil
}

// StringOr returns positional argument i as a string, or def when absent.
func (a Args) StringOr(i int, def string) (string, error) {
	if i >= len(a.Positional) {
		return def, nil
	}
	return a.String(i)
}

// Int returns positional argument i as an int.
func (a Args) Int(i int) (int, error) {
	if i >= len(a.Positional) {
		return 0, fmt.Errorf("missing positional argument %d", i)
	}
	n, err := cast.ToIntE(a.Positional[i])
	if err != nil {
		return 0, fmt.Errorf("argument %d: %w", i, err)
	}
	return n, nil
}

// NamedString returns a keyword argument as a string, or def when absent.
func (a Args) NamedString(key, def string) (string, error) {
	v, ok := a.Named[key]
	if !ok {
		return def, nil
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", fmt.Errorf("keyword %q: %w", key, err)
	}
	return s, nil
}

// NamedInt returns a keyword argument as an int, or def when absent.
func (a Args) NamedInt(key string, def int) (int, error) {
	v, ok := a.Named[key]
	if !ok {
		return def, nil
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, fmt.Errorf("keyword %q: %w", key, err)
	}
	return n, nil
}

// NamedBool returns a keyword argument as a bool, or def when absent.
func (a Args) NamedBool(key string, def bool) (bool, error) {
	v, ok := a.Named[key]
	if !ok {
		return def, nil
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, fmt.Errorf("keyword %q: %w", key, err)
	}
	return b, nil
}

// NamedStringMap returns a keyword argument holding a string mapping.
func (a Args) NamedStringMap(key string) (map[string]string, error) {
	v, ok := a.Named[key]
	if !ok {
		return nil, nil
	}
	m, err := cast.ToStringMapStringE(v)
	if err != nil {
		return nil, fmt.Errorf("keyword %q: %w", key, err)
	}
	return m, nil
}
