package rules

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrorKind classifies a structural violation.
type ErrorKind string

// Violation kinds.
const (
	WrongType     ErrorKind = "wrong-type"
	MissingKey    ErrorKind = "missing-key"
	UnexpectedKey ErrorKind = "unexpected-key"
)

const rootPath = "toplevel"

// ValidationError is one structural violation at an exact path.
type ValidationError struct {
	Path []string
	Kind ErrorKind
	// Key is the missing or unexpected key; Expected the wanted type.
	Key      string
	Expected string
}

func (e ValidationError) Error() string {
	path := strings.Join(e.Path, " -> ")
	switch e.Kind {
	case MissingKey:
		return fmt.Sprintf("%s: missing key `%s`", path, e.Key)
	case UnexpectedKey:
		return fmt.Sprintf("%s: unexpected key `%s`", path, e.Key)
	default:
		return fmt.Sprintf("%s: expected %s", path, e.Expected)
	}
}

// ValidationErrors is every violation found in a configuration.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("invalid watch config (%d errors):\n%s", len(errs), strings.Join(msgs, "\n"))
}

type validator struct {
	errs ValidationErrors
}

// Validate checks the structure of a decoded configuration and returns every
// violation. An empty result means the tree can be parsed.
func Validate(tree any) ValidationErrors {
	v := &validator{}
	v.root(tree)
	return v.errs
}

func (v *validator) add(path []string, kind ErrorKind, key, expected string) {
	v.errs = append(v.errs, ValidationError{
		Path:     append([]string(nil), path...),
		Kind:     kind,
		Key:      key,
		Expected: expected,
	})
}

func (v *validator) root(tree any) {
	path := []string{rootPath}
	members, ok := asMembers(tree)
	if !ok {
		v.add(path, WrongType, "", "mapping")
		return
	}
	for _, m := range members {
		targetsPath := appendPath(path, m.Key)
		targets, ok := m.Value.([]any)
		if !ok {
			v.add(targetsPath, WrongType, "", "sequence")
			continue
		}
		for i, t := range targets {
			v.target(t, appendPath(targetsPath, strconv.Itoa(i)))
		}
	}
}

func (v *validator) target(node any, path []string) {
	obj, ok := node.(map[string]any)
	if !ok {
		v.add(path, WrongType, "", "mapping")
		return
	}
	v.sequence(obj, path, KeySelectChain, v.function)
	v.sequence(obj, path, KeyPairs, v.pair)
	v.unexpected(obj, path, KeySelectChain, KeyPairs)
}

func (v *validator) pair(node any, path []string) {
	obj, ok := node.(map[string]any)
	if !ok {
		v.add(path, WrongType, "", "mapping")
		return
	}
	v.sequence(obj, path, KeyFilters, v.function)
	v.sequence(obj, path, KeyActions, v.function)
	v.unexpected(obj, path, KeyFilters, KeyActions)
}

func (v *validator) function(node any, path []string) {
	obj, ok := node.(map[string]any)
	if !ok {
		v.add(path, WrongType, "", "mapping")
		return
	}
	if name, ok := obj[KeyFunction]; !ok {
		v.add(path, MissingKey, KeyFunction, "")
	} else if _, ok := name.(string); !ok {
		v.add(appendPath(path, KeyFunction), WrongType, "", "string")
	}
	if args, ok := obj[KeyArgs]; !ok {
		v.add(path, MissingKey, KeyArgs, "")
	} else if _, ok := args.([]any); !ok {
		v.add(appendPath(path, KeyArgs), WrongType, "", "sequence")
	}
	if kwargs, ok := obj[KeyKwargs]; !ok {
		v.add(path, MissingKey, KeyKwargs, "")
	} else if _, ok := kwargs.(map[string]any); !ok {
		v.add(appendPath(path, KeyKwargs), WrongType, "", "mapping")
	}
	v.unexpected(obj, path, KeyFunction, KeyArgs, KeyKwargs)
}

// sequence checks that obj[key] exists and is a list, then validates each item.
func (v *validator) sequence(obj map[string]any, path []string, key string, item func(any, []string)) {
	value, ok := obj[key]
	if !ok {
		v.add(path, MissingKey, key, "")
		return
	}
	items, ok := value.([]any)
	if !ok {
		v.add(appendPath(path, key), WrongType, "", "sequence")
		return
	}
	for i, it := range items {
		item(it, appendPath(path, key, strconv.Itoa(i)))
	}
}

func (v *validator) unexpected(obj map[string]any, path []string, allowed ...string) {
	var extra []string
	for k := range obj {
		if !contains(allowed, k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		v.add(path, UnexpectedKey, k, "")
	}
}

// asMembers accepts the ordered top-level Object as well as a plain map, which
// is visited in key order.
func asMembers(tree any) ([]Member, bool) {
	switch t := tree.(type) {
	case Object:
		return t, true
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		members := make([]Member, 0, len(keys))
		for _, k := range keys {
			members = append(members, Member{Key: k, Value: t[k]})
		}
		return members, true
	default:
		return nil, false
	}
}

func appendPath(path []string, elems ...string) []string {
	out := make([]string, 0, len(path)+len(elems))
	out = append(out, path...)
	return append(out, elems...)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
