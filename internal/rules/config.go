package rules

import (
	"fmt"
	"os"
)

// Load reads, validates and parses the watch configuration at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	tree, err := Decode(f)
	if err != nil {
		return nil, err
	}
	return Parse(tree)
}

// Parse validates a decoded tree and converts it into a Config. Raw URLs that
// normalize to the same key have their rules concatenated in file order. When
// the tree is invalid the returned error is ValidationErrors.
func Parse(tree any) (*Config, error) {
	if errs := Validate(tree); len(errs) > 0 {
		return nil, errs
	}
	members, _ := asMembers(tree)
	cfg := NewConfig()
	for _, m := range members {
		raw := m.Value.([]any)
		targets := make([]TargetSpec, 0, len(raw))
		for _, t := range raw {
			targets = append(targets, toTarget(t.(map[string]any)))
		}
		cfg.Add(m.Key, targets...)
	}
	return cfg, nil
}

func toTarget(obj map[string]any) TargetSpec {
	rawPairs := obj[KeyPairs].([]any)
	pairs := make([]FilterActionPair, 0, len(rawPairs))
	for _, p := range rawPairs {
		pobj := p.(map[string]any)
		pairs = append(pairs, FilterActionPair{
			Filters: toFunctions(pobj[KeyFilters]),
			Actions: toFunctions(pobj[KeyActions]),
		})
	}
	return TargetSpec{
		Select: toFunctions(obj[KeySelectChain]),
		Pairs:  pairs,
	}
}

func toFunctions(node any) []FunctionSpec {
	items := node.([]any)
	out := make([]FunctionSpec, 0, len(items))
	for _, it := range items {
		obj := it.(map[string]any)
		out = append(out, FunctionSpec{
			Name:   obj[KeyFunction].(string),
			Args:   obj[KeyArgs].([]any),
			Kwargs: obj[KeyKwargs].(map[string]any),
		})
	}
	return out
}
