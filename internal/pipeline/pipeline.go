// Package pipeline binds the function references of a watch configuration to
// registered operations, producing executable select chains and filter-gated
// action groups.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/JakeFAU/pagewatch/internal/document"
	"github.com/JakeFAU/pagewatch/internal/registry"
	"github.com/JakeFAU/pagewatch/internal/rules"
)

// Pipelines holds the bound targets of every configured URL.
type Pipelines struct {
	urls    []string
	targets map[string][]Target
}

// URLs returns the configured URLs in first-seen order.
func (p *Pipelines) URLs() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.urls...)
}

// Targets returns the bound targets for a normalized URL.
func (p *Pipelines) Targets(url string) []Target {
	if p == nil {
		return nil
	}
	return p.targets[url]
}

// Target is one bound watch rule.
type Target struct {
	URL   string
	Index int
	Steps []Step
	Pairs []Pair
}

// Select applies the chain to doc. Once a step's input is empty the chain
// stops and the result is absent; an empty final result is absent as well.
func (t Target) Select(doc *document.Document) (document.Fragment, error) {
	if doc == nil {
		return document.Absent(), nil
	}
	subject := doc.Root()
	for i, step := range t.Steps {
		if subject.Empty() {
			return document.Absent(), nil
		}
		out, err := step.Apply(subject)
		if err != nil {
			return document.Absent(), fmt.Errorf("select step %d: %w", i, err)
		}
		subject = out
	}
	if subject.Empty() {
		return document.Absent(), nil
	}
	return subject, nil
}

// Pair is a bound filter-action pair.
type Pair struct {
	Filters []Filter
	Actions []Action
}

// Accepts reports whether every filter accepts subject. Filters run in order
// and evaluation stops at the first rejection or error.
func (p Pair) Accepts(subject document.Fragment) (bool, error) {
	for _, f := range p.Filters {
		ok, err := f.Accept(subject)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// ActionResult is the outcome of one action run by Fire.
type ActionResult struct {
	Name string
	Err  error
}

// Fire runs every action in order. A failing action does not stop the ones
// after it.
func (p Pair) Fire(ctx context.Context, subject document.Fragment) []ActionResult {
	results := make([]ActionResult, 0, len(p.Actions))
	for _, a := range p.Actions {
		results = append(results, ActionResult{Name: a.Name, Err: a.Run(ctx, subject)})
	}
	return results
}

type builder struct {
	reg  *registry.Registry
	errs []error
}

// Build resolves every function reference in cfg against reg. All resolution
// failures are reported together as joined *ResolutionError values.
func Build(cfg *rules.Config, reg *registry.Registry) (*Pipelines, error) {
	if reg == nil {
		return nil, errors.New("build pipelines: nil registry")
	}
	b := &builder{reg: reg}
	p := &Pipelines{
		urls:    cfg.URLs(),
		targets: make(map[string][]Target, cfg.Len()),
	}
	for _, url := range p.urls {
		specs := cfg.Targets(url)
		targets := make([]Target, 0, len(specs))
		for i, spec := range specs {
			targets = append(targets, b.target(url, i, spec))
		}
		p.targets[url] = targets
	}
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	return p, nil
}

func (b *builder) target(url string, index int, spec rules.TargetSpec) Target {
	base := []string{"toplevel", url, strconv.Itoa(index)}
	t := Target{URL: url, Index: index}
	for i, fn := range spec.Select {
		if step, ok := b.step(fn, at(base, rules.KeySelectChain, i)); ok {
			t.Steps = append(t.Steps, step)
		}
	}
	for i, ps := range spec.Pairs {
		pairPath := at(base, rules.KeyPairs, i)
		var pair Pair
		for j, fn := range ps.Filters {
			if f, ok := b.filter(fn, at(pairPath, rules.KeyFilters, j)); ok {
				pair.Filters = append(pair.Filters, f)
			}
		}
		for j, fn := range ps.Actions {
			if a, ok := b.action(fn, at(pairPath, rules.KeyActions, j)); ok {
				pair.Actions = append(pair.Actions, a)
			}
		}
		t.Pairs = append(t.Pairs, pair)
	}
	return t
}

func at(base []string, key string, i int) []string {
	path := make([]string, 0, len(base)+2)
	path = append(path, base...)
	return append(path, key, strconv.Itoa(i))
}

// check records a resolution failure when the op is missing or its check fails.
func (b *builder) check(fn rules.FunctionSpec, role registry.Role, path []string, found bool, check registry.CheckFunc, args registry.Args) bool {
	var err error
	switch {
	case !found:
		err = ErrUnknownFunction
	case check != nil:
		err = check(args)
	}
	if err != nil {
		b.errs = append(b.errs, &ResolutionError{Name: fn.Name, Role: role, Path: path, Err: err})
		return false
	}
	return true
}

func (b *builder) step(fn rules.FunctionSpec, path []string) (Step, bool) {
	op, found := b.reg.Select(fn.Name)
	args := registry.NewArgs(fn.Args, fn.Kwargs)
	if !b.check(fn, registry.RoleSelect, path, found, op.Check, args) {
		return Step{}, false
	}
	return Step{Name: fn.Name, Args: args, run: op.Run}, true
}

func (b *builder) filter(fn rules.FunctionSpec, path []string) (Filter, bool) {
	op, found := b.reg.Filter(fn.Name)
	args := registry.NewArgs(fn.Args, fn.Kwargs)
	if !b.check(fn, registry.RoleFilter, path, found, op.Check, args) {
		return Filter{}, false
	}
	return Filter{Name: fn.Name, Args: args, run: op.Run}, true
}

func (b *builder) action(fn rules.FunctionSpec, path []string) (Action, bool) {
	op, found := b.reg.Action(fn.Name)
	args := registry.NewArgs(fn.Args, fn.Kwargs)
	if !b.check(fn, registry.RoleAction, path, found, op.Check, args) {
		return Action{}, false
	}
	return Action{Name: fn.Name, Args: args, run: op.Run}, true
}
