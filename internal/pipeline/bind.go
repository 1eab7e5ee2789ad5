package pipeline

import (
	"context"
	"fmt"

	"github.com/JakeFAU/pagewatch/internal/document"
	"github.com/JakeFAU/pagewatch/internal/registry"
)

// Step is a select operation bound to its arguments.
type Step struct {
	Name string
	Args registry.Args
	run  registry.SelectFunc
}

// Apply runs the step against subject.
func (s Step) Apply(subject document.Fragment) (document.Fragment, error) {
	out, err := s.run(subject, s.Args)
	if err != nil {
		return document.Absent(), fmt.Errorf("%s: %w", s.Name, err)
	}
	return out, nil
}

// Filter is a filter operation bound to its arguments.
type Filter struct {
	Name string
	Args registry.Args
	run  registry.FilterFunc
}

// Accept reports whether subject passes the filter.
func (f Filter) Accept(subject document.Fragment) (bool, error) {
	ok, err := f.run(subject, f.Args)
	if err != nil {
		return false, fmt.Errorf("%s: %w", f.Name, err)
	}
	return ok, nil
}

// Action is an action operation bound to its arguments.
type Action struct {
	Name string
	Args registry.Args
	run  registry.ActionFunc
}

// Run executes the action against subject.
func (a Action) Run(ctx context.Context, subject document.Fragment) error {
	if err := a.run(ctx, subject, a.Args); err != nil {
		return fmt.Errorf("%s: %w", a.Name, err)
	}
	return nil
}
