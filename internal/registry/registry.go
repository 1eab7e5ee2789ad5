// Package registry holds the named operations a watch configuration can refer
// to. Each role (select, filter, action) has its own table and signature;
// names never resolve across roles.
package registry

import (
	"context"
	"sort"

	"github.com/JakeFAU/pagewatch/internal/document"
)

// Role identifies which table a name resolves against.
type Role uint8

// Roles of a registered operation.
const (
	RoleSelect Role = iota
	RoleFilter
	RoleAction
)

func (r Role) String() string {
	switch r {
	case RoleSelect:
		return "select"
	case RoleFilter:
		return "filter"
	case RoleAction:
		return "action"
	default:
		return "unknown"
	}
}

// SelectFunc derives the next fragment from a subject.
type SelectFunc func(subject document.Fragment, args Args) (document.Fragment, error)

// FilterFunc accepts or rejects a subject.
type FilterFunc func(subject document.Fragment, args Args) (bool, error)

// ActionFunc reacts to a changed subject. The error is only reported.
type ActionFunc func(ctx context.Context, subject document.Fragment, args Args) error

// CheckFunc validates bound arguments when a pipeline is built.
type CheckFunc func(args Args) error

// SelectOp is a registered select operation.
type SelectOp struct {
	Run   SelectFunc
	Check CheckFunc
}

// FilterOp is a registered filter operation.
type FilterOp struct {
	Run   FilterFunc
	Check CheckFunc
}

// ActionOp is a registered action operation.
type ActionOp struct {
	Run   ActionFunc
	Check CheckFunc
}

// Registry is the set of operations available to a run.
type Registry struct {
	selects map[string]SelectOp
	filters map[string]FilterOp
	actions map[string]ActionOp
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		selects: make(map[string]SelectOp),
		filters: make(map[string]FilterOp),
		actions: make(map[string]ActionOp),
	}
}

// RegisterSelect adds or replaces a select operation.
func (r *Registry) RegisterSelect(name string, op SelectOp) {
	r.selects[name] = op
}

// RegisterFilter adds or replaces a filter operation.
func (r *Registry) RegisterFilter(name string, op FilterOp) {
	r.filters[name] = op
}

// RegisterAction adds or replaces an action operation.
func (r *Registry) RegisterAction(name string, op ActionOp) {
	r.actions[name] = op
}

// Select looks up a select operation.
func (r *Registry) Select(name string) (SelectOp, bool) {
	op, ok := r.selects[name]
	return op, ok && op.Run != nil
}

// Filter looks up a filter operation.
func (r *Registry) Filter(name string) (FilterOp, bool) {
	op, ok := r.filters[name]
	return op, ok && op.Run != nil
}

// Action looks up an action operation.
func (r *Registry) Action(name string) (ActionOp, bool) {
	op, ok := r.actions[name]
	return op, ok && op.Run != nil
}

// Names lists the registered names for a role in sorted order.
func (r *Registry) Names(role Role) []string {
	var names []string
	switch role {
	case RoleSelect:
		names = keys(r.selects)
	case RoleFilter:
		names = keys(r.filters)
	case RoleAction:
		names = keys(r.actions)
	}
	sort.Strings(names)
	return names
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
