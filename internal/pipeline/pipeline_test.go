package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pagewatch/internal/document"
	"github.com/JakeFAU/pagewatch/internal/registry"
	"github.com/JakeFAU/pagewatch/internal/rules"
)

func fn(name string, args ...any) rules.FunctionSpec {
	return rules.FunctionSpec{Name: name, Args: args, Kwargs: map[string]any{}}
}

func config(url string, targets ...rules.TargetSpec) *rules.Config {
	cfg := rules.NewConfig()
	cfg.Add(url, targets...)
	return cfg
}

func parse(t *testing.T, markup string) *document.Document {
	t.Helper()
	doc, err := document.Parse("http://e/", markup)
	require.NoError(t, err)
	return doc
}

// recorder is an action registry that remembers what ran.
type recorder struct {
	calls []string
}

func (r *recorder) registry() *registry.Registry {
	reg := registry.Default(registry.Deps{})
	reg.RegisterAction("note", registry.ActionOp{Run: func(_ context.Context, subject document.Fragment, args registry.Args) error {
		label, _ := args.StringOr(0, "")
		r.calls = append(r.calls, label+":"+subject.Markup())
		return nil
	}})
	reg.RegisterAction("fail", registry.ActionOp{Run: func(context.Context, document.Fragment, registry.Args) error {
		r.calls = append(r.calls, "fail")
		return errors.New("boom")
	}})
	reg.RegisterFilter("always", registry.FilterOp{Run: func(document.Fragment, registry.Args) (bool, error) { return true, nil }})
	reg.RegisterFilter("never", registry.FilterOp{Run: func(document.Fragment, registry.Args) (bool, error) { return false, nil }})
	reg.RegisterFilter("broken", registry.FilterOp{Run: func(document.Fragment, registry.Args) (bool, error) {
		return false, errors.New("bad filter")
	}})
	return reg
}

func TestBuildBindsEveryRole(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	cfg := config("http://E/x", rules.TargetSpec{
		Select: []rules.FunctionSpec{fn("find", "h1")},
		Pairs: []rules.FilterActionPair{
			{Filters: []rules.FunctionSpec{fn("always")}, Actions: []rules.FunctionSpec{fn("note", "a")}},
		},
	})

	p, err := Build(cfg, rec.registry())
	require.NoError(t, err)
	assert.Equal(t, []string{"http://e/x"}, p.URLs())

	targets := p.Targets("http://e/x")
	require.Len(t, targets, 1)
	assert.Equal(t, "http://e/x", targets[0].URL)
	require.Len(t, targets[0].Steps, 1)
	assert.Equal(t, "find", targets[0].Steps[0].Name)
	assert.Equal(t, []any{"h1"}, targets[0].Steps[0].Args.Positional)
	require.Len(t, targets[0].Pairs, 1)
	assert.Equal(t, "always", targets[0].Pairs[0].Filters[0].Name)
	assert.Equal(t, "note", targets[0].Pairs[0].Actions[0].Name)
}

func TestBuildReportsAllResolutionErrors(t *testing.T) {
	t.Parallel()

	cfg := config("http://e/", rules.TargetSpec{
		Select: []rules.FunctionSpec{fn("find", "h1"), fn("search", "x")},
		Pairs: []rules.FilterActionPair{
			{Filters: []rules.FunctionSpec{fn("find")}, Actions: []rules.FunctionSpec{fn("nope")}},
			{Filters: []rules.FunctionSpec{fn("match", "(")}, Actions: nil},
		},
	})

	p, err := Build(cfg, registry.Default(registry.Deps{}))
	require.Error(t, err)
	assert.Nil(t, p)

	var resolution *ResolutionError
	require.ErrorAs(t, err, &resolution)
	assert.Equal(t, "search", resolution.Name)
	assert.Equal(t, registry.RoleSelect, resolution.Role)
	assert.Equal(t, []string{"toplevel", "http://e/", "0", "select-chain", "1"}, resolution.Path)
	assert.ErrorIs(t, err, ErrUnknownFunction)

	lines := strings.Split(err.Error(), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "toplevel -> http://e/ -> 0 -> select-chain -> 1: select function `search`: unknown function", lines[0])
	assert.Contains(t, lines[1], "filters-actions-pairs -> 0 -> filters -> 0: filter function `find`")
	assert.Contains(t, lines[2], "filters-actions-pairs -> 0 -> actions -> 0: action function `nope`")
	assert.Contains(t, lines[3], "filters-actions-pairs -> 1 -> filters -> 0: filter function `match`")
	assert.Contains(t, lines[3], "compile pattern")
}

func TestBuildRunsBindChecks(t *testing.T) {
	t.Parallel()

	cfg := config("http://e/", rules.TargetSpec{Select: []rules.FunctionSpec{fn("select", "div[")}})

	_, err := Build(cfg, registry.Default(registry.Deps{}))
	var resolution *ResolutionError
	require.ErrorAs(t, err, &resolution)
	assert.NotErrorIs(t, err, ErrUnknownFunction)
	assert.Contains(t, err.Error(), "compile selector")
}

func TestBuildNilRegistry(t *testing.T) {
	t.Parallel()

	_, err := Build(rules.NewConfig(), nil)
	require.Error(t, err)
}

func TestSelectShortCircuits(t *testing.T) {
	t.Parallel()

	calls := 0
	reg := registry.Default(registry.Deps{})
	reg.RegisterSelect("count", registry.SelectOp{Run: func(subject document.Fragment, _ registry.Args) (document.Fragment, error) {
		calls++
		return subject, nil
	}})

	cfg := config("http://e/", rules.TargetSpec{Select: []rules.FunctionSpec{fn("find", "h2"), fn("count"), fn("text")}})
	p, err := Build(cfg, reg)
	require.NoError(t, err)

	got, err := p.Targets("http://e/")[0].Select(parse(t, "<h1>hi</h1>"))
	require.NoError(t, err)
	assert.Equal(t, document.KindAbsent, got.Kind())
	assert.Zero(t, calls, "steps after an empty result are skipped")
}

func TestSelectChainsSteps(t *testing.T) {
	t.Parallel()

	cfg := config("http://e/", rules.TargetSpec{Select: []rules.FunctionSpec{fn("find", "a"), fn("getitem", "href")}})
	p, err := Build(cfg, registry.Default(registry.Deps{}))
	require.NoError(t, err)
	target := p.Targets("http://e/")[0]

	got, err := target.Select(parse(t, `<p><a href="/x">x</a></p>`))
	require.NoError(t, err)
	assert.Equal(t, document.Text("/x"), got)

	none, err := target.Select(nil)
	require.NoError(t, err)
	assert.Equal(t, document.KindAbsent, none.Kind())

	_, err = target.Select(parse(t, `<p><a>x</a></p>`))
	require.ErrorContains(t, err, "select step 1: getitem")
}

func TestEmptyChainSelectsWholeDocument(t *testing.T) {
	t.Parallel()

	cfg := config("http://e/", rules.TargetSpec{})
	p, err := Build(cfg, registry.Default(registry.Deps{}))
	require.NoError(t, err)

	got, err := p.Targets("http://e/")[0].Select(parse(t, "<h1>hi</h1>"))
	require.NoError(t, err)
	assert.Contains(t, got.Markup(), "<h1>hi</h1>")
}

func TestPairAcceptsAndFires(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	cfg := config("http://e/", rules.TargetSpec{
		Pairs: []rules.FilterActionPair{
			{Filters: []rules.FunctionSpec{fn("always"), fn("search_text", "hi")}, Actions: []rules.FunctionSpec{fn("note", "1"), fn("fail"), fn("note", "2")}},
			{Filters: []rules.FunctionSpec{fn("always"), fn("never")}, Actions: []rules.FunctionSpec{fn("note", "3")}},
			{Filters: []rules.FunctionSpec{fn("broken")}, Actions: []rules.FunctionSpec{fn("note", "4")}},
			{Actions: []rules.FunctionSpec{fn("note", "5")}},
		},
	})
	p, err := Build(cfg, rec.registry())
	require.NoError(t, err)
	pairs := p.Targets("http://e/")[0].Pairs
	subject := document.Text("hi")

	ok, err := pairs[0].Accepts(subject)
	require.NoError(t, err)
	require.True(t, ok)
	results := pairs[0].Fire(context.Background(), subject)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.EqualError(t, results[1].Err, "fail: boom")
	assert.NoError(t, results[2].Err)

	ok, err = pairs[1].Accepts(subject)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = pairs[2].Accepts(subject)
	require.ErrorContains(t, err, "broken: bad filter")
	assert.False(t, ok)

	ok, err = pairs[3].Accepts(subject)
	require.NoError(t, err)
	assert.True(t, ok, "a pair without filters always accepts")

	assert.Equal(t, []string{"1:hi", "fail", "2:hi"}, rec.calls)
}

func TestStartResolvesInBackground(t *testing.T) {
	t.Parallel()

	cfg := config("http://e/", rules.TargetSpec{Select: []rules.FunctionSpec{fn("find", "h1")}})
	future := Start(cfg, registry.Default(registry.Deps{}))

	p, err := future.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cfg.URLs(), p.URLs())
	<-future.Done()
}

func TestStartSurfacesErrors(t *testing.T) {
	t.Parallel()

	cfg := config("http://e/", rules.TargetSpec{Select: []rules.FunctionSpec{fn("missing")}})
	_, err := Start(cfg, registry.Default(registry.Deps{})).Wait(context.Background())
	assert.ErrorIs(t, err, ErrUnknownFunction)
}

func TestWaitHonoursContext(t *testing.T) {
	t.Parallel()

	f := &Future{done: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReady(t *testing.T) {
	t.Parallel()

	want := errors.New("nope")
	_, err := Ready(nil, want).Wait(context.Background())
	assert.ErrorIs(t, err, want)
}
