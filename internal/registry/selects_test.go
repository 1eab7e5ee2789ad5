package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pagewatch/internal/document"
)

const page = `<html><body>
<div id="main">
  <h1 class="title">Price list</h1>
  <ul class="items">
    <li data-sku="a1">Apple <b>1.00</b></li>
    <li data-sku="b2" class="sale">Banana <b>0.50</b></li>
    <li data-sku="c3">Cherry <b>3.00</b></li>
  </ul>
  <p id="note">Updated <script>track()</script>daily</p>
</div>
<footer><a href="/about">About</a></footer>
</body></html>`

func root(t *testing.T) document.Fragment {
	t.Helper()
	doc, err := document.Parse("http://e/", page)
	require.NoError(t, err)
	return doc.Root()
}

func runSelect(t *testing.T, name string, subject document.Fragment, args Args) document.Fragment {
	t.Helper()
	op, ok := Default(Deps{}).Select(name)
	require.True(t, ok, name)
	if op.Check != nil {
		require.NoError(t, op.Check(args))
	}
	out, err := op.Run(subject, args)
	require.NoError(t, err)
	return out
}

func pos(values ...any) Args {
	return NewArgs(values, nil)
}

func TestFindReturnsFirstMatch(t *testing.T) {
	t.Parallel()

	got := runSelect(t, "find", root(t), pos("li"))
	assert.Equal(t, 1, got.Len())
	assert.Equal(t, "a1", got.Selection().AttrOr("data-sku", ""))
}

func TestFindWithAttrs(t *testing.T) {
	t.Parallel()

	args := NewArgs([]any{"li"}, map[string]any{"attrs": map[string]any{"data-sku": "c3"}})
	got := runSelect(t, "find", root(t), args)
	assert.Contains(t, got.TextValue(), "Cherry")
}

func TestSelectAndFindAll(t *testing.T) {
	t.Parallel()

	all := runSelect(t, "select", root(t), pos("ul.items > li"))
	assert.Equal(t, 3, all.Len())

	limited := runSelect(t, "find_all", root(t), NewArgs([]any{"li"}, map[string]any{"limit": 2}))
	assert.Equal(t, 2, limited.Len())

	everything := runSelect(t, "find_all", root(t), pos())
	assert.Greater(t, everything.Len(), 10)
}

func TestRelativeTraversals(t *testing.T) {
	t.Parallel()

	banana := runSelect(t, "select", root(t), pos("li.sale"))

	assert.Equal(t, "items", runSelect(t, "find_parent", banana, pos("ul")).Selection().AttrOr("class", ""))
	assert.Equal(t, 4, runSelect(t, "find_parents", banana, pos()).Len()) // ul, div, body, html
	assert.Equal(t, "c3", runSelect(t, "find_next_sibling", banana, pos()).Selection().AttrOr("data-sku", ""))
	assert.Equal(t, "a1", runSelect(t, "find_previous_sibling", banana, pos("li")).Selection().AttrOr("data-sku", ""))
	assert.Equal(t, 1, runSelect(t, "find_next_siblings", banana, pos()).Len())
	assert.Equal(t, 1, runSelect(t, "find_previous_siblings", banana, pos()).Len())
	assert.Equal(t, "<b>0.50</b>", runSelect(t, "children", banana, pos()).Markup())
}

func TestDocumentOrderTraversals(t *testing.T) {
	t.Parallel()

	banana := runSelect(t, "select", root(t), pos("li.sale"))

	assert.Equal(t, "<b>0.50</b>", runSelect(t, "find_next", banana, pos("b")).Markup())
	assert.Equal(t, 2, runSelect(t, "find_all_next", banana, pos("b")).Len())
	assert.Equal(t, "<b>1.00</b>", runSelect(t, "find_previous", banana, pos("b")).Markup())
	assert.Equal(t, `<a href="/about">About</a>`, runSelect(t, "find_next", banana, pos("a")).Markup())

	previous := runSelect(t, "find_all_previous", banana, NewArgs([]any{"li, h1"}, map[string]any{"limit": 5}))
	require.Equal(t, 2, previous.Len())
	assert.Equal(t, "li", previous.Selection().Nodes[0].Data)
	assert.Equal(t, "h1", previous.Selection().Nodes[1].Data)
}

func TestGetItem(t *testing.T) {
	t.Parallel()

	link := runSelect(t, "find", root(t), pos("a"))
	for _, name := range []string{"getitem", "[]"} {
		got := runSelect(t, name, link, pos("href"))
		assert.Equal(t, document.Text("/about"), got)
	}

	op, _ := Default(Deps{}).Select("getitem")
	_, err := op.Run(link, pos("title"))
	require.Error(t, err)
}

func TestTextAndIndex(t *testing.T) {
	t.Parallel()

	title := runSelect(t, "select", root(t), pos("h1"))
	assert.Equal(t, "Price list", runSelect(t, "text", title, pos()).TextValue())

	padded := runSelect(t, "find", root(t), pos("li"))
	assert.Equal(t, "Apple 1.00", runSelect(t, "text", padded, NewArgs(nil, map[string]any{"strip": true})).TextValue())

	items := runSelect(t, "select", root(t), pos("li"))
	assert.Equal(t, "c3", runSelect(t, "index", items, pos(-1)).Selection().AttrOr("data-sku", ""))
	assert.Equal(t, "a1", runSelect(t, "index", items, pos(0.0)).Selection().AttrOr("data-sku", ""))

	op, _ := Default(Deps{}).Select("index")
	_, err := op.Run(items, pos(3))
	require.Error(t, err)
}

func TestXPath(t *testing.T) {
	t.Parallel()

	got := runSelect(t, "xpath", root(t), pos(`//li[@data-sku="b2"]/b`))
	assert.Equal(t, "<b>0.50</b>", got.Markup())

	op, _ := Default(Deps{}).Select("xpath")
	require.Error(t, op.Check(pos("//li[")))
}

func TestSanitizeStripsScripts(t *testing.T) {
	t.Parallel()

	note := runSelect(t, "select", root(t), pos("#note"))
	clean := runSelect(t, "sanitize", note, pos())
	assert.NotContains(t, clean.Markup(), "script")
	assert.Contains(t, clean.TextValue(), "Updated")

	assert.Equal(t, document.Text("x"), runSelect(t, "sanitize", document.Text("x"), pos()))
	assert.True(t, runSelect(t, "sanitize", document.Absent(), pos()).Empty())
}

func TestNodeOperationsRejectText(t *testing.T) {
	t.Parallel()

	op, _ := Default(Deps{}).Select("find")
	_, err := op.Run(document.Text("<h1>x</h1>"), pos("h1"))
	require.ErrorContains(t, err, "subject is text")
}

func TestSelectorChecks(t *testing.T) {
	t.Parallel()

	reg := Default(Deps{})
	sel, _ := reg.Select("select")
	require.Error(t, sel.Check(pos()), "select needs a selector")
	require.Error(t, sel.Check(pos("div[")))

	find, _ := reg.Select("find")
	require.NoError(t, find.Check(pos()))
	require.Error(t, find.Check(NewArgs(nil, map[string]any{"attrs": []any{1}})))

	idx, _ := reg.Select("index")
	require.Error(t, idx.Check(pos("x")))
}
