package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func TestParseKeepsSource(t *testing.T) {
	t.Parallel()

	doc, err := Parse("http://e/x", "<h1>hi</h1>")
	require.NoError(t, err)
	assert.Equal(t, "http://e/x", doc.URL())
	assert.Equal(t, "<h1>hi</h1>", doc.Source())
	assert.Equal(t, KindNodes, doc.Root().Kind())
	assert.False(t, doc.Root().Empty())
}

func TestNilDocumentIsAbsent(t *testing.T) {
	t.Parallel()

	var doc *Document
	assert.Equal(t, KindAbsent, doc.Root().Kind())
	assert.Empty(t, doc.URL())
	assert.Empty(t, doc.Source())
}

func TestFragmentEqualityIsStructural(t *testing.T) {
	t.Parallel()

	a, err := Parse("a", `<div><h1 class="t">hi</h1></div>`)
	require.NoError(t, err)
	b, err := Parse("b", `<html><body><div><h1 class="t">hi</h1></div></body></html>`)
	require.NoError(t, err)
	c, err := Parse("c", `<div><h1 class="t">ho</h1></div>`)
	require.NoError(t, err)

	fa := Nodes(a.Root().Selection().Find("h1"))
	fb := Nodes(b.Root().Selection().Find("h1"))
	fc := Nodes(c.Root().Selection().Find("h1"))

	assert.True(t, fa.Equal(fb), "distinct documents with the same fragment must compare equal")
	assert.False(t, fa.Equal(fc))
	assert.Equal(t, `<h1 class="t">hi</h1>`, fa.Markup())
}

func TestFragmentKindsNeverMix(t *testing.T) {
	t.Parallel()

	doc, err := Parse("a", `<p>hi</p>`)
	require.NoError(t, err)
	nodes := Nodes(doc.Root().Selection().Find("p"))

	assert.False(t, nodes.Equal(Text(nodes.Markup())))
	assert.True(t, Absent().Equal(Absent()))
	assert.False(t, Absent().Equal(Text("")))
	assert.True(t, Text("x").Equal(Text("x")))
}

func TestFragmentEmpty(t *testing.T) {
	t.Parallel()

	doc, err := Parse("a", `<p>hi</p>`)
	require.NoError(t, err)

	assert.True(t, Absent().Empty())
	assert.True(t, Text("").Empty())
	assert.True(t, Nodes(doc.Root().Selection().Find("table")).Empty())
	assert.True(t, Nodes(nil).Empty())
	assert.False(t, Text("x").Empty())
	assert.Equal(t, 0, Absent().Len())
	assert.Equal(t, 1, Text("x").Len())
}

func TestTextValue(t *testing.T) {
	t.Parallel()

	doc, err := Parse("a", `<ul><li>a</li><li>b</li></ul>`)
	require.NoError(t, err)
	items := Nodes(doc.Root().Selection().Find("li"))

	assert.Equal(t, "ab", items.TextValue())
	assert.Equal(t, "<li>a</li>\n<li>b</li>", items.Markup())
	assert.Equal(t, 2, items.Len())
	assert.Equal(t, "nodes", items.Kind().String())
}

func TestFragmentEqualityComparesNodesSeparately(t *testing.T) {
	t.Parallel()

	a, err := Parse("a", "<p>a\n</p><p>b</p>")
	require.NoError(t, err)
	b, err := Parse("b", "<p>a</p><p>\nb</p>")
	require.NoError(t, err)

	textOf := func(doc *Document) Fragment {
		var nodes []*html.Node
		for _, p := range doc.Root().Selection().Find("p").Nodes {
			nodes = append(nodes, p.FirstChild)
		}
		return NodeList(nodes)
	}
	fa, fb := textOf(a), textOf(b)

	require.Equal(t, 2, fa.Len())
	require.Equal(t, fa.Markup(), fb.Markup(), "joined display form collides")
	assert.False(t, fa.Equal(fb))
	assert.True(t, fa.Equal(textOf(a)))
}

func TestDecode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		body        []byte
		contentType string
		want        string
	}{
		{"utf8 untouched", []byte("<h1>café</h1>"), "text/html", "<h1>café</h1>"},
		{"undeclared latin1", []byte("<h1>caf\xe9</h1>"), "", "<h1>café</h1>"},
		{"header charset", []byte("<h1>caf\xe9</h1>"), "text/html; charset=iso-8859-1", "<h1>café</h1>"},
		{"meta charset", []byte(`<meta charset="iso-8859-1"><h1>caf` + "\xe9</h1>"), "", `<meta charset="iso-8859-1"><h1>café</h1>`},
		{"invalid utf8 declared", []byte("<h1>caf\xe9</h1>"), "text/html; charset=utf-8", "<h1>caf\uFFFD</h1>"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Decode(tc.body, tc.contentType)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, got, Decode([]byte(got), "text/html; charset=utf-8"), "decoding is stable once stored")
		})
	}
}
