package document

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Kind classifies the value carried by a Fragment.
type Kind uint8

// Fragment kinds.
const (
	KindAbsent Kind = iota
	KindNodes
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindNodes:
		return "nodes"
	case KindText:
		return "text"
	default:
		return "absent"
	}
}

// Fragment is the value flowing through a select chain: nothing, an ordered
// set of nodes, or a text value such as an attribute.
type Fragment struct {
	kind Kind
	sel  *goquery.Selection
	text string
}

// Absent returns the fragment that stands for "nothing selected".
func Absent() Fragment {
	return Fragment{}
}

// Nodes wraps a selection. A nil selection is absent.
func Nodes(sel *goquery.Selection) Fragment {
	if sel == nil {
		return Absent()
	}
	return Fragment{kind: KindNodes, sel: sel}
}

// NodeList wraps raw nodes, keeping their order.
func NodeList(nodes []*html.Node) Fragment {
	return Nodes(&goquery.Selection{Nodes: nodes})
}

// Text wraps a text value.
func Text(s string) Fragment {
	return Fragment{kind: KindText, text: s}
}

// Kind reports what the fragment holds.
func (f Fragment) Kind() Kind {
	return f.kind
}

// Selection returns the node set, or nil for text and absent fragments.
func (f Fragment) Selection() *goquery.Selection {
	if f.kind != KindNodes {
		return nil
	}
	return f.sel
}

// Len is the number of nodes, 1 for text and 0 when absent.
func (f Fragment) Len() int {
	switch f.kind {
	case KindNodes:
		return f.sel.Length()
	case KindText:
		return 1
	default:
		return 0
	}
}

// Empty reports whether the fragment is absent, has no nodes or is empty text.
// Select chains stop at the first empty intermediate value.
func (f Fragment) Empty() bool {
	switch f.kind {
	case KindNodes:
		return f.sel.Length() == 0
	case KindText:
		return f.text == ""
	default:
		return true
	}
}

// TextValue returns the combined text content of the nodes, or the text value.
func (f Fragment) TextValue() string {
	switch f.kind {
	case KindNodes:
		return f.sel.Text()
	case KindText:
		return f.text
	default:
		return ""
	}
}

// Markup is the display form: each node rendered as outer HTML in order,
// separated by newlines, or the raw text value. Distinct node lists can share
// a Markup, so compare fragments with Equal.
func (f Fragment) Markup() string {
	switch f.kind {
	case KindNodes:
		parts := make([]string, 0, len(f.sel.Nodes))
		for _, n := range f.sel.Nodes {
			parts = append(parts, render(n))
		}
		return strings.Join(parts, "\n")
	case KindText:
		return f.text
	default:
		return ""
	}
}

// Equal compares fragments by kind and content. Node fragments match when
// they hold the same number of nodes and each pair renders identically.
func (f Fragment) Equal(other Fragment) bool {
	if f.kind != other.kind {
		return false
	}
	switch f.kind {
	case KindNodes:
		if len(f.sel.Nodes) != len(other.sel.Nodes) {
			return false
		}
		for i, n := range f.sel.Nodes {
			if render(n) != render(other.sel.Nodes[i]) {
				return false
			}
		}
		return true
	case KindText:
		return f.text == other.text
	default:
		return true
	}
}

func (f Fragment) String() string {
	return f.Markup()
}

func render(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		// Render only fails on writer errors or malformed trees; fall back to text.
		return nodeText(n)
	}
	return buf.String()
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
