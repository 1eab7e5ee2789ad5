package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/JakeFAU/pagewatch/internal/document"
)

var (
	matchers  sync.Map // selector string -> cascadia.Selector
	sanitizer = bluemonday.UGCPolicy()
)

// registerSelects installs the default select operations.
func registerSelects(r *Registry) {
	query := SelectOp{Run: selectAll, Check: checkQuery(true)}
	r.RegisterSelect("select", query)
	r.RegisterSelect("find", SelectOp{Run: find, Check: checkQuery(false)})
	r.RegisterSelect("find_all", SelectOp{Run: findAll, Check: checkQuery(false)})

	r.RegisterSelect("find_parent", relative(func(s *goquery.Selection, m goquery.Matcher) *goquery.Selection {
		return s.ParentsMatcher(m).First()
	}))
	r.RegisterSelect("find_parents", relative(func(s *goquery.Selection, m goquery.Matcher) *goquery.Selection {
		return s.ParentsMatcher(m)
	}))
	r.RegisterSelect("find_next_sibling", relative(func(s *goquery.Selection, m goquery.Matcher) *goquery.Selection {
		return s.NextAllMatcher(m).First()
	}))
	r.RegisterSelect("find_next_siblings", relative(func(s *goquery.Selection, m goquery.Matcher) *goquery.Selection {
		return s.NextAllMatcher(m)
	}))
	r.RegisterSelect("find_previous_sibling", relative(func(s *goquery.Selection, m goquery.Matcher) *goquery.Selection {
		return s.PrevAllMatcher(m).First()
	}))
	r.RegisterSelect("find_previous_siblings", relative(func(s *goquery.Selection, m goquery.Matcher) *goquery.Selection {
		return s.PrevAllMatcher(m)
	}))
	r.RegisterSelect("children", relative(func(s *goquery.Selection, m goquery.Matcher) *goquery.Selection {
		return s.ChildrenMatcher(m)
	}))

	r.RegisterSelect("find_next", traversal(nextNode, true))
	r.RegisterSelect("find_all_next", traversal(nextNode, false))
	r.RegisterSelect("find_previous", traversal(prevNode, true))
	r.RegisterSelect("find_all_previous", traversal(prevNode, false))

	attr := SelectOp{Run: getItem, Check: requireString(0)}
	r.RegisterSelect("getitem", attr)
	r.RegisterSelect("[]", attr)

	r.RegisterSelect("text", SelectOp{Run: text})
	r.RegisterSelect("index", SelectOp{Run: index, Check: requireInt(0)})
	r.RegisterSelect("xpath", SelectOp{Run: xpathSelect, Check: checkXPath})
	r.RegisterSelect("sanitize", SelectOp{Run: sanitize})
}

func nodesOf(subject document.Fragment) (*goquery.Selection, error) {
	if subject.Kind() != document.KindNodes {
		return nil, fmt.Errorf("subject is %s, want nodes", subject.Kind())
	}
	return subject.Selection(), nil
}

// queryFor builds a CSS selector from the first positional argument (a tag
// name or any selector, "*" when omitted) and the "attrs" keyword.
func queryFor(args Args, required bool) (string, error) {
	var (
		base string
		err  error
	)
	if required {
		base, err = args.String(0)
	} else {
		base, err = args.StringOr(0, "*")
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(base) == "" {
		base = "*"
	}
	attrs, err := args.NamedStringMap("attrs")
	if err != nil {
		return "", err
	}
	if len(attrs) == 0 {
		return base, nil
	}
	names := make([]string, 0, len(attrs))
	for k := range attrs {
		names = append(names, k)
	}
	sort.Strings(names)
	var sb strings.Builder
	sb.WriteString(base)
	for _, k := range names {
		fmt.Fprintf(&sb, `[%s="%s"]`, k, cssEscape(attrs[k]))
	}
	return sb.String(), nil
}

func cssEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

func matcher(query string) (cascadia.Selector, error) {
	if m, ok := matchers.Load(query); ok {
		return m.(cascadia.Selector), nil
	}
	m, err := cascadia.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("compile selector %q: %w", query, err)
	}
	matchers.Store(query, m)
	return m, nil
}

func matcherFor(args Args, required bool) (cascadia.Selector, error) {
	query, err := queryFor(args, required)
	if err != nil {
		return nil, err
	}
	return matcher(query)
}

func checkQuery(required bool) CheckFunc {
	return func(args Args) error {
		_, err := matcherFor(args, required)
		return err
	}
}

func selectAll(subject document.Fragment, args Args) (document.Fragment, error) {
	sel, err := nodesOf(subject)
	if err != nil {
		return document.Absent(), err
	}
	m, err := matcherFor(args, true)
	if err != nil {
		return document.Absent(), err
	}
	return document.Nodes(sel.FindMatcher(m)), nil
}

func find(subject document.Fragment, args Args) (document.Fragment, error) {
	sel, err := nodesOf(subject)
	if err != nil {
		return document.Absent(), err
	}
	m, err := matcherFor(args, false)
	if err != nil {
		return document.Absent(), err
	}
	return document.Nodes(sel.FindMatcher(m).First()), nil
}

func findAll(subject document.Fragment, args Args) (document.Fragment, error) {
	sel, err := nodesOf(subject)
	if err != nil {
		return document.Absent(), err
	}
	m, err := matcherFor(args, false)
	if err != nil {
		return document.Absent(), err
	}
	limit, err := args.NamedInt("limit", 0)
	if err != nil {
		return document.Absent(), err
	}
	found := sel.FindMatcher(m)
	if limit > 0 && found.Length() > limit {
		found = found.Slice(0, limit)
	}
	return document.Nodes(found), nil
}

// relative adapts a goquery traversal taking an optional selector argument.
func relative(step func(*goquery.Selection, goquery.Matcher) *goquery.Selection) SelectOp {
	return SelectOp{
		Check: checkQuery(false),
		Run: func(subject document.Fragment, args Args) (document.Fragment, error) {
			sel, err := nodesOf(subject)
			if err != nil {
				return document.Absent(), err
			}
			m, err := matcherFor(args, false)
			if err != nil {
				return document.Absent(), err
			}
			return document.Nodes(step(sel, m)), nil
		},
	}
}

// traversal walks the document from the first subject node using advance and
// collects matching elements, stopping at the first one when first is set.
func traversal(advance func(*html.Node) *html.Node, first bool) SelectOp {
	return SelectOp{
		Check: checkQuery(false),
		Run: func(subject document.Fragment, args Args) (document.Fragment, error) {
			sel, err := nodesOf(subject)
			if err != nil {
				return document.Absent(), err
			}
			m, err := matcherFor(args, false)
			if err != nil {
				return document.Absent(), err
			}
			limit, err := args.NamedInt("limit", 0)
			if err != nil {
				return document.Absent(), err
			}
			if first {
				limit = 1
			}
			if sel.Length() == 0 {
				return document.Nodes(sel), nil
			}
			var found []*html.Node
			for n := advance(sel.Nodes[0]); n != nil; n = advance(n) {
				if n.Type != html.ElementNode || !m.Match(n) {
					continue
				}
				found = append(found, n)
				if limit > 0 && len(found) == limit {
					break
				}
			}
			return document.NodeList(found), nil
		},
	}
}

// nextNode returns the node after n in document order, descending first.
func nextNode(n *html.Node) *html.Node {
	if n.FirstChild != nil {
		return n.FirstChild
	}
	for ; n != nil; n = n.Parent {
		if n.NextSibling != nil {
			return n.NextSibling
		}
	}
	return nil
}

// prevNode returns the node before n in document order.
func prevNode(n *html.Node) *html.Node {
	if n.PrevSibling == nil {
		return n.Parent
	}
	n = n.PrevSibling
	for n.LastChild != nil {
		n = n.LastChild
	}
	return n
}

func getItem(subject document.Fragment, args Args) (document.Fragment, error) {
	sel, err := nodesOf(subject)
	if err != nil {
		return document.Absent(), err
	}
	name, err := args.String(0)
	if err != nil {
		return document.Absent(), err
	}
	value, ok := sel.First().Attr(name)
	if !ok {
		return document.Absent(), fmt.Errorf("attribute %q not present", name)
	}
	return document.Text(value), nil
}

func text(subject document.Fragment, args Args) (document.Fragment, error) {
	strip, err := args.NamedBool("strip", false)
	if err != nil {
		return document.Absent(), err
	}
	value := subject.TextValue()
	if strip {
		value = strings.TrimSpace(value)
	}
	return document.Text(value), nil
}

func index(subject document.Fragment, args Args) (document.Fragment, error) {
	sel, err := nodesOf(subject)
	if err != nil {
		return document.Absent(), err
	}
	i, err := args.Int(0)
	if err != nil {
		return document.Absent(), err
	}
	n := sel.Length()
	if i >= n || i < -n {
		return document.Absent(), fmt.Errorf("index %d out of range for %d nodes", i, n)
	}
	return document.Nodes(sel.Eq(i)), nil
}

func checkXPath(args Args) error {
	expr, err := args.String(0)
	if err != nil {
		return err
	}
	if _, err := xpath.Compile(expr); err != nil {
		return fmt.Errorf("compile xpath %q: %w", expr, err)
	}
	return nil
}

func xpathSelect(subject document.Fragment, args Args) (document.Fragment, error) {
	sel, err := nodesOf(subject)
	if err != nil {
		return document.Absent(), err
	}
	raw, err := args.String(0)
	if err != nil {
		return document.Absent(), err
	}
	expr, err := xpath.Compile(raw)
	if err != nil {
		return document.Absent(), fmt.Errorf("compile xpath %q: %w", raw, err)
	}
	var found []*html.Node
	for _, n := range sel.Nodes {
		found = append(found, htmlquery.QuerySelectorAll(n, expr)...)
	}
	return document.NodeList(found), nil
}

func sanitize(subject document.Fragment, _ Args) (document.Fragment, error) {
	switch subject.Kind() {
	case document.KindText:
		return document.Text(sanitizer.Sanitize(subject.TextValue())), nil
	case document.KindNodes:
		clean := sanitizer.Sanitize(subject.Markup())
		nodes, err := html.ParseFragment(strings.NewReader(clean), &html.Node{
			Type:     html.ElementNode,
			Data:     "body",
			DataAtom: atom.Body,
		})
		if err != nil {
			return document.Absent(), fmt.Errorf("parse sanitized markup: %w", err)
		}
		return document.NodeList(nodes), nil
	default:
		return document.Absent(), nil
	}
}

func requireString(i int) CheckFunc {
	return func(args Args) error {
		_, err := args.String(i)
		return err
	}
}

func requireInt(i int) CheckFunc {
	return func(args Args) error {
		_, err := args.Int(i)
		return err
	}
}
