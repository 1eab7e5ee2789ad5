package registry

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/JakeFAU/pagewatch/internal/document"
)

var patterns sync.Map // pattern string -> *regexp.Regexp

// registerFilters installs the default filter operations. The match variants
// are anchored at the start of the value, the search variants are not.
func registerFilters(r *Registry) {
	r.RegisterFilter("match", regexFilter(markupOf, true))
	r.RegisterFilter("match_text", regexFilter(textOf, true))
	r.RegisterFilter("match_string", regexFilter(stringOf, true))
	r.RegisterFilter("search", regexFilter(markupOf, false))
	r.RegisterFilter("search_text", regexFilter(textOf, false))
	r.RegisterFilter("search_string", regexFilter(stringOf, false))
	r.RegisterFilter("contains", FilterOp{Run: containsText, Check: requireString(0)})
}

func compilePattern(expr string, anchored bool) (*regexp.Regexp, error) {
	if anchored {
		expr = `\A(?:` + expr + `)`
	}
	if re, ok := patterns.Load(expr); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile pattern: %w", err)
	}
	patterns.Store(expr, re)
	return re, nil
}

func regexFilter(value func(document.Fragment) (string, error), anchored bool) FilterOp {
	return FilterOp{
		Check: func(args Args) error {
			expr, err := args.String(0)
			if err != nil {
				return err
			}
			_, err = compilePattern(expr, anchored)
			return err
		},
		Run: func(subject document.Fragment, args Args) (bool, error) {
			expr, err := args.String(0)
			if err != nil {
				return false, err
			}
			re, err := compilePattern(expr, anchored)
			if err != nil {
				return false, err
			}
			s, err := value(subject)
			if err != nil {
				return false, err
			}
			return re.MatchString(s), nil
		},
	}
}

func containsText(subject document.Fragment, args Args) (bool, error) {
	needle, err := args.String(0)
	if err != nil {
		return false, err
	}
	return strings.Contains(subject.TextValue(), needle), nil
}

func markupOf(f document.Fragment) (string, error) {
	return f.Markup(), nil
}

func textOf(f document.Fragment) (string, error) {
	return f.TextValue(), nil
}

// stringOf returns the single string a fragment wraps: the text value itself,
// or the only text node reached by following single children from the first
// node.
func stringOf(f document.Fragment) (string, error) {
	switch f.Kind() {
	case document.KindText:
		return f.TextValue(), nil
	case document.KindNodes:
		sel := f.Selection()
		if sel.Length() == 0 {
			return "", fmt.Errorf("fragment has no nodes")
		}
		n := sel.Nodes[0]
		for n.Type != html.TextNode {
			if n.FirstChild == nil || n.FirstChild != n.LastChild {
				return "", fmt.Errorf("<%s> does not wrap a single string", n.Data)
			}
			n = n.FirstChild
		}
		return n.Data, nil
	default:
		return "", fmt.Errorf("fragment is absent")
	}
}
