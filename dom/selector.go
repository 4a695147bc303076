package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// QuerySelectorAll returns the descendants of root matching a simple CSS
// selector, in document order. Supported forms:
//   - tag: "form", "a"
//   - .class: ".content"
//   - #id: "#main"
//   - tag.class, tag#id
//   - tag[attr], tag[attr=val]
//   - descendant combinator (space) and selector groups (comma)
func QuerySelectorAll(root *html.Node, selector string) []*html.Node {
	var out []*html.Node
	seen := make(map[*html.Node]bool)
	for _, group := range strings.Split(selector, ",") {
		for _, n := range queryCompound(root, group) {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	if len(out) > 1 {
		sortDocumentOrder(root, out)
	}
	return out
}

// QuerySelector returns the first match of QuerySelectorAll, or nil.
func QuerySelector(root *html.Node, selector string) *html.Node {
	if all := QuerySelectorAll(root, selector); len(all) > 0 {
		return all[0]
	}
	return nil
}

// Matches reports whether n matches every part of a compound selector
// written without combinators, e.g. "a[data-drive-preload]".
func Matches(n *html.Node, selector string) bool {
	return matchesSelector(n, parseSimpleSelector(strings.TrimSpace(selector)))
}

func queryCompound(root *html.Node, selector string) []*html.Node {
	parts := strings.Fields(selector)
	if len(parts) == 0 {
		return nil
	}
	matches := matchSimple(root, parts[0])
	for i := 1; i < len(parts); i++ {
		var next []*html.Node
		seen := make(map[*html.Node]bool)
		for _, parent := range matches {
			for _, n := range matchSimple(parent, parts[i]) {
				if !seen[n] {
					seen[n] = true
					next = append(next, n)
				}
			}
		}
		matches = next
	}
	return matches
}

func matchSimple(root *html.Node, sel string) []*html.Node {
	m := parseSimpleSelector(sel)
	return FindAll(root, func(n *html.Node) bool { return matchesSelector(n, m) })
}

type simpleSelector struct {
	tag     string
	id      string
	class   string
	attrKey string
	attrVal string
	hasVal  bool
}

func parseSimpleSelector(sel string) simpleSelector {
	var s simpleSelector

	if idx := strings.IndexByte(sel, '['); idx >= 0 {
		attrPart := strings.TrimRight(sel[idx+1:], "]")
		sel = sel[:idx]
		if eq := strings.IndexByte(attrPart, '='); eq >= 0 {
			s.attrKey = attrPart[:eq]
			s.attrVal = strings.Trim(attrPart[eq+1:], `"'`)
			s.hasVal = true
		} else {
			s.attrKey = attrPart
		}
	}
	if idx := strings.IndexByte(sel, '#'); idx >= 0 {
		s.id = sel[idx+1:]
		sel = sel[:idx]
	}
	if idx := strings.IndexByte(sel, '.'); idx >= 0 {
		s.class = sel[idx+1:]
		sel = sel[:idx]
	}
	s.tag = sel
	return s
}

func matchesSelector(n *html.Node, s simpleSelector) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if s.tag != "" && s.tag != "*" && n.Data != s.tag {
		return false
	}
	if s.id != "" && ID(n) != s.id {
		return false
	}
	if s.class != "" {
		found := false
		for _, c := range strings.Fields(Attr(n, "class")) {
			if c == s.class {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if s.attrKey != "" {
		if s.hasVal {
			return HasAttr(n, s.attrKey) && Attr(n, s.attrKey) == s.attrVal
		}
		return HasAttr(n, s.attrKey)
	}
	return true
}

func sortDocumentOrder(root *html.Node, nodes []*html.Node) {
	index := make(map[*html.Node]int, len(nodes))
	i := 0
	Walk(root, func(n *html.Node) bool {
		index[n] = i
		i++
		return true
	})
	// insertion sort: result sets are small
	for a := 1; a < len(nodes); a++ {
		for b := a; b > 0 && index[nodes[b]] < index[nodes[b-1]]; b-- {
			nodes[b], nodes[b-1] = nodes[b-1], nodes[b]
		}
	}
}
