package dom

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Attr returns the value of key on n, or "".
func Attr(n *html.Node, key string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

// HasAttr reports whether n carries key, whatever its value.
func HasAttr(n *html.Node, key string) bool {
	if n == nil {
		return false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return true
		}
	}
	return false
}

// SetAttr sets key to val on n, replacing an existing value.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr drops key from n.
func RemoveAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			continue
		}
		out = append(out, a)
	}
	n.Attr = out
}

// ID returns the id attribute of n.
func ID(n *html.Node) string { return Attr(n, "id") }

// IsElement reports whether n is an element named tag.
func IsElement(n *html.Node, tag string) bool {
	return n != nil && n.Type == html.ElementNode && n.Data == tag
}

// NewElement creates a detached element.
func NewElement(tag string, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Lookup([]byte(tag)),
		Data:     tag,
		Attr:     attrs,
	}
}

// Clone returns a deep copy of n, detached from any tree.
func Clone(n *html.Node) *html.Node {
	c := CloneShallow(n)
	for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
		c.AppendChild(Clone(ch))
	}
	return c
}

// CloneShallow copies n and its attributes without children.
func CloneShallow(n *html.Node) *html.Node {
	return &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
}

// Detach removes n from its parent, if any.
func Detach(n *html.Node) {
	if n != nil && n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// Append moves child to the end of parent's children.
func Append(parent, child *html.Node) {
	Detach(child)
	parent.AppendChild(child)
}

// Prepend moves child to the front of parent's children.
func Prepend(parent, child *html.Node) {
	Detach(child)
	parent.InsertBefore(child, parent.FirstChild)
}

// InsertBefore moves n in front of ref.
func InsertBefore(ref, n *html.Node) {
	if ref.Parent == nil {
		return
	}
	Detach(n)
	ref.Parent.InsertBefore(n, ref)
}

// InsertAfter moves n right after ref.
func InsertAfter(ref, n *html.Node) {
	if ref.Parent == nil {
		return
	}
	Detach(n)
	ref.Parent.InsertBefore(n, ref.NextSibling)
}

// ReplaceWith puts repl where old is and detaches old. It is a no-op when
// old has no parent.
func ReplaceWith(old, repl *html.Node) {
	if old == repl || old.Parent == nil {
		return
	}
	Detach(repl)
	parent := old.Parent
	parent.InsertBefore(repl, old)
	parent.RemoveChild(old)
}

// RemoveChildren detaches every child of n.
func RemoveChildren(n *html.Node) {
	for n.FirstChild != nil {
		n.RemoveChild(n.FirstChild)
	}
}

// MoveChildren moves all children of src to the end of dst.
func MoveChildren(dst, src *html.Node) {
	for c := src.FirstChild; c != nil; {
		next := c.NextSibling
		src.RemoveChild(c)
		dst.AppendChild(c)
		c = next
	}
}

// Children returns the element children of n.
func Children(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// Contains reports whether n is root or one of its descendants.
func Contains(root, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

// Closest returns the nearest ancestor of n (n included) that matches.
func Closest(n *html.Node, match func(*html.Node) bool) *html.Node {
	for p := n; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && match(p) {
			return p
		}
	}
	return nil
}

// Walk visits n and its descendants in document order until fn returns false.
func Walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !Walk(c, fn) {
			return false
		}
	}
	return true
}

// FindAll collects the descendants of root (root excluded) that match.
func FindAll(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		Walk(c, func(n *html.Node) bool {
			if n.Type == html.ElementNode && match(n) {
				out = append(out, n)
			}
			return true
		})
	}
	return out
}

// Find returns the first descendant of root that matches.
func Find(root *html.Node, match func(*html.Node) bool) *html.Node {
	var found *html.Node
	for c := root.FirstChild; c != nil && found == nil; c = c.NextSibling {
		Walk(c, func(n *html.Node) bool {
			if n.Type == html.ElementNode && match(n) {
				found = n
				return false
			}
			return true
		})
	}
	return found
}

// FindByID returns the first descendant of root with the given id.
func FindByID(root *html.Node, id string) *html.Node {
	if id == "" {
		return nil
	}
	return Find(root, func(n *html.Node) bool { return ID(n) == id })
}

// FindByTag returns the first descendant element of root with tag a.
func FindByTag(root *html.Node, a atom.Atom) *html.Node {
	return Find(root, func(n *html.Node) bool { return n.DataAtom == a })
}

// OuterHTML serializes n including its own tag.
func OuterHTML(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}

// InnerHTML serializes the children of n.
func InnerHTML(n *html.Node) string {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return ""
		}
	}
	return buf.String()
}

// SetInnerHTML replaces the children of n with the parsed fragment s.
func SetInnerHTML(n *html.Node, s string) error {
	nodes, err := html.ParseFragment(strings.NewReader(s), n)
	if err != nil {
		return err
	}
	RemoveChildren(n)
	for _, c := range nodes {
		n.AppendChild(c)
	}
	return nil
}

// TextContent concatenates the text nodes under n.
func TextContent(n *html.Node) string {
	var sb strings.Builder
	Walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
		return true
	})
	return sb.String()
}
