// Package dom holds the live document model the navigation engine mutates:
// an x/net/html tree plus the browsing state a real document carries (URL,
// ready state, focus, scroll position).
package dom

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ReadyState mirrors the document loading phases.
type ReadyState string

const (
	Loading     ReadyState = "loading"
	Interactive ReadyState = "interactive"
	Complete    ReadyState = "complete"
)

// Position is a scroll offset.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Document is the single live document of a session.
type Document struct {
	Root       *html.Node
	URL        *url.URL
	ReadyState ReadyState

	active       *html.Node
	scroll       Position
	scrollTarget *html.Node
}

// NewDocument wraps an already parsed tree.
func NewDocument(root *html.Node, u *url.URL) *Document {
	return &Document{Root: root, URL: u, ReadyState: Complete}
}

// ParseDocument parses r as a complete HTML document.
func ParseDocument(r io.Reader, u *url.URL) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return NewDocument(root, u), nil
}

// ParseHTML parses a complete HTML document from a string.
func ParseHTML(s string) (*html.Node, error) {
	root, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return root, nil
}

// Replace swaps the whole tree, as a full page load does.
func (d *Document) Replace(root *html.Node, u *url.URL) {
	d.Root = root
	d.URL = u
	d.active = nil
	d.scroll = Position{}
	d.scrollTarget = nil
}

// SetURL moves the document to u without touching its tree, as a history
// push, replace or pop does.
func (d *Document) SetURL(u *url.URL) {
	if u == nil {
		return
	}
	c := *u
	d.URL = &c
}

// DocumentElement returns the <html> element.
func (d *Document) DocumentElement() *html.Node {
	return DocumentElementOf(d.Root)
}

// DocumentElementOf returns the <html> element of a parsed document root.
func DocumentElementOf(root *html.Node) *html.Node {
	if root == nil {
		return nil
	}
	if root.Type == html.ElementNode && root.DataAtom == atom.Html {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == atom.Html {
			return c
		}
	}
	return nil
}

// Head returns the <head> element.
func (d *Document) Head() *html.Node {
	return childByAtom(d.DocumentElement(), atom.Head)
}

// Body returns the <body> element.
func (d *Document) Body() *html.Node {
	return childByAtom(d.DocumentElement(), atom.Body)
}

// HeadOf returns the <head> child of a document element.
func HeadOf(documentElement *html.Node) *html.Node {
	return childByAtom(documentElement, atom.Head)
}

// BodyOf returns the <body> child of a document element.
func BodyOf(documentElement *html.Node) *html.Node {
	return childByAtom(documentElement, atom.Body)
}

func childByAtom(n *html.Node, a atom.Atom) *html.Node {
	if n == nil {
		return nil
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return c
		}
	}
	return nil
}

// IsConnected reports whether n is attached to this document.
func (d *Document) IsConnected(n *html.Node) bool {
	return n != nil && Contains(d.Root, n)
}

// ActiveElement returns the focused element, or the body when nothing
// connected holds focus.
func (d *Document) ActiveElement() *html.Node {
	if d.active != nil && d.IsConnected(d.active) {
		return d.active
	}
	return d.Body()
}

// Focus moves focus to el when it is connected.
func (d *Document) Focus(el *html.Node) {
	if d.IsConnected(el) {
		d.active = el
	}
}

// Blur clears focus.
func (d *Document) Blur() { d.active = nil }

// ScrollPosition returns the current scroll offset.
func (d *Document) ScrollPosition() Position { return d.scroll }

// ScrollTarget returns the element last scrolled into view, if any.
func (d *Document) ScrollTarget() *html.Node { return d.scrollTarget }

// ScrollTo moves the viewport to pos.
func (d *Document) ScrollTo(pos Position) {
	d.scroll = pos
	d.scrollTarget = nil
}

// ScrollIntoView brings el to the top of the viewport. Without layout the
// vertical offset is the element's index in document order.
func (d *Document) ScrollIntoView(el *html.Node) {
	if !d.IsConnected(el) {
		return
	}
	y := 0
	Walk(d.Root, func(n *html.Node) bool {
		if n == el {
			return false
		}
		if n.Type == html.ElementNode {
			y++
		}
		return true
	})
	d.scroll = Position{Y: float64(y)}
	d.scrollTarget = el
}

// Title returns the text of the <title> element.
func (d *Document) Title() string {
	t := FindByTag(d.Head(), atom.Title)
	if t == nil {
		return ""
	}
	return strings.TrimSpace(TextContent(t))
}

// Meta returns the content of the first meta element named name anywhere
// in the document.
func (d *Document) Meta(name string) (string, bool) {
	if d.Root == nil {
		return "", false
	}
	return MetaContent(d.Root, name)
}

// SetMeta creates or updates a named meta element in the head.
func (d *Document) SetMeta(name, content string) {
	head := d.Head()
	if head == nil {
		return
	}
	n := Find(head, func(n *html.Node) bool { return n.Data == "meta" && Attr(n, "name") == name })
	if n == nil {
		n = NewElement("meta", html.Attribute{Key: "name", Val: name})
		head.AppendChild(n)
	}
	SetAttr(n, "content", content)
}

// RemoveMeta deletes a named meta element from the head.
func (d *Document) RemoveMeta(name string) {
	head := d.Head()
	if head == nil {
		return
	}
	if n := Find(head, func(n *html.Node) bool { return n.Data == "meta" && Attr(n, "name") == name }); n != nil {
		Detach(n)
	}
}

// HTML serializes the whole document.
func (d *Document) HTML() string {
	return OuterHTML(d.Root)
}
