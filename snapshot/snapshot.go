// Package snapshot captures DOM subtrees for rendering and caching: the
// generic Snapshot, whole-page PageSnapshot with its HeadSnapshot, the
// permanent element matching used by renders, and the LRU snapshot Cache.
package snapshot

import (
	"golang.org/x/net/html"

	"github.com/hazyhaar/pagedrive/dom"
)

// Snapshot wraps a root element. It never mutates the element.
type Snapshot struct {
	element *html.Node
}

// New wraps element.
func New(element *html.Node) *Snapshot {
	return &Snapshot{element: element}
}

// Element returns the wrapped root.
func (s *Snapshot) Element() *html.Node { return s.element }

// Children returns the element children of the root.
func (s *Snapshot) Children() []*html.Node { return dom.Children(s.element) }

// HasAnchor reports whether an element targets anchor.
func (s *Snapshot) HasAnchor(anchor string) bool {
	return s.ElementForAnchor(anchor) != nil
}

// ElementForAnchor returns the element with id anchor, or the <a name>
// with that name.
func (s *Snapshot) ElementForAnchor(anchor string) *html.Node {
	if anchor == "" || s.element == nil {
		return nil
	}
	return dom.Find(s.element, func(n *html.Node) bool {
		return dom.ID(n) == anchor || (n.Data == "a" && dom.Attr(n, "name") == anchor)
	})
}

// IsConnected reports whether the root is attached to doc.
func (s *Snapshot) IsConnected(doc *dom.Document) bool {
	return doc.IsConnected(s.element)
}

// FirstAutofocusableElement returns the first [autofocus] element that is
// not inert, disabled, hidden, or inside a closed details/dialog.
func (s *Snapshot) FirstAutofocusableElement() *html.Node {
	for _, n := range dom.Query(s.element, dom.XPathAutofocus) {
		if focusable(n) {
			return n
		}
	}
	return nil
}

func focusable(n *html.Node) bool {
	if dom.HasAttr(n, "disabled") {
		return false
	}
	blocked := dom.Closest(n, func(p *html.Node) bool {
		switch {
		case dom.HasAttr(p, "inert"), dom.HasAttr(p, "hidden"):
			return true
		case p.Data == "details" && p != n, p.Data == "dialog":
			return !dom.HasAttr(p, "open")
		}
		return false
	})
	return blocked == nil
}

// PermanentElements returns the elements flagged permanent that carry an id.
func (s *Snapshot) PermanentElements() []*html.Node {
	return dom.Query(s.element, dom.XPathPermanent)
}

// PermanentElementByID returns the permanent element with the given id.
func (s *Snapshot) PermanentElementByID(id string) *html.Node {
	return dom.Find(s.element, func(n *html.Node) bool {
		return dom.ID(n) == id && dom.HasAttr(n, dom.AttrPermanent)
	})
}

// ElementPair couples a live permanent element with its counterpart in the
// incoming content.
type ElementPair struct {
	Current *html.Node
	New     *html.Node
}

// PermanentElementMap maps element ids to their pairs. Only ids present and
// permanent in both trees have an entry.
type PermanentElementMap map[string]ElementPair

// PermanentElementMapFor pairs the permanent elements of s with those of
// next that share an id.
func (s *Snapshot) PermanentElementMapFor(next *Snapshot) PermanentElementMap {
	m := make(PermanentElementMap)
	for _, current := range s.PermanentElements() {
		id := dom.ID(current)
		if _, dup := m[id]; dup {
			continue
		}
		if n := next.PermanentElementByID(id); n != nil {
			m[id] = ElementPair{Current: current, New: n}
		}
	}
	return m
}
