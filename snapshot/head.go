package snapshot

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/pagedrive/dom"
)

// Head element categories.
const (
	TypeScript     = "script"
	TypeStylesheet = "stylesheet"
)

type elementDetails struct {
	kind     string
	tracked  bool
	elements []*html.Node
}

// HeadSnapshot indexes the children of <head> by their outer HTML so two
// heads can be compared element by element.
type HeadSnapshot struct {
	element *html.Node
	keys    []string
	details map[string]*elementDetails
}

// NewHead indexes head. A nil head yields an empty snapshot.
func NewHead(head *html.Node) *HeadSnapshot {
	h := &HeadSnapshot{element: head, details: make(map[string]*elementDetails)}
	if head == nil {
		return h
	}
	for _, el := range dom.Children(head) {
		if el.Data == "noscript" {
			continue
		}
		key := outerHTMLWithoutNonce(el)
		d, ok := h.details[key]
		if !ok {
			d = &elementDetails{kind: elementType(el), tracked: dom.Attr(el, dom.AttrTrack) == "reload"}
			h.details[key] = d
			h.keys = append(h.keys, key)
		}
		d.elements = append(d.elements, el)
	}
	return h
}

// Element returns the indexed <head>.
func (h *HeadSnapshot) Element() *html.Node { return h.element }

// TrackedElementSignature concatenates the outer HTML of reload-tracked
// elements in document order.
func (h *HeadSnapshot) TrackedElementSignature() string {
	var sb strings.Builder
	for _, k := range h.keys {
		if h.details[k].tracked {
			sb.WriteString(k)
		}
	}
	return sb.String()
}

// ScriptElementsNotInSnapshot returns scripts of h absent from other.
func (h *HeadSnapshot) ScriptElementsNotInSnapshot(other *HeadSnapshot) []*html.Node {
	return h.elementsMatchingTypeNotIn(TypeScript, other)
}

// StylesheetElementsNotInSnapshot returns stylesheets of h absent from other.
func (h *HeadSnapshot) StylesheetElementsNotInSnapshot(other *HeadSnapshot) []*html.Node {
	return h.elementsMatchingTypeNotIn(TypeStylesheet, other)
}

func (h *HeadSnapshot) elementsMatchingTypeNotIn(kind string, other *HeadSnapshot) []*html.Node {
	var out []*html.Node
	for _, k := range h.keys {
		if _, ok := other.details[k]; ok {
			continue
		}
		if d := h.details[k]; d.kind == kind {
			out = append(out, d.elements[0])
		}
	}
	return out
}

// ProvisionalElements are head elements replaced on every render: untyped
// untracked elements, plus duplicates of any other element.
func (h *HeadSnapshot) ProvisionalElements() []*html.Node {
	var out []*html.Node
	for _, k := range h.keys {
		d := h.details[k]
		switch {
		case d.kind == "" && !d.tracked:
			out = append(out, d.elements...)
		case len(d.elements) > 1:
			out = append(out, d.elements[1:]...)
		}
	}
	return out
}

// MetaValue returns the content of the named meta element.
func (h *HeadSnapshot) MetaValue(name string) (string, bool) {
	if h.element == nil {
		return "", false
	}
	for _, el := range dom.Children(h.element) {
		if el.Data == "meta" && dom.Attr(el, "name") == name {
			return dom.Attr(el, "content"), true
		}
	}
	return "", false
}

func elementType(el *html.Node) string {
	switch {
	case el.Data == "script":
		return TypeScript
	case el.Data == "style":
		return TypeStylesheet
	case el.Data == "link" && strings.EqualFold(dom.Attr(el, "rel"), "stylesheet"):
		return TypeStylesheet
	}
	return ""
}

func outerHTMLWithoutNonce(el *html.Node) string {
	if !dom.HasAttr(el, "nonce") {
		return dom.OuterHTML(el)
	}
	c := dom.Clone(el)
	dom.SetAttr(c, "nonce", "")
	return dom.OuterHTML(c)
}
