package snapshot

import (
	"fmt"
	"net/url"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/pagedrive/dom"
)

// Cache-control and visit-control meta values.
const (
	CacheControlNoCache   = "no-cache"
	CacheControlNoPreview = "no-preview"
	VisitControlReload    = "reload"
)

// PageSnapshot is a whole page: the body as root element plus the head.
type PageSnapshot struct {
	*Snapshot
	Head *HeadSnapshot
}

// NewPage builds a page snapshot from a body and a head element.
func NewPage(body, head *html.Node) *PageSnapshot {
	return &PageSnapshot{Snapshot: New(body), Head: NewHead(head)}
}

// FromHTML parses a complete document. A missing head or body is created
// by the parser, so the result always has both.
func FromHTML(s string) (*PageSnapshot, error) {
	root, err := dom.ParseHTML(s)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return FromDocumentElement(dom.DocumentElementOf(root)), nil
}

// FromDocumentElement wraps the head and body of a live <html> element.
func FromDocumentElement(el *html.Node) *PageSnapshot {
	return NewPage(dom.BodyOf(el), dom.HeadOf(el))
}

// FromDocument wraps the live document.
func FromDocument(doc *dom.Document) *PageSnapshot {
	return FromDocumentElement(doc.DocumentElement())
}

// Clone deep-copies head and body. Password field values are dropped.
func (p *PageSnapshot) Clone() *PageSnapshot {
	var body, head *html.Node
	if p.Element() != nil {
		body = dom.Clone(p.Element())
		dom.Walk(body, func(n *html.Node) bool {
			if n.Type == html.ElementNode && n.DataAtom == atom.Input && dom.Attr(n, "type") == "password" {
				dom.RemoveAttr(n, "value")
			}
			return true
		})
	}
	if p.Head.Element() != nil {
		head = dom.Clone(p.Head.Element())
	}
	return NewPage(body, head)
}

// HeadElement returns the <head> element.
func (p *PageSnapshot) HeadElement() *html.Node { return p.Head.Element() }

// BodyElement returns the <body> element.
func (p *PageSnapshot) BodyElement() *html.Node { return p.Element() }

// RootLocation is the navigable root declared by the page, default "/".
func (p *PageSnapshot) RootLocation(base *url.URL) *url.URL {
	root := "/"
	if v, ok := p.Head.MetaValue(dom.MetaRoot); ok && v != "" {
		root = v
	}
	ref, err := url.Parse(root)
	if err != nil {
		ref = &url.URL{Path: "/"}
	}
	if base == nil {
		return ref
	}
	return base.ResolveReference(ref)
}

// CacheControl returns the cache-control meta value.
func (p *PageSnapshot) CacheControl() string {
	v, _ := p.Head.MetaValue(dom.MetaCacheControl)
	return v
}

// IsPreviewable reports whether the page may be shown as a preview.
func (p *PageSnapshot) IsPreviewable() bool {
	return p.CacheControl() != CacheControlNoPreview
}

// IsCacheable reports whether the page may be stored in the cache.
func (p *PageSnapshot) IsCacheable() bool {
	return p.CacheControl() != CacheControlNoCache
}

// IsVisitable reports whether the page may be rendered without a full load.
func (p *PageSnapshot) IsVisitable() bool {
	v, _ := p.Head.MetaValue(dom.MetaVisitControl)
	return v != VisitControlReload
}
