package render

import (
	"context"

	"golang.org/x/net/html"

	"github.com/hazyhaar/pagedrive/dom"
	"github.com/hazyhaar/pagedrive/snapshot"
)

// ErrorRenderer replaces head and body wholesale with an error page.
type ErrorRenderer struct {
	base
	newPage *snapshot.PageSnapshot
}

// NewErrorRenderer prepares an error render.
func NewErrorRenderer(env *Env, current, next *snapshot.PageSnapshot, isPreview bool) *ErrorRenderer {
	r := &ErrorRenderer{
		base:    base{env: env, current: current.Snapshot, next: next.Snapshot, isPreview: isPreview, willRender: true},
		newPage: next,
	}
	r.renderElement = r.swap
	return r
}

// Kind implements Renderer.
func (r *ErrorRenderer) Kind() Kind { return KindError }

// Render swaps head and body and runs every script of the new page.
func (r *ErrorRenderer) Render(ctx context.Context) error {
	root := r.env.Doc.DocumentElement()
	if root == nil {
		return nil
	}
	if head := r.newPage.HeadElement(); head != nil {
		r.swap(dom.HeadOf(root), head)
	}
	if body := r.newPage.BodyElement(); body != nil {
		r.renderElement(dom.BodyOf(root), body)
	}
	r.activateScripts(ctx, root)
	return nil
}

func (r *ErrorRenderer) swap(current, next *html.Node) {
	if current != nil {
		dom.ReplaceWith(current, next)
		return
	}
	dom.Append(r.env.Doc.DocumentElement(), next)
}
