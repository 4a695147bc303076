package render

import (
	"context"

	"golang.org/x/net/html"

	"github.com/hazyhaar/pagedrive/dom"
	"github.com/hazyhaar/pagedrive/snapshot"
)

// PageRenderer merges the head and swaps the body of the live document.
type PageRenderer struct {
	base
	currentPage *snapshot.PageSnapshot
	newPage     *snapshot.PageSnapshot
}

// NewPageRenderer prepares a render of next over current.
func NewPageRenderer(env *Env, current, next *snapshot.PageSnapshot, isPreview, willRender bool) *PageRenderer {
	r := &PageRenderer{
		base: base{
			env:        env,
			current:    current.Snapshot,
			next:       next.Snapshot,
			isPreview:  isPreview,
			willRender: willRender,
		},
		currentPage: current,
		newPage:     next,
	}
	r.renderElement = r.replaceBodyElement
	return r
}

// Kind implements Renderer.
func (r *PageRenderer) Kind() Kind { return KindPage }

// ShouldRender requires a visitable page whose tracked head elements match.
func (r *PageRenderer) ShouldRender() bool {
	return r.newPage.IsVisitable() && r.trackedElementsAreIdentical()
}

// ReloadReason explains a false ShouldRender.
func (r *PageRenderer) ReloadReason() Reason {
	if !r.newPage.IsVisitable() {
		return Reason{Reason: ReasonVisitControlReload}
	}
	if !r.trackedElementsAreIdentical() {
		return Reason{Reason: ReasonTrackedElementMismatch}
	}
	return Reason{}
}

// PrepareToRender merges the new head into the live one.
func (r *PageRenderer) PrepareToRender(ctx context.Context) error {
	r.mergeHead(ctx)
	return nil
}

// Render swaps the body inside the Bardo, unless rendering is disabled.
func (r *PageRenderer) Render(ctx context.Context) error {
	if !r.willRender {
		return nil
	}
	return r.preservingPermanentElements(func() error {
		r.activateScripts(ctx, r.newPage.Element())
		r.renderElement(r.env.Doc.Body(), r.newPage.Element())
		return nil
	})
}

// FinishRendering focuses the first autofocus element of final renders.
func (r *PageRenderer) FinishRendering() {
	if !r.isPreview {
		r.focusFirstAutofocusableElement()
	}
}

func (r *PageRenderer) replaceBodyElement(current, next *html.Node) {
	if current != nil && next.Data == "body" {
		dom.ReplaceWith(current, next)
		return
	}
	dom.Append(r.env.Doc.DocumentElement(), next)
}

func (r *PageRenderer) trackedElementsAreIdentical() bool {
	return r.currentPage.Head.TrackedElementSignature() == r.newPage.Head.TrackedElementSignature()
}

func (r *PageRenderer) mergeHead(ctx context.Context) {
	head := r.env.Doc.Head()
	if head == nil {
		return
	}
	r.mergeProvisionalElements(head)

	sheets := r.newPage.Head.StylesheetElementsNotInSnapshot(r.currentPage.Head)
	for _, el := range sheets {
		dom.Append(head, el)
	}
	for _, el := range r.newPage.Head.ScriptElementsNotInSnapshot(r.currentPage.Head) {
		activated, ok := ActivateScriptElement(r.env.Doc, el)
		dom.Append(head, activated)
		if ok {
			r.env.Scripts.RunScript(ctx, activated)
		}
	}
	waitForStylesheets(ctx, r.env, sheets)
}

func (r *PageRenderer) mergeProvisionalElements(head *html.Node) {
	incoming := append([]*html.Node(nil), r.newPage.Head.ProvisionalElements()...)
	for _, el := range r.currentPage.Head.ProvisionalElements() {
		var found bool
		incoming, found = removeMatching(el, incoming)
		if !found && el.Parent == head {
			head.RemoveChild(el)
		}
	}
	for _, el := range incoming {
		dom.Append(head, el)
	}
}

// removeMatching drops from list the first element equal to el: titles
// compare by inner HTML, other elements by outer HTML.
func removeMatching(el *html.Node, list []*html.Node) ([]*html.Node, bool) {
	for i, candidate := range list {
		if el.Data == "title" {
			if candidate.Data != "title" {
				continue
			}
			if dom.InnerHTML(el) == dom.InnerHTML(candidate) {
				return append(list[:i], list[i+1:]...), true
			}
		}
		if dom.OuterHTML(el) == dom.OuterHTML(candidate) {
			return append(list[:i], list[i+1:]...), true
		}
	}
	return list, false
}
