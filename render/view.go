package render

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/net/html"

	"github.com/hazyhaar/pagedrive/dom"
	"github.com/hazyhaar/pagedrive/location"
	"github.com/hazyhaar/pagedrive/snapshot"
)

// ErrRenderInProgress is returned when a render is requested from inside
// another render.
var ErrRenderInProgress = errors.New("render: render already in progress")

// RenderEvent is the interception checkpoint before the DOM swap. Hooks may
// replace Render or Pause the swap until the returned resume func runs.
type RenderEvent struct {
	Kind      Kind
	NewBody   *html.Node
	IsPreview bool
	Render    ElementRenderer

	resume chan struct{}
}

// Pause holds the render until resume is called, from any goroutine.
func (e *RenderEvent) Pause() (resume func()) {
	if e.resume == nil {
		e.resume = make(chan struct{})
	}
	ch := e.resume
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Paused reports whether a hook paused the render.
func (e *RenderEvent) Paused() bool { return e.resume != nil }

// ViewDelegate observes and intercepts renders.
type ViewDelegate interface {
	AllowsImmediateRender(ev *RenderEvent)
	ViewRenderedSnapshot(r Renderer)
	PreloadOnLoadLinksForView(root *html.Node)
	ViewInvalidated(reason Reason)
	ViewWillCacheSnapshot()
}

// View owns the live document and drives renderers through a render.
// Renders run to completion on the loop goroutine, so a render that has
// passed its frame gate is never interleaved with another.
type View struct {
	env       *Env
	delegate  ViewDelegate
	rendering bool
}

// NewView binds a view to env.
func NewView(env *Env, d ViewDelegate) *View {
	env.defaults()
	return &View{env: env, delegate: d}
}

// Document returns the live document.
func (v *View) Document() *dom.Document { return v.env.Doc }

// Env returns the rendering environment.
func (v *View) Env() *Env { return v.env }

// Rendering reports whether a render is underway.
func (v *View) Rendering() bool { return v.rendering }

// Render runs r through prepare, interception, swap, notification and
// finish. A renderer that should not render invalidates the view instead.
func (v *View) Render(ctx context.Context, r Renderer) error {
	if !r.ShouldRender() {
		v.Invalidate(r.ReloadReason())
		return nil
	}
	if v.rendering {
		return ErrRenderInProgress
	}
	v.rendering = true
	defer func() { v.rendering = false }()

	v.markAsPreview(r.IsPreview())
	if err := r.PrepareToRender(ctx); err != nil {
		return fmt.Errorf("render: prepare: %w", err)
	}

	ev := &RenderEvent{Kind: r.Kind(), NewBody: r.NewElement(), IsPreview: r.IsPreview()}
	v.delegate.AllowsImmediateRender(ev)
	if ev.Paused() {
		select {
		case <-ev.resume:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if ev.Render != nil {
		r.SetRenderElement(ev.Render)
	}

	if err := r.Render(ctx); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	v.delegate.ViewRenderedSnapshot(r)
	v.delegate.PreloadOnLoadLinksForView(v.env.Doc.DocumentElement())
	r.FinishRendering()
	return nil
}

// Invalidate asks the delegate to reload the page.
func (v *View) Invalidate(reason Reason) {
	v.delegate.ViewInvalidated(reason)
}

func (v *View) markAsPreview(isPreview bool) {
	root := v.env.Doc.DocumentElement()
	if root == nil {
		return
	}
	if isPreview {
		dom.SetAttr(root, dom.AttrPreview, "")
	} else {
		dom.RemoveAttr(root, dom.AttrPreview)
	}
}

// ScrollToAnchor scrolls to and focuses the anchor target, or to the top
// when there is none.
func (v *View) ScrollToAnchor(anchor string) {
	el := snapshot.FromDocument(v.env.Doc).ElementForAnchor(anchor)
	if el == nil {
		v.ScrollToPosition(dom.Position{})
		return
	}
	v.ScrollToElement(el)
	v.FocusElement(el)
}

// ScrollToAnchorFromLocation scrolls to the fragment of u.
func (v *View) ScrollToAnchorFromLocation(u *url.URL) {
	v.ScrollToAnchor(location.Anchor(u))
}

// ScrollToElement brings el into view.
func (v *View) ScrollToElement(el *html.Node) { v.env.Doc.ScrollIntoView(el) }

// FocusElement focuses el.
func (v *View) FocusElement(el *html.Node) { v.env.Doc.Focus(el) }

// ScrollToPosition moves the viewport.
func (v *View) ScrollToPosition(pos dom.Position) { v.env.Doc.ScrollTo(pos) }

// ScrollToTop moves the viewport to the origin.
func (v *View) ScrollToTop() { v.ScrollToPosition(dom.Position{}) }
