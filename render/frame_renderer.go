package render

import (
	"context"

	"golang.org/x/net/html"

	"github.com/hazyhaar/pagedrive/dom"
	"github.com/hazyhaar/pagedrive/snapshot"
)

// FrameRenderer replaces the contents of a frame element with those of the
// matching frame from a response.
type FrameRenderer struct {
	base
	frame *html.Node
}

// NewFrameRenderer prepares a render of next into the live frame element.
func NewFrameRenderer(env *Env, frame, next *html.Node, isPreview bool) *FrameRenderer {
	r := &FrameRenderer{
		base: base{
			env:        env,
			current:    snapshot.New(frame),
			next:       snapshot.New(next),
			isPreview:  isPreview,
			willRender: true,
		},
		frame: frame,
	}
	r.renderElement = replaceFrameContents
	return r
}

// Kind implements Renderer.
func (r *FrameRenderer) Kind() Kind { return KindFrame }

// ShouldRender requires the frame to still be attached.
func (r *FrameRenderer) ShouldRender() bool { return r.env.Doc.IsConnected(r.frame) }

// Render moves the new frame's children in, inside the Bardo, then
// scrolls and activates scripts.
func (r *FrameRenderer) Render(ctx context.Context) error {
	err := r.preservingPermanentElements(func() error {
		r.renderElement(r.frame, r.next.Element())
		return nil
	})
	if err != nil {
		return err
	}
	if dom.HasAttr(r.frame, "autoscroll") {
		r.env.Doc.ScrollIntoView(r.frame)
	}
	r.activateScripts(ctx, r.frame)
	return nil
}

// FinishRendering focuses the first autofocus element in the frame.
func (r *FrameRenderer) FinishRendering() {
	if el := r.current.FirstAutofocusableElement(); el != nil {
		r.env.Doc.Focus(el)
	}
}

func replaceFrameContents(current, next *html.Node) {
	dom.RemoveChildren(current)
	dom.MoveChildren(current, next)
}
