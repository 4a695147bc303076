package drive

import (
	"fmt"
	"net/url"

	"golang.org/x/net/html"

	"github.com/hazyhaar/pagedrive/dom"
	"github.com/hazyhaar/pagedrive/fetch"
	"github.com/hazyhaar/pagedrive/render"
)

// FrameLoad is one fetch of a drive-frame's content.
type FrameLoad struct {
	ID       string
	Frame    *html.Node
	Location *url.URL
	Request  *fetch.Request

	nav  *Navigator
	err  error
	done func(error)
}

// FindFrame returns the drive-frame with id under root.
func FindFrame(root *html.Node, id string) *html.Node {
	return dom.Find(root, func(n *html.Node) bool {
		return n.Data == dom.TagFrame && dom.ID(n) == id
	})
}

// LoadFrame fetches u and renders its matching frame into the frame with
// id. done receives the outcome once the request finished; a newer load of
// the same frame cancels the older one.
func (n *Navigator) LoadFrame(id string, u *url.URL, done func(error)) {
	if done == nil {
		done = func(error) {}
	}
	frame := FindFrame(n.view.Document().Root, id)
	if frame == nil {
		done(fmt.Errorf("drive: no <%s id=%q> in the document", dom.TagFrame, id))
		return
	}
	if prev := n.frameLoads[id]; prev != nil {
		prev.Request.Cancel()
	}
	fl := &FrameLoad{ID: id, Frame: frame, Location: u, nav: n, done: done}
	fl.Request = fetch.NewRequest(fl, n.client, n.loop, fetch.Get, u, nil, "")
	fl.Request.Target = frame
	fl.Request.SetInterceptor(n.interceptor)
	n.frameLoads[id] = fl
	dom.SetAttr(frame, "src", u.String())
	fl.Request.Perform(n.ctx)
}

func (fl *FrameLoad) PrepareRequest(r *fetch.Request) {
	r.Header.Set(HeaderFrame, fl.ID)
	if dom.HasAttr(fl.Frame, dom.AttrStream) {
		r.AcceptResponseType(dom.StreamContentType)
	}
}

func (fl *FrameLoad) RequestStarted(*fetch.Request) { markAsBusy(fl.Frame) }

func (fl *FrameLoad) RequestPreventedHandlingResponse(*fetch.Request, *fetch.Response) {}

func (fl *FrameLoad) RequestSucceededWithResponse(_ *fetch.Request, resp *fetch.Response) {
	fl.loadResponse(resp)
}

func (fl *FrameLoad) RequestFailedWithResponse(_ *fetch.Request, resp *fetch.Response) {
	fl.loadResponse(resp)
}

func (fl *FrameLoad) RequestErrored(_ *fetch.Request, err error) {
	fl.err = fmt.Errorf("drive: frame %q: %w", fl.ID, err)
}

func (fl *FrameLoad) RequestFinished(r *fetch.Request) {
	clearBusyState(fl.Frame)
	if fl.nav.frameLoads[fl.ID] == fl {
		delete(fl.nav.frameLoads, fl.ID)
	}
	if r.Canceled() && fl.err == nil {
		fl.err = fmt.Errorf("drive: frame %q: load canceled", fl.ID)
	}
	if fl.err != nil {
		fl.nav.logger.Warn("drive: frame load", "frame", fl.ID, "url", fl.Location.String(), "error", fl.err)
	}
	fl.done(fl.err)
}

func (fl *FrameLoad) loadResponse(resp *fetch.Response) {
	body, ok := resp.HTML()
	if !ok {
		fl.err = fmt.Errorf("drive: frame %q: response is not HTML (%s)", fl.ID, resp.ContentType())
		return
	}
	root, err := dom.ParseHTML(body)
	if err != nil {
		fl.err = fmt.Errorf("drive: frame %q: parse: %w", fl.ID, err)
		return
	}
	next := FindFrame(root, fl.ID)
	if next == nil {
		visit := func(u *url.URL) { fl.nav.ProposeVisit(u, VisitOptions{}) }
		if fl.nav.events.frameMissing(fl.ID, resp, visit) {
			return
		}
		fl.err = fmt.Errorf("%w: the response (%d) did not contain the expected <%s id=%q>",
			ErrFrameMissing, resp.StatusCode, dom.TagFrame, fl.ID)
		return
	}
	r := render.NewFrameRenderer(fl.nav.view.Env(), fl.Frame, next, false)
	if err := fl.nav.view.Render(fl.nav.ctx, r); err != nil {
		fl.err = fmt.Errorf("drive: frame %q: %w", fl.ID, err)
		return
	}
	fl.nav.events.frameRender(fl.Frame, resp)
	fl.nav.events.frameLoad(fl.Frame)
}
