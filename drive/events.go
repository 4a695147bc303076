package drive

import (
	"net/url"

	"golang.org/x/net/html"

	"github.com/hazyhaar/pagedrive/fetch"
	"github.com/hazyhaar/pagedrive/render"
)

// Events are the application checkpoints. Every hook is optional and runs
// synchronously on the loop goroutine. Hooks returning bool can veto the
// default behavior by returning false.
type Events struct {
	// BeforeVisit returns false to cancel a proposed visit.
	BeforeVisit func(u *url.URL) bool
	Visit       func(u *url.URL, action Action)
	BeforeCache func()
	// BeforeRender may replace ev.Render or call ev.Pause.
	BeforeRender func(ev *render.RenderEvent)
	Render       func(isPreview bool)
	Load         func(u *url.URL, timing TimingMetrics)
	// SamePageVisit fires after scrolling to an anchor of the current page.
	SamePageVisit func(oldURL, newURL *url.URL)

	BeforeFetchRequest func(r *fetch.Request)
	// BeforeFetchResponse returns false to take over the response.
	BeforeFetchResponse func(r *fetch.Request, resp *fetch.Response) bool
	FetchRequestError   func(r *fetch.Request, err error)

	SubmitStart func(f *FormSubmission)
	SubmitEnd   func(f *FormSubmission, result FormSubmissionResult)
	// Confirm answers data-drive-confirm prompts. Without it every
	// confirmation is granted.
	Confirm func(message string, form, submitter *html.Node) bool

	FrameLoad   func(frame *html.Node)
	FrameRender func(frame *html.Node, resp *fetch.Response)
	// FrameMissing returns true when it handled a response lacking the
	// frame, typically by calling visit with the response location.
	FrameMissing func(frameID string, resp *fetch.Response, visit func(u *url.URL)) bool

	Reload func(reason render.Reason)
}

// AllowsVisit runs BeforeVisit. The Notify methods below run the matching
// hook when it is set; all of them accept a nil *Events.
func (e *Events) AllowsVisit(u *url.URL) bool {
	if e == nil || e.BeforeVisit == nil {
		return true
	}
	return e.BeforeVisit(u)
}

func (e *Events) NotifyVisit(u *url.URL, a Action) {
	if e != nil && e.Visit != nil {
		e.Visit(u, a)
	}
}

func (e *Events) NotifyBeforeCache() {
	if e != nil && e.BeforeCache != nil {
		e.BeforeCache()
	}
}

func (e *Events) NotifyBeforeRender(ev *render.RenderEvent) {
	if e != nil && e.BeforeRender != nil {
		e.BeforeRender(ev)
	}
}

func (e *Events) NotifyRender(isPreview bool) {
	if e != nil && e.Render != nil {
		e.Render(isPreview)
	}
}

func (e *Events) NotifyLoad(u *url.URL, t TimingMetrics) {
	if e != nil && e.Load != nil {
		e.Load(u, t)
	}
}

func (e *Events) NotifySamePageVisit(oldURL, newURL *url.URL) {
	if e != nil && e.SamePageVisit != nil {
		e.SamePageVisit(oldURL, newURL)
	}
}

func (e *Events) submitStart(f *FormSubmission) {
	if e != nil && e.SubmitStart != nil {
		e.SubmitStart(f)
	}
}

func (e *Events) submitEnd(f *FormSubmission, r FormSubmissionResult) {
	if e != nil && e.SubmitEnd != nil {
		e.SubmitEnd(f, r)
	}
}

func (e *Events) confirm(message string, form, submitter *html.Node) bool {
	if e == nil || e.Confirm == nil {
		return true
	}
	return e.Confirm(message, form, submitter)
}

func (e *Events) frameLoad(frame *html.Node) {
	if e != nil && e.FrameLoad != nil {
		e.FrameLoad(frame)
	}
}

func (e *Events) frameRender(frame *html.Node, resp *fetch.Response) {
	if e != nil && e.FrameRender != nil {
		e.FrameRender(frame, resp)
	}
}

func (e *Events) frameMissing(id string, resp *fetch.Response, visit func(*url.URL)) bool {
	if e == nil || e.FrameMissing == nil {
		return false
	}
	return e.FrameMissing(id, resp, visit)
}

func (e *Events) NotifyReload(reason render.Reason) {
	if e != nil && e.Reload != nil {
		e.Reload(reason)
	}
}

// Interceptor exposes the fetch hooks as a fetch.Interceptor.
func (e *Events) Interceptor() fetch.Interceptor { return fetchHooks{e} }

type fetchHooks struct{ e *Events }

func (h fetchHooks) BeforeFetchRequest(r *fetch.Request) {
	if h.e != nil && h.e.BeforeFetchRequest != nil {
		h.e.BeforeFetchRequest(r)
	}
}

func (h fetchHooks) BeforeFetchResponse(r *fetch.Request, resp *fetch.Response) bool {
	if h.e == nil || h.e.BeforeFetchResponse == nil {
		return true
	}
	return h.e.BeforeFetchResponse(r, resp)
}

func (h fetchHooks) FetchRequestError(r *fetch.Request, err error) {
	if h.e != nil && h.e.FetchRequestError != nil {
		h.e.FetchRequestError(r, err)
	}
}
