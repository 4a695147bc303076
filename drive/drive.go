// Package drive runs navigations: visits, form submissions and frame loads,
// coordinated by a Navigator that keeps exactly one of each in flight.
package drive

import (
	"errors"
	"net/url"

	"golang.org/x/net/html"

	"github.com/hazyhaar/pagedrive/dom"
	"github.com/hazyhaar/pagedrive/history"
	"github.com/hazyhaar/pagedrive/render"
)

var (
	// ErrMustRedirect is reported when an unsafe form submission that was
	// required to redirect answered 200 without redirecting.
	ErrMustRedirect = errors.New("drive: form responses must redirect to another location")

	// ErrFrameMissing is reported when a frame response lacks the frame.
	ErrFrameMissing = errors.New("drive: response has no matching frame")
)

// HeaderFrame names the frame a request loads content for.
const HeaderFrame = "Drive-Frame"

// Action is how a visit changes history.
type Action string

const (
	Advance Action = "advance"
	Replace Action = "replace"
	Restore Action = "restore"
)

// ParseAction accepts advance, replace and restore.
func ParseAction(s string) (Action, bool) {
	switch Action(s) {
	case Advance, Replace, Restore:
		return Action(s), true
	}
	return "", false
}

// HistoryMethod maps the action onto a history write.
func (a Action) HistoryMethod() history.Method {
	if a == Replace {
		return history.Replace
	}
	return history.Push
}

// ActionForElements returns the first valid data-drive-action found on
// elements, or Advance.
func ActionForElements(elements ...*html.Node) Action {
	for _, el := range elements {
		if el == nil || !dom.HasAttr(el, dom.AttrAction) {
			continue
		}
		if a, ok := ParseAction(dom.Attr(el, dom.AttrAction)); ok {
			return a
		}
	}
	return Advance
}

// Platform performs navigations the engine does not intercept.
type Platform interface {
	// Assign loads u as a brand new page.
	Assign(u *url.URL)
	// Reload loads u again from scratch.
	Reload(u *url.URL)
}

// Adapter receives the lifecycle of visits and form submissions. The
// BrowserAdapter drives visits; hosts may wrap or replace it.
type Adapter interface {
	VisitProposedToLocation(u *url.URL, opts VisitOptions)
	VisitStarted(v *Visit)
	VisitRequestStarted(v *Visit)
	VisitRequestCompleted(v *Visit)
	VisitRequestFailedWithStatusCode(v *Visit, status int)
	VisitRequestFinished(v *Visit)
	VisitRendered(v *Visit)
	VisitCompleted(v *Visit)
	VisitFailed(v *Visit)
	FormSubmissionStarted(f *FormSubmission)
	FormSubmissionFinished(f *FormSubmission)
	PageInvalidated(reason render.Reason)
}

func markAsBusy(el *html.Node) {
	if el == nil {
		return
	}
	if el.Data == dom.TagFrame {
		dom.SetAttr(el, "busy", "")
	}
	dom.SetAttr(el, dom.AttrBusy, "true")
}

func clearBusyState(el *html.Node) {
	if el == nil {
		return
	}
	if el.Data == dom.TagFrame {
		dom.RemoveAttr(el, "busy")
	}
	dom.RemoveAttr(el, dom.AttrBusy)
}
