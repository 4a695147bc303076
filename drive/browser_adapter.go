package drive

import (
	"log/slog"
	"net/url"

	"github.com/hazyhaar/pagedrive/fetch"
	"github.com/hazyhaar/pagedrive/render"
)

// BrowserAdapter is the default Adapter: it loads cached previews, issues
// requests, renders responses and falls back to a full reload when a
// response cannot be rendered.
type BrowserAdapter struct {
	nav      *Navigator
	platform Platform
	events   *Events
	logger   *slog.Logger
	location *url.URL
}

// NewBrowserAdapter creates an adapter driving nav.
func NewBrowserAdapter(nav *Navigator, platform Platform, events *Events, logger *slog.Logger) *BrowserAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserAdapter{nav: nav, platform: platform, events: events, logger: logger}
}

func (a *BrowserAdapter) VisitProposedToLocation(u *url.URL, opts VisitOptions) {
	a.nav.StartVisit(u, opts.RestorationIdentifier, opts)
}

func (a *BrowserAdapter) VisitStarted(v *Visit) {
	a.location = v.Location
	v.LoadCachedSnapshot()
	v.IssueRequest()
	v.GoToSamePageAnchor()
}

func (a *BrowserAdapter) VisitRequestStarted(v *Visit) {
	a.logger.Debug("drive: visit request started", "visit_id", v.ID, "url", v.Location.String(), "action", string(v.Action))
}

func (a *BrowserAdapter) VisitRequestCompleted(v *Visit) { v.LoadResponse() }

func (a *BrowserAdapter) VisitRequestFailedWithStatusCode(v *Visit, status int) {
	switch status {
	case fetch.NetworkFailure, fetch.TimeoutFailure, fetch.ContentTypeMismatch:
		code := status
		a.reload(render.Reason{Reason: render.ReasonRequestFailed, StatusCode: &code})
	default:
		v.LoadResponse()
	}
}

func (a *BrowserAdapter) VisitRequestFinished(v *Visit) {
	a.logger.Debug("drive: visit request finished", "visit_id", v.ID)
}

func (a *BrowserAdapter) VisitRendered(*Visit) {}

func (a *BrowserAdapter) VisitCompleted(*Visit) {}

func (a *BrowserAdapter) VisitFailed(v *Visit) {
	status := 0
	if r := v.Response(); r != nil {
		status = r.StatusCode
	}
	a.logger.Info("drive: visit failed", "visit_id", v.ID, "url", v.Location.String(), "status", status)
}

func (a *BrowserAdapter) FormSubmissionStarted(f *FormSubmission) {
	a.logger.Debug("drive: form submission started", "method", string(f.Method), "url", f.Location.String())
}

func (a *BrowserAdapter) FormSubmissionFinished(f *FormSubmission) {
	a.logger.Debug("drive: form submission finished", "method", string(f.Method), "url", f.Location.String())
}

func (a *BrowserAdapter) PageInvalidated(reason render.Reason) { a.reload(reason) }

func (a *BrowserAdapter) reload(reason render.Reason) {
	a.events.NotifyReload(reason)
	u := a.location
	if u == nil {
		u = a.nav.Location()
	}
	if u == nil {
		u = a.nav.view.Document().URL
	}
	a.logger.Info("drive: reloading", "reason", reason.Reason, "url", u.String())
	a.platform.Reload(u)
}
