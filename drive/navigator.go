package drive

import (
	"context"
	"log/slog"
	"net/url"

	"golang.org/x/net/html"

	"github.com/hazyhaar/pagedrive/fetch"
	"github.com/hazyhaar/pagedrive/history"
	"github.com/hazyhaar/pagedrive/idgen"
	"github.com/hazyhaar/pagedrive/internal/loop"
	"github.com/hazyhaar/pagedrive/location"
	"github.com/hazyhaar/pagedrive/render"
	"github.com/hazyhaar/pagedrive/snapshot"
)

// NavigatorDelegate is the session side of the navigator.
type NavigatorDelegate interface {
	AllowsVisitingLocationWithAction(u *url.URL, action Action) bool
	VisitProposedToLocation(u *url.URL, opts VisitOptions)
	VisitStarted(v *Visit)
	VisitCompleted(v *Visit)
	VisitScrolledToSamePageLocation(oldURL, newURL *url.URL)
}

// Config wires a Navigator to its collaborators.
type Config struct {
	// Context bounds every request the navigator issues.
	Context     context.Context
	View        *render.PageView
	History     *history.History
	Loop        *loop.Loop
	Client      *fetch.Client
	Platform    Platform
	Interceptor fetch.Interceptor
	Events      *Events
	IDs         idgen.Generator
	Logger      *slog.Logger
	// MustRedirect requires unsafe form submissions to answer with a
	// redirect.
	MustRedirect bool
}

// Navigator keeps at most one visit and one form submission active.
type Navigator struct {
	delegate     NavigatorDelegate
	adapter      Adapter
	view         *render.PageView
	history      *history.History
	loop         *loop.Loop
	client       *fetch.Client
	platform     Platform
	interceptor  fetch.Interceptor
	events       *Events
	ids          idgen.Generator
	logger       *slog.Logger
	ctx          context.Context
	mustRedirect bool

	currentVisit   *Visit
	formSubmission *FormSubmission
	frameLoads     map[string]*FrameLoad
}

// NewNavigator creates a navigator. SetAdapter must be called before the
// first visit.
func NewNavigator(d NavigatorDelegate, cfg Config) *Navigator {
	n := &Navigator{
		delegate:     d,
		view:         cfg.View,
		history:      cfg.History,
		loop:         cfg.Loop,
		client:       cfg.Client,
		platform:     cfg.Platform,
		interceptor:  cfg.Interceptor,
		events:       cfg.Events,
		ids:          cfg.IDs,
		logger:       cfg.Logger,
		ctx:          cfg.Context,
		mustRedirect: cfg.MustRedirect,
		frameLoads:   make(map[string]*FrameLoad),
	}
	if n.ctx == nil {
		n.ctx = context.Background()
	}
	if n.ids == nil {
		n.ids = idgen.UUIDv7()
	}
	if n.logger == nil {
		n.logger = slog.Default()
	}
	if n.interceptor == nil {
		n.interceptor = n.events.Interceptor()
	}
	return n
}

// SetAdapter installs the adapter receiving visit lifecycle callbacks.
func (n *Navigator) SetAdapter(a Adapter) { n.adapter = a }

// Adapter returns the installed adapter.
func (n *Navigator) Adapter() Adapter { return n.adapter }

// View returns the page view.
func (n *Navigator) View() *render.PageView { return n.view }

// CurrentVisit returns the active visit, or nil.
func (n *Navigator) CurrentVisit() *Visit { return n.currentVisit }

// FormSubmission returns the active form submission, or nil.
func (n *Navigator) FormSubmission() *FormSubmission { return n.formSubmission }

// Location is the location of the current history entry.
func (n *Navigator) Location() *url.URL { return n.history.Location }

// RestorationIdentifier is the identifier of the current history entry.
func (n *Navigator) RestorationIdentifier() string { return n.history.RestorationIdentifier }

// ProposeVisit visits u when the delegate allows it. Locations outside the
// navigable root are handed to the platform as a full navigation.
func (n *Navigator) ProposeVisit(u *url.URL, opts VisitOptions) {
	if opts.Action == "" {
		opts.Action = Advance
	}
	if !n.delegate.AllowsVisitingLocationWithAction(u, opts.Action) {
		n.logger.Debug("drive: visit vetoed", "url", u.String())
		return
	}
	root := n.view.Snapshot().RootLocation(n.view.Document().URL)
	if location.IsVisitable(u, root) {
		n.delegate.VisitProposedToLocation(u, opts)
		return
	}
	n.platform.Assign(u)
}

// StartVisit stops whatever is in flight and starts a visit to u.
func (n *Navigator) StartVisit(u *url.URL, restorationID string, opts VisitOptions) {
	n.Stop()
	if opts.Referrer == nil {
		opts.Referrer = n.Location()
	}
	n.currentVisit = newVisit(n, u, restorationID, opts)
	n.currentVisit.Start()
}

// SubmitForm stops whatever is in flight and submits form.
func (n *Navigator) SubmitForm(form, submitter *html.Node) {
	n.Stop()
	f, err := NewFormSubmission(n, FormEnv{
		Doc:         n.view.Document(),
		Client:      n.client,
		Runner:      n.loop,
		Interceptor: n.interceptor,
		Events:      n.events,
	}, form, submitter, n.mustRedirect)
	if err != nil {
		n.logger.Error("drive: form submission", "error", err)
		return
	}
	n.formSubmission = f
	if !f.Start(n.ctx) {
		n.formSubmission = nil
	}
}

// Stop stops the active form submission and cancels the active visit.
func (n *Navigator) Stop() {
	if n.formSubmission != nil {
		n.formSubmission.Stop()
		n.formSubmission = nil
	}
	if n.currentVisit != nil {
		n.currentVisit.Cancel()
		n.currentVisit = nil
	}
}

// LocationWithActionIsSamePage reports an anchor-only navigation within the
// last rendered page.
func (n *Navigator) LocationWithActionIsSamePage(u *url.URL, action Action) bool {
	last := n.view.LastRenderedLocation
	if last == nil {
		return false
	}
	anchor := location.Anchor(u)
	isRestorationToTop := action == Restore && anchor == ""
	return action != Replace &&
		location.RequestURL(u) == location.RequestURL(last) &&
		(isRestorationToTop || (anchor != "" && anchor != location.Anchor(last)))
}

// FormSubmissionDelegate

func (n *Navigator) FormSubmissionStarted(f *FormSubmission) {
	n.adapter.FormSubmissionStarted(f)
}

func (n *Navigator) FormSubmissionSucceededWithResponse(f *FormSubmission, resp *fetch.Response) {
	if f != n.formSubmission {
		return
	}
	body, ok := resp.HTML()
	if !ok || body == "" {
		return
	}
	shouldCacheSnapshot := f.IsSafe()
	if !shouldCacheSnapshot {
		n.view.ClearSnapshotCache()
	}
	n.ProposeVisit(resp.Location, VisitOptions{
		Action:            ActionForElements(f.Submitter, f.Form),
		SkipSnapshotCache: !shouldCacheSnapshot,
		Response: &VisitResponse{
			StatusCode: resp.StatusCode,
			Redirected: resp.Redirected,
			HTML:       body,
			HasHTML:    true,
		},
	})
}

func (n *Navigator) FormSubmissionFailedWithResponse(f *FormSubmission, resp *fetch.Response) {
	body, ok := resp.HTML()
	if !ok || body == "" {
		return
	}
	next, err := snapshot.FromHTML(body)
	if err != nil {
		n.logger.Error("drive: parse form response", "error", err)
		return
	}
	var changer render.HistoryChanger
	if n.currentVisit != nil {
		changer = n.currentVisit
	}
	if resp.ServerError() {
		err = n.view.RenderError(n.ctx, next, changer)
	} else {
		err = n.view.RenderPage(n.ctx, next, false, true, changer)
	}
	if err != nil {
		n.logger.Error("drive: render form response", "status", resp.StatusCode, "error", err)
	}
	n.view.ScrollToTop()
	n.view.ClearSnapshotCache()
}

func (n *Navigator) FormSubmissionErrored(f *FormSubmission, err error) {
	n.logger.Error("drive: form submission errored",
		"method", string(f.Method), "url", f.Location.String(), "error", err)
}

func (n *Navigator) FormSubmissionFinished(f *FormSubmission) {
	n.adapter.FormSubmissionFinished(f)
}

// visitStarted marks the document busy unless the visit may answer with
// a stream message, which leaves the page in place.
func (n *Navigator) visitStarted(v *Visit) {
	if !v.AcceptsStreamResponse() {
		markAsBusy(n.view.Document().DocumentElement())
	}
	n.delegate.VisitStarted(v)
}

func (n *Navigator) visitCompleted(v *Visit) {
	clearBusyState(n.view.Document().DocumentElement())
	n.delegate.VisitCompleted(v)
}
