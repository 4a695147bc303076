package drive

import (
	"context"
	"net/url"
	"time"

	"github.com/hazyhaar/pagedrive/dom"
	"github.com/hazyhaar/pagedrive/fetch"
	"github.com/hazyhaar/pagedrive/internal/loop"
	"github.com/hazyhaar/pagedrive/location"
	"github.com/hazyhaar/pagedrive/snapshot"
)

// VisitState is the lifecycle position of a Visit.
type VisitState string

const (
	VisitInitialized VisitState = "initialized"
	VisitStarted     VisitState = "started"
	VisitCanceled    VisitState = "canceled"
	VisitFailed      VisitState = "failed"
	VisitCompleted   VisitState = "completed"
)

// TimingMetric names a timestamp recorded during a visit.
type TimingMetric string

const (
	MetricVisitStart   TimingMetric = "visitStart"
	MetricRequestStart TimingMetric = "requestStart"
	MetricRequestEnd   TimingMetric = "requestEnd"
	MetricVisitEnd     TimingMetric = "visitEnd"
)

// TimingMetrics maps metrics to when they were recorded.
type TimingMetrics map[TimingMetric]time.Time

// VisitResponse is what a visit knows about its response.
type VisitResponse struct {
	StatusCode int
	Redirected bool
	HTML       string
	HasHTML    bool
}

func (r *VisitResponse) succeeded() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// VisitOptions tune a visit. The zero value is an advance visit that
// renders, updates history and caches the outgoing page.
type VisitOptions struct {
	Action         Action
	HistoryChanged bool
	Referrer       *url.URL
	// Snapshot is cached in place of the live page.
	Snapshot *snapshot.PageSnapshot
	// SnapshotHTML is rendered as a preview when nothing is cached.
	SnapshotHTML string
	// Response makes the visit skip the network.
	Response              *VisitResponse
	VisitCachedSnapshot   func(*snapshot.PageSnapshot)
	SkipRender            bool
	SkipHistoryUpdate     bool
	SkipSnapshotCache     bool
	RestorationIdentifier string
	AcceptsStreamResponse bool
}

// Visit is one navigation attempt. Every method must be called on the loop
// goroutine.
type Visit struct {
	ID                    string
	Location              *url.URL
	RestorationIdentifier string
	Action                Action
	Referrer              *url.URL

	nav    *Navigator
	ctx    context.Context
	state  VisitState
	timing TimingMetrics

	historyChanged        bool
	updateHistory         bool
	willRender            bool
	scrolled              bool
	shouldCacheSnapshot   bool
	acceptsStreamResponse bool
	snapshotCached        bool
	followedRedirect      bool
	isSamePage            bool

	snapshot            *snapshot.PageSnapshot
	snapshotHTML        string
	response            *VisitResponse
	redirectedTo        *url.URL
	request             *fetch.Request
	visitCachedSnapshot func(*snapshot.PageSnapshot)

	frame     *loop.Frame
	renderGen uint64
}

func newVisit(n *Navigator, u *url.URL, restorationID string, opts VisitOptions) *Visit {
	if opts.Action == "" {
		opts.Action = Advance
	}
	if restorationID == "" {
		restorationID = n.ids()
	}
	v := &Visit{
		ID:                    n.ids(),
		Location:              u,
		RestorationIdentifier: restorationID,
		Action:                opts.Action,
		Referrer:              opts.Referrer,
		nav:                   n,
		ctx:                   n.ctx,
		state:                 VisitInitialized,
		timing:                TimingMetrics{},
		historyChanged:        opts.HistoryChanged,
		updateHistory:         !opts.SkipHistoryUpdate,
		willRender:            !opts.SkipRender,
		scrolled:              opts.SkipRender,
		shouldCacheSnapshot:   !opts.SkipSnapshotCache,
		acceptsStreamResponse: opts.AcceptsStreamResponse,
		snapshot:              opts.Snapshot,
		snapshotHTML:          opts.SnapshotHTML,
		response:              opts.Response,
		visitCachedSnapshot:   opts.VisitCachedSnapshot,
	}
	v.isSamePage = n.LocationWithActionIsSamePage(u, v.Action)
	return v
}

// State returns the lifecycle state.
func (v *Visit) State() VisitState { return v.state }

// Silent reports a same-page anchor visit, which emits no visit event.
func (v *Visit) Silent() bool { return v.isSamePage }

// IsSamePage reports an anchor-only navigation within the current page.
func (v *Visit) IsSamePage() bool { return v.isSamePage }

// WillRender reports whether the visit swaps in new content.
func (v *Visit) WillRender() bool { return v.willRender }

// AcceptsStreamResponse reports whether stream responses are welcome.
func (v *Visit) AcceptsStreamResponse() bool { return v.acceptsStreamResponse }

// Response returns the recorded response, or nil.
func (v *Visit) Response() *VisitResponse { return v.response }

// RedirectedToLocation is the final location of a redirected response.
func (v *Visit) RedirectedToLocation() *url.URL { return v.redirectedTo }

// Timing returns a copy of the recorded timing metrics.
func (v *Visit) Timing() TimingMetrics {
	out := make(TimingMetrics, len(v.timing))
	for k, t := range v.timing {
		out[k] = t
	}
	return out
}

// Start begins the visit. No-op unless initialized.
func (v *Visit) Start() {
	if v.state != VisitInitialized {
		return
	}
	v.recordTimingMetric(MetricVisitStart)
	v.state = VisitStarted
	v.nav.adapter.VisitStarted(v)
	v.nav.visitStarted(v)
}

// Request returns the visit's network request, nil until one is issued.
func (v *Visit) Request() *fetch.Request { return v.request }

// Cancel aborts the request and any scheduled render. No-op unless started.
func (v *Visit) Cancel() {
	if v.state != VisitStarted {
		return
	}
	if v.request != nil {
		v.request.Cancel()
	}
	v.cancelRender()
	v.state = VisitCanceled
}

// Complete finishes the visit, or hands over to a follow-up visit when the
// response was redirected. No-op unless started.
func (v *Visit) Complete() {
	if v.state != VisitStarted {
		return
	}
	v.recordTimingMetric(MetricVisitEnd)
	v.state = VisitCompleted
	v.followRedirect()
	if !v.followedRedirect {
		v.nav.adapter.VisitCompleted(v)
		v.nav.visitCompleted(v)
	}
}

// Fail finishes the visit as failed. No-op unless started.
func (v *Visit) Fail() {
	if v.state != VisitStarted {
		return
	}
	v.state = VisitFailed
	v.nav.adapter.VisitFailed(v)
	v.nav.visitCompleted(v)
}

// ChangeHistory records the visit in history, at most once.
func (v *Visit) ChangeHistory() {
	if v.historyChanged || !v.updateHistory {
		return
	}
	action := v.Action
	if location.Equal(v.Location, v.Referrer) {
		action = Replace
	}
	v.nav.history.Update(action.HistoryMethod(), v.Location, v.RestorationIdentifier)
	v.historyChanged = true
}

// IssueRequest fetches the location unless a response was supplied or
// nothing needs to be fetched.
func (v *Visit) IssueRequest() {
	if v.response != nil {
		v.simulateRequest()
		return
	}
	if v.shouldIssueRequest() && v.request == nil {
		v.request = fetch.NewRequest(v, v.nav.client, v.nav.loop, fetch.Get, v.Location, nil, "")
		v.request.SetInterceptor(v.nav.interceptor)
		v.request.Perform(v.ctx)
	}
}

func (v *Visit) simulateRequest() {
	v.startRequest()
	v.recordResponse(v.response)
	v.finishRequest()
}

func (v *Visit) startRequest() {
	v.recordTimingMetric(MetricRequestStart)
	v.nav.adapter.VisitRequestStarted(v)
}

func (v *Visit) recordResponse(r *VisitResponse) {
	v.response = r
	if r == nil {
		return
	}
	if r.succeeded() {
		v.nav.adapter.VisitRequestCompleted(v)
	} else {
		v.nav.adapter.VisitRequestFailedWithStatusCode(v, r.StatusCode)
	}
}

func (v *Visit) finishRequest() {
	v.recordTimingMetric(MetricRequestEnd)
	v.nav.adapter.VisitRequestFinished(v)
}

// LoadResponse renders the response: the page on success, the error page
// otherwise.
func (v *Visit) LoadResponse() {
	r := v.response
	if r == nil {
		return
	}
	v.render(func() {
		if v.shouldCacheSnapshot {
			v.cacheSnapshot()
		}
		next, err := snapshot.FromHTML(r.HTML)
		if err != nil {
			v.nav.logger.Error("drive: parse response", "visit_id", v.ID, "url", v.Location.String(), "error", err)
			v.Fail()
			return
		}
		if r.succeeded() && r.HasHTML {
			v.renderPageSnapshot(next, false)
			v.nav.adapter.VisitRendered(v)
			v.Complete()
			return
		}
		if err := v.nav.view.RenderError(v.ctx, next, v); err != nil {
			v.nav.logger.Error("drive: render error page", "visit_id", v.ID, "error", err)
		}
		v.nav.adapter.VisitRendered(v)
		v.Fail()
	})
}

// cachedSnapshot returns the snapshot a visit may show before, or instead
// of, the network response.
func (v *Visit) cachedSnapshot() *snapshot.PageSnapshot {
	s, ok := v.nav.view.CachedSnapshotForLocation(v.Location)
	if !ok {
		s = v.preloadedSnapshot()
	}
	if s == nil {
		return nil
	}
	if anchor := location.Anchor(v.Location); anchor != "" && !s.HasAnchor(anchor) {
		return nil
	}
	if v.Action == Restore || s.IsPreviewable() {
		return s
	}
	return nil
}

func (v *Visit) preloadedSnapshot() *snapshot.PageSnapshot {
	if v.snapshotHTML == "" {
		return nil
	}
	s, err := snapshot.FromHTML(v.snapshotHTML)
	if err != nil {
		return nil
	}
	return s
}

// HasCachedSnapshot reports whether a cached snapshot can be shown.
func (v *Visit) HasCachedSnapshot() bool { return v.cachedSnapshot() != nil }

// LoadCachedSnapshot renders the cached snapshot, as a preview when a
// request is still going to run.
func (v *Visit) LoadCachedSnapshot() {
	s := v.cachedSnapshot()
	if s == nil {
		return
	}
	isPreview := v.shouldIssueRequest()
	v.render(func() {
		v.cacheSnapshot()
		if v.isSamePage {
			v.nav.adapter.VisitRendered(v)
			return
		}
		v.renderPageSnapshot(s, isPreview)
		v.nav.adapter.VisitRendered(v)
		if !isPreview {
			v.Complete()
		}
	})
}

func (v *Visit) followRedirect() {
	if v.redirectedTo == nil || v.followedRedirect || v.response == nil || !v.response.Redirected {
		return
	}
	v.nav.adapter.VisitProposedToLocation(v.redirectedTo, VisitOptions{
		Action:            Replace,
		Response:          v.response,
		SkipSnapshotCache: true,
		SkipRender:        true,
	})
	v.followedRedirect = true
}

// GoToSamePageAnchor scrolls to the anchor of a same-page visit without
// fetching or rendering.
func (v *Visit) GoToSamePageAnchor() {
	if !v.isSamePage {
		return
	}
	v.render(func() {
		v.cacheSnapshot()
		v.performScroll()
		v.ChangeHistory()
		v.nav.adapter.VisitRendered(v)
		v.Complete()
	})
}

// fetch.Delegate

func (v *Visit) PrepareRequest(r *fetch.Request) {
	if v.acceptsStreamResponse {
		r.AcceptResponseType(dom.StreamContentType)
	}
}

func (v *Visit) RequestStarted(*fetch.Request) { v.startRequest() }

func (v *Visit) RequestPreventedHandlingResponse(*fetch.Request, *fetch.Response) {}

func (v *Visit) RequestSucceededWithResponse(_ *fetch.Request, resp *fetch.Response) {
	body, ok := resp.HTML()
	if !ok {
		v.recordResponse(&VisitResponse{StatusCode: fetch.ContentTypeMismatch, Redirected: resp.Redirected})
		return
	}
	if resp.Redirected {
		v.redirectedTo = resp.Location
	}
	v.recordResponse(&VisitResponse{StatusCode: resp.StatusCode, Redirected: resp.Redirected, HTML: body, HasHTML: true})
}

func (v *Visit) RequestFailedWithResponse(_ *fetch.Request, resp *fetch.Response) {
	body, ok := resp.HTML()
	if !ok {
		v.recordResponse(&VisitResponse{StatusCode: fetch.ContentTypeMismatch, Redirected: resp.Redirected})
		return
	}
	v.recordResponse(&VisitResponse{StatusCode: resp.StatusCode, Redirected: resp.Redirected, HTML: body, HasHTML: true})
}

func (v *Visit) RequestErrored(_ *fetch.Request, err error) {
	v.nav.logger.Warn("drive: visit request errored", "visit_id", v.ID, "url", v.Location.String(), "error", err)
	v.recordResponse(&VisitResponse{StatusCode: fetch.StatusForError(err)})
}

func (v *Visit) RequestFinished(*fetch.Request) { v.finishRequest() }

func (v *Visit) performScroll() {
	if v.scrolled || v.nav.view.ForceReloaded() {
		return
	}
	if v.Action == Restore {
		if !v.scrollToRestoredPosition() && !v.scrollToAnchor() {
			v.nav.view.ScrollToTop()
		}
	} else if !v.scrollToAnchor() {
		v.nav.view.ScrollToTop()
	}
	if v.isSamePage {
		v.nav.delegate.VisitScrolledToSamePageLocation(v.nav.view.LastRenderedLocation, v.Location)
	}
	v.scrolled = true
}

func (v *Visit) scrollToRestoredPosition() bool {
	data := v.nav.history.RestorationDataForIdentifier(v.ctx, v.RestorationIdentifier)
	if data.ScrollPosition == nil {
		return false
	}
	v.nav.view.ScrollToPosition(*data.ScrollPosition)
	return true
}

func (v *Visit) scrollToAnchor() bool {
	anchor := location.Anchor(v.Location)
	if anchor == "" {
		return false
	}
	v.nav.view.ScrollToAnchor(anchor)
	return true
}

func (v *Visit) recordTimingMetric(m TimingMetric) {
	v.timing[m] = time.Now()
}

func (v *Visit) shouldIssueRequest() bool {
	switch {
	case v.isSamePage:
		return false
	case v.Action == Restore:
		return !v.HasCachedSnapshot()
	default:
		return v.willRender
	}
}

func (v *Visit) cacheSnapshot() {
	if v.snapshotCached {
		return
	}
	s := v.snapshot
	if s == nil {
		s = v.nav.view.Snapshot()
	}
	if cached := v.nav.view.CacheSnapshot(s); cached != nil && v.visitCachedSnapshot != nil {
		v.visitCachedSnapshot(cached)
	}
	v.snapshotCached = true
}

// render runs fn on the next frame. A newer call supersedes one whose frame
// has not fired yet.
func (v *Visit) render(fn func()) {
	v.cancelRender()
	gen := v.renderGen
	v.frame = v.nav.loop.RequestFrame(func() {
		if gen != v.renderGen || v.state == VisitCanceled {
			return
		}
		v.frame = nil
		fn()
	})
}

func (v *Visit) renderPageSnapshot(s *snapshot.PageSnapshot, isPreview bool) {
	if err := v.nav.view.RenderPage(v.ctx, s, isPreview, v.willRender, v); err != nil {
		v.nav.logger.Error("drive: render page", "visit_id", v.ID, "preview", isPreview, "error", err)
	}
	v.performScroll()
}

func (v *Visit) cancelRender() {
	v.renderGen++
	if v.frame != nil {
		v.frame.Cancel()
		v.frame = nil
	}
}
