// Package history tags history entries with restoration identifiers and
// keeps per-identifier restoration data (scroll positions).
package history

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/hazyhaar/pagedrive/dom"
	"github.com/hazyhaar/pagedrive/idgen"
)

// Method selects how an entry is recorded.
type Method int

const (
	Push Method = iota
	Replace
)

func (m Method) String() string {
	if m == Replace {
		return "replace"
	}
	return "push"
}

// State is stored with every history entry the engine writes.
type State struct {
	Drive *EntryState `json:"drive,omitempty"`
}

// EntryState correlates an entry with its restoration data.
type EntryState struct {
	RestorationIdentifier string `json:"restorationIdentifier"`
}

// Platform is the host's history API.
type Platform interface {
	PushState(state State, u *url.URL)
	ReplaceState(state State, u *url.URL)
}

// Delegate hears about back/forward navigations.
type Delegate interface {
	HistoryPoppedToLocationWithRestorationIdentifier(u *url.URL, restorationID string)
}

// History writes tagged entries and gates popstate until the page loaded.
type History struct {
	Location              *url.URL
	RestorationIdentifier string

	delegate Delegate
	platform Platform
	store    RestorationStore
	doc      *dom.Document
	ids      idgen.Generator
	post     func(func())
	logger   *slog.Logger

	started              bool
	pageLoaded           bool
	scrollRestorationSet bool
}

// Option configures a History.
type Option func(*History)

// WithStore sets the restoration data store. Default: in memory.
func WithStore(s RestorationStore) Option { return func(h *History) { h.store = s } }

// WithIDGenerator sets the restoration identifier generator.
func WithIDGenerator(g idgen.Generator) Option { return func(h *History) { h.ids = g } }

// WithScheduler sets how the page-loaded flag is deferred to the next task.
func WithScheduler(post func(func())) Option { return func(h *History) { h.post = post } }

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option { return func(h *History) { h.logger = l } }

// New creates a History over platform for doc.
func New(d Delegate, platform Platform, doc *dom.Document, opts ...Option) *History {
	h := &History{
		delegate: d,
		platform: platform,
		doc:      doc,
		store:    NewMemoryStore(),
		ids:      idgen.UUIDv7(),
		post:     func(fn func()) { fn() },
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Start tags the current entry with a fresh restoration identifier.
func (h *History) Start() {
	if h.started {
		return
	}
	h.started = true
	h.Replace(h.doc.URL, "")
}

// Stop ignores further popstate events.
func (h *History) Stop() { h.started = false }

// Started reports whether Start ran.
func (h *History) Started() bool { return h.started }

// Push records a new entry.
func (h *History) Push(u *url.URL, restorationID string) { h.Update(Push, u, restorationID) }

// Replace overwrites the current entry.
func (h *History) Replace(u *url.URL, restorationID string) { h.Update(Replace, u, restorationID) }

// Update writes an entry with method. An empty restorationID gets a new one.
func (h *History) Update(m Method, u *url.URL, restorationID string) {
	if restorationID == "" {
		restorationID = h.ids()
	}
	state := State{Drive: &EntryState{RestorationIdentifier: restorationID}}
	if m == Replace {
		h.platform.ReplaceState(state, u)
	} else {
		h.platform.PushState(state, u)
	}
	h.Location = u
	h.RestorationIdentifier = restorationID
	h.doc.SetURL(u)
	h.logger.Debug("history: update", "method", m.String(), "url", u.String(), "restoration_id", restorationID)
}

// RestorationDataForIdentifier returns what was recorded for id.
func (h *History) RestorationDataForIdentifier(ctx context.Context, id string) RestorationData {
	data, err := h.store.Get(ctx, id)
	if err != nil {
		h.logger.Warn("history: restoration data", "restoration_id", id, "error", err)
		return RestorationData{}
	}
	return data
}

// UpdateRestorationData merges data into the current entry's record.
func (h *History) UpdateRestorationData(ctx context.Context, data RestorationData) {
	if h.RestorationIdentifier == "" {
		return
	}
	if err := h.store.Update(ctx, h.RestorationIdentifier, data); err != nil {
		h.logger.Warn("history: update restoration data", "restoration_id", h.RestorationIdentifier, "error", err)
	}
}

// AssumeControlOfScrollRestoration disables host scroll restoration while
// a restore visit positions the page itself.
func (h *History) AssumeControlOfScrollRestoration() { h.scrollRestorationSet = true }

// RelinquishControlOfScrollRestoration hands scroll restoration back.
func (h *History) RelinquishControlOfScrollRestoration() { h.scrollRestorationSet = false }

// ControlsScrollRestoration reports whether the engine restores scrolling.
func (h *History) ControlsScrollRestoration() bool { return h.scrollRestorationSet }

// PageLoaded marks the page as loaded after the current task, so a
// popstate fired by the load itself is still ignored.
func (h *History) PageLoaded() {
	h.post(func() { h.pageLoaded = true })
}

// OnPopState handles a back/forward navigation to u.
func (h *History) OnPopState(state *State, u *url.URL) {
	h.doc.SetURL(u)
	if !h.started || !h.shouldHandlePopState() {
		return
	}
	if state == nil || state.Drive == nil {
		return
	}
	h.Location = u
	h.RestorationIdentifier = state.Drive.RestorationIdentifier
	h.delegate.HistoryPoppedToLocationWithRestorationIdentifier(u, h.RestorationIdentifier)
}

func (h *History) shouldHandlePopState() bool {
	return h.pageLoaded || h.doc.ReadyState == dom.Complete
}
