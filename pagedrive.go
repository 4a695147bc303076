// Package pagedrive is a headless client-side navigation engine. A Session
// holds one live HTML document and navigates it the way a page-accelerating
// browser runtime would: link visits and form submissions fetch the next
// page and swap its body in place, keep permanent elements alive, cache
// snapshots for back/forward and previews, and fall back to full loads
// whenever a response cannot be rendered in place.
//
// Usage:
//
//	s, err := pagedrive.New(cfg, pagedrive.WithLogger(logger))
//	defer s.Close()
//	err = s.Visit(ctx, "https://example.com/", drive.Advance)
//	err = s.FollowLink(ctx, "a#next")
//	page, err := s.Page(ctx, pagedrive.FormatMarkdown)
//
// Every intent method posts its work onto the session's event loop and
// returns once the loop went idle, so callers observe the settled page.
package pagedrive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/pagedrive/dom"
	"github.com/hazyhaar/pagedrive/drive"
	"github.com/hazyhaar/pagedrive/fetch"
	"github.com/hazyhaar/pagedrive/history"
	"github.com/hazyhaar/pagedrive/idgen"
	"github.com/hazyhaar/pagedrive/internal/config"
	"github.com/hazyhaar/pagedrive/internal/loop"
	"github.com/hazyhaar/pagedrive/render"
)

var (
	// ErrNotHTML is returned when a full page load answers with something
	// other than HTML.
	ErrNotHTML = errors.New("pagedrive: response is not HTML")

	// ErrNoElement is returned when a selector matches nothing.
	ErrNoElement = errors.New("pagedrive: no element matches")

	// ErrNoHistory is returned by Back and Forward at either end of history.
	ErrNoHistory = errors.New("pagedrive: no history entry in that direction")
)

const blankPage = "<html><head></head><body></body></html>"

// Session is one headless browsing context.
type Session struct {
	cfg    *config.Config
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	loop      *loop.Loop
	loopDone  chan struct{}
	client    *fetch.Client
	doc       *dom.Document
	env       *render.Env
	view      *render.PageView
	stack     *history.Stack
	history   *history.History
	store     history.RestorationStore
	nav       *drive.Navigator
	platform  drive.Platform
	loader    *Loader
	preloader *drive.Preloader
	events    *drive.Events
	ids       idgen.Generator

	enabled    bool
	lastErr    error
	closeStore func() error
}

type options struct {
	logger    *slog.Logger
	http      *http.Client
	adapter   func(*drive.Navigator, drive.Platform) drive.Adapter
	platform  drive.Platform
	events    *drive.Events
	loop      *loop.Loop
	store     history.RestorationStore
	scripts   render.ScriptRunner
	resources render.ResourceLoader
	ids       idgen.Generator
}

// Option configures a Session.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithHTTPClient sets the HTTP client requests go through.
func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.http = c } }

// WithAdapter replaces the default BrowserAdapter.
func WithAdapter(fn func(nav *drive.Navigator, platform drive.Platform) drive.Adapter) Option {
	return func(o *options) { o.adapter = fn }
}

// WithPlatform replaces the headless Loader for full navigations.
func WithPlatform(p drive.Platform) Option { return func(o *options) { o.platform = p } }

// WithEvents installs application hooks.
func WithEvents(e *drive.Events) Option { return func(o *options) { o.events = e } }

// WithLoop runs the session on lp instead of a loop of its own.
func WithLoop(lp *loop.Loop) Option { return func(o *options) { o.loop = lp } }

// WithRestorationStore overrides the store chosen by the configuration.
func WithRestorationStore(s history.RestorationStore) Option {
	return func(o *options) { o.store = s }
}

// WithScriptRunner sets what runs activated scripts.
func WithScriptRunner(r render.ScriptRunner) Option { return func(o *options) { o.scripts = r } }

// WithResourceLoader sets what loads stylesheets during head merges.
func WithResourceLoader(r render.ResourceLoader) Option {
	return func(o *options) { o.resources = r }
}

// WithIDGenerator sets the generator for visit and restoration ids.
func WithIDGenerator(g idgen.Generator) Option { return func(o *options) { o.ids = g } }

// New creates a session showing a blank page and starts its event loop.
// Close releases it.
func New(cfg *config.Config, opts ...Option) (*Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.events == nil {
		o.events = &drive.Events{}
	}
	if o.loop == nil {
		o.loop = loop.New(loop.WithLogger(o.logger))
	}
	if o.ids == nil {
		o.ids = idgen.UUIDv7()
	}

	s := &Session{
		cfg:      cfg,
		logger:   o.logger,
		loop:     o.loop,
		loopDone: make(chan struct{}),
		events:   o.events,
		ids:      o.ids,
		enabled:  true,
		store:    o.store,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if s.store == nil {
		store, closeFn, err := openStore(cfg)
		if err != nil {
			s.cancel()
			return nil, err
		}
		s.store, s.closeStore = store, closeFn
	}

	clientOpts := []fetch.Option{}
	if o.http != nil {
		clientOpts = append(clientOpts, fetch.WithHTTPClient(o.http))
	}
	clientOpts = append(clientOpts,
		fetch.WithUserAgent(cfg.Fetch.UserAgent),
		fetch.WithTimeout(cfg.Fetch.Timeout),
		fetch.WithMaxBodySize(cfg.Fetch.MaxBody),
		fetch.WithLogger(s.logger),
	)
	s.client = fetch.NewClient(clientOpts...)

	root, err := dom.ParseHTML(blankPage)
	if err != nil {
		s.cancel()
		return nil, err
	}
	blank, _ := url.Parse("about:blank")
	s.doc = dom.NewDocument(root, blank)

	if o.scripts == nil {
		o.scripts = render.LogScriptRunner{Logger: s.logger}
	}
	if o.resources == nil {
		o.resources = render.ClientLoader{Client: s.client}
	}
	s.env = &render.Env{
		Doc:               s.doc,
		Scripts:           o.scripts,
		Resources:         o.resources,
		StylesheetTimeout: cfg.StylesheetTimeout,
		Logger:            s.logger,
	}
	s.view = render.NewPageView(s.env, s, cfg.CacheSize)

	s.stack = history.NewStack()
	s.history = history.New(s, s.stack, s.doc,
		history.WithStore(s.store),
		history.WithIDGenerator(s.ids),
		history.WithScheduler(s.loop.Post),
		history.WithLogger(s.logger),
	)
	s.stack.OnPopState(s.history.OnPopState)

	s.loader = &Loader{s: s}
	s.platform = o.platform
	if s.platform == nil {
		s.platform = s.loader
	}

	s.nav = drive.NewNavigator(s, drive.Config{
		Context:      s.ctx,
		View:         s.view,
		History:      s.history,
		Loop:         s.loop,
		Client:       s.client,
		Platform:     s.platform,
		Interceptor:  &streamObserver{s: s, next: s.events.Interceptor()},
		Events:       s.events,
		IDs:          s.ids,
		Logger:       s.logger,
		MustRedirect: !cfg.Forms.AllowNoRedirect,
	})
	if o.adapter != nil {
		s.nav.SetAdapter(o.adapter(s.nav, s.platform))
	} else {
		s.nav.SetAdapter(drive.NewBrowserAdapter(s.nav, s.platform, s.events, s.logger))
	}
	s.preloader = drive.NewPreloader(s.ctx, s.doc, s.view.Cache(), s.client, s.loop, s.logger)

	go func() {
		defer close(s.loopDone)
		_ = s.loop.Run(s.ctx)
	}()
	return s, nil
}

func openStore(cfg *config.Config) (history.RestorationStore, func() error, error) {
	if cfg.History.Store != config.StoreSQLite {
		return history.NewMemoryStore(), nil, nil
	}
	st, err := history.OpenSQLiteStore(cfg.History.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("pagedrive: restoration store: %w", err)
	}
	return st, st.Close, nil
}

// Close stops the loop and releases the restoration store.
func (s *Session) Close() error {
	s.cancel()
	<-s.loopDone
	if s.closeStore != nil {
		return s.closeStore()
	}
	return nil
}

// do runs fn on the loop and waits until everything it started settled.
// Errors recorded on the loop while settling are returned.
func (s *Session) do(ctx context.Context, fn func() error) error {
	var err error
	if e := s.loop.Do(ctx, func() {
		s.lastErr = nil
		err = fn()
	}); e != nil {
		return e
	}
	if err != nil {
		return err
	}
	if e := s.loop.WaitIdle(ctx); e != nil {
		return e
	}
	if e := s.loop.Do(ctx, func() { err = s.lastErr }); e != nil {
		return e
	}
	return err
}

// fail records err for the intent in progress.
func (s *Session) fail(err error) {
	s.logger.Warn("pagedrive: navigation failed", "error", err)
	if s.lastErr == nil {
		s.lastErr = err
	}
}

func (s *Session) loaded() bool {
	return s.doc.URL != nil && s.doc.URL.Scheme != "about"
}

func (s *Session) resolve(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("pagedrive: parse url %q: %w", raw, err)
	}
	if !u.IsAbs() {
		if !s.loaded() {
			return nil, fmt.Errorf("pagedrive: relative url %q with no page loaded", raw)
		}
		u = s.doc.URL.ResolveReference(u)
	}
	return u, nil
}

// NavigatorDelegate

func (s *Session) AllowsVisitingLocationWithAction(u *url.URL, action drive.Action) bool {
	return s.nav.LocationWithActionIsSamePage(u, action) || s.events.AllowsVisit(u)
}

func (s *Session) VisitProposedToLocation(u *url.URL, opts drive.VisitOptions) {
	s.nav.Adapter().VisitProposedToLocation(u, opts)
}

func (s *Session) VisitStarted(v *drive.Visit) {
	if !v.Silent() {
		s.events.NotifyVisit(v.Location, v.Action)
	}
}

func (s *Session) VisitCompleted(v *drive.Visit) {
	s.history.RelinquishControlOfScrollRestoration()
	s.events.NotifyLoad(v.Location, v.Timing())
}

func (s *Session) VisitScrolledToSamePageLocation(oldURL, newURL *url.URL) {
	s.events.NotifySamePageVisit(oldURL, newURL)
}

// render.ViewDelegate

func (s *Session) AllowsImmediateRender(ev *render.RenderEvent) {
	s.events.NotifyBeforeRender(ev)
}

func (s *Session) ViewRenderedSnapshot(r render.Renderer) {
	if r.Kind() == render.KindFrame {
		return
	}
	s.view.LastRenderedLocation = s.history.Location
	s.events.NotifyRender(r.IsPreview())
}

func (s *Session) PreloadOnLoadLinksForView(root *html.Node) {
	s.preloader.PreloadOnLoadLinksForView(root)
}

func (s *Session) ViewInvalidated(reason render.Reason) {
	s.nav.Adapter().PageInvalidated(reason)
}

func (s *Session) ViewWillCacheSnapshot() {
	if v := s.nav.CurrentVisit(); v == nil || !v.Silent() {
		s.events.NotifyBeforeCache()
	}
}

// history.Delegate

func (s *Session) HistoryPoppedToLocationWithRestorationIdentifier(u *url.URL, restorationID string) {
	if !s.enabled {
		s.nav.Adapter().PageInvalidated(render.Reason{Reason: render.ReasonDriveDisabled})
		return
	}
	s.history.AssumeControlOfScrollRestoration()
	s.nav.StartVisit(u, restorationID, drive.VisitOptions{
		Action:         drive.Restore,
		HistoryChanged: true,
	})
}

// streamObserver renders stream-message responses in place and hands every
// other response to the application hooks.
type streamObserver struct {
	s    *Session
	next fetch.Interceptor
}

func (o *streamObserver) BeforeFetchRequest(r *fetch.Request) { o.next.BeforeFetchRequest(r) }

func (o *streamObserver) BeforeFetchResponse(r *fetch.Request, resp *fetch.Response) bool {
	if resp.ContentType() == dom.StreamContentType {
		if err := o.s.renderStream(string(resp.Body())); err != nil {
			o.s.fail(err)
		}
		return false
	}
	return o.next.BeforeFetchResponse(r, resp)
}

func (o *streamObserver) FetchRequestError(r *fetch.Request, err error) {
	o.next.FetchRequestError(r, err)
}

func (s *Session) renderStream(message string) error {
	return render.NewStreamRenderer(s.env).Render(s.ctx, message)
}
