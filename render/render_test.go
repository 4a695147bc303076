package render

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/pagedrive/dom"
	"github.com/hazyhaar/pagedrive/snapshot"
)

type fakeDelegate struct {
	rendered    []Kind
	invalidated []Reason
	preloaded   int
	willCache   int
	onRender    func(ev *RenderEvent)
}

func (d *fakeDelegate) AllowsImmediateRender(ev *RenderEvent) {
	if d.onRender != nil {
		d.onRender(ev)
	}
}
func (d *fakeDelegate) ViewRenderedSnapshot(r Renderer)      { d.rendered = append(d.rendered, r.Kind()) }
func (d *fakeDelegate) PreloadOnLoadLinksForView(*html.Node) { d.preloaded++ }
func (d *fakeDelegate) ViewInvalidated(r Reason)             { d.invalidated = append(d.invalidated, r) }
func (d *fakeDelegate) ViewWillCacheSnapshot()               { d.willCache++ }

type recordingScripts struct {
	mu  sync.Mutex
	ran []string
}

func (s *recordingScripts) RunScript(_ context.Context, n *html.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ran = append(s.ran, dom.Attr(n, "src")+dom.TextContent(n))
}

type slowLoader struct {
	mu     sync.Mutex
	loaded []string
	delay  time.Duration
}

func (l *slowLoader) Load(ctx context.Context, u *url.URL) error {
	select {
	case <-time.After(l.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	l.mu.Lock()
	l.loaded = append(l.loaded, u.Path)
	l.mu.Unlock()
	return nil
}

func newDoc(t *testing.T, s string) *dom.Document {
	t.Helper()
	u, _ := url.Parse("http://example.test/one")
	d, err := dom.ParseDocument(strings.NewReader(s), u)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func mustPage(t *testing.T, s string) *snapshot.PageSnapshot {
	t.Helper()
	p, err := snapshot.FromHTML(s)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func newPageView(t *testing.T, doc string) (*PageView, *fakeDelegate, *recordingScripts) {
	t.Helper()
	d := &fakeDelegate{}
	scripts := &recordingScripts{}
	env := &Env{Doc: newDoc(t, doc), Scripts: scripts}
	return NewPageView(env, d, 10), d, scripts
}

func TestPageRender_PreservesPermanentElementIdentity(t *testing.T) {
	v, d, _ := newPageView(t, `<html><head></head><body>
		<div id="player" data-drive-permanent><video src="a.mp4"></video></div>
		<p>old</p>
	</body></html>`)
	before := dom.FindByID(v.Document().Root, "player")

	next := mustPage(t, `<html><head></head><body>
		<h1>new</h1>
		<div id="player" data-drive-permanent>server copy</div>
	</body></html>`)
	if err := v.RenderPage(context.Background(), next, false, true, nil); err != nil {
		t.Fatal(err)
	}

	after := dom.FindByID(v.Document().Root, "player")
	if after != before {
		t.Fatal("permanent element was recreated")
	}
	if dom.QuerySelector(v.Document().Body(), "h1") == nil {
		t.Fatal("new body not rendered")
	}
	if dom.QuerySelector(v.Document().Root, "meta[name=drive-permanent-placeholder]") != nil {
		t.Fatal("placeholder left behind")
	}
	if strings.Contains(dom.TextContent(after), "server copy") {
		t.Fatal("live element content replaced")
	}
	if len(d.rendered) != 1 || d.rendered[0] != KindPage {
		t.Fatalf("rendered: %v", d.rendered)
	}
}

func TestPageRender_RestoresFocusInsidePermanentElement(t *testing.T) {
	v, _, _ := newPageView(t, `<html><body><div id="chat" data-drive-permanent><input id="msg"></div></body></html>`)
	input := dom.FindByID(v.Document().Root, "msg")
	v.Document().Focus(input)

	next := mustPage(t, `<body><div id="chat" data-drive-permanent></div><input autofocus id="other"></body>`)
	if err := v.RenderPage(context.Background(), next, true, true, nil); err != nil {
		t.Fatal(err)
	}
	if v.Document().ActiveElement() != input {
		t.Fatal("focus not restored inside the permanent element")
	}
}

func TestPageRender_AutofocusOnFinalRender(t *testing.T) {
	v, _, _ := newPageView(t, `<html><body></body></html>`)
	next := mustPage(t, `<body><input id="q" autofocus></body>`)
	v.RenderPage(context.Background(), next, false, true, nil)
	if dom.ID(v.Document().ActiveElement()) != "q" {
		t.Fatal("autofocus element not focused")
	}
}

func TestPageRender_TrackedMismatchInvalidates(t *testing.T) {
	v, d, _ := newPageView(t, `<html><head><script src="/app-1.js" data-drive-track="reload"></script></head><body><p>old</p></body></html>`)
	next := mustPage(t, `<html><head><script src="/app-2.js" data-drive-track="reload"></script></head><body><p>new</p></body></html>`)

	changed := 0
	v.RenderPage(context.Background(), next, false, true, changerFunc(func() { changed++ }))

	if len(d.invalidated) != 1 || d.invalidated[0].Reason != ReasonTrackedElementMismatch {
		t.Fatalf("invalidated: %v", d.invalidated)
	}
	if !v.ForceReloaded() {
		t.Fatal("force reload not recorded")
	}
	if changed != 0 {
		t.Fatal("history changed for a refused render")
	}
	if dom.TextContent(v.Document().Body()) != "old" {
		t.Fatal("body swapped despite mismatch")
	}
}

func TestPageRender_VisitControlReload(t *testing.T) {
	v, d, _ := newPageView(t, `<html><body></body></html>`)
	next := mustPage(t, `<html><head><meta name="drive-visit-control" content="reload"></head><body></body></html>`)
	v.RenderPage(context.Background(), next, false, true, nil)
	if len(d.invalidated) != 1 || d.invalidated[0].Reason != ReasonVisitControlReload {
		t.Fatalf("invalidated: %v", d.invalidated)
	}
}

type changerFunc func()

func (f changerFunc) ChangeHistory() { f() }

func TestPageRender_MergesHead(t *testing.T) {
	v, _, scripts := newPageView(t, `<html><head>
		<title>Old</title>
		<meta name="description" content="old">
		<link rel="stylesheet" href="/base.css">
	</head><body></body></html>`)
	loader := &slowLoader{delay: 10 * time.Millisecond}
	v.Env().Resources = loader

	next := mustPage(t, `<html><head>
		<title>New</title>
		<meta name="description" content="new">
		<link rel="stylesheet" href="/base.css">
		<link rel="stylesheet" href="/page.css">
		<script src="/page.js"></script>
	</head><body><script>inline()</script></body></html>`)
	if err := v.RenderPage(context.Background(), next, false, true, nil); err != nil {
		t.Fatal(err)
	}

	doc := v.Document()
	if doc.Title() != "New" {
		t.Fatalf("title: %q", doc.Title())
	}
	if got, _ := doc.Meta("description"); got != "new" {
		t.Fatalf("meta: %q", got)
	}
	if n := len(dom.QuerySelectorAll(doc.Head(), "link[href=/base.css]")); n != 1 {
		t.Fatalf("base.css count: %d", n)
	}
	if dom.QuerySelector(doc.Head(), "link[href=/page.css]") == nil {
		t.Fatal("new stylesheet not appended")
	}
	if len(loader.loaded) != 1 || loader.loaded[0] != "/page.css" {
		t.Fatalf("loaded: %v", loader.loaded)
	}
	if len(scripts.ran) != 2 {
		t.Fatalf("scripts ran: %v", scripts.ran)
	}
}

func TestPageRender_StylesheetTimeout(t *testing.T) {
	v, _, _ := newPageView(t, `<html><head></head><body></body></html>`)
	v.Env().Resources = &slowLoader{delay: time.Minute}
	v.Env().StylesheetTimeout = 20 * time.Millisecond

	next := mustPage(t, `<html><head><link rel="stylesheet" href="/slow.css"></head><body><p>x</p></body></html>`)
	start := time.Now()
	if err := v.RenderPage(context.Background(), next, false, true, nil); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("stylesheet timeout not honored")
	}
	if dom.TextContent(v.Document().Body()) != "x" {
		t.Fatal("render did not complete after timeout")
	}
}

func TestActivateScriptElement(t *testing.T) {
	doc := newDoc(t, `<html><head><meta name="csp-nonce" content="n0nce"></head><body>
		<script id="a" src="/a.js"></script>
		<script id="b" data-drive-eval="false"></script>
	</body></html>`)
	a := dom.FindByID(doc.Root, "a")
	act, ok := ActivateScriptElement(doc, a)
	if !ok || act == a || dom.Attr(act, "nonce") != "n0nce" || dom.Attr(act, "src") != "/a.js" {
		t.Fatalf("activated: %s", dom.OuterHTML(act))
	}
	b := dom.FindByID(doc.Root, "b")
	if got, ok := ActivateScriptElement(doc, b); ok || got != b {
		t.Fatal("eval=false script must be left alone")
	}
}

func TestView_RenderInterception(t *testing.T) {
	v, d, _ := newPageView(t, `<html><body><p>old</p></body></html>`)
	var custom bool
	d.onRender = func(ev *RenderEvent) {
		resume := ev.Pause()
		ev.Render = func(current, next *html.Node) {
			custom = true
			dom.ReplaceWith(current, next)
		}
		go func() {
			time.Sleep(10 * time.Millisecond)
			resume()
		}()
	}
	next := mustPage(t, `<body><p>new</p></body>`)
	if err := v.RenderPage(context.Background(), next, false, true, nil); err != nil {
		t.Fatal(err)
	}
	if !custom {
		t.Fatal("replacement render function not used")
	}
	if dom.TextContent(v.Document().Body()) != "new" {
		t.Fatal("render did not complete after resume")
	}
}

func TestView_PausedRenderHonorsContext(t *testing.T) {
	v, d, _ := newPageView(t, `<html><body></body></html>`)
	d.onRender = func(ev *RenderEvent) { ev.Pause() }
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := v.RenderPage(ctx, mustPage(t, `<body></body>`), false, true, nil); err == nil {
		t.Fatal("expected context error")
	}
	if v.Rendering() {
		t.Fatal("rendering flag left set")
	}
}

func TestView_MarksPreview(t *testing.T) {
	v, _, _ := newPageView(t, `<html><body></body></html>`)
	v.RenderPage(context.Background(), mustPage(t, `<body></body>`), true, true, nil)
	if !dom.HasAttr(v.Document().DocumentElement(), dom.AttrPreview) {
		t.Fatal("preview marker missing")
	}
	v.RenderPage(context.Background(), mustPage(t, `<body></body>`), false, true, nil)
	if dom.HasAttr(v.Document().DocumentElement(), dom.AttrPreview) {
		t.Fatal("preview marker not cleared")
	}
}

func TestErrorRenderer_ReplacesHeadAndBody(t *testing.T) {
	v, d, scripts := newPageView(t, `<html><head><title>ok</title></head><body><p>ok</p></body></html>`)
	next := mustPage(t, `<html><head><title>Server Error</title></head><body><h1>500</h1><script>report()</script></body></html>`)
	if err := v.RenderError(context.Background(), next, nil); err != nil {
		t.Fatal(err)
	}
	if v.Document().Title() != "Server Error" {
		t.Fatalf("title: %q", v.Document().Title())
	}
	if dom.QuerySelector(v.Document().Body(), "h1") == nil {
		t.Fatal("error body missing")
	}
	if len(d.rendered) != 1 || d.rendered[0] != KindError {
		t.Fatalf("rendered: %v", d.rendered)
	}
	if len(scripts.ran) != 1 {
		t.Fatalf("scripts: %v", scripts.ran)
	}
}

func TestPageView_CacheSnapshot(t *testing.T) {
	v, d, _ := newPageView(t, `<html><body><p id="x">cached</p></body></html>`)
	cached := v.CacheSnapshot(v.Snapshot())
	if cached == nil || d.willCache != 1 {
		t.Fatal("snapshot not cached")
	}
	got, ok := v.CachedSnapshotForLocation(v.LastRenderedLocation)
	if !ok || dom.FindByID(got.Element(), "x") == nil {
		t.Fatal("cached snapshot not returned")
	}
	if got.Element() == cached.Element() {
		t.Fatal("cache handed out its own copy")
	}

	v.Document().SetMeta(dom.MetaCacheControl, "no-cache")
	v.ClearSnapshotCache()
	if v.CacheSnapshot(v.Snapshot()) != nil || v.Cache().Len() != 0 {
		t.Fatal("no-cache page was cached")
	}
}

func TestFrameRenderer(t *testing.T) {
	d := &fakeDelegate{}
	env := &Env{Doc: newDoc(t, `<html><body>
		<drive-frame id="inbox" autoscroll><p>loading</p><span id="badge" data-drive-permanent>3</span></drive-frame>
	</body></html>`)}
	v := NewView(env, d)
	frame := dom.FindByID(env.Doc.Root, "inbox")
	badge := dom.FindByID(env.Doc.Root, "badge")

	resp := mustPage(t, `<body><drive-frame id="inbox"><ul><li>one</li></ul><span id="badge" data-drive-permanent>0</span><input autofocus id="f"></drive-frame></body>`)
	next := dom.FindByID(resp.Element(), "inbox")
	if err := v.Render(context.Background(), NewFrameRenderer(env, frame, next, false)); err != nil {
		t.Fatal(err)
	}
	if dom.QuerySelector(frame, "li") == nil {
		t.Fatal("frame contents not replaced")
	}
	if dom.FindByID(env.Doc.Root, "badge") != badge {
		t.Fatal("permanent element inside frame recreated")
	}
	if env.Doc.ScrollTarget() != frame {
		t.Fatal("autoscroll frame not scrolled into view")
	}
	if dom.ID(env.Doc.ActiveElement()) != "f" {
		t.Fatal("frame autofocus not applied")
	}
}

func TestStreamRenderer_Actions(t *testing.T) {
	env := &Env{Doc: newDoc(t, `<html><body>
		<ul id="list"><li id="i1">one</li></ul>
		<div id="gone"></div>
		<div id="box"><span id="live" data-drive-permanent>live</span></div>
	</body></html>`)}
	r := NewStreamRenderer(env)
	live := dom.FindByID(env.Doc.Root, "live")

	msg := `
		<drive-stream action="append" target="list"><template><li id="i2">two</li></template></drive-stream>
		<drive-stream action="prepend" target="list"><template><li id="i0">zero</li></template></drive-stream>
		<drive-stream action="remove" target="gone"></drive-stream>
		<drive-stream action="update" target="box"><template><b>new</b><span id="live" data-drive-permanent>server</span></template></drive-stream>
		<drive-stream action="explode" target="box"></drive-stream>`
	if err := r.Render(context.Background(), msg); err != nil {
		t.Fatal(err)
	}

	items := dom.QuerySelectorAll(env.Doc.Root, "li")
	if len(items) != 3 || dom.ID(items[0]) != "i0" || dom.ID(items[2]) != "i2" {
		t.Fatalf("list: %s", dom.OuterHTML(dom.FindByID(env.Doc.Root, "list")))
	}
	if dom.FindByID(env.Doc.Root, "gone") != nil {
		t.Fatal("remove action ignored")
	}
	if dom.QuerySelector(env.Doc.Root, "#box b") == nil {
		t.Fatal("update action ignored")
	}
	if dom.FindByID(env.Doc.Root, "live") != live {
		t.Fatal("permanent element recreated by update")
	}
}

func TestStreamRenderer_ReplaceAndSiblings(t *testing.T) {
	env := &Env{Doc: newDoc(t, `<html><body><p id="a">a</p></body></html>`)}
	r := NewStreamRenderer(env)
	msg := `
		<drive-stream action="before" target="a"><template><p id="before">b</p></template></drive-stream>
		<drive-stream action="after" target="a"><template><p id="after">c</p></template></drive-stream>
		<drive-stream action="replace" target="a"><template><p id="a2">replaced</p></template></drive-stream>`
	r.Render(context.Background(), msg)

	ps := dom.QuerySelectorAll(env.Doc.Body(), "p")
	var ids []string
	for _, p := range ps {
		ids = append(ids, dom.ID(p))
	}
	if strings.Join(ids, ",") != "before,a2,after" {
		t.Fatalf("order: %v", ids)
	}
}
