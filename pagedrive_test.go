package pagedrive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/pagedrive/dom"
	"github.com/hazyhaar/pagedrive/drive"
	"github.com/hazyhaar/pagedrive/internal/config"
)

func page(title, body string) string {
	return "<html><head><title>" + title + "</title></head><body>" + body + "</body></html>"
}

type testSite struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

func (s *testSite) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func newTestSite(t *testing.T) *testSite {
	t.Helper()
	s := &testSite{hits: map[string]int{}}
	count := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.mu.Lock()
			s.hits[r.URL.Path]++
			s.mu.Unlock()
			next.ServeHTTP(w, r)
		})
	}
	serve := func(contentType, body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", contentType)
			io.WriteString(w, body)
		}
	}
	const htmlType = "text/html; charset=utf-8"

	r := chi.NewRouter()
	r.Use(count)
	r.Get("/one", serve(htmlType, page("One", `<h1>Hello</h1>
		<p>first <a id="two" href="/two">second page</a></p>
		<a id="full" data-drive="false" href="/two">full</a>
		<ul id="list"><li>a</li></ul>
		<drive-frame id="f1"><p>old</p></drive-frame>
		<form id="login" method="post" action="/login"><input name="user"><button id="go">Go</button></form>
		<form id="comment" method="post" action="/comment"><input name="text"></form>`)))
	r.Get("/two", serve(htmlType, page("Two", `<p>second</p>`)))
	r.Get("/frame", serve(htmlType, page("Frame", `<drive-frame id="f1"><p>loaded</p></drive-frame>`)))
	r.Get("/data.json", serve("application/json", `{}`))
	r.Get("/a/one", serve(htmlType, page("A", `<a id="go" href="/b/start">b</a><a id="next" href="next">next</a>`)))
	r.Get("/a/next", serve(htmlType, page("ANext", `<p>a next</p>`)))
	r.Get("/b/start", serve(htmlType, page("B", `<a id="next" href="next">next</a>`)))
	r.Get("/b/next", serve(htmlType, page("BNext", `<p>b next</p>`)))
	r.Get("/welcome", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", htmlType)
		io.WriteString(w, page("Welcome", "<p>hi "+req.URL.Query().Get("user")+"</p>"))
	})
	r.Post("/login", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/welcome?user="+req.PostFormValue("user"), http.StatusSeeOther)
	})
	r.Post("/comment", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", dom.StreamContentType)
		io.WriteString(w, `<drive-stream action="append" target="list"><template><li>`+req.PostFormValue("text")+`</li></template></drive-stream>`)
	})

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

func newTestSession(t *testing.T, cfg *config.Config, opts ...Option) *Session {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	s, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func mustTitle(t *testing.T, s *Session, want string) {
	t.Helper()
	got, err := s.Title(testContext(t))
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatalf("title = %q, want %q", got, want)
	}
}

func (s *Session) historyLen(t *testing.T) int {
	t.Helper()
	var n int
	if err := s.loop.Do(testContext(t), func() { n = s.stack.Len() }); err != nil {
		t.Fatal(err)
	}
	return n
}

func (s *Session) cacheLen(t *testing.T) int {
	t.Helper()
	var n int
	if err := s.loop.Do(testContext(t), func() { n = s.view.Cache().Len() }); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestSession_FirstVisitIsFullLoad(t *testing.T) {
	site := newTestSite(t)
	s := newTestSession(t, nil)
	ctx := testContext(t)

	if err := s.Visit(ctx, "/one", drive.Advance); err == nil {
		t.Fatal("relative URL accepted before any page loaded")
	}
	if err := s.Visit(ctx, site.URL+"/one", drive.Advance); err != nil {
		t.Fatal(err)
	}
	mustTitle(t, s, "One")
	if n := s.historyLen(t); n != 1 {
		t.Fatalf("history = %d entries", n)
	}

	if err := s.Visit(ctx, "/two", drive.Advance); err != nil {
		t.Fatal(err)
	}
	mustTitle(t, s, "Two")
	loc, _ := s.Location(ctx)
	if loc != site.URL+"/two" {
		t.Fatalf("location = %s", loc)
	}
	if n := s.historyLen(t); n != 2 {
		t.Fatalf("history = %d entries", n)
	}
	if s.cacheLen(t) != 1 {
		t.Fatal("driven visit did not cache the outgoing page")
	}
}

func TestSession_VisitNotHTML(t *testing.T) {
	site := newTestSite(t)
	s := newTestSession(t, nil)

	err := s.Visit(testContext(t), site.URL+"/data.json", drive.Advance)
	if !errors.Is(err, ErrNotHTML) {
		t.Fatalf("err = %v, want ErrNotHTML", err)
	}
}

func TestSession_FollowLink(t *testing.T) {
	site := newTestSite(t)
	s := newTestSession(t, nil)
	ctx := testContext(t)
	if err := s.Visit(ctx, site.URL+"/one", drive.Advance); err != nil {
		t.Fatal(err)
	}

	if err := s.FollowLink(ctx, "#nope"); !errors.Is(err, ErrNoElement) {
		t.Fatalf("err = %v, want ErrNoElement", err)
	}
	if err := s.FollowLink(ctx, "a#two"); err != nil {
		t.Fatal(err)
	}
	mustTitle(t, s, "Two")
	if s.cacheLen(t) != 1 {
		t.Fatal("driven link did not cache the outgoing page")
	}
}

func TestSession_RelativeLinkAfterDrivenVisit(t *testing.T) {
	site := newTestSite(t)
	s := newTestSession(t, nil)
	ctx := testContext(t)
	if err := s.Visit(ctx, site.URL+"/a/one", drive.Advance); err != nil {
		t.Fatal(err)
	}
	if err := s.FollowLink(ctx, "a#go"); err != nil {
		t.Fatal(err)
	}
	mustTitle(t, s, "B")
	if loc, _ := s.Location(ctx); loc != site.URL+"/b/start" {
		t.Fatalf("location = %s, want /b/start", loc)
	}

	if err := s.FollowLink(ctx, "a#next"); err != nil {
		t.Fatal(err)
	}
	mustTitle(t, s, "BNext")
	if site.hitCount("/a/next") != 0 {
		t.Fatal("relative link resolved against the first page")
	}

	if err := s.Back(ctx); err != nil {
		t.Fatal(err)
	}
	mustTitle(t, s, "B")
	if loc, _ := s.Location(ctx); loc != site.URL+"/b/start" {
		t.Fatalf("location after back = %s", loc)
	}
}

func TestSession_FollowLinkOptedOutIsFullLoad(t *testing.T) {
	site := newTestSite(t)
	s := newTestSession(t, nil)
	ctx := testContext(t)
	if err := s.Visit(ctx, site.URL+"/one", drive.Advance); err != nil {
		t.Fatal(err)
	}

	if err := s.FollowLink(ctx, "#full"); err != nil {
		t.Fatal(err)
	}
	mustTitle(t, s, "Two")
	if s.cacheLen(t) != 0 {
		t.Fatal("full load kept the snapshot cache")
	}
	if n := s.historyLen(t); n != 2 {
		t.Fatalf("history = %d entries", n)
	}
}

func TestSession_SubmitForm(t *testing.T) {
	site := newTestSite(t)
	s := newTestSession(t, nil)
	ctx := testContext(t)
	if err := s.Visit(ctx, site.URL+"/one", drive.Advance); err != nil {
		t.Fatal(err)
	}

	err := s.SubmitForm(ctx, "#login", map[string]string{"password": "x"}, "")
	if !errors.Is(err, ErrNoElement) || !strings.Contains(err.Error(), "password") {
		t.Fatalf("err = %v, want missing password field", err)
	}
	if err := s.SubmitForm(ctx, "#login", map[string]string{"user": "ann"}, "#go"); err != nil {
		t.Fatal(err)
	}
	mustTitle(t, s, "Welcome")
	md, err := s.Markdown(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(md, "hi ann") {
		t.Fatalf("markdown = %q", md)
	}
}

func TestSession_SubmitFormFormsOff(t *testing.T) {
	site := newTestSite(t)
	cfg := config.Default()
	cfg.Forms.Mode = config.FormModeOff
	s := newTestSession(t, cfg)
	ctx := testContext(t)
	if err := s.Visit(ctx, site.URL+"/one", drive.Advance); err != nil {
		t.Fatal(err)
	}

	if err := s.SubmitForm(ctx, "#login", map[string]string{"user": "bob"}, ""); err != nil {
		t.Fatal(err)
	}
	mustTitle(t, s, "Welcome")
	if s.cacheLen(t) != 0 {
		t.Fatal("full submission kept the snapshot cache")
	}
}

func TestSession_StreamResponseRendersInPlace(t *testing.T) {
	site := newTestSite(t)
	s := newTestSession(t, nil)
	ctx := testContext(t)
	if err := s.Visit(ctx, site.URL+"/one", drive.Advance); err != nil {
		t.Fatal(err)
	}

	if err := s.SubmitForm(ctx, "#comment", map[string]string{"text": "b"}, ""); err != nil {
		t.Fatal(err)
	}
	mustTitle(t, s, "One")
	doc, err := s.HTML(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(doc, "<li>a</li><li>b</li>") {
		t.Fatalf("stream not applied: %s", doc)
	}
}

func TestSession_BackForward(t *testing.T) {
	site := newTestSite(t)
	s := newTestSession(t, nil)
	ctx := testContext(t)
	if err := s.Visit(ctx, site.URL+"/one", drive.Advance); err != nil {
		t.Fatal(err)
	}
	if err := s.Back(ctx); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("back at start: err = %v", err)
	}
	if err := s.Visit(ctx, "/two", drive.Advance); err != nil {
		t.Fatal(err)
	}

	if err := s.Back(ctx); err != nil {
		t.Fatal(err)
	}
	mustTitle(t, s, "One")
	if err := s.Forward(ctx); err != nil {
		t.Fatal(err)
	}
	mustTitle(t, s, "Two")
	if err := s.Forward(ctx); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("forward at end: err = %v", err)
	}
}

func TestSession_LoadFrame(t *testing.T) {
	site := newTestSite(t)
	s := newTestSession(t, nil)
	ctx := testContext(t)
	if err := s.Visit(ctx, site.URL+"/one", drive.Advance); err != nil {
		t.Fatal(err)
	}

	if err := s.LoadFrame(ctx, "f1", "/frame"); err != nil {
		t.Fatal(err)
	}
	doc, _ := s.HTML(ctx)
	if !strings.Contains(doc, "<p>loaded</p>") || strings.Contains(doc, "<p>old</p>") {
		t.Fatalf("frame not replaced: %s", doc)
	}
	mustTitle(t, s, "One")

	if err := s.LoadFrame(ctx, "f1", "/two"); !errors.Is(err, drive.ErrFrameMissing) {
		t.Fatalf("err = %v, want ErrFrameMissing", err)
	}
}

func TestSession_RenderStreamMessage(t *testing.T) {
	site := newTestSite(t)
	s := newTestSession(t, nil)
	ctx := testContext(t)
	if err := s.Visit(ctx, site.URL+"/one", drive.Advance); err != nil {
		t.Fatal(err)
	}

	msg := `<drive-stream action="update" target="list"><template><li>z</li></template></drive-stream>`
	if err := s.RenderStreamMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}
	doc, _ := s.HTML(ctx)
	if !strings.Contains(doc, `<ul id="list"><li>z</li></ul>`) {
		t.Fatalf("update not applied: %s", doc)
	}
}

func TestSession_SetCacheControl(t *testing.T) {
	site := newTestSite(t)
	s := newTestSession(t, nil)
	ctx := testContext(t)
	if err := s.Visit(ctx, site.URL+"/one", drive.Advance); err != nil {
		t.Fatal(err)
	}

	if err := s.SetCacheControl(ctx, "sometimes"); err == nil {
		t.Fatal("invalid cache control accepted")
	}
	if err := s.SetCacheControl(ctx, "no-cache"); err != nil {
		t.Fatal(err)
	}
	if err := s.Visit(ctx, "/two", drive.Advance); err != nil {
		t.Fatal(err)
	}
	if s.cacheLen(t) != 0 {
		t.Fatal("no-cache page was cached")
	}
}

func TestSession_ReloadAndClearCache(t *testing.T) {
	site := newTestSite(t)
	s := newTestSession(t, nil)
	ctx := testContext(t)
	if err := s.Visit(ctx, site.URL+"/one", drive.Advance); err != nil {
		t.Fatal(err)
	}
	if err := s.Visit(ctx, "/two", drive.Advance); err != nil {
		t.Fatal(err)
	}
	if err := s.ClearCache(ctx); err != nil {
		t.Fatal(err)
	}
	if s.cacheLen(t) != 0 {
		t.Fatal("cache not cleared")
	}

	if err := s.Reload(ctx); err != nil {
		t.Fatal(err)
	}
	if n := site.hitCount("/two"); n != 2 {
		t.Fatalf("/two fetched %d times, want 2", n)
	}
	if n := s.historyLen(t); n != 2 {
		t.Fatalf("reload changed history length to %d", n)
	}
}

func TestSession_DisabledVisitsAreFullLoads(t *testing.T) {
	site := newTestSite(t)
	s := newTestSession(t, nil)
	ctx := testContext(t)
	if err := s.Visit(ctx, site.URL+"/one", drive.Advance); err != nil {
		t.Fatal(err)
	}
	if err := s.SetEnabled(ctx, false); err != nil {
		t.Fatal(err)
	}
	if err := s.FollowLink(ctx, "a#two"); err != nil {
		t.Fatal(err)
	}
	mustTitle(t, s, "Two")
	if s.cacheLen(t) != 0 {
		t.Fatal("disabled session cached a snapshot")
	}
}

func TestSession_SQLiteRestorationStore(t *testing.T) {
	site := newTestSite(t)
	cfg := config.Default()
	cfg.History.Store = config.StoreSQLite
	cfg.History.Path = filepath.Join(t.TempDir(), "history.db")
	s := newTestSession(t, cfg)
	ctx := testContext(t)

	if err := s.Visit(ctx, site.URL+"/one", drive.Advance); err != nil {
		t.Fatal(err)
	}
	if err := s.ScrollPositionChanged(ctx, dom.Position{Y: 240}); err != nil {
		t.Fatal(err)
	}
	if err := s.Visit(ctx, "/two", drive.Advance); err != nil {
		t.Fatal(err)
	}
	if err := s.Back(ctx); err != nil {
		t.Fatal(err)
	}
	var y float64
	if err := s.loop.Do(ctx, func() { y = s.doc.ScrollPosition().Y }); err != nil {
		t.Fatal(err)
	}
	if y != 240 {
		t.Fatalf("restored scroll y = %v, want 240", y)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Forms.Mode = "sometimes"
	if _, err := New(cfg); err == nil {
		t.Fatal("invalid config accepted")
	}
}

func TestToMarkdown(t *testing.T) {
	md, err := toMarkdown(`<body><h1>Title</h1><script>alert(1)</script><p>see <a href="/x">this</a></p></body>`, "https://example.com")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(md, "# Title") {
		t.Fatalf("heading missing: %q", md)
	}
	if strings.Contains(md, "alert") {
		t.Fatalf("script survived sanitizing: %q", md)
	}
	if !strings.Contains(md, "(https://example.com/x)") {
		t.Fatalf("link not absolute: %q", md)
	}
}
