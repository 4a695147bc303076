package history

import (
	"context"
	"net/url"
	"testing"

	"github.com/hazyhaar/pagedrive/dbopen"
	"github.com/hazyhaar/pagedrive/dom"
	"github.com/hazyhaar/pagedrive/idgen"
)

type popRecorder struct {
	urls []string
	ids  []string
}

func (r *popRecorder) HistoryPoppedToLocationWithRestorationIdentifier(u *url.URL, id string) {
	r.urls = append(r.urls, u.String())
	r.ids = append(r.ids, id)
}

func mustURL(t *testing.T, s string) *url.URL {
	t.Helper()
	u, err := url.Parse(s)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func newHistory(t *testing.T, opts ...Option) (*History, *Stack, *popRecorder, *dom.Document) {
	t.Helper()
	root, err := dom.ParseHTML("<html><head></head><body></body></html>")
	if err != nil {
		t.Fatal(err)
	}
	doc := dom.NewDocument(root, mustURL(t, "http://example.test/"))
	rec := &popRecorder{}
	stack := NewStack()
	opts = append([]Option{WithIDGenerator(idgen.Sequence("r"))}, opts...)
	h := New(rec, stack, doc, opts...)
	stack.OnPopState(h.OnPopState)
	return h, stack, rec, doc
}

func TestStart_ReplacesCurrentEntry(t *testing.T) {
	h, stack, _, _ := newHistory(t)
	h.Start()
	h.Start()

	if stack.Len() != 1 {
		t.Fatalf("entries = %d, want 1", stack.Len())
	}
	e, _ := stack.Current()
	if e.State.Drive == nil || e.State.Drive.RestorationIdentifier != "r1" {
		t.Fatalf("state = %+v, want restoration id r1", e.State)
	}
	if h.RestorationIdentifier != "r1" || h.Location.String() != "http://example.test/" {
		t.Fatalf("history = %s %s", h.Location, h.RestorationIdentifier)
	}
}

func TestPushReplace(t *testing.T) {
	h, stack, _, _ := newHistory(t)
	h.Start()
	h.Push(mustURL(t, "http://example.test/a"), "")
	h.Replace(mustURL(t, "http://example.test/b"), "keep")

	if stack.Len() != 2 {
		t.Fatalf("entries = %d, want 2", stack.Len())
	}
	e, _ := stack.Current()
	if e.URL.Path != "/b" || e.State.Drive.RestorationIdentifier != "keep" {
		t.Fatalf("current = %s %+v", e.URL, e.State.Drive)
	}
}

func TestPopState_BackForward(t *testing.T) {
	h, stack, rec, _ := newHistory(t)
	h.Start()
	h.Push(mustURL(t, "http://example.test/a"), "")

	if !stack.Back() {
		t.Fatal("Back should move")
	}
	if len(rec.urls) != 1 || rec.urls[0] != "http://example.test/" || rec.ids[0] != "r1" {
		t.Fatalf("popped = %v %v", rec.urls, rec.ids)
	}
	if h.RestorationIdentifier != "r1" {
		t.Fatalf("restoration id = %s", h.RestorationIdentifier)
	}
	if !stack.Forward() || rec.ids[1] != "r2" {
		t.Fatalf("forward popped = %v", rec.ids)
	}
	if stack.Forward() {
		t.Fatal("Forward at end should not move")
	}
}

func TestDocumentURLFollowsEntries(t *testing.T) {
	h, stack, _, doc := newHistory(t)
	h.Start()
	h.Push(mustURL(t, "http://example.test/a"), "")
	if doc.URL.String() != "http://example.test/a" {
		t.Fatalf("after push: %s", doc.URL)
	}
	h.Replace(mustURL(t, "http://example.test/b"), "")
	if doc.URL.String() != "http://example.test/b" {
		t.Fatalf("after replace: %s", doc.URL)
	}
	stack.Back()
	if doc.URL.String() != "http://example.test/" {
		t.Fatalf("after back: %s", doc.URL)
	}
}

func TestPopState_IgnoredUntilLoaded(t *testing.T) {
	var queued []func()
	h, stack, rec, doc := newHistory(t, WithScheduler(func(fn func()) { queued = append(queued, fn) }))
	doc.ReadyState = dom.Interactive
	h.Start()
	h.Push(mustURL(t, "http://example.test/a"), "")

	h.PageLoaded()
	stack.Back()
	if len(rec.urls) != 0 {
		t.Fatalf("popstate during load should be ignored, got %v", rec.urls)
	}

	for _, fn := range queued {
		fn()
	}
	stack.Forward()
	if len(rec.urls) != 1 {
		t.Fatalf("popstate after load should be handled, got %v", rec.urls)
	}
}

func TestPopState_IgnoredWhenStopped(t *testing.T) {
	h, stack, rec, _ := newHistory(t)
	h.Start()
	h.Push(mustURL(t, "http://example.test/a"), "")
	h.Stop()
	stack.Back()
	if len(rec.urls) != 0 {
		t.Fatalf("stopped history handled popstate: %v", rec.urls)
	}
}

func TestPopState_ForeignEntryIgnored(t *testing.T) {
	h, _, rec, _ := newHistory(t)
	h.Start()
	h.OnPopState(&State{}, mustURL(t, "http://example.test/x"))
	h.OnPopState(nil, mustURL(t, "http://example.test/x"))
	if len(rec.urls) != 0 {
		t.Fatalf("untagged entries should be ignored: %v", rec.urls)
	}
}

func TestStack_PushTruncatesForward(t *testing.T) {
	s := NewStack()
	for _, p := range []string{"/1", "/2", "/3"} {
		s.PushState(State{}, mustURL(t, "http://example.test"+p))
	}
	s.Back()
	s.Back()
	s.PushState(State{}, mustURL(t, "http://example.test/4"))
	if s.Len() != 2 || s.CanGoForward() || !s.CanGoBack() {
		t.Fatalf("len=%d forward=%v back=%v", s.Len(), s.CanGoForward(), s.CanGoBack())
	}
	e, _ := s.Current()
	if e.URL.Path != "/4" {
		t.Fatalf("current = %s", e.URL)
	}
}

func TestRestorationData_Memory(t *testing.T) {
	h, _, _, _ := newHistory(t)
	ctx := context.Background()
	h.Start()

	h.UpdateRestorationData(ctx, RestorationData{ScrollPosition: &dom.Position{X: 1, Y: 42}})
	h.UpdateRestorationData(ctx, RestorationData{})

	got := h.RestorationDataForIdentifier(ctx, "r1")
	if got.ScrollPosition == nil || got.ScrollPosition.Y != 42 {
		t.Fatalf("restoration data = %+v", got)
	}
	if h.RestorationDataForIdentifier(ctx, "unknown").ScrollPosition != nil {
		t.Fatal("unknown id should have no data")
	}
}

func TestSQLiteStore(t *testing.T) {
	db := dbopen.OpenMemory(t)
	store, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	ctx := context.Background()

	if err := store.Update(ctx, "r1", RestorationData{ScrollPosition: &dom.Position{X: 3, Y: 7}}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := store.Update(ctx, "r1", RestorationData{}); err != nil {
		t.Fatalf("Update empty: %v", err)
	}
	got, err := store.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ScrollPosition == nil || *got.ScrollPosition != (dom.Position{X: 3, Y: 7}) {
		t.Fatalf("got %+v, want scroll 3,7", got.ScrollPosition)
	}

	missing, err := store.Get(ctx, "nope")
	if err != nil || missing.ScrollPosition != nil {
		t.Fatalf("missing = %+v, %v", missing, err)
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := t.TempDir() + "/state/history.db"
	ctx := context.Background()

	store, err := OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	store.Update(ctx, "r9", RestorationData{ScrollPosition: &dom.Position{Y: 120}})
	store.Close()

	store, err = OpenSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	got, _ := store.Get(ctx, "r9")
	if got.ScrollPosition == nil || got.ScrollPosition.Y != 120 {
		t.Fatalf("after reopen = %+v", got)
	}
}
