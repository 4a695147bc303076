package render

import (
	"context"
	"net/url"

	"github.com/hazyhaar/pagedrive/snapshot"
)

// HistoryChanger is the visit side of a page render.
type HistoryChanger interface {
	ChangeHistory()
}

// PageView is the View of the whole document plus its snapshot cache.
type PageView struct {
	*View
	cache *snapshot.Cache

	// LastRenderedLocation is where the current content came from.
	LastRenderedLocation *url.URL
	forceReloaded        bool
}

// NewPageView creates a page view with a cache of cacheSize snapshots.
func NewPageView(env *Env, d ViewDelegate, cacheSize int) *PageView {
	v := &PageView{View: NewView(env, d), cache: snapshot.NewCache(cacheSize)}
	v.LastRenderedLocation = env.Doc.URL
	return v
}

// Cache returns the snapshot cache.
func (v *PageView) Cache() *snapshot.Cache { return v.cache }

// ForceReloaded reports whether a render was refused and a reload forced.
func (v *PageView) ForceReloaded() bool { return v.forceReloaded }

// Reloaded clears the forced reload flag once a full load replaced the
// document.
func (v *PageView) Reloaded() { v.forceReloaded = false }

// Snapshot wraps the live document.
func (v *PageView) Snapshot() *snapshot.PageSnapshot {
	return snapshot.FromDocument(v.env.Doc)
}

// RenderPage renders next as the page. History changes only when the
// render is going to happen.
func (v *PageView) RenderPage(ctx context.Context, next *snapshot.PageSnapshot, isPreview, willRender bool, visit HistoryChanger) error {
	r := NewPageRenderer(v.env, v.Snapshot(), next, isPreview, willRender)
	if !r.ShouldRender() {
		v.forceReloaded = true
	} else if visit != nil {
		visit.ChangeHistory()
	}
	return v.Render(ctx, r)
}

// RenderError renders next as an error page.
func (v *PageView) RenderError(ctx context.Context, next *snapshot.PageSnapshot, visit HistoryChanger) error {
	if visit != nil {
		visit.ChangeHistory()
	}
	return v.Render(ctx, NewErrorRenderer(v.env, v.Snapshot(), next, false))
}

// ClearSnapshotCache drops every cached page.
func (v *PageView) ClearSnapshotCache() { v.cache.Clear() }

// CacheSnapshot stores a clone of s under the last rendered location when
// the page allows caching. It returns the cached clone, or nil.
func (v *PageView) CacheSnapshot(s *snapshot.PageSnapshot) *snapshot.PageSnapshot {
	if !s.IsCacheable() || v.LastRenderedLocation == nil {
		return nil
	}
	v.delegate.ViewWillCacheSnapshot()
	return v.cache.Put(v.LastRenderedLocation, s.Clone())
}

// CachedSnapshotForLocation returns a private copy of the cached page for
// u, so rendering it never consumes the cache entry.
func (v *PageView) CachedSnapshotForLocation(u *url.URL) (*snapshot.PageSnapshot, bool) {
	s, ok := v.cache.Get(u)
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}
