package drive

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"golang.org/x/net/html"

	"github.com/hazyhaar/pagedrive/dom"
	"github.com/hazyhaar/pagedrive/fetch"
	"github.com/hazyhaar/pagedrive/internal/loop"
	"github.com/hazyhaar/pagedrive/location"
	"github.com/hazyhaar/pagedrive/snapshot"
)

// Preloader fetches a[data-drive-preload] links into the snapshot cache so
// visiting them shows content at once.
type Preloader struct {
	ctx    context.Context
	doc    *dom.Document
	cache  *snapshot.Cache
	client *fetch.Client
	loop   *loop.Loop
	logger *slog.Logger

	inflight map[string]bool
}

// NewPreloader creates a preloader filling cache.
func NewPreloader(ctx context.Context, doc *dom.Document, cache *snapshot.Cache, client *fetch.Client, lp *loop.Loop, logger *slog.Logger) *Preloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preloader{
		ctx:      ctx,
		doc:      doc,
		cache:    cache,
		client:   client,
		loop:     lp,
		logger:   logger,
		inflight: make(map[string]bool),
	}
}

// PreloadOnLoadLinksForView preloads every preload link under root.
func (p *Preloader) PreloadOnLoadLinksForView(root *html.Node) {
	if root == nil {
		return
	}
	for _, link := range dom.Query(root, dom.XPathPreloadLinks) {
		u, err := location.Expand(p.doc.URL, dom.Attr(link, "href"))
		if err != nil {
			continue
		}
		p.PreloadURL(u)
	}
}

// PreloadURL fetches u unless it is cached or already being fetched.
// Failures are ignored.
func (p *Preloader) PreloadURL(u *url.URL) {
	key := location.CacheKey(u)
	if p.cache.Has(u) || p.inflight[key] {
		return
	}
	p.inflight[key] = true
	header := http.Header{"Sec-Purpose": []string{"prefetch"}}
	p.loop.Go(func() func() {
		resp, err := p.client.Get(p.ctx, u, "text/html", header)
		return func() {
			delete(p.inflight, key)
			if err != nil {
				p.logger.Debug("drive: preload failed", "url", u.String(), "error", err)
				return
			}
			body, ok := resp.HTML()
			if !ok || !resp.Succeeded() {
				return
			}
			s, err := snapshot.FromHTML(body)
			if err != nil {
				return
			}
			p.cache.Put(u, s)
			p.logger.Debug("drive: preloaded", "url", u.String())
		}
	})
}
