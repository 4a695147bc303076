package pagedrive

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/net/html"

	"github.com/hazyhaar/pagedrive/dom"
	"github.com/hazyhaar/pagedrive/drive"
	"github.com/hazyhaar/pagedrive/fetch"
	"github.com/hazyhaar/pagedrive/history"
	"github.com/hazyhaar/pagedrive/location"
)

// Loader is the headless full navigation: it fetches a page and replaces
// the whole document with it, as a browser does for links the engine does
// not intercept and for forced reloads.
type Loader struct {
	s *Session
}

// Assign loads u as a new history entry.
func (l *Loader) Assign(u *url.URL) { l.navigate(fetch.Get, u, nil, "", history.Push) }

// Reload loads u again in place of the current entry.
func (l *Loader) Reload(u *url.URL) { l.navigate(fetch.Get, u, nil, "", history.Replace) }

// submit sends a form the engine does not drive as a full navigation.
func (l *Loader) submit(form, submitter *html.Node) {
	f, err := drive.NewFormSubmission(nil, drive.FormEnv{Doc: l.s.doc}, form, submitter, false)
	if err != nil {
		l.s.fail(err)
		return
	}
	r := f.Request
	l.navigate(r.Method, r.URL, r.Body, r.ContentType, history.Push)
}

func (l *Loader) navigate(method fetch.Method, u *url.URL, body []byte, contentType string, hm history.Method) {
	s := l.s
	s.nav.Stop()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequest(string(method), u.String(), rd)
	if err != nil {
		s.fail(fmt.Errorf("pagedrive: load %s: %w", u, err))
		return
	}
	req.Header.Set("Accept", fetch.DefaultAccept)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	s.logger.Info("pagedrive: full load", "method", string(method), "url", u.String())

	s.loop.Go(func() func() {
		resp, err := s.client.Do(s.ctx, req)
		return func() { l.finish(u, hm, resp, err) }
	})
}

func (l *Loader) finish(requested *url.URL, hm history.Method, resp *fetch.Response, err error) {
	s := l.s
	if err != nil {
		s.fail(fmt.Errorf("pagedrive: load %s: %w", requested, err))
		return
	}
	body, ok := resp.HTML()
	if !ok {
		s.fail(fmt.Errorf("%w: %s (%s)", ErrNotHTML, requested, resp.ContentType()))
		return
	}
	root, err := dom.ParseHTML(body)
	if err != nil {
		s.fail(fmt.Errorf("pagedrive: load %s: %w", requested, err))
		return
	}
	loc := resp.Location
	if loc == nil {
		loc = requested
	}
	if loc.Fragment == "" && requested.Fragment != "" {
		withAnchor := *loc
		withAnchor.Fragment = requested.Fragment
		loc = &withAnchor
	}
	if resp.Failed() {
		s.logger.Info("pagedrive: loaded error page", "url", loc.String(), "status", resp.StatusCode)
	}
	s.loadDocument(root, loc, hm)
}

// loadDocument installs root as the live document.
func (s *Session) loadDocument(root *html.Node, loc *url.URL, hm history.Method) {
	s.doc.Replace(root, loc)
	s.doc.ReadyState = dom.Complete
	if s.cfg.Root != "/" {
		if _, ok := s.doc.Meta(dom.MetaRoot); !ok {
			s.doc.SetMeta(dom.MetaRoot, s.cfg.Root)
		}
	}
	s.view.ClearSnapshotCache()
	s.view.Reloaded()

	if s.history.Started() {
		s.history.Update(hm, loc, "")
	} else {
		s.history.Start()
	}
	s.view.LastRenderedLocation = loc
	s.history.PageLoaded()

	for _, script := range dom.Query(root, dom.XPathScripts) {
		if dom.Attr(script, dom.AttrEval) != "false" {
			s.env.Scripts.RunScript(s.ctx, script)
		}
	}
	if anchor := location.Anchor(loc); anchor != "" {
		s.view.ScrollToAnchor(anchor)
	}
	s.preloader.PreloadOnLoadLinksForView(s.doc.Body())
	s.events.NotifyLoad(loc, drive.TimingMetrics{})
}
