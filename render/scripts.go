package render

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/pagedrive/dom"
	"github.com/hazyhaar/pagedrive/fetch"
	"github.com/hazyhaar/pagedrive/location"
)

// ScriptRunner executes activated script elements.
type ScriptRunner interface {
	RunScript(ctx context.Context, script *html.Node)
}

// NopScriptRunner ignores scripts.
type NopScriptRunner struct{}

// RunScript does nothing.
func (NopScriptRunner) RunScript(context.Context, *html.Node) {}

// LogScriptRunner records activated scripts at debug level.
type LogScriptRunner struct {
	Logger *slog.Logger
}

// RunScript logs the script source or its size.
func (r LogScriptRunner) RunScript(_ context.Context, script *html.Node) {
	l := r.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Debug("render: script activated", "src", dom.Attr(script, "src"), "inline_bytes", len(dom.TextContent(script)))
}

// ActivateScriptElement returns a fresh copy of a script so that inserting
// it executes it. Scripts opted out with data-drive-eval="false" are
// returned as is with ok=false.
func ActivateScriptElement(doc *dom.Document, el *html.Node) (*html.Node, bool) {
	if dom.Attr(el, dom.AttrEval) == "false" {
		return el, false
	}
	created := dom.CloneShallow(el)
	if nonce, ok := doc.Meta(dom.MetaCSPNonce); ok && nonce != "" {
		dom.SetAttr(created, "nonce", nonce)
	}
	for c := el.FirstChild; c != nil; c = c.NextSibling {
		created.AppendChild(dom.Clone(c))
	}
	return created, true
}

// ResourceLoader loads subresources such as stylesheets.
type ResourceLoader interface {
	Load(ctx context.Context, u *url.URL) error
}

// ClientLoader loads resources with a fetch client.
type ClientLoader struct {
	Client *fetch.Client
}

// Load GETs u and fails on a non-2xx status.
func (l ClientLoader) Load(ctx context.Context, u *url.URL) error {
	resp, err := l.Client.Get(ctx, u, "text/css,*/*;q=0.1", nil)
	if err != nil {
		return err
	}
	if !resp.Succeeded() {
		return fmt.Errorf("render: load %s: status %d", u, resp.StatusCode)
	}
	return nil
}

// waitForStylesheets loads every linked stylesheet concurrently and
// returns once all settled or the timeout passed. Load errors only get
// logged: a broken stylesheet must not block the render.
func waitForStylesheets(ctx context.Context, env *Env, elements []*html.Node) {
	if env.Resources == nil || len(elements) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, env.StylesheetTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, el := range elements {
		if el.Data != "link" {
			continue
		}
		href := strings.TrimSpace(dom.Attr(el, "href"))
		if href == "" {
			continue
		}
		u, err := location.Expand(env.Doc.URL, href)
		if err != nil {
			env.Logger.Warn("render: stylesheet href", "href", href, "error", err)
			continue
		}
		g.Go(func() error {
			if err := env.Resources.Load(gctx, u); err != nil {
				env.Logger.Warn("render: stylesheet load", "url", u.String(), "error", err)
			}
			return nil
		})
	}
	g.Wait()
}
