// Package render swaps new content into the live document: the Renderer
// variants (page, error, frame, stream), the Bardo protocol preserving
// permanent elements, and the View driving a render cycle.
package render

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/pagedrive/dom"
	"github.com/hazyhaar/pagedrive/snapshot"
)

// Kind tags a renderer variant.
type Kind string

const (
	KindPage  Kind = "page"
	KindError Kind = "error"
	KindFrame Kind = "frame"
)

// Reload reasons reported when a render cannot proceed.
const (
	ReasonVisitControlReload     = "drive_visit_control_is_reload"
	ReasonTrackedElementMismatch = "tracked_element_mismatch"
	ReasonRequestFailed          = "request_failed"
	ReasonDriveDisabled          = "drive_disabled"
)

// Reason explains why the page must be fully reloaded.
type Reason struct {
	Reason     string `json:"reason"`
	StatusCode *int   `json:"status_code,omitempty"`
}

// ElementRenderer performs the actual swap of current for next.
type ElementRenderer func(current, next *html.Node)

// Renderer is one render of new content. The View calls the methods in
// order: ShouldRender, PrepareToRender, Render, FinishRendering.
type Renderer interface {
	Kind() Kind
	ShouldRender() bool
	ReloadReason() Reason
	IsPreview() bool
	NewSnapshot() *snapshot.Snapshot
	NewElement() *html.Node
	SetRenderElement(fn ElementRenderer)
	PrepareToRender(ctx context.Context) error
	Render(ctx context.Context) error
	FinishRendering()
}

// Env is what renderers need from their surroundings.
type Env struct {
	Doc               *dom.Document
	Scripts           ScriptRunner
	Resources         ResourceLoader
	StylesheetTimeout time.Duration
	Logger            *slog.Logger
}

func (e *Env) defaults() {
	if e.Scripts == nil {
		e.Scripts = NopScriptRunner{}
	}
	if e.StylesheetTimeout <= 0 {
		e.StylesheetTimeout = 2 * time.Second
	}
	if e.Logger == nil {
		e.Logger = slog.Default()
	}
}

// base carries the state and Bardo delegate shared by the variants.
type base struct {
	env           *Env
	current       *snapshot.Snapshot
	next          *snapshot.Snapshot
	isPreview     bool
	willRender    bool
	renderElement ElementRenderer
	activeElement *html.Node
}

func (b *base) ShouldRender() bool                  { return true }
func (b *base) ReloadReason() Reason                { return Reason{} }
func (b *base) IsPreview() bool                     { return b.isPreview }
func (b *base) NewSnapshot() *snapshot.Snapshot     { return b.next }
func (b *base) NewElement() *html.Node              { return b.next.Element() }
func (b *base) SetRenderElement(fn ElementRenderer) { b.renderElement = fn }

func (b *base) PrepareToRender(context.Context) error { return nil }
func (b *base) FinishRendering()                      {}

func (b *base) preservingPermanentElements(swap func() error) error {
	m := b.current.PermanentElementMapFor(b.next)
	return PreservingPermanentElements(b.env.Doc, m, b, swap)
}

func (b *base) focusFirstAutofocusableElement() {
	if el := b.connectedSnapshot().FirstAutofocusableElement(); el != nil {
		b.env.Doc.Focus(el)
	}
}

// EnteringBardo remembers focus held inside a permanent element.
func (b *base) EnteringBardo(current, _ *html.Node) {
	if b.activeElement != nil {
		return
	}
	if active := b.env.Doc.ActiveElement(); active != nil && dom.Contains(current, active) {
		b.activeElement = active
	}
}

// LeavingBardo gives focus back once the element is in place again.
func (b *base) LeavingBardo(current *html.Node) {
	if b.activeElement != nil && dom.Contains(current, b.activeElement) {
		b.env.Doc.Focus(b.activeElement)
		b.activeElement = nil
	}
}

func (b *base) connectedSnapshot() *snapshot.Snapshot {
	if b.next.IsConnected(b.env.Doc) {
		return b.next
	}
	return b.current
}

// activateScripts replaces every script under root with a fresh copy and
// hands it to the script runner.
func (b *base) activateScripts(ctx context.Context, root *html.Node) {
	for _, inert := range dom.Query(root, dom.XPathScripts) {
		activated, ok := ActivateScriptElement(b.env.Doc, inert)
		if !ok {
			continue
		}
		dom.ReplaceWith(inert, activated)
		b.env.Scripts.RunScript(ctx, activated)
	}
}
