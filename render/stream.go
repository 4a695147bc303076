package render

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/pagedrive/dom"
	"github.com/hazyhaar/pagedrive/snapshot"
)

// Stream actions.
const (
	ActionAppend  = "append"
	ActionPrepend = "prepend"
	ActionReplace = "replace"
	ActionUpdate  = "update"
	ActionRemove  = "remove"
	ActionBefore  = "before"
	ActionAfter   = "after"
)

// StreamAction is one <drive-stream> element of a message.
type StreamAction struct {
	Action   string
	Target   string
	Template *html.Node
}

// ParseStreamMessage extracts the stream actions of a partial-update body.
func ParseStreamMessage(message string) ([]StreamAction, error) {
	root, err := dom.ParseHTML(message)
	if err != nil {
		return nil, fmt.Errorf("render: stream message: %w", err)
	}
	var out []StreamAction
	for _, el := range dom.Query(root, dom.XPathStreams) {
		a := StreamAction{
			Action: strings.ToLower(dom.Attr(el, "action")),
			Target: dom.Attr(el, "target"),
		}
		a.Template = dom.Find(el, func(n *html.Node) bool { return n.Data == "template" })
		if a.Template == nil {
			a.Template = dom.NewElement("template")
		}
		out = append(out, a)
	}
	return out, nil
}

// StreamRenderer applies stream actions to the live document.
type StreamRenderer struct {
	env *Env
}

// NewStreamRenderer binds a stream renderer to env.
func NewStreamRenderer(env *Env) *StreamRenderer {
	env.defaults()
	return &StreamRenderer{env: env}
}

// Render applies every action of message in order. Unknown actions and
// missing targets are logged and skipped.
func (r *StreamRenderer) Render(ctx context.Context, message string) error {
	actions, err := ParseStreamMessage(message)
	if err != nil {
		return err
	}
	for _, a := range actions {
		if err := r.apply(ctx, a); err != nil {
			r.env.Logger.Warn("render: stream action skipped", "action", a.Action, "target", a.Target, "error", err)
		}
	}
	return nil
}

func (r *StreamRenderer) apply(ctx context.Context, a StreamAction) error {
	target := dom.FindByID(r.env.Doc.Root, a.Target)
	if target == nil {
		return fmt.Errorf("target %q not found", a.Target)
	}
	r.activate(ctx, a.Template)

	content := a.Template
	switch a.Action {
	case ActionRemove:
		dom.Detach(target)
	case ActionAppend:
		removeDuplicateChildren(target, content)
		dom.MoveChildren(target, content)
	case ActionPrepend:
		removeDuplicateChildren(target, content)
		first := target.FirstChild
		for c := content.FirstChild; c != nil; {
			next := c.NextSibling
			content.RemoveChild(c)
			target.InsertBefore(c, first)
			c = next
		}
	case ActionBefore:
		for _, c := range detachChildren(content) {
			dom.InsertBefore(target, c)
		}
	case ActionAfter:
		ref := target
		for _, c := range detachChildren(content) {
			dom.InsertAfter(ref, c)
			ref = c
		}
	case ActionReplace:
		return r.preserving(target, content, func() {
			for _, c := range detachChildren(content) {
				dom.InsertBefore(target, c)
			}
			dom.Detach(target)
		})
	case ActionUpdate:
		return r.preserving(target, content, func() {
			dom.RemoveChildren(target)
			dom.MoveChildren(target, content)
		})
	default:
		return fmt.Errorf("unknown action %q", a.Action)
	}
	return nil
}

// preserving keeps permanent elements of the replaced subtree alive.
func (r *StreamRenderer) preserving(current, content *html.Node, swap func()) error {
	m := snapshot.New(current).PermanentElementMapFor(snapshot.New(content))
	if dom.HasAttr(current, dom.AttrPermanent) && dom.ID(current) != "" {
		if n := snapshot.New(content).PermanentElementByID(dom.ID(current)); n != nil {
			m[dom.ID(current)] = snapshot.ElementPair{Current: current, New: n}
		}
	}
	return PreservingPermanentElements(r.env.Doc, m, streamBardo{}, func() error {
		swap()
		return nil
	})
}

func (r *StreamRenderer) activate(ctx context.Context, root *html.Node) {
	for _, inert := range dom.Query(root, dom.XPathScripts) {
		activated, ok := ActivateScriptElement(r.env.Doc, inert)
		if !ok {
			continue
		}
		dom.ReplaceWith(inert, activated)
		r.env.Scripts.RunScript(ctx, activated)
	}
}

type streamBardo struct{}

func (streamBardo) EnteringBardo(_, _ *html.Node) {}
func (streamBardo) LeavingBardo(*html.Node)       {}

func removeDuplicateChildren(target, content *html.Node) {
	for _, c := range dom.Children(content) {
		id := dom.ID(c)
		if id == "" {
			continue
		}
		for _, existing := range dom.Children(target) {
			if dom.ID(existing) == id {
				dom.Detach(existing)
			}
		}
	}
}

func detachChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		out = append(out, c)
		c = next
	}
	return out
}
