package render

import (
	"golang.org/x/net/html"

	"github.com/hazyhaar/pagedrive/dom"
	"github.com/hazyhaar/pagedrive/snapshot"
)

// BardoDelegate observes permanent elements as they are set aside and
// restored around a swap.
type BardoDelegate interface {
	EnteringBardo(current, next *html.Node)
	LeavingBardo(current *html.Node)
}

// Bardo keeps permanent elements alive across a subtree replacement by
// relocating the live nodes into the incoming content.
type Bardo struct {
	doc          *dom.Document
	m            snapshot.PermanentElementMap
	delegate     BardoDelegate
	placeholders map[string]*html.Node
}

// PreservingPermanentElements runs swap between Enter and Leave.
func PreservingPermanentElements(doc *dom.Document, m snapshot.PermanentElementMap, d BardoDelegate, swap func() error) error {
	b := &Bardo{doc: doc, m: m, delegate: d, placeholders: make(map[string]*html.Node, len(m))}
	b.Enter()
	err := swap()
	b.Leave()
	return err
}

// Enter swaps every incoming permanent element for a placeholder.
func (b *Bardo) Enter() {
	for id, pair := range b.m {
		b.delegate.EnteringBardo(pair.Current, pair.New)
		ph := newPlaceholder(id)
		if pair.New.Parent != nil {
			dom.ReplaceWith(pair.New, ph)
			b.placeholders[id] = ph
		}
	}
}

// Leave detaches each live permanent element, leaving a clone in the old
// tree, and moves it into its placeholder's slot in the new content.
func (b *Bardo) Leave() {
	for id, pair := range b.m {
		current := pair.Current
		if current.Parent != nil {
			dom.ReplaceWith(current, dom.Clone(current))
		}
		if ph := b.placeholders[id]; ph != nil && b.doc.IsConnected(ph) {
			dom.ReplaceWith(ph, current)
		}
		b.delegate.LeavingBardo(current)
	}
}

func newPlaceholder(id string) *html.Node {
	return dom.NewElement("meta",
		html.Attribute{Key: "name", Val: dom.MetaPlaceholder},
		html.Attribute{Key: "content", Val: id},
	)
}
