package dom

import (
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// XPath expressions evaluated against snapshot roots. Expressions built from
// page content (ids, anchors) go through the Find* walkers instead.
const (
	XPathPermanent    = "//*[@id and @" + AttrPermanent + "]"
	XPathAutofocus    = "//*[@autofocus]"
	XPathScripts      = "//script"
	XPathPreloadLinks = "//a[@" + AttrPreload + "]"
	XPathTracked      = "//*[@" + AttrTrack + "='reload']"
	XPathFrames       = "//" + TagFrame + "[@id]"
	XPathStreams      = "//" + TagStream
)

// Query evaluates a static XPath expression under root.
func Query(root *html.Node, expr string) []*html.Node {
	if root == nil {
		return nil
	}
	return htmlquery.Find(root, expr)
}

// QueryOne returns the first node for a static XPath expression, or nil.
func QueryOne(root *html.Node, expr string) *html.Node {
	if root == nil {
		return nil
	}
	return htmlquery.FindOne(root, expr)
}

// MetaContent returns the content of <meta name=name> under root.
func MetaContent(root *html.Node, name string) (string, bool) {
	n := Find(root, func(n *html.Node) bool {
		return n.Data == "meta" && Attr(n, "name") == name
	})
	if n == nil {
		return "", false
	}
	return htmlquery.SelectAttr(n, "content"), true
}

// InnerText returns the text under n, as a reader would see it.
func InnerText(n *html.Node) string {
	if n == nil {
		return ""
	}
	return htmlquery.InnerText(n)
}
