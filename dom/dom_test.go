package dom

import (
	"net/url"
	"strings"
	"testing"
)

func parse(t *testing.T, s string) *Document {
	t.Helper()
	u, _ := url.Parse("http://example.test/")
	d, err := ParseDocument(strings.NewReader(s), u)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestQuerySelectorAll(t *testing.T) {
	d := parse(t, `<html><body>
		<div id="a" class="x"><p class="x">one</p></div>
		<form id="f"><input name="q" data-kind="search"><button type="submit">go</button></form>
	</body></html>`)

	tests := []struct {
		sel  string
		want int
	}{
		{"div", 1},
		{".x", 2},
		{"#f", 1},
		{"div.x", 1},
		{"input[name=q]", 1},
		{"input[data-kind]", 1},
		{"form button", 1},
		{"div p, #f", 2},
		{"section", 0},
	}
	for _, tt := range tests {
		if got := QuerySelectorAll(d.Root, tt.sel); len(got) != tt.want {
			t.Errorf("%q: got %d matches, want %d", tt.sel, len(got), tt.want)
		}
	}
}

func TestQuerySelectorAll_DocumentOrder(t *testing.T) {
	d := parse(t, `<html><body><p id="1"></p><span id="2"></span><p id="3"></p></body></html>`)
	got := QuerySelectorAll(d.Root, "span, p")
	if len(got) != 3 || ID(got[0]) != "1" || ID(got[1]) != "2" {
		t.Fatalf("order: got %d nodes", len(got))
	}
}

func TestReplaceWith(t *testing.T) {
	d := parse(t, `<html><body><p id="old"></p></body></html>`)
	old := FindByID(d.Root, "old")
	repl := NewElement("div")
	SetAttr(repl, "id", "new")
	ReplaceWith(old, repl)

	if FindByID(d.Root, "old") != nil {
		t.Fatal("old still attached")
	}
	if FindByID(d.Root, "new") != repl {
		t.Fatal("replacement not attached")
	}
	if old.Parent != nil {
		t.Fatal("old should be detached")
	}
}

func TestClone_Detached(t *testing.T) {
	d := parse(t, `<html><body><div id="a"><b>x</b></div></body></html>`)
	a := FindByID(d.Root, "a")
	c := Clone(a)
	if c.Parent != nil {
		t.Fatal("clone has a parent")
	}
	if OuterHTML(c) != OuterHTML(a) {
		t.Fatalf("clone differs: %s vs %s", OuterHTML(c), OuterHTML(a))
	}
	SetAttr(c, "id", "b")
	if ID(a) != "a" {
		t.Fatal("mutating the clone changed the original")
	}
}

func TestDocument_FocusAndScroll(t *testing.T) {
	d := parse(t, `<html><body><input id="i"><p id="target"></p></body></html>`)
	i := FindByID(d.Root, "i")
	d.Focus(i)
	if d.ActiveElement() != i {
		t.Fatal("focus not applied")
	}
	Detach(i)
	if d.ActiveElement() != d.Body() {
		t.Fatal("detached element should not stay active")
	}

	target := FindByID(d.Root, "target")
	d.ScrollIntoView(target)
	if d.ScrollTarget() != target || d.ScrollPosition().Y == 0 {
		t.Fatalf("scroll: target=%v pos=%v", d.ScrollTarget(), d.ScrollPosition())
	}
	d.ScrollTo(Position{})
	if d.ScrollTarget() != nil {
		t.Fatal("ScrollTo should clear the target")
	}
}

func TestDocument_Meta(t *testing.T) {
	d := parse(t, `<html><head><meta name="drive-root" content="/app"><title> Hi </title></head><body></body></html>`)
	if v, ok := d.Meta(MetaRoot); !ok || v != "/app" {
		t.Fatalf("meta: got %q %v", v, ok)
	}
	d.SetMeta(MetaCacheControl, "no-cache")
	if v, _ := d.Meta(MetaCacheControl); v != "no-cache" {
		t.Fatalf("SetMeta: got %q", v)
	}
	d.RemoveMeta(MetaCacheControl)
	if _, ok := d.Meta(MetaCacheControl); ok {
		t.Fatal("RemoveMeta left the element")
	}
	if d.Title() != "Hi" {
		t.Fatalf("title: got %q", d.Title())
	}
}

func TestDocument_MetaOutsideHead(t *testing.T) {
	d := parse(t, `<html><head></head><body><meta name="csrf-token" content="tok"></body></html>`)
	if v, ok := d.Meta("csrf-token"); !ok || v != "tok" {
		t.Fatalf("meta in body: got %q %v", v, ok)
	}
}

func TestDocument_SetURL(t *testing.T) {
	d := parse(t, `<html><body></body></html>`)
	u, _ := url.Parse("http://example.test/next")
	d.SetURL(u)
	u.Path = "/mutated"
	if d.URL.Path != "/next" {
		t.Fatalf("URL = %s", d.URL)
	}
}

func TestQuery_XPath(t *testing.T) {
	d := parse(t, `<html><body>
		<div id="p1" data-drive-permanent></div>
		<div data-drive-permanent></div>
		<input autofocus>
	</body></html>`)
	if got := Query(d.Body(), XPathPermanent); len(got) != 1 {
		t.Fatalf("permanent: got %d", len(got))
	}
	if QueryOne(d.Body(), XPathAutofocus) == nil {
		t.Fatal("autofocus not found")
	}
}
