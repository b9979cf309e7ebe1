package locator

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
)

const page = `<!DOCTYPE html><html><head><title>t</title></head><body>
<div id="main"><span>intro <b>bold</b></span></div>
<div class="content">
  <p>first</p>
  <p>second <span class="leaf">inline <em>deep</em></span></p>
  <ul><li>item</li></ul>
</div>
<span class="orphan">no block <a href="#">link</a></span>
</body></html>`

func parse(t *testing.T, s string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func find(root *html.Node, match func(*html.Node) bool) *html.Node {
	var found *html.Node
	walkSkipping(root, nil, func(n *html.Node) bool {
		if n.Type == html.ElementNode && match(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

func byClass(class string) func(*html.Node) bool {
	return func(n *html.Node) bool { return Attr(n, "class") == class }
}

func byTag(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool { return n.Data == tag }
}

func TestCompute_IDForm(t *testing.T) {
	doc := parse(t, page)
	b := find(doc, byTag("b"))

	loc, ok := Compute(b)
	if !ok {
		t.Fatal("Compute: no locator")
	}
	if loc.Tag != "#main" || loc.Index != IDIndex {
		t.Fatalf("Compute: got %+v, want {#main -1}", loc)
	}
	if !loc.IsID() {
		t.Error("IsID: got false")
	}
}

func TestCompute_BlockBeforeOuterID(t *testing.T) {
	// The nearest block container is reached before the outer id.
	doc := parse(t, `<html><body><div id="outer"><p>x <span>y</span></p></div></body></html>`)
	span := find(doc, byTag("span"))

	loc, ok := Compute(span)
	if !ok {
		t.Fatal("Compute: no locator")
	}
	if loc.Tag != "p" || loc.Index != 0 {
		t.Fatalf("Compute: got %+v, want {p 0}", loc)
	}
}

func TestCompute_Positional(t *testing.T) {
	doc := parse(t, page)
	em := find(doc, byTag("em"))

	loc, ok := Compute(em)
	if !ok {
		t.Fatal("Compute: no locator")
	}
	if loc.Tag != "p" || loc.Index != 1 {
		t.Fatalf("Compute: got %+v, want {p 1}", loc)
	}
}

func TestCompute_NoAnchor(t *testing.T) {
	doc := parse(t, page)
	a := find(doc, byTag("a"))
	if loc, ok := Compute(a); ok {
		t.Fatalf("Compute: got %+v, want none (span/body/html are not block tags)", loc)
	}
}

func TestCompute_DetachedElement(t *testing.T) {
	div := &html.Node{Type: html.ElementNode, Data: "div"}
	if _, ok := Compute(div); ok {
		t.Fatal("Compute on detached element: want false")
	}
}

func TestCompute_TextNodeStops(t *testing.T) {
	doc := parse(t, page)
	p := find(doc, byTag("p"))
	text := p.FirstChild
	if text.Type != html.TextNode {
		t.Fatalf("expected text node, got %v", text.Type)
	}
	if _, ok := Compute(text); ok {
		t.Fatal("Compute on text node: want false")
	}
}

func TestRoundTrip(t *testing.T) {
	doc := parse(t, page)
	var elements []*html.Node
	walkSkipping(doc, nil, func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			elements = append(elements, n)
		}
		return true
	})

	resolved := 0
	for _, el := range elements {
		loc, ok := Compute(el)
		if !ok {
			continue
		}
		got := Resolve(doc, loc)
		if got == nil {
			t.Fatalf("Resolve(%s) for <%s>: nil", loc, el.Data)
		}
		anchor := el
		for anchor != got && anchor.Parent != nil {
			anchor = anchor.Parent
		}
		if anchor != got {
			t.Fatalf("Resolve(%s): got <%s>, not an ancestor-or-self of <%s>", loc, got.Data, el.Data)
		}
		if !loc.IsID() && got.Data != loc.Tag {
			t.Fatalf("Resolve(%s): tag %q", loc, got.Data)
		}
		resolved++
	}
	if resolved == 0 {
		t.Fatal("no element produced a locator")
	}
}

func TestRoundTrip_ExactElement(t *testing.T) {
	doc := parse(t, page)
	for _, tag := range []string{"ul", "p"} {
		el := find(doc, byTag(tag))
		loc, ok := Compute(el)
		if !ok {
			t.Fatalf("Compute(<%s>): none", tag)
		}
		if got := Resolve(doc, loc); got != el {
			t.Fatalf("Resolve(Compute(<%s>)) returned a different element", tag)
		}
	}
}

func TestResolve_IDSurvivesSiblingInsertions(t *testing.T) {
	doc := parse(t, page)
	main := find(doc, func(n *html.Node) bool { return Attr(n, "id") == "main" })
	loc, _ := Compute(main)

	body := find(doc, byTag("body"))
	for i := 0; i < 3; i++ {
		extra := &html.Node{Type: html.ElementNode, Data: "div"}
		body.InsertBefore(extra, body.FirstChild)
	}

	if got := Resolve(doc, loc); got != main {
		t.Fatal("Resolve(#main) after insertions: wrong element")
	}
}

func TestResolve_PositionalDrift(t *testing.T) {
	doc := parse(t, page)
	content := find(doc, byClass("content"))
	loc, _ := Compute(content)

	body := find(doc, byTag("body"))
	body.InsertBefore(&html.Node{Type: html.ElementNode, Data: "div"}, body.FirstChild)

	got := Resolve(doc, loc)
	if got == nil || got == content {
		t.Fatal("Resolve after same-tag insertion before target: expected silent drift to another div")
	}
	if got.Data != "div" {
		t.Fatalf("drifted element tag: got %q", got.Data)
	}
}

func TestResolve_OutOfRange(t *testing.T) {
	doc := parse(t, page)
	tests := []Locator{
		{Tag: "p", Index: 99},
		{Tag: "h3", Index: 0},
		{Tag: "p", Index: -2},
		{Tag: "#missing", Index: IDIndex},
		{Tag: `#bad\`, Index: IDIndex},
		{Tag: "", Index: 0},
	}
	for _, loc := range tests {
		if got := Resolve(doc, loc); got != nil {
			t.Errorf("Resolve(%+v): got <%s>, want nil", loc, got.Data)
		}
	}
}

func TestResolve_EscapedID(t *testing.T) {
	ids := []string{"1st", "a b", "x.y:z", "-2", "-", "été", "q\"uote"}
	for _, id := range ids {
		doc := parse(t, `<html><body><section><div>plain</div><div id="`+html.EscapeString(id)+`">t</div></section></body></html>`)
		el := find(doc, func(n *html.Node) bool { return Attr(n, "id") == id })
		if el == nil {
			t.Fatalf("fixture for %q: element not found", id)
		}
		loc, ok := Compute(el)
		if !ok {
			t.Fatalf("Compute(id=%q): none", id)
		}
		if got := Resolve(doc, loc); got != el {
			t.Errorf("Resolve(%s) for id %q: wrong element", loc.Tag, id)
		}
	}
}

func TestCSSEscape(t *testing.T) {
	tests := []struct{ in, want string }{
		{"main", "main"},
		{"1st", `\31 st`},
		{"-2x", `-\32 x`},
		{"-", `\-`},
		{"a b", `a\ b`},
		{"x.y", `x\.y`},
		{"\x01", `\1 `},
		{"été", "été"},
		{"under_score-dash", "under_score-dash"},
	}
	for _, tt := range tests {
		if got := CSSEscape(tt.in); got != tt.want {
			t.Errorf("CSSEscape(%q): got %q, want %q", tt.in, got, tt.want)
		}
		back, ok := CSSUnescape(CSSEscape(tt.in))
		if !ok || back != tt.in {
			t.Errorf("CSSUnescape(CSSEscape(%q)): got %q, %v", tt.in, back, ok)
		}
	}
}

func TestIsBlockTag(t *testing.T) {
	for _, tag := range []string{"DIV", "p", "H6", "blockquote", "tr"} {
		if !IsBlockTag(tag) {
			t.Errorf("IsBlockTag(%q): want true", tag)
		}
	}
	for _, tag := range []string{"span", "li", "td", "section", "body"} {
		if IsBlockTag(tag) {
			t.Errorf("IsBlockTag(%q): want false", tag)
		}
	}
}

func TestSkipping(t *testing.T) {
	doc := parse(t, `<html><body><div class="a">one</div><div class="b">two <i>x</i></div><div id="in-skip"><p>p</p></div></body></html>`)
	body := find(doc, byTag("body"))
	b := find(doc, byClass("b"))

	marker := &html.Node{Type: html.ElementNode, Data: "div", Attr: []html.Attribute{{Key: "class", Val: "marker"}}}
	body.InsertBefore(marker, body.FirstChild)
	skip := func(n *html.Node) bool { return Attr(n, "class") == "marker" || Attr(n, "id") == "in-skip" }

	loc, ok := ComputeSkipping(find(doc, byTag("i")), skip)
	if !ok || loc.Tag != "div" || loc.Index != 1 {
		t.Fatalf("ComputeSkipping: %+v %v, want {div 1}", loc, ok)
	}
	if got := ResolveSkipping(doc, loc, skip); got != b {
		t.Fatal("ResolveSkipping: wrong element")
	}
	if got := Resolve(doc, loc); got == b {
		t.Fatal("Resolve without skip should count the marker")
	}

	if _, ok := ComputeSkipping(marker, skip); ok {
		t.Fatal("ComputeSkipping on a skipped element: want false")
	}
	if _, ok := ComputeSkipping(find(doc, byTag("p")), skip); ok {
		t.Fatal("ComputeSkipping inside a skipped subtree: want false")
	}
	if got := ResolveSkipping(doc, Locator{Tag: "#in-skip", Index: IDIndex}, skip); got != nil {
		t.Fatal("ResolveSkipping matched an id inside a skipped subtree")
	}
}
