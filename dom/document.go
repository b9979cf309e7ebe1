// Package dom models the page a hop agent lives in: an x/net/html tree plus
// the host affordances a content script relies on (mutation observers,
// listeners, history, visibility, per-document globals).
//
// A Document is safe for concurrent use. Tree reads go through Read, tree
// writes through the mutation methods, which notify observers after the
// lock is released.
package dom

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/hazyhaar/kango/locator"
)

// ErrDetached is returned when a mutation targets a node that is no longer
// attached to a parent.
var ErrDetached = errors.New("dom: node is detached")

// ReadyState mirrors document.readyState.
type ReadyState string

const (
	StateLoading  ReadyState = "loading"
	StateComplete ReadyState = "complete"
)

// Document is one loaded page.
type Document struct {
	mu        sync.RWMutex
	root      *html.Node
	url       string
	ready     ReadyState
	visible   bool
	scrolled  *html.Node
	globals   map[string]bool
	observers []*observer
	listeners map[string][]*listener
	history   *History
}

// Option customises Parse.
type Option func(*Document)

// Loading leaves the document in the loading state until FinishLoading.
func Loading() Option { return func(d *Document) { d.ready = StateLoading } }

// Hidden starts the document in the background (visibilityState "hidden").
func Hidden() Option { return func(d *Document) { d.visible = false } }

// Parse builds a Document from HTML served at pageURL.
func Parse(r io.Reader, pageURL string, opts ...Option) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	d := &Document{
		root:      root,
		url:       pageURL,
		ready:     StateComplete,
		visible:   true,
		globals:   make(map[string]bool),
		listeners: make(map[string][]*listener),
	}
	d.history = newHistory(d, pageURL)
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// ParseString is Parse over a string.
func ParseString(s, pageURL string, opts ...Option) (*Document, error) {
	return Parse(strings.NewReader(s), pageURL, opts...)
}

// URL returns the current location.
func (d *Document) URL() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.url
}

func (d *Document) setURL(u string) {
	d.mu.Lock()
	d.url = u
	d.mu.Unlock()
}

// History returns the document's history object.
func (d *Document) History() *History { return d.history }

// ReadyState returns the loading state.
func (d *Document) ReadyState() ReadyState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ready
}

// FinishLoading moves a loading document to complete and fires
// DOMContentLoaded. It is a no-op on a complete document.
func (d *Document) FinishLoading() {
	d.mu.Lock()
	if d.ready == StateComplete {
		d.mu.Unlock()
		return
	}
	d.ready = StateComplete
	d.mu.Unlock()
	d.Dispatch(Event{Type: EventDOMContentLoaded})
}

// Visible reports whether the page is in the foreground.
func (d *Document) Visible() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.visible
}

// SetVisible changes the visibility state and fires visibilitychange when
// it actually changed.
func (d *Document) SetVisible(v bool) {
	d.mu.Lock()
	changed := d.visible != v
	d.visible = v
	d.mu.Unlock()
	if changed {
		d.Dispatch(Event{Type: EventVisibilityChange})
	}
}

// Focus fires a focus event on the window.
func (d *Document) Focus() {
	d.Dispatch(Event{Type: EventFocus})
}

// MarkOnce sets a per-document global flag and reports whether this call
// set it. Scripts injected more than once into the same document use it to
// install their hooks exactly once.
func (d *Document) MarkOnce(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.globals[key] {
		return false
	}
	d.globals[key] = true
	return true
}

// Read runs fn with the tree root under the read lock. fn must not call
// mutation methods.
func (d *Document) Read(fn func(root *html.Node)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn(d.root)
}

// Body returns the <body> element.
func (d *Document) Body() *html.Node {
	var body *html.Node
	d.Read(func(root *html.Node) {
		if all := locator.ElementsByTag(root, "body"); len(all) > 0 {
			body = all[0]
		}
	})
	return body
}

// ElementByID returns the first element with the given id.
func (d *Document) ElementByID(id string) *html.Node {
	var n *html.Node
	d.Read(func(root *html.Node) { n = locator.ElementByID(root, id) })
	return n
}

// ElementsByAttr returns the elements carrying attribute key, optionally
// restricted to value val when val is non-empty, in document order.
func (d *Document) ElementsByAttr(key, val string) []*html.Node {
	var out []*html.Node
	d.Read(func(root *html.Node) {
		walk(root, func(n *html.Node) {
			if n.Type != html.ElementNode {
				return
			}
			for _, a := range n.Attr {
				if a.Key == key && (val == "" || a.Val == val) {
					out = append(out, n)
					return
				}
			}
		})
	})
	return out
}

// Contains reports whether n is attached under the document root.
func (d *Document) Contains(n *html.Node) bool {
	ok := false
	d.Read(func(root *html.Node) {
		for cur := n; cur != nil; cur = cur.Parent {
			if cur == root {
				ok = true
				return
			}
		}
	})
	return ok
}

// TextContent returns the concatenated text of n's subtree.
func (d *Document) TextContent(n *html.Node) string {
	var s string
	d.Read(func(*html.Node) { s = TextContent(n) })
	return s
}

// InsertBefore inserts n immediately before ref.
func (d *Document) InsertBefore(n, ref *html.Node) error {
	d.mu.Lock()
	parent := ref.Parent
	if parent == nil {
		d.mu.Unlock()
		return ErrDetached
	}
	parent.InsertBefore(n, ref)
	d.mu.Unlock()

	d.notify(MutationRecord{Op: OpInsert, Target: parent, Added: []*html.Node{n}})
	return nil
}

// AppendChild appends n as the last child of parent.
func (d *Document) AppendChild(parent, n *html.Node) error {
	if parent == nil {
		return ErrDetached
	}
	d.mu.Lock()
	parent.AppendChild(n)
	d.mu.Unlock()

	d.notify(MutationRecord{Op: OpInsert, Target: parent, Added: []*html.Node{n}})
	return nil
}

// Remove detaches n from its parent.
func (d *Document) Remove(n *html.Node) error {
	d.mu.Lock()
	parent := n.Parent
	if parent == nil {
		d.mu.Unlock()
		return ErrDetached
	}
	parent.RemoveChild(n)
	d.mu.Unlock()

	d.notify(MutationRecord{Op: OpRemove, Target: parent, Removed: []*html.Node{n}})
	return nil
}

// SetAttr sets (or adds) an attribute on n.
func (d *Document) SetAttr(n *html.Node, key, val string) {
	d.mu.Lock()
	setAttr(n, key, val)
	d.mu.Unlock()

	d.notify(MutationRecord{Op: OpAttr, Target: n, Name: key})
}

// RemoveAttr deletes an attribute from n. Removing an absent attribute is a
// no-op and notifies nobody.
func (d *Document) RemoveAttr(n *html.Node, key string) {
	d.mu.Lock()
	before := len(n.Attr)
	n.Attr = slices.DeleteFunc(n.Attr, func(a html.Attribute) bool {
		return a.Namespace == "" && a.Key == key
	})
	changed := len(n.Attr) != before
	d.mu.Unlock()

	if changed {
		d.notify(MutationRecord{Op: OpAttr, Target: n, Name: key})
	}
}

// ScrollIntoView records n as the element the viewport was brought to.
func (d *Document) ScrollIntoView(n *html.Node) {
	d.mu.Lock()
	d.scrolled = n
	d.mu.Unlock()
}

// ScrolledTo returns the last element passed to ScrollIntoView.
func (d *Document) ScrolledTo() *html.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.scrolled
}

// Render serialises the whole document.
func (d *Document) Render() (string, error) {
	var buf bytes.Buffer
	var err error
	d.Read(func(root *html.Node) { err = html.Render(&buf, root) })
	if err != nil {
		return "", fmt.Errorf("dom: render: %w", err)
	}
	return buf.String(), nil
}

// NewElement builds a detached element. attrs are key/value pairs.
func NewElement(tag string, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: tag}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

// NewText builds a detached text node.
func NewText(s string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: s}
}

// TextContent returns the concatenated text of n's subtree. Callers hold
// the document lock or own the (detached) subtree.
func TextContent(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	})
	return b.String()
}

// Attr returns an attribute value, or "".
func Attr(n *html.Node, key string) string {
	return locator.Attr(n, key)
}

// HasClass reports whether n's class attribute lists class.
func HasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(Attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// Closest returns the nearest ancestor-or-self element for which match is
// true.
func Closest(n *html.Node, match func(*html.Node) bool) *html.Node {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type == html.ElementNode && match(cur) {
			return cur
		}
	}
	return nil
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Namespace == "" && n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func walk(n *html.Node, visit func(*html.Node)) {
	visit(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}
