// Package locator computes and resolves structural addresses of DOM
// elements. A Locator is either an ID selector ("#main", index -1) or a
// block-level tag name plus the element's ordinal among every element with
// that tag in the document.
//
// Locators are only meaningful relative to a document state: inserting or
// removing same-tag elements before the indexed one makes a positional
// locator point at a different element. That drift is not detected.
package locator

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// IDIndex is the index carried by ID-form locators.
const IDIndex = -1

// Locator is the persisted address of an annotated element.
type Locator struct {
	Tag   string `json:"tag"`
	Index int    `json:"index"`
}

// IsID reports whether l is an ID-form locator.
func (l Locator) IsID() bool {
	return l.Index == IDIndex && strings.HasPrefix(l.Tag, "#")
}

func (l Locator) String() string {
	if l.IsID() {
		return l.Tag
	}
	return fmt.Sprintf("%s[%d]", l.Tag, l.Index)
}

// blockTags is the allow-list of container tags used for positional locators.
var blockTags = map[string]bool{
	"div": true, "p": true, "pre": true, "blockquote": true,
	"ul": true, "ol": true, "dl": true,
	"table": true, "tr": true,
	"figure": true,
	"h1":     true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// IsBlockTag reports whether tag (any case) is an anchorable container.
func IsBlockTag(tag string) bool {
	return blockTags[strings.ToLower(tag)]
}

// Skip marks subtrees that do not count as page content: elements for which
// it returns true, and their descendants, are left out of positional
// ordinals and never matched by Resolve.
type Skip func(*html.Node) bool

// Compute walks from el up through its element ancestors and returns the
// first usable locator: an ID selector for the nearest element carrying a
// non-empty id, otherwise the ordinal of the nearest block container.
// It returns false when no ancestor qualifies or the element is not part of
// a document.
func Compute(el *html.Node) (Locator, bool) {
	return ComputeSkipping(el, nil)
}

// ComputeSkipping is Compute with skipped subtrees excluded from ordinals.
func ComputeSkipping(el *html.Node, skip Skip) (Locator, bool) {
	if skip != nil {
		for cur := el; cur != nil; cur = cur.Parent {
			if cur.Type == html.ElementNode && skip(cur) {
				return Locator{}, false
			}
		}
	}
	for cur := el; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if id := Attr(cur, "id"); id != "" {
			return Locator{Tag: "#" + CSSEscape(id), Index: IDIndex}, true
		}
		if !IsBlockTag(cur.Data) {
			continue
		}
		tag := strings.ToLower(cur.Data)
		root := documentOf(cur)
		if root == nil {
			return Locator{}, false
		}
		for i, n := range elementsByTag(root, tag, skip) {
			if n == cur {
				return Locator{Tag: tag, Index: i}, true
			}
		}
		break
	}
	return Locator{}, false
}

// Resolve finds the element addressed by loc under root. It returns nil when
// nothing matches; a nil result is not an error, the page may simply not
// contain the element (yet).
func Resolve(root *html.Node, loc Locator) *html.Node {
	return ResolveSkipping(root, loc, nil)
}

// ResolveSkipping is Resolve ignoring skipped subtrees.
func ResolveSkipping(root *html.Node, loc Locator, skip Skip) *html.Node {
	if root == nil || loc.Tag == "" {
		return nil
	}
	if loc.Index == IDIndex {
		if !strings.HasPrefix(loc.Tag, "#") {
			return nil
		}
		id, ok := CSSUnescape(loc.Tag[1:])
		if !ok || id == "" {
			return nil
		}
		return elementByID(root, id, skip)
	}
	if loc.Index < 0 {
		return nil
	}
	all := elementsByTag(root, loc.Tag, skip)
	if loc.Index >= len(all) {
		return nil
	}
	return all[loc.Index]
}

// ElementsByTag returns every element named tag under root, in document order.
func ElementsByTag(root *html.Node, tag string) []*html.Node {
	return elementsByTag(root, tag, nil)
}

func elementsByTag(root *html.Node, tag string, skip Skip) []*html.Node {
	tag = strings.ToLower(tag)
	var out []*html.Node
	walkSkipping(root, skip, func(n *html.Node) bool {
		if n.Type == html.ElementNode && strings.ToLower(n.Data) == tag {
			out = append(out, n)
		}
		return true
	})
	return out
}

// ElementByID returns the first element under root whose id equals id.
func ElementByID(root *html.Node, id string) *html.Node {
	return elementByID(root, id, nil)
}

func elementByID(root *html.Node, id string, skip Skip) *html.Node {
	var found *html.Node
	walkSkipping(root, skip, func(n *html.Node) bool {
		if n.Type == html.ElementNode && Attr(n, "id") == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// Attr returns the value of the named attribute, or "".
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

// documentOf climbs to the top of el's tree and returns it when it is a
// document node.
func documentOf(el *html.Node) *html.Node {
	top := el
	for top.Parent != nil {
		top = top.Parent
	}
	if top.Type != html.DocumentNode {
		return nil
	}
	return top
}

// walkSkipping visits n and its descendants depth-first in document order
// until visit returns false. Subtrees whose root matches skip are not
// entered.
func walkSkipping(n *html.Node, skip Skip, visit func(*html.Node) bool) bool {
	if skip != nil && n.Type == html.ElementNode && skip(n) {
		return true
	}
	if !visit(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walkSkipping(c, skip, visit) {
			return false
		}
	}
	return true
}
