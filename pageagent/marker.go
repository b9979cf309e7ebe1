package pageagent

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/kango/command"
	"github.com/hazyhaar/kango/dom"
	"github.com/hazyhaar/kango/hops"
	"github.com/hazyhaar/kango/locator"
)

// Marker identity and look. livepage renders the same markers in a real
// browser.
const (
	MarkerClass = "kango-hop"
	MarkerAttr  = "data-hop-id"
	// OverlayClass marks the create-hop overlay root.
	OverlayClass = overlayClass
)

const MarkerStyle = "align-items: center; cursor: pointer; display: inline-flex; float: right; " +
	"height: 24px; justify-content: center; margin: 8px; position: relative; width: 24px; z-index: 1000;"

const FlagPath = "M4 2H14L16 6L14 10H4V18H2V2H4Z"

// newMarker builds the flag marker of h: div.kango-hop[data-hop-id] holding
// an SVG flag filled with the hop color.
func newMarker(h hops.Hop) *html.Node {
	m := dom.NewElement("div",
		"class", MarkerClass,
		MarkerAttr, h.ID,
		"style", MarkerStyle,
	)
	svg := &html.Node{
		Type:      html.ElementNode,
		Data:      "svg",
		Namespace: "svg",
		Attr: []html.Attribute{
			{Key: "width", Val: "24"},
			{Key: "height", Val: "24"},
			{Key: "viewBox", Val: "0 0 20 20"},
			{Key: "xmlns", Val: "http://www.w3.org/2000/svg"},
		},
	}
	path := &html.Node{
		Type:      html.ElementNode,
		Data:      "path",
		Namespace: "svg",
		Attr: []html.Attribute{
			{Key: "d", Val: FlagPath},
			{Key: "fill", Val: h.Color},
		},
	}
	svg.AppendChild(path)
	m.AppendChild(svg)
	return m
}

func isMarker(n *html.Node) bool {
	return n.Type == html.ElementNode && dom.HasClass(n, MarkerClass) && dom.Attr(n, MarkerAttr) != ""
}

// allMarkers returns every marker in the document.
func (a *Agent) allMarkers() []*html.Node {
	return a.markers("")
}

// markersFor returns the markers of hop id. An empty id matches nothing.
func (a *Agent) markersFor(id string) []*html.Node {
	if id == "" {
		return nil
	}
	return a.markers(id)
}

func (a *Agent) markers(id string) []*html.Node {
	var out []*html.Node
	for _, n := range a.doc.ElementsByAttr(MarkerAttr, id) {
		if dom.HasClass(n, MarkerClass) {
			out = append(out, n)
		}
	}
	return out
}

func (a *Agent) loadExistingHops(ctx context.Context) {
	list := a.store.GetHops(ctx, a.currentURL)

	live := make(map[string]bool, len(list))
	for _, h := range list {
		live[h.ID] = true
	}
	for _, m := range a.allMarkers() {
		if id := dom.Attr(m, MarkerAttr); !live[id] {
			a.logger.Debug("pageagent: pruning stale marker", "hop_id", id)
			a.doc.Remove(m)
		}
	}

	for _, h := range list {
		a.addMarker(h)
	}
}

// addMarker inserts the marker of h immediately before its element. Hops
// that already have a marker or whose element does not resolve are
// skipped silently.
func (a *Agent) addMarker(h hops.Hop) {
	if h.ID == "" || len(a.markersFor(h.ID)) > 0 {
		return
	}
	var el *html.Node
	a.doc.Read(func(root *html.Node) { el = locator.ResolveSkipping(root, h.Selector, agentNode) })
	if el == nil {
		a.logger.Debug("pageagent: hop does not resolve", "hop_id", h.ID, "selector", h.Selector.String())
		return
	}
	if err := a.doc.InsertBefore(newMarker(h), el); err != nil {
		a.logger.Warn("pageagent: insert marker", "hop_id", h.ID, "error", err)
		return
	}
	a.inserted.Add(1)
}

func (a *Agent) removeMarker(id string) {
	for _, m := range a.markersFor(id) {
		a.doc.Remove(m)
	}
}

func (a *Agent) scrollToMarker(id string) bool {
	ms := a.markersFor(id)
	if len(ms) == 0 {
		return false
	}
	a.doc.ScrollIntoView(ms[0])
	return true
}

// capture remembers el for the next overlay. Elements no locator can
// address are forgotten and the dispatcher is told to hide the menu.
func (a *Agent) capture(el *html.Node) bool {
	a.clicked = el
	ok := false
	if el != nil {
		a.doc.Read(func(*html.Node) { _, ok = locator.ComputeSkipping(el, agentNode) })
	}
	if !ok {
		a.clicked = nil
		a.emit(command.HideMenu{})
	}
	return ok
}

func (a *Agent) createHop(ctx context.Context, title, color string) (hops.Hop, error) {
	title = strings.TrimSpace(title)
	switch {
	case a.clicked == nil:
		return hops.Hop{}, fmt.Errorf("%w: no captured element", ErrInvalidRequest)
	case title == "":
		return hops.Hop{}, fmt.Errorf("%w: empty title", ErrInvalidRequest)
	case !hops.ValidColor(color):
		return hops.Hop{}, fmt.Errorf("%w: color %q not in palette", ErrInvalidRequest, color)
	}

	var (
		loc locator.Locator
		ok  bool
	)
	a.doc.Read(func(*html.Node) { loc, ok = locator.ComputeSkipping(a.clicked, agentNode) })
	if !ok {
		return hops.Hop{}, fmt.Errorf("%w: element has no locator", ErrInvalidRequest)
	}

	pageURL := a.doc.URL()
	h := hops.Hop{
		ID:       a.store.GenerateID(),
		Title:    title,
		Color:    strings.ToLower(color),
		Selector: loc,
		URL:      pageURL,
		Order:    int64(len(a.store.GetHops(ctx, pageURL))),
	}
	if err := a.store.AddHop(ctx, h); err != nil {
		return hops.Hop{}, fmt.Errorf("pageagent: create hop: %w", err)
	}
	a.logger.Info("pageagent: hop created", "hop_id", h.ID, "url", h.URL, "selector", loc.String())
	a.addMarker(h)
	return h, nil
}

// agentNode reports whether n is the root of something the agent inserted
// (marker, overlay, overlay styles). Those subtrees are invisible to
// locators, so rendering markers never shifts positional ordinals.
func agentNode(n *html.Node) bool {
	return isMarker(n) || dom.HasClass(n, overlayClass) || dom.Attr(n, "id") == stylesID
}

// IsAgentNode reports whether n is the root of a marker, the overlay or
// its styles. Pass it to locator.ResolveSkipping to address page content
// in a document an agent has annotated.
func IsAgentNode(n *html.Node) bool { return agentNode(n) }

// ownNode reports whether n lies inside something the agent inserted.
// Callers hold the document read lock.
func ownNode(n *html.Node) bool {
	return n.Type == html.ElementNode && dom.Closest(n, agentNode) != nil
}
