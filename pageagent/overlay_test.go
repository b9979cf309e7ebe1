package pageagent

import (
	"context"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/kango/command"
	"github.com/hazyhaar/kango/dom"
	"github.com/hazyhaar/kango/hops"
)

func (h *harness) open(t *testing.T, selected string) OverlayView {
	t.Helper()
	h.capture(t, h.doc.ElementByID("intro"))
	if _, err := h.agent.Handle(context.Background(), command.ShowModal{SelectedText: selected}); err != nil {
		t.Fatalf("ShowModal: %v", err)
	}
	v, ok := h.agent.Overlay()
	if !ok {
		t.Fatal("overlay not open")
	}
	return v
}

func (h *harness) listenerCounts() [4]int {
	return [4]int{
		h.doc.ListenerCount(dom.EventClick),
		h.doc.ListenerCount(dom.EventInput),
		h.doc.ListenerCount(dom.EventKeyDown),
		h.doc.ListenerCount(dom.EventSubmit),
	}
}

func TestOverlay_Prefill(t *testing.T) {
	h := newHarness(t, nil, time.Hour)

	v := h.open(t, "")
	if v.Title != "Intro text" {
		t.Fatalf("title from element text: %q", v.Title)
	}
	if !strings.Contains(v.Preview, "**text**") {
		t.Fatalf("preview: %q", v.Preview)
	}
	if v.Color != hops.Palette[0] || len(v.ColorOptions) != len(hops.Palette) {
		t.Fatalf("colors: %q, %d options", v.Color, len(v.ColorOptions))
	}
	if !dom.HasClass(v.ColorOptions[0], "selected") {
		t.Fatal("first color not selected")
	}
	if h.doc.ElementByID(stylesID) == nil {
		t.Fatal("styles not injected")
	}

	v = h.open(t, "<b>Hello</b> &amp; world")
	if v.Title != "Hello & world" {
		t.Fatalf("sanitized title: %q", v.Title)
	}
	if n := len(h.doc.ElementsByAttr("class", overlayClass)); n != 1 {
		t.Fatalf("overlays attached: %d", n)
	}
	if n := len(h.doc.ElementsByAttr("id", stylesID)); n != 1 {
		t.Fatalf("style elements: %d", n)
	}

	v = h.open(t, strings.Repeat("é", 80))
	if got := len([]rune(v.Title)); got != titleMaxRunes {
		t.Fatalf("title runes: %d", got)
	}
}

func TestOverlay_Refused(t *testing.T) {
	h := newHarness(t, nil, time.Hour)
	ctx := context.Background()

	if ok, _ := h.agent.ShowModal(ctx, "x"); ok {
		t.Fatal("opened without a captured element")
	}
	h.capture(t, h.doc.ElementByID("empty"))
	if ok, _ := h.agent.ShowModal(ctx, "x"); ok {
		t.Fatal("opened for an element without text")
	}
	if _, ok := h.agent.Overlay(); ok {
		t.Fatal("overlay open")
	}
}

func TestOverlay_ClosePathsReleaseListeners(t *testing.T) {
	h := newHarness(t, nil, time.Hour)
	base := h.listenerCounts()

	closers := map[string]func(v OverlayView){
		"escape": func(OverlayView) {
			h.doc.Dispatch(dom.Event{Type: dom.EventKeyDown, Key: "Escape"})
		},
		"cancel": func(v OverlayView) {
			h.doc.Dispatch(dom.Event{Type: dom.EventClick, Target: v.CancelButton})
		},
		"backdrop": func(v OverlayView) {
			h.doc.Dispatch(dom.Event{Type: dom.EventClick, Target: v.Backdrop})
		},
		"submit": func(v OverlayView) {
			h.doc.Dispatch(dom.Event{Type: dom.EventClick, Target: v.AddButton})
		},
		"enter": func(v OverlayView) {
			h.doc.Dispatch(dom.Event{Type: dom.EventSubmit, Target: v.TitleInput})
		},
	}
	for name, closeIt := range closers {
		v := h.open(t, "title")
		if got := h.listenerCounts(); got == base {
			t.Fatalf("%s: overlay registered no listeners", name)
		}
		closeIt(v)
		h.sync(t)
		if _, ok := h.agent.Overlay(); ok {
			t.Fatalf("%s: overlay still open", name)
		}
		if got := h.listenerCounts(); got != base {
			t.Fatalf("%s: listeners %v, want %v", name, got, base)
		}
		if h.doc.Contains(v.Root) {
			t.Fatalf("%s: overlay still attached", name)
		}
	}

	// Other keys leave it open.
	h.open(t, "title")
	h.doc.Dispatch(dom.Event{Type: dom.EventKeyDown, Key: "a"})
	h.sync(t)
	if _, ok := h.agent.Overlay(); !ok {
		t.Fatal("overlay closed on a non-Escape key")
	}
}

func TestOverlay_EditAndSubmit(t *testing.T) {
	h := newHarness(t, nil, time.Hour)
	ctx := context.Background()
	v := h.open(t, "")

	h.doc.Dispatch(dom.Event{Type: dom.EventInput, Target: v.TitleInput, Value: "   "})
	h.sync(t)
	v, _ = h.agent.Overlay()
	if v.CanSubmit || !hasAttr(v.AddButton, "disabled") {
		t.Fatal("blank title should disable add")
	}
	h.doc.Dispatch(dom.Event{Type: dom.EventClick, Target: v.AddButton})
	h.sync(t)
	if _, ok := h.agent.Overlay(); !ok {
		t.Fatal("blank submit closed the overlay")
	}
	if n := len(h.store.GetHops(ctx, pageURL)); n != 0 {
		t.Fatalf("blank submit stored %d hops", n)
	}

	h.doc.Dispatch(dom.Event{Type: dom.EventInput, Target: v.TitleInput, Value: "My hop"})
	h.doc.Dispatch(dom.Event{Type: dom.EventClick, Target: v.ColorOptions[3]})
	h.sync(t)
	v, _ = h.agent.Overlay()
	if !v.CanSubmit || hasAttr(v.AddButton, "disabled") {
		t.Fatal("add still disabled")
	}
	if v.Color != hops.Palette[3] || !dom.HasClass(v.ColorOptions[3], "selected") || dom.HasClass(v.ColorOptions[0], "selected") {
		t.Fatalf("color selection: %q", v.Color)
	}

	h.doc.Dispatch(dom.Event{Type: dom.EventClick, Target: v.AddButton})
	h.sync(t)
	if _, ok := h.agent.Overlay(); ok {
		t.Fatal("overlay open after submit")
	}
	got := h.store.GetHops(ctx, pageURL)
	if len(got) != 1 || got[0].Title != "My hop" || got[0].Color != hops.Palette[3] {
		t.Fatalf("stored: %+v", got)
	}
	if ms := h.agent.Markers(); len(ms) != 1 || ms[0] != got[0].ID {
		t.Fatalf("markers: %v", ms)
	}
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}
