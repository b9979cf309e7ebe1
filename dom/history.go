package dom

import (
	"net/url"
	"sync"
)

// StateFunc performs a history navigation to url.
type StateFunc func(url string)

// History models window.history for same-document navigations. PushState
// and ReplaceState can be wrapped, the way a content script patches
// history.pushState to observe SPA route changes. Back and Forward fire
// popstate.
type History struct {
	doc *Document

	mu      sync.Mutex
	entries []string
	pos     int
	push    StateFunc
	replace StateFunc
}

func newHistory(d *Document, initial string) *History {
	h := &History{doc: d, entries: []string{initial}}
	h.push = h.basePush
	h.replace = h.baseReplace
	return h
}

// PushState appends url (resolved against the current location) and makes
// it current. It does not fire popstate.
func (h *History) PushState(u string) {
	h.mu.Lock()
	f := h.push
	h.mu.Unlock()
	f(u)
}

// ReplaceState replaces the current entry with url.
func (h *History) ReplaceState(u string) {
	h.mu.Lock()
	f := h.replace
	h.mu.Unlock()
	f(u)
}

// Wrap installs wrap around both PushState and ReplaceState. Each wrapper
// receives the previous implementation and must call it.
func (h *History) Wrap(wrap func(next StateFunc) StateFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.push = wrap(h.push)
	h.replace = wrap(h.replace)
}

// Back moves one entry back and fires popstate. It returns false at the
// first entry.
func (h *History) Back() bool { return h.step(-1) }

// Forward moves one entry forward and fires popstate.
func (h *History) Forward() bool { return h.step(1) }

// Len returns the number of entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

func (h *History) step(delta int) bool {
	h.mu.Lock()
	next := h.pos + delta
	if next < 0 || next >= len(h.entries) {
		h.mu.Unlock()
		return false
	}
	h.pos = next
	u := h.entries[next]
	h.mu.Unlock()

	h.doc.setURL(u)
	h.doc.Dispatch(Event{Type: EventPopState})
	return true
}

func (h *History) basePush(u string) {
	u = h.resolve(u)
	h.mu.Lock()
	h.entries = append(h.entries[:h.pos+1], u)
	h.pos++
	h.mu.Unlock()
	h.doc.setURL(u)
}

func (h *History) baseReplace(u string) {
	u = h.resolve(u)
	h.mu.Lock()
	h.entries[h.pos] = u
	h.mu.Unlock()
	h.doc.setURL(u)
}

func (h *History) resolve(ref string) string {
	base, err := url.Parse(h.doc.URL())
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(r).String()
}
