package dom

import "golang.org/x/net/html"

// Event types dispatched by the host or by the agent's own UI.
const (
	EventClick            = "click"
	EventContextMenu      = "contextmenu"
	EventKeyDown          = "keydown"
	EventInput            = "input"
	EventSubmit           = "submit"
	EventVisibilityChange = "visibilitychange"
	EventFocus            = "focus"
	EventPopState         = "popstate"
	EventDOMContentLoaded = "DOMContentLoaded"
)

// Event is a dispatched UI or lifecycle event. Target is nil for window and
// document level events. Key carries the key name for keydown, Value the
// new field value for input.
type Event struct {
	Type   string
	Target *html.Node
	Key    string
	Value  string
}

// Listener handles one event. Listeners run synchronously on the
// dispatching goroutine.
type Listener func(Event)

type listener struct {
	fn Listener
}

// AddEventListener registers fn for events of type typ and returns a
// function that removes it. Remove is idempotent.
func (d *Document) AddEventListener(typ string, fn Listener) (remove func()) {
	l := &listener{fn: fn}
	d.mu.Lock()
	d.listeners[typ] = append(d.listeners[typ], l)
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		ls := d.listeners[typ]
		for i, cur := range ls {
			if cur == l {
				d.listeners[typ] = append(ls[:i:i], ls[i+1:]...)
				return
			}
		}
	}
}

// ListenerCount returns the number of listeners registered for typ.
func (d *Document) ListenerCount(typ string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[typ])
}

// Dispatch delivers ev to every listener registered for its type, in
// registration order. Listeners added or removed during dispatch take
// effect from the next event.
func (d *Document) Dispatch(ev Event) {
	d.mu.RLock()
	ls := append([]*listener(nil), d.listeners[ev.Type]...)
	d.mu.RUnlock()

	for _, l := range ls {
		l.fn(ev)
	}
}
