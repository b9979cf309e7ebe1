package pageagent

import (
	"golang.org/x/net/html"

	"github.com/hazyhaar/kango/command"
	"github.com/hazyhaar/kango/dom"
)

// install wires the agent into the document and the store. Every hook
// returns a remover kept in a.teardown. The history wrap is installed once
// per document and outlives the agent; after Close it only posts to a dead
// loop, which drops the work.
func (a *Agent) install() {
	d := a.doc
	a.teardown = append(a.teardown,
		d.Observe(a.onMutations),
		d.AddEventListener(dom.EventPopState, func(dom.Event) { a.trigger() }),
		d.AddEventListener(dom.EventVisibilityChange, func(dom.Event) {
			if d.Visible() {
				a.trigger()
			}
		}),
		d.AddEventListener(dom.EventFocus, func(dom.Event) { a.trigger() }),
		d.AddEventListener(dom.EventContextMenu, func(ev dom.Event) {
			el := ev.Target
			a.post(func() { a.capture(el) })
		}),
		d.AddEventListener(dom.EventClick, a.onClick),
		a.store.Subscribe(a.trigger),
	)

	if d.ReadyState() == dom.StateLoading {
		a.teardown = append(a.teardown, d.AddEventListener(dom.EventDOMContentLoaded, func(dom.Event) {
			select {
			case a.loadedC <- struct{}{}:
			default:
			}
		}))
	}

	if d.MarkOnce(historyFlag) {
		d.History().Wrap(func(next dom.StateFunc) dom.StateFunc {
			return func(u string) {
				next(u)
				a.post(func() {
					if a.doc.URL() != a.currentURL {
						a.trigger()
					}
				})
			}
		})
	}
}

// onMutations triggers a pass when the page added elements of its own
// under <body>. Insertions inside agent subtrees (markers, overlay) are
// ignored so that rendering markers does not schedule another pass, and so
// are <head> additions such as styles and scripts.
func (a *Agent) onMutations(records []dom.MutationRecord) {
	body := a.doc.Body()
	if body == nil {
		return
	}
	inBody := func(x *html.Node) bool { return x == body }
	foreign := false
	a.doc.Read(func(*html.Node) {
		for _, r := range records {
			if r.Op != dom.OpInsert {
				continue
			}
			for _, n := range r.AddedElements() {
				if n != body && dom.Closest(n, inBody) != nil && !ownNode(n) {
					foreign = true
					return
				}
			}
		}
	})
	if foreign {
		a.trigger()
	}
}

// onClick opens the sidebar when a marker (or anything inside one) is
// clicked.
func (a *Agent) onClick(ev dom.Event) {
	if ev.Target == nil {
		return
	}
	hit := false
	a.doc.Read(func(*html.Node) { hit = dom.Closest(ev.Target, isMarker) != nil })
	if hit {
		a.post(func() { a.emit(command.OpenSidebar{}) })
	}
}
