package dom

import "golang.org/x/net/html"

// Op is the type of DOM mutation observed.
type Op string

const (
	OpInsert Op = "insert" // child inserted
	OpRemove Op = "remove" // child removed
	OpAttr   Op = "attr"   // attribute set
)

// MutationRecord describes one change to the tree. Target is the parent
// for insert/remove records and the element itself for attr records.
type MutationRecord struct {
	Op      Op
	Target  *html.Node
	Added   []*html.Node
	Removed []*html.Node
	Name    string // attribute name for attr
}

// AddedElements returns the element nodes among r.Added.
func (r MutationRecord) AddedElements() []*html.Node {
	var out []*html.Node
	for _, n := range r.Added {
		if n.Type == html.ElementNode {
			out = append(out, n)
		}
	}
	return out
}

// MutationCallback receives the records of one mutation call. It runs on
// the goroutine that mutated the document, after the document lock is
// released, so it may read the document but must not block.
type MutationCallback func(records []MutationRecord)

type observer struct {
	cb MutationCallback
}

// Observe registers cb for every subsequent mutation and returns a function
// that disconnects it. Disconnect is idempotent.
func (d *Document) Observe(cb MutationCallback) (disconnect func()) {
	o := &observer{cb: cb}
	d.mu.Lock()
	d.observers = append(d.observers, o)
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, cur := range d.observers {
			if cur == o {
				d.observers = append(d.observers[:i:i], d.observers[i+1:]...)
				return
			}
		}
	}
}

// ObserverCount returns the number of connected mutation observers.
func (d *Document) ObserverCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.observers)
}

func (d *Document) notify(records ...MutationRecord) {
	d.mu.RLock()
	obs := append([]*observer(nil), d.observers...)
	d.mu.RUnlock()

	for _, o := range obs {
		o.cb(records)
	}
}
