// Package hops holds the hop model and the Annotation Store: one persisted
// collection of every hop the user created, shared by page agents and the
// panel.
package hops

import (
	"slices"
	"strings"

	"github.com/hazyhaar/kango/locator"
)

// StorageKey is the backend key holding the JSON array of all hops.
const StorageKey = "kango_hops"

// All is the GetHops filter selecting every hop in stored order.
const All = "all"

// Hop is one annotation: a titled, colored pointer to an element of a page.
// Order ranks hops within the same URL.
type Hop struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Color    string          `json:"color"`
	Selector locator.Locator `json:"selector"`
	URL      string          `json:"url"`
	Order    int64           `json:"order"`
}

// Palette is the fixed set of hop colors, in display order.
var Palette = []string{
	"#ef4444",
	"#f97316",
	"#eab308",
	"#22c55e",
	"#3b82f6",
	"#a855f7",
	"#ec4899",
}

// DefaultColor is the preselected color.
var DefaultColor = Palette[0]

// ValidColor reports whether c is one of the palette values (case-insensitive).
func ValidColor(c string) bool {
	return slices.Contains(Palette, strings.ToLower(c))
}

// ForURL returns the hops whose URL equals url exactly, sorted by Order.
// Ties keep their relative order from the input.
func ForURL(all []Hop, url string) []Hop {
	var out []Hop
	for _, h := range all {
		if h.URL == url {
			out = append(out, h)
		}
	}
	slices.SortStableFunc(out, func(a, b Hop) int {
		switch {
		case a.Order < b.Order:
			return -1
		case a.Order > b.Order:
			return 1
		}
		return 0
	})
	return out
}
