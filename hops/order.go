package hops

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ErrOutOfRange is returned by Move for a rank outside the list.
var ErrOutOfRange = errors.New("hops: rank out of range")

// Move returns a copy of list with the hop at from moved to rank to, the
// others keeping their relative order, and Order renumbered 0..n-1.
func Move(list []Hop, from, to int) ([]Hop, error) {
	if from < 0 || from >= len(list) || to < 0 || to >= len(list) {
		return nil, fmt.Errorf("%w: move %d -> %d, have %d", ErrOutOfRange, from, to, len(list))
	}
	out := slices.Clone(list)
	moved := out[from]
	out = slices.Delete(out, from, from+1)
	out = slices.Insert(out, to, moved)
	for i := range out {
		out[i].Order = int64(i)
	}
	return out, nil
}

// MergePartition returns all with the hops of pageURL replaced by part.
// Hops of other URLs are kept in place; part is spliced where the first
// hop of pageURL was, or appended when there was none.
func MergePartition(all []Hop, pageURL string, part []Hop) []Hop {
	out := make([]Hop, 0, len(all)+len(part))
	spliced := false
	for _, h := range all {
		if h.URL != pageURL {
			out = append(out, h)
			continue
		}
		if !spliced {
			out = append(out, part...)
			spliced = true
		}
	}
	if !spliced {
		out = append(out, part...)
	}
	return out
}

// forbiddenSchemes are browser-internal or local schemes hops are never
// offered on.
var forbiddenSchemes = map[string]bool{
	"chrome": true, "chrome-extension": true, "moz-extension": true,
	"edge": true, "about": true, "data": true, "file": true, "blob": true,
	"devtools": true, "opera": true, "opera-extension": true, "webview": true,
	"vscode": true, "vscode-web": true, "vscode-resource": true,
}

// Annotatable reports whether hops can be created on rawURL. Site roots
// ("" or "/" path), internal schemes and unparsable or scheme-less URLs
// are excluded.
func Annotatable(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return false
	}
	if forbiddenSchemes[strings.ToLower(u.Scheme)] {
		return false
	}
	if u.Opaque != "" {
		return true
	}
	return u.Path != "" && u.Path != "/"
}
