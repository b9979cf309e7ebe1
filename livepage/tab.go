package livepage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/kango/dom"
	"github.com/hazyhaar/kango/hops"
	"github.com/hazyhaar/kango/pageagent"
)

const navTimeout = 30 * time.Second

// Tab is one live page.
type Tab struct {
	page *rod.Page
	mgr  *Manager
}

// Open creates a stealth tab, navigates to pageURL and waits for load. A
// load timeout is logged, not fatal.
func Open(ctx context.Context, mgr *Manager, pageURL string) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("livepage: no browser")
	}
	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("livepage: create tab: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, navTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("livepage: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("livepage: wait load", "url", pageURL, "error", err)
	}
	return &Tab{page: page, mgr: mgr}, nil
}

// URL returns the tab's current URL.
func (t *Tab) URL(ctx context.Context) (string, error) {
	res, err := t.page.Context(ctx).Eval(`() => location.href`)
	if err != nil {
		return "", fmt.Errorf("livepage: url: %w", err)
	}
	return res.Value.Str(), nil
}

// Snapshot parses the tab's current DOM into a Document.
func (t *Tab) Snapshot(ctx context.Context) (*dom.Document, error) {
	res, err := t.page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, fmt.Errorf("livepage: snapshot: %w", err)
	}
	u, err := t.URL(ctx)
	if err != nil {
		return nil, err
	}
	return dom.ParseString(res.Value.Str(), u)
}

// syncJS mirrors pageagent reconciliation inside the page: markers of hops
// no longer listed are removed, missing ones are inserted before their
// element. Agent-inserted subtrees do not count toward tag ordinals.
const syncJS = `(list, cls, attr, overlay, style, path) => {
	const own = el => el.closest('.' + cls + '[' + attr + '], .' + overlay);
	const resolve = sel => {
		if (sel.index === -1 && sel.tag.startsWith('#')) {
			try { return document.querySelector(sel.tag); } catch (e) { return null; }
		}
		const all = Array.from(document.getElementsByTagName(sel.tag)).filter(el => !own(el));
		return all[sel.index] || null;
	};
	const live = new Set(list.map(h => h.id));
	for (const m of document.querySelectorAll('.' + cls + '[' + attr + ']')) {
		if (!live.has(m.getAttribute(attr))) m.remove();
	}
	let inserted = 0;
	for (const h of list) {
		if (document.querySelector('.' + cls + '[' + attr + '="' + CSS.escape(h.id) + '"]')) continue;
		const el = resolve(h.selector);
		if (!el || !el.parentNode) continue;
		const m = document.createElement('div');
		m.className = cls;
		m.setAttribute(attr, h.id);
		m.setAttribute('style', style);
		const ns = 'http://www.w3.org/2000/svg';
		const svg = document.createElementNS(ns, 'svg');
		svg.setAttribute('width', '24');
		svg.setAttribute('height', '24');
		svg.setAttribute('viewBox', '0 0 20 20');
		const p = document.createElementNS(ns, 'path');
		p.setAttribute('d', path);
		p.setAttribute('fill', h.color);
		svg.appendChild(p);
		m.appendChild(svg);
		el.parentNode.insertBefore(m, el);
		inserted++;
	}
	return inserted;
}`

// SyncMarkers makes the page's markers match list and returns how many
// were inserted. It is idempotent.
func (t *Tab) SyncMarkers(ctx context.Context, list []hops.Hop) (int, error) {
	if list == nil {
		list = []hops.Hop{}
	}
	// Round-trip through JSON so the script sees the persisted field names.
	data, err := json.Marshal(list)
	if err != nil {
		return 0, err
	}
	var arg []map[string]any
	if err := json.Unmarshal(data, &arg); err != nil {
		return 0, err
	}
	res, err := t.page.Context(ctx).Eval(syncJS, arg,
		pageagent.MarkerClass, pageagent.MarkerAttr, pageagent.OverlayClass,
		pageagent.MarkerStyle, pageagent.FlagPath)
	if err != nil {
		return 0, fmt.Errorf("livepage: sync markers: %w", err)
	}
	return res.Value.Int(), nil
}

// Scroll brings the marker of hopID into view and reports whether it
// exists.
func (t *Tab) Scroll(ctx context.Context, hopID string) (bool, error) {
	res, err := t.page.Context(ctx).Eval(`(cls, attr, id) => {
		const m = document.querySelector('.' + cls + '[' + attr + '="' + CSS.escape(id) + '"]');
		if (!m) return false;
		m.scrollIntoView({behavior: 'smooth', block: 'center'});
		return true;
	}`, pageagent.MarkerClass, pageagent.MarkerAttr, hopID)
	if err != nil {
		return false, fmt.Errorf("livepage: scroll: %w", err)
	}
	return res.Value.Bool(), nil
}

// RemoveMarker deletes the marker of hopID from the page.
func (t *Tab) RemoveMarker(ctx context.Context, hopID string) error {
	_, err := t.page.Context(ctx).Eval(`(cls, attr, id) => {
		for (const m of document.querySelectorAll('.' + cls + '[' + attr + '="' + CSS.escape(id) + '"]')) m.remove();
	}`, pageagent.MarkerClass, pageagent.MarkerAttr, hopID)
	if err != nil {
		return fmt.Errorf("livepage: remove marker: %w", err)
	}
	return nil
}

// WatchNavigation calls fn with the new URL after every main-frame
// navigation, including same-document ones (pushState, replaceState,
// back/forward). It blocks until ctx is done.
func (t *Tab) WatchNavigation(ctx context.Context, fn func(url string)) {
	wait := t.page.Context(ctx).EachEvent(
		func(e *proto.PageFrameNavigated) {
			if e.Frame != nil && e.Frame.ParentID == "" {
				fn(e.Frame.URL)
			}
		},
		func(e *proto.PageNavigatedWithinDocument) {
			fn(e.URL)
		},
	)
	wait()
}

// Close closes the tab.
func (t *Tab) Close() error {
	return t.page.Close()
}
