package livepage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/kango/command"
	"github.com/hazyhaar/kango/dispatch"
	"github.com/hazyhaar/kango/hops"
)

var _ dispatch.Endpoint = (*Endpoint)(nil)

// Endpoint serves dispatcher commands for a live tab and keeps its
// markers in sync with the store.
type Endpoint struct {
	tab    *Tab
	store  *hops.Store
	logger *slog.Logger

	mu  sync.Mutex
	url string
}

// NewEndpoint binds tab to store.
func NewEndpoint(tab *Tab, store *hops.Store, logger *slog.Logger) *Endpoint {
	if logger == nil {
		logger = slog.Default()
	}
	return &Endpoint{tab: tab, store: store, logger: logger}
}

// Handle implements dispatch.Endpoint.
func (e *Endpoint) Handle(ctx context.Context, cmd command.Command) (command.Reply, error) {
	switch c := cmd.(type) {
	case command.Ping:
	case command.Scroll:
		ok, err := e.tab.Scroll(ctx, c.HopID)
		if err != nil {
			return command.Reply{}, err
		}
		if !ok {
			e.logger.Debug("livepage: scroll target missing", "hop_id", c.HopID)
		}
	case command.Remove:
		if err := e.tab.RemoveMarker(ctx, c.HopID); err != nil {
			return command.Reply{}, err
		}
	case command.TabChanged:
		e.Sync(ctx, c.URL)
	case command.ShowModal, command.OpenSidebar, command.HideMenu:
		e.logger.Debug("livepage: command not supported on live tabs", "action", c.Action())
	}
	return command.Ack, nil
}

// Sync renders the store's hops for url (the tab's URL when empty).
func (e *Endpoint) Sync(ctx context.Context, url string) {
	if url == "" {
		u, err := e.tab.URL(ctx)
		if err != nil {
			e.logger.Warn("livepage: sync", "error", err)
			return
		}
		url = u
	}
	e.mu.Lock()
	e.url = url
	e.mu.Unlock()

	n, err := e.tab.SyncMarkers(ctx, e.store.GetHops(ctx, url))
	if err != nil {
		e.logger.Warn("livepage: sync", "url", url, "error", err)
		return
	}
	e.logger.Debug("livepage: synced", "url", url, "inserted", n)
}

// Run syncs now, then again after every store change, navigation and
// every interval (late content) until ctx is done. onNavigate, when set,
// receives each new URL.
func (e *Endpoint) Run(ctx context.Context, interval time.Duration, onNavigate func(url string)) {
	e.Sync(ctx, "")

	stop := e.store.Subscribe(func() {
		e.mu.Lock()
		u := e.url
		e.mu.Unlock()
		e.Sync(ctx, u)
	})
	defer stop()

	go e.tab.WatchNavigation(ctx, func(u string) {
		if onNavigate != nil {
			onNavigate(u)
		}
		e.Sync(ctx, u)
	})

	if interval <= 0 {
		<-ctx.Done()
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.mu.Lock()
			u := e.url
			e.mu.Unlock()
			e.Sync(ctx, u)
		}
	}
}
