// Package dispatch routes commands between page agents (one per tab) and
// panels, and tracks which tab is active and whether the add-hop menu item
// applies to it.
//
//	d := dispatch.New(dispatch.Config{Injector: inject})
//	d.OpenTab(1, "https://example.com/post")
//	d.ActivateTab(ctx, 1)
//	d.EnsureAgent(ctx, 1)
//	d.ContextMenuClicked(ctx, 1, "selected words")
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/hazyhaar/kango/command"
	"github.com/hazyhaar/kango/hops"
)

// Endpoint receives commands. Page agents, live tabs and panels implement
// it.
type Endpoint interface {
	Handle(ctx context.Context, cmd command.Command) (command.Reply, error)
}

// EndpointFunc adapts a function to Endpoint.
type EndpointFunc func(ctx context.Context, cmd command.Command) (command.Reply, error)

func (f EndpointFunc) Handle(ctx context.Context, cmd command.Command) (command.Reply, error) {
	return f(ctx, cmd)
}

// Injector installs a page agent into a tab and attaches it. EnsureAgent
// calls it when a tab does not answer Ping.
type Injector func(ctx context.Context, d *Dispatcher, tabID int) error

// Config configures a Dispatcher.
type Config struct {
	Injector Injector
	// OnOpenSidebar runs when a page asks for the panel (marker click).
	OnOpenSidebar func(tabID int)
	// Timeout bounds one delivery. Default: 5s.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Tab is a snapshot of one registered tab.
type Tab struct {
	ID       int    `json:"id"`
	URL      string `json:"url"`
	Active   bool   `json:"active"`
	Attached bool   `json:"attached"`
}

type tab struct {
	id  int
	url string
	ep  Endpoint
}

type panelEntry struct {
	ep Endpoint
}

// Dispatcher is safe for concurrent use. Deliveries run outside its lock.
type Dispatcher struct {
	inject        Injector
	onOpenSidebar func(int)
	timeout       time.Duration
	logger        *slog.Logger

	mu     sync.Mutex
	tabs   map[int]*tab
	active int
	panels []*panelEntry
	menu   bool
}

// New returns an empty Dispatcher.
func New(cfg Config) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.OnOpenSidebar == nil {
		cfg.OnOpenSidebar = func(int) {}
	}
	return &Dispatcher{
		inject:        cfg.Injector,
		onOpenSidebar: cfg.OnOpenSidebar,
		timeout:       cfg.Timeout,
		logger:        cfg.Logger,
		tabs:          make(map[int]*tab),
		active:        -1,
	}
}

// OpenTab registers tab id at url. Reopening a known id updates its URL and
// drops its agent.
func (d *Dispatcher) OpenTab(id int, url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tabs[id] = &tab{id: id, url: url}
}

// Attach binds the agent serving tab id.
func (d *Dispatcher) Attach(id int, ep Endpoint) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tabs[id]
	if !ok {
		return &ErrNoReceiver{TabID: id, Cause: fmt.Errorf("tab not open")}
	}
	t.ep = ep
	return nil
}

// Detach forgets the agent of tab id, as a reload does.
func (d *Dispatcher) Detach(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.tabs[id]; ok {
		t.ep = nil
	}
}

// CloseTab unregisters tab id.
func (d *Dispatcher) CloseTab(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.tabs, id)
	if d.active == id {
		d.active = -1
		d.menu = false
	}
}

// ActivateTab makes id the active tab, recomputes the menu and tells every
// panel the active URL changed.
func (d *Dispatcher) ActivateTab(ctx context.Context, id int) error {
	d.mu.Lock()
	t, ok := d.tabs[id]
	if !ok {
		d.mu.Unlock()
		return &ErrNoReceiver{TabID: id, Cause: fmt.Errorf("tab not open")}
	}
	d.active = id
	d.menu = hops.Annotatable(t.url)
	url := t.url
	d.mu.Unlock()

	d.broadcast(ctx, command.TabChanged{URL: url})
	return nil
}

// UpdateTab records a navigation of tab id. When id is active the menu is
// recomputed and panels are told.
func (d *Dispatcher) UpdateTab(ctx context.Context, id int, url string) error {
	d.mu.Lock()
	t, ok := d.tabs[id]
	if !ok {
		d.mu.Unlock()
		return &ErrNoReceiver{TabID: id, Cause: fmt.Errorf("tab not open")}
	}
	changed := t.url != url
	t.url = url
	active := d.active == id
	if active {
		d.menu = hops.Annotatable(url)
	}
	d.mu.Unlock()

	if active && changed {
		d.broadcast(ctx, command.TabChanged{URL: url})
	}
	return nil
}

// ActiveTab returns the active tab id.
func (d *Dispatcher) ActiveTab() (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.tabs[d.active]
	return d.active, ok
}

// ActiveURL returns the URL of the active tab, or "".
func (d *Dispatcher) ActiveURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.tabs[d.active]; ok {
		return t.url
	}
	return ""
}

// Tabs returns every registered tab ordered by id.
func (d *Dispatcher) Tabs() []Tab {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Tab, 0, len(d.tabs))
	for _, t := range d.tabs {
		out = append(out, Tab{ID: t.id, URL: t.url, Active: t.id == d.active, Attached: t.ep != nil})
	}
	slices.SortFunc(out, func(a, b Tab) int { return a.ID - b.ID })
	return out
}

// MenuEnabled reports whether the add-hop menu item is offered.
func (d *Dispatcher) MenuEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.menu
}

// SendToTab delivers cmd to the agent of tab id.
func (d *Dispatcher) SendToTab(ctx context.Context, id int, cmd command.Command) (command.Reply, error) {
	d.mu.Lock()
	var ep Endpoint
	if t, ok := d.tabs[id]; ok {
		ep = t.ep
	}
	d.mu.Unlock()
	if ep == nil {
		return command.Reply{}, &ErrNoReceiver{TabID: id}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	r, err := ep.Handle(ctx, cmd)
	if err != nil {
		return command.Reply{}, &ErrNoReceiver{TabID: id, Cause: err}
	}
	return r, nil
}

// SendToActive delivers cmd to the active tab.
func (d *Dispatcher) SendToActive(ctx context.Context, cmd command.Command) (command.Reply, error) {
	id, _ := d.ActiveTab()
	return d.SendToTab(ctx, id, cmd)
}

// EnsureAgent pings tab id and, when nothing answers, injects an agent once
// and pings again.
func (d *Dispatcher) EnsureAgent(ctx context.Context, id int) error {
	_, err := d.SendToTab(ctx, id, command.Ping{})
	if err == nil {
		return nil
	}
	if d.inject == nil {
		return err
	}
	d.logger.Debug("dispatch: agent missing, injecting", "tab", id, "error", err)
	if ierr := d.inject(ctx, d, id); ierr != nil {
		return fmt.Errorf("dispatch: inject tab %d: %w", id, ierr)
	}
	_, err = d.SendToTab(ctx, id, command.Ping{})
	return err
}

// ContextMenuClicked opens the create-hop form in tab id, prefilled with
// the selection.
func (d *Dispatcher) ContextMenuClicked(ctx context.Context, id int, selectedText string) error {
	if !d.MenuEnabled() {
		return ErrMenuHidden
	}
	_, err := d.SendToTab(ctx, id, command.ShowModal{SelectedText: selectedText})
	return err
}

// AddPanel subscribes p to active-tab changes.
func (d *Dispatcher) AddPanel(p Endpoint) (remove func()) {
	e := &panelEntry{ep: p}
	d.mu.Lock()
	d.panels = append(d.panels, e)
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.panels = slices.DeleteFunc(d.panels, func(x *panelEntry) bool { return x == e })
	}
}

// FromTab returns the sink for commands originating in tab id. It never
// calls back into the page agent, so it is safe as pageagent.Config.Emit.
func (d *Dispatcher) FromTab(id int) func(command.Command) {
	return func(cmd command.Command) {
		switch cmd.(type) {
		case command.OpenSidebar:
			d.onOpenSidebar(id)
		case command.HideMenu:
			d.mu.Lock()
			d.menu = false
			d.mu.Unlock()
		default:
			d.logger.Debug("dispatch: ignoring page command", "tab", id, "action", cmd.Action())
		}
	}
}

// broadcast delivers cmd to every panel. Nobody listening is normal.
func (d *Dispatcher) broadcast(ctx context.Context, cmd command.Command) {
	d.mu.Lock()
	ps := slices.Clone(d.panels)
	d.mu.Unlock()

	for _, p := range ps {
		cctx, cancel := context.WithTimeout(ctx, d.timeout)
		if _, err := p.ep.Handle(cctx, cmd); err != nil {
			d.logger.Debug("dispatch: panel delivery failed", "action", cmd.Action(), "error", err)
		}
		cancel()
	}
}
