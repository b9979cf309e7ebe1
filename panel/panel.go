// Package panel is the per-window hop list: it shows the hops of the
// active tab's URL and lets the user reorder, delete, navigate to, export
// and import them. The same operations are exposed over HTTP (Handler),
// MCP (RegisterMCP) and a terminal UI (NewTUI).
package panel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/hazyhaar/kango/command"
	"github.com/hazyhaar/kango/guard"
	"github.com/hazyhaar/kango/hops"
)

// Sender delivers commands to the page agent of the active tab.
// *dispatch.Dispatcher implements it.
type Sender interface {
	SendToActive(ctx context.Context, cmd command.Command) (command.Reply, error)
}

// Config configures a Panel.
type Config struct {
	Store *hops.Store
	// Sender may be nil; page commands are then dropped with a warning.
	Sender Sender
	// URL is the initial page.
	URL string
	// ExportDir is where the HTTP and MCP export operations write.
	ExportDir string
	Now       func() time.Time
	Logger    *slog.Logger
}

// Panel holds the list shown for the current URL. The list is a snapshot;
// it is refreshed by Load and after every store change once Start ran.
type Panel struct {
	store     *hops.Store
	sender    Sender
	exportDir string
	now       func() time.Time
	logger    *slog.Logger

	mu      sync.Mutex
	url     string
	list    []hops.Hop
	changed chan struct{}
}

// New returns a Panel for cfg.URL. Call Load or Start to fill it.
func New(cfg Config) *Panel {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Panel{
		store:     cfg.Store,
		sender:    cfg.Sender,
		exportDir: cfg.ExportDir,
		now:       cfg.Now,
		logger:    cfg.Logger,
		url:       cfg.URL,
		list:      []hops.Hop{},
		changed:   make(chan struct{}, 1),
	}
}

// URL returns the page the panel shows.
func (p *Panel) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Hops returns the current list, sorted by Order.
func (p *Panel) Hops() []hops.Hop {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.list)
}

// Annotatable reports whether the current page can carry hops.
func (p *Panel) Annotatable() bool {
	return hops.Annotatable(p.URL())
}

// Changed fires (coalesced) after every reload.
func (p *Panel) Changed() <-chan struct{} { return p.changed }

// Load re-reads the hops of the current URL.
func (p *Panel) Load(ctx context.Context) []hops.Hop {
	url := p.URL()
	list := p.store.GetHops(ctx, url)

	p.mu.Lock()
	if p.url == url {
		p.list = list
	}
	out := slices.Clone(p.list)
	p.mu.Unlock()

	select {
	case p.changed <- struct{}{}:
	default:
	}
	return out
}

// SetURL switches the panel to url and reloads.
func (p *Panel) SetURL(ctx context.Context, url string) []hops.Hop {
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return p.Load(ctx)
}

// Reorder moves the hop at rank from to rank to within the current URL,
// renumbers that URL's Order 0..n-1 and persists the whole collection.
// Hops of other URLs are untouched.
func (p *Panel) Reorder(ctx context.Context, from, to int) ([]hops.Hop, error) {
	url := p.URL()
	if from == to {
		return p.Hops(), nil
	}
	err := p.store.Update(ctx, func(all []hops.Hop) ([]hops.Hop, error) {
		moved, err := hops.Move(hops.ForURL(all, url), from, to)
		if err != nil {
			return nil, err
		}
		return hops.MergePartition(all, url, moved), nil
	})
	if err != nil {
		p.logger.Error("panel: reorder", "url", url, "from", from, "to", to, "error", err)
		return nil, err
	}
	p.logger.Debug("panel: reordered", "url", url, "from", from, "to", to)
	return p.Load(ctx), nil
}

// Delete removes hop id from the store, asks the active tab to drop its
// marker and reloads. A tab that cannot be reached is only logged.
func (p *Panel) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyID
	}
	if err := p.store.RemoveHop(ctx, id); err != nil {
		p.logger.Error("panel: delete", "hop_id", id, "error", err)
		return err
	}
	p.send(ctx, command.Remove{HopID: id})
	p.Load(ctx)
	return nil
}

// Navigate asks the active tab to scroll to hop id.
func (p *Panel) Navigate(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyID
	}
	return p.send(ctx, command.Scroll{HopID: id})
}

// ExportName is the file name an export written at t gets.
func ExportName(t time.Time) string {
	return "kango-hops-" + t.Format("20060102-150405") + ".json"
}

// Export writes the whole collection to dir and returns the file path.
func (p *Panel) Export(ctx context.Context, dir string) (string, error) {
	data, err := p.store.SaveToJSON(ctx)
	if err != nil {
		return "", err
	}
	path, err := guard.SafePath(dir, ExportName(p.now()))
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("panel: export: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("panel: export: %w", err)
	}
	p.logger.Info("panel: exported", "path", path, "bytes", len(data))
	return path, nil
}

// Import merges a JSON array of hops read from r and reloads.
func (p *Panel) Import(ctx context.Context, r io.Reader) error {
	data, err := guard.ReadLimited(r, guard.MaxImportBytes)
	if err != nil {
		return fmt.Errorf("panel: import: %w", err)
	}
	if err := p.store.LoadFromJSON(ctx, data); err != nil {
		return err
	}
	p.Load(ctx)
	return nil
}

// Handle serves commands broadcast by the dispatcher.
func (p *Panel) Handle(ctx context.Context, cmd command.Command) (command.Reply, error) {
	switch c := cmd.(type) {
	case command.TabChanged:
		p.SetURL(ctx, c.URL)
	default:
		p.logger.Debug("panel: ignoring command", "action", c.Action())
	}
	return command.Ack, nil
}

// Start loads the list and reloads it after every store change until stop
// is called.
func (p *Panel) Start(ctx context.Context) (stop func()) {
	p.Load(ctx)
	return p.store.Subscribe(func() { p.Load(ctx) })
}

// ErrEmptyID is returned by Delete and Navigate for an empty hop id.
var ErrEmptyID = errors.New("panel: empty hop id")

var errNoSender = errors.New("panel: no page connection")

func (p *Panel) send(ctx context.Context, cmd command.Command) error {
	if p.sender == nil {
		p.logger.Warn("panel: command not delivered", "action", cmd.Action(), "error", errNoSender)
		return errNoSender
	}
	if _, err := p.sender.SendToActive(ctx, cmd); err != nil {
		p.logger.Warn("panel: command not delivered", "action", cmd.Action(), "error", err)
		return err
	}
	return nil
}
