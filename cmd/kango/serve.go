package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/kango/dispatch"
	"github.com/hazyhaar/kango/guard"
	"github.com/hazyhaar/kango/hops"
	"github.com/hazyhaar/kango/livepage"
	"github.com/hazyhaar/kango/panel"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr  string
		opens []string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the panel HTTP API; --open adds live browser tabs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.HTTP.Addr = addr
			}
			return a.serve(cmd.Context(), opens, true)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	cmd.Flags().StringArrayVar(&opens, "open", nil, "open a live tab at URL (repeatable)")
	return cmd
}

func newOpenCmd(a *app) *cobra.Command {
	var noHTTP bool
	cmd := &cobra.Command{
		Use:   "open URL",
		Short: "Open a live browser tab whose markers follow the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), args, !noHTTP)
		},
	}
	cmd.Flags().BoolVar(&noHTTP, "no-http", false, "do not serve the panel API")
	return cmd
}

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Expose the panel tools over MCP (stdio)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, backend, err := a.openStore()
			if err != nil {
				return err
			}
			defer backend.Close()

			p := panel.New(panel.Config{Store: store, ExportDir: a.cfg.ExportDir, Logger: a.logger})
			stop := p.Start(ctx)
			defer stop()

			srv := mcp.NewServer(&mcp.Implementation{Name: "kango", Version: version}, nil)
			p.RegisterMCP(srv)

			// The session ends when the client closes stdin; the watcher
			// goes with it.
			g, gctx := errgroup.WithContext(ctx)
			runCtx, cancel := context.WithCancel(gctx)
			g.Go(func() error { return store.Watch(runCtx, a.cfg.WatchInterval) })
			g.Go(func() error {
				defer cancel()
				return srv.Run(runCtx, &mcp.StdioTransport{})
			})
			return g.Wait()
		},
	}
}

// serve runs the store watcher, the dispatcher with one panel, the live
// tabs for urls and, when withHTTP, the panel API, until ctx ends.
func (a *app) serve(ctx context.Context, urls []string, withHTTP bool) error {
	for _, u := range urls {
		if err := guard.ValidatePageURL(u, a.cfg.Browser.AllowPrivate); err != nil {
			return fmt.Errorf("%s: %w", u, err)
		}
	}

	store, backend, err := a.openStore()
	if err != nil {
		return err
	}
	defer backend.Close()

	live := &liveTabs{eps: make(map[int]*livepage.Endpoint)}
	d := dispatch.New(dispatch.Config{
		Injector: live.inject,
		OnOpenSidebar: func(tabID int) {
			a.logger.Info("kango: panel requested", "tab_id", tabID)
		},
		Logger: a.logger,
	})
	p := panel.New(panel.Config{Store: store, Sender: d, ExportDir: a.cfg.ExportDir, Logger: a.logger})
	defer d.AddPanel(p)()
	stopPanel := p.Start(ctx)
	defer stopPanel()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return store.Watch(ctx, a.cfg.WatchInterval) })
	// abort stops what already runs before a setup error is returned.
	abort := func(err error) error {
		cancel()
		_ = g.Wait()
		return err
	}

	if len(urls) > 0 {
		mgr := livepage.NewManager(livepage.Config{
			Remote:   a.cfg.Browser.Remote,
			Headless: a.cfg.Browser.IsHeadless(),
			Logger:   a.logger,
		})
		if _, err := mgr.Start(ctx); err != nil {
			return abort(err)
		}
		defer mgr.Close()

		for i, u := range urls {
			id := i + 1
			if err := a.openLiveTab(ctx, g, mgr, d, store, live, id, u); err != nil {
				return abort(err)
			}
		}
		if err := d.ActivateTab(ctx, 1); err != nil {
			return abort(err)
		}
	}

	if withHTTP {
		srv := &http.Server{Addr: a.cfg.HTTP.Addr, Handler: p.Handler(), ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			a.logger.Info("kango: serving", "addr", srv.Addr, "db", a.cfg.DBPath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	a.logger.Info("kango: shutting down")
	return err
}

func (a *app) openLiveTab(ctx context.Context, g *errgroup.Group, mgr *livepage.Manager, d *dispatch.Dispatcher,
	store *hops.Store, live *liveTabs, id int, pageURL string) error {
	tab, err := livepage.Open(ctx, mgr, pageURL)
	if err != nil {
		return err
	}
	ep := livepage.NewEndpoint(tab, store, a.logger.With("tab_id", id))
	live.add(id, ep)

	d.OpenTab(id, pageURL)
	if err := d.EnsureAgent(ctx, id); err != nil {
		tab.Close()
		return err
	}
	g.Go(func() error {
		defer tab.Close()
		ep.Run(ctx, a.cfg.Browser.Resync, func(u string) {
			if err := d.UpdateTab(ctx, id, u); err != nil {
				a.logger.Debug("kango: tab update", "tab_id", id, "error", err)
			}
		})
		d.CloseTab(id)
		return nil
	})
	return nil
}

// liveTabs holds the endpoint of each live tab so the dispatcher can
// re-attach it when a liveness probe fails.
type liveTabs struct {
	mu  sync.Mutex
	eps map[int]*livepage.Endpoint
}

func (l *liveTabs) add(id int, ep *livepage.Endpoint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.eps[id] = ep
}

func (l *liveTabs) inject(_ context.Context, d *dispatch.Dispatcher, id int) error {
	l.mu.Lock()
	ep, ok := l.eps[id]
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("no live tab %d", id)
	}
	return d.Attach(id, ep)
}
