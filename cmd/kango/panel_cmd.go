package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/kango/panel"
)

func newPanelCmd(a *app) *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "panel [URL]",
		Short: "Browse, reorder and delete the hops of a page in the terminal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, backend, err := a.openStore()
			if err != nil {
				return err
			}
			defer backend.Close()

			var url string
			if len(args) == 1 {
				url = args[0]
			}
			p := panel.New(panel.Config{Store: store, URL: url, ExportDir: a.cfg.ExportDir, Logger: a.logger})
			if plain {
				p.Load(cmd.Context())
				return p.Render(cmd.OutOrStdout())
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			stop := p.Start(ctx)
			defer stop()
			go store.Watch(ctx, a.cfg.WatchInterval)
			return panel.RunTUI(ctx, p)
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "print the list once instead of running the TUI")
	return cmd
}
