package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/kango/guard"
	"github.com/hazyhaar/kango/hops"
	"github.com/hazyhaar/kango/idgen"
	"github.com/hazyhaar/kango/panel"
)

func newListCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list [URL|all]",
		Short: "List hops of one page (sorted by order) or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := hops.All
			if len(args) == 1 {
				filter = args[0]
			}
			store, backend, err := a.openStore()
			if err != nil {
				return err
			}
			defer backend.Close()

			list := store.GetHops(cmd.Context(), filter)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tORDER\tCOLOR\tSELECTOR\tCREATED\tTITLE\tURL")
			for _, h := range list {
				created := "-"
				if t, ok := idgen.Time(h.ID); ok {
					created = t.UTC().Format(time.DateTime)
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
					h.ID, h.Order, h.Color, h.Selector, created, h.Title, h.URL)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a hop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := guard.ValidateID(args[0]); err != nil {
				return err
			}
			store, backend, err := a.openStore()
			if err != nil {
				return err
			}
			defer backend.Close()
			return store.RemoveHop(cmd.Context(), args[0])
		},
	}
}

func newReorderCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder URL FROM TO",
		Short: "Move the hop at rank FROM to rank TO within URL",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("FROM: %w", err)
			}
			to, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("TO: %w", err)
			}
			store, backend, err := a.openStore()
			if err != nil {
				return err
			}
			defer backend.Close()

			p := panel.New(panel.Config{Store: store, URL: args[0], Logger: a.logger})
			list, err := p.Reorder(cmd.Context(), from, to)
			if err != nil {
				return err
			}
			for i, h := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", i, h.ID, h.Title)
			}
			return nil
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every hop to a timestamped JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				dir = a.cfg.ExportDir
			}
			store, backend, err := a.openStore()
			if err != nil {
				return err
			}
			defer backend.Close()

			p := panel.New(panel.Config{Store: store, Logger: a.logger})
			path, err := p.Export(cmd.Context(), dir)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "output directory (default: export_dir)")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Merge a JSON array of hops; existing ids are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			store, backend, err := a.openStore()
			if err != nil {
				return err
			}
			defer backend.Close()

			p := panel.New(panel.Config{Store: store, Logger: a.logger})
			before := len(store.GetHops(cmd.Context(), hops.All))
			if err := p.Import(cmd.Context(), f); err != nil {
				return err
			}
			after := len(store.GetHops(cmd.Context(), hops.All))
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d hops (%d total)\n", after-before, after)
			return nil
		},
	}
}
