package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/net/html"

	"github.com/hazyhaar/kango/dom"
	"github.com/hazyhaar/kango/hops"
	"github.com/hazyhaar/kango/locator"
	"github.com/hazyhaar/kango/pageagent"
)

// loadPage parses an HTML file as the document at pageURL and injects an
// agent bound to store. The agent has already rendered existing hops when
// loadPage returns.
func (a *app) loadPage(cmd *cobra.Command, file, pageURL string, store *hops.Store) (*dom.Document, *pageagent.Agent, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	doc, err := dom.Parse(f, pageURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", file, err)
	}
	agent, err := pageagent.Inject(pageagent.Config{
		Doc:      doc,
		Store:    store,
		Debounce: a.cfg.Debounce,
		Logger:   a.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := agent.LoadExistingHops(cmd.Context()); err != nil {
		agent.Close()
		return nil, nil, err
	}
	return doc, agent, nil
}

func printPage(cmd *cobra.Command, doc *dom.Document) error {
	out, err := doc.Render()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
	return err
}

func newAnnotateCmd(a *app) *cobra.Command {
	var (
		pageURL, tag, title, color string
		index                      int
	)
	cmd := &cobra.Command{
		Use:   "annotate FILE",
		Short: "Add a hop to an element of a saved page and print the annotated page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !hops.Annotatable(pageURL) {
				return fmt.Errorf("hops are not available on %q", pageURL)
			}
			store, backend, err := a.openStore()
			if err != nil {
				return err
			}
			defer backend.Close()

			doc, agent, err := a.loadPage(cmd, args[0], pageURL, store)
			if err != nil {
				return err
			}
			defer agent.Close()

			loc := locator.Locator{Tag: tag, Index: index}
			if len(tag) > 0 && tag[0] == '#' {
				loc.Index = locator.IDIndex
			}
			var el *html.Node
			doc.Read(func(root *html.Node) { el = locator.ResolveSkipping(root, loc, pageagent.IsAgentNode) })
			if el == nil {
				return fmt.Errorf("no element at %s", loc)
			}
			if ok, err := agent.Capture(cmd.Context(), el); err != nil {
				return err
			} else if !ok {
				return fmt.Errorf("element at %s cannot be annotated", loc)
			}
			h, err := agent.CreateHop(cmd.Context(), title, color)
			if err != nil {
				return err
			}
			a.logger.Info("kango: hop added", "hop_id", h.ID, "selector", h.Selector.String())
			return printPage(cmd, doc)
		},
	}
	cmd.Flags().StringVar(&pageURL, "url", "", "URL the page was saved from")
	cmd.Flags().StringVar(&tag, "tag", "", "element tag, or #id")
	cmd.Flags().IntVar(&index, "index", 0, "ordinal among elements with that tag")
	cmd.Flags().StringVar(&title, "title", "", "hop title")
	cmd.Flags().StringVar(&color, "color", hops.DefaultColor, "hop color (palette value)")
	cmd.MarkFlagRequired("url")
	cmd.MarkFlagRequired("tag")
	cmd.MarkFlagRequired("title")
	return cmd
}

func newRenderCmd(a *app) *cobra.Command {
	var pageURL string
	cmd := &cobra.Command{
		Use:   "render FILE",
		Short: "Print a saved page with the markers of its hops",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, backend, err := a.openStore()
			if err != nil {
				return err
			}
			defer backend.Close()

			doc, agent, err := a.loadPage(cmd, args[0], pageURL, store)
			if err != nil {
				return err
			}
			defer agent.Close()
			fmt.Fprintf(cmd.ErrOrStderr(), "%d markers\n", len(agent.Markers()))
			return printPage(cmd, doc)
		},
	}
	cmd.Flags().StringVar(&pageURL, "url", "", "URL the page was saved from")
	cmd.MarkFlagRequired("url")
	return cmd
}
