package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/kango/hops"
	"github.com/hazyhaar/kango/internal/config"
)

const version = "0.3.0"

// app carries what every subcommand shares: the resolved configuration,
// the logger and the flags that override the file.
type app struct {
	configPath string
	dbPath     string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:          "kango",
		Short:        "Positional page annotations (hops)",
		Version:      version,
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Serve the panel API and keep a live tab in sync
  kango serve --open https://go.dev/doc/effective_go

  # Add a hop to a saved page and print the annotated HTML
  kango annotate page.html --url https://ex.com/a --tag p --index 3 --title "Key point"
`),
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to kango.yaml")
	cmd.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database (overrides db_path)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug | info | warn | error (overrides log_level)")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return a.setup(cmd.ErrOrStderr())
	}

	cmd.AddCommand(
		newServeCmd(a),
		newOpenCmd(a),
		newMCPCmd(a),
		newPanelCmd(a),
		newListCmd(a),
		newDeleteCmd(a),
		newReorderCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newAnnotateCmd(a),
		newRenderCmd(a),
	)
	return cmd
}

func (a *app) setup(logOut io.Writer) error {
	cfg := config.Default()
	if a.configPath != "" {
		c, err := config.LoadFile(a.configPath)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		cfg = c
	}
	if a.dbPath != "" {
		cfg.DBPath = a.dbPath
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.logger)
	return nil
}

// openStore opens the configured SQLite store. close releases it.
func (a *app) openStore() (store *hops.Store, backend *hops.SQLiteBackend, err error) {
	backend, err = hops.OpenSQLite(a.cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return hops.NewStore(backend, hops.WithLogger(a.logger)), backend, nil
}
