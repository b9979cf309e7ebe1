// Command kango manages hops: positional annotations attached to elements
// of web pages.
//
// Usage:
//
//	kango serve [--open URL]...      # panel HTTP API (+ live tabs)
//	kango open URL                   # live browser tab kept in sync
//	kango mcp                        # panel tools over MCP stdio
//	kango panel [URL]                # terminal panel
//	kango list [URL|all]
//	kango annotate page.html --url URL --tag p --index 2 --title "..."
//	kango render page.html --url URL
//	kango export --dir DIR | kango import FILE
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
