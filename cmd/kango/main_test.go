package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/hazyhaar/kango/hops"
)

const pageURL = "https://ex.com/article"

const pageHTML = `<html><head><title>t</title></head><body>
<div><p>First paragraph</p></div>
<div><p id="key">Key point</p></div>
<div><p>Third paragraph</p></div>
</body></html>`

type cli struct {
	t   *testing.T
	db  string
	dir string
}

func newCLI(t *testing.T) *cli {
	dir := t.TempDir()
	return &cli{t: t, db: filepath.Join(dir, "kango.db"), dir: dir}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--db", c.db, "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	if err != nil {
		c.t.Fatalf("kango %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func (c *cli) list(url string) []hops.Hop {
	c.t.Helper()
	var list []hops.Hop
	if err := json.Unmarshal([]byte(c.mustRun("list", url, "--json")), &list); err != nil {
		c.t.Fatal(err)
	}
	return list
}

func (c *cli) writePage() string {
	path := filepath.Join(c.dir, "page.html")
	if err := os.WriteFile(path, []byte(pageHTML), 0o644); err != nil {
		c.t.Fatal(err)
	}
	return path
}

func TestAnnotateRenderList(t *testing.T) {
	c := newCLI(t)
	page := c.writePage()

	out := c.mustRun("annotate", page, "--url", pageURL, "--tag", "#key", "--title", "Key")
	if strings.Count(out, `class="kango-hop"`) != 1 {
		t.Fatalf("annotated page: %s", out)
	}
	c.mustRun("annotate", page, "--url", pageURL, "--tag", "div", "--index", "2", "--title", "Third", "--color", "#22C55E")

	list := c.list(pageURL)
	if len(list) != 2 || list[0].Title != "Key" || list[1].Title != "Third" {
		t.Fatalf("list: %+v", list)
	}
	if list[0].Selector.Tag != "#key" || list[1].Color != "#22c55e" || list[1].Order != 1 {
		t.Fatalf("stored hops: %+v", list)
	}

	// The saved file is untouched; render re-applies both markers.
	out = c.mustRun("render", page, "--url", pageURL)
	if strings.Count(out, `class="kango-hop"`) != 2 {
		t.Fatalf("render: %s", out)
	}
	if !strings.Contains(c.mustRun("list"), "Third") {
		t.Fatal("table listing misses a hop")
	}

	if _, err := c.run("annotate", page, "--url", pageURL, "--tag", "div", "--index", "9", "--title", "x"); err == nil {
		t.Fatal("annotating a missing element succeeded")
	}
	if _, err := c.run("annotate", page, "--url", "https://ex.com/", "--tag", "div", "--title", "x"); err == nil {
		t.Fatal("annotating a site root succeeded")
	}
}

func TestReorderDeleteExportImport(t *testing.T) {
	c := newCLI(t)
	page := c.writePage()
	for i, title := range []string{"A", "B", "C"} {
		c.mustRun("annotate", page, "--url", pageURL, "--tag", "div", "--index", string(rune('0'+i)), "--title", title)
	}

	c.mustRun("reorder", pageURL, "2", "0")
	list := c.list(pageURL)
	if len(list) != 3 || list[0].Title != "C" || list[1].Title != "A" || list[2].Title != "B" {
		t.Fatalf("after reorder: %+v", list)
	}
	if _, err := c.run("reorder", pageURL, "0", "7"); err == nil {
		t.Fatal("out of range reorder succeeded")
	}

	path := strings.TrimSpace(c.mustRun("export", "--dir", c.dir))
	if !strings.HasPrefix(filepath.Base(path), "kango-hops-") {
		t.Fatalf("export path: %s", path)
	}

	c.mustRun("delete", list[0].ID)
	if n := len(c.list(pageURL)); n != 2 {
		t.Fatalf("after delete: %d hops", n)
	}
	if _, err := c.run("delete", "../etc"); err == nil {
		t.Fatal("invalid id accepted")
	}

	out := c.mustRun("import", path)
	if !strings.Contains(out, "imported 1 hops (3 total)") {
		t.Fatalf("import: %s", out)
	}
}

func TestConfigFile(t *testing.T) {
	c := newCLI(t)
	cfgPath := filepath.Join(c.dir, "kango.yaml")
	exports := filepath.Join(c.dir, "exports")
	if err := os.WriteFile(cfgPath, []byte("export_dir: "+exports+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	path := strings.TrimSpace(c.mustRun("--config", cfgPath, "export"))
	if filepath.Dir(path) != exports {
		t.Fatalf("export went to %s", path)
	}
	if _, err := c.run("--log-level", "loud", "list"); err == nil {
		t.Fatal("bad log level accepted")
	}
}

func TestPanelPlain(t *testing.T) {
	c := newCLI(t)
	page := c.writePage()
	c.mustRun("annotate", page, "--url", pageURL, "--tag", "#key", "--title", "Key")
	out := c.mustRun("panel", pageURL, "--plain")
	if !strings.Contains(out, "Key") {
		t.Fatalf("panel: %s", out)
	}
}

func TestOpen_UnreachableBrowserStopsWatcher(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := newCLI(t)
	cfgPath := filepath.Join(c.dir, "kango.yaml")
	cfg := "watch_interval: 10ms\nbrowser:\n  remote: ws://127.0.0.1:1\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.run("--config", cfgPath, "open", pageURL, "--no-http")
		done <- err
	}()
	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "connect") {
			t.Fatalf("open: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("open did not return")
	}
}
