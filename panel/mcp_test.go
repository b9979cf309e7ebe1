package panel

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/kango/command"
	"github.com/hazyhaar/kango/guard"
)

func mcpSession(t *testing.T, p *Panel) *mcp.ClientSession {
	t.Helper()
	impl := &mcp.Implementation{Name: "kango-test", Version: "0.1.0"}
	srv := mcp.NewServer(impl, nil)
	p.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()
	session, err := mcp.NewClient(impl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCallTool(t *testing.T, s *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	res, err := s.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool %s: %v", name, err)
	}
	if len(res.Content) == 0 {
		return "", res.IsError
	}
	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("%s: content %T", name, res.Content[0])
	}
	return tc.Text, res.IsError
}

func TestMCP_ListTools(t *testing.T) {
	p, _, _ := newPanel(t)
	s := mcpSession(t, p)
	res, err := s.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{
		"kango_list_hops": true, "kango_reorder_hop": true, "kango_delete_hop": true,
		"kango_scroll_to_hop": true, "kango_export_hops": true, "kango_import_hops": true,
	}
	for _, tool := range res.Tools {
		delete(want, tool.Name)
	}
	if len(want) != 0 {
		t.Fatalf("missing tools: %v", want)
	}
}

func TestMCP_Operations(t *testing.T) {
	p, store, snd := newPanel(t, hop("a", page, 0), hop("b", page, 1), hop("c", other, 0))
	s := mcpSession(t, p)
	ctx := context.Background()

	text, isErr := mcpCallTool(t, s, "kango_list_hops", map[string]any{"url": other})
	var lr listResp
	if isErr || json.Unmarshal([]byte(text), &lr) != nil || ids(lr.Hops) != "c" {
		t.Fatalf("list: %s", text)
	}

	if text, isErr = mcpCallTool(t, s, "kango_reorder_hop", map[string]any{"from": 0, "to": 1}); isErr {
		t.Fatalf("reorder: %s", text)
	}
	if got := ids(store.GetHops(ctx, page)); got != "b,a" {
		t.Fatalf("after reorder: %s", got)
	}
	if _, isErr = mcpCallTool(t, s, "kango_reorder_hop", map[string]any{"from": 0, "to": 7}); !isErr {
		t.Fatal("out of range reorder succeeded")
	}

	if text, isErr = mcpCallTool(t, s, "kango_scroll_to_hop", map[string]any{"id": "b"}); isErr {
		t.Fatalf("scroll: %s", text)
	}
	if text, isErr = mcpCallTool(t, s, "kango_delete_hop", map[string]any{"id": "b"}); isErr {
		t.Fatalf("delete: %s", text)
	}
	if _, isErr = mcpCallTool(t, s, "kango_delete_hop", map[string]any{"id": "../x"}); !isErr {
		t.Fatal("invalid id accepted")
	}
	cmds := snd.commands()
	if len(cmds) != 2 || cmds[0] != (command.Scroll{HopID: "b"}) || cmds[1] != (command.Remove{HopID: "b"}) {
		t.Fatalf("sent: %v", cmds)
	}

	text, isErr = mcpCallTool(t, s, "kango_export_hops", nil)
	var sr statusResp
	if isErr || json.Unmarshal([]byte(text), &sr) != nil {
		t.Fatalf("export: %s", text)
	}
	if filepath.Base(sr.Path) != ExportName(fixedNow) {
		t.Fatalf("export path: %s", sr.Path)
	}
	if _, err := os.Stat(sr.Path); err != nil {
		t.Fatal(err)
	}

	imported := []map[string]any{{
		"id": "n", "title": "new", "color": "#22c55e", "url": page, "order": 5,
		"selector": map[string]any{"tag": "div", "index": 0},
	}}
	if text, isErr = mcpCallTool(t, s, "kango_import_hops", map[string]any{"hops": imported}); isErr {
		t.Fatalf("import: %s", text)
	}
	if got := ids(store.GetHops(ctx, page)); got != "a,n" {
		t.Fatalf("after import: %s", got)
	}
}

func TestImportEndpoint_SizeCap(t *testing.T) {
	p, store, _ := newPanel(t, hop("a", page, 0))
	ctx := context.Background()

	big := make(json.RawMessage, guard.MaxImportBytes+1)
	_, err := p.importEndpoint()(ctx, &importReq{Hops: big})
	var bad *badRequest
	if !errors.Is(err, guard.ErrTooLarge) || !errors.As(err, &bad) {
		t.Fatalf("oversized import: %v", err)
	}
	if got := ids(store.GetHops(ctx, page)); got != "a" {
		t.Fatalf("store changed: %s", got)
	}
}
