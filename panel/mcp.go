package panel

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/kango/kit"
)

// RegisterMCP registers the panel tools on srv.
func (p *Panel) RegisterMCP(srv *mcp.Server) {
	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "kango_list_hops",
		Description: "List the hops of a page, sorted by order. Without url, lists the panel's current page.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "Exact page URL"},
		}, nil),
	}, p.listEndpoint(), kit.DecodeArgs[listReq])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "kango_reorder_hop",
		Description: "Move the hop at rank from to rank to within one page and renumber that page's order.",
		InputSchema: inputSchema(map[string]any{
			"url":  map[string]any{"type": "string", "description": "Page URL (default: current page)"},
			"from": map[string]any{"type": "integer", "description": "Current 0-based rank"},
			"to":   map[string]any{"type": "integer", "description": "Target 0-based rank"},
		}, []string{"from", "to"}),
	}, p.reorderEndpoint(), kit.DecodeArgs[reorderReq])

	idSchema := inputSchema(map[string]any{
		"id": map[string]any{"type": "string", "description": "Hop id"},
	}, []string{"id"})

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "kango_delete_hop",
		Description: "Delete a hop and remove its marker from the active tab.",
		InputSchema: idSchema,
	}, p.deleteEndpoint(), kit.DecodeArgs[idReq])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "kango_scroll_to_hop",
		Description: "Scroll the active tab to a hop's marker.",
		InputSchema: idSchema,
	}, p.scrollEndpoint(), kit.DecodeArgs[idReq])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "kango_export_hops",
		Description: "Write every hop to a timestamped JSON file in the export directory.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, p.exportEndpoint(), kit.DecodeArgs[struct{}])

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "kango_import_hops",
		Description: "Merge a JSON array of hops; hops whose id already exists are skipped.",
		InputSchema: inputSchema(map[string]any{
			"hops": map[string]any{"type": "array", "items": map[string]any{"type": "object"}},
		}, []string{"hops"}),
	}, p.importEndpoint(), kit.DecodeArgs[importReq])
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
