package panel

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/kango/guard"
	"github.com/hazyhaar/kango/hops"
	"github.com/hazyhaar/kango/kit"
)

// Requests and responses shared by the HTTP and MCP surfaces.

type listReq struct {
	URL string `json:"url"`
}

type listResp struct {
	URL         string     `json:"url"`
	Annotatable bool       `json:"annotatable"`
	Hops        []hops.Hop `json:"hops"`
}

type reorderReq struct {
	URL  string `json:"url"`
	From int    `json:"from"`
	To   int    `json:"to"`
}

type idReq struct {
	ID string `json:"id"`
}

type importReq struct {
	Hops json.RawMessage `json:"hops"`
}

type statusResp struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
	Path   string `json:"path,omitempty"`
}

// badRequest marks caller mistakes (bad ids, malformed bodies).
type badRequest struct{ err error }

func (e *badRequest) Error() string { return e.err.Error() }
func (e *badRequest) Unwrap() error { return e.err }

func (p *Panel) wrap(op string, ep kit.Endpoint) kit.Endpoint {
	return kit.Chain(kit.Recovery(p.logger), kit.Logging(p.logger, op))(ep)
}

// listEndpoint lists the hops of req.URL without switching the panel, or
// the panel's own list when req.URL is empty.
func (p *Panel) listEndpoint() kit.Endpoint {
	return p.wrap("list_hops", func(ctx context.Context, req any) (any, error) {
		r := req.(*listReq)
		if r.URL == "" {
			url := p.URL()
			return listResp{URL: url, Annotatable: hops.Annotatable(url), Hops: p.Hops()}, nil
		}
		return listResp{URL: r.URL, Annotatable: hops.Annotatable(r.URL), Hops: p.store.GetHops(ctx, r.URL)}, nil
	})
}

func (p *Panel) reorderEndpoint() kit.Endpoint {
	return p.wrap("reorder_hop", func(ctx context.Context, req any) (any, error) {
		r := req.(*reorderReq)
		if r.URL != "" && r.URL != p.URL() {
			p.SetURL(ctx, r.URL)
		}
		list, err := p.Reorder(ctx, r.From, r.To)
		if err != nil {
			return nil, err
		}
		url := p.URL()
		return listResp{URL: url, Annotatable: hops.Annotatable(url), Hops: list}, nil
	})
}

func (p *Panel) deleteEndpoint() kit.Endpoint {
	return p.wrap("delete_hop", func(ctx context.Context, req any) (any, error) {
		r := req.(*idReq)
		if err := guard.ValidateID(r.ID); err != nil {
			return nil, &badRequest{err}
		}
		if err := p.Delete(ctx, r.ID); err != nil {
			return nil, err
		}
		return statusResp{Status: "deleted", ID: r.ID}, nil
	})
}

func (p *Panel) scrollEndpoint() kit.Endpoint {
	return p.wrap("scroll_to_hop", func(ctx context.Context, req any) (any, error) {
		r := req.(*idReq)
		if err := guard.ValidateID(r.ID); err != nil {
			return nil, &badRequest{err}
		}
		if err := p.Navigate(ctx, r.ID); err != nil {
			return nil, err
		}
		return statusResp{Status: "ok", ID: r.ID}, nil
	})
}

// exportEndpoint writes an export file into the configured directory.
func (p *Panel) exportEndpoint() kit.Endpoint {
	return p.wrap("export_hops", func(ctx context.Context, _ any) (any, error) {
		if p.exportDir == "" {
			return nil, fmt.Errorf("panel: no export directory configured")
		}
		path, err := p.Export(ctx, p.exportDir)
		if err != nil {
			return nil, err
		}
		return statusResp{Status: "exported", Path: path}, nil
	})
}

func (p *Panel) importEndpoint() kit.Endpoint {
	return p.wrap("import_hops", func(ctx context.Context, req any) (any, error) {
		r := req.(*importReq)
		if int64(len(r.Hops)) > guard.MaxImportBytes {
			return nil, &badRequest{fmt.Errorf("%w: more than %d bytes", guard.ErrTooLarge, guard.MaxImportBytes)}
		}
		if err := p.store.LoadFromJSON(ctx, r.Hops); err != nil {
			return nil, &badRequest{err}
		}
		p.Load(ctx)
		return statusResp{Status: "imported"}, nil
	})
}
