package panel

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/kango/dispatch"
	"github.com/hazyhaar/kango/guard"
	"github.com/hazyhaar/kango/hops"
	"github.com/hazyhaar/kango/kit"
)

// Handler returns the panel's HTTP API.
//
//	GET    /health
//	GET    /api/hops?url=
//	POST   /api/hops/reorder       {"url","from","to"}
//	DELETE /api/hops/{id}
//	POST   /api/hops/{id}/scroll
//	GET    /api/export             (download)
//	POST   /api/import             (JSON array body)
//	PUT    /api/url                {"url"}
func (p *Panel) Handler() http.Handler {
	list := p.listEndpoint()
	reorder := p.reorderEndpoint()
	del := p.deleteEndpoint()
	scroll := p.scrollEndpoint()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := kit.WithRequestID(kit.WithTransport(r.Context(), "http"), middleware.GetReqID(r.Context()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/hops", func(w http.ResponseWriter, r *http.Request) {
		resp, err := list(r.Context(), &listReq{URL: r.URL.Query().Get("url")})
		reply(w, http.StatusOK, resp, err)
	})

	r.Post("/api/hops/reorder", func(w http.ResponseWriter, r *http.Request) {
		var req reorderReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		resp, err := reorder(r.Context(), &req)
		reply(w, http.StatusOK, resp, err)
	})

	r.Delete("/api/hops/{id}", func(w http.ResponseWriter, r *http.Request) {
		resp, err := del(r.Context(), &idReq{ID: chi.URLParam(r, "id")})
		reply(w, http.StatusOK, resp, err)
	})

	r.Post("/api/hops/{id}/scroll", func(w http.ResponseWriter, r *http.Request) {
		resp, err := scroll(r.Context(), &idReq{ID: chi.URLParam(r, "id")})
		reply(w, http.StatusOK, resp, err)
	})

	r.Get("/api/export", func(w http.ResponseWriter, r *http.Request) {
		data, err := p.store.SaveToJSON(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="`+ExportName(p.now())+`"`)
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	})

	r.Post("/api/import", func(w http.ResponseWriter, r *http.Request) {
		if err := p.Import(r.Context(), r.Body); err != nil {
			reply(w, http.StatusOK, nil, err)
			return
		}
		writeJSON(w, http.StatusOK, statusResp{Status: "imported"})
	})

	r.Put("/api/url", func(w http.ResponseWriter, r *http.Request) {
		var req listReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		list := p.SetURL(r.Context(), req.URL)
		writeJSON(w, http.StatusOK, listResp{URL: req.URL, Annotatable: hops.Annotatable(req.URL), Hops: list})
	})

	return r
}

func reply(w http.ResponseWriter, code int, resp any, err error) {
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, code, resp)
}

func statusOf(err error) int {
	var (
		bad *badRequest
		nr  *dispatch.ErrNoReceiver
	)
	switch {
	case errors.As(err, &bad),
		errors.Is(err, hops.ErrMalformedImport),
		errors.Is(err, hops.ErrOutOfRange),
		errors.Is(err, guard.ErrTooLarge):
		return http.StatusBadRequest
	case errors.As(err, &nr), errors.Is(err, errNoSender):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
