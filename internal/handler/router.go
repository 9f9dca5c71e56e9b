package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"keystore-service/config"
)

// NewRouter はルーターを生成する。トレーシングが有効な場合はotelhttpでラップする。
func NewRouter(h *EntryHandler, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)

	// ルート定義
	r.Route("/v1/entries", func(r chi.Router) {
		r.Post("/", h.CreateEntry)
		r.Get("/", h.ListEntries)
		r.Get("/{alias}", h.GetEntry)
		r.Delete("/{alias}", h.DeleteEntry)
		r.Post("/{alias}/key", h.UseKey)
	})

	if cfg.OtelEnabled {
		return otelhttp.NewHandler(r, "keystore-service")
	}
	return r
}
