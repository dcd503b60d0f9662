package handler

import (
	"net/http"

	"sales-realtime-api/internal/service"
	"sales-realtime-api/pkg/response"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// ProductHandler serves catalog reads.
type ProductHandler struct {
	catalog *service.CatalogService
	log     zerolog.Logger
}

// NewProductHandler creates a new product handler.
func NewProductHandler(catalog *service.CatalogService, log zerolog.Logger) *ProductHandler {
	return &ProductHandler{catalog: catalog, log: log}
}

// Get handles GET /api/v1/products/{id}. Each read counts as a view.
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.catalog.GetWithStock(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := h.catalog.RecordView(r.Context(), id); err != nil {
		h.log.Warn().Err(err).Str("product_id", id).Msg("view count not recorded")
	}
	response.OK(w, p)
}

// List handles GET /api/v1/products?category=&limit=
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	products, err := h.catalog.List(r.Context(), r.URL.Query().Get("category"), limit)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.OK(w, products)
}
