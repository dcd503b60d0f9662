package handler

import (
	"fmt"
	"net/http"
	"strings"

	"sales-realtime-api/internal/service"
	"sales-realtime-api/pkg/apierror"
	"sales-realtime-api/pkg/response"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// StockHandler exposes the inventory ledger.
type StockHandler struct {
	stock *service.StockService
	log   zerolog.Logger
}

// NewStockHandler creates a new stock handler.
func NewStockHandler(stock *service.StockService, log zerolog.Logger) *StockHandler {
	return &StockHandler{stock: stock, log: log}
}

type stockRequest struct {
	Stock    *int64 `json:"stock"`
	Quantity int64  `json:"quantity"`
}

// Set handles POST /api/v1/admin/stock/{productId}
func (h *StockHandler) Set(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	var req stockRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	if req.Stock == nil {
		writeError(w, h.log, apierror.BadRequest("stock is required"))
		return
	}
	if err := h.stock.SetStock(r.Context(), productID, *req.Stock); err != nil {
		writeError(w, h.log, err)
		return
	}
	response.OK(w, map[string]interface{}{"product_id": productID, "stock": *req.Stock})
}

// Get handles GET /api/v1/stock/{productId}
func (h *StockHandler) Get(w http.ResponseWriter, r *http.Request) {
	info, err := h.stock.StockInfo(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.OK(w, info)
}

// Batch handles GET /api/v1/stock?ids=a,b
func (h *StockHandler) Batch(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("ids")
	if raw == "" {
		writeError(w, h.log, apierror.BadRequest("ids is required"))
		return
	}
	stocks, err := h.stock.BatchGetStock(r.Context(), strings.Split(raw, ","))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.OK(w, stocks)
}

// Increase handles POST /api/v1/admin/stock/{productId}/increase
func (h *StockHandler) Increase(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	var req stockRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	stock, err := h.stock.IncreaseStock(r.Context(), productID, req.Quantity)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.OK(w, map[string]interface{}{"product_id": productID, "stock": stock})
}

// Deduct handles POST /api/v1/stock/{productId}/deduct
func (h *StockHandler) Deduct(w http.ResponseWriter, r *http.Request) {
	h.reserve(w, r, func(productID string, qty int64) (bool, error) {
		return h.stock.DeductStock(r.Context(), productID, qty)
	})
}

// Lock handles POST /api/v1/stock/{productId}/lock
func (h *StockHandler) Lock(w http.ResponseWriter, r *http.Request) {
	h.reserve(w, r, func(productID string, qty int64) (bool, error) {
		return h.stock.LockStock(r.Context(), productID, qty)
	})
}

func (h *StockHandler) reserve(w http.ResponseWriter, r *http.Request, take func(string, int64) (bool, error)) {
	productID := chi.URLParam(r, "productId")
	var req stockRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	ok, err := take(productID, req.Quantity)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if !ok {
		writeError(w, h.log, fmt.Errorf("%w: product %s", service.ErrInsufficientStock, productID))
		return
	}
	stock, err := h.stock.GetStock(r.Context(), productID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.OK(w, map[string]interface{}{"product_id": productID, "deducted": req.Quantity, "stock": stock})
}

// SetFlash handles POST /api/v1/admin/stock/flash/{saleId}/{productId}
func (h *StockHandler) SetFlash(w http.ResponseWriter, r *http.Request) {
	saleID, productID := chi.URLParam(r, "saleId"), chi.URLParam(r, "productId")
	var req stockRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	if req.Stock == nil {
		writeError(w, h.log, apierror.BadRequest("stock is required"))
		return
	}
	if err := h.stock.SetFlashStock(r.Context(), saleID, productID, *req.Stock); err != nil {
		writeError(w, h.log, err)
		return
	}
	response.OK(w, map[string]interface{}{"sale_id": saleID, "product_id": productID, "stock": *req.Stock})
}

// GetFlash handles GET /api/v1/stock/flash/{saleId}/{productId}
func (h *StockHandler) GetFlash(w http.ResponseWriter, r *http.Request) {
	saleID, productID := chi.URLParam(r, "saleId"), chi.URLParam(r, "productId")
	stock, err := h.stock.GetFlashStock(r.Context(), saleID, productID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.OK(w, map[string]interface{}{"sale_id": saleID, "product_id": productID, "stock": stock})
}

// DeductFlash handles POST /api/v1/stock/flash/{saleId}/{productId}/deduct
func (h *StockHandler) DeductFlash(w http.ResponseWriter, r *http.Request) {
	saleID, productID := chi.URLParam(r, "saleId"), chi.URLParam(r, "productId")
	var req stockRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	ok, err := h.stock.LockFlashStock(r.Context(), saleID, productID, req.Quantity)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if !ok {
		writeError(w, h.log, fmt.Errorf("%w: sale %s product %s", service.ErrInsufficientStock, saleID, productID))
		return
	}
	stock, err := h.stock.GetFlashStock(r.Context(), saleID, productID)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.OK(w, map[string]interface{}{"sale_id": saleID, "product_id": productID, "deducted": req.Quantity, "stock": stock})
}
