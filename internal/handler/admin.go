package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"sales-realtime-api/internal/cache"
	"sales-realtime-api/internal/model"
	"sales-realtime-api/internal/service"
	"sales-realtime-api/pkg/apierror"
	"sales-realtime-api/pkg/response"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// StoreStats reports durable store statistics.
type StoreStats interface {
	Stats(ctx context.Context) (map[string]interface{}, error)
}

// AdminHandler handles admin-related HTTP requests.
type AdminHandler struct {
	orders    *service.OrderService
	catalog   *service.CatalogService
	sales     *cache.SalesBuffer
	store     StoreStats
	storeType string // sqlite, mysql or postgres
	startTime time.Time
	log       zerolog.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(
	orders *service.OrderService,
	catalog *service.CatalogService,
	sales *cache.SalesBuffer,
	store StoreStats,
	storeType string,
	log zerolog.Logger,
) *AdminHandler {
	return &AdminHandler{
		orders:    orders,
		catalog:   catalog,
		sales:     sales,
		store:     store,
		storeType: storeType,
		startTime: time.Now(),
		log:       log,
	}
}

type statusRequest struct {
	Status *int `json:"status"`
}

type productRequest struct {
	model.Product
	Stock *int64 `json:"stock"`
}

// UpdateOrderStatus handles PUT /api/v1/admin/orders/{id}/status. It bypasses
// the lifecycle guards.
func (h *AdminHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	if req.Status == nil {
		writeError(w, h.log, apierror.BadRequest("status is required"))
		return
	}
	o, err := h.orders.UpdateOrderStatus(r.Context(), chi.URLParam(r, "id"), model.OrderStatus(*req.Status))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.OK(w, o)
}

// DeleteOrder handles DELETE /api/v1/admin/orders/{id}
func (h *AdminHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.log, err)
		return
	}
	response.NoContent(w)
}

// SaveProduct handles POST /api/v1/admin/products. An optional "stock" field
// resets the live counter.
func (h *AdminHandler) SaveProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	p := req.Product
	if err := h.catalog.Save(r.Context(), &p, req.Stock); err != nil {
		writeError(w, h.log, err)
		return
	}
	response.Created(w, p)
}

// UpdateProductStatus handles PUT /api/v1/admin/products/{id}/status
func (h *AdminHandler) UpdateProductStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	if req.Status == nil {
		writeError(w, h.log, apierror.BadRequest("status is required"))
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.catalog.SetStatus(r.Context(), id, model.ProductStatus(*req.Status)); err != nil {
		writeError(w, h.log, err)
		return
	}
	response.OK(w, map[string]interface{}{"product_id": id, "status": *req.Status})
}

// DeleteProduct handles DELETE /api/v1/admin/products/{id}
func (h *AdminHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.log, err)
		return
	}
	response.NoContent(w)
}

// OrderStats handles GET /api/v1/admin/orders/stats
func (h *AdminHandler) OrderStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orders.Stats(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.OK(w, stats)
}

// FlushSales handles POST /api/v1/admin/sales/flush
func (h *AdminHandler) FlushSales(w http.ResponseWriter, r *http.Request) {
	n, err := h.sales.FlushBatch(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("manual sales flush failed")
		writeError(w, h.log, err)
		return
	}
	response.OK(w, map[string]int{"flushed": n})
}

// GetStats handles GET /api/v1/admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats := make(map[string]interface{})

	stats["uptime_seconds"] = int64(time.Since(h.startTime).Seconds())
	stats["uptime_human"] = time.Since(h.startTime).Round(time.Second).String()
	stats["server_time"] = time.Now().Format(time.RFC3339)
	stats["store_type"] = h.storeType

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats["memory"] = map[string]interface{}{
		"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
		"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
		"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
		"num_gc":        memStats.NumGC,
		"goroutines":    runtime.NumGoroutine(),
	}

	if h.sales != nil {
		count, err := h.sales.Count(ctx)
		if err == nil {
			stats["sales_buffer"] = map[string]interface{}{
				"pending_products": count,
				"status":           "connected",
			}
		} else {
			stats["sales_buffer"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		}
	} else {
		stats["sales_buffer"] = map[string]interface{}{"status": "not_configured"}
	}

	if h.store != nil {
		storeStats, err := h.store.Stats(ctx)
		if err == nil {
			storeStats["status"] = "connected"
			stats["store"] = storeStats
		} else {
			stats["store"] = map[string]interface{}{
				"status": "error",
				"error":  err.Error(),
			}
		}
	} else {
		stats["store"] = map[string]interface{}{"status": "not_configured"}
	}

	stats["runtime"] = map[string]interface{}{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
	}

	response.OK(w, stats)
}
