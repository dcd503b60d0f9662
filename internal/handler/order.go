package handler

import (
	"net/http"

	"sales-realtime-api/internal/middleware"
	"sales-realtime-api/internal/model"
	"sales-realtime-api/internal/service"
	"sales-realtime-api/pkg/apierror"
	"sales-realtime-api/pkg/response"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// OrderHandler handles order lifecycle requests.
type OrderHandler struct {
	orders *service.OrderService
	log    zerolog.Logger
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(orders *service.OrderService, log zerolog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, log: log}
}

type payRequest struct {
	PayMethod string `json:"pay_method"`
}

type deliverRequest struct {
	ExpressCompany string `json:"express_company"`
	ExpressNo      string `json:"express_no"`
}

// Create handles POST /api/v1/orders. X-User-ID, when present, overrides
// the user id of the body.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var o model.Order
	if err := decode(r, &o); err != nil {
		writeError(w, h.log, err)
		return
	}
	if userID := r.Header.Get("X-User-ID"); userID != "" {
		o.UserID = userID
	}
	created, err := h.orders.Create(r.Context(), &o)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.Created(w, created)
}

// Get handles GET /api/v1/orders/{id}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.OK(w, o)
}

// Status handles GET /api/v1/orders/{id}/status
func (h *OrderHandler) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, err := h.orders.Status(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.OK(w, map[string]interface{}{
		"order_id":    id,
		"status":      int(status),
		"status_desc": status.String(),
	})
}

// List handles GET /api/v1/orders?user_id=&status=&limit=
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	q := r.URL.Query()
	var orders []*model.Order
	switch {
	case q.Get("status") != "":
		status, perr := model.ParseStatus(q.Get("status"))
		if perr != nil {
			writeError(w, h.log, apierror.BadRequest(perr.Error()))
			return
		}
		orders, err = h.orders.ListByStatus(r.Context(), status, limit)
		if err == nil && q.Get("user_id") != "" {
			orders = filterUser(orders, q.Get("user_id"))
		}
	case q.Get("user_id") != "":
		orders, err = h.orders.ListByUser(r.Context(), q.Get("user_id"), limit)
	default:
		orders, err = h.orders.Recent(r.Context(), limit)
	}
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.JSONWithMeta(w, http.StatusOK, orders, 1, limit, int64(len(orders)))
}

func filterUser(orders []*model.Order, userID string) []*model.Order {
	out := orders[:0]
	for _, o := range orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out
}

// Pay handles POST /api/v1/orders/{id}/pay
func (h *OrderHandler) Pay(w http.ResponseWriter, r *http.Request) {
	var req payRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	o, err := h.orders.Pay(r.Context(), chi.URLParam(r, "id"), req.PayMethod)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.OK(w, o)
}

// Deliver handles POST /api/v1/orders/{id}/deliver
func (h *OrderHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	var req deliverRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	o, err := h.orders.Deliver(r.Context(), chi.URLParam(r, "id"), req.ExpressCompany, req.ExpressNo)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.OK(w, o)
}

// Complete handles POST /api/v1/orders/{id}/complete
func (h *OrderHandler) Complete(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.OK(w, o)
}

// Cancel handles POST /api/v1/orders/{id}/cancel
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.OK(w, o)
}

// AddTrace handles POST /api/v1/orders/{id}/logistics
func (h *OrderHandler) AddTrace(w http.ResponseWriter, r *http.Request) {
	var info model.LogisticsInfo
	if err := decode(r, &info); err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := h.orders.AddLogisticsTrace(r.Context(), chi.URLParam(r, "id"), info); err != nil {
		writeError(w, h.log, err)
		return
	}
	response.NoContent(w)
}

// Mine handles GET /api/v1/cart/orders, the orders of the calling user.
func (h *OrderHandler) Mine(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	orders, err := h.orders.ListByUser(r.Context(), middleware.GetUserID(r.Context()), limit)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.OK(w, orders)
}
