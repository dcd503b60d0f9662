package handler

import (
	"net/http"

	"sales-realtime-api/internal/middleware"
	"sales-realtime-api/internal/model"
	"sales-realtime-api/internal/service"
	"sales-realtime-api/pkg/response"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// CartHandler handles the cart of the calling user. Routes are mounted
// behind middleware.RequireUser.
type CartHandler struct {
	cart   *service.CartService
	orders *service.OrderService
	log    zerolog.Logger
}

// NewCartHandler creates a new cart handler.
func NewCartHandler(cart *service.CartService, orders *service.OrderService, log zerolog.Logger) *CartHandler {
	return &CartHandler{cart: cart, orders: orders, log: log}
}

type cartItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	Selected  *bool  `json:"selected"`
}

// CartView is the cart as returned to clients.
type CartView struct {
	Items      []model.CartItem `json:"items"`
	TotalCount int64            `json:"total_count"`
	TotalPrice decimal.Decimal  `json:"total_price"`
}

// Add handles POST /api/v1/cart/items
func (h *CartHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	line, err := h.cart.AddToCart(r.Context(), middleware.GetUserID(r.Context()), req.ProductID, req.Quantity)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.Created(w, line)
}

// Get handles GET /api/v1/cart
func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	items, err := h.cart.GetCart(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	view := CartView{Items: items, TotalPrice: decimal.Zero}
	for _, item := range items {
		view.TotalCount += item.Quantity
		if item.Selected {
			view.TotalPrice = view.TotalPrice.Add(item.Subtotal)
		}
	}
	response.OK(w, view)
}

// Update handles PUT /api/v1/cart/items/{productId}
func (h *CartHandler) Update(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	var req cartItemRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	line, err := h.cart.UpdateQuantity(r.Context(), middleware.GetUserID(r.Context()), productID, req.Quantity)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if line == nil {
		response.NoContent(w)
		return
	}
	response.OK(w, line)
}

// Select handles PUT /api/v1/cart/items/{productId}/selected
func (h *CartHandler) Select(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productId")
	var req cartItemRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	selected := req.Selected == nil || *req.Selected
	if err := h.cart.UpdateSelected(r.Context(), middleware.GetUserID(r.Context()), productID, selected); err != nil {
		writeError(w, h.log, err)
		return
	}
	response.OK(w, map[string]interface{}{"product_id": productID, "selected": selected})
}

// Remove handles DELETE /api/v1/cart/items/{productId}
func (h *CartHandler) Remove(w http.ResponseWriter, r *http.Request) {
	if err := h.cart.RemoveFromCart(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "productId")); err != nil {
		writeError(w, h.log, err)
		return
	}
	response.NoContent(w)
}

// Clear handles DELETE /api/v1/cart
func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.cart.ClearCart(r.Context(), middleware.GetUserID(r.Context())); err != nil {
		writeError(w, h.log, err)
		return
	}
	response.NoContent(w)
}

// Count handles GET /api/v1/cart/count
func (h *CartHandler) Count(w http.ResponseWriter, r *http.Request) {
	n, err := h.cart.CountItems(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.OK(w, map[string]int64{"count": n})
}

// Checkout handles POST /api/v1/cart/checkout. The selected lines become a
// pending order; the cart keeps them until the order is paid.
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req model.Order
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, h.log, err)
			return
		}
	}
	order, err := h.orders.CreateFromCart(r.Context(), middleware.GetUserID(r.Context()), &model.Order{
		DiscountAmount: req.DiscountAmount,
		Receiver:       req.Receiver,
		Phone:          req.Phone,
		Address:        req.Address,
		Postcode:       req.Postcode,
		Remark:         req.Remark,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.Created(w, order)
}
