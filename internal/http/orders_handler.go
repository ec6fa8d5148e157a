package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/commerce-core/internal/domain"
	"github.com/fjod/commerce-core/internal/service"
	"github.com/go-chi/chi/v5"
)

type OrderService interface {
	ListOrders(ctx context.Context, p domain.Principal, limit, offset int) ([]*domain.Order, error)
	GetOrder(ctx context.Context, p domain.Principal, orderID string) (*domain.Order, error)
	UpdateOrder(ctx context.Context, p domain.Principal, orderID string, patch domain.OrderPatch) (*domain.Order, error)
	Transition(ctx context.Context, p domain.Principal, req service.TransitionRequest) (*domain.OrderItem, error)
}

type OrdersHandler struct {
	orders  OrderService
	timeout time.Duration
}

func NewOrdersHandler(orders OrderService, timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{
		orders:  orders,
		timeout: timeout,
	}
}

type OrderPatchDTO struct {
	Status         *domain.OrderStatus `json:"status,omitempty"`
	TrackingNumber *string             `json:"tracking_number,omitempty"`
	Notes          *string             `json:"notes,omitempty"`
}

type TransitionRequestDTO struct {
	StepID      string              `json:"step_id"`
	Metadata    map[string]string   `json:"metadata"`
	OrderStatus *domain.OrderStatus `json:"order_status,omitempty"`
}

type OrderListResponseDTO struct {
	Orders []*domain.Order `json:"orders"`
}

// GET /api/v1/orders?limit=&offset=
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_offset", "offset must be an integer")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.orders.ListOrders(ctx, p, limit, offset)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	respondJSON(w, http.StatusOK, OrderListResponseDTO{Orders: orders})
}

// GET /api/v1/orders/{orderID}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, err := h.orders.GetOrder(ctx, p, chi.URLParam(r, "orderID"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// PATCH /api/v1/orders/{orderID}
func (h *OrdersHandler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	var req OrderPatchDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, err := h.orders.UpdateOrder(ctx, p, chi.URLParam(r, "orderID"), domain.OrderPatch{
		Status:         req.Status,
		TrackingNumber: req.TrackingNumber,
		Notes:          req.Notes,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// POST /api/v1/orders/{orderID}/items/{itemID}/transition
func (h *OrdersHandler) Transition(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	var req TransitionRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	item, err := h.orders.Transition(ctx, p, service.TransitionRequest{
		OrderID:     chi.URLParam(r, "orderID"),
		ItemID:      chi.URLParam(r, "itemID"),
		StepID:      req.StepID,
		Metadata:    req.Metadata,
		OrderStatus: req.OrderStatus,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, item)
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
