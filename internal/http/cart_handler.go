package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/commerce-core/internal/domain"
	"github.com/go-chi/chi/v5"
)

type CartStore interface {
	CreateCart(ctx context.Context, tenantID string, items []domain.CartItem) (*domain.Cart, error)
	AddItems(ctx context.Context, cartID, tenantID string, items []domain.CartItem) (*domain.Cart, error)
	SetItemQuantity(ctx context.Context, cartID, tenantID, productID, variantID string, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, cartID, tenantID, productID, variantID string) (*domain.Cart, error)
	GetCart(ctx context.Context, cartID, tenantID string) (*domain.Cart, error)
	DeleteCart(ctx context.Context, cartID, tenantID string) error
}

type CartHydrator interface {
	Hydrate(ctx context.Context, cart *domain.Cart) (*domain.HydratedCart, error)
}

type SessionBuilder interface {
	BuildSession(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutSession, error)
}

type CartHandler struct {
	carts    CartStore
	hydrator CartHydrator
	checkout SessionBuilder
	timeout  time.Duration
}

func NewCartHandler(carts CartStore, hydrator CartHydrator, checkout SessionBuilder, timeout time.Duration) *CartHandler {
	return &CartHandler{
		carts:    carts,
		hydrator: hydrator,
		checkout: checkout,
		timeout:  timeout,
	}
}

type CartItemDTO struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
}

type ItemsRequestDTO struct {
	Items []CartItemDTO `json:"items"`
}

type UpdateQuantityRequestDTO struct {
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
}

type CheckoutRequestDTO struct {
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

func toCartItems(in []CartItemDTO) []domain.CartItem {
	items := make([]domain.CartItem, 0, len(in))
	for _, i := range in {
		items = append(items, domain.CartItem{ProductID: i.ProductID, VariantID: i.VariantID, Quantity: i.Quantity})
	}
	return items
}

// cartPrincipal returns the caller if it may use carts, writing the error
// response otherwise.
func cartPrincipal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "missing credential")
		return p, false
	}
	if !p.CanUseCart() {
		handleError(w, r, domain.ErrForbidden)
		return p, false
	}
	return p, true
}

// POST /api/v1/carts
func (h *CartHandler) CreateCart(w http.ResponseWriter, r *http.Request) {
	p, ok := cartPrincipal(w, r)
	if !ok {
		return
	}

	var req ItemsRequestDTO
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.CreateCart(ctx, p.TenantID, toCartItems(req.Items))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, cart)
}

// GET /api/v1/carts/{cartID}
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	p, ok := cartPrincipal(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.GetCart(ctx, chi.URLParam(r, "cartID"), p.TenantID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	hydrated, err := h.hydrator.Hydrate(ctx, cart)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, hydrated)
}

// DELETE /api/v1/carts/{cartID}
func (h *CartHandler) DeleteCart(w http.ResponseWriter, r *http.Request) {
	p, ok := cartPrincipal(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.carts.DeleteCart(ctx, chi.URLParam(r, "cartID"), p.TenantID); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/carts/{cartID}/items
func (h *CartHandler) AddItems(w http.ResponseWriter, r *http.Request) {
	p, ok := cartPrincipal(w, r)
	if !ok {
		return
	}

	var req ItemsRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.AddItems(ctx, chi.URLParam(r, "cartID"), p.TenantID, toCartItems(req.Items))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

// PUT /api/v1/carts/{cartID}/items/{productID}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	p, ok := cartPrincipal(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.SetItemQuantity(ctx, chi.URLParam(r, "cartID"), p.TenantID,
		chi.URLParam(r, "productID"), req.VariantID, req.Quantity)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

// DELETE /api/v1/carts/{cartID}/items/{productID}?variant_id=
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	p, ok := cartPrincipal(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart, err := h.carts.RemoveItem(ctx, chi.URLParam(r, "cartID"), p.TenantID,
		chi.URLParam(r, "productID"), r.URL.Query().Get("variant_id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

// POST /api/v1/carts/{cartID}/checkout
func (h *CartHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	p, ok := cartPrincipal(w, r)
	if !ok {
		return
	}

	var req CheckoutRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	session, err := h.checkout.BuildSession(ctx, domain.CheckoutRequest{
		CartID:     chi.URLParam(r, "cartID"),
		TenantID:   p.TenantID,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, session)
}
