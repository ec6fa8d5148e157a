package http

import (
	"context"
	"time"

	"github.com/fjod/commerce-core/internal/auth"
	"github.com/fjod/commerce-core/internal/domain"
	"github.com/fjod/commerce-core/internal/service"
)

type CartStoreMock struct {
	cart *domain.Cart
	err  error

	gotTenant    string
	gotCartID    string
	gotProductID string
	gotVariantID string
	gotQuantity  int
	gotItems     []domain.CartItem
	deleted      bool
}

func (m *CartStoreMock) result() (*domain.Cart, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.cart, nil
}

func (m *CartStoreMock) CreateCart(_ context.Context, tenantID string, items []domain.CartItem) (*domain.Cart, error) {
	m.gotTenant, m.gotItems = tenantID, items
	return m.result()
}

func (m *CartStoreMock) AddItems(_ context.Context, cartID, tenantID string, items []domain.CartItem) (*domain.Cart, error) {
	m.gotCartID, m.gotTenant, m.gotItems = cartID, tenantID, items
	return m.result()
}

func (m *CartStoreMock) SetItemQuantity(_ context.Context, cartID, tenantID, productID, variantID string, quantity int) (*domain.Cart, error) {
	m.gotCartID, m.gotTenant, m.gotProductID, m.gotVariantID, m.gotQuantity = cartID, tenantID, productID, variantID, quantity
	return m.result()
}

func (m *CartStoreMock) RemoveItem(_ context.Context, cartID, tenantID, productID, variantID string) (*domain.Cart, error) {
	m.gotCartID, m.gotTenant, m.gotProductID, m.gotVariantID = cartID, tenantID, productID, variantID
	return m.result()
}

func (m *CartStoreMock) GetCart(_ context.Context, cartID, tenantID string) (*domain.Cart, error) {
	m.gotCartID, m.gotTenant = cartID, tenantID
	return m.result()
}

func (m *CartStoreMock) DeleteCart(_ context.Context, cartID, tenantID string) error {
	m.gotCartID, m.gotTenant = cartID, tenantID
	if m.err != nil {
		return m.err
	}
	m.deleted = true
	return nil
}

type HydratorMock struct {
	err error
}

func (m HydratorMock) Hydrate(_ context.Context, cart *domain.Cart) (*domain.HydratedCart, error) {
	if m.err != nil {
		return nil, m.err
	}
	h := &domain.HydratedCart{CartID: cart.ID, Currency: domain.DefaultCurrency}
	for _, item := range cart.Items {
		line := domain.HydratedLine{
			Product:        domain.Product{ID: item.ProductID, Name: item.ProductID},
			Quantity:       item.Quantity,
			UnitPriceCents: 1000,
			LineTotalCents: int64(item.Quantity) * 1000,
		}
		h.Lines = append(h.Lines, line)
		h.SubtotalCents += line.LineTotalCents
	}
	return h, nil
}

type SessionBuilderMock struct {
	err error
	got domain.CheckoutRequest
}

func (m *SessionBuilderMock) BuildSession(_ context.Context, req domain.CheckoutRequest) (*domain.CheckoutSession, error) {
	m.got = req
	if m.err != nil {
		return nil, m.err
	}
	return &domain.CheckoutSession{
		SessionID:   "cs_1",
		RedirectURL: "https://pay.example/cs_1",
		ExpiresAt:   time.Unix(1900000000, 0).UTC(),
	}, nil
}

type OrderServiceMock struct {
	order *domain.Order
	item  *domain.OrderItem
	err   error

	gotLimit      int
	gotOffset     int
	gotPatch      domain.OrderPatch
	gotTransition service.TransitionRequest
}

func (m *OrderServiceMock) ListOrders(_ context.Context, p domain.Principal, limit, offset int) ([]*domain.Order, error) {
	m.gotLimit, m.gotOffset = limit, offset
	if m.err != nil {
		return nil, m.err
	}
	if !p.CanMutateOrders() {
		return nil, domain.ErrForbidden
	}
	if m.order == nil {
		return nil, nil
	}
	return []*domain.Order{m.order}, nil
}

func (m *OrderServiceMock) GetOrder(_ context.Context, p domain.Principal, _ string) (*domain.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	if !p.CanMutateOrders() {
		return nil, domain.ErrForbidden
	}
	return m.order, nil
}

func (m *OrderServiceMock) UpdateOrder(_ context.Context, _ domain.Principal, _ string, patch domain.OrderPatch) (*domain.Order, error) {
	m.gotPatch = patch
	if m.err != nil {
		return nil, m.err
	}
	return m.order, nil
}

func (m *OrderServiceMock) Transition(_ context.Context, _ domain.Principal, req service.TransitionRequest) (*domain.OrderItem, error) {
	m.gotTransition = req
	if m.err != nil {
		return nil, m.err
	}
	return m.item, nil
}

func testGate() auth.Gate {
	return auth.NewStaticGate(map[string]domain.Principal{
		"pk_a": {TenantID: "tenant-a", Permission: domain.PermissionPublic},
		"sk_a": {TenantID: "tenant-a", Permission: domain.PermissionSecret},
	})
}
