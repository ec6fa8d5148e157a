package service

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/commerce-core/internal/cart/cache"
	cartrepo "github.com/fjod/commerce-core/internal/cart/repository"
	"github.com/fjod/commerce-core/internal/domain"
	"github.com/fjod/commerce-core/internal/orders/repository"
	"github.com/fjod/commerce-core/internal/payment"
)

// MockCartRepository is an in-memory CartRepository. ConflictsLeft forces that
// many CompareAndSwap calls to lose the race.
type MockCartRepository struct {
	mu            sync.Mutex
	carts         map[string]*domain.Cart
	ConflictsLeft int
	GetCalls      int
	SwapCalls     int
	Err           error
	// GetDelay holds every Get until it passes or ctx is done.
	GetDelay time.Duration
}

func NewMockCartRepository() *MockCartRepository {
	return &MockCartRepository{carts: map[string]*domain.Cart{}}
}

func (m *MockCartRepository) Create(_ context.Context, cart *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	cart.Version = 1
	m.carts[cart.ID] = cart.Clone()
	return nil
}

func (m *MockCartRepository) Get(ctx context.Context, tenantID, cartID string) (*domain.Cart, error) {
	m.mu.Lock()
	delay := m.GetDelay
	m.mu.Unlock()
	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls++
	if m.Err != nil {
		return nil, m.Err
	}
	c, ok := m.carts[cartID]
	if !ok || c.TenantID != tenantID {
		return nil, domain.ErrCartNotFound
	}
	return c.Clone(), nil
}

func (m *MockCartRepository) CompareAndSwap(_ context.Context, cart *domain.Cart, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SwapCalls++
	stored, ok := m.carts[cart.ID]
	if !ok || stored.TenantID != cart.TenantID {
		return cartrepo.ErrVersionMismatch
	}
	if m.ConflictsLeft > 0 {
		m.ConflictsLeft--
		stored.Version++
		return cartrepo.ErrVersionMismatch
	}
	if stored.Version != expectedVersion {
		return cartrepo.ErrVersionMismatch
	}
	cart.Version = expectedVersion + 1
	m.carts[cart.ID] = cart.Clone()
	return nil
}

func (m *MockCartRepository) Delete(_ context.Context, tenantID, cartID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[cartID]
	if !ok || c.TenantID != tenantID {
		return domain.ErrCartNotFound
	}
	delete(m.carts, cartID)
	return nil
}

func (m *MockCartRepository) stored(cartID string) *domain.Cart {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.carts[cartID].Clone()
}

// MockCartCache keeps the higher version on Set, like the Redis cache. A
// channel placed in holdNext parks the next Set until it is closed.
type MockCartCache struct {
	mu       sync.Mutex
	carts    map[string]*domain.Cart
	holdNext chan struct{}
	parked   chan struct{}
	Deletes  int
	Sets     int
}

func NewMockCartCache() *MockCartCache {
	return &MockCartCache{carts: map[string]*domain.Cart{}}
}

func (m *MockCartCache) Get(_ context.Context, tenantID, cartID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[tenantID+"/"+cartID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return c.Clone(), nil
}

func (m *MockCartCache) Set(_ context.Context, cart *domain.Cart) error {
	m.mu.Lock()
	hold, parked := m.holdNext, m.parked
	m.holdNext, m.parked = nil, nil
	m.mu.Unlock()
	if hold != nil {
		close(parked)
		<-hold
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sets++
	key := cart.TenantID + "/" + cart.ID
	if cur, ok := m.carts[key]; ok && cur.Version >= cart.Version {
		return nil
	}
	m.carts[key] = cart.Clone()
	return nil
}

// holdNextSet returns a channel that releases the parked Set and one that is
// closed once a Set has been parked.
func (m *MockCartCache) holdNextSet() (release, parked chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holdNext = make(chan struct{})
	m.parked = make(chan struct{})
	return m.holdNext, m.parked
}

func (m *MockCartCache) sets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Sets
}

func (m *MockCartCache) cached(tenantID, cartID string) *domain.Cart {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[tenantID+"/"+cartID]
	if !ok {
		return nil
	}
	return c.Clone()
}

func (m *MockCartCache) Delete(_ context.Context, tenantID, cartID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deletes++
	delete(m.carts, tenantID+"/"+cartID)
	return nil
}

func (m *MockCartCache) has(tenantID, cartID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.carts[tenantID+"/"+cartID]
	return ok
}

// MockCatalog implements catalog.Accessor for testing
type MockCatalog struct {
	mu       sync.Mutex
	Products map[string]*domain.Product
	Variants map[string]*domain.Variant
	Err      error
	Calls    int
}

func (m *MockCatalog) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	p, ok := m.Products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockCatalog) GetVariant(_ context.Context, id string) (*domain.Variant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	v, ok := m.Variants[id]
	if !ok {
		return nil, domain.ErrVariantNotFound
	}
	cp := *v
	return &cp, nil
}

func testCatalog() *MockCatalog {
	return &MockCatalog{
		Products: map[string]*domain.Product{
			"shirt": {
				ID:             "shirt",
				Name:           "Tailored shirt",
				BasePriceCents: 4500,
				Pipeline: []domain.StepDefinition{
					{ID: "cut", Label: "Cut"},
					{ID: "sew", Label: "Sew", RequiredMetadataFields: []string{"operator"}},
					{ID: "ship", Label: "Ship", RequiredMetadataFields: []string{"carrier", "tracking"}},
				},
			},
			"mug": {ID: "mug", Name: "Printed mug", BasePriceCents: 1200},
		},
		Variants: map[string]*domain.Variant{
			"shirt-xl":  {ID: "shirt-xl", ProductID: "shirt", Title: "Extra large", PriceCents: 5200},
			"mug-large": {ID: "mug-large", ProductID: "mug", Title: "Large", PriceCents: 1500},
		},
	}
}

type MockPaymentAccounts struct {
	Account *domain.PaymentAccount
	Err     error
	GotEnv  domain.PaymentEnvironment
}

func (m *MockPaymentAccounts) GetPaymentAccount(_ context.Context, _ string, env domain.PaymentEnvironment) (*domain.PaymentAccount, error) {
	m.GotEnv = env
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Account == nil {
		return nil, domain.ErrPaymentAccountNotConfigured
	}
	return m.Account, nil
}

// MockPaymentProvider records the last params. Delay blocks until the
// context is done or the delay passes.
type MockPaymentProvider struct {
	Params *payment.SessionParams
	Calls  int
	Err    error
	Delay  time.Duration
}

func (m *MockPaymentProvider) CreateCheckoutSession(ctx context.Context, params payment.SessionParams) (*payment.Session, error) {
	m.Calls++
	m.Params = &params
	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.Delay):
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &payment.Session{
		ID:        "cs_test_1",
		URL:       "https://pay.example/cs_test_1",
		ExpiresAt: time.Unix(1900000000, 0).UTC(),
	}, nil
}

// MockOrderRepository is an in-memory OrderRepository keyed by order id.
type MockOrderRepository struct {
	mu            sync.Mutex
	orders        map[string]*domain.Order
	ConflictsLeft int
	AppendCalls   int
	StatusErr     error
	StatusUpdates []domain.OrderStatus
}

func NewMockOrderRepository(orders ...*domain.Order) *MockOrderRepository {
	m := &MockOrderRepository{orders: map[string]*domain.Order{}}
	for _, o := range orders {
		for i := range o.Items {
			o.Items[i].OrderID = o.ID
			o.Items[i].TenantID = o.TenantID
			if o.Items[i].Version == 0 {
				o.Items[i].Version = 1
			}
		}
		m.orders[o.ID] = o
	}
	return m
}

func (m *MockOrderRepository) GetOrder(_ context.Context, tenantID, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.TenantID != tenantID {
		return nil, domain.ErrOrderNotFound
	}
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	return &cp, nil
}

func (m *MockOrderRepository) ListOrders(_ context.Context, tenantID string, limit, offset int) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Order
	for _, o := range m.orders {
		if o.TenantID == tenantID {
			out = append(out, o)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockOrderRepository) item(tenantID, orderID, itemID string) (*domain.OrderItem, bool) {
	o, ok := m.orders[orderID]
	if !ok || o.TenantID != tenantID {
		return nil, false
	}
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			return &o.Items[i], true
		}
	}
	return nil, false
}

func (m *MockOrderRepository) GetOrderItem(_ context.Context, tenantID, orderID, itemID string) (*domain.OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.item(tenantID, orderID, itemID)
	if !ok {
		return nil, domain.ErrOrderItemNotFound
	}
	cp := *it
	cp.StepHistory = append([]domain.StepHistoryEntry(nil), it.StepHistory...)
	return &cp, nil
}

func (m *MockOrderRepository) AppendStep(_ context.Context, item *domain.OrderItem, entry domain.StepHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AppendCalls++
	stored, ok := m.item(item.TenantID, item.OrderID, item.ID)
	if !ok {
		return repository.ErrVersionMismatch
	}
	if m.ConflictsLeft > 0 {
		// simulate a concurrent writer landing first
		m.ConflictsLeft--
		stored.StepHistory = append(stored.StepHistory, domain.StepHistoryEntry{StepID: "cut", CompletedAt: entry.CompletedAt})
		stepID := "cut"
		stored.CurrentStepID = &stepID
		stored.Version++
		return repository.ErrVersionMismatch
	}
	if stored.Version != item.Version {
		return repository.ErrVersionMismatch
	}
	stored.StepHistory = append(stored.StepHistory, entry)
	stepID := entry.StepID
	stored.CurrentStepID = &stepID
	stored.Version++

	*item = *stored
	item.StepHistory = append([]domain.StepHistoryEntry(nil), stored.StepHistory...)
	return nil
}

func (m *MockOrderRepository) UpdateOrderStatus(_ context.Context, tenantID, orderID string, status domain.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StatusErr != nil {
		return m.StatusErr
	}
	o, ok := m.orders[orderID]
	if !ok || o.TenantID != tenantID {
		return domain.ErrOrderNotFound
	}
	o.Status = status
	m.StatusUpdates = append(m.StatusUpdates, status)
	return nil
}

func (m *MockOrderRepository) UpdateOrder(_ context.Context, tenantID, orderID string, patch domain.OrderPatch) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.TenantID != tenantID {
		return nil, domain.ErrOrderNotFound
	}
	if patch.Status != nil {
		o.Status = *patch.Status
	}
	if patch.TrackingNumber != nil {
		o.TrackingNumber = *patch.TrackingNumber
	}
	if patch.Notes != nil {
		o.Notes = *patch.Notes
	}
	cp := *o
	return &cp, nil
}

type MockPublisher struct {
	mu     sync.Mutex
	Events []domain.Event
}

func (m *MockPublisher) Publish(event domain.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
}
