package repository

import (
	"context"
	"errors"

	"github.com/fjod/commerce-core/internal/domain"
)

var (
	// ErrVersionMismatch is returned by AppendStep when the item changed since it was read.
	ErrVersionMismatch = errors.New("order item version mismatch")

	ErrSubscriptionNotFound = errors.New("webhook subscription not found")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// OrderRepository reads orders and mutates the fields this core owns. Every
// method is tenant scoped: rows of other tenants behave as missing.
type OrderRepository interface {
	GetOrder(ctx context.Context, tenantID, orderID string) (*domain.Order, error)
	ListOrders(ctx context.Context, tenantID string, limit, offset int) ([]*domain.Order, error)
	GetOrderItem(ctx context.Context, tenantID, orderID, itemID string) (*domain.OrderItem, error)
	AppendStep(ctx context.Context, item *domain.OrderItem, entry domain.StepHistoryEntry) error
	UpdateOrderStatus(ctx context.Context, tenantID, orderID string, status domain.OrderStatus) error
	UpdateOrder(ctx context.Context, tenantID, orderID string, patch domain.OrderPatch) (*domain.Order, error)
}

type PaymentAccountRepository interface {
	GetPaymentAccount(ctx context.Context, tenantID string, env domain.PaymentEnvironment) (*domain.PaymentAccount, error)
}

type SubscriptionRepository interface {
	ListActiveSubscriptions(ctx context.Context, tenantID, eventName string) ([]domain.WebhookSubscription, error)
}

// SubscriptionReader loads a single subscription, including its signing secret.
type SubscriptionReader interface {
	GetSubscription(ctx context.Context, tenantID, subscriptionID string) (*domain.WebhookSubscription, error)
}
