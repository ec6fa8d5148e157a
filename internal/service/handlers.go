package service

import (
	"context"
	"time"

	"github.com/fjod/commerce-core/internal/domain"
	"github.com/fjod/commerce-core/internal/payment"
)

// PaymentProvider creates hosted checkout sessions.
type PaymentProvider interface {
	CreateCheckoutSession(ctx context.Context, params payment.SessionParams) (*payment.Session, error)
}

type PaymentHandler struct {
	provider PaymentProvider
	timeout  time.Duration
}

func NewPaymentHandler(provider PaymentProvider, timeout time.Duration) *PaymentHandler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PaymentHandler{
		provider: provider,
		timeout:  timeout,
	}
}

// EventPublisher accepts domain events for asynchronous delivery. Publish
// must not block.
type EventPublisher interface {
	Publish(event domain.Event)
}
