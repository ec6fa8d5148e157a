package cache

import (
	"context"
	"errors"

	"github.com/fjod/commerce-core/internal/domain"
)

// CartCache holds raw carts as stored. Hydrated prices never go in here.
// Set keeps whichever copy has the higher version.
type CartCache interface {
	Get(ctx context.Context, tenantID, cartID string) (*domain.Cart, error)
	Set(ctx context.Context, cart *domain.Cart) error
	Delete(ctx context.Context, tenantID, cartID string) error
}

var ErrCacheMiss = errors.New("cache miss")
