package repository

import (
	"context"
	"errors"

	"github.com/fjod/commerce-core/internal/domain"
)

// ErrVersionMismatch is returned by CompareAndSwap when the stored cart no
// longer has the expected version.
var ErrVersionMismatch = errors.New("cart version mismatch")

// CartRepository stores carts scoped by tenant. A cart owned by another
// tenant is indistinguishable from a missing one.
type CartRepository interface {
	Create(ctx context.Context, cart *domain.Cart) error
	Get(ctx context.Context, tenantID, cartID string) (*domain.Cart, error)
	CompareAndSwap(ctx context.Context, cart *domain.Cart, expectedVersion int64) error
	Delete(ctx context.Context, tenantID, cartID string) error
}
