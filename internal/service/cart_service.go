package service

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/commerce-core/internal/cart/cache"
	"github.com/fjod/commerce-core/internal/cart/repository"
	"github.com/fjod/commerce-core/internal/domain"
	"github.com/fjod/commerce-core/pkg/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCartRetries = 5
	cartLoadTimeout    = 5 * time.Second
)

type CartService struct {
	repo       repository.CartRepository
	cache      cache.CartCache
	sfg        singleflight.Group // Prevents cache stampede
	maxRetries int
	log        zerolog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewCartService(repo repository.CartRepository, cache cache.CartCache, maxRetries int, log zerolog.Logger, m *metrics.Metrics) *CartService {
	if maxRetries <= 0 {
		maxRetries = defaultCartRetries
	}
	return &CartService{
		repo:       repo,
		cache:      cache,
		maxRetries: maxRetries,
		log:        log.With().Str("component", "cart").Logger(),
		metrics:    m,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreateCart starts a cart for the tenant. Duplicate lines in the seed are merged.
func (s *CartService) CreateCart(ctx context.Context, tenantID string, items []domain.CartItem) (*domain.Cart, error) {
	if err := domain.ValidateItems(items); err != nil {
		return nil, err
	}

	now := s.now()
	cart := &domain.Cart{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Items:     []domain.CartItem{},
		Currency:  domain.DefaultCurrency,
		CreatedAt: now,
	}
	cart.AddItems(items, now)

	if err := s.repo.Create(ctx, cart); err != nil {
		s.log.Error().Err(err).Str("tenant_id", tenantID).Msg("repo create cart error")
		return nil, err
	}
	return cart, nil
}

// AddItems merges a batch into the cart. The batch is validated up front and
// written in one update, so either every item lands or none does.
func (s *CartService) AddItems(ctx context.Context, cartID, tenantID string, items []domain.CartItem) (*domain.Cart, error) {
	if len(items) == 0 {
		return nil, domain.NewValidationError("items must not be empty")
	}
	if err := domain.ValidateItems(items); err != nil {
		return nil, err
	}

	return s.mutate(ctx, cartID, tenantID, func(c *domain.Cart, now time.Time) (bool, error) {
		c.AddItems(items, now)
		return true, nil
	})
}

// SetItemQuantity overwrites a line's quantity; quantity <= 0 removes the line.
func (s *CartService) SetItemQuantity(ctx context.Context, cartID, tenantID, productID, variantID string, quantity int) (*domain.Cart, error) {
	key := domain.LineKey{ProductID: productID, VariantID: variantID}
	return s.mutate(ctx, cartID, tenantID, func(c *domain.Cart, now time.Time) (bool, error) {
		if err := c.SetQuantity(key, quantity, now); err != nil {
			return false, err
		}
		return true, nil
	})
}

// RemoveItem is idempotent: removing an absent line returns the cart unchanged.
func (s *CartService) RemoveItem(ctx context.Context, cartID, tenantID, productID, variantID string) (*domain.Cart, error) {
	key := domain.LineKey{ProductID: productID, VariantID: variantID}
	return s.mutate(ctx, cartID, tenantID, func(c *domain.Cart, now time.Time) (bool, error) {
		return c.RemoveItem(key, now), nil
	})
}

func (s *CartService) GetCart(ctx context.Context, cartID, tenantID string) (*domain.Cart, error) {
	key := tenantID + "/" + cartID

	// Use singleflight to prevent multiple concurrent cache misses for same key.
	// The shared load outlives any single caller's cancellation.
	ch := s.sfg.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cartLoadTimeout)
		defer cancel()

		cart, err := s.cache.Get(loadCtx, tenantID, cartID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.log.Warn().Err(err).Str("cart_id", cartID).Msg("cache get error")
		}

		cart, err = s.repo.Get(loadCtx, tenantID, cartID)
		if err != nil {
			return nil, err
		}

		go s.cacheCart(cart.Clone())

		return cart, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// callers sharing a singleflight result must not see each other's edits
		return res.Val.(*domain.Cart).Clone(), nil
	}
}

// LoadCart reads the stored cart, skipping the cache. Checkout prices from
// this copy.
func (s *CartService) LoadCart(ctx context.Context, cartID, tenantID string) (*domain.Cart, error) {
	return s.repo.Get(ctx, tenantID, cartID)
}

func (s *CartService) DeleteCart(ctx context.Context, cartID, tenantID string) error {
	if err := s.repo.Delete(ctx, tenantID, cartID); err != nil {
		if !errors.Is(err, domain.ErrCartNotFound) {
			s.log.Error().Err(err).Str("cart_id", cartID).Msg("repo delete cart error")
		}
		return err
	}

	s.invalidateCache(tenantID, cartID)
	return nil
}

// mutate runs read, apply, compare-and-swap until the write lands or the
// retry budget is spent. apply reports whether it changed anything; an
// unchanged cart is returned without a write.
func (s *CartService) mutate(ctx context.Context, cartID, tenantID string, apply func(*domain.Cart, time.Time) (bool, error)) (*domain.Cart, error) {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		stored, err := s.repo.Get(ctx, tenantID, cartID)
		if err != nil {
			return nil, err
		}

		next := stored.Clone()
		changed, err := apply(next, s.now())
		if err != nil {
			return nil, err
		}
		if !changed {
			return stored, nil
		}

		err = s.repo.CompareAndSwap(ctx, next, stored.Version)
		if errors.Is(err, repository.ErrVersionMismatch) {
			s.metrics.CartConflict()
			s.log.Debug().Str("cart_id", cartID).Int("attempt", attempt+1).Msg("cart version conflict, retrying")
			continue
		}
		if err != nil {
			s.log.Error().Err(err).Str("cart_id", cartID).Msg("repo update cart error")
			return nil, err
		}

		s.refreshCache(next)
		return next, nil
	}

	s.log.Warn().Str("cart_id", cartID).Int("attempts", s.maxRetries).Msg("cart update gave up after repeated conflicts")
	return nil, domain.ErrConflict
}

// cacheCart stores a copy read from the repository. The cache keeps the
// higher version, so a copy read before a concurrent write is discarded.
func (s *CartService) cacheCart(c *domain.Cart) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Set(ctx, c); err != nil {
		s.log.Warn().Err(err).Str("cart_id", c.ID).Msg("cache set error")
	}
}

// refreshCache writes a freshly stored cart through to the cache. If that
// fails the entry is dropped instead.
func (s *CartService) refreshCache(c *domain.Cart) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Set(ctx, c.Clone()); err != nil {
		s.log.Warn().Err(err).Str("cart_id", c.ID).Msg("cache refresh error, invalidating")
		s.invalidateCache(c.TenantID, c.ID)
	}
}

func (s *CartService) invalidateCache(tenantID, cartID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cache.Delete(ctx, tenantID, cartID); err != nil {
		s.log.Warn().Err(err).Str("cart_id", cartID).Msg("cache invalidate error")
	}
}
