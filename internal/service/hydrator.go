package service

import (
	"context"
	"errors"

	"github.com/fjod/commerce-core/internal/catalog"
	"github.com/fjod/commerce-core/internal/domain"
	"golang.org/x/sync/errgroup"
)

const defaultHydrateConcurrency = 8

// Hydrator prices carts from the catalog. Prices are recomputed on every call
// and never read from the cart.
type Hydrator struct {
	catalog     catalog.Accessor
	concurrency int
}

func NewHydrator(c catalog.Accessor, concurrency int) *Hydrator {
	if concurrency <= 0 {
		concurrency = defaultHydrateConcurrency
	}
	return &Hydrator{catalog: c, concurrency: concurrency}
}

// Hydrate resolves every line against the catalog, keeping cart order. Lines
// whose product, or requested variant, is gone are dropped.
func (h *Hydrator) Hydrate(ctx context.Context, cart *domain.Cart) (*domain.HydratedCart, error) {
	resolved := make([]*domain.HydratedLine, len(cart.Items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.concurrency)
	for i, item := range cart.Items {
		g.Go(func() error {
			line, err := h.hydrateLine(gctx, item)
			if err != nil {
				return err
			}
			resolved[i] = line
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	currency := cart.Currency
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	out := &domain.HydratedCart{
		CartID:   cart.ID,
		Lines:    make([]domain.HydratedLine, 0, len(resolved)),
		Currency: currency,
	}
	for _, line := range resolved {
		if line == nil {
			continue
		}
		out.Lines = append(out.Lines, *line)
		out.SubtotalCents += line.LineTotalCents
	}
	return out, nil
}

// hydrateLine returns nil, nil for a line that must be dropped.
func (h *Hydrator) hydrateLine(ctx context.Context, item domain.CartItem) (*domain.HydratedLine, error) {
	product, err := h.catalog.GetProduct(ctx, item.ProductID)
	if errors.Is(err, domain.ErrProductNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Upstream("catalog", err)
	}

	line := &domain.HydratedLine{
		Product:        *product,
		UnitPriceCents: product.BasePriceCents,
		Quantity:       item.Quantity,
	}

	if item.VariantID != "" {
		variant, err := h.catalog.GetVariant(ctx, item.VariantID)
		if errors.Is(err, domain.ErrVariantNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, domain.Upstream("catalog", err)
		}
		if variant.ProductID != product.ID {
			return nil, nil
		}
		line.Variant = variant
		line.UnitPriceCents = variant.PriceCents
	}

	line.LineTotalCents = line.UnitPriceCents * int64(line.Quantity)
	return line, nil
}
