package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/fjod/commerce-core/internal/catalog"
	"github.com/fjod/commerce-core/internal/domain"
	"github.com/fjod/commerce-core/internal/orders/repository"
	"github.com/fjod/commerce-core/pkg/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultTransitionRetries = 3
	defaultOrderPageSize     = 20
	maxOrderPageSize         = 100
)

type TransitionRequest struct {
	OrderID     string
	ItemID      string
	StepID      string
	Metadata    map[string]string
	OrderStatus *domain.OrderStatus
}

// FulfillmentService advances order items through their product's pipeline
// and exposes the order operations available to secret-level callers.
type FulfillmentService struct {
	orders     repository.OrderRepository
	catalog    catalog.Accessor
	events     EventPublisher
	maxRetries int
	log        zerolog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewFulfillmentService(
	orders repository.OrderRepository,
	catalog catalog.Accessor,
	events EventPublisher,
	maxRetries int,
	log zerolog.Logger,
	m *metrics.Metrics,
) *FulfillmentService {
	if maxRetries <= 0 {
		maxRetries = defaultTransitionRetries
	}
	return &FulfillmentService{
		orders:     orders,
		catalog:    catalog,
		events:     events,
		maxRetries: maxRetries,
		log:        log.With().Str("component", "fulfillment").Logger(),
		metrics:    m,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Transition records completion of a pipeline step on an order item and
// returns the item with its full history.
func (s *FulfillmentService) Transition(ctx context.Context, p domain.Principal, req TransitionRequest) (*domain.OrderItem, error) {
	item, err := s.transition(ctx, p, req)
	if err != nil {
		s.metrics.Transition(string(domain.KindOf(err)))
		return nil, err
	}
	s.metrics.Transition("ok")
	return item, nil
}

func (s *FulfillmentService) transition(ctx context.Context, p domain.Principal, req TransitionRequest) (*domain.OrderItem, error) {
	if !p.CanMutateOrders() {
		return nil, domain.ErrForbidden
	}
	if req.OrderStatus != nil && !req.OrderStatus.Valid() {
		return nil, invalidStatusError(*req.OrderStatus)
	}

	item, err := s.loadItem(ctx, p.TenantID, req.OrderID, req.ItemID)
	if err != nil {
		return nil, err
	}

	product, err := s.catalog.GetProduct(ctx, item.ProductID)
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		// a product removed from the catalog has no steps left to take
		product = &domain.Product{ID: item.ProductID}
	case err != nil:
		return nil, domain.Upstream("catalog", err)
	}

	step, ok := product.Step(req.StepID)
	if !ok {
		return nil, domain.NewInvalidStepError(req.StepID, product.StepIDs())
	}
	if missing := step.MissingMetadata(req.Metadata); len(missing) > 0 {
		return nil, domain.NewMissingMetadataError(step, missing)
	}

	metadata := make(map[string]string, len(req.Metadata))
	maps.Copy(metadata, req.Metadata)

	if err := s.appendStep(ctx, item, step, metadata); err != nil {
		return nil, err
	}

	if req.OrderStatus != nil {
		if err := s.orders.UpdateOrderStatus(ctx, p.TenantID, req.OrderID, *req.OrderStatus); err != nil {
			s.log.Warn().Err(err).
				Str("order_id", req.OrderID).
				Str("status", string(*req.OrderStatus)).
				Msg("order status update after transition failed")
		}
	}

	s.publishStepUpdated(p.TenantID, item, step)
	return item, nil
}

func (s *FulfillmentService) appendStep(ctx context.Context, item *domain.OrderItem, step domain.StepDefinition, metadata map[string]string) error {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		entry := domain.StepHistoryEntry{
			StepID:      step.ID,
			CompletedAt: s.now(),
			Metadata:    metadata,
		}

		err := s.orders.AppendStep(ctx, item, entry)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrVersionMismatch) {
			return fmt.Errorf("append step %s: %w", step.ID, err)
		}

		s.log.Debug().Str("item_id", item.ID).Int("attempt", attempt+1).Msg("order item version conflict, retrying")
		fresh, err := s.orders.GetOrderItem(ctx, item.TenantID, item.OrderID, item.ID)
		if err != nil {
			return err
		}
		*item = *fresh
	}

	s.log.Warn().Str("item_id", item.ID).Int("attempts", s.maxRetries).Msg("transition gave up after repeated conflicts")
	return domain.ErrConflict
}

func (s *FulfillmentService) publishStepUpdated(tenantID string, item *domain.OrderItem, step domain.StepDefinition) {
	last := item.StepHistory[len(item.StepHistory)-1]
	s.events.Publish(domain.Event{
		ID:         uuid.NewString(),
		TenantID:   tenantID,
		Name:       domain.EventItemStepUpdated,
		OccurredAt: last.CompletedAt,
		Payload: map[string]any{
			"tenant_id":  tenantID,
			"order_id":   item.OrderID,
			"item_id":    item.ID,
			"step_id":    step.ID,
			"step_label": step.Label,
			"metadata":   last.Metadata,
			"timestamp":  last.CompletedAt,
		},
	})
}

// loadItem distinguishes a missing order from a missing item in an existing order.
func (s *FulfillmentService) loadItem(ctx context.Context, tenantID, orderID, itemID string) (*domain.OrderItem, error) {
	item, err := s.orders.GetOrderItem(ctx, tenantID, orderID, itemID)
	if !errors.Is(err, domain.ErrOrderItemNotFound) {
		return item, err
	}
	if _, orderErr := s.orders.GetOrder(ctx, tenantID, orderID); orderErr != nil {
		return nil, orderErr
	}
	return nil, err
}

func (s *FulfillmentService) ListOrders(ctx context.Context, p domain.Principal, limit, offset int) ([]*domain.Order, error) {
	if !p.CanMutateOrders() {
		return nil, domain.ErrForbidden
	}
	if limit <= 0 {
		limit = defaultOrderPageSize
	}
	limit = min(limit, maxOrderPageSize)
	offset = max(offset, 0)

	return s.orders.ListOrders(ctx, p.TenantID, limit, offset)
}

func (s *FulfillmentService) GetOrder(ctx context.Context, p domain.Principal, orderID string) (*domain.Order, error) {
	if !p.CanMutateOrders() {
		return nil, domain.ErrForbidden
	}
	return s.orders.GetOrder(ctx, p.TenantID, orderID)
}

// UpdateOrder applies a patch restricted to status, tracking number and notes.
func (s *FulfillmentService) UpdateOrder(ctx context.Context, p domain.Principal, orderID string, patch domain.OrderPatch) (*domain.Order, error) {
	if !p.CanMutateOrders() {
		return nil, domain.ErrForbidden
	}
	if patch.Empty() {
		return nil, domain.NewValidationError("at least one of status, tracking_number, notes is required")
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, invalidStatusError(*patch.Status)
	}

	order, err := s.orders.UpdateOrder(ctx, p.TenantID, orderID, patch)
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("order_id", orderID).Str("tenant_id", p.TenantID).Msg("order updated")
	return order, nil
}

func invalidStatusError(status domain.OrderStatus) error {
	return &domain.Error{
		Kind:    domain.KindValidation,
		Code:    domain.ErrInvalidOrderStatus.Code,
		Message: fmt.Sprintf("unknown order status %q", status),
		Details: map[string]any{"status": string(status)},
	}
}
