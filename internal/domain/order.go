package domain

import (
	"time"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusRefunded   OrderStatus = "REFUNDED"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

type Order struct {
	ID             string      `json:"id"`
	TenantID       string      `json:"tenant_id"`
	Status         OrderStatus `json:"status"`
	Currency       string      `json:"currency"`
	TotalCents     int64       `json:"total_cents"`
	TrackingNumber string      `json:"tracking_number,omitempty"`
	Notes          string      `json:"notes,omitempty"`
	Items          []OrderItem `json:"items,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// OrderItem is a purchased line. Its fulfillment state is CurrentStepID plus
// the append-only StepHistory; Version guards concurrent appends.
type OrderItem struct {
	ID             string             `json:"id"`
	OrderID        string             `json:"order_id"`
	TenantID       string             `json:"tenant_id"`
	ProductID      string             `json:"product_id"`
	VariantID      string             `json:"variant_id,omitempty"`
	Quantity       int                `json:"quantity"`
	UnitPriceCents int64              `json:"unit_price_cents"`
	CurrentStepID  *string            `json:"current_step_id"`
	StepHistory    []StepHistoryEntry `json:"step_history"`
	Version        int64              `json:"-"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

type StepHistoryEntry struct {
	StepID      string            `json:"step_id"`
	CompletedAt time.Time         `json:"completed_at"`
	Metadata    map[string]string `json:"metadata"`
}

// OrderPatch lists the order fields callers may change. Nil means unchanged.
type OrderPatch struct {
	Status         *OrderStatus
	TrackingNumber *string
	Notes          *string
}

func (p OrderPatch) Empty() bool {
	return p.Status == nil && p.TrackingNumber == nil && p.Notes == nil
}
