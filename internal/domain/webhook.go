package domain

import (
	"encoding/json"
	"slices"
	"time"
)

const (
	EventItemStepUpdated = "item.step_updated"

	// WildcardEvent subscribes to every event.
	WildcardEvent = "*"
)

type Event struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	Name       string         `json:"event"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload"`
}

type WebhookSubscription struct {
	ID       string
	TenantID string
	URL      string
	Secret   string
	Events   []string
	Active   bool
}

func (s WebhookSubscription) Matches(eventName string) bool {
	return s.Active && (slices.Contains(s.Events, eventName) || slices.Contains(s.Events, WildcardEvent))
}

// DeliveryJob is one event addressed to one subscriber. It never carries the
// signing secret; the deliverer loads it from the subscription.
type DeliveryJob struct {
	ID             string          `json:"id"`
	EventID        string          `json:"event_id"`
	SubscriptionID string          `json:"subscription_id"`
	TenantID       string          `json:"tenant_id"`
	URL            string          `json:"url"`
	EventName      string          `json:"event"`
	Payload        json.RawMessage `json:"payload"`
	CreatedAt      time.Time       `json:"created_at"`
	Attempt        int             `json:"attempt"`
	LastError      string          `json:"last_error,omitempty"`
}
