package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/commerce-core/internal/domain"
	"github.com/lib/pq"
)

// ListActiveSubscriptions returns the tenant's active subscriptions that
// listen to eventName directly or through the wildcard.
func (r *Repository) ListActiveSubscriptions(ctx context.Context, tenantID, eventName string) ([]domain.WebhookSubscription, error) {
	query := `SELECT id, tenant_id, url, secret, events, active
	          FROM webhook_subscriptions
	          WHERE tenant_id = $1 AND active AND ($2 = ANY(events) OR $3 = ANY(events))
	          ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, tenantID, eventName, domain.WildcardEvent)
	if err != nil {
		return nil, fmt.Errorf("query webhook subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.WebhookSubscription
	for rows.Next() {
		var s domain.WebhookSubscription
		if err := rows.Scan(&s.ID, &s.TenantID, &s.URL, &s.Secret, pq.Array(&s.Events), &s.Active); err != nil {
			return nil, fmt.Errorf("scan webhook subscription: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return subs, nil
}

func (r *Repository) GetSubscription(ctx context.Context, tenantID, subscriptionID string) (*domain.WebhookSubscription, error) {
	query := `SELECT id, tenant_id, url, secret, events, active
	          FROM webhook_subscriptions
	          WHERE id = $1 AND tenant_id = $2`

	var s domain.WebhookSubscription
	err := r.db.QueryRowContext(ctx, query, subscriptionID, tenantID).
		Scan(&s.ID, &s.TenantID, &s.URL, &s.Secret, pq.Array(&s.Events), &s.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook subscription: %w", err)
	}
	return &s, nil
}

func (r *Repository) CreateSubscription(ctx context.Context, sub domain.WebhookSubscription) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO webhook_subscriptions (id, tenant_id, url, secret, events, active)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		sub.ID, sub.TenantID, sub.URL, sub.Secret, pq.Array(sub.Events), sub.Active)
	if err != nil {
		return fmt.Errorf("insert webhook subscription: %w", err)
	}
	return nil
}
