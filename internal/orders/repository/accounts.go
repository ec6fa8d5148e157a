package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/commerce-core/internal/domain"
)

// GetPaymentAccount returns domain.ErrPaymentAccountNotConfigured when the
// tenant has no account for env.
func (r *Repository) GetPaymentAccount(ctx context.Context, tenantID string, env domain.PaymentEnvironment) (*domain.PaymentAccount, error) {
	query := `SELECT tenant_id, environment, connected_account_id, onboarding_complete
	          FROM payment_accounts WHERE tenant_id = $1 AND environment = $2`

	var acc domain.PaymentAccount
	err := r.db.QueryRowContext(ctx, query, tenantID, env).Scan(
		&acc.TenantID,
		&acc.Environment,
		&acc.ConnectedAccountID,
		&acc.OnboardingComplete,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPaymentAccountNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("query payment account: %w", err)
	}
	return &acc, nil
}

func (r *Repository) UpsertPaymentAccount(ctx context.Context, acc domain.PaymentAccount) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_accounts (tenant_id, environment, connected_account_id, onboarding_complete, updated_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (tenant_id, environment) DO UPDATE
		 SET connected_account_id = EXCLUDED.connected_account_id,
		     onboarding_complete = EXCLUDED.onboarding_complete,
		     updated_at = NOW()`,
		acc.TenantID, acc.Environment, acc.ConnectedAccountID, acc.OnboardingComplete)
	if err != nil {
		return fmt.Errorf("upsert payment account: %w", err)
	}
	return nil
}
