package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/commerce-core/internal/domain"
)

const orderColumns = `id, tenant_id, status, currency, total_cents, tracking_number, notes, created_at, updated_at`

const itemColumns = `id, order_id, tenant_id, product_id, variant_id, quantity, unit_price_cents,
	current_step_id, step_history, version, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID,
		&o.TenantID,
		&o.Status,
		&o.Currency,
		&o.TotalCents,
		&o.TrackingNumber,
		&o.Notes,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func scanItem(row rowScanner) (*domain.OrderItem, error) {
	var (
		item        domain.OrderItem
		currentStep sql.NullString
		historyJSON []byte
	)
	err := row.Scan(
		&item.ID,
		&item.OrderID,
		&item.TenantID,
		&item.ProductID,
		&item.VariantID,
		&item.Quantity,
		&item.UnitPriceCents,
		&currentStep,
		&historyJSON,
		&item.Version,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if currentStep.Valid {
		item.CurrentStepID = &currentStep.String
	}
	if err := json.Unmarshal(historyJSON, &item.StepHistory); err != nil {
		return nil, fmt.Errorf("unmarshal step history: %w", err)
	}
	return &item, nil
}

// CreateOrder inserts an order with its items. Orders normally arrive from
// the payment-completion process; this is its write path.
func (r *Repository) CreateOrder(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, tenant_id, status, currency, total_cents, tracking_number, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())`,
		order.ID, order.TenantID, order.Status, order.Currency, order.TotalCents, order.TrackingNumber, order.Notes)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_items (id, order_id, tenant_id, product_id, variant_id, quantity, unit_price_cents)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			item.ID, order.ID, order.TenantID, item.ProductID, item.VariantID, item.Quantity, item.UnitPriceCents)
		if err != nil {
			return fmt.Errorf("insert order item %s: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit order: %w", err)
	}
	return nil
}

func (r *Repository) GetOrder(ctx context.Context, tenantID, orderID string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 AND tenant_id = $2`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, orderID, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}

	items, err := r.listItems(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

func (r *Repository) listItems(ctx context.Context, tenantID, orderID string) ([]domain.OrderItem, error) {
	query := `SELECT ` + itemColumns + ` FROM order_items WHERE order_id = $1 AND tenant_id = $2 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, orderID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order item row: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return items, nil
}

func (r *Repository) ListOrders(ctx context.Context, tenantID string, limit, offset int) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE tenant_id = $1
	          ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query orders by tenant: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return orders, nil
}

func (r *Repository) GetOrderItem(ctx context.Context, tenantID, orderID, itemID string) (*domain.OrderItem, error) {
	query := `SELECT ` + itemColumns + ` FROM order_items WHERE id = $1 AND order_id = $2 AND tenant_id = $3`

	item, err := scanItem(r.db.QueryRowContext(ctx, query, itemID, orderID, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order item: %w", err)
	}
	return item, nil
}

// AppendStep appends entry to the item's history and moves its current step,
// provided the stored version still equals item.Version. On success item is
// refreshed from the updated row.
func (r *Repository) AppendStep(ctx context.Context, item *domain.OrderItem, entry domain.StepHistoryEntry) error {
	entryJSON, err := json.Marshal([]domain.StepHistoryEntry{entry})
	if err != nil {
		return fmt.Errorf("marshal step entry: %w", err)
	}

	query := `UPDATE order_items
	          SET step_history = step_history || $1::jsonb,
	              current_step_id = $2,
	              version = version + 1,
	              updated_at = NOW()
	          WHERE id = $3 AND order_id = $4 AND tenant_id = $5 AND version = $6
	          RETURNING ` + itemColumns

	updated, err := scanItem(r.db.QueryRowContext(ctx, query,
		string(entryJSON), entry.StepID, item.ID, item.OrderID, item.TenantID, item.Version))
	if errors.Is(err, sql.ErrNoRows) {
		return ErrVersionMismatch
	}
	if err != nil {
		return fmt.Errorf("append step: %w", err)
	}

	*item = *updated
	return nil
}

func (r *Repository) UpdateOrderStatus(ctx context.Context, tenantID, orderID string, status domain.OrderStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND tenant_id = $3`,
		status, orderID, tenantID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if n == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *Repository) UpdateOrder(ctx context.Context, tenantID, orderID string, patch domain.OrderPatch) (*domain.Order, error) {
	var status, tracking, notes sql.NullString
	if patch.Status != nil {
		status = sql.NullString{String: string(*patch.Status), Valid: true}
	}
	if patch.TrackingNumber != nil {
		tracking = sql.NullString{String: *patch.TrackingNumber, Valid: true}
	}
	if patch.Notes != nil {
		notes = sql.NullString{String: *patch.Notes, Valid: true}
	}

	query := `UPDATE orders
	          SET status = COALESCE($1::text, status),
	              tracking_number = COALESCE($2::text, tracking_number),
	              notes = COALESCE($3::text, notes),
	              updated_at = NOW()
	          WHERE id = $4 AND tenant_id = $5
	          RETURNING ` + orderColumns

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, status, tracking, notes, orderID, tenantID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}

	items, err := r.listItems(ctx, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}
