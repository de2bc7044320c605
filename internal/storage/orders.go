package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/samplefront/samplefront/internal/model"
)

const orderColumns = `id, customer_id, order_date, total_value, status, created_at`

// UpsertOrder records an order snapshot from the order-management
// collaborator. This core reads orders; the upsert exists so hosts can feed
// status transitions (pending → completed/cancelled) through the same path.
func (db *DB) UpsertOrder(ctx context.Context, o model.CustomerOrder) (model.CustomerOrder, error) {
	if err := o.Validate(); err != nil {
		return model.CustomerOrder{}, err
	}
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO customer_orders (`+orderColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE
		 SET order_date = EXCLUDED.order_date,
		     total_value = EXCLUDED.total_value,
		     status = EXCLUDED.status`,
		o.ID, o.CustomerID, o.OrderDate, o.TotalValue, string(o.Status), o.CreatedAt,
	)
	if err != nil {
		return model.CustomerOrder{}, fmt.Errorf("storage: upsert order: %w", err)
	}
	return o, nil
}

// GetOrder returns one order by id, or ErrNotFound.
func (db *DB) GetOrder(ctx context.Context, id uuid.UUID) (model.CustomerOrder, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM customer_orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CustomerOrder{}, ErrNotFound
	}
	if err != nil {
		return model.CustomerOrder{}, fmt.Errorf("storage: get order: %w", err)
	}
	return o, nil
}

// ListOrders returns all orders, oldest first.
func (db *DB) ListOrders(ctx context.Context) ([]model.CustomerOrder, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM customer_orders ORDER BY order_date ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

// ListUnattributedCompletedOrders returns completed orders no sample links
// to yet, oldest first, capped at limit. The attribution sweep retries
// these; failures (no sample, outside window) are routine and re-checked on
// later sweeps as the data changes.
func (db *DB) ListUnattributedCompletedOrders(ctx context.Context, limit int) ([]model.CustomerOrder, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+orderColumns+`
		 FROM customer_orders o
		 WHERE o.status = 'completed'
		   AND NOT EXISTS (SELECT 1 FROM sample_usages s WHERE s.order_id = o.id)
		 ORDER BY o.order_date ASC, o.id ASC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage: list unattributed completed orders: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func scanOrder(row pgx.Row) (model.CustomerOrder, error) {
	var o model.CustomerOrder
	var status string
	err := row.Scan(&o.ID, &o.CustomerID, &o.OrderDate, &o.TotalValue, &status, &o.CreatedAt)
	o.Status = model.OrderStatus(status)
	return o, err
}

func collectOrders(rows pgx.Rows) ([]model.CustomerOrder, error) {
	var out []model.CustomerOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
