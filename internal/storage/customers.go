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

const customerColumns = `id, name, last_contact_date, estimated_burn_rate_days, created_at`

// UpsertCustomer records a customer snapshot from the CRM collaborator.
func (db *DB) UpsertCustomer(ctx context.Context, c model.Customer) (model.Customer, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO customers (`+customerColumns+`)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE
		 SET name = EXCLUDED.name,
		     last_contact_date = EXCLUDED.last_contact_date,
		     estimated_burn_rate_days = EXCLUDED.estimated_burn_rate_days`,
		c.ID, c.Name, c.LastContactDate, c.EstimatedBurnRateDays, c.CreatedAt,
	)
	if err != nil {
		return model.Customer{}, fmt.Errorf("storage: upsert customer: %w", err)
	}
	return c, nil
}

// GetCustomer returns one customer by id, or ErrNotFound.
func (db *DB) GetCustomer(ctx context.Context, id uuid.UUID) (model.Customer, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	c, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Customer{}, ErrNotFound
	}
	if err != nil {
		return model.Customer{}, fmt.Errorf("storage: get customer: %w", err)
	}
	return c, nil
}

// ListCustomers returns all customers ordered by name.
func (db *DB) ListCustomers(ctx context.Context) ([]model.Customer, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+customerColumns+` FROM customers ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list customers: %w", err)
	}
	defer rows.Close()

	var out []model.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan customer: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCustomer(row pgx.Row) (model.Customer, error) {
	var c model.Customer
	err := row.Scan(&c.ID, &c.Name, &c.LastContactDate, &c.EstimatedBurnRateDays, &c.CreatedAt)
	return c, err
}
