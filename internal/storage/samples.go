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

const sampleColumns = `id, customer_id, product_id, sales_rep_id, date_given, quantity,
	feedback, resulted_in_order, order_id, created_at`

// CreateSample inserts a new sample usage record.
func (db *DB) CreateSample(ctx context.Context, s model.SampleUsage) (model.SampleUsage, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO sample_usages (`+sampleColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.CustomerID, s.ProductID, s.SalesRepID, s.DateGiven, s.Quantity,
		s.Feedback, s.ResultedInOrder, s.OrderID, s.CreatedAt,
	)
	if err != nil {
		return model.SampleUsage{}, fmt.Errorf("storage: create sample: %w", err)
	}
	return s, nil
}

// GetSample returns one sample by id, or ErrNotFound.
func (db *DB) GetSample(ctx context.Context, id uuid.UUID) (model.SampleUsage, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+sampleColumns+` FROM sample_usages WHERE id = $1`, id)
	s, err := scanSample(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.SampleUsage{}, ErrNotFound
	}
	if err != nil {
		return model.SampleUsage{}, fmt.Errorf("storage: get sample: %w", err)
	}
	return s, nil
}

// ListSamplesByCustomer returns the customer's samples, newest first.
// These are the attribution candidates for that customer's orders.
func (db *DB) ListSamplesByCustomer(ctx context.Context, customerID uuid.UUID) ([]model.SampleUsage, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+sampleColumns+`
		 FROM sample_usages
		 WHERE customer_id = $1
		 ORDER BY date_given DESC, id ASC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("storage: list samples by customer: %w", err)
	}
	defer rows.Close()
	return collectSamples(rows)
}

// ListSamples returns samples with date_given inside [since, until).
// A zero until means no upper bound.
func (db *DB) ListSamples(ctx context.Context, since, until time.Time) ([]model.SampleUsage, error) {
	query := `SELECT ` + sampleColumns + ` FROM sample_usages WHERE date_given >= $1`
	args := []any{since}
	if !until.IsZero() {
		query += ` AND date_given < $2`
		args = append(args, until)
	}
	query += ` ORDER BY date_given ASC, id ASC`

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: list samples: %w", err)
	}
	defer rows.Close()
	return collectSamples(rows)
}

// MarkSampleAttributed flips the attribution fields with a compare-and-set
// on resulted_in_order. Returns false when the sample was already attributed
// (by this or any concurrent caller); the caller maps that to the
// already_attributed outcome instead of double-counting.
func (db *DB) MarkSampleAttributed(ctx context.Context, sampleID, orderID uuid.UUID) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE sample_usages
		 SET resulted_in_order = true, order_id = $2
		 WHERE id = $1 AND resulted_in_order = false`,
		sampleID, orderID,
	)
	if err != nil {
		return false, fmt.Errorf("storage: mark sample attributed: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	// Distinguish "already attributed" from "no such sample".
	var exists bool
	if err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sample_usages WHERE id = $1)`, sampleID,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("storage: mark sample attributed: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

func scanSample(row pgx.Row) (model.SampleUsage, error) {
	var s model.SampleUsage
	err := row.Scan(
		&s.ID, &s.CustomerID, &s.ProductID, &s.SalesRepID, &s.DateGiven, &s.Quantity,
		&s.Feedback, &s.ResultedInOrder, &s.OrderID, &s.CreatedAt,
	)
	return s, err
}

func collectSamples(rows pgx.Rows) ([]model.SampleUsage, error) {
	var out []model.SampleUsage
	for rows.Next() {
		s, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan sample: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
